package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type NotificationType string

const (
	NotificationAppointmentBooked    NotificationType = "appointment_booked"
	NotificationAppointmentConfirmed NotificationType = "appointment_confirmed"
	NotificationAppointmentModified  NotificationType = "appointment_modified"
	NotificationAppointmentCancelled NotificationType = "appointment_cancelled"
	NotificationAppointmentRejected  NotificationType = "appointment_rejected"
	NotificationAppointmentReminder  NotificationType = "appointment_reminder"
	NotificationSessionsSummary      NotificationType = "sessions_summary"
)

type Notification struct {
	bun.BaseModel `bun:"table:notifications"`

	ID          uuid.UUID        `bun:"id,pk,type:uuid" json:"id"`
	RecipientID string           `bun:"recipient_id,notnull" json:"recipient_id"`
	SenderID    string           `bun:"sender_id,notnull" json:"sender_id"`
	Type        NotificationType `bun:"type,notnull" json:"type"`
	SubjectID   *uuid.UUID       `bun:"subject_id,type:uuid" json:"subject_id,omitempty"`
	Message     string           `bun:"message,notnull" json:"message"`
	Read        bool             `bun:"read,notnull" json:"read"`
	CreatedAt   time.Time        `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time        `bun:"updated_at,notnull" json:"updated_at"`
}

func (n *Notification) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, &n.ID, &n.CreatedAt, &n.UpdatedAt)
}

// User is the slice of the identity directory the scheduler reads.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID    string   `bun:"id,pk" json:"id"`
	Name  string   `bun:"name,notnull" json:"name"`
	Email string   `bun:"email,notnull" json:"email"`
	Roles []string `bun:"roles,array" json:"roles"`
}

const (
	RoleStudent      = "student"
	RolePsychologist = "psychologist"
)

func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
