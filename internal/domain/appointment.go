package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// Active reports whether the appointment still occupies its psychologist's timeline.
func (s AppointmentStatus) Active() bool {
	return s == AppointmentStatusPending || s == AppointmentStatusConfirmed
}

type Priority string

const (
	PriorityRegular   Priority = "regular"
	PriorityEmergency Priority = "emergency"
)

func (p Priority) Valid() bool {
	return p == PriorityRegular || p == PriorityEmergency
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments,alias:a"`

	ID                    uuid.UUID         `bun:"id,pk,type:uuid" json:"id"`
	StudentID             string            `bun:"student_id,notnull" json:"student_id"`
	PsychologistID        string            `bun:"psychologist_id,notnull" json:"psychologist_id"`
	Date                  time.Time         `bun:"date,notnull" json:"date"`
	EndsAt                time.Time         `bun:"ends_at,notnull" json:"ends_at"`
	Status                AppointmentStatus `bun:"status,notnull" json:"status"`
	Priority              Priority          `bun:"priority,notnull" json:"priority"`
	ReasonForCancellation *string           `bun:"reason_for_cancellation" json:"reason_for_cancellation,omitempty"`
	CancelledBy           *string           `bun:"cancelled_by" json:"cancelled_by,omitempty"`
	ReminderSent          bool              `bun:"reminder_sent,notnull" json:"reminder_sent"`
	CreatedAt             time.Time         `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt             time.Time         `bun:"updated_at,notnull" json:"updated_at"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, &a.ID, &a.CreatedAt, &a.UpdatedAt)
}

// Overlaps reports whether [start, end) intersects the appointment's booking window.
func (a Appointment) Overlaps(start, end time.Time) bool {
	return a.Date.Before(end) && a.EndsAt.After(start)
}

// Counterpart returns the party that should hear about an action taken by actorID.
func (a Appointment) Counterpart(actorID string) string {
	if actorID == a.StudentID {
		return a.PsychologistID
	}
	return a.StudentID
}

type AppointmentEventKind string

const (
	AppointmentEventBooked    AppointmentEventKind = "booked"
	AppointmentEventConfirmed AppointmentEventKind = "confirmed"
	AppointmentEventModified  AppointmentEventKind = "modified"
	AppointmentEventCancelled AppointmentEventKind = "cancelled"
)

// AppointmentEvent is one row of the appointment audit trail.
type AppointmentEvent struct {
	bun.BaseModel `bun:"table:appointment_events"`

	ID            uuid.UUID            `bun:"id,pk,type:uuid"`
	AppointmentID uuid.UUID            `bun:"appointment_id,notnull,type:uuid"`
	ActorID       string               `bun:"actor_id"`
	Kind          AppointmentEventKind `bun:"kind,notnull"`
	Reason        *string              `bun:"reason"`
	OccurredAt    time.Time            `bun:"occurred_at,notnull"`
	CreatedAt     time.Time            `bun:"created_at,notnull"`
	UpdatedAt     time.Time            `bun:"updated_at,notnull"`
}

func (e *AppointmentEvent) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, &e.ID, &e.CreatedAt, &e.UpdatedAt)
}

func stamp(query bun.Query, id *uuid.UUID, createdAt, updatedAt *time.Time) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if *id == uuid.Nil {
			v, err := uuid.NewV7()
			if err != nil {
				return err
			}
			*id = v
		}
		if createdAt.IsZero() {
			*createdAt = now
		}
		if updatedAt.IsZero() {
			*updatedAt = now
		}
	case *bun.UpdateQuery:
		*updatedAt = now
	}
	return nil
}
