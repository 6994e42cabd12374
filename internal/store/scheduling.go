package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"counseling/backend/internal/domain"
)

type SlotFilter struct {
	PsychologistID string
	Status         domain.SlotStatus
	From           *time.Time
	To             *time.Time
}

type AppointmentFilter struct {
	StudentID      string
	PsychologistID string
	Statuses       []domain.AppointmentStatus
	From           *time.Time
	To             *time.Time
	ReminderSent   *bool
	Limit          int
}

type CaseFilter struct {
	StudentID      string
	PsychologistID string
	Status         domain.CaseStatus
	Archived       *bool
	Triage         bool
}

// SchedulingTx is the set of writes and consistent reads available while a
// psychologist's timeline is locked.
type SchedulingTx interface {
	GetSlot(ctx context.Context, id uuid.UUID) (domain.AvailabilitySlot, error)
	FindCoveringSlot(ctx context.Context, psychologistID string, at time.Time) (domain.AvailabilitySlot, error)
	ListOverlappingSlots(ctx context.Context, psychologistID string, start, end time.Time, excludeID uuid.UUID) ([]domain.AvailabilitySlot, error)
	InsertSlot(ctx context.Context, slot domain.AvailabilitySlot) (domain.AvailabilitySlot, error)
	UpdateSlot(ctx context.Context, slot domain.AvailabilitySlot) error
	DeleteSlot(ctx context.Context, id uuid.UUID) error
	InsertSeries(ctx context.Context, series domain.AvailabilitySeries) (domain.AvailabilitySeries, error)

	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ListConflicts(ctx context.Context, psychologistID string, start, end time.Time, excludeID uuid.UUID) ([]domain.Appointment, error)
	ListActiveBetween(ctx context.Context, psychologistID string, start, end time.Time) ([]domain.Appointment, error)
	InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	UpdateAppointment(ctx context.Context, appt domain.Appointment) error
	AppendEvent(ctx context.Context, ev domain.AppointmentEvent) error

	GetCase(ctx context.Context, id uuid.UUID) (domain.Case, error)
	FindCaseForPair(ctx context.Context, studentID, psychologistID string) (domain.Case, error)
	FindCaseByAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Case, error)
	ListCaseAppointments(ctx context.Context, caseID uuid.UUID) ([]domain.Appointment, error)
	InsertCase(ctx context.Context, c domain.Case) (domain.Case, error)
	UpdateCase(ctx context.Context, c domain.Case) error
	LinkAppointment(ctx context.Context, caseID, appointmentID uuid.UUID) error
	UnlinkAppointment(ctx context.Context, caseID, appointmentID uuid.UUID) error
}

type SchedulingRepository interface {
	InPsychologistTransaction(ctx context.Context, psychologistID string, fn func(ctx context.Context, tx SchedulingTx) error) error

	GetSlot(ctx context.Context, id uuid.UUID) (domain.AvailabilitySlot, error)
	ListSlots(ctx context.Context, f SlotFilter) ([]domain.AvailabilitySlot, error)

	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]domain.Appointment, error)
	CountByStatus(ctx context.Context, psychologistID string, from, to time.Time) (map[domain.AppointmentStatus]int, error)
	MarkReminderSent(ctx context.Context, appointmentID uuid.UUID, date time.Time) (bool, error)
	ListPsychologistsWithSessions(ctx context.Context, from, to time.Time) ([]string, error)

	GetCase(ctx context.Context, id uuid.UUID) (domain.Case, error)
	ListCases(ctx context.Context, f CaseFilter) ([]domain.Case, error)
	ListCaseAppointments(ctx context.Context, caseID uuid.UUID) ([]domain.Appointment, error)
}

type NotificationRepository interface {
	Insert(ctx context.Context, n domain.Notification) (domain.Notification, error)
	ListForRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID, recipientID string) error
}

type UserRepository interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
}
