package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type CaseStatus string

const (
	CaseStatusPending    CaseStatus = "pending"
	CaseStatusInProgress CaseStatus = "in_progress"
	CaseStatusResolved   CaseStatus = "resolved"
)

// Case is the long-lived relationship between one student and one psychologist.
// Status is never written directly; it moves only through Transition.
type Case struct {
	bun.BaseModel `bun:"table:cases,alias:c"`

	ID             uuid.UUID   `bun:"id,pk,type:uuid" json:"id"`
	StudentID      string      `bun:"student_id,notnull" json:"student_id"`
	PsychologistID string      `bun:"psychologist_id,notnull" json:"psychologist_id"`
	Status         CaseStatus  `bun:"status,notnull" json:"status"`
	Priority       Priority    `bun:"priority,notnull" json:"priority"`
	Notes          string      `bun:"notes" json:"notes,omitempty"`
	Archived       bool        `bun:"archived,notnull" json:"archived"`
	Appointments   []uuid.UUID `bun:"-" json:"appointments"`
	CreatedAt      time.Time   `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt      time.Time   `bun:"updated_at,notnull" json:"updated_at"`
}

func (c *Case) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, &c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (c Case) Linked(appointmentID uuid.UUID) bool {
	for _, id := range c.Appointments {
		if id == appointmentID {
			return true
		}
	}
	return false
}

// CaseLink is the ordered membership of an appointment in a case.
type CaseLink struct {
	bun.BaseModel `bun:"table:case_appointments"`

	CaseID        uuid.UUID `bun:"case_id,pk,type:uuid"`
	AppointmentID uuid.UUID `bun:"appointment_id,pk,type:uuid"`
	LinkedAt      time.Time `bun:"linked_at,notnull"`
}

type CaseEvent string

const (
	CaseEventAttached  CaseEvent = "appointment_attached"
	CaseEventConfirmed CaseEvent = "appointment_confirmed"
	CaseEventDetached  CaseEvent = "appointment_detached"
	CaseEventMoved     CaseEvent = "appointment_moved"
	CaseEventResolved  CaseEvent = "resolved"
)

type CaseState struct {
	Status   CaseStatus
	Archived bool
}

// Transition is the case state machine. linked holds the appointments still
// attached to the case after the event has been applied.
func Transition(cur CaseState, ev CaseEvent, linked []Appointment) CaseState {
	switch ev {
	case CaseEventAttached:
		if cur.Archived || cur.Status == CaseStatusResolved {
			return CaseState{Status: CaseStatusPending}
		}
		return cur
	case CaseEventConfirmed:
		if cur.Status == CaseStatusPending {
			cur.Status = CaseStatusInProgress
		}
		return cur
	case CaseEventDetached, CaseEventMoved:
		cur.Status = DeriveStatus(cur.Status, linked)
		return cur
	case CaseEventResolved:
		return CaseState{Status: CaseStatusResolved, Archived: true}
	default:
		return cur
	}
}

// DeriveStatus recomputes a case status from its linked appointments.
// Resolved is sticky.
func DeriveStatus(cur CaseStatus, linked []Appointment) CaseStatus {
	if cur == CaseStatusResolved {
		return cur
	}
	var pending, confirmed bool
	for _, a := range linked {
		switch a.Status {
		case AppointmentStatusPending:
			pending = true
		case AppointmentStatusConfirmed:
			confirmed = true
		}
	}
	switch {
	case pending:
		return CaseStatusPending
	case confirmed:
		return CaseStatusInProgress
	default:
		return CaseStatusPending
	}
}

// Apply runs Transition against the case in place.
func (c *Case) Apply(ev CaseEvent, linked []Appointment) {
	next := Transition(CaseState{Status: c.Status, Archived: c.Archived}, ev, linked)
	c.Status = next.Status
	c.Archived = next.Archived
}
