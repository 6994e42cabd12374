package scheduling

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"counseling/backend/internal/domain"
	"counseling/backend/internal/store"
)

// attach links appt to the pair's case, creating one if the pair has none and
// reopening it if it was resolved or archived.
func (s *Service) attach(ctx context.Context, tx store.SchedulingTx, appt domain.Appointment) (domain.Case, error) {
	c, err := tx.FindCaseForPair(ctx, appt.StudentID, appt.PsychologistID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c, err = tx.InsertCase(ctx, domain.Case{
			StudentID:      appt.StudentID,
			PsychologistID: appt.PsychologistID,
			Status:         domain.CaseStatusPending,
			Priority:       appt.Priority,
		})
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return domain.Case{}, ErrCaseExists
			}
			return domain.Case{}, err
		}
	case err != nil:
		return domain.Case{}, err
	default:
		c.Apply(domain.CaseEventAttached, nil)
		if err := tx.UpdateCase(ctx, c); err != nil {
			return domain.Case{}, err
		}
	}

	if !c.Linked(appt.ID) {
		if err := tx.LinkAppointment(ctx, c.ID, appt.ID); err != nil {
			return domain.Case{}, err
		}
		c.Appointments = append(c.Appointments, appt.ID)
	}
	return c, nil
}

type CreateCaseInput struct {
	StudentID      string
	PsychologistID string
	Priority       domain.Priority
	Notes          string
}

// CreateCase opens a case ahead of any booking. A pair has at most one
// non-archived case.
func (s *Service) CreateCase(ctx context.Context, in CreateCaseInput) (domain.Case, error) {
	if in.StudentID == "" {
		return domain.Case{}, validationError("student_id is required")
	}
	if in.PsychologistID == "" {
		return domain.Case{}, validationError("psychologist_id is required")
	}
	priority := in.Priority
	if priority == "" {
		priority = domain.PriorityRegular
	}
	if !priority.Valid() {
		return domain.Case{}, validationError("invalid priority")
	}

	var created domain.Case
	err := s.repo.InPsychologistTransaction(ctx, in.PsychologistID, func(ctx context.Context, tx store.SchedulingTx) error {
		existing, err := tx.FindCaseForPair(ctx, in.StudentID, in.PsychologistID)
		switch {
		case err == nil && !existing.Archived:
			return ErrCaseExists
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return err
		}
		created, err = tx.InsertCase(ctx, domain.Case{
			StudentID:      in.StudentID,
			PsychologistID: in.PsychologistID,
			Status:         domain.CaseStatusPending,
			Priority:       priority,
			Notes:          strings.TrimSpace(in.Notes),
		})
		if errors.Is(err, store.ErrConflict) {
			return ErrCaseExists
		}
		return err
	})
	if err != nil {
		return domain.Case{}, err
	}
	if created.Appointments == nil {
		created.Appointments = []uuid.UUID{}
	}
	return created, nil
}

type CaseUpdate struct {
	Priority *domain.Priority
	Notes    *string
}

// UpdateCase edits the case's own fields. Status only moves through appointment
// events and Resolve.
func (s *Service) UpdateCase(ctx context.Context, caseID uuid.UUID, upd CaseUpdate, actorID string) (domain.Case, error) {
	if err := requireID(caseID, "case_id"); err != nil {
		return domain.Case{}, err
	}
	if upd.Priority != nil && !upd.Priority.Valid() {
		return domain.Case{}, validationError("invalid priority")
	}
	current, err := s.repo.GetCase(ctx, caseID)
	if err != nil {
		return domain.Case{}, err
	}

	var updated domain.Case
	err = s.repo.InPsychologistTransaction(ctx, current.PsychologistID, func(ctx context.Context, tx store.SchedulingTx) error {
		c, err := tx.GetCase(ctx, caseID)
		if err != nil {
			return err
		}
		if actorID != "" && actorID != c.PsychologistID {
			return ErrUnauthorized
		}
		if upd.Priority != nil {
			c.Priority = *upd.Priority
		}
		if upd.Notes != nil {
			c.Notes = strings.TrimSpace(*upd.Notes)
		}
		if err := tx.UpdateCase(ctx, c); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return domain.Case{}, err
	}
	return updated, nil
}

// Resolve closes and archives a case. Only its psychologist may do so.
func (s *Service) Resolve(ctx context.Context, caseID uuid.UUID, actorID string) (domain.Case, error) {
	if err := requireID(caseID, "case_id"); err != nil {
		return domain.Case{}, err
	}
	if actorID == "" {
		return domain.Case{}, validationError("actor_id is required")
	}
	current, err := s.repo.GetCase(ctx, caseID)
	if err != nil {
		return domain.Case{}, err
	}

	var resolved domain.Case
	err = s.repo.InPsychologistTransaction(ctx, current.PsychologistID, func(ctx context.Context, tx store.SchedulingTx) error {
		c, err := tx.GetCase(ctx, caseID)
		if err != nil {
			return err
		}
		if actorID != c.PsychologistID {
			return ErrUnauthorized
		}
		c.Apply(domain.CaseEventResolved, nil)
		if err := tx.UpdateCase(ctx, c); err != nil {
			return err
		}
		resolved = c
		return nil
	})
	if err != nil {
		return domain.Case{}, err
	}
	return resolved, nil
}

type CaseDetail struct {
	domain.Case
	AppointmentDetails []domain.Appointment `json:"appointment_details"`
}

func (s *Service) GetCase(ctx context.Context, caseID uuid.UUID) (CaseDetail, error) {
	if err := requireID(caseID, "case_id"); err != nil {
		return CaseDetail{}, err
	}
	c, err := s.repo.GetCase(ctx, caseID)
	if err != nil {
		return CaseDetail{}, err
	}
	appts, err := s.repo.ListCaseAppointments(ctx, caseID)
	if err != nil {
		return CaseDetail{}, err
	}
	return CaseDetail{Case: c, AppointmentDetails: appts}, nil
}

type CaseQuery struct {
	StudentID      string
	PsychologistID string
	Status         domain.CaseStatus
	Archived       *bool
	// Triage orders emergencies first, then oldest first.
	Triage bool
}

func (s *Service) ListCases(ctx context.Context, q CaseQuery) ([]domain.Case, error) {
	switch q.Status {
	case "", domain.CaseStatusPending, domain.CaseStatusInProgress, domain.CaseStatusResolved:
	default:
		return nil, validationError("invalid case status")
	}
	return s.repo.ListCases(ctx, store.CaseFilter{
		StudentID:      q.StudentID,
		PsychologistID: q.PsychologistID,
		Status:         q.Status,
		Archived:       q.Archived,
		Triage:         q.Triage,
	})
}
