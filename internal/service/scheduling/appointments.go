package scheduling

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"counseling/backend/internal/domain"
	"counseling/backend/internal/store"
)

const upcomingLimit = 5

type BookInput struct {
	StudentID      string
	PsychologistID string
	Date           time.Time
	Priority       domain.Priority
}

type AppointmentResult struct {
	Appointment domain.Appointment `json:"appointment"`
	Case        *domain.Case       `json:"case,omitempty"`
}

// Book creates a pending appointment and attaches it to the pair's case.
func (s *Service) Book(ctx context.Context, in BookInput) (AppointmentResult, error) {
	if in.StudentID == "" {
		return AppointmentResult{}, validationError("student_id is required")
	}
	if in.PsychologistID == "" {
		return AppointmentResult{}, validationError("psychologist_id is required")
	}
	if in.StudentID == in.PsychologistID {
		return AppointmentResult{}, validationError("student and psychologist must differ")
	}
	if in.Date.IsZero() {
		return AppointmentResult{}, validationError("date is required")
	}
	priority := in.Priority
	if priority == "" {
		priority = domain.PriorityRegular
	}
	if !priority.Valid() {
		return AppointmentResult{}, validationError("invalid priority")
	}
	date := in.Date.UTC()
	end := date.Add(s.policy.BookingWindow)

	var (
		res     AppointmentResult
		notices []notice
	)
	err := s.repo.InPsychologistTransaction(ctx, in.PsychologistID, func(ctx context.Context, tx store.SchedulingTx) error {
		res, notices = AppointmentResult{}, nil

		slot, err := tx.FindCoveringSlot(ctx, in.PsychologistID, date)
		switch {
		case err == nil:
			if slot.Status == domain.SlotStatusBlocked {
				return ErrSlotBlocked
			}
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		conflicts, err := tx.ListConflicts(ctx, in.PsychologistID, date, end, uuid.Nil)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return ErrSlotTaken
		}

		appt, err := tx.InsertAppointment(ctx, domain.Appointment{
			StudentID:      in.StudentID,
			PsychologistID: in.PsychologistID,
			Date:           date,
			EndsAt:         end,
			Status:         domain.AppointmentStatusPending,
			Priority:       priority,
		})
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrSlotTaken
			}
			return err
		}

		c, err := s.attach(ctx, tx, appt)
		if err != nil {
			return err
		}
		if err := s.record(ctx, tx, appt, domain.AppointmentEventBooked, in.StudentID, ""); err != nil {
			return err
		}

		res = AppointmentResult{Appointment: appt, Case: &c}
		notices = append(notices, notice{
			recipient: in.PsychologistID,
			sender:    in.StudentID,
			kind:      domain.NotificationAppointmentBooked,
			appt:      appt,
		})
		return nil
	})
	if err != nil {
		return AppointmentResult{}, err
	}
	s.log.Info("appointment booked", slog.String("op", "Book"), slog.String("appointment_id", res.Appointment.ID.String()), slog.String("psychologist_id", in.PsychologistID))
	s.dispatch(ctx, notices)
	return res, nil
}

// Confirm accepts a pending appointment. Confirming twice is a no-op for the
// appointment itself. A reminder goes out right away when the session is near.
func (s *Service) Confirm(ctx context.Context, appointmentID uuid.UUID) (AppointmentResult, error) {
	if err := requireID(appointmentID, "appointment_id"); err != nil {
		return AppointmentResult{}, err
	}
	current, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return AppointmentResult{}, err
	}

	var (
		res     AppointmentResult
		notices []notice
	)
	err = s.repo.InPsychologistTransaction(ctx, current.PsychologistID, func(ctx context.Context, tx store.SchedulingTx) error {
		res, notices = AppointmentResult{}, nil

		appt, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if appt.Status == domain.AppointmentStatusCancelled {
			return ErrInvalidTransition
		}
		appt.Status = domain.AppointmentStatusConfirmed
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}

		c, err := tx.FindCaseByAppointment(ctx, appt.ID)
		if errors.Is(err, store.ErrNotFound) {
			c, err = s.attach(ctx, tx, appt)
		}
		if err != nil {
			return err
		}
		c.Apply(domain.CaseEventConfirmed, nil)
		if err := tx.UpdateCase(ctx, c); err != nil {
			return err
		}
		if err := s.record(ctx, tx, appt, domain.AppointmentEventConfirmed, appt.PsychologistID, ""); err != nil {
			return err
		}

		res = AppointmentResult{Appointment: appt, Case: &c}
		notices = append(notices, notice{
			recipient: appt.StudentID,
			sender:    appt.PsychologistID,
			kind:      domain.NotificationAppointmentConfirmed,
			appt:      appt,
		})
		return nil
	})
	if err != nil {
		return AppointmentResult{}, err
	}
	s.log.Info("appointment confirmed", slog.String("op", "Confirm"), slog.String("appointment_id", appointmentID.String()))
	s.dispatch(ctx, notices)

	appt := res.Appointment
	if !appt.ReminderSent && appt.Date.Sub(s.now()) <= s.policy.ReminderLead {
		if sent, err := s.remind(ctx, appt); sent && err == nil {
			res.Appointment.ReminderSent = true
		}
	}
	return res, nil
}

// Modify moves an appointment to a new date. The appointment goes back to
// pending and owes a fresh reminder.
func (s *Service) Modify(ctx context.Context, appointmentID uuid.UUID, newDate time.Time, senderID string) (AppointmentResult, error) {
	if err := requireID(appointmentID, "appointment_id"); err != nil {
		return AppointmentResult{}, err
	}
	if senderID == "" {
		return AppointmentResult{}, validationError("sender_id is required")
	}
	if newDate.IsZero() {
		return AppointmentResult{}, validationError("date is required")
	}
	date := newDate.UTC()
	if date.Before(s.now()) {
		return AppointmentResult{}, ErrPastDate
	}
	current, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return AppointmentResult{}, err
	}

	var (
		res     AppointmentResult
		notices []notice
	)
	err = s.repo.InPsychologistTransaction(ctx, current.PsychologistID, func(ctx context.Context, tx store.SchedulingTx) error {
		res, notices = AppointmentResult{}, nil

		appt, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if senderID != appt.StudentID && senderID != appt.PsychologistID {
			return ErrUnauthorized
		}
		if appt.Status == domain.AppointmentStatusCancelled {
			return ErrInvalidTransition
		}

		if senderID == appt.StudentID || s.policy.RevalidateAlways {
			ok, err := s.fitsAvailability(ctx, tx, appt, date)
			if err != nil {
				return err
			}
			if !ok {
				return ErrSlotUnavailable
			}
		}

		appt.Date = date
		appt.EndsAt = date.Add(s.policy.BookingWindow)
		appt.Status = domain.AppointmentStatusPending
		appt.ReminderSent = false
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrSlotTaken
			}
			return err
		}

		var casePtr *domain.Case
		c, err := tx.FindCaseByAppointment(ctx, appt.ID)
		switch {
		case err == nil:
			linked, err := tx.ListCaseAppointments(ctx, c.ID)
			if err != nil {
				return err
			}
			c.Apply(domain.CaseEventMoved, linked)
			if err := tx.UpdateCase(ctx, c); err != nil {
				return err
			}
			casePtr = &c
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		if err := s.record(ctx, tx, appt, domain.AppointmentEventModified, senderID, ""); err != nil {
			return err
		}

		res = AppointmentResult{Appointment: appt, Case: casePtr}
		notices = append(notices, notice{
			recipient: appt.Counterpart(senderID),
			sender:    senderID,
			kind:      domain.NotificationAppointmentModified,
			appt:      appt,
		})
		return nil
	})
	if err != nil {
		return AppointmentResult{}, err
	}
	s.log.Info("appointment modified", slog.String("op", "Modify"), slog.String("appointment_id", appointmentID.String()), slog.String("sender_id", senderID))
	s.dispatch(ctx, notices)
	return res, nil
}

// fitsAvailability reports whether [date, date+ModifyWindow] sits inside one
// available slot and clears every other active appointment.
func (s *Service) fitsAvailability(ctx context.Context, tx store.SchedulingTx, appt domain.Appointment, date time.Time) (bool, error) {
	end := date.Add(s.policy.ModifyWindow)
	slot, err := tx.FindCoveringSlot(ctx, appt.PsychologistID, date)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if slot.Status != domain.SlotStatusAvailable || !slot.Contains(date, end) {
		return false, nil
	}
	conflicts, err := tx.ListConflicts(ctx, appt.PsychologistID, date, end, appt.ID)
	if err != nil {
		return false, err
	}
	return len(conflicts) == 0, nil
}

// Cancel cancels an appointment on behalf of either party and detaches it from
// its case.
func (s *Service) Cancel(ctx context.Context, appointmentID uuid.UUID, reason, senderID string) (AppointmentResult, error) {
	if err := requireID(appointmentID, "appointment_id"); err != nil {
		return AppointmentResult{}, err
	}
	if senderID == "" {
		return AppointmentResult{}, validationError("sender_id is required")
	}
	current, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return AppointmentResult{}, err
	}
	reason = strings.TrimSpace(reason)

	var (
		res     AppointmentResult
		notices []notice
	)
	err = s.repo.InPsychologistTransaction(ctx, current.PsychologistID, func(ctx context.Context, tx store.SchedulingTx) error {
		res, notices = AppointmentResult{}, nil

		appt, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if senderID != appt.StudentID && senderID != appt.PsychologistID {
			return ErrUnauthorized
		}
		if appt.Status == domain.AppointmentStatusCancelled {
			return ErrInvalidTransition
		}

		updated, c, err := s.cancelLocked(ctx, tx, appt, reason, senderID)
		if err != nil {
			return err
		}
		res = AppointmentResult{Appointment: updated, Case: c}
		notices = append(notices, notice{
			recipient: updated.Counterpart(senderID),
			sender:    senderID,
			kind:      domain.NotificationAppointmentCancelled,
			appt:      updated,
			reason:    reason,
		})
		return nil
	})
	if err != nil {
		return AppointmentResult{}, err
	}
	s.log.Info("appointment cancelled", slog.String("op", "Cancel"), slog.String("appointment_id", appointmentID.String()), slog.String("sender_id", senderID))
	s.dispatch(ctx, notices)
	return res, nil
}

// cancelLocked cancels appt inside tx and recomputes its case, if any.
func (s *Service) cancelLocked(ctx context.Context, tx store.SchedulingTx, appt domain.Appointment, reason, actorID string) (domain.Appointment, *domain.Case, error) {
	appt.Status = domain.AppointmentStatusCancelled
	appt.ReasonForCancellation = strPtr(reason)
	appt.CancelledBy = strPtr(actorID)
	if err := tx.UpdateAppointment(ctx, appt); err != nil {
		return domain.Appointment{}, nil, err
	}

	var casePtr *domain.Case
	c, err := tx.FindCaseByAppointment(ctx, appt.ID)
	switch {
	case err == nil:
		if err := tx.UnlinkAppointment(ctx, c.ID, appt.ID); err != nil {
			return domain.Appointment{}, nil, err
		}
		linked, err := tx.ListCaseAppointments(ctx, c.ID)
		if err != nil {
			return domain.Appointment{}, nil, err
		}
		c.Apply(domain.CaseEventDetached, linked)
		c.Appointments = appointmentIDs(linked)
		if err := tx.UpdateCase(ctx, c); err != nil {
			return domain.Appointment{}, nil, err
		}
		casePtr = &c
	case !errors.Is(err, store.ErrNotFound):
		return domain.Appointment{}, nil, err
	}

	if err := s.record(ctx, tx, appt, domain.AppointmentEventCancelled, actorID, reason); err != nil {
		return domain.Appointment{}, nil, err
	}
	return appt, casePtr, nil
}

func (s *Service) record(ctx context.Context, tx store.SchedulingTx, appt domain.Appointment, kind domain.AppointmentEventKind, actorID, reason string) error {
	return tx.AppendEvent(ctx, domain.AppointmentEvent{
		AppointmentID: appt.ID,
		ActorID:       actorID,
		Kind:          kind,
		Reason:        strPtr(reason),
		OccurredAt:    s.now().UTC(),
	})
}

type AppointmentQuery struct {
	StudentID      string
	PsychologistID string
	Statuses       []domain.AppointmentStatus
	From           *time.Time
	To             *time.Time
}

func (s *Service) ListAppointments(ctx context.Context, q AppointmentQuery) ([]domain.Appointment, error) {
	for _, st := range q.Statuses {
		switch st {
		case domain.AppointmentStatusPending, domain.AppointmentStatusConfirmed, domain.AppointmentStatusCancelled:
		default:
			return nil, validationError("invalid status filter")
		}
	}
	if q.From != nil && q.To != nil && !q.From.Before(*q.To) {
		return nil, ErrInvalidRange
	}
	return s.repo.ListAppointments(ctx, store.AppointmentFilter{
		StudentID:      q.StudentID,
		PsychologistID: q.PsychologistID,
		Statuses:       q.Statuses,
		From:           q.From,
		To:             q.To,
	})
}

// ListAvailableSlots returns available slots that no active appointment starts inside.
func (s *Service) ListAvailableSlots(ctx context.Context, psychologistID string, from, to *time.Time) ([]domain.AvailabilitySlot, error) {
	if psychologistID == "" {
		return nil, validationError("psychologist_id is required")
	}
	slots, err := s.repo.ListSlots(ctx, store.SlotFilter{
		PsychologistID: psychologistID,
		Status:         domain.SlotStatusAvailable,
		From:           from,
		To:             to,
	})
	if err != nil || len(slots) == 0 {
		return slots, err
	}

	lo, hi := slots[0].StartTime, slots[0].EndTime
	for _, sl := range slots[1:] {
		if sl.StartTime.Before(lo) {
			lo = sl.StartTime
		}
		if sl.EndTime.After(hi) {
			hi = sl.EndTime
		}
	}
	appts, err := s.repo.ListAppointments(ctx, store.AppointmentFilter{
		PsychologistID: psychologistID,
		Statuses:       []domain.AppointmentStatus{domain.AppointmentStatusPending, domain.AppointmentStatusConfirmed},
		From:           &lo,
		To:             &hi,
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.AvailabilitySlot, 0, len(slots))
	for _, sl := range slots {
		taken := false
		for _, a := range appts {
			if sl.Covers(a.Date) {
				taken = true
				break
			}
		}
		if !taken {
			out = append(out, sl)
		}
	}
	return out, nil
}

// UpcomingForStudent returns the student's next confirmed sessions.
func (s *Service) UpcomingForStudent(ctx context.Context, studentID string) ([]domain.Appointment, error) {
	if studentID == "" {
		return nil, validationError("student_id is required")
	}
	now := s.now().UTC()
	return s.repo.ListAppointments(ctx, store.AppointmentFilter{
		StudentID: studentID,
		Statuses:  []domain.AppointmentStatus{domain.AppointmentStatusConfirmed},
		From:      &now,
		Limit:     upcomingLimit,
	})
}

// TodaySessions lists a psychologist's confirmed sessions on the calendar day
// containing day, in the scheduling time zone.
func (s *Service) TodaySessions(ctx context.Context, psychologistID string, day time.Time) ([]domain.Appointment, error) {
	if psychologistID == "" {
		return nil, validationError("psychologist_id is required")
	}
	if day.IsZero() {
		day = s.now()
	}
	from, to := s.dayBounds(day)
	return s.repo.ListAppointments(ctx, store.AppointmentFilter{
		PsychologistID: psychologistID,
		Statuses:       []domain.AppointmentStatus{domain.AppointmentStatusConfirmed},
		From:           &from,
		To:             &to,
	})
}

// PendingReminders lists confirmed appointments inside the reminder lead that
// have not been reminded yet.
func (s *Service) PendingReminders(ctx context.Context) ([]domain.Appointment, error) {
	now := s.now().UTC()
	until := now.Add(s.policy.ReminderLead)
	sent := false
	return s.repo.ListAppointments(ctx, store.AppointmentFilter{
		Statuses:     []domain.AppointmentStatus{domain.AppointmentStatusConfirmed},
		From:         &now,
		To:           &until,
		ReminderSent: &sent,
	})
}

type Stats struct {
	PsychologistID string    `json:"psychologist_id"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	Total          int       `json:"total"`
	Pending        int       `json:"pending"`
	Confirmed      int       `json:"confirmed"`
	Cancelled      int       `json:"cancelled"`
}

// Stats counts a psychologist's appointments by status. The period defaults to
// the current month up to now.
func (s *Service) Stats(ctx context.Context, psychologistID string, from, to *time.Time) (Stats, error) {
	if psychologistID == "" {
		return Stats{}, validationError("psychologist_id is required")
	}
	now := s.now().In(s.policy.Location)
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.policy.Location).UTC()
	end := now.UTC()
	if from != nil {
		start = from.UTC()
	}
	if to != nil {
		end = to.UTC()
	}
	if end.Before(start) {
		return Stats{}, ErrInvalidRange
	}

	counts, err := s.repo.CountByStatus(ctx, psychologistID, start, end)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		PsychologistID: psychologistID,
		From:           start,
		To:             end,
		Pending:        counts[domain.AppointmentStatusPending],
		Confirmed:      counts[domain.AppointmentStatusConfirmed],
		Cancelled:      counts[domain.AppointmentStatusCancelled],
	}
	st.Total = st.Pending + st.Confirmed + st.Cancelled
	return st, nil
}

// remind hands one appointment to the reminder sender and flags it on success.
func (s *Service) remind(ctx context.Context, appt domain.Appointment) (bool, error) {
	if s.reminders == nil {
		return false, nil
	}
	student := domain.User{ID: appt.StudentID}
	if s.users != nil {
		u, err := s.users.FindUser(ctx, appt.StudentID)
		if err != nil {
			s.log.Warn("student lookup failed", slog.String("student_id", appt.StudentID), slog.Any("error", err))
		} else {
			student = u
		}
	}
	if !s.reminders.SendAppointmentReminder(ctx, appt, student) {
		s.log.Warn("reminder not sent", slog.String("appointment_id", appt.ID.String()))
		return false, nil
	}
	marked, err := s.repo.MarkReminderSent(ctx, appt.ID, appt.Date)
	if err != nil {
		s.log.Error("mark reminder sent failed", slog.String("appointment_id", appt.ID.String()), slog.Any("error", err))
		return true, err
	}
	if !marked {
		s.log.Info("reminder flag not updated; appointment changed meanwhile", slog.String("appointment_id", appt.ID.String()))
	}
	return true, nil
}

func appointmentIDs(appts []domain.Appointment) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(appts))
	for _, a := range appts {
		ids = append(ids, a.ID)
	}
	return ids
}
