package scheduling

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"counseling/backend/internal/domain"
)

// Tally counts the outcome of a batch run.
type Tally struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// SendReminder sends the reminder for one confirmed appointment on demand.
func (s *Service) SendReminder(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	if err := requireID(appointmentID, "appointment_id"); err != nil {
		return domain.Appointment{}, err
	}
	appt, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if appt.Status != domain.AppointmentStatusConfirmed {
		return domain.Appointment{}, ErrInvalidTransition
	}
	sent, err := s.remind(ctx, appt)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !sent {
		return domain.Appointment{}, ErrDeliveryFailed
	}
	appt.ReminderSent = true
	return appt, nil
}

// SweepReminders sends every pending reminder inside the lead window.
func (s *Service) SweepReminders(ctx context.Context) (Tally, error) {
	due, err := s.PendingReminders(ctx)
	if err != nil {
		return Tally{}, err
	}
	var t Tally
	for _, appt := range due {
		if err := ctx.Err(); err != nil {
			return t, err
		}
		sent, err := s.remind(ctx, appt)
		if sent && err == nil {
			t.Sent++
			continue
		}
		t.Failed++
	}
	s.log.Info("reminder sweep finished", slog.Int("sent", t.Sent), slog.Int("failed", t.Failed))
	return t, nil
}

// SendDailySummary sends a psychologist the list of their confirmed sessions on day.
func (s *Service) SendDailySummary(ctx context.Context, psychologistID string, day time.Time) ([]domain.Appointment, error) {
	sessions, err := s.TodaySessions(ctx, psychologistID, day)
	if err != nil {
		return nil, err
	}
	if s.reminders == nil {
		return nil, ErrDeliveryFailed
	}
	psychologist := domain.User{ID: psychologistID}
	if s.users != nil {
		u, err := s.users.FindUser(ctx, psychologistID)
		if err != nil {
			return nil, err
		}
		psychologist = u
	}
	if !s.reminders.SendDailySummary(ctx, psychologist, sessions) {
		return nil, ErrDeliveryFailed
	}
	return sessions, nil
}

// SendDailySummaries sends a summary to every psychologist with a confirmed
// session on day.
func (s *Service) SendDailySummaries(ctx context.Context, day time.Time) (Tally, error) {
	if day.IsZero() {
		day = s.now()
	}
	from, to := s.dayBounds(day)
	ids, err := s.repo.ListPsychologistsWithSessions(ctx, from, to)
	if err != nil {
		return Tally{}, err
	}
	var t Tally
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return t, err
		}
		if _, err := s.SendDailySummary(ctx, id, day); err != nil {
			s.log.Warn("daily summary failed", slog.String("psychologist_id", id), slog.Any("error", err))
			t.Failed++
			continue
		}
		t.Sent++
	}
	s.log.Info("daily summaries finished", slog.Int("sent", t.Sent), slog.Int("failed", t.Failed))
	return t, nil
}
