package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"counseling/backend/internal/domain"
	"counseling/backend/internal/store"
)

// Notifier delivers a user-facing message. Failures never undo a committed change.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

type IdentityLookup interface {
	FindUser(ctx context.Context, id string) (domain.User, error)
}

// ReminderSender reports whether a message was handed off for delivery.
type ReminderSender interface {
	SendAppointmentReminder(ctx context.Context, appt domain.Appointment, student domain.User) bool
	SendDailySummary(ctx context.Context, psychologist domain.User, appts []domain.Appointment) bool
}

type Policy struct {
	// BookingWindow is how long a booked appointment occupies the timeline.
	BookingWindow time.Duration
	// ModifyWindow is the stretch a slot must cover when a new date is revalidated.
	ModifyWindow time.Duration
	// RevalidateAlways re-checks availability on every modify, not only the student's.
	RevalidateAlways bool
	ReminderLead     time.Duration
	NotifyTimeout    time.Duration
	Location         *time.Location
}

func DefaultPolicy() Policy {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		loc = time.UTC
	}
	return Policy{
		BookingWindow: 30 * time.Minute,
		ModifyWindow:  60 * time.Minute,
		ReminderLead:  24 * time.Hour,
		NotifyTimeout: 5 * time.Second,
		Location:      loc,
	}
}

type Service struct {
	repo      store.SchedulingRepository
	notifier  Notifier
	users     IdentityLookup
	reminders ReminderSender
	policy    Policy
	log       *slog.Logger
	now       func() time.Time
}

func NewService(repo store.SchedulingRepository, notifier Notifier, users IdentityLookup, reminders ReminderSender, policy Policy, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	return &Service{
		repo:      repo,
		notifier:  notifier,
		users:     users,
		reminders: reminders,
		policy:    policy,
		log:       log.With(slog.String("component", "scheduling")),
		now:       time.Now,
	}
}

// notice is a notification collected inside a transaction and sent once it commits.
type notice struct {
	recipient string
	sender    string
	kind      domain.NotificationType
	appt      domain.Appointment
	reason    string
	blocked   bool
}

func (s *Service) dispatch(ctx context.Context, notices []notice) {
	if len(notices) == 0 || s.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, n := range notices {
		msg := s.message(ctx, n)
		subject := n.appt.ID
		nctx, cancel := context.WithTimeout(ctx, s.policy.NotifyTimeout)
		err := s.notifier.Notify(nctx, domain.Notification{
			RecipientID: n.recipient,
			SenderID:    n.sender,
			Type:        n.kind,
			SubjectID:   &subject,
			Message:     msg,
		})
		cancel()
		if err != nil {
			s.log.Warn("notification not delivered",
				slog.String("recipient", n.recipient),
				slog.String("type", string(n.kind)),
				slog.String("appointment_id", subject.String()),
				slog.Any("error", err),
			)
		}
	}
}

func (s *Service) message(ctx context.Context, n notice) string {
	when := s.formatTime(n.appt.Date)
	name := s.displayName(ctx, n.sender)
	switch n.kind {
	case domain.NotificationAppointmentBooked:
		return fmt.Sprintf("New appointment request from %s on %s", name, when)
	case domain.NotificationAppointmentConfirmed:
		return fmt.Sprintf("Your appointment on %s has been confirmed by %s", when, name)
	case domain.NotificationAppointmentModified:
		return fmt.Sprintf("Your appointment has been moved to %s by %s", when, name)
	case domain.NotificationAppointmentCancelled:
		msg := fmt.Sprintf("Your appointment on %s has been cancelled by %s", when, name)
		if n.blocked {
			msg = fmt.Sprintf("Your appointment on %s was cancelled because the time slot was blocked by %s", when, name)
		}
		if n.reason != "" {
			msg += fmt.Sprintf(" (Reason: %s)", n.reason)
		}
		return msg
	default:
		return fmt.Sprintf("Appointment update for %s", when)
	}
}

func (s *Service) displayName(ctx context.Context, id string) string {
	if s.users == nil {
		return id
	}
	u, err := s.users.FindUser(ctx, id)
	if err != nil || u.Name == "" {
		if err != nil {
			s.log.Debug("display name lookup failed", slog.String("user_id", id), slog.Any("error", err))
		}
		return id
	}
	return u.Name
}

func (s *Service) formatTime(t time.Time) string {
	return t.In(s.policy.Location).Format("Mon 02 Jan 2006 15:04")
}

func (s *Service) dayBounds(day time.Time) (time.Time, time.Time) {
	d := day.In(s.policy.Location)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.policy.Location)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

func requireID(id uuid.UUID, field string) error {
	if id == uuid.Nil {
		return validationError(field + " is required")
	}
	return nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
