package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"counseling/backend/internal/domain"
	"counseling/backend/internal/redisclient"
	"counseling/backend/internal/service/scheduling"
)

type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Jobs are the batch operations the cron entries trigger.
type Jobs interface {
	SweepReminders(ctx context.Context) (scheduling.Tally, error)
	SendDailySummaries(ctx context.Context, day time.Time) (scheduling.Tally, error)
}

type Worker struct {
	notifier Notifier
	jobs     Jobs
	locker   redisclient.Locker
	loc      *time.Location
	log      *slog.Logger
	now      func() time.Time
}

func NewWorker(notifier Notifier, jobs Jobs, locker redisclient.Locker, loc *time.Location, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Worker{
		notifier: notifier,
		jobs:     jobs,
		locker:   locker,
		loc:      loc,
		log:      log.With(slog.String("component", "reminder_worker")),
		now:      time.Now,
	}
}

func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeAppointmentReminder, w.HandleAppointmentReminder)
	mux.HandleFunc(TypeDailySummary, w.HandleDailySummary)
	mux.HandleFunc(TypeSweep, w.HandleSweep)
	mux.HandleFunc(TypeDailySummaries, w.HandleDailySummaries)
}

func (w *Worker) HandleAppointmentReminder(ctx context.Context, t *asynq.Task) error {
	var p AppointmentReminderPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode reminder payload: %v: %w", err, asynq.SkipRetry)
	}
	subject := p.AppointmentID
	msg := fmt.Sprintf("Reminder: you have a counseling appointment on %s", w.format(p.Date))
	if p.StudentName != "" {
		msg = fmt.Sprintf("Hi %s, reminder: you have a counseling appointment on %s", p.StudentName, w.format(p.Date))
	}
	return w.notifier.Notify(ctx, domain.Notification{
		RecipientID: p.StudentID,
		SenderID:    p.PsychologistID,
		Type:        domain.NotificationAppointmentReminder,
		SubjectID:   &subject,
		Message:     msg,
	})
}

func (w *Worker) HandleDailySummary(ctx context.Context, t *asynq.Task) error {
	var p DailySummaryPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode summary payload: %v: %w", err, asynq.SkipRetry)
	}
	return w.notifier.Notify(ctx, domain.Notification{
		RecipientID: p.PsychologistID,
		SenderID:    p.PsychologistID,
		Type:        domain.NotificationSessionsSummary,
		Message:     w.summary(p.Sessions),
	})
}

func (w *Worker) summary(sessions []Session) string {
	if len(sessions) == 0 {
		return "You have no sessions scheduled for today"
	}
	times := make([]string, 0, len(sessions))
	for _, s := range sessions {
		times = append(times, s.Date.In(w.loc).Format("15:04"))
	}
	noun := "sessions"
	if len(sessions) == 1 {
		noun = "session"
	}
	return fmt.Sprintf("You have %d %s today: %s", len(sessions), noun, strings.Join(times, ", "))
}

func (w *Worker) HandleSweep(ctx context.Context, t *asynq.Task) error {
	return w.locked(ctx, "reminders:sweep", func(ctx context.Context) error {
		tally, err := w.jobs.SweepReminders(ctx)
		if err != nil {
			return err
		}
		w.log.Info("reminder sweep", slog.Int("sent", tally.Sent), slog.Int("failed", tally.Failed))
		return nil
	})
}

func (w *Worker) HandleDailySummaries(ctx context.Context, t *asynq.Task) error {
	day := w.now().In(w.loc)
	return w.locked(ctx, "reminders:summaries:"+day.Format(time.DateOnly), func(ctx context.Context) error {
		tally, err := w.jobs.SendDailySummaries(ctx, day)
		if err != nil {
			return err
		}
		w.log.Info("daily summaries", slog.Int("sent", tally.Sent), slog.Int("failed", tally.Failed))
		return nil
	})
}

// locked runs fn under a Redis lock. Another worker holding it means the run is
// already happening, which is not an error.
func (w *Worker) locked(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if w.locker == nil {
		return fn(ctx)
	}
	err := w.locker.WithLock(ctx, name, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		w.log.Info("skipping run; lock held elsewhere", slog.String("lock", name))
		return nil
	}
	return err
}

func (w *Worker) format(t time.Time) string {
	return t.In(w.loc).Format("Mon 02 Jan 2006 15:04")
}
