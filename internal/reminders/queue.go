package reminders

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"counseling/backend/internal/domain"
)

const deliveryRetries = 5

type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue hands reminders to the worker through asynq. A message counts as sent
// once its delivery task is enqueued.
type Queue struct {
	client Enqueuer
	queue  string
	log    *slog.Logger
}

func NewQueue(client Enqueuer, queue string, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{client: client, queue: queue, log: log.With(slog.String("component", "reminder_queue"))}
}

func (q *Queue) options() []asynq.Option {
	return []asynq.Option{
		asynq.Queue(q.queue),
		asynq.MaxRetry(deliveryRetries),
		asynq.Timeout(30 * time.Second),
	}
}

func (q *Queue) SendAppointmentReminder(ctx context.Context, appt domain.Appointment, student domain.User) bool {
	task, err := NewAppointmentReminderTask(appt, student)
	if err != nil {
		q.log.Error("build reminder task", slog.String("appointment_id", appt.ID.String()), slog.Any("error", err))
		return false
	}
	info, err := q.client.EnqueueContext(ctx, task, q.options()...)
	if err != nil {
		q.log.Warn("enqueue reminder failed", slog.String("appointment_id", appt.ID.String()), slog.Any("error", err))
		return false
	}
	q.log.Debug("reminder enqueued", slog.String("appointment_id", appt.ID.String()), slog.String("task_id", info.ID))
	return true
}

func (q *Queue) SendDailySummary(ctx context.Context, psychologist domain.User, appts []domain.Appointment) bool {
	task, err := NewDailySummaryTask(psychologist, appts)
	if err != nil {
		q.log.Error("build summary task", slog.String("psychologist_id", psychologist.ID), slog.Any("error", err))
		return false
	}
	if _, err := q.client.EnqueueContext(ctx, task, q.options()...); err != nil {
		q.log.Warn("enqueue summary failed", slog.String("psychologist_id", psychologist.ID), slog.Any("error", err))
		return false
	}
	return true
}
