package reminders

import (
	"fmt"

	"github.com/hibiken/asynq"
)

type Registrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
}

// RegisterSchedule installs the daily sweep and summary cron entries.
func RegisterSchedule(r Registrar, sweepCron, summaryCron, queue string) error {
	if _, err := r.Register(sweepCron, NewSweepTask(), asynq.Queue(queue)); err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}
	if _, err := r.Register(summaryCron, NewDailySummariesTask(), asynq.Queue(queue)); err != nil {
		return fmt.Errorf("register summaries: %w", err)
	}
	return nil
}
