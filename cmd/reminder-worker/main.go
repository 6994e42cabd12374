package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"counseling/backend/internal/app"
	"counseling/backend/internal/config"
	"counseling/backend/internal/reminders"
)

const serviceName = "reminder-worker"

func main() {
	log := app.NewLogger(serviceName, "info")
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = app.NewLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Wire(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer deps.Close(log)

	worker := reminders.NewWorker(deps.Notifications, deps.Scheduling, deps.Locker, deps.Location, log)
	mux := asynq.NewServeMux()
	worker.Register(mux)

	srv := asynq.NewServer(app.RedisOpt(cfg), asynq.Config{
		Concurrency:     cfg.Reminders.Concurrency,
		Queues:          map[string]int{cfg.Reminders.Queue: 1},
		ShutdownTimeout: cfg.ShutdownTimeout,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error("task failed", slog.String("type", task.Type()), slog.Any("err", err))
		}),
	})

	scheduler := asynq.NewScheduler(app.RedisOpt(cfg), &asynq.SchedulerOpts{Location: deps.Location})
	if err := reminders.RegisterSchedule(scheduler, cfg.Reminders.SweepCron, cfg.Reminders.SummaryCron, cfg.Reminders.Queue); err != nil {
		log.Error("schedule registration failed", slog.Any("err", err))
		os.Exit(1)
	}

	if err := srv.Start(mux); err != nil {
		log.Error("worker start failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		log.Error("scheduler start failed", slog.Any("err", err))
		srv.Shutdown()
		os.Exit(1)
	}

	log.Info("reminder worker started",
		slog.String("queue", cfg.Reminders.Queue),
		slog.String("sweep_cron", cfg.Reminders.SweepCron),
		slog.String("summary_cron", cfg.Reminders.SummaryCron),
		slog.String("timezone", deps.Location.String()),
	)

	<-ctx.Done()
	log.Info("shutdown signal received")
	scheduler.Shutdown()
	srv.Shutdown()
}
