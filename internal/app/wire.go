package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"counseling/backend/internal/config"
	"counseling/backend/internal/identity"
	"counseling/backend/internal/notify"
	"counseling/backend/internal/redisclient"
	"counseling/backend/internal/reminders"
	"counseling/backend/internal/service/scheduling"
	"counseling/backend/internal/store/postgres"
)

const userCacheTTL = 5 * time.Minute

// Deps holds the connections and services shared by the binaries.
type Deps struct {
	DB            *bun.DB
	Redis         *redis.Client
	Tasks         *asynq.Client
	Users         *postgres.UserRepo
	Notifications *notify.Service
	Identity      *identity.Lookup
	Scheduling    *scheduling.Service
	Locker        redisclient.Locker
	Location      *time.Location
}

// Policy turns scheduling settings into the service policy.
func Policy(cfg config.Scheduling) (scheduling.Policy, error) {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return scheduling.Policy{}, fmt.Errorf("time zone %q: %w", cfg.TimeZone, err)
	}
	return scheduling.Policy{
		BookingWindow:    cfg.BookingWindow,
		ModifyWindow:     cfg.ModifyWindow,
		RevalidateAlways: cfg.ModifyRevalidation == config.RevalidateAlways,
		ReminderLead:     cfg.ReminderLead,
		NotifyTimeout:    cfg.NotifyTimeout,
		Location:         loc,
	}, nil
}

// Wire connects to Postgres and Redis and builds the services on top of them.
// On error everything opened so far is closed.
func Wire(ctx context.Context, cfg config.Config, log *slog.Logger) (*Deps, error) {
	policy, err := Policy(cfg.Scheduling)
	if err != nil {
		return nil, err
	}

	d := &Deps{Location: policy.Location}

	log.Info("connecting to database", DatabaseLogArgs(cfg.DatabaseURL)...)
	d.DB, err = postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	d.Redis, err = redisclient.NewClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		d.Close(log)
		return nil, fmt.Errorf("redis: %w", err)
	}

	d.Tasks = asynq.NewClient(RedisOpt(cfg))
	d.Locker = redisclient.NewLocker(d.Redis, cfg.Reminders.LockTTL)

	d.Users = postgres.NewUserRepo(d.DB)
	d.Notifications = notify.NewService(postgres.NewNotificationRepo(d.DB), notify.NewRedisPublisher(d.Redis), log)
	d.Identity = identity.NewLookup(d.Users, log, identity.WithCache(d.Redis, userCacheTTL))
	d.Scheduling = scheduling.NewService(
		postgres.NewSchedulingRepo(d.DB, cfg.Scheduling.TxMaxAttempts),
		d.Notifications,
		d.Identity,
		reminders.NewQueue(d.Tasks, cfg.Reminders.Queue, log),
		policy,
		log,
	)
	return d, nil
}

func RedisOpt(cfg config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	}
}

// PingDB and PingRedis back the readiness checks.
func (d *Deps) PingDB(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

func (d *Deps) PingRedis(ctx context.Context) error {
	return d.Redis.Ping(ctx).Err()
}

func (d *Deps) Close(log *slog.Logger) {
	if d.Tasks != nil {
		if err := d.Tasks.Close(); err != nil {
			log.Warn("task client close failed", slog.Any("err", err))
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			log.Warn("redis close failed", slog.Any("err", err))
		}
	}
	if err := postgres.Close(d.DB); err != nil {
		log.Warn("database close failed", slog.Any("err", err))
	}
}
