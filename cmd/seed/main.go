package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"counseling/backend/internal/app"
	"counseling/backend/internal/config"
	"counseling/backend/internal/domain"
	"counseling/backend/internal/identity"
	"counseling/backend/internal/service/scheduling"
	"counseling/backend/internal/store/postgres"
)

const serviceName = "seed"

func main() {
	psychologists := flag.Int("psychologists", 5, "number of psychologists to create")
	students := flag.Int("students", 50, "number of students to create")
	weeks := flag.Int("weeks", 4, "weeks of weekday morning availability per psychologist")
	flag.Parse()

	log := app.NewLogger(serviceName, "info")
	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	log.Info("connecting to database", app.DatabaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{MaxOpenConns: 4})
	if err != nil {
		log.Error("database connection failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	policy, err := app.Policy(cfg.Scheduling)
	if err != nil {
		log.Error("invalid scheduling settings", slog.Any("err", err))
		os.Exit(1)
	}

	users := postgres.NewUserRepo(db)
	svc := scheduling.NewService(
		postgres.NewSchedulingRepo(db, cfg.Scheduling.TxMaxAttempts),
		nil,
		identity.NewLookup(users, log),
		nil,
		policy,
		log,
	)

	psychIDs, err := seedUsers(ctx, users, domain.RolePsychologist, *psychologists)
	if err != nil {
		log.Error("seed psychologists failed", slog.Any("err", err))
		os.Exit(1)
	}
	if _, err := seedUsers(ctx, users, domain.RoleStudent, *students); err != nil {
		log.Error("seed students failed", slog.Any("err", err))
		os.Exit(1)
	}

	start := nextMonday(time.Now().In(policy.Location), 9)
	count := *weeks * 5
	for _, id := range psychIDs {
		res, err := svc.CreateRecurringSlots(ctx, scheduling.RecurringSlotsInput{
			PsychologistID: id,
			StartTime:      start,
			EndTime:        start.Add(3 * time.Hour),
			Weekdays:       []int16{1, 2, 3, 4, 5},
			Count:          &count,
			TimeZone:       policy.Location.String(),
		})
		if err != nil {
			log.Error("seed availability failed", slog.String("psychologist_id", id), slog.Any("err", err))
			os.Exit(1)
		}
		log.Info("availability seeded", slog.String("psychologist_id", id), slog.Int("slots", len(res.Slots)))
	}

	log.Info("seed complete",
		slog.Int("psychologists", len(psychIDs)),
		slog.Int("students", *students),
	)
}

func seedUsers(ctx context.Context, repo *postgres.UserRepo, role string, count int) ([]string, error) {
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		first, last := gofakeit.FirstName(), gofakeit.LastName()
		u := domain.User{
			ID:    fmt.Sprintf("%s-%04d", role, i+1),
			Name:  first + " " + last,
			Email: strings.ToLower(first+"."+last) + "@university.test",
			Roles: []string{role},
		}
		if err := repo.UpsertUser(ctx, u); err != nil {
			return nil, fmt.Errorf("upsert %s: %w", u.ID, err)
		}
		ids = append(ids, u.ID)
	}
	return ids, nil
}

// nextMonday returns the coming Monday at hour, local to t.
func nextMonday(t time.Time, hour int) time.Time {
	days := (int(time.Monday) - int(t.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	d := t.AddDate(0, 0, days)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, t.Location())
}
