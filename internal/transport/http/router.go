package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"counseling/backend/internal/domain"
	"counseling/backend/internal/service/scheduling"
)

type SchedulingService interface {
	CreateSlot(ctx context.Context, in scheduling.CreateSlotInput) (domain.AvailabilitySlot, error)
	ListSlots(ctx context.Context, psychologistID string, from, to *time.Time) ([]domain.AvailabilitySlot, error)
	UpdateSlot(ctx context.Context, slotID uuid.UUID, upd scheduling.SlotUpdate, actorID string) (scheduling.SlotResult, error)
	DeleteSlot(ctx context.Context, slotID uuid.UUID, actorID string) error
	BlockSlot(ctx context.Context, slotID uuid.UUID, reason, actorID string) (scheduling.SlotResult, error)
	CreateRecurringSlots(ctx context.Context, in scheduling.RecurringSlotsInput) (scheduling.RecurringSlotsResult, error)

	Book(ctx context.Context, in scheduling.BookInput) (scheduling.AppointmentResult, error)
	Confirm(ctx context.Context, appointmentID uuid.UUID) (scheduling.AppointmentResult, error)
	Modify(ctx context.Context, appointmentID uuid.UUID, newDate time.Time, senderID string) (scheduling.AppointmentResult, error)
	Cancel(ctx context.Context, appointmentID uuid.UUID, reason, senderID string) (scheduling.AppointmentResult, error)
	ListAppointments(ctx context.Context, q scheduling.AppointmentQuery) ([]domain.Appointment, error)
	ListAvailableSlots(ctx context.Context, psychologistID string, from, to *time.Time) ([]domain.AvailabilitySlot, error)
	UpcomingForStudent(ctx context.Context, studentID string) ([]domain.Appointment, error)
	TodaySessions(ctx context.Context, psychologistID string, day time.Time) ([]domain.Appointment, error)
	PendingReminders(ctx context.Context) ([]domain.Appointment, error)
	Stats(ctx context.Context, psychologistID string, from, to *time.Time) (scheduling.Stats, error)
	SendReminder(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	SendDailySummary(ctx context.Context, psychologistID string, day time.Time) ([]domain.Appointment, error)

	CreateCase(ctx context.Context, in scheduling.CreateCaseInput) (domain.Case, error)
	ListCases(ctx context.Context, q scheduling.CaseQuery) ([]domain.Case, error)
	GetCase(ctx context.Context, caseID uuid.UUID) (scheduling.CaseDetail, error)
	UpdateCase(ctx context.Context, caseID uuid.UUID, upd scheduling.CaseUpdate, actorID string) (domain.Case, error)
	Resolve(ctx context.Context, caseID uuid.UUID, actorID string) (domain.Case, error)
}

type NotificationService interface {
	List(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID, recipientID string) error
}

type RouterConfig struct {
	Scheduling    SchedulingService
	Notifications NotificationService
	Health        *HealthHandler
	Log           *slog.Logger
}

type handler struct {
	svc   SchedulingService
	notes NotificationService
	log   *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	h := &handler{svc: cfg.Scheduling, notes: cfg.Notifications, log: log.With(slog.String("component", "http"))}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(middleware.Recoverer)

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	r.Route("/slots", func(r chi.Router) {
		r.Post("/", h.createSlot)
		r.Get("/", h.listSlots)
		r.Post("/recurring", h.createRecurringSlots)
		r.Patch("/{id}", h.updateSlot)
		r.Delete("/{id}", h.deleteSlot)
		r.Post("/{id}/block", h.blockSlot)
	})

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", h.book)
		r.Get("/", h.listAppointments)
		r.Get("/available", h.listAvailableSlots)
		r.Get("/upcoming", h.upcoming)
		r.Get("/today", h.today)
		r.Get("/stats", h.stats)
		r.Get("/reminders/pending", h.pendingReminders)
		r.Post("/{id}/confirm", h.confirm)
		r.Patch("/{id}", h.modify)
		r.Delete("/{id}", h.cancel)
		r.Post("/{id}/reminder", h.sendReminder)
	})

	r.Post("/psychologists/{id}/summary", h.sendDailySummary)

	r.Route("/cases", func(r chi.Router) {
		r.Post("/", h.createCase)
		r.Get("/", h.listCases)
		r.Get("/{id}", h.getCase)
		r.Patch("/{id}", h.updateCase)
		r.Post("/{id}/resolve", h.resolveCase)
	})

	r.Get("/notifications", h.listNotifications)
	r.Post("/notifications/{id}/read", h.markNotificationRead)

	return r
}
