package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"counseling/backend/internal/domain"
	"counseling/backend/internal/service/scheduling"
)

type bookRequest struct {
	PsychologistID string          `json:"psychologist_id"`
	Date           time.Time       `json:"date"`
	Priority       domain.Priority `json:"priority"`
}

func (h *handler) book(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req bookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Book(r.Context(), scheduling.BookInput{
		StudentID:      actor,
		PsychologistID: req.PsychologistID,
		Date:           req.Date,
		Priority:       req.Priority,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, ok := queryRange(w, r)
	if !ok {
		return
	}
	var statuses []domain.AppointmentStatus
	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, domain.AppointmentStatus(strings.TrimSpace(s)))
		}
	}
	appts, err := h.svc.ListAppointments(r.Context(), scheduling.AppointmentQuery{
		StudentID:      q.Get("student_id"),
		PsychologistID: q.Get("psychologist_id"),
		Statuses:       statuses,
		From:           from,
		To:             to,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, appts)
}

func (h *handler) listAvailableSlots(w http.ResponseWriter, r *http.Request) {
	from, to, ok := queryRange(w, r)
	if !ok {
		return
	}
	slots, err := h.svc.ListAvailableSlots(r.Context(), r.URL.Query().Get("psychologist_id"), from, to)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (h *handler) upcoming(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	appts, err := h.svc.UpcomingForStudent(r.Context(), actor)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, appts)
}

func (h *handler) today(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	day, err := queryDay(r, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	appts, err := h.svc.TodaySessions(r.Context(), actor, day)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, appts)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	from, to, ok := queryRange(w, r)
	if !ok {
		return
	}
	st, err := h.svc.Stats(r.Context(), actor, from, to)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) pendingReminders(w http.ResponseWriter, r *http.Request) {
	appts, err := h.svc.PendingReminders(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, appts)
}

func (h *handler) confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Confirm(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type modifyRequest struct {
	Date time.Time `json:"date"`
}

func (h *handler) modify(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req modifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Modify(r.Context(), id, req.Date, actor)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Cancel(r.Context(), id, req.Reason, actor)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) sendReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.SendReminder(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type summaryResponse struct {
	PsychologistID string               `json:"psychologist_id"`
	Sessions       []domain.Appointment `json:"sessions"`
}

func (h *handler) sendDailySummary(w http.ResponseWriter, r *http.Request) {
	psych := chi.URLParam(r, "id")
	day, err := queryDay(r, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	sessions, err := h.svc.SendDailySummary(r.Context(), psych, day)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{PsychologistID: psych, Sessions: sessions})
}
