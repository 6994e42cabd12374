package http

import (
	"net/http"

	"counseling/backend/internal/domain"
	"counseling/backend/internal/service/scheduling"
)

type createCaseRequest struct {
	StudentID      string          `json:"student_id"`
	PsychologistID string          `json:"psychologist_id"`
	Priority       domain.Priority `json:"priority"`
	Notes          string          `json:"notes"`
}

func (h *handler) createCase(w http.ResponseWriter, r *http.Request) {
	var req createCaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PsychologistID == "" {
		req.PsychologistID = actorID(r)
	}
	c, err := h.svc.CreateCase(r.Context(), scheduling.CreateCaseInput{
		StudentID:      req.StudentID,
		PsychologistID: req.PsychologistID,
		Priority:       req.Priority,
		Notes:          req.Notes,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *handler) listCases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	archived, err := queryBool(r, "archived")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	triage, err := queryBool(r, "triage")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	cases, err := h.svc.ListCases(r.Context(), scheduling.CaseQuery{
		StudentID:      q.Get("student_id"),
		PsychologistID: q.Get("psychologist_id"),
		Status:         domain.CaseStatus(q.Get("status")),
		Archived:       archived,
		Triage:         triage != nil && *triage,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, cases)
}

func (h *handler) getCase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	detail, err := h.svc.GetCase(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type updateCaseRequest struct {
	Priority *domain.Priority `json:"priority"`
	Notes    *string          `json:"notes"`
}

func (h *handler) updateCase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req updateCaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.svc.UpdateCase(r.Context(), id, scheduling.CaseUpdate{Priority: req.Priority, Notes: req.Notes}, actor)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) resolveCase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Resolve(r.Context(), id, actor)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
