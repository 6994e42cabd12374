package http

import (
	"net/http"
	"time"

	"counseling/backend/internal/domain"
	"counseling/backend/internal/service/scheduling"
)

type createSlotRequest struct {
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`
	Status    domain.SlotStatus `json:"status"`
	Reason    string            `json:"reason"`
}

func (h *handler) createSlot(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req createSlotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	slot, err := h.svc.CreateSlot(r.Context(), scheduling.CreateSlotInput{
		PsychologistID: actor,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Status:         req.Status,
		Reason:         req.Reason,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

func (h *handler) listSlots(w http.ResponseWriter, r *http.Request) {
	psych := r.URL.Query().Get("psychologist_id")
	if psych == "" {
		psych = actorID(r)
	}
	from, to, ok := queryRange(w, r)
	if !ok {
		return
	}
	slots, err := h.svc.ListSlots(r.Context(), psych, from, to)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

type updateSlotRequest struct {
	StartTime *time.Time         `json:"start_time"`
	EndTime   *time.Time         `json:"end_time"`
	Status    *domain.SlotStatus `json:"status"`
	Reason    *string            `json:"reason"`
}

func (h *handler) updateSlot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req updateSlotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.UpdateSlot(r.Context(), id, scheduling.SlotUpdate{
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Status:    req.Status,
		Reason:    req.Reason,
	}, actor)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) deleteSlot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteSlot(r.Context(), id, actor); err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type blockSlotRequest struct {
	Reason string `json:"reason"`
}

func (h *handler) blockSlot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req blockSlotRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.BlockSlot(r.Context(), id, req.Reason, actor)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type recurringSlotsRequest struct {
	StartTime time.Time  `json:"start_time"`
	EndTime   time.Time  `json:"end_time"`
	Weekdays  []int16    `json:"weekdays"`
	Interval  int        `json:"interval"`
	Until     *time.Time `json:"until"`
	Count     *int       `json:"count"`
	TimeZone  string     `json:"timezone"`
}

func (h *handler) createRecurringSlots(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req recurringSlotsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.CreateRecurringSlots(r.Context(), scheduling.RecurringSlotsInput{
		PsychologistID: actor,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Weekdays:       req.Weekdays,
		Interval:       req.Interval,
		Until:          req.Until,
		Count:          req.Count,
		TimeZone:       req.TimeZone,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
