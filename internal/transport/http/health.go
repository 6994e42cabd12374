package http

import (
	"context"
	"net/http"
	"time"
)

type dependency struct {
	name     string
	check    func(ctx context.Context) error
	critical bool
}

type HealthHandler struct {
	deps    []dependency
	service string
	version string
	timeout time.Duration
}

func NewHealthHandler(service, version string) *HealthHandler {
	return &HealthHandler{service: service, version: version, timeout: 2 * time.Second}
}

// AddCheck registers a dependency. A failing critical dependency makes the
// service unready; any other failure only degrades it.
func (h *HealthHandler) AddCheck(name string, check func(ctx context.Context) error, critical bool) *HealthHandler {
	h.deps = append(h.deps, dependency{name: name, check: check, critical: critical})
	return h
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Service string `json:"service,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Service      string            `json:"service,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{Status: "ok", Version: h.version, Service: h.service})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	deps := make(map[string]string, len(h.deps))
	status := "ok"
	for _, d := range h.deps {
		dctx, dcancel := context.WithTimeout(ctx, h.timeout/2)
		err := d.check(dctx)
		dcancel()
		if err == nil {
			deps[d.name] = "ok"
			continue
		}
		deps[d.name] = "down"
		switch {
		case d.critical:
			status = "error"
		case status == "ok":
			status = "degraded"
		}
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Service:      h.service,
		Dependencies: deps,
	})
}
