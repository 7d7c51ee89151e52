package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

// CheckFunc checks one dependency. A nil error means ready.
type CheckFunc func(ctx context.Context) error

// HealthHandler serves liveness, readiness and metrics endpoints.
type HealthHandler struct {
	logger    *slog.Logger
	service   string
	checks    map[string]CheckFunc
	metrics   http.Handler
	timeout   time.Duration
	startTime time.Time
}

// NewHealthHandler creates a health handler for service. metrics may be nil.
func NewHealthHandler(service string, checks map[string]CheckFunc, metrics http.Handler, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		logger:    logger,
		service:   service,
		checks:    checks,
		metrics:   metrics,
		timeout:   2 * time.Second,
		startTime: time.Now(),
	}
}

// HealthResponse is the JSON body of /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Uptime  string `json:"uptime"`
}

// ReadinessResponse is the JSON body of /readyz.
type ReadinessResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Checks  map[string]string `json:"checks"`
}

// RegisterRoutes registers the endpoints on mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}
}

// Healthz answers liveness checks.
func (h *HealthHandler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Service: h.service,
		Uptime:  time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Readyz runs every dependency check concurrently and answers 503 when any
// of them fails.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]string, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.checks[name](ctx); err != nil {
				h.logger.Warn("readiness check failed", slog.String("check", name), slog.String("error", err.Error()))
				results[i] = "unavailable"
				return
			}
			results[i] = "ok"
		}()
	}
	wg.Wait()

	resp := ReadinessResponse{Status: "ready", Service: h.service, Checks: make(map[string]string, len(names))}
	code := http.StatusOK
	for i, name := range names {
		resp.Checks[name] = results[i]
		if results[i] != "ok" {
			resp.Status = "not_ready"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
