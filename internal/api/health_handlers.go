package api

import (
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/onnwee/swipestack/internal/health"
)

// readinessTimeout bounds each dependency check.
const readinessTimeout = 2 * time.Second

// HealthHandlers provides health and readiness check endpoints for Kubernetes probes.
type HealthHandlers struct {
	checks map[string]health.Checker
	now    func() time.Time
}

// HealthHandlersConfig configures the health check handlers. Nil checkers
// are treated as not configured and reported as "ok".
type HealthHandlersConfig struct {
	DBChecker    health.Checker
	RedisChecker health.Checker
}

// NewHealthHandlers creates a new health check handler.
func NewHealthHandlers(config HealthHandlersConfig) *HealthHandlers {
	return &HealthHandlers{
		checks: map[string]health.Checker{
			"database": config.DBChecker,
			"redis":    config.RedisChecker,
		},
		now: time.Now,
	}
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health (liveness probe).
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready (readiness probe). It returns 503 when any
// configured dependency fails its check.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	results := health.Run(ctx, h.checks, readinessTimeout)

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names)+1)
	healthy := true
	for _, name := range names {
		res, ran := results[name]
		switch {
		case !ran:
			checks[name] = "ok"
		case res.OK():
			checks[name] = "ok"
		default:
			checks[name] = "error"
			healthy = false
			slog.WarnContext(ctx, "readiness check failed",
				"check", name,
				"error", res.Err,
				"duration_ms", res.Duration.Milliseconds())
		}
	}
	checks["metrics"] = "ok"

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	writeJSON(w, ctx, code, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}
