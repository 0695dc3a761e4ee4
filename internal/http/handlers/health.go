package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/booking-reminders/internal/observability/metrics"
)

// Pinger is satisfied by *pgxpool.Pool; Redis clients go through an adapter.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports liveness and dependency reachability.
type HealthHandler struct {
	checks   map[string]Pinger
	gatherer prometheus.Gatherer
}

func NewHealthHandler(checks map[string]Pinger, gatherer prometheus.Gatherer) *HealthHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &HealthHandler{checks: checks, gatherer: gatherer}
}

// Health returns 200 when every dependency answers, 503 otherwise.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}
	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "dependencies": deps})
}

// ReminderStats summarises reminder outcomes since process start.
func (h *HealthHandler) ReminderStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metrics.SnapshotReminders(h.gatherer))
}
