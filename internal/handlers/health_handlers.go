package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger is any dependency whose liveness gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandlers struct {
	deps map[string]Pinger
}

func NewHealthHandlers(deps map[string]Pinger) *HealthHandlers {
	return &HealthHandlers{deps: deps}
}

// Healthz reports 200 only when every dependency answers a ping. The
// broker fails closed: a down store or directory makes the process
// unready rather than admitting connections that cannot chat.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.deps))
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": http.StatusText(status),
		"checks": checks,
	})
}
