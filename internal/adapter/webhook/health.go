package webhook

import (
	"context"
	"net/http"
	"time"
)

// QueueProbe is the queue surface the health endpoints inspect.
type QueueProbe interface {
	Ping(ctx context.Context) error
	Depth(ctx context.Context) (int, error)
}

// HealthStatus is the tri-state verdict of a health check.
type HealthStatus string

const (
	// HealthOK means the queue is reachable and below the backlog threshold.
	HealthOK HealthStatus = "ok"

	// HealthDegraded means the queue works but the backlog exceeds the
	// configured threshold.
	HealthDegraded HealthStatus = "degraded"

	// HealthError means the queue is unreachable.
	HealthError HealthStatus = "error"
)

// Health is the body of the healthz and readyz endpoints.
type Health struct {
	Status HealthStatus `json:"status"`
	Queue  struct {
		Pending   int `json:"pending"`
		Threshold int `json:"threshold"`
	} `json:"queue"`
	Error string `json:"error,omitempty"`
}

// HealthChecker evaluates service health from the queue's state.
type HealthChecker struct {
	queue     QueueProbe
	threshold int
	started   time.Time
}

// NewHealthChecker creates a checker that reports degraded once the pending
// backlog exceeds threshold.
func NewHealthChecker(queue QueueProbe, threshold int) *HealthChecker {
	return &HealthChecker{queue: queue, threshold: threshold, started: time.Now()}
}

// Check evaluates current health.
func (h *HealthChecker) Check(ctx context.Context) Health {
	var health Health
	health.Queue.Threshold = h.threshold

	if err := h.queue.Ping(ctx); err != nil {
		health.Status = HealthError
		health.Error = err.Error()
		return health
	}

	depth, err := h.queue.Depth(ctx)
	if err != nil {
		health.Status = HealthError
		health.Error = err.Error()
		return health
	}

	health.Queue.Pending = depth
	if depth > h.threshold {
		health.Status = HealthDegraded
	} else {
		health.Status = HealthOK
	}
	return health
}

// Handler serves the health verdict; anything but ok answers 503 so load
// balancers stop routing new deliveries here.
func (h *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := h.Check(r.Context())
		status := http.StatusOK
		if health.Status != HealthOK {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, health)
	}
}

// LivenessHandler answers as long as the process is up, independent of
// queue state.
func (h *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"uptime": int(time.Since(h.started).Seconds()),
		})
	}
}
