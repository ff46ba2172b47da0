package publisher

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// pending outcomes above this are reported but do not fail the check
const highPendingThreshold = 100

type HealthStatus struct {
	Healthy       bool      `json:"healthy"`
	Enabled       bool      `json:"publisher_enabled"`
	NATSConnected bool      `json:"nats_connected"`
	WorkerRunning bool      `json:"worker_running"`
	Published     uint64    `json:"events_published"`
	Failed        uint64    `json:"events_failed"`
	Dropped       uint64    `json:"events_dropped"`
	Pending       int       `json:"pending_events"`
	LastEventTime time.Time `json:"last_event_time"`
	Errors        []string  `json:"errors"`
}

// HealthChecker reports on the outcome publishing pipeline. Both fields may be
// nil when publishing is disabled, in which case the check always passes.
type HealthChecker struct {
	worker *Worker
	conn   ConnectionChecker
}

func NewHealthChecker(worker *Worker, conn ConnectionChecker) *HealthChecker {
	return &HealthChecker{worker: worker, conn: conn}
}

func (h *HealthChecker) Check() HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	if h.worker == nil {
		return status
	}
	status.Enabled = true

	stats := h.worker.Stats()
	status.Published = stats.Published
	status.Failed = stats.Failed
	status.Dropped = stats.Dropped
	status.Pending = stats.Pending
	status.LastEventTime = stats.LastEventTime

	status.WorkerRunning = h.worker.Running()
	if !status.WorkerRunning {
		status.Healthy = false
		status.Errors = append(status.Errors, "publisher worker not running")
	}

	if h.conn != nil {
		status.NATSConnected = h.conn.IsConnected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	if status.Pending > highPendingThreshold {
		status.Errors = append(status.Errors, fmt.Sprintf("high pending event count: %d", status.Pending))
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check()

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to encode health response")
	}
}
