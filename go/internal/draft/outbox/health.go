package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
)

const highPendingThreshold = 1000

type HealthStatus struct {
	Healthy           bool             `json:"healthy"`
	LastEventTime     time.Time        `json:"last_event_time"`
	EventsProcessed   uint64           `json:"events_processed"`
	PendingEvents     int              `json:"pending_events"`
	DatabaseConnected bool             `json:"database_connected"`
	NATSConnected     bool             `json:"nats_connected"`
	RelayActive       bool             `json:"relay_active"`
	Counters          *CounterSnapshot `json:"counters,omitempty"`
	Errors            []string         `json:"errors"`
}

// RelayStats is implemented by Worker and Listener.
type RelayStats interface {
	Stats() (uint64, time.Time)
	Running() bool
}

type pinger interface {
	PingContext(ctx context.Context) error
}

type HealthChecker struct {
	relay     RelayStats
	repo      Repository
	natsConn  *nats.Conn
	counters  *Counters
	clock     clockwork.Clock
	threshold time.Duration // how long pending events may sit unprocessed
}

// NewHealthChecker builds a checker. natsConn and counters may be nil.
func NewHealthChecker(relay RelayStats, repo Repository, natsConn *nats.Conn, counters *Counters, clock clockwork.Clock, threshold time.Duration) *HealthChecker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HealthChecker{
		relay:     relay,
		repo:      repo,
		natsConn:  natsConn,
		counters:  counters,
		clock:     clock,
		threshold: threshold,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:           true,
		DatabaseConnected: true,
		Errors:            []string{},
	}

	status.EventsProcessed, status.LastEventTime = h.relay.Stats()

	if p, ok := h.repo.(pinger); ok {
		if err := p.PingContext(ctx); err != nil {
			status.DatabaseConnected = false
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
		}
	}

	if h.natsConn != nil {
		status.NATSConnected = h.natsConn.IsConnected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	status.RelayActive = h.relay.Running()
	if !status.RelayActive {
		status.Healthy = false
		status.Errors = append(status.Errors, "relay not active")
	}

	if status.DatabaseConnected {
		pending, err := h.repo.CountPending(ctx)
		if err != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("failed to count pending events: %v", err))
		} else {
			status.PendingEvents = pending
			if pending > highPendingThreshold {
				status.Errors = append(status.Errors, fmt.Sprintf("high pending event count: %d", pending))
			}
		}
	}

	if status.PendingEvents > 0 && !status.LastEventTime.IsZero() {
		if since := h.clock.Since(status.LastEventTime); since > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no events processed for %s", since))
		}
	}

	if h.counters != nil {
		snap := h.counters.Snapshot()
		status.Counters = &snap
	}
	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// MetricsHandler serves the health status in Prometheus text format.
func (h *HealthChecker) MetricsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, h.Export(r.Context()))
	})
}

func (h *HealthChecker) Export(ctx context.Context) string {
	status := h.Check(ctx)

	return fmt.Sprintf(`# HELP outbox_healthy Whether the outbox relay is healthy
# TYPE outbox_healthy gauge
outbox_healthy %d

# HELP outbox_events_processed_total Total number of events published
# TYPE outbox_events_processed_total counter
outbox_events_processed_total %d

# HELP outbox_pending_events Current number of unsent events
# TYPE outbox_pending_events gauge
outbox_pending_events %d

# HELP outbox_database_connected Whether the database is reachable
# TYPE outbox_database_connected gauge
outbox_database_connected %d

# HELP outbox_nats_connected Whether NATS is connected
# TYPE outbox_nats_connected gauge
outbox_nats_connected %d

# HELP outbox_relay_active Whether the relay loop is running
# TYPE outbox_relay_active gauge
outbox_relay_active %d

# HELP outbox_last_event_timestamp Unix timestamp of the last published event
# TYPE outbox_last_event_timestamp gauge
outbox_last_event_timestamp %d
`,
		boolGauge(status.Healthy),
		status.EventsProcessed,
		status.PendingEvents,
		boolGauge(status.DatabaseConnected),
		boolGauge(status.NATSConnected),
		boolGauge(status.RelayActive),
		lastEventUnix(status.LastEventTime),
	)
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

func lastEventUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
