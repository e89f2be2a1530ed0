package outbox

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/leaguedraft/go/internal/draft/events"
)

// MetricsCollector receives relay measurements.
type MetricsCollector interface {
	RecordEventProcessed(eventType events.EventType, success bool, duration time.Duration)
	RecordBatchProcessed(count int, duration time.Duration)
	RecordOutboxLag(lag int)
	RecordPublishAttempt(eventType events.EventType, attempt int, success bool)
}

type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordEventProcessed(events.EventType, bool, time.Duration) {}
func (NoOpMetricsCollector) RecordBatchProcessed(int, time.Duration)                    {}
func (NoOpMetricsCollector) RecordOutboxLag(int)                                        {}
func (NoOpMetricsCollector) RecordPublishAttempt(events.EventType, int, bool)           {}

// Counters is an in-process MetricsCollector backing the health endpoint.
type Counters struct {
	published atomic.Uint64
	failed    atomic.Uint64
	retries   atomic.Uint64
	batches   atomic.Uint64
	lag       atomic.Int64

	mu     sync.Mutex
	byType map[events.EventType]uint64
}

func NewCounters() *Counters {
	return &Counters{byType: make(map[events.EventType]uint64)}
}

func (c *Counters) RecordEventProcessed(eventType events.EventType, success bool, _ time.Duration) {
	if !success {
		c.failed.Add(1)
		return
	}
	c.published.Add(1)
	c.mu.Lock()
	c.byType[eventType]++
	c.mu.Unlock()
}

func (c *Counters) RecordBatchProcessed(int, time.Duration) {
	c.batches.Add(1)
}

func (c *Counters) RecordOutboxLag(lag int) {
	c.lag.Store(int64(lag))
}

func (c *Counters) RecordPublishAttempt(_ events.EventType, attempt int, _ bool) {
	if attempt > 1 {
		c.retries.Add(1)
	}
}

// CounterSnapshot is a point-in-time copy of Counters.
type CounterSnapshot struct {
	Published uint64                      `json:"published"`
	Failed    uint64                      `json:"failed"`
	Retries   uint64                      `json:"retries"`
	Batches   uint64                      `json:"batches"`
	Lag       int64                       `json:"lag"`
	ByType    map[events.EventType]uint64 `json:"by_type"`
}

func (c *Counters) Snapshot() CounterSnapshot {
	c.mu.Lock()
	byType := make(map[events.EventType]uint64, len(c.byType))
	for k, v := range c.byType {
		byType[k] = v
	}
	c.mu.Unlock()
	return CounterSnapshot{
		Published: c.published.Load(),
		Failed:    c.failed.Load(),
		Retries:   c.retries.Load(),
		Batches:   c.batches.Load(),
		Lag:       c.lag.Load(),
		ByType:    byType,
	}
}

// MetricPublisher wraps a Publisher with metrics collection.
type MetricPublisher struct {
	publisher Publisher
	metrics   MetricsCollector
	clock     clockwork.Clock
}

func NewMetricPublisher(publisher Publisher, metrics MetricsCollector, clock clockwork.Clock) *MetricPublisher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MetricPublisher{publisher: publisher, metrics: metrics, clock: clock}
}

func (p *MetricPublisher) Publish(ctx context.Context, event events.Event) error {
	start := p.clock.Now()
	err := p.publisher.Publish(ctx, event)
	p.metrics.RecordEventProcessed(event.Type, err == nil, p.clock.Since(start))
	return err
}
