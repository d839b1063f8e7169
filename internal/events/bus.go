// Package events carries structured engine events to best-effort sinks
// (logs, message brokers) without ever blocking the sync hot path.
package events

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Event types emitted by the engine
const (
	RunStarted        = "run.started"
	RunCompleted      = "run.completed"
	RunFailed         = "run.failed"
	FeedFailed        = "feed.failed"
	ItemMalformed     = "item.malformed"
	QuotaCaution      = "quota.caution"
	QuotaThrottled    = "quota.throttled"
	QuotaExceeded     = "quota.exceeded"
	QuotaDiscrepancy  = "quota.discrepancy"
	EditStandingError = "edit.standing_error"
)

// Severity levels
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Event is a structured notification for observability sinks
type Event struct {
	Type     string                 `json:"type"`
	Severity string                 `json:"severity"`
	Time     time.Time              `json:"time"`
	RunID    string                 `json:"run_id,omitempty"`
	Message  string                 `json:"message"`
	Fields   map[string]interface{} `json:"fields,omitempty"`
}

// Publisher accepts events without blocking
type Publisher interface {
	Publish(e Event)
}

// Sink delivers events to an external system
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
	Close() error
}

// Discard is a Publisher that drops every event
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}

// Bus is a bounded queue of events fanned out to sinks by a single goroutine
type Bus struct {
	ch      chan Event
	sinks   []Sink
	logger  *logrus.Logger
	dropped atomic.Int64
}

// NewBus creates a bus holding at most size undelivered events
func NewBus(size int, logger *logrus.Logger, sinks ...Sink) *Bus {
	if size <= 0 {
		size = 256
	}
	return &Bus{
		ch:     make(chan Event, size),
		sinks:  sinks,
		logger: logger,
	}
}

// Publish enqueues e, dropping it if the queue is full
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
	select {
	case b.ch <- e:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the queue was full
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Run delivers events until ctx is cancelled, then drains what is left
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case e := <-b.ch:
			b.deliver(ctx, e)
		case <-ctx.Done():
			b.drain()
			return nil
		}
	}
}

// Close closes every sink
func (b *Bus) Close() error {
	var firstErr error
	for _, s := range b.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (b *Bus) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case e := <-b.ch:
			b.deliver(ctx, e)
		default:
			return
		}
	}
}

func (b *Bus) deliver(ctx context.Context, e Event) {
	for _, s := range b.sinks {
		if err := s.Deliver(ctx, e); err != nil {
			b.logger.WithError(err).WithFields(logrus.Fields{
				"sink":  s.Name(),
				"event": e.Type,
			}).Warn("Failed to deliver event")
		}
	}
}
