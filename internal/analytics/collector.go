package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/metrics"
)

// Publisher writes one event to the event log. *kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Collector buffers events and publishes them from a single goroutine so
// diagnosis requests never wait on the broker.
type Collector struct {
	publisher Publisher
	eventCh   chan DiagnosticEvent
	metrics   *metrics.Metrics
	logger    *slog.Logger
	done      chan struct{}
	dropped   atomic.Int64
}

func NewCollector(publisher Publisher, bufferSize int, m *metrics.Metrics) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher: publisher,
		eventCh:   make(chan DiagnosticEvent, bufferSize),
		metrics:   m,
		logger:    slog.Default().With("component", "analytics-collector"),
		done:      make(chan struct{}),
	}
}

func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

// Record implements Recorder. The event is dropped when the buffer is full.
func (c *Collector) Record(_ context.Context, event DiagnosticEvent) {
	select {
	case c.eventCh <- event:
	default:
		c.dropped.Add(1)
		if c.metrics != nil {
			c.metrics.EventsDropped.Inc()
		}
		c.logger.Warn("diagnostic event dropped (buffer full)", "id", event.ID, "type", event.Type)
	}
}

// Dropped returns the number of events discarded on a full buffer.
func (c *Collector) Dropped() int64 { return c.dropped.Load() }

// Close stops accepting events and waits for the buffer to drain. Record
// must not be called after Close.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event DiagnosticEvent) {
	if err := c.publisher.Publish(ctx, kafka.Event{Key: event.ID, Value: event}); err != nil {
		c.logger.Error("failed to publish diagnostic event", "id", event.ID, "error", err)
	}
}

func (c *Collector) drainRemaining() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(ctx, event)
		default:
			return
		}
	}
}
