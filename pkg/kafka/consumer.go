// Package kafka carries diagnostic events between the diagnosis service and
// the analytics service over segmentio/kafka-go. Producers publish JSON;
// consumers are typed by the event they decode.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/config"
)

// Handler processes one decoded event. key is the message key, the event id
// for diagnostic events.
type Handler[T any] func(ctx context.Context, key string, event T) error

// Consumer reads a topic of JSON-encoded T. Payloads that do not decode are
// counted, committed and skipped so a single bad event cannot stall its
// partition.
type Consumer[T any] struct {
	reader  *kafka.Reader
	handler Handler[T]
	logger  *slog.Logger

	processed atomic.Int64
	skipped   atomic.Int64

	mu       sync.Mutex
	fetchErr error
}

// NewConsumer joins cfg.ConsumerGroup on topic. A new group starts from the
// oldest retained event so the aggregate can be rebuilt after a restart.
func NewConsumer[T any](cfg config.KafkaConfig, topic string, handler Handler[T]) *Consumer[T] {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return &Consumer[T]{
		reader:  r,
		handler: handler,
		logger:  slog.Default().With("component", "event-consumer", "topic", topic),
	}
}

// Start consumes until ctx is cancelled.
func (c *Consumer[T]) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "processed", c.processed.Load(), "skipped", c.skipped.Load())
				return c.reader.Close()
			}
			c.setFetchErr(err)
			c.logger.Error("failed to fetch event", "error", err)
			continue
		}
		c.setFetchErr(nil)
		c.process(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit event", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

func (c *Consumer[T]) process(ctx context.Context, msg kafka.Message) {
	event, err := DecodeJSON[T](msg.Value)
	if err != nil {
		c.skipped.Add(1)
		c.logger.Warn("skipping undecodable event",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"error", err,
		)
		return
	}
	if err := c.handler(ctx, string(msg.Key), event); err != nil {
		c.logger.Error("event handler failed", "key", string(msg.Key), "error", err)
	}
	c.processed.Add(1)
}

func (c *Consumer[T]) setFetchErr(err error) {
	c.mu.Lock()
	c.fetchErr = err
	c.mu.Unlock()
}

// Ping returns the error of the last failed fetch, or nil once a fetch has
// succeeded since.
func (c *Consumer[T]) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetchErr != nil {
		return fmt.Errorf("fetching events: %w", c.fetchErr)
	}
	return nil
}

// Counts returns how many events were handled and how many were skipped as
// undecodable.
func (c *Consumer[T]) Counts() (processed, skipped int64) {
	return c.processed.Load(), c.skipped.Load()
}

// Close closes the underlying reader.
func (c *Consumer[T]) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
