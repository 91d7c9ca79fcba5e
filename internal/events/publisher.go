// Package events publishes generation events to a Redis stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/promptpix/promptpix/internal/metrics"
)

const (
	// StreamKey is the Redis stream for generation events.
	StreamKey = "stream:generation_events"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 250 * time.Millisecond
)

// Event types.
const (
	TypeGenerated         = "generated"
	TypeCreditDebitFailed = "credit_debit_failed"
)

// Event is the compact payload written to the stream.
type Event struct {
	Type       string `json:"type"`
	UserID     string `json:"uid"`
	Provider   string `json:"p,omitempty"`
	Balance    int64  `json:"bal"`
	Amount     int64  `json:"amt,omitempty"` // credits the event charges
	ImageBytes int    `json:"sz,omitempty"`
	Error      string `json:"err,omitempty"`
	OccurredAt int64  `json:"t"` // Unix milliseconds
}

// Publisher enqueues generation events to a Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "events.publisher"),
		metrics: recorder,
	}
}

// Publish adds an event to the stream synchronously and returns its stream ID.
func (p *Publisher) Publish(ctx context.Context, event Event) (string, error) {
	if event.OccurredAt == 0 {
		event.OccurredAt = time.Now().UnixMilli()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	id, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"type":    event.Type,
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return id, nil
}

// PublishAsync publishes without blocking the caller.
// Errors are logged and counted, never returned.
func (p *Publisher) PublishAsync(event Event) {
	if event.OccurredAt == 0 {
		event.OccurredAt = time.Now().UnixMilli()
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("failed to publish generation event",
				"type", event.Type,
				"user_id", event.UserID,
				"error", err,
			)
			p.metrics.IncEventPublished("dropped")
			return
		}

		p.logger.Debug("generation event published",
			"type", event.Type,
			"stream_id", streamID,
		)
		p.metrics.IncEventPublished("success")
	}()
}

// Decode parses a stream message payload back into an Event.
func Decode(values map[string]interface{}) (Event, error) {
	raw, ok := values["payload"].(string)
	if !ok {
		return Event{}, fmt.Errorf("missing payload field")
	}
	var event Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}
