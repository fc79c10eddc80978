// Package redisstream publishes lifecycle events to a Redis stream for out-of-process consumers.
package redisstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/domain"
	"github.com/tjfontaine/polyglot-webhook-relay/internal/core/ports"
)

// DefaultStream is used when Config.Stream is empty.
const DefaultStream = "relay:invocation_events"

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Stream   string

	// MaxLen approximately caps the stream length; 0 leaves it unbounded
	MaxLen int64
}

// Publisher implements ports.EventPublisher with XADD.
type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

var _ ports.EventPublisher = (*Publisher)(nil)

// NewPublisher connects to Redis. An unreachable server is logged, not fatal, so the
// relay can start before Redis does.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	stream := cfg.Stream
	if stream == "" {
		stream = DefaultStream
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("failed to connect to redis", slog.String("addr", cfg.Addr), slog.String("error", err.Error()))
	}

	return &Publisher{client: rdb, stream: stream, maxLen: cfg.MaxLen}, nil
}

// Publish appends event to the stream. The entry carries the type and invocation ID as
// separate fields so consumers can filter without decoding the payload.
func (p *Publisher) Publish(ctx context.Context, event *domain.LifecycleEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"type":          string(event.Type),
			"invocation_id": event.InvocationID,
			"payload":       string(payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", p.stream, err)
	}
	return nil
}

// Stream returns the stream name events are written to.
func (p *Publisher) Stream() string { return p.stream }

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
