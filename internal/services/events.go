package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/workhub/escrow-backend/internal/pkg/logger"
)

// Lifecycle event types published on the bus.
const (
	EventJobFunded       = "job.funded"
	EventJobAssigned     = "job.assigned"
	EventJobSigned       = "job.signed"
	EventJobReopened     = "job.reopened"
	EventJobCancelled    = "job.cancelled"
	EventJobExpired      = "job.expired"
	EventJobCompleted    = "job.completed"
	EventWorkSubmitted   = "work.submitted"
	EventWorkRevision    = "work.revision_requested"
	EventDisputeOpened   = "dispute.opened"
	EventDisputeRebuttal = "dispute.rebuttal"
	EventDisputeRound    = "dispute.round_convened"
	EventDisputeVote     = "dispute.vote_cast"
	EventDisputeResolved = "dispute.resolved"
	EventDisputeSettled  = "dispute.settled"
)

// Event is one lifecycle notification. Consumers treat it as advisory;
// the database rows are the source of truth.
type Event struct {
	Type      string         `json:"type"`
	JobID     uuid.UUID      `json:"job_id,omitempty"`
	DisputeID uuid.UUID      `json:"dispute_id,omitempty"`
	ActorID   uuid.UUID      `json:"actor_id,omitempty"`
	TxRef     string         `json:"tx_ref,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	At        time.Time      `json:"at"`
}

type EventBus interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

type redisEventBus struct {
	log     *logger.Logger
	rdb     *redis.Client
	channel string
}

func NewRedisEventBus(log *logger.Logger) (EventBus, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("ESCROW_EVENTS_CHANNEL"))
	if ch == "" {
		ch = "escrow.events"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisEventBus{
		log:     log.With("service", "RedisEventBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *redisEventBus) Publish(ctx context.Context, evt Event) error {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	raw, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		b.log.Warn("event publish failed", "type", evt.Type, "error", err)
		return err
	}
	return nil
}

func (b *redisEventBus) Close() error { return b.rdb.Close() }

// NoopEventBus drops every event. Used when redis is not configured.
type NoopEventBus struct{}

func (NoopEventBus) Publish(ctx context.Context, evt Event) error { return nil }
func (NoopEventBus) Close() error                                 { return nil }
