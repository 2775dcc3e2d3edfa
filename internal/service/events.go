package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Event kinds published on the bus.
const (
	EventInstanceStarted = "instance.started"
	EventInstanceStopped = "instance.stopped"
	EventChallengeSolved = "challenge.solved"
)

// Event is a lifecycle notification. Flags are never included.
type Event struct {
	Kind        string    `json:"kind"`
	ChallengeID uint      `json:"challenge_id"`
	UserID      uint      `json:"user_id,omitempty"`
	TeamID      *uint     `json:"team_id,omitempty"`
	InstanceID  string    `json:"instance_id,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// EventPublisher fans lifecycle events out to other services.
type EventPublisher interface {
	Publish(ctx context.Context, event Event)
}

type natsEventPublisher struct {
	conn   *nats.Conn
	prefix string
	logger zerolog.Logger
}

// NewEventPublisher publishes events on "<prefix>.<kind>". A nil connection yields a no-op publisher.
func NewEventPublisher(conn *nats.Conn, prefix string, logger zerolog.Logger) EventPublisher {
	if conn == nil {
		return noopEventPublisher{}
	}

	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = "ctf"
	}

	return &natsEventPublisher{
		conn:   conn,
		prefix: prefix,
		logger: logger.With().Str("component", "event_publisher").Logger(),
	}
}

func (p *natsEventPublisher) Publish(_ context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("kind", event.Kind).Msg("failed to encode event")
		return
	}

	if err := p.conn.Publish(p.prefix+"."+event.Kind, payload); err != nil {
		p.logger.Warn().Err(err).Str("kind", event.Kind).Msg("failed to publish event")
	}
}

type noopEventPublisher struct{}

func (noopEventPublisher) Publish(context.Context, Event) {}
