package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

//go:generate mockgen -destination=../mocks/mock_publisher.go -package=mocks ctchen222/Battleship/internal/events Publisher

// Pub/Sub channel constants
const (
	EventsChannel  = "channel:events"
	MonitorChannel = "channel:monitor"
)

// Event types
const (
	TypeRoomCreated     = "room_created"
	TypePlayerJoined    = "player_joined"
	TypeGameStarted     = "game_started"
	TypeShotFired       = "shot_fired"
	TypeGameOver        = "game_over"
	TypeRoomClosed      = "room_closed"
	TypeMonitorSnapshot = "monitor_snapshot"
)

var tracer = otel.Tracer("events")

// Event represents a global message published via Pub/Sub.
type Event struct {
	Type    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// RoomCreatedPayload is the payload for the "room_created" event.
type RoomCreatedPayload struct {
	RoomID string `json:"room_id"`
	Owner  string `json:"owner"`
}

// PlayerJoinedPayload is the payload for the "player_joined" event.
type PlayerJoinedPayload struct {
	RoomID string `json:"room_id"`
	Player string `json:"player"`
}

// GameStartedPayload is the payload for the "game_started" event.
type GameStartedPayload struct {
	RoomID  string   `json:"room_id"`
	Players []string `json:"players"`
}

// ShotFiredPayload is the payload for the "shot_fired" event.
type ShotFiredPayload struct {
	RoomID  string `json:"room_id"`
	Shooter string `json:"shooter"`
	Row     int    `json:"row"`
	Col     int    `json:"col"`
	Hit     bool   `json:"hit"`
	Sunk    bool   `json:"sunk"`
}

// GameOverPayload is the payload for the "game_over" event.
type GameOverPayload struct {
	RoomID string `json:"room_id"`
	Winner string `json:"winner,omitempty"`
	Loser  string `json:"loser,omitempty"`
	Reason string `json:"reason"`
}

// RoomClosedPayload is the payload for the "room_closed" event.
type RoomClosedPayload struct {
	RoomID string `json:"room_id"`
}

// MonitorSnapshotPayload carries the encoded MONITOR_DATA body.
type MonitorSnapshotPayload struct {
	Data string `json:"data"`
}

// NewEvent wraps a payload into an Event envelope.
func NewEvent(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{Type: eventType, Payload: data}, nil
}

// Publisher fans events out to external subscribers.
type Publisher interface {
	Publish(ctx context.Context, channel string, e Event) error
}

// Emit builds and publishes an event. Failures are logged and dropped so
// that game flow never depends on the event bus.
func Emit(ctx context.Context, p Publisher, channel, eventType string, payload any) {
	if p == nil {
		return
	}
	e, err := NewEvent(eventType, payload)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build event", "event.type", eventType, "error", err)
		return
	}
	if err := p.Publish(ctx, channel, e); err != nil {
		slog.WarnContext(ctx, "failed to publish event", "event.type", eventType, "channel", channel, "error", err)
	}
}

type redisPublisher struct {
	rdb *redis.Client
}

// NewRedisPublisher publishes events with Redis PUBLISH.
func NewRedisPublisher(rdb *redis.Client) Publisher {
	return &redisPublisher{rdb: rdb}
}

func (p *redisPublisher) Publish(ctx context.Context, channel string, e Event) error {
	ctx, span := tracer.Start(ctx, "events.Publish", trace.WithAttributes(
		attribute.String("event.type", e.Type),
		attribute.String("event.channel", channel),
	))
	defer span.End()

	data, err := json.Marshal(e)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to marshal event")
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, channel, data).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to publish event")
		return fmt.Errorf("failed to publish %s event: %w", e.Type, err)
	}
	return nil
}

type nopPublisher struct{}

// NewNopPublisher returns a Publisher that discards everything. It is used
// when no Redis address is configured.
func NewNopPublisher() Publisher {
	return nopPublisher{}
}

func (nopPublisher) Publish(context.Context, string, Event) error {
	return nil
}
