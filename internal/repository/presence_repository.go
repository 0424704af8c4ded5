package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("repository")

const (
	onlineSetKey = "players:online"
	presenceTTL  = 24 * time.Hour
)

// Presence fields
const (
	FieldSession   = "session_id"
	FieldRoom      = "room_id"
	FieldLoginTime = "login_at"
)

// PresenceRepository tracks which accounts are connected and where they sit.
type PresenceRepository interface {
	SetOnline(ctx context.Context, name, sessionID string) error
	SetRoom(ctx context.Context, name, roomID string) error
	SetOffline(ctx context.Context, name string) error
	Online(ctx context.Context) ([]string, error)
}

type redisPresenceRepository struct {
	rdb *redis.Client
}

// NewPresenceRepository creates a new Redis-based PresenceRepository.
func NewPresenceRepository(rdb *redis.Client) PresenceRepository {
	return &redisPresenceRepository{rdb: rdb}
}

func playerKey(name string) string {
	return fmt.Sprintf("player:%s", name)
}

// SetOnline records a login.
func (r *redisPresenceRepository) SetOnline(ctx context.Context, name, sessionID string) error {
	ctx, span := tracer.Start(ctx, "PresenceRepository.SetOnline", trace.WithAttributes(
		attribute.String("player.name", name),
	))
	defer span.End()

	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, playerKey(name), FieldSession, sessionID, FieldRoom, "", FieldLoginTime, time.Now().Unix())
	pipe.Expire(ctx, playerKey(name), presenceTTL)
	pipe.SAdd(ctx, onlineSetKey, name)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set player online: %w", err)
	}
	return nil
}

// SetRoom records the room the player currently sits in. An empty roomID clears it.
func (r *redisPresenceRepository) SetRoom(ctx context.Context, name, roomID string) error {
	ctx, span := tracer.Start(ctx, "PresenceRepository.SetRoom", trace.WithAttributes(
		attribute.String("player.name", name),
		attribute.String("room.id", roomID),
	))
	defer span.End()

	if err := r.rdb.HSet(ctx, playerKey(name), FieldRoom, roomID).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set player room: %w", err)
	}
	return nil
}

// SetOffline removes every trace of the player's presence.
func (r *redisPresenceRepository) SetOffline(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "PresenceRepository.SetOffline", trace.WithAttributes(
		attribute.String("player.name", name),
	))
	defer span.End()

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, playerKey(name))
	pipe.SRem(ctx, onlineSetKey, name)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set player offline: %w", err)
	}
	return nil
}

// Online lists connected account names.
func (r *redisPresenceRepository) Online(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "PresenceRepository.Online")
	defer span.End()

	names, err := r.rdb.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list online players: %w", err)
	}
	return names, nil
}

type nopPresenceRepository struct{}

// NewNopPresenceRepository returns a PresenceRepository that stores nothing.
func NewNopPresenceRepository() PresenceRepository {
	return nopPresenceRepository{}
}

func (nopPresenceRepository) SetOnline(context.Context, string, string) error { return nil }
func (nopPresenceRepository) SetRoom(context.Context, string, string) error   { return nil }
func (nopPresenceRepository) SetOffline(context.Context, string) error        { return nil }
func (nopPresenceRepository) Online(context.Context) ([]string, error)        { return nil, nil }
