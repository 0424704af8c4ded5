package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ctchen222/Battleship/internal/match"

	"github.com/go-redis/redis/v8"
)

const (
	historyKey = "matches:finished"
	// HistoryLimit is how many finished matches are kept.
	HistoryLimit = 100
)

// MatchSummary is the stored record of a retired room.
type MatchSummary struct {
	match.Snapshot
	ClosedAt time.Time `json:"closed_at"`
}

// HistoryRepository keeps the most recent finished matches, newest first.
type HistoryRepository interface {
	Record(ctx context.Context, snap match.Snapshot) error
	Recent(ctx context.Context, n int) ([]MatchSummary, error)
}

type redisHistoryRepository struct {
	rdb *redis.Client
}

// NewHistoryRepository creates a new Redis-based HistoryRepository.
func NewHistoryRepository(rdb *redis.Client) HistoryRepository {
	return &redisHistoryRepository{rdb: rdb}
}

// Record implements registry.HistoryRecorder.
func (r *redisHistoryRepository) Record(ctx context.Context, snap match.Snapshot) error {
	ctx, span := tracer.Start(ctx, "HistoryRepository.Record")
	defer span.End()

	data, err := json.Marshal(MatchSummary{Snapshot: snap, ClosedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal match summary: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.LPush(ctx, historyKey, data)
	pipe.LTrim(ctx, historyKey, 0, HistoryLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to record match summary: %w", err)
	}
	return nil
}

// Recent returns up to n summaries.
func (r *redisHistoryRepository) Recent(ctx context.Context, n int) ([]MatchSummary, error) {
	ctx, span := tracer.Start(ctx, "HistoryRepository.Recent")
	defer span.End()

	raw, err := r.rdb.LRange(ctx, historyKey, 0, int64(clampLimit(n))-1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read match history: %w", err)
	}
	out := make([]MatchSummary, 0, len(raw))
	for _, item := range raw {
		var s MatchSummary
		if err := json.Unmarshal([]byte(item), &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal match summary: %w", err)
		}
		out = append(out, s)
	}
	return out, nil
}

type memoryHistoryRepository struct {
	mu    sync.Mutex
	items []MatchSummary
}

// NewMemoryHistoryRepository keeps history in process, for runs without Redis.
func NewMemoryHistoryRepository() HistoryRepository {
	return &memoryHistoryRepository{}
}

func (r *memoryHistoryRepository) Record(_ context.Context, snap match.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append([]MatchSummary{{Snapshot: snap, ClosedAt: time.Now().UTC()}}, r.items...)
	if len(r.items) > HistoryLimit {
		r.items = r.items[:HistoryLimit]
	}
	return nil
}

func (r *memoryHistoryRepository) Recent(_ context.Context, n int) ([]MatchSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n = min(clampLimit(n), len(r.items))
	return append([]MatchSummary(nil), r.items[:n]...), nil
}

func clampLimit(n int) int {
	if n <= 0 || n > HistoryLimit {
		return HistoryLimit
	}
	return n
}
