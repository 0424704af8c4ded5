package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"ctchen222/Battleship/internal/events"
	"ctchen222/Battleship/internal/match"
	"ctchen222/Battleship/internal/player"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxMatches is the number of rooms that may be live at once.
const DefaultMaxMatches = 4

const absent = "---"

var (
	tracer = otel.Tracer("registry")
	meter  = otel.Meter("registry")

	activeMatches, _ = meter.Int64UpDownCounter("naval.matches.active", metric.WithDescription("Rooms currently registered"))
)

var (
	ErrCapacity        = errors.New("room limit reached")
	ErrRoomUnavailable = errors.New("room is full or does not exist")
)

// Notifier is told whenever the room list changes. snapshots reads the
// current list.
type Notifier interface {
	Notify(ctx context.Context, snapshots func() []match.Snapshot)
}

// HistoryRecorder stores a summary of every retired room.
type HistoryRecorder interface {
	Record(ctx context.Context, snap match.Snapshot) error
}

// Options configures a Registry.
type Options struct {
	MaxMatches int
	Recorder   match.StatsRecorder
	Publisher  events.Publisher
	Notifier   Notifier
	History    HistoryRecorder
}

// Registry indexes the live matches. The slice is replaced on every write so
// readers can iterate a stale copy without holding the lock. The registry
// lock is never taken while a match lock is held, and no client write
// happens under it.
type Registry struct {
	mu       sync.RWMutex
	matches  []*match.Match
	nextID   int
	reserved int // allocated but not yet visible

	maxMatches int
	recorder   match.StatsRecorder
	publisher  events.Publisher
	notifier   Notifier
	history    HistoryRecorder
}

// New creates an empty registry.
func New(opts Options) *Registry {
	if opts.MaxMatches <= 0 {
		opts.MaxMatches = DefaultMaxMatches
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NewNopPublisher()
	}
	return &Registry{
		maxMatches: opts.MaxMatches,
		recorder:   opts.Recorder,
		publisher:  opts.Publisher,
		notifier:   opts.Notifier,
		history:    opts.History,
	}
}

// SetNotifier wires the monitor feed after construction.
func (r *Registry) SetNotifier(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifier = n
}

// CreateRoom allocates a new match with owner in the first slot.
func (r *Registry) CreateRoom(ctx context.Context, owner *player.Player) (*match.Match, error) {
	ctx, span := tracer.Start(ctx, "registry.CreateRoom", trace.WithAttributes(
		attribute.String("player.name", owner.Name),
	))
	defer span.End()

	r.mu.Lock()
	if len(r.matches)+r.reserved >= r.maxMatches {
		r.mu.Unlock()
		slog.WarnContext(ctx, "room limit reached", "player.name", owner.Name, "limit", r.maxMatches)
		span.RecordError(ErrCapacity)
		span.SetStatus(codes.Error, "Room limit reached")
		return nil, ErrCapacity
	}
	r.nextID++
	r.reserved++
	id := fmt.Sprintf("Room-%d", r.nextID)
	r.mu.Unlock()

	// New writes to the owner; the room stays invisible until that returns.
	m := match.New(ctx, id, owner, match.Options{
		Recorder:  r.recorder,
		Observer:  r,
		Publisher: r.publisher,
	})

	r.mu.Lock()
	r.reserved--
	next := make([]*match.Match, len(r.matches), len(r.matches)+1)
	copy(next, r.matches)
	r.matches = append(next, m)
	r.mu.Unlock()

	span.SetAttributes(attribute.String("room.id", id))
	activeMatches.Add(ctx, 1)
	slog.InfoContext(ctx, "Room created", "room.id", id, "player.name", owner.Name)
	events.Emit(ctx, r.publisher, events.EventsChannel, events.TypeRoomCreated, events.RoomCreatedPayload{RoomID: id, Owner: owner.Name})

	r.notify(ctx)
	return m, nil
}

// JoinRoom seats p as the second player of room id.
func (r *Registry) JoinRoom(ctx context.Context, id string, p *player.Player) (*match.Match, error) {
	ctx, span := tracer.Start(ctx, "registry.JoinRoom", trace.WithAttributes(
		attribute.String("room.id", id),
		attribute.String("player.name", p.Name),
	))
	defer span.End()

	m := r.Find(id)
	if m == nil {
		span.SetStatus(codes.Error, "Room not found")
		return nil, ErrRoomUnavailable
	}
	if err := m.Join(ctx, p); err != nil {
		if errors.Is(err, match.ErrRoomFull) {
			return nil, ErrRoomUnavailable
		}
		return nil, err
	}
	return m, nil
}

// Find returns the live match with the given id, or nil.
func (r *Registry) Find(id string) *match.Match {
	for _, m := range r.list() {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// CloseRoom retires m. Closing an unknown or already closed room only
// refreshes observers.
func (r *Registry) CloseRoom(ctx context.Context, m *match.Match) {
	ctx, span := tracer.Start(ctx, "registry.CloseRoom", trace.WithAttributes(
		attribute.String("room.id", m.ID),
	))
	defer span.End()

	r.mu.Lock()
	removed := false
	next := make([]*match.Match, 0, len(r.matches))
	for _, live := range r.matches {
		if live == m {
			removed = true
			continue
		}
		next = append(next, live)
	}
	r.matches = next
	r.mu.Unlock()

	if removed {
		activeMatches.Add(ctx, -1)
		slog.InfoContext(ctx, "Room closed", "room.id", m.ID)
		events.Emit(ctx, r.publisher, events.EventsChannel, events.TypeRoomClosed, events.RoomClosedPayload{RoomID: m.ID})
		if r.history != nil {
			if err := r.history.Record(ctx, m.Snapshot()); err != nil {
				slog.ErrorContext(ctx, "failed to record match history", "room.id", m.ID, "error", err)
				span.RecordError(err)
			}
		}
	}
	r.notify(ctx)
}

// Snapshots returns the state of every live match in creation order.
func (r *Registry) Snapshots() []match.Snapshot {
	live := r.list()
	snaps := make([]match.Snapshot, 0, len(live))
	for _, m := range live {
		snaps = append(snaps, m.Snapshot())
	}
	return snaps
}

// ListRooms renders the room list as "id,p1,p2,STATE,n/2" records joined by '|'.
func (r *Registry) ListRooms() string {
	snaps := r.Snapshots()
	rooms := make([]string, 0, len(snaps))
	for _, s := range snaps {
		rooms = append(rooms, fmt.Sprintf("%s,%s,%s,%s,%d/2",
			s.ID, nameOrAbsent(s.Players[0]), nameOrAbsent(s.Players[1]), s.State, s.PlayerCount()))
	}
	return strings.Join(rooms, "|")
}

// Len is the number of live matches.
func (r *Registry) Len() int {
	return len(r.list())
}

// MatchUpdated implements match.Observer.
func (r *Registry) MatchUpdated(ctx context.Context, _ *match.Match) {
	r.notify(ctx)
}

// MatchFinished implements match.Observer.
func (r *Registry) MatchFinished(ctx context.Context, m *match.Match) {
	r.CloseRoom(ctx, m)
}

func (r *Registry) list() []*match.Match {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.matches
}

func (r *Registry) notify(ctx context.Context) {
	r.mu.RLock()
	n := r.notifier
	r.mu.RUnlock()
	if n != nil {
		n.Notify(ctx, r.Snapshots)
	}
}

func nameOrAbsent(name string) string {
	if name == "" {
		return absent
	}
	return name
}
