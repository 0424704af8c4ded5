package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"ctchen222/Battleship/internal/events"
	"ctchen222/Battleship/internal/match"
	"ctchen222/Battleship/internal/player"
	"ctchen222/Battleship/pkg/proto"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	absent    = "---"
	noTurn    = "-"
	recordEnd = ";"
)

var tracer = otel.Tracer("monitor")

// Broadcaster pushes MONITOR_DATA lines to every registered observer.
// Pushes are serialized and each one reads the room state when it is sent, so
// an observer never receives an older view after a newer one.
type Broadcaster struct {
	mu        sync.RWMutex
	observers map[string]player.Sender
	publisher events.Publisher

	pushMu sync.Mutex
}

// NewBroadcaster creates a broadcaster with no observers. Every push is also
// published on the monitor channel.
func NewBroadcaster(pub events.Publisher) *Broadcaster {
	return &Broadcaster{
		observers: make(map[string]player.Sender),
		publisher: pub,
	}
}

// Register adds an observer, then sends it the current state.
func (b *Broadcaster) Register(ctx context.Context, id string, s player.Sender, snapshots func() []match.Snapshot) {
	b.pushMu.Lock()
	defer b.pushMu.Unlock()

	b.mu.Lock()
	b.observers[id] = s
	count := len(b.observers)
	b.mu.Unlock()

	slog.InfoContext(ctx, "Monitor registered", "monitor.id", id, "monitor.count", count)
	if err := s.Send(Encode(snapshots())); err != nil {
		slog.WarnContext(ctx, "error writing monitor data", "monitor.id", id, "error", err)
	}
}

// Unregister removes an observer. Unknown ids are ignored.
func (b *Broadcaster) Unregister(ctx context.Context, id string) {
	b.mu.Lock()
	_, ok := b.observers[id]
	delete(b.observers, id)
	b.mu.Unlock()

	if ok {
		slog.InfoContext(ctx, "Monitor unregistered", "monitor.id", id)
	}
}

// Notify implements registry.Notifier.
func (b *Broadcaster) Notify(ctx context.Context, snapshots func() []match.Snapshot) {
	ctx, span := tracer.Start(ctx, "monitor.Notify")
	defer span.End()

	line := b.push(ctx, snapshots)
	span.SetAttributes(attribute.Int("room.count", strings.Count(line, recordEnd)))

	events.Emit(ctx, b.publisher, events.MonitorChannel, events.TypeMonitorSnapshot,
		events.MonitorSnapshotPayload{Data: strings.TrimPrefix(line, proto.MonitorData+proto.Separator)})
}

func (b *Broadcaster) push(ctx context.Context, snapshots func() []match.Snapshot) string {
	b.pushMu.Lock()
	defer b.pushMu.Unlock()

	line := Encode(snapshots())

	b.mu.RLock()
	targets := make(map[string]player.Sender, len(b.observers))
	for id, s := range b.observers {
		targets[id] = s
	}
	b.mu.RUnlock()

	for id, s := range targets {
		if err := s.Send(line); err != nil {
			slog.WarnContext(ctx, "error writing monitor data", "monitor.id", id, "error", err)
		}
	}
	return line
}

// Len is the number of registered observers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.observers)
}

// Encode renders snapshots as a MONITOR_DATA line. Each room is
// "id|p1|p2|state|turn|p1shots|p1hits|p1sunk|p2shots|p2hits|p2sunk;".
func Encode(snaps []match.Snapshot) string {
	var sb strings.Builder
	sb.WriteString(proto.MonitorData)
	sb.WriteString(proto.Separator)
	for _, s := range snaps {
		turn := noTurn
		switch {
		case s.Players[0] == "":
			turn = absent
		case s.State == match.Playing && s.Turn != "":
			turn = s.Turn
		}
		fmt.Fprintf(&sb, "%s|%s|%s|%s|%s|%d|%d|%d|%d|%d|%d%s",
			s.ID, orAbsent(s.Players[0]), orAbsent(s.Players[1]), s.State, turn,
			s.Stats[0].Shots, s.Stats[0].Hits, s.Stats[0].Sunk,
			s.Stats[1].Shots, s.Stats[1].Hits, s.Stats[1].Sunk,
			recordEnd)
	}
	return sb.String()
}

func orAbsent(name string) string {
	if name == "" {
		return absent
	}
	return name
}
