package match

import (
	"context"
	"log/slog"
	"sync"

	"ctchen222/Battleship/internal/events"
	"ctchen222/Battleship/internal/game"
	"ctchen222/Battleship/internal/player"
	"ctchen222/Battleship/pkg/proto"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("match")
	meter  = otel.Meter("match")

	shotsCounter, _    = meter.Int64Counter("naval.shots", metric.WithDescription("Shots accepted, by result"))
	finishedCounter, _ = meter.Int64Counter("naval.matches.finished", metric.WithDescription("Matches that reached FINISHED, by reason"))
)

// Options carries the collaborators a match reports to.
type Options struct {
	Recorder  StatsRecorder
	Observer  Observer
	Publisher events.Publisher
}

// Match is one two-player game. All state is guarded by mu; player
// notifications are sent while holding it so both players observe the same
// order of events.
type Match struct {
	ID string

	mu      sync.Mutex
	state   State
	players [2]*player.Player
	boards  [2]game.Board
	fleets  [2]*game.Fleet
	ready   [2]bool
	turn    int
	stats   [2]Stats
	winner  string
	reason  string

	recorder  StatsRecorder
	observer  Observer
	publisher events.Publisher
}

// settlement collects side effects that must run after mu is released.
type settlement struct {
	results  []result
	events   []pendingEvent
	finished bool
}

type result struct {
	name string
	won  bool
}

type pendingEvent struct {
	kind    string
	payload any
}

// New creates a match in Waiting with owner in the first slot and tells the
// owner which room it landed in.
func New(ctx context.Context, id string, owner *player.Player, opts Options) *Match {
	m := &Match{
		ID:        id,
		state:     Waiting,
		recorder:  opts.Recorder,
		observer:  opts.Observer,
		publisher: opts.Publisher,
	}
	m.players[0] = owner
	m.send(ctx, owner, proto.Format(proto.AutoJoined, id))
	return m
}

// Join seats p in the second slot and moves the match to ship placement.
func (m *Match) Join(ctx context.Context, p *player.Player) error {
	ctx, span := tracer.Start(ctx, "match.Join", trace.WithAttributes(
		attribute.String("room.id", m.ID),
		attribute.String("player.name", p.Name),
	))
	defer span.End()

	st, err := m.join(ctx, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Join rejected")
		return err
	}
	m.settle(ctx, st)
	return nil
}

func (m *Match) join(ctx context.Context, p *player.Player) (*settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Waiting || m.players[1] != nil || m.players[0] == p {
		return nil, ErrRoomFull
	}

	owner := m.players[0]
	m.players[1] = p
	m.send(ctx, owner, proto.Format(proto.PlayerJoined, p.Name))
	m.send(ctx, p, proto.Format(proto.RoomInfo, m.ID, owner.Name))

	m.state = PlacingShips
	m.broadcast(ctx, proto.StartPlacingShips)
	slog.InfoContext(ctx, "Player joined room, placing ships", "room.id", m.ID, "player.name", p.Name)

	return &settlement{events: []pendingEvent{{
		kind:    events.TypePlayerJoined,
		payload: events.PlayerJoinedPayload{RoomID: m.ID, Player: p.Name},
	}}}, nil
}

// PlaceShips replaces p's fleet with the submitted placement. A rejected
// submission leaves p with an empty board and not ready.
func (m *Match) PlaceShips(ctx context.Context, p *player.Player, raw string) error {
	ctx, span := tracer.Start(ctx, "match.PlaceShips", trace.WithAttributes(
		attribute.String("room.id", m.ID),
		attribute.String("player.name", p.Name),
	))
	defer span.End()

	st, err := m.placeShips(ctx, p, raw)
	if err != nil {
		slog.WarnContext(ctx, "invalid ship placement", "room.id", m.ID, "player.name", p.Name, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid ship placement")
		return err
	}
	m.settle(ctx, st)
	return nil
}

func (m *Match) placeShips(ctx context.Context, p *player.Player, raw string) (*settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != PlacingShips {
		return nil, ErrNotPlacing
	}
	slot := m.slotOf(p)
	if slot < 0 {
		return nil, ErrNotParticipant
	}

	m.boards[slot].Reset()
	m.fleets[slot] = nil
	m.ready[slot] = false

	placements, err := game.ParsePlacements(raw)
	if err != nil {
		return nil, err
	}
	fleet, err := game.BuildFleet(placements)
	if err != nil {
		return nil, err
	}

	m.boards[slot].Deploy(fleet)
	m.fleets[slot] = fleet
	m.ready[slot] = true
	m.send(ctx, p, proto.ShipsPlacedOK)

	st := &settlement{}
	if m.ready[0] && m.ready[1] {
		m.start(ctx, st)
	}
	return st, nil
}

func (m *Match) start(ctx context.Context, st *settlement) {
	m.state = Playing
	m.turn = 0
	m.send(ctx, m.players[0], proto.Format(proto.GameStart, m.players[1].Name))
	m.send(ctx, m.players[1], proto.Format(proto.GameStart, m.players[0].Name))
	m.notifyTurn(ctx)

	slog.InfoContext(ctx, "Both fleets placed, game started", "room.id", m.ID)
	st.events = append(st.events, pendingEvent{
		kind:    events.TypeGameStarted,
		payload: events.GameStartedPayload{RoomID: m.ID, Players: []string{m.players[0].Name, m.players[1].Name}},
	})
}

// ProcessShot fires at (row, col) on the opponent's board. The shooter keeps
// the turn after a hit.
func (m *Match) ProcessShot(ctx context.Context, p *player.Player, row, col int) error {
	ctx, span := tracer.Start(ctx, "match.ProcessShot", trace.WithAttributes(
		attribute.String("room.id", m.ID),
		attribute.String("player.name", p.Name),
		attribute.Int("shot.row", row),
		attribute.Int("shot.col", col),
	))
	defer span.End()

	st, err := m.processShot(ctx, p, row, col)
	if err != nil {
		span.SetAttributes(attribute.Bool("shot.valid", false))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Shot rejected")
		return err
	}
	span.SetAttributes(attribute.Bool("shot.valid", true))
	m.settle(ctx, st)
	return nil
}

func (m *Match) processShot(ctx context.Context, p *player.Player, row, col int) (*settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Playing {
		return nil, ErrNotPlaying
	}
	shooter := m.slotOf(p)
	if shooter < 0 {
		return nil, ErrNotParticipant
	}
	if shooter != m.turn {
		return nil, ErrNotYourTurn
	}

	victim := 1 - shooter
	res, err := m.boards[victim].Fire(m.fleets[victim], row, col)
	if err != nil {
		return nil, err
	}

	m.stats[shooter].Shots++
	outcome := proto.ShotMiss
	if res.Hit {
		outcome = proto.ShotHit
		m.stats[shooter].Hits++
		if res.Sunk != nil {
			m.stats[shooter].Sunk++
		}
	} else {
		m.turn = victim
	}
	shotsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", outcome)))

	a, b := m.players[shooter], m.players[victim]
	m.send(ctx, a, proto.Format(proto.ShotResult, outcome, row, col))
	m.send(ctx, b, proto.Format(proto.OpponentShot, outcome, row, col))

	if s := res.Sunk; s != nil {
		m.send(ctx, a, proto.Format(proto.ShipSunk, s.Length, s.Origin.X, s.Origin.Y, s.Orientation))
		m.send(ctx, b, proto.Format(proto.YourShipSunk, s.Length, s.Origin.X, s.Origin.Y, s.Orientation))
	}

	st := &settlement{events: []pendingEvent{{
		kind: events.TypeShotFired,
		payload: events.ShotFiredPayload{
			RoomID: m.ID, Shooter: a.Name, Row: row, Col: col, Hit: res.Hit, Sunk: res.Sunk != nil,
		},
	}}}

	if res.Defeated {
		m.state = Finished
		m.winner = a.Name
		m.reason = ReasonFleetDestroyed
		m.send(ctx, a, proto.Format(proto.GameOver, proto.OutcomeWin))
		m.send(ctx, b, proto.Format(proto.GameOver, proto.OutcomeLose))
		slog.InfoContext(ctx, "Fleet destroyed, game over", "room.id", m.ID, "winner", a.Name)

		st.finished = true
		st.results = []result{{name: a.Name, won: true}, {name: b.Name, won: false}}
		st.events = append(st.events, pendingEvent{
			kind:    events.TypeGameOver,
			payload: events.GameOverPayload{RoomID: m.ID, Winner: a.Name, Loser: b.Name, Reason: m.reason},
		})
		return st, nil
	}

	m.notifyTurn(ctx)
	return st, nil
}

// HandleDisconnect ends the match when one of its players goes away. An
// opponent still seated during placement or play wins by forfeit.
func (m *Match) HandleDisconnect(ctx context.Context, p *player.Player) {
	ctx, span := tracer.Start(ctx, "match.HandleDisconnect", trace.WithAttributes(
		attribute.String("room.id", m.ID),
		attribute.String("player.name", p.Name),
	))
	defer span.End()

	if st := m.disconnect(ctx, p); st != nil {
		m.settle(ctx, st)
	}
}

func (m *Match) disconnect(ctx context.Context, p *player.Player) *settlement {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Finished {
		return nil
	}
	slot := m.slotOf(p)
	if slot < 0 {
		return nil
	}

	st := &settlement{finished: true}
	other := m.players[1-slot]
	payload := events.GameOverPayload{RoomID: m.ID, Reason: ReasonAbandoned}

	if other != nil && (m.state == PlacingShips || m.state == Playing) {
		m.send(ctx, other, proto.Format(proto.GameOver, proto.OutcomeWinByDisconnect))
		m.winner = other.Name
		m.reason = ReasonDisconnect
		st.results = []result{{name: other.Name, won: true}}
		payload = events.GameOverPayload{RoomID: m.ID, Winner: other.Name, Loser: p.Name, Reason: ReasonDisconnect}
	} else {
		m.reason = ReasonAbandoned
	}
	m.state = Finished
	slog.InfoContext(ctx, "Player left, room finished", "room.id", m.ID, "player.name", p.Name, "reason", m.reason)

	st.events = []pendingEvent{{kind: events.TypeGameOver, payload: payload}}
	return st
}

// Snapshot copies the observable state under the match lock.
func (m *Match) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		ID:     m.ID,
		State:  m.state,
		Stats:  m.stats,
		Winner: m.winner,
		Reason: m.reason,
	}
	for i, p := range m.players {
		if p != nil {
			s.Players[i] = p.Name
		}
	}
	if m.state == Playing {
		s.Turn = m.players[m.turn].Name
	}
	return s
}

func (m *Match) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Has reports whether p holds a slot in the match.
func (m *Match) Has(p *player.Player) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slotOf(p) >= 0
}

func (m *Match) slotOf(p *player.Player) int {
	for i, seated := range m.players {
		if seated != nil && seated == p {
			return i
		}
	}
	return -1
}

func (m *Match) notifyTurn(ctx context.Context) {
	m.send(ctx, m.players[m.turn], proto.YourTurn)
	m.send(ctx, m.players[1-m.turn], proto.OpponentTurn)
}

func (m *Match) broadcast(ctx context.Context, line string) {
	for _, p := range m.players {
		m.send(ctx, p, line)
	}
}

func (m *Match) send(ctx context.Context, p *player.Player, line string) {
	if p == nil {
		return
	}
	if err := p.Send(line); err != nil {
		slog.DebugContext(ctx, "error writing message to player", "room.id", m.ID, "player.name", p.Name, "error", err)
	}
}

func (m *Match) settle(ctx context.Context, st *settlement) {
	if m.recorder != nil {
		for _, r := range st.results {
			if err := m.recorder.RecordResult(ctx, r.name, r.won); err != nil {
				slog.ErrorContext(ctx, "failed to record game result", "room.id", m.ID, "player.name", r.name, "error", err)
			}
		}
	}
	for _, e := range st.events {
		events.Emit(ctx, m.publisher, events.EventsChannel, e.kind, e.payload)
	}

	if st.finished {
		finishedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", m.Snapshot().Reason)))
		if m.observer != nil {
			m.observer.MatchFinished(ctx, m)
		}
		return
	}
	if m.observer != nil {
		m.observer.MatchUpdated(ctx, m)
	}
}
