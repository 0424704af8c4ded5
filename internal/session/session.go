package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"ctchen222/Battleship/internal/api/models"
	"ctchen222/Battleship/internal/match"
	"ctchen222/Battleship/internal/player"
	"ctchen222/Battleship/internal/repository"
	"ctchen222/Battleship/pkg/proto"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

//go:generate mockgen -destination=../mocks/mock_authenticator.go -package=mocks ctchen222/Battleship/internal/session Authenticator

var (
	tracer = otel.Tracer("session")
	meter  = otel.Meter("session")

	activeSessions, _ = meter.Int64UpDownCounter("naval.sessions.active", metric.WithDescription("Open client connections"))
)

var (
	ErrLoginRequired   = errors.New("login required")
	ErrAlreadyLoggedIn = errors.New("already logged in")
	ErrObserverPlay    = errors.New("monitors cannot play")
	ErrAlreadyInRoom   = errors.New("you are already in a room")
	ErrNoRoom          = errors.New("you are not in a room")
	ErrBadCoordinates  = errors.New("row and column must be numbers")
	errInternal        = errors.New("internal error")
)

// Authenticator checks and creates accounts.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
	Register(ctx context.Context, req *models.RegisterRequest) error
	VerifyToken(ctx context.Context, token string) (*models.User, error)
}

// Rooms is the part of the match registry a session uses.
type Rooms interface {
	CreateRoom(ctx context.Context, owner *player.Player) (*match.Match, error)
	JoinRoom(ctx context.Context, id string, p *player.Player) (*match.Match, error)
	ListRooms() string
	Snapshots() []match.Snapshot
}

// Monitors is the observer registry for admin sessions.
type Monitors interface {
	Register(ctx context.Context, id string, s player.Sender, snapshots func() []match.Snapshot)
	Unregister(ctx context.Context, id string)
}

// Options holds the collaborators shared by every session.
type Options struct {
	Auth     Authenticator
	Rooms    Rooms
	Monitors Monitors
	Presence repository.PresenceRepository
}

type commandFunc func(ctx context.Context, s *Session, req *proto.Request) error

// Handler serves client connections. One Handler is shared by every connection.
type Handler struct {
	auth     Authenticator
	rooms    Rooms
	monitors Monitors
	presence repository.PresenceRepository
	commands map[proto.Command]commandFunc
}

// NewHandler creates a Handler.
func NewHandler(opts Options) *Handler {
	if opts.Presence == nil {
		opts.Presence = repository.NewNopPresenceRepository()
	}
	h := &Handler{
		auth:     opts.Auth,
		rooms:    opts.Rooms,
		monitors: opts.Monitors,
		presence: opts.Presence,
	}
	h.commands = map[proto.Command]commandFunc{
		proto.CmdLogin:      h.handleLogin,
		proto.CmdRegister:   h.handleRegister,
		proto.CmdLogout:     h.handleLogout,
		proto.CmdCreateRoom: h.handleCreateRoom,
		proto.CmdJoinRoom:   h.handleJoinRoom,
		proto.CmdGetRooms:   h.handleGetRooms,
		proto.CmdPlaceShips: h.handlePlaceShips,
		proto.CmdShoot:      h.handleShoot,
	}
	return h
}

// Authenticator exposes the account checker, e.g. for token pre-authentication.
func (h *Handler) Authenticator() Authenticator {
	return h.auth
}

// Session is the per-connection state. Only the connection's own goroutine
// touches the identity and room fields; writes may come from any goroutine.
type Session struct {
	ID   string
	conn Conn

	writeMu sync.Mutex

	user    *models.User
	monitor bool
	player  *player.Player
	match   *match.Match
}

// Send implements player.Sender.
func (s *Session) Send(line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteLine(line)
}

func (s *Session) name() string {
	if s.user == nil {
		return ""
	}
	return s.user.Username
}

// ServeConn runs the read loop for one connection until it closes. A non-nil
// user logs the session in before the first line is read.
func (h *Handler) ServeConn(ctx context.Context, conn Conn, user *models.User) {
	s := &Session{ID: uuid.New().String(), conn: conn}

	ctx, span := tracer.Start(ctx, "session.ServeConn", trace.WithAttributes(
		attribute.String("session.id", s.ID),
		attribute.String("net.peer", conn.RemoteAddr()),
	))
	defer span.End()

	activeSessions.Add(ctx, 1)
	defer activeSessions.Add(ctx, -1)

	defer conn.Close()
	defer h.cleanup(ctx, s)

	slog.InfoContext(ctx, "Client connected", "session.id", s.ID, "remote", conn.RemoteAddr())
	if user != nil {
		h.login(ctx, s, user)
	}

	for {
		line, err := conn.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				slog.InfoContext(ctx, "Client disconnected", "session.id", s.ID, "player.name", s.name())
				return
			}
			slog.WarnContext(ctx, "Client connection error", "session.id", s.ID, "player.name", s.name(), "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "Client connection error")
			return
		}
		h.handleLine(ctx, s, line)
	}
}

// handleLine dispatches one request. Failures are reported to the client and
// the session keeps going.
func (h *Handler) handleLine(ctx context.Context, s *Session, line string) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic while handling command", "session.id", s.ID, "panic", fmt.Sprint(r))
			h.reply(ctx, s, proto.ErrorLine(errInternal))
		}
	}()

	req, err := proto.ParseLine(line)
	if errors.Is(err, proto.ErrEmptyLine) {
		return
	}
	if err != nil {
		h.reply(ctx, s, proto.ErrorLine(err))
		return
	}

	ctx, span := tracer.Start(ctx, "session."+string(req.Command), trace.WithAttributes(
		attribute.String("session.id", s.ID),
		attribute.String("player.name", s.name()),
	))
	defer span.End()

	if err := h.commands[req.Command](ctx, s, req); err != nil {
		slog.DebugContext(ctx, "command rejected", "session.id", s.ID, "command", req.Command, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Command rejected")
		h.reply(ctx, s, proto.ErrorLine(err))
	}
}

func (h *Handler) reply(ctx context.Context, s *Session, line string) {
	if err := s.Send(line); err != nil {
		slog.DebugContext(ctx, "error writing message to client", "session.id", s.ID, "error", err)
	}
}

// cleanup releases everything the session holds when its connection ends.
func (h *Handler) cleanup(ctx context.Context, s *Session) {
	if s.monitor {
		h.monitors.Unregister(ctx, s.ID)
	}
	if s.match != nil && s.player != nil {
		s.match.HandleDisconnect(ctx, s.player)
	}
	if s.user != nil {
		if err := h.presence.SetOffline(ctx, s.user.Username); err != nil {
			slog.WarnContext(ctx, "failed to clear presence", "player.name", s.user.Username, "error", err)
		}
	}
	s.user, s.player, s.match, s.monitor = nil, nil, nil, false
}
