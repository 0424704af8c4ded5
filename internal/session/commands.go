package session

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"ctchen222/Battleship/internal/api/models"
	"ctchen222/Battleship/internal/match"
	"ctchen222/Battleship/internal/player"
	"ctchen222/Battleship/pkg/proto"
)

func (h *Handler) handleLogin(ctx context.Context, s *Session, req *proto.Request) error {
	if s.user != nil {
		return ErrAlreadyLoggedIn
	}
	user, err := h.auth.Authenticate(ctx, req.Arg(0), req.Arg(1))
	if err != nil {
		return err
	}
	h.login(ctx, s, user)
	return nil
}

// login binds the account to the session. Admin accounts become monitors.
func (h *Handler) login(ctx context.Context, s *Session, user *models.User) {
	s.user = user
	if err := h.presence.SetOnline(ctx, user.Username, s.ID); err != nil {
		slog.WarnContext(ctx, "failed to record presence", "player.name", user.Username, "error", err)
	}

	if user.IsAdmin() {
		s.monitor = true
		h.reply(ctx, s, proto.Format(proto.LoginOK, 0, 0, proto.RoleAdmin))
		h.monitors.Register(ctx, s.ID, s, h.rooms.Snapshots)
		slog.InfoContext(ctx, "Monitor logged in", "session.id", s.ID, "player.name", user.Username)
		return
	}
	h.reply(ctx, s, proto.Format(proto.LoginOK, user.Wins, user.Losses))
	slog.InfoContext(ctx, "Player logged in", "session.id", s.ID, "player.name", user.Username)
}

func (h *Handler) handleRegister(ctx context.Context, s *Session, req *proto.Request) error {
	err := h.auth.Register(ctx, &models.RegisterRequest{
		Username:  req.Arg(0),
		Password:  req.Arg(1),
		FirstName: req.Arg(2),
		LastName:  req.Arg(3),
		Avatar:    req.Arg(4),
	})
	if err != nil {
		return err
	}
	h.reply(ctx, s, proto.RegisterOK)
	return nil
}

// handleLogout forgets the identity. Leaving a live room this way counts as
// leaving the game.
func (h *Handler) handleLogout(ctx context.Context, s *Session, _ *proto.Request) error {
	h.cleanup(ctx, s)
	h.reply(ctx, s, proto.LogoutOK)
	return nil
}

func (h *Handler) handleCreateRoom(ctx context.Context, s *Session, _ *proto.Request) error {
	if err := h.canEnterRoom(s); err != nil {
		return err
	}
	p := player.NewPlayer(s.ID, s.user.Username, s)
	m, err := h.rooms.CreateRoom(ctx, p)
	if err != nil {
		return err
	}
	h.enterRoom(ctx, s, p, m)
	h.reply(ctx, s, proto.Format(proto.RoomCreated, m.ID))
	return nil
}

func (h *Handler) handleJoinRoom(ctx context.Context, s *Session, req *proto.Request) error {
	if err := h.canEnterRoom(s); err != nil {
		return err
	}
	p := player.NewPlayer(s.ID, s.user.Username, s)
	m, err := h.rooms.JoinRoom(ctx, strings.TrimSpace(req.Arg(0)), p)
	if err != nil {
		return err
	}
	h.enterRoom(ctx, s, p, m)
	h.reply(ctx, s, proto.JoinedOK)
	return nil
}

func (h *Handler) handleGetRooms(ctx context.Context, s *Session, _ *proto.Request) error {
	if s.user == nil {
		return ErrLoginRequired
	}
	h.reply(ctx, s, proto.Format(proto.RoomList, h.rooms.ListRooms()))
	return nil
}

func (h *Handler) handlePlaceShips(ctx context.Context, s *Session, req *proto.Request) error {
	if err := h.inRoom(s); err != nil {
		return err
	}
	return s.match.PlaceShips(ctx, s.player, req.Arg(0))
}

func (h *Handler) handleShoot(ctx context.Context, s *Session, req *proto.Request) error {
	if err := h.inRoom(s); err != nil {
		return err
	}
	row, errRow := strconv.Atoi(strings.TrimSpace(req.Arg(0)))
	col, errCol := strconv.Atoi(strings.TrimSpace(req.Arg(1)))
	if errRow != nil || errCol != nil {
		return ErrBadCoordinates
	}
	return s.match.ProcessShot(ctx, s.player, row, col)
}

// canEnterRoom checks that a logged in player is free to create or join a room.
func (h *Handler) canEnterRoom(s *Session) error {
	if s.user == nil {
		return ErrLoginRequired
	}
	if s.monitor {
		return ErrObserverPlay
	}
	if s.match != nil {
		if s.match.State() != match.Finished {
			return ErrAlreadyInRoom
		}
		s.match, s.player = nil, nil
	}
	return nil
}

func (h *Handler) enterRoom(ctx context.Context, s *Session, p *player.Player, m *match.Match) {
	s.player = p
	s.match = m
	if err := h.presence.SetRoom(ctx, p.Name, m.ID); err != nil {
		slog.WarnContext(ctx, "failed to record room presence", "player.name", p.Name, "room.id", m.ID, "error", err)
	}
}

func (h *Handler) inRoom(s *Session) error {
	if s.user == nil {
		return ErrLoginRequired
	}
	if s.monitor {
		return ErrObserverPlay
	}
	if s.match == nil {
		return ErrNoRoom
	}
	return nil
}
