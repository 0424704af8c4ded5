package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"ctchen222/Battleship/internal/api/controller"
	"ctchen222/Battleship/internal/api/models"
	"ctchen222/Battleship/internal/api/response"
	"ctchen222/Battleship/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("server")

// Server exposes the game over a raw TCP line protocol and over WebSocket,
// next to the REST API.
type Server struct {
	sessions *session.Handler
	users    *controller.UserController
	rooms    *controller.RoomController
	upgrader websocket.Upgrader

	baseCtx context.Context
	wg      sync.WaitGroup
	mu      sync.Mutex
	conns   map[io.Closer]struct{}
}

// NewServer creates a server. baseCtx bounds every client session.
func NewServer(baseCtx context.Context, sessions *session.Handler, users *controller.UserController, rooms *controller.RoomController) *Server {
	return &Server{
		sessions: sessions,
		users:    users,
		rooms:    rooms,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		baseCtx: baseCtx,
		conns:   make(map[io.Closer]struct{}),
	}
}

// Engine builds the gin router.
func (s *Server) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.rooms.Health)
	r.GET("/ws", s.handleWebSocket)

	api := r.Group("/api")
	{
		api.POST("/users/register", s.users.Register)
		api.POST("/users/login", s.users.Login)
		api.GET("/rooms", s.rooms.List)
		api.GET("/matches/recent", s.rooms.Recent)
		api.GET("/players/online", s.rooms.Online)
	}
	return r
}

// handleWebSocket upgrades the connection and hands it to a session. A
// ?token= issued by the login endpoint logs the session in up front.
func (s *Server) handleWebSocket(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "server.handleWebSocket", trace.WithAttributes(
		attribute.String("http.url", c.Request.URL.String()),
		attribute.String("http.method", c.Request.Method),
	))
	defer span.End()

	var user *models.User
	if token := c.Query("token"); token != "" {
		u, err := s.sessions.Authenticator().VerifyToken(ctx, token)
		if err != nil {
			slog.WarnContext(ctx, "rejected websocket token", "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "Invalid token")
			response.ErrorResponse(c, http.StatusUnauthorized, err.Error())
			return
		}
		user = u
		span.SetAttributes(attribute.String("player.name", u.Username))
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to upgrade connection", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to upgrade connection")
		return
	}

	s.serve(session.NewWebSocketConn(ws), user)
}

// ServeTCP accepts line-protocol clients until the listener is closed.
func (s *Server) ServeTCP(ln net.Listener) error {
	slog.Info("tcp server started", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.serve(session.NewTCPConn(conn), nil)
	}
}

func (s *Server) serve(conn session.Conn, user *models.User) {
	s.track(conn, true)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.track(conn, false)
		s.sessions.ServeConn(s.baseCtx, conn, user)
	}()
}

func (s *Server) track(c io.Closer, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}

// CloseSessions closes every client connection and waits for their sessions
// to clean up, or for ctx to expire.
func (s *Server) CloseSessions(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
