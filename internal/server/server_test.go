package server_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ctchen222/Battleship/internal/api/controller"
	"ctchen222/Battleship/internal/api/models"
	apirepository "ctchen222/Battleship/internal/api/repository"
	"ctchen222/Battleship/internal/api/service"
	"ctchen222/Battleship/internal/db"
	"ctchen222/Battleship/internal/monitor"
	"ctchen222/Battleship/internal/registry"
	"ctchen222/Battleship/internal/repository"
	"ctchen222/Battleship/internal/server"
	"ctchen222/Battleship/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newServer(t *testing.T) *server.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(context.Background(), conn))

	users := service.NewUserService(apirepository.NewUserRepository(conn, bcrypt.MinCost), service.Options{JWTSecret: "test-secret"})
	require.NoError(t, users.Register(context.Background(), &models.RegisterRequest{Username: "alice", Password: "nautilus1"}))

	history := repository.NewMemoryHistoryRepository()
	presence := repository.NewNopPresenceRepository()
	monitors := monitor.NewBroadcaster(nil)
	rooms := registry.New(registry.Options{Recorder: users, Notifier: monitors, History: history})
	sessions := session.NewHandler(session.Options{Auth: users, Rooms: rooms, Monitors: monitors, Presence: presence})

	ctx, cancel := context.WithCancel(context.Background())
	srv := server.NewServer(ctx, sessions, controller.NewUserController(users), controller.NewRoomController(rooms, history, presence))
	t.Cleanup(func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		assert.NoError(t, srv.CloseSessions(shutdownCtx))
		cancel()
	})
	return srv
}

func TestServer_Health(t *testing.T) {
	srv := newServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestServer_TCP(t *testing.T) {
	srv := newServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- srv.ServeTCP(ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	r := bufio.NewReader(conn)

	send := func(line string) string {
		t.Helper()
		_, err := conn.Write([]byte(line + "\n"))
		require.NoError(t, err)
		reply, err := r.ReadString('\n')
		require.NoError(t, err)
		return strings.TrimRight(reply, "\n")
	}

	assert.Equal(t, "ERROR:login required", send("GET_ROOMS"))
	assert.Equal(t, "LOGIN_OK:0:0", send("LOGIN:alice:nautilus1"))
	assert.Equal(t, "AUTO_JOINED:Room-1", send("CREATE_ROOM"))

	reply, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ROOM_CREATED:Room-1\n", reply)

	require.NoError(t, ln.Close())
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ServeTCP did not return after the listener closed")
	}
}

func TestServer_WebSocketToken(t *testing.T) {
	srv := newServer(t)
	ts := httptest.NewServer(srv.Engine())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/users/login", "application/json", strings.NewReader(`{"username":"alice","password":"nautilus1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Extras models.LoginResponse `json:"extras"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Extras.Token)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	_, rejected, err := websocket.DefaultDialer.Dial(wsURL+"?token=bogus", nil)
	require.Error(t, err)
	require.NotNil(t, rejected)
	assert.Equal(t, http.StatusUnauthorized, rejected.StatusCode)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+body.Extras.Token, nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))

	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "LOGIN_OK:0:0", strings.TrimRight(string(msg), "\n"))

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("GET_ROOMS")))
	_, msg, err = ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "ROOM_LIST:", strings.TrimRight(string(msg), "\n"))
}
