package registry_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"ctchen222/Battleship/internal/match"
	"ctchen222/Battleship/internal/monitor"
	"ctchen222/Battleship/internal/player"
	"ctchen222/Battleship/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fleetRows = "0,0,0;0,1,0;0,2,0;0,3,0;0,4,0"

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) Send(line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	return nil
}

func (r *lineRecorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.lines) == 0 {
		return ""
	}
	return r.lines[len(r.lines)-1]
}

type historyRecorder struct {
	mu    sync.Mutex
	snaps []match.Snapshot
}

func (h *historyRecorder) Record(_ context.Context, s match.Snapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snaps = append(h.snaps, s)
	return nil
}

// stalledSender blocks every write until release is closed.
type stalledSender struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *stalledSender) Send(string) error {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return nil
}

func newPlayer(name string) (*player.Player, *lineRecorder) {
	rec := &lineRecorder{}
	return player.NewPlayer("s-"+name, name, rec), rec
}

func TestRegistry_CreateAndJoin(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(registry.Options{})

	alice, aliceIn := newPlayer("alice")
	bob, bobIn := newPlayer("bob")

	m, err := reg.CreateRoom(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "Room-1", m.ID)
	assert.Equal(t, "AUTO_JOINED:Room-1", aliceIn.last())
	assert.Equal(t, "Room-1,alice,---,WAITING,1/2", reg.ListRooms())

	joined, err := reg.JoinRoom(ctx, "Room-1", bob)
	require.NoError(t, err)
	assert.Same(t, m, joined)
	assert.Equal(t, "Start_Placing_Ships", bobIn.last())
	assert.Equal(t, "Room-1,alice,bob,PLACING_SHIPS,2/2", reg.ListRooms())

	carol, _ := newPlayer("carol")
	_, err = reg.JoinRoom(ctx, "Room-1", carol)
	assert.ErrorIs(t, err, registry.ErrRoomUnavailable)
	_, err = reg.JoinRoom(ctx, "Room-7", carol)
	assert.ErrorIs(t, err, registry.ErrRoomUnavailable)
}

func TestRegistry_Capacity(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(registry.Options{MaxMatches: 4})

	for i := 1; i <= 4; i++ {
		p, _ := newPlayer(fmt.Sprintf("p%d", i))
		m, err := reg.CreateRoom(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("Room-%d", i), m.ID)
	}

	late, _ := newPlayer("late")
	_, err := reg.CreateRoom(ctx, late)
	assert.ErrorIs(t, err, registry.ErrCapacity)
	assert.Equal(t, 4, reg.Len())
	assert.Len(t, strings.Split(reg.ListRooms(), "|"), 4)
}

func TestRegistry_IDsAreNotReused(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(registry.Options{})

	a, _ := newPlayer("a")
	b, _ := newPlayer("b")
	first, err := reg.CreateRoom(ctx, a)
	require.NoError(t, err)
	_, err = reg.CreateRoom(ctx, b)
	require.NoError(t, err)

	first.HandleDisconnect(ctx, a)
	assert.Nil(t, reg.Find("Room-1"))

	c, _ := newPlayer("c")
	m, err := reg.CreateRoom(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "Room-3", m.ID)
	assert.Equal(t, "Room-2,b,---,WAITING,1/2|Room-3,c,---,WAITING,1/2", reg.ListRooms())
}

func TestRegistry_DisconnectRetiresRoomAndUpdatesMonitor(t *testing.T) {
	ctx := context.Background()
	history := &historyRecorder{}
	reg := registry.New(registry.Options{History: history})
	b := monitor.NewBroadcaster(nil)
	reg.SetNotifier(b)

	observer := &lineRecorder{}
	b.Register(ctx, "admin", observer, reg.Snapshots)
	assert.Equal(t, "MONITOR_DATA:", observer.last())

	alice, _ := newPlayer("alice")
	bob, bobIn := newPlayer("bob")
	m, err := reg.CreateRoom(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "MONITOR_DATA:Room-1|alice|---|WAITING|-|0|0|0|0|0|0;", observer.last())

	_, err = reg.JoinRoom(ctx, m.ID, bob)
	require.NoError(t, err)
	require.NoError(t, m.PlaceShips(ctx, alice, fleetRows))
	require.NoError(t, m.PlaceShips(ctx, bob, fleetRows))
	require.NoError(t, m.ProcessShot(ctx, alice, 0, 0))
	assert.Equal(t, "MONITOR_DATA:Room-1|alice|bob|PLAYING|alice|1|1|0|0|0|0;", observer.last())

	m.HandleDisconnect(ctx, alice)
	assert.Equal(t, "GAME_OVER:WIN_BY_DISCONNECT", bobIn.last())
	assert.Equal(t, "MONITOR_DATA:", observer.last())
	assert.Empty(t, reg.ListRooms())
	assert.Equal(t, 0, reg.Len())

	require.Len(t, history.snaps, 1)
	assert.Equal(t, "bob", history.snaps[0].Winner)
	assert.Equal(t, match.ReasonDisconnect, history.snaps[0].Reason)

	// closing again is harmless
	reg.CloseRoom(ctx, m)
	assert.Len(t, history.snaps, 1)
}

func TestRegistry_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(registry.Options{MaxMatches: 4})

	var wg sync.WaitGroup
	var mu sync.Mutex
	created, rejected := 0, 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, _ := newPlayer(fmt.Sprintf("p%d", i))
			_, err := reg.CreateRoom(ctx, p)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rejected++
			} else {
				created++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, created)
	assert.Equal(t, 12, rejected)
	assert.Equal(t, 4, reg.Len())
}

func TestRegistry_StalledOwnerDoesNotBlockReaders(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(registry.Options{MaxMatches: 1})

	owner := &stalledSender{entered: make(chan struct{}), release: make(chan struct{})}
	created := make(chan error, 1)
	go func() {
		_, err := reg.CreateRoom(ctx, player.NewPlayer("s-slow", "slow", owner))
		created <- err
	}()
	<-owner.entered

	listed := make(chan string, 1)
	go func() { listed <- reg.ListRooms() }()
	select {
	case rooms := <-listed:
		assert.Empty(t, rooms, "a room is listed only once its owner has been told")
	case <-time.After(time.Second):
		close(owner.release)
		t.Fatal("ListRooms blocked behind the owner's write")
	}

	other, _ := newPlayer("other")
	_, err := reg.CreateRoom(ctx, other)
	assert.ErrorIs(t, err, registry.ErrCapacity, "a pending room still counts toward the limit")
	assert.Nil(t, reg.Find("Room-1"))

	close(owner.release)
	require.NoError(t, <-created)
	assert.Equal(t, "Room-1,slow,---,WAITING,1/2", reg.ListRooms())
}
