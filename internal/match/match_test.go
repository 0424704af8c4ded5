package match_test

import (
	"context"
	"sync"
	"testing"

	"ctchen222/Battleship/internal/events"
	"ctchen222/Battleship/internal/game"
	"ctchen222/Battleship/internal/match"
	"ctchen222/Battleship/internal/mocks"
	"ctchen222/Battleship/internal/player"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
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

// drain returns the lines received since the previous drain.
func (r *lineRecorder) drain() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.lines
	r.lines = nil
	return out
}

type fakeObserver struct {
	mu       sync.Mutex
	updated  int
	finished []string
}

func (o *fakeObserver) MatchUpdated(context.Context, *match.Match) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.updated++
}

func (o *fakeObserver) MatchFinished(_ context.Context, m *match.Match) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, m.ID)
}

type fixture struct {
	m              *match.Match
	alice, bob     *player.Player
	aliceIn, bobIn *lineRecorder
	observer       *fakeObserver
}

func newFixture(t *testing.T, recorder match.StatsRecorder) *fixture {
	t.Helper()
	f := &fixture{aliceIn: &lineRecorder{}, bobIn: &lineRecorder{}, observer: &fakeObserver{}}
	f.alice = player.NewPlayer("s-1", "alice", f.aliceIn)
	f.bob = player.NewPlayer("s-2", "bob", f.bobIn)
	f.m = match.New(context.Background(), "Room-1", f.alice, match.Options{
		Recorder:  recorder,
		Observer:  f.observer,
		Publisher: events.NewNopPublisher(),
	})
	return f
}

// playing drives the fixture to the first turn with both fleets on fleetRows.
func (f *fixture) playing(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.m.Join(ctx, f.bob))
	require.NoError(t, f.m.PlaceShips(ctx, f.alice, fleetRows))
	require.NoError(t, f.m.PlaceShips(ctx, f.bob, fleetRows))
	require.Equal(t, match.Playing, f.m.State())
	f.aliceIn.drain()
	f.bobIn.drain()
}

func TestMatch_JoinAndStart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	assert.Equal(t, []string{"AUTO_JOINED:Room-1"}, f.aliceIn.drain())
	assert.Equal(t, match.Waiting, f.m.State())

	require.NoError(t, f.m.Join(ctx, f.bob))
	assert.Equal(t, []string{"PLAYER_JOINED:bob", "Start_Placing_Ships"}, f.aliceIn.drain())
	assert.Equal(t, []string{"ROOM_INFO:Room-1:alice", "Start_Placing_Ships"}, f.bobIn.drain())
	assert.Equal(t, match.PlacingShips, f.m.State())

	require.NoError(t, f.m.PlaceShips(ctx, f.alice, fleetRows))
	assert.Equal(t, []string{"SHIPS_PLACED_OK"}, f.aliceIn.drain())
	assert.Equal(t, match.PlacingShips, f.m.State())

	require.NoError(t, f.m.PlaceShips(ctx, f.bob, "0,0,1;1,0,1;2,0,1;3,0,1;4,0,1"))
	assert.Equal(t, []string{"GAME_START:bob", "YOUR_TURN"}, f.aliceIn.drain())
	assert.Equal(t, []string{"SHIPS_PLACED_OK", "GAME_START:alice", "OPPONENT_TURN"}, f.bobIn.drain())

	snap := f.m.Snapshot()
	assert.Equal(t, match.Playing, snap.State)
	assert.Equal(t, "alice", snap.Turn)
	assert.Equal(t, [2]string{"alice", "bob"}, snap.Players)
	assert.Equal(t, 2, snap.PlayerCount())
}

func TestMatch_JoinRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	carol := player.NewPlayer("s-3", "carol", &lineRecorder{})

	assert.ErrorIs(t, f.m.Join(ctx, f.alice), match.ErrRoomFull)
	require.NoError(t, f.m.Join(ctx, f.bob))
	assert.ErrorIs(t, f.m.Join(ctx, carol), match.ErrRoomFull)
}

func TestMatch_PlaceShips(t *testing.T) {
	ctx := context.Background()

	t.Run("rejected before both players are seated", func(t *testing.T) {
		f := newFixture(t, nil)
		assert.ErrorIs(t, f.m.PlaceShips(ctx, f.alice, fleetRows), match.ErrNotPlacing)
	})

	t.Run("failed resubmission clears readiness", func(t *testing.T) {
		f := newFixture(t, nil)
		require.NoError(t, f.m.Join(ctx, f.bob))
		require.NoError(t, f.m.PlaceShips(ctx, f.alice, fleetRows))

		err := f.m.PlaceShips(ctx, f.alice, "0,0,0;1,0,1;0,2,0;0,3,0;0,4,0")
		assert.ErrorIs(t, err, game.ErrOverlap)

		require.NoError(t, f.m.PlaceShips(ctx, f.bob, fleetRows))
		assert.Equal(t, match.PlacingShips, f.m.State(), "game must wait for a valid fleet from alice")

		require.NoError(t, f.m.PlaceShips(ctx, f.alice, fleetRows))
		assert.Equal(t, match.Playing, f.m.State())
	})

	t.Run("resubmitting the same fleet keeps the player ready", func(t *testing.T) {
		f := newFixture(t, nil)
		require.NoError(t, f.m.Join(ctx, f.bob))
		require.NoError(t, f.m.PlaceShips(ctx, f.alice, fleetRows))

		placements, err := game.ParsePlacements(fleetRows)
		require.NoError(t, err)
		fleet, err := game.BuildFleet(placements)
		require.NoError(t, err)
		require.NoError(t, f.m.PlaceShips(ctx, f.alice, fleet.Spec()))
		assert.Equal(t, match.PlacingShips, f.m.State())
		f.aliceIn.drain()
		f.bobIn.drain()

		require.NoError(t, f.m.PlaceShips(ctx, f.bob, fleetRows))
		assert.Equal(t, match.Playing, f.m.State())
		assert.Equal(t, []string{"GAME_START:bob", "YOUR_TURN"}, f.aliceIn.drain())
		assert.Equal(t, []string{"SHIPS_PLACED_OK", "GAME_START:alice", "OPPONENT_TURN"}, f.bobIn.drain())
	})

	t.Run("out of bounds and wrong count", func(t *testing.T) {
		f := newFixture(t, nil)
		require.NoError(t, f.m.Join(ctx, f.bob))
		assert.ErrorIs(t, f.m.PlaceShips(ctx, f.alice, "7,0,0;0,1,0;0,2,0;0,3,0;0,4,0"), game.ErrOutOfBounds)
		assert.ErrorIs(t, f.m.PlaceShips(ctx, f.alice, "0,0,0"), game.ErrRosterSize)
	})

	t.Run("outsider rejected", func(t *testing.T) {
		f := newFixture(t, nil)
		require.NoError(t, f.m.Join(ctx, f.bob))
		carol := player.NewPlayer("s-3", "carol", &lineRecorder{})
		assert.ErrorIs(t, f.m.PlaceShips(ctx, carol, fleetRows), match.ErrNotParticipant)
	})
}

func TestMatch_ProcessShot(t *testing.T) {
	ctx := context.Background()

	t.Run("hit keeps the turn and sinking reports the ship", func(t *testing.T) {
		f := newFixture(t, nil)
		f.playing(t)

		require.NoError(t, f.m.ProcessShot(ctx, f.alice, 0, 0))
		assert.Equal(t, []string{"SHOT_RESULT:HIT:0:0", "YOUR_TURN"}, f.aliceIn.drain())
		assert.Equal(t, []string{"OPPONENT_SHOT:HIT:0:0", "OPPONENT_TURN"}, f.bobIn.drain())

		require.NoError(t, f.m.ProcessShot(ctx, f.alice, 0, 1))
		assert.Equal(t, []string{"SHOT_RESULT:HIT:0:1", "SHIP_SUNK:2:0:0:H", "YOUR_TURN"}, f.aliceIn.drain())
		assert.Equal(t, []string{"OPPONENT_SHOT:HIT:0:1", "YOUR_SHIP_SUNK:2:0:0:H", "OPPONENT_TURN"}, f.bobIn.drain())

		snap := f.m.Snapshot()
		assert.Equal(t, match.Stats{Shots: 2, Hits: 2, Sunk: 1}, snap.Stats[0])
		assert.Equal(t, "alice", snap.Turn)
	})

	t.Run("miss flips the turn", func(t *testing.T) {
		f := newFixture(t, nil)
		f.playing(t)

		require.NoError(t, f.m.ProcessShot(ctx, f.alice, 7, 7))
		assert.Equal(t, []string{"SHOT_RESULT:MISS:7:7", "OPPONENT_TURN"}, f.aliceIn.drain())
		assert.Equal(t, []string{"OPPONENT_SHOT:MISS:7:7", "YOUR_TURN"}, f.bobIn.drain())
		assert.Equal(t, "bob", f.m.Snapshot().Turn)

		assert.ErrorIs(t, f.m.ProcessShot(ctx, f.alice, 6, 6), match.ErrNotYourTurn)
	})

	t.Run("rejected shots leave counters alone", func(t *testing.T) {
		f := newFixture(t, nil)
		f.playing(t)

		require.NoError(t, f.m.ProcessShot(ctx, f.alice, 0, 0))
		before := f.m.Snapshot()

		assert.ErrorIs(t, f.m.ProcessShot(ctx, f.alice, 0, 0), game.ErrAlreadyResolved)
		assert.ErrorIs(t, f.m.ProcessShot(ctx, f.alice, 8, 0), game.ErrOutOfBounds)
		assert.ErrorIs(t, f.m.ProcessShot(ctx, f.bob, 1, 1), match.ErrNotYourTurn)
		assert.Equal(t, before, f.m.Snapshot())
	})

	t.Run("not playing", func(t *testing.T) {
		f := newFixture(t, nil)
		assert.ErrorIs(t, f.m.ProcessShot(ctx, f.alice, 0, 0), match.ErrNotPlaying)
	})
}

func TestMatch_WinRecordsBothResults(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	recorder := mocks.NewMockStatsRecorder(ctrl)
	recorder.EXPECT().RecordResult(gomock.Any(), "alice", true).Return(nil)
	recorder.EXPECT().RecordResult(gomock.Any(), "bob", false).Return(nil)

	f := newFixture(t, recorder)
	f.playing(t)

	for row := 0; row < game.RosterSize; row++ {
		for col := 0; col < game.RosterLengths[row]; col++ {
			require.NoError(t, f.m.ProcessShot(ctx, f.alice, row, col))
		}
	}

	aliceLines := f.aliceIn.drain()
	bobLines := f.bobIn.drain()
	assert.Equal(t, "GAME_OVER:WIN", aliceLines[len(aliceLines)-1])
	assert.Equal(t, "GAME_OVER:LOSE", bobLines[len(bobLines)-1])
	assert.Contains(t, aliceLines, "SHIP_SUNK:4:0:4:H")

	snap := f.m.Snapshot()
	assert.Equal(t, match.Finished, snap.State)
	assert.Equal(t, "alice", snap.Winner)
	assert.Equal(t, match.ReasonFleetDestroyed, snap.Reason)
	assert.Empty(t, snap.Turn)
	assert.Equal(t, match.Stats{Shots: 14, Hits: 14, Sunk: 5}, snap.Stats[0])
	assert.Equal(t, []string{"Room-1"}, f.observer.finished)

	assert.ErrorIs(t, f.m.ProcessShot(ctx, f.alice, 7, 7), match.ErrNotPlaying)
}

func TestMatch_HandleDisconnect(t *testing.T) {
	ctx := context.Background()

	t.Run("forfeit during play", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		recorder := mocks.NewMockStatsRecorder(ctrl)
		recorder.EXPECT().RecordResult(gomock.Any(), "bob", true).Return(nil)

		f := newFixture(t, recorder)
		f.playing(t)

		f.m.HandleDisconnect(ctx, f.alice)
		assert.Equal(t, []string{"GAME_OVER:WIN_BY_DISCONNECT"}, f.bobIn.drain())
		assert.Empty(t, f.aliceIn.drain())
		assert.Equal(t, match.Finished, f.m.State())
		assert.Equal(t, "bob", f.m.Snapshot().Winner)

		// a second departure changes nothing
		f.m.HandleDisconnect(ctx, f.bob)
		assert.Equal(t, []string{"Room-1"}, f.observer.finished)
	})

	t.Run("forfeit during placement", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		recorder := mocks.NewMockStatsRecorder(ctrl)
		recorder.EXPECT().RecordResult(gomock.Any(), "alice", true).Return(nil)

		f := newFixture(t, recorder)
		require.NoError(t, f.m.Join(ctx, f.bob))
		f.aliceIn.drain()

		f.m.HandleDisconnect(ctx, f.bob)
		assert.Equal(t, []string{"GAME_OVER:WIN_BY_DISCONNECT"}, f.aliceIn.drain())
	})

	t.Run("owner leaves a waiting room", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		recorder := mocks.NewMockStatsRecorder(ctrl)

		f := newFixture(t, recorder)
		f.aliceIn.drain()

		f.m.HandleDisconnect(ctx, f.alice)
		assert.Empty(t, f.aliceIn.drain())
		snap := f.m.Snapshot()
		assert.Equal(t, match.Finished, snap.State)
		assert.Equal(t, match.ReasonAbandoned, snap.Reason)
		assert.Equal(t, []string{"Room-1"}, f.observer.finished)
	})
}

func TestMatch_PublishesLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)

	var mu sync.Mutex
	var seen []string
	pub.EXPECT().Publish(gomock.Any(), events.EventsChannel, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, e events.Event) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, e.Type)
			return nil
		}).AnyTimes()

	alice := player.NewPlayer("s-1", "alice", &lineRecorder{})
	bob := player.NewPlayer("s-2", "bob", &lineRecorder{})
	m := match.New(ctx, "Room-9", alice, match.Options{Publisher: pub})

	require.NoError(t, m.Join(ctx, bob))
	require.NoError(t, m.PlaceShips(ctx, alice, fleetRows))
	require.NoError(t, m.PlaceShips(ctx, bob, fleetRows))
	require.NoError(t, m.ProcessShot(ctx, alice, 7, 7))
	m.HandleDisconnect(ctx, bob)

	assert.Equal(t, []string{
		events.TypePlayerJoined,
		events.TypeGameStarted,
		events.TypeShotFired,
		events.TypeGameOver,
	}, seen)
}

// resultLog is a StatsRecorder safe for concurrent use.
type resultLog struct {
	mu      sync.Mutex
	results map[string]bool
}

func (r *resultLog) RecordResult(_ context.Context, username string, won bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = make(map[string]bool)
	}
	r.results[username] = won
	return nil
}

func TestMatch_ConcurrentShotsAndDisconnect(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		results := &resultLog{}
		f := newFixture(t, results)
		f.playing(t)

		var wg sync.WaitGroup
		var accepted [2]int
		shoot := func(slot int, p *player.Player) {
			defer wg.Done()
			for row := 0; row < game.BoardSize; row++ {
				for col := 0; col < game.BoardSize; col++ {
					if f.m.ProcessShot(ctx, p, row, col) == nil {
						accepted[slot]++
					}
				}
			}
		}
		wg.Add(3)
		go shoot(0, f.alice)
		go shoot(1, f.bob)
		go func() {
			defer wg.Done()
			f.m.HandleDisconnect(ctx, f.alice)
		}()
		wg.Wait()

		snap := f.m.Snapshot()
		require.Equal(t, match.Finished, snap.State)
		assert.Equal(t, []string{"Room-1"}, f.observer.finished, "match finishes exactly once")
		require.NotEmpty(t, snap.Winner)

		for slot := range snap.Stats {
			st := snap.Stats[slot]
			assert.Equal(t, accepted[slot], st.Shots)
			assert.LessOrEqual(t, st.Hits, st.Shots)
			assert.LessOrEqual(t, st.Sunk, game.RosterSize)
		}

		won := 0
		for name, w := range results.results {
			if w {
				won++
				assert.Equal(t, snap.Winner, name)
			}
		}
		assert.Equal(t, 1, won)
	}
}
