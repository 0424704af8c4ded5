package match

import (
	"context"
	"errors"
	"fmt"
)

//go:generate mockgen -destination=../mocks/mock_stats_recorder.go -package=mocks ctchen222/Battleship/internal/match StatsRecorder

// State is the lifecycle phase of a match.
type State int

const (
	Waiting State = iota
	PlacingShips
	Playing
	Finished
)

func (s State) String() string {
	switch s {
	case PlacingShips:
		return "PLACING_SHIPS"
	case Playing:
		return "PLAYING"
	case Finished:
		return "FINISHED"
	}
	return "WAITING"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Waiting, PlacingShips, Playing, Finished} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown match state %q", text)
}

// End reasons reported in snapshots and events.
const (
	ReasonFleetDestroyed = "fleet_destroyed"
	ReasonDisconnect     = "disconnect"
	ReasonAbandoned      = "abandoned"
)

var (
	ErrRoomFull       = errors.New("room is full")
	ErrNotParticipant = errors.New("you are not in this room")
	ErrNotPlacing     = errors.New("ships can only be placed before the game starts")
	ErrNotPlaying     = errors.New("game is not in progress")
	ErrNotYourTurn    = errors.New("not your turn")
)

// StatsRecorder persists a finished game's outcome for one account.
type StatsRecorder interface {
	RecordResult(ctx context.Context, username string, won bool) error
}

// Observer is told about match changes once the match lock is released.
type Observer interface {
	MatchUpdated(ctx context.Context, m *Match)
	MatchFinished(ctx context.Context, m *Match)
}

// Stats are the per-player shot counters.
type Stats struct {
	Shots int `json:"shots"`
	Hits  int `json:"hits"`
	Sunk  int `json:"sunk"`
}

// Snapshot is a consistent copy of the observable match state.
type Snapshot struct {
	ID      string    `json:"id"`
	Players [2]string `json:"players"`
	State   State     `json:"state"`
	// Turn is the name of the player to move, empty outside Playing.
	Turn   string   `json:"turn,omitempty"`
	Stats  [2]Stats `json:"stats"`
	Winner string   `json:"winner,omitempty"`
	Reason string   `json:"reason,omitempty"`
}

// PlayerCount is the number of occupied slots.
func (s Snapshot) PlayerCount() int {
	n := 0
	for _, p := range s.Players {
		if p != "" {
			n++
		}
	}
	return n
}
