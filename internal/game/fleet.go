package game

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// RosterLengths are the ship lengths every player places, in submission order.
var RosterLengths = [...]int{2, 2, 3, 3, 4}

// RosterSize is the number of ships in a roster.
const RosterSize = len(RosterLengths)

var (
	ErrRosterSize   = fmt.Errorf("exactly %d ships are required", RosterSize)
	ErrBadPlacement = errors.New("malformed ship placement")
	ErrOverlap      = errors.New("ships overlap")
)

// Placement is one parsed "x,y,o" triple.
type Placement struct {
	Origin      Coord
	Orientation Orientation
}

// ParsePlacements reads "x,y,o;x,y,o;..." into exactly RosterSize placements.
func ParsePlacements(raw string) ([]Placement, error) {
	entries := strings.Split(raw, ";")
	if len(entries) != RosterSize {
		return nil, ErrRosterSize
	}

	placements := make([]Placement, 0, RosterSize)
	for i, entry := range entries {
		parts := strings.Split(strings.TrimSpace(entry), ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w (entry %d)", ErrBadPlacement, i+1)
		}
		x, errX := strconv.Atoi(strings.TrimSpace(parts[0]))
		y, errY := strconv.Atoi(strings.TrimSpace(parts[1]))
		if errX != nil || errY != nil {
			return nil, fmt.Errorf("%w (entry %d)", ErrBadPlacement, i+1)
		}
		o, err := ParseOrientation(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, err
		}
		placements = append(placements, Placement{Origin: Coord{X: x, Y: y}, Orientation: o})
	}
	return placements, nil
}

// Fleet is a fully placed roster.
type Fleet struct {
	ships [RosterSize]*Ship
}

// BuildFleet places the roster in order. Ships must fit on the board and must not share a cell.
func BuildFleet(placements []Placement) (*Fleet, error) {
	if len(placements) != RosterSize {
		return nil, ErrRosterSize
	}

	f := &Fleet{}
	taken := make(map[Coord]bool, 14)
	for i, p := range placements {
		s := NewShip(i, RosterLengths[i])
		if err := s.Place(p.Origin, p.Orientation); err != nil {
			return nil, err
		}
		for _, c := range s.Cells() {
			if taken[c] {
				return nil, fmt.Errorf("%w (ship %d at %d,%d)", ErrOverlap, i, c.X, c.Y)
			}
			taken[c] = true
		}
		f.ships[i] = s
	}
	return f, nil
}

func (f *Fleet) Ships() []*Ship {
	return f.ships[:]
}

// ShipAt returns the ship covering c, or nil.
func (f *Fleet) ShipAt(c Coord) *Ship {
	for _, s := range f.ships {
		if s != nil && s.Contains(c) {
			return s
		}
	}
	return nil
}

// Spec renders the fleet back into the submission format.
func (f *Fleet) Spec() string {
	parts := make([]string, 0, RosterSize)
	for _, s := range f.ships {
		parts = append(parts, s.Spec())
	}
	return strings.Join(parts, ";")
}
