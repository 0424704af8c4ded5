package game

import (
	"errors"
	"fmt"
)

// Orientation is the direction a ship extends from its origin.
type Orientation int

const (
	Horizontal Orientation = iota
	Vertical
)

func (o Orientation) String() string {
	if o == Vertical {
		return "V"
	}
	return "H"
}

// ParseOrientation reads the wire form of an orientation ("0" or "1").
func ParseOrientation(s string) (Orientation, error) {
	switch s {
	case "0":
		return Horizontal, nil
	case "1":
		return Vertical, nil
	}
	return Horizontal, fmt.Errorf("%w (got %q)", ErrBadOrientation, s)
}

var (
	ErrShipPlaced     = errors.New("ship already placed")
	ErrBadOrientation = errors.New("orientation must be 0 or 1")
)

// Coord is a board position. X is the column, Y is the row.
type Coord struct {
	X, Y int
}

func (c Coord) InBounds() bool {
	return c.X >= 0 && c.X < BoardSize && c.Y >= 0 && c.Y < BoardSize
}

// Ship is one vessel of a roster.
type Ship struct {
	ID          int
	Length      int
	Origin      Coord
	Orientation Orientation
	placed      bool
}

// NewShip returns an unplaced ship.
func NewShip(id, length int) *Ship {
	return &Ship{ID: id, Length: length}
}

// Place commits the ship to a position. The whole span must fit on the board.
func (s *Ship) Place(origin Coord, o Orientation) error {
	if s.IsPlaced() {
		return ErrShipPlaced
	}
	end := origin
	if o == Horizontal {
		end.X += s.Length - 1
	} else {
		end.Y += s.Length - 1
	}
	if !origin.InBounds() || !end.InBounds() {
		return fmt.Errorf("%w (ship %d of length %d at %d,%d)", ErrOutOfBounds, s.ID, s.Length, origin.X, origin.Y)
	}
	s.Origin = origin
	s.Orientation = o
	s.placed = true
	return nil
}

// IsPlaced reports whether Place has committed the ship.
func (s *Ship) IsPlaced() bool {
	return s.placed
}

// Rotate toggles the orientation of an unplaced ship.
func (s *Ship) Rotate() error {
	if s.IsPlaced() {
		return ErrShipPlaced
	}
	if s.Orientation == Horizontal {
		s.Orientation = Vertical
	} else {
		s.Orientation = Horizontal
	}
	return nil
}

// Cells lists the coordinates the ship covers, origin first.
func (s *Ship) Cells() []Coord {
	if !s.IsPlaced() {
		return nil
	}
	cells := make([]Coord, s.Length)
	for i := range s.Length {
		c := s.Origin
		if s.Orientation == Horizontal {
			c.X += i
		} else {
			c.Y += i
		}
		cells[i] = c
	}
	return cells
}

func (s *Ship) Contains(c Coord) bool {
	for _, cell := range s.Cells() {
		if cell == c {
			return true
		}
	}
	return false
}

// Spec is the placement triple "x,y,o" the ship was built from.
func (s *Ship) Spec() string {
	return fmt.Sprintf("%d,%d,%d", s.Origin.X, s.Origin.Y, int(s.Orientation))
}
