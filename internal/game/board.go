package game

import "errors"

// BoardSize is the side length of the square grid.
const BoardSize = 8

// CellState is the content of one board cell.
type CellState int

const (
	Empty CellState = iota
	Occupied
	Hit
	Miss
	Sunk
)

func (c CellState) String() string {
	switch c {
	case Occupied:
		return "OCCUPIED"
	case Hit:
		return "HIT"
	case Miss:
		return "MISS"
	case Sunk:
		return "SUNK"
	}
	return "EMPTY"
}

// Resolved reports whether the cell has already been fired at.
func (c CellState) Resolved() bool {
	return c == Hit || c == Miss || c == Sunk
}

var (
	ErrOutOfBounds     = errors.New("coordinates out of range")
	ErrAlreadyResolved = errors.New("cell was already fired at")
	ErrNoFleet         = errors.New("no fleet deployed")
)

// Board is an 8x8 grid indexed as cells[row][col], where row is Y and col is X.
type Board struct {
	cells [BoardSize][BoardSize]CellState
}

func (b *Board) At(c Coord) CellState {
	return b.cells[c.Y][c.X]
}

// Reset clears every cell back to Empty.
func (b *Board) Reset() {
	b.cells = [BoardSize][BoardSize]CellState{}
}

// Deploy marks every cell covered by the fleet as Occupied.
func (b *Board) Deploy(f *Fleet) {
	for _, s := range f.Ships() {
		for _, c := range s.Cells() {
			b.cells[c.Y][c.X] = Occupied
		}
	}
}

// Remaining counts cells that still hold an unhit ship segment.
func (b *Board) Remaining() int {
	n := 0
	for _, row := range b.cells {
		for _, cell := range row {
			if cell == Occupied {
				n++
			}
		}
	}
	return n
}

// Grid returns a copy of the cell states.
func (b *Board) Grid() [BoardSize][BoardSize]CellState {
	return b.cells
}

// ShotResult describes what a single shot did to a board.
type ShotResult struct {
	Row, Col int
	Hit      bool
	// Sunk is the ship this shot finished off, if any.
	Sunk     *Ship
	Defeated bool
}

// Fire resolves a shot at (row, col) against the board and the fleet deployed on it.
// A rejected shot leaves the board untouched.
func (b *Board) Fire(f *Fleet, row, col int) (ShotResult, error) {
	target := Coord{X: col, Y: row}
	if !target.InBounds() {
		return ShotResult{}, ErrOutOfBounds
	}
	if f == nil {
		return ShotResult{}, ErrNoFleet
	}
	if b.At(target).Resolved() {
		return ShotResult{}, ErrAlreadyResolved
	}

	res := ShotResult{Row: row, Col: col}
	if b.At(target) != Occupied {
		b.cells[row][col] = Miss
		return res, nil
	}

	b.cells[row][col] = Hit
	res.Hit = true

	if s := f.ShipAt(target); s != nil && b.allHit(s) {
		for _, c := range s.Cells() {
			b.cells[c.Y][c.X] = Sunk
		}
		res.Sunk = s
	}
	res.Defeated = b.Remaining() == 0
	return res, nil
}

func (b *Board) allHit(s *Ship) bool {
	for _, c := range s.Cells() {
		if b.At(c) != Hit {
			return false
		}
	}
	return true
}
