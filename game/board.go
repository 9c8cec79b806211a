package game

import (
	"fmt"
	"sort"
)

// NewBoard returns an empty board with no fleet placed.
func NewBoard() *Board {
	return &Board{}
}

// Empty reports whether no fleet has been placed yet.
func (b *Board) Empty() bool {
	return len(b.Ships) == 0
}

// AllSunk reports whether every placed ship cell has been hit.
func (b *Board) AllSunk() bool {
	return b.TotalCells > 0 && b.HitsReceived == b.TotalCells
}

// Reset clears the grid and fleet.
func (b *Board) Reset() {
	*b = Board{}
}

// PlaceFleet validates a full fleet submission and, if valid, places it.
// The submission must contain exactly the fleet size multiset (5,4,3,3,2),
// every ship must lie within the board, and ships must not overlap.
// Adjacent ships are allowed. On any violation the board is left unchanged.
func (b *Board) PlaceFleet(ships []*Ship) error {
	if !b.Empty() {
		return fmt.Errorf("fleet already placed")
	}
	if len(ships) != MaxShips {
		return fmt.Errorf("expected %d ships, got %d", MaxShips, len(ships))
	}

	sizes := make([]int, 0, len(ships))
	for _, s := range ships {
		sizes = append(sizes, s.Size)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(sizes)))
	for i, want := range FleetSizes {
		if sizes[i] != want {
			return fmt.Errorf("fleet must have ship sizes %v", FleetSizes)
		}
	}

	var grid [BoardSize][BoardSize]Cell
	total := 0
	for _, s := range ships {
		if len(s.Name) > MaxShipNameLen {
			return fmt.Errorf("ship name too long")
		}
		for _, cell := range s.Cells() {
			r, c := cell[0], cell[1]
			if r < 0 || r >= BoardSize || c < 0 || c >= BoardSize {
				return fmt.Errorf("ship %q out of bounds at %s", s.Name, FormatCoord(clampIndex(r), clampIndex(c)))
			}
			if grid[r][c] == CellShip {
				return fmt.Errorf("ship %q overlaps another ship at %s", s.Name, FormatCoord(r, c))
			}
			grid[r][c] = CellShip
			total++
		}
	}

	placed := make([]*Ship, len(ships))
	for i, s := range ships {
		cp := *s
		cp.Hits = 0
		placed[i] = &cp
	}

	b.Grid = grid
	b.Ships = placed
	b.TotalCells = total
	b.HitsReceived = 0
	return nil
}

// Fire resolves a shot against the board. It returns the result and,
// when the shot completes a ship, the name of the sunk ship. Cells that
// were already shot return ShotAlreadyShot and leave the board unchanged.
func (b *Board) Fire(row, col int) (result ShotResult, sunk string) {
	switch b.Grid[row][col] {
	case CellWater:
		b.Grid[row][col] = CellMiss
		return ShotMiss, ""
	case CellShip:
		b.Grid[row][col] = CellHit
		b.HitsReceived++
		if ship := b.shipAt(row, col); ship != nil {
			ship.Hits++
			if ship.Hits == ship.Size {
				sunk = ship.Name
			}
		}
		return ShotHit, sunk
	default:
		return ShotAlreadyShot, ""
	}
}

// shipAt finds the ship occupying the given cell, if any.
func (b *Board) shipAt(row, col int) *Ship {
	for _, s := range b.Ships {
		for _, cell := range s.Cells() {
			if cell[0] == row && cell[1] == col {
				return s
			}
		}
	}
	return nil
}

func clampIndex(i int) int {
	if i < 0 {
		return 0
	}
	if i >= BoardSize {
		return BoardSize - 1
	}
	return i
}
