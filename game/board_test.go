package game

import "testing"

// standardFleet returns a valid fleet placed in the top-left rows
func standardFleet() []*Ship {
	return []*Ship{
		{Name: "Carrier", Size: 5, Row: 0, Col: 0, Horizontal: true},
		{Name: "Battleship", Size: 4, Row: 1, Col: 0, Horizontal: true},
		{Name: "Cruiser", Size: 3, Row: 2, Col: 0, Horizontal: true},
		{Name: "Submarine", Size: 3, Row: 3, Col: 0, Horizontal: true},
		{Name: "Destroyer", Size: 2, Row: 4, Col: 0, Horizontal: true},
	}
}

func TestPlaceFleetValid(t *testing.T) {
	b := NewBoard()
	if err := b.PlaceFleet(standardFleet()); err != nil {
		t.Fatalf("expected valid placement, got error: %v", err)
	}
	if b.TotalCells != FleetCells {
		t.Errorf("expected %d total ship cells, got %d", FleetCells, b.TotalCells)
	}
	if len(b.Ships) != MaxShips {
		t.Errorf("expected %d ships, got %d", MaxShips, len(b.Ships))
	}
	// Every fleet cell should be marked on the grid
	shipCells := 0
	for r := 0; r < BoardSize; r++ {
		for c := 0; c < BoardSize; c++ {
			if b.Grid[r][c] == CellShip {
				shipCells++
			}
		}
	}
	if shipCells != FleetCells {
		t.Errorf("expected %d grid cells marked as ship, got %d", FleetCells, shipCells)
	}
}

func TestPlaceFleetVertical(t *testing.T) {
	b := NewBoard()
	ships := []*Ship{
		{Name: "Carrier", Size: 5, Row: 0, Col: 0, Horizontal: false},
		{Name: "Battleship", Size: 4, Row: 0, Col: 1, Horizontal: false},
		{Name: "Cruiser", Size: 3, Row: 0, Col: 2, Horizontal: false},
		{Name: "Submarine", Size: 3, Row: 0, Col: 3, Horizontal: false},
		{Name: "Destroyer", Size: 2, Row: 0, Col: 4, Horizontal: false},
	}
	if err := b.PlaceFleet(ships); err != nil {
		t.Fatalf("expected valid vertical placement, got error: %v", err)
	}
}

func TestPlaceFleetRejectsOutOfBounds(t *testing.T) {
	ships := standardFleet()
	// Horizontal size 5 starting at col 6 runs off the right edge
	ships[0].Col = 6
	b := NewBoard()
	if err := b.PlaceFleet(ships); err == nil {
		t.Fatal("expected out-of-bounds placement to be rejected")
	}
	if !b.Empty() || b.TotalCells != 0 {
		t.Error("rejected placement must leave the board unchanged")
	}
}

func TestPlaceFleetRejectsOverlap(t *testing.T) {
	ships := standardFleet()
	// Put the destroyer on top of the carrier
	ships[4].Row = 0
	ships[4].Col = 0
	b := NewBoard()
	if err := b.PlaceFleet(ships); err == nil {
		t.Fatal("expected overlapping placement to be rejected")
	}
	if !b.Empty() {
		t.Error("rejected placement must leave the board unchanged")
	}
}

func TestPlaceFleetRejectsWrongSizes(t *testing.T) {
	cases := [][]*Ship{
		// Too few ships
		standardFleet()[:4],
		// Wrong size multiset: two carriers
		{
			{Name: "Carrier", Size: 5, Row: 0, Col: 0, Horizontal: true},
			{Name: "Carrier2", Size: 5, Row: 1, Col: 0, Horizontal: true},
			{Name: "Cruiser", Size: 3, Row: 2, Col: 0, Horizontal: true},
			{Name: "Submarine", Size: 3, Row: 3, Col: 0, Horizontal: true},
			{Name: "Destroyer", Size: 2, Row: 4, Col: 0, Horizontal: true},
		},
	}
	for i, ships := range cases {
		b := NewBoard()
		if err := b.PlaceFleet(ships); err == nil {
			t.Errorf("case %d: expected invalid fleet to be rejected", i)
		}
	}
}

func TestPlaceFleetAllowsAdjacency(t *testing.T) {
	// Ships touching side by side are legal; only overlap is forbidden
	b := NewBoard()
	if err := b.PlaceFleet(standardFleet()); err != nil {
		t.Fatalf("adjacent ships should be accepted: %v", err)
	}
}

func TestPlaceFleetRejectsDoubleSubmission(t *testing.T) {
	b := NewBoard()
	if err := b.PlaceFleet(standardFleet()); err != nil {
		t.Fatalf("first placement failed: %v", err)
	}
	if err := b.PlaceFleet(standardFleet()); err == nil {
		t.Error("second placement should be rejected")
	}
}

func TestFireMissAndHit(t *testing.T) {
	b := NewBoard()
	if err := b.PlaceFleet(standardFleet()); err != nil {
		t.Fatal(err)
	}

	// (9,9) is open water
	result, sunk := b.Fire(9, 9)
	if result != ShotMiss || sunk != "" {
		t.Errorf("expected MISS, got %v sunk=%q", result, sunk)
	}
	if b.Grid[9][9] != CellMiss {
		t.Error("missed cell should be marked MISS")
	}

	// (0,0) is the carrier
	result, sunk = b.Fire(0, 0)
	if result != ShotHit || sunk != "" {
		t.Errorf("expected HIT with no sunk ship, got %v sunk=%q", result, sunk)
	}
	if b.HitsReceived != 1 {
		t.Errorf("expected 1 hit received, got %d", b.HitsReceived)
	}
}

func TestFireAlreadyShot(t *testing.T) {
	b := NewBoard()
	if err := b.PlaceFleet(standardFleet()); err != nil {
		t.Fatal(err)
	}

	b.Fire(0, 0)
	result, _ := b.Fire(0, 0)
	if result != ShotAlreadyShot {
		t.Errorf("expected ALREADY_HIT on repeat shot, got %v", result)
	}
	if b.HitsReceived != 1 {
		t.Errorf("repeat shot must not change hits received, got %d", b.HitsReceived)
	}

	// Repeat miss behaves the same way
	b.Fire(9, 9)
	result, _ = b.Fire(9, 9)
	if result != ShotAlreadyShot {
		t.Errorf("expected ALREADY_HIT on repeat miss, got %v", result)
	}
}

func TestFireSinksShipExactlyOnce(t *testing.T) {
	b := NewBoard()
	if err := b.PlaceFleet(standardFleet()); err != nil {
		t.Fatal(err)
	}

	// Destroyer occupies (4,0) and (4,1)
	result, sunk := b.Fire(4, 0)
	if result != ShotHit || sunk != "" {
		t.Errorf("first destroyer hit should not sink, got %v sunk=%q", result, sunk)
	}
	result, sunk = b.Fire(4, 1)
	if result != ShotHit || sunk != "Destroyer" {
		t.Errorf("second destroyer hit should sink it, got %v sunk=%q", result, sunk)
	}

	// Re-shooting a dead ship's cell never reports sunk again
	result, sunk = b.Fire(4, 1)
	if result != ShotAlreadyShot || sunk != "" {
		t.Errorf("re-shot of sunk ship must not report sunk again, got %v sunk=%q", result, sunk)
	}
}

func TestAllSunk(t *testing.T) {
	b := NewBoard()
	if err := b.PlaceFleet(standardFleet()); err != nil {
		t.Fatal(err)
	}
	if b.AllSunk() {
		t.Fatal("fresh board must not report all sunk")
	}

	for _, s := range standardFleet() {
		for _, cell := range s.Cells() {
			b.Fire(cell[0], cell[1])
		}
	}
	if !b.AllSunk() {
		t.Error("expected all ships sunk after hitting every fleet cell")
	}
	if b.HitsReceived != b.TotalCells {
		t.Errorf("hits received %d should equal total cells %d", b.HitsReceived, b.TotalCells)
	}
}

func TestEmptyBoardNeverAllSunk(t *testing.T) {
	b := NewBoard()
	if b.AllSunk() {
		t.Error("board with no fleet must not report all sunk")
	}
}
