package game

import "fmt"

// ParseCoord parses a wire coordinate such as "A0" or "J9".
// The letter is the row (A-J), the digit is the column (0-9).
func ParseCoord(coord string) (row, col int, err error) {
	if len(coord) != 2 {
		return 0, 0, fmt.Errorf("invalid coordinate %q", coord)
	}
	r := coord[0]
	c := coord[1]
	if r >= 'a' && r <= 'j' {
		r -= 'a' - 'A'
	}
	if r < 'A' || r > 'J' || c < '0' || c > '9' {
		return 0, 0, fmt.Errorf("invalid coordinate %q", coord)
	}
	return int(r - 'A'), int(c - '0'), nil
}

// FormatCoord renders a row/column pair in wire form.
func FormatCoord(row, col int) string {
	return fmt.Sprintf("%c%d", 'A'+row, col)
}
