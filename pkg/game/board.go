package game

// Board is a rectangular grid of cells, indexed board[row][col].
// Rows and columns grow independently up to MaxRows×MaxCols; existing
// contents keep their relative positions when an edge is extended.
type Board [][]Cell

// NewBoard returns an empty board of the given size.
func NewBoard(rows, cols int) Board {
	b := make(Board, rows)
	for r := range b {
		b[r] = make([]Cell, cols)
	}
	return b
}

// Rows returns the current number of rows.
func (b Board) Rows() int { return len(b) }

// Cols returns the current number of columns.
func (b Board) Cols() int {
	if len(b) == 0 {
		return 0
	}
	return len(b[0])
}

// Full reports whether every cell is occupied.
func (b Board) Full() bool {
	for _, row := range b {
		for _, c := range row {
			if c == Empty {
				return false
			}
		}
	}
	return true
}

// Snapshot returns a deep copy safe to hand to encoders and broadcasts.
func (b Board) Snapshot() Board {
	out := make(Board, len(b))
	for r, row := range b {
		out[r] = make([]Cell, len(row))
		copy(out[r], row)
	}
	return out
}

// GrowOffset describes how a grow operation shifted existing contents.
// Cells previously at (r, c) now live at (r+Rows, c+Cols).
type GrowOffset struct {
	Rows int
	Cols int
}

// edgeGrowth returns how far the board must extend on one edge so the
// played position ends up at least ChainToWin-1 cells from it, bounded
// by the remaining headroom to the cap.
func edgeGrowth(distance, size, max int) int {
	margin := ChainToWin - 1
	if distance >= margin {
		return 0
	}
	need := margin - distance
	if size+need > max {
		need = max - size
	}
	if need < 0 {
		return 0
	}
	return need
}

// grow extends the board around the played cell (row, col). Each of the
// four edges is evaluated independently. It returns the applied offset
// and whether any edge actually grew.
func (b *Board) grow(row, col int) (GrowOffset, bool) {
	rows, cols := b.Rows(), b.Cols()

	top := edgeGrowth(row, rows, MaxRows)
	bottom := edgeGrowth(rows-1-row, rows+top, MaxRows)
	left := edgeGrowth(col, cols, MaxCols)
	right := edgeGrowth(cols-1-col, cols+left, MaxCols)

	if top == 0 && bottom == 0 && left == 0 && right == 0 {
		return GrowOffset{}, false
	}

	newRows := rows + top + bottom
	newCols := cols + left + right

	grown := make(Board, newRows)
	for r := range grown {
		grown[r] = make([]Cell, newCols)
	}
	for r, old := range *b {
		copy(grown[r+top][left:], old)
	}

	*b = grown
	return GrowOffset{Rows: top, Cols: left}, true
}
