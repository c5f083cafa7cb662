// board/board.go
package board

import (
	"errors"
)

// The board is 3 rows by 5 columns, positions 1..15 laid out row-major:
//
//	 1  2  3  4  5
//	 6  7  8  9 10
//	11 12 13 14 15
//
// Win rules are asymmetric: the two edge rows win with any 4 consecutive
// marks, the middle row needs all 5, columns need all 3, and only a fixed
// subset of 3-cell diagonals counts (none touching the rightmost column).
const (
	Size   = 15
	Rows   = 3
	Cols   = 5
	Center = 8
)

const (
	Empty byte = '-'
	X     byte = 'X'
	O     byte = 'O'
)

// Board holds one cell per position, index 0 is position 1.
type Board [Size]byte

var ErrBadBoard = errors.New("board string must be 15 cells of -, X or O")

// New returns an empty board.
func New() Board {
	var b Board
	for i := range b {
		b[i] = Empty
	}
	return b
}

// Parse rebuilds a board from its 15-character persisted form.
func Parse(s string) (Board, error) {
	var b Board
	if len(s) != Size {
		return b, ErrBadBoard
	}
	for i := 0; i < Size; i++ {
		c := s[i]
		if c != Empty && c != X && c != O {
			return b, ErrBadBoard
		}
		b[i] = c
	}
	return b, nil
}

func (b Board) String() string {
	return string(b[:])
}

// Cell returns the mark at a 1-based position.
func (b Board) Cell(pos int) byte {
	return b[pos-1]
}

// Set writes a mark at a 1-based position.
func (b *Board) Set(pos int, mark byte) {
	b[pos-1] = mark
}

// Full reports whether every position is occupied.
func (b Board) Full() bool {
	for _, c := range b {
		if c == Empty {
			return false
		}
	}
	return true
}

// Legal reports whether pos may be played. The center cell is off limits
// for the opening move of a game.
func Legal(b Board, pos int, firstMove bool) bool {
	if pos < 1 || pos > Size {
		return false
	}
	if b.Cell(pos) != Empty {
		return false
	}
	if firstMove && pos == Center {
		return false
	}
	return true
}

// LegalMoves lists every playable position, used by the auto-player.
func LegalMoves(b Board, firstMove bool) []int {
	moves := make([]int, 0, Size)
	for pos := 1; pos <= Size; pos++ {
		if Legal(b, pos, firstMove) {
			moves = append(moves, pos)
		}
	}
	return moves
}

// Win condition tags persisted on the game record.
const (
	CondRow4     = "row4"
	CondRow5     = "row5"
	CondColumn   = "column"
	CondDiagonal = "diagonal"
)

// WinInfo names the winning pattern and the cells that form it.
type WinInfo struct {
	Condition string
	Cells     []int
}

// edgeWindows are the 4-consecutive windows of the top and bottom rows.
var edgeWindows = [][]int{
	{1, 2, 3, 4},
	{2, 3, 4, 5},
	{11, 12, 13, 14},
	{12, 13, 14, 15},
}

// middleRow must be taken whole.
var middleRow = []int{6, 7, 8, 9, 10}

var columns = [][]int{
	{1, 6, 11},
	{2, 7, 12},
	{3, 8, 13},
	{4, 9, 14},
	{5, 10, 15},
}

// diagonals is the enumerated winning set. Diagonals through the
// rightmost column (5, 10, 15) never count.
var diagonals = [][]int{
	{1, 7, 13},
	{2, 8, 14},
	{3, 7, 11},
	{4, 8, 12},
}

func allMarked(b Board, cells []int, mark byte) bool {
	for _, pos := range cells {
		if b.Cell(pos) != mark {
			return false
		}
	}
	return true
}

// CheckWin scans every pattern family for mark and returns the first hit,
// or nil if mark has not won.
func CheckWin(b Board, mark byte) *WinInfo {
	for _, w := range edgeWindows {
		if allMarked(b, w, mark) {
			return &WinInfo{Condition: CondRow4, Cells: append([]int(nil), w...)}
		}
	}
	if allMarked(b, middleRow, mark) {
		return &WinInfo{Condition: CondRow5, Cells: append([]int(nil), middleRow...)}
	}
	for _, col := range columns {
		if allMarked(b, col, mark) {
			return &WinInfo{Condition: CondColumn, Cells: append([]int(nil), col...)}
		}
	}
	for _, d := range diagonals {
		if allMarked(b, d, mark) {
			return &WinInfo{Condition: CondDiagonal, Cells: append([]int(nil), d...)}
		}
	}
	return nil
}

// CheckDraw reports a full board with no winner for either mark.
func CheckDraw(b Board) bool {
	if !b.Full() {
		return false
	}
	return CheckWin(b, X) == nil && CheckWin(b, O) == nil
}
