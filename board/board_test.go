package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func place(t *testing.T, b *Board, mark byte, positions ...int) {
	t.Helper()
	for _, pos := range positions {
		require.Equal(t, Empty, b.Cell(pos), "cell %d already taken", pos)
		b.Set(pos, mark)
	}
}

func TestParseRoundTrip(t *testing.T) {
	b := New()
	place(t, &b, X, 1, 7)
	place(t, &b, O, 15)

	parsed, err := Parse(b.String())
	require.NoError(t, err)
	assert.Equal(t, b, parsed)
}

func TestParseRejectsBadInput(t *testing.T) {
	_, err := Parse("too short")
	assert.ErrorIs(t, err, ErrBadBoard)

	_, err = Parse("Z--------------")
	assert.ErrorIs(t, err, ErrBadBoard)
}

func TestLegalCenterBlockedOnOpening(t *testing.T) {
	b := New()
	assert.False(t, Legal(b, Center, true), "center must be illegal on the first move")
	assert.True(t, Legal(b, Center, false))
	assert.True(t, Legal(b, 1, true))
}

func TestLegalOccupiedAndOutOfRange(t *testing.T) {
	b := New()
	b.Set(3, X)

	assert.False(t, Legal(b, 3, false))
	assert.False(t, Legal(b, 0, false))
	assert.False(t, Legal(b, 16, false))
}

func TestLegalMovesExcludesCenterOnOpening(t *testing.T) {
	b := New()
	moves := LegalMoves(b, true)
	assert.Len(t, moves, Size-1)
	assert.NotContains(t, moves, Center)

	moves = LegalMoves(b, false)
	assert.Len(t, moves, Size)
}

func TestEdgeRowWinsWithFourConsecutive(t *testing.T) {
	b := New()
	place(t, &b, X, 1, 2, 3, 4)

	win := CheckWin(b, X)
	require.NotNil(t, win)
	assert.Equal(t, CondRow4, win.Condition)
	assert.Equal(t, []int{1, 2, 3, 4}, win.Cells)
	assert.Nil(t, CheckWin(b, O))
}

func TestEdgeRowShiftedWindow(t *testing.T) {
	b := New()
	place(t, &b, O, 12, 13, 14, 15)

	win := CheckWin(b, O)
	require.NotNil(t, win)
	assert.Equal(t, CondRow4, win.Condition)
	assert.Equal(t, []int{12, 13, 14, 15}, win.Cells)
}

func TestMiddleRowNeedsAllFive(t *testing.T) {
	b := New()
	place(t, &b, X, 6, 7, 8, 9)

	assert.Nil(t, CheckWin(b, X), "four in the middle row is not a win")

	b.Set(10, X)
	win := CheckWin(b, X)
	require.NotNil(t, win)
	assert.Equal(t, CondRow5, win.Condition)
	assert.Equal(t, []int{6, 7, 8, 9, 10}, win.Cells)
}

func TestColumnWin(t *testing.T) {
	b := New()
	place(t, &b, O, 2, 7, 12)

	win := CheckWin(b, O)
	require.NotNil(t, win)
	assert.Equal(t, CondColumn, win.Condition)
	assert.Equal(t, []int{2, 7, 12}, win.Cells)
}

func TestDiagonalWin(t *testing.T) {
	for _, cells := range [][]int{{1, 7, 13}, {2, 8, 14}, {3, 7, 11}, {4, 8, 12}} {
		b := New()
		place(t, &b, X, cells...)

		win := CheckWin(b, X)
		require.NotNil(t, win, "expected win for diagonal %v", cells)
		assert.Equal(t, CondDiagonal, win.Condition)
		assert.Equal(t, cells, win.Cells)
	}
}

func TestDiagonalsTouchingRightColumnNeverWin(t *testing.T) {
	for _, cells := range [][]int{{3, 9, 15}, {5, 9, 13}} {
		b := New()
		place(t, &b, X, cells...)
		assert.Nil(t, CheckWin(b, X), "diagonal %v must not count", cells)
	}
}

// Swapping the two marks' labels must flip the result exactly.
func TestCheckWinSymmetricUnderMarkSwap(t *testing.T) {
	b := New()
	place(t, &b, X, 1, 2, 3, 4)
	place(t, &b, O, 6, 7, 12)

	swapped := b
	for i := range swapped {
		switch swapped[i] {
		case X:
			swapped[i] = O
		case O:
			swapped[i] = X
		}
	}

	winX := CheckWin(b, X)
	winO := CheckWin(swapped, O)
	require.NotNil(t, winX)
	require.NotNil(t, winO)
	assert.Equal(t, winX.Condition, winO.Condition)
	assert.Equal(t, winX.Cells, winO.Cells)
	assert.Nil(t, CheckWin(b, O))
	assert.Nil(t, CheckWin(swapped, X))
}

// Every reported win must itself satisfy the pattern it names.
func TestWinCellsPassOwnPredicate(t *testing.T) {
	b := New()
	place(t, &b, X, 4, 8, 12)

	win := CheckWin(b, X)
	require.NotNil(t, win)
	for _, pos := range win.Cells {
		assert.Equal(t, X, b.Cell(pos))
	}
}

func TestCheckDraw(t *testing.T) {
	b := New()
	assert.False(t, CheckDraw(b), "empty board is not a draw")

	// A full board with no line for either mark.
	full, err := Parse("OXOXXOXOOOXOXXX")
	require.NoError(t, err)
	require.True(t, full.Full())
	require.Nil(t, CheckWin(full, X))
	require.Nil(t, CheckWin(full, O))
	assert.True(t, CheckDraw(full))

	// A full board that contains a win is not a draw.
	won := New()
	place(t, &won, X, 1, 2, 3, 4, 5, 8, 9, 13)
	place(t, &won, O, 6, 7, 10, 11, 12, 14, 15)
	require.True(t, won.Full())
	assert.False(t, CheckDraw(won))
}
