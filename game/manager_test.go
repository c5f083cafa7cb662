package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/boardserver/board"
	"github.com/wfunc/boardserver/models"
)

func activeGame() *models.Game {
	return &models.Game{
		ID:        "g1",
		Mode:      models.ModeFree,
		PlayerXID: 100,
		PlayerOID: 200,
		Board:     board.New().String(),
		Turn:      models.MarkX,
		Seq:       0,
		Status:    models.StatusActive,
	}
}

func boardFor(t *testing.T, g *models.Game) board.Board {
	t.Helper()
	b, err := board.Parse(g.Board)
	require.NoError(t, err)
	return b
}

func TestValidateMoveHappyPath(t *testing.T) {
	g := activeGame()
	mark, err := validateMove(g, boardFor(t, g), 100, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, models.MarkX, mark)
}

func TestValidateMoveGameNotActive(t *testing.T) {
	for _, status := range []models.GameStatus{
		models.StatusFinished, models.StatusExpired, models.StatusAbandoned,
	} {
		g := activeGame()
		g.Status = status
		_, err := validateMove(g, boardFor(t, g), 100, 1, 0)
		assert.ErrorIs(t, err, ErrGameNotActive, "status %s", status)
	}
}

func TestValidateMoveStranger(t *testing.T) {
	g := activeGame()
	_, err := validateMove(g, boardFor(t, g), 999, 1, 0)
	assert.ErrorIs(t, err, ErrNotInGame)
}

func TestValidateMoveWrongTurn(t *testing.T) {
	g := activeGame()
	_, err := validateMove(g, boardFor(t, g), 200, 1, 0)
	assert.ErrorIs(t, err, ErrNotYourTurn)
}

// The same physical click retried over an unreliable transport carries
// the same expected sequence and must not double-apply.
func TestValidateMoveReplayProtection(t *testing.T) {
	g := activeGame()
	b := boardFor(t, g)

	mark, err := validateMove(g, b, 100, 1, 0)
	require.NoError(t, err)

	// The first submission applied: board and sequence advance.
	b.Set(1, byte(mark[0]))
	g.Board = b.String()
	g.Seq = 1
	g.Turn = models.MarkO

	// A retry of the same submission is rejected before the turn check
	// could even matter for the opponent's client.
	_, err = validateMove(g, b, 200, 2, 0)
	assert.ErrorIs(t, err, ErrStaleSequence)

	// A sequence from the future is equally stale.
	_, err = validateMove(g, b, 200, 2, 5)
	assert.ErrorIs(t, err, ErrStaleSequence)

	// The opponent moving with the correct sequence is fine.
	_, err = validateMove(g, b, 200, 2, 1)
	assert.NoError(t, err)
}

func TestValidateMoveCenterOpeningRule(t *testing.T) {
	g := activeGame()
	_, err := validateMove(g, boardFor(t, g), 100, board.Center, 0)
	assert.ErrorIs(t, err, ErrIllegalMove)

	// After the opening the center is playable.
	b := boardFor(t, g)
	b.Set(1, board.X)
	g.Board = b.String()
	g.Seq = 1
	g.Turn = models.MarkO

	_, err = validateMove(g, b, 200, board.Center, 1)
	assert.NoError(t, err)
}

func TestValidateMoveOccupiedCell(t *testing.T) {
	g := activeGame()
	b := boardFor(t, g)
	b.Set(3, board.O)
	g.Board = b.String()

	_, err := validateMove(g, b, 100, 3, 0)
	assert.ErrorIs(t, err, ErrIllegalMove)
}

func TestRandomPickerRespectsLegality(t *testing.T) {
	picker := NewRandomPicker()
	b := board.New()

	for i := 0; i < 50; i++ {
		pos, ok := picker.Pick(b, true)
		require.True(t, ok)
		assert.True(t, board.Legal(b, pos, true))
		assert.NotEqual(t, board.Center, pos, "opening pick must avoid the center")
	}
}

func TestRandomPickerFullBoard(t *testing.T) {
	picker := NewRandomPicker()
	b := board.New()
	for pos := 1; pos <= board.Size; pos++ {
		b.Set(pos, board.X)
	}

	_, ok := picker.Pick(b, false)
	assert.False(t, ok)
}
