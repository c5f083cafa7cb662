package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/boardserver/board"
	"github.com/wfunc/boardserver/models"
	"github.com/wfunc/boardserver/weekly"
)

func TestOutcomeConstructors(t *testing.T) {
	win := Win(42, board.CondRow4, []int{1, 2, 3, 4})
	require.NotNil(t, win.WinnerID)
	assert.Equal(t, int64(42), *win.WinnerID)
	assert.Equal(t, models.StatusFinished, win.Status)
	assert.Equal(t, KindWin, win.Kind)

	draw := Draw()
	assert.Nil(t, draw.WinnerID)
	assert.Equal(t, KindDraw, draw.Kind)
	assert.Equal(t, models.StatusFinished, draw.Status)

	forced := ForcedLoss(7, models.StatusAbandoned)
	require.NotNil(t, forced.WinnerID)
	assert.Equal(t, int64(7), *forced.WinnerID)
	assert.Equal(t, models.StatusAbandoned, forced.Status)
	// A forced loss is an ordinary win for streak and ledger purposes.
	assert.Equal(t, KindWin, forced.Kind)
}

func TestApplyResultWin(t *testing.T) {
	user := &models.User{Wins: 4, CurrentStreak: 2, BestStreak: 2, LossStreak: 0}

	res := applyResult(user, KindWin, true, board.CondColumn)
	assert.Equal(t, weekly.ResultWin, res)
	assert.Equal(t, 5, user.Wins)
	assert.Equal(t, 3, user.CurrentStreak)
	assert.Equal(t, 3, user.BestStreak, "best streak tracks the running max")
	assert.Equal(t, 0, user.DiagonalWins)
}

func TestApplyResultBestStreakIsMonotonic(t *testing.T) {
	user := &models.User{CurrentStreak: 1, BestStreak: 9}

	applyResult(user, KindWin, true, board.CondRow4)
	assert.Equal(t, 2, user.CurrentStreak)
	assert.Equal(t, 9, user.BestStreak)
}

func TestApplyResultDiagonalWinCounted(t *testing.T) {
	user := &models.User{DiagonalWins: 2}

	applyResult(user, KindWin, true, board.CondDiagonal)
	assert.Equal(t, 3, user.DiagonalWins)
}

func TestApplyResultLoss(t *testing.T) {
	user := &models.User{Losses: 1, CurrentStreak: 6, BestStreak: 6, LossStreak: 2}

	res := applyResult(user, KindWin, false, board.CondRow4)
	assert.Equal(t, weekly.ResultLoss, res)
	assert.Equal(t, 2, user.Losses)
	assert.Equal(t, 0, user.CurrentStreak, "a loss resets the win streak")
	assert.Equal(t, 6, user.BestStreak)
	assert.Equal(t, 3, user.LossStreak)
}

func TestApplyResultDraw(t *testing.T) {
	winner := &models.User{CurrentStreak: 4, BestStreak: 4}
	loser := &models.User{LossStreak: 5}

	resA := applyResult(winner, KindDraw, false, "")
	resB := applyResult(loser, KindDraw, false, "")
	assert.Equal(t, weekly.ResultDraw, resA)
	assert.Equal(t, weekly.ResultDraw, resB)
	assert.Equal(t, 1, winner.Draws)
	assert.Equal(t, 0, winner.CurrentStreak, "draws reset both streaks")
	assert.Equal(t, 0, loser.LossStreak, "a draw breaks a consecutive-loss run")
}

func TestApplyResultCountersNeverNegative(t *testing.T) {
	user := &models.User{}
	applyResult(user, KindDraw, false, "")
	applyResult(user, KindWin, false, "")

	assert.GreaterOrEqual(t, user.Wins, 0)
	assert.GreaterOrEqual(t, user.Losses, 0)
	assert.GreaterOrEqual(t, user.Draws, 0)
	assert.GreaterOrEqual(t, user.CurrentStreak, 0)
}

func TestToInt64Array(t *testing.T) {
	assert.Nil(t, toInt64Array(nil))
	assert.Nil(t, toInt64Array([]int{}))

	arr := toInt64Array([]int{1, 2, 3, 4})
	require.Len(t, arr, 4)
	assert.Equal(t, int64(4), arr[3])
}
