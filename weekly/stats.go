// weekly/stats.go
package weekly

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wfunc/boardserver/models"
	"github.com/wfunc/boardserver/persistence"
)

// Result of one game from a single player's perspective.
type Result string

const (
	ResultWin  Result = "win"
	ResultLoss Result = "loss"
	ResultDraw Result = "draw"
)

var ErrUnknownResult = errors.New("unknown result")

// Store aggregates per-week stats and runs the rollover.
type Store struct {
	db  persistence.Database
	cfg Config

	// OnRetry, when set, observes every rollover retry attempt.
	OnRetry func()
}

// Config carries the reward tiers and retry policy for the rollover.
type Config struct {
	Tiers        []Tier
	RetryBackoff time.Duration
	MaxRetries   int
}

// Tier maps an inclusive rank range to a reward amount.
type Tier struct {
	MinRank int
	MaxRank int
	Amount  int64
}

func NewStore(db persistence.Database, cfg Config) *Store {
	return &Store{db: db, cfg: cfg}
}

// RecordResult folds one game result into the acting week's row for the
// user. The increment is a single atomic upsert: concurrent finishers
// either insert (first write of the week wins the conflict) or add onto
// the existing row server-side, never read-modify-write from here.
func (s *Store) RecordResult(ctx context.Context, userID int64, result Result, coinsEarned int64) error {
	week, year := WeekOf(time.Now())
	return s.RecordResultAt(ctx, userID, result, coinsEarned, week, year)
}

// RecordResultAt is RecordResult pinned to an explicit week, used by
// tests and by late settlements racing the boundary.
func (s *Store) RecordResultAt(ctx context.Context, userID int64, result Result, coinsEarned int64, week, year int) error {
	row := models.WeeklyStats{
		UserID:      userID,
		Week:        week,
		Year:        year,
		Games:       1,
		CoinsEarned: coinsEarned,
	}

	assignments := map[string]interface{}{
		"games":        gorm.Expr("weekly_stats.games + 1"),
		"coins_earned": gorm.Expr("weekly_stats.coins_earned + ?", coinsEarned),
		"updated_at":   time.Now(),
	}

	switch result {
	case ResultWin:
		row.Wins = 1
		row.CurrentStreak = 1
		row.BestStreak = 1
		assignments["wins"] = gorm.Expr("weekly_stats.wins + 1")
		assignments["current_streak"] = gorm.Expr("weekly_stats.current_streak + 1")
		assignments["best_streak"] = gorm.Expr("GREATEST(weekly_stats.best_streak, weekly_stats.current_streak + 1)")
	case ResultLoss:
		row.Losses = 1
		assignments["losses"] = gorm.Expr("weekly_stats.losses + 1")
		assignments["current_streak"] = gorm.Expr("0")
	case ResultDraw:
		row.Draws = 1
		assignments["draws"] = gorm.Expr("weekly_stats.draws + 1")
		assignments["current_streak"] = gorm.Expr("0")
	default:
		return ErrUnknownResult
	}

	return s.db.DB().WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"}, {Name: "week"}, {Name: "year"},
		},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&row).Error
}

// Leaderboard returns the week's ranking: coins earned, then wins, then
// games played, then best streak, ending on user id so ties resolve the
// same way on every query.
func (s *Store) Leaderboard(ctx context.Context, week, year, limit int) ([]models.WeeklyStats, error) {
	var rows []models.WeeklyStats
	q := s.db.DB().WithContext(ctx).
		Where("week = ? AND year = ?", week, year).
		Order("coins_earned DESC, wins DESC, games DESC, best_streak DESC, user_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return rows, q.Find(&rows).Error
}

// Rank returns the user's 1-based position on the week's leaderboard, or
// 0 when they have no row.
func (s *Store) Rank(ctx context.Context, userID int64, week, year int) (int, error) {
	var mine models.WeeklyStats
	err := s.db.DB().WithContext(ctx).
		Where("user_id = ? AND week = ? AND year = ?", userID, week, year).
		First(&mine).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var ahead int64
	err = s.db.DB().WithContext(ctx).Model(&models.WeeklyStats{}).
		Where("week = ? AND year = ?", week, year).
		Where(`coins_earned > ?
			OR (coins_earned = ? AND wins > ?)
			OR (coins_earned = ? AND wins = ? AND games > ?)
			OR (coins_earned = ? AND wins = ? AND games = ? AND best_streak > ?)
			OR (coins_earned = ? AND wins = ? AND games = ? AND best_streak = ? AND user_id < ?)`,
			mine.CoinsEarned,
			mine.CoinsEarned, mine.Wins,
			mine.CoinsEarned, mine.Wins, mine.Games,
			mine.CoinsEarned, mine.Wins, mine.Games, mine.BestStreak,
			mine.CoinsEarned, mine.Wins, mine.Games, mine.BestStreak, mine.UserID).
		Count(&ahead).Error
	if err != nil {
		return 0, err
	}
	return int(ahead) + 1, nil
}
