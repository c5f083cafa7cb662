// weekly/rollover.go
package weekly

import (
	"context"
	"errors"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/wfunc/boardserver/ledger"
	"github.com/wfunc/boardserver/logger"
	"github.com/wfunc/boardserver/models"
)

var ErrRetriesExhausted = errors.New("rollover retries exhausted")

// RewardResult is one paid-out row of a completed rollover.
type RewardResult struct {
	UserID int64
	Rank   int
	Amount int64
}

// TierAmount resolves the reward for a rank, 0 when the rank is outside
// every tier.
func TierAmount(tiers []Tier, rank int) int64 {
	for _, t := range tiers {
		if rank >= t.MinRank && rank <= t.MaxRank {
			return t.Amount
		}
	}
	return 0
}

// maxRewardedRank is how deep the payout table reaches.
func maxRewardedRank(tiers []Tier) int {
	max := 0
	for _, t := range tiers {
		if t.MaxRank > max {
			max = t.MaxRank
		}
	}
	return max
}

// DistributeRewards settles the given week exactly once. The whole
// critical section runs inside one transaction holding a cross-process
// advisory lock keyed on (week, year): concurrent triggers from other
// process instances queue on the lock and then see the work already done.
// The lock is transaction-scoped, so failures release it on rollback.
func (s *Store) DistributeRewards(ctx context.Context, week, year int) ([]RewardResult, error) {
	var results []RewardResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		tx = tx.WithContext(ctx)

		if err := s.db.AdvisoryLock(tx, LockKey(week, year)); err != nil {
			return err
		}

		// Idempotency: rewarded rows already present mean a previous run
		// completed; return its results unchanged.
		existing, err := s.rewardedRows(tx, week, year)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			results = existing
			return nil
		}

		if err := s.markInProgress(tx, week, year); err != nil {
			return err
		}

		var top []models.WeeklyStats
		err = tx.Where("week = ? AND year = ?", week, year).
			Order("coins_earned DESC, wins DESC, games DESC, best_streak DESC, user_id ASC").
			Limit(maxRewardedRank(s.cfg.Tiers)).
			Find(&top).Error
		if err != nil {
			return err
		}

		payouts := make([]payout, 0, len(top))
		for i, row := range top {
			rank := i + 1
			r := RewardResult{UserID: row.UserID, Rank: rank, Amount: TierAmount(s.cfg.Tiers, rank)}
			results = append(results, r)
			payouts = append(payouts, payout{statID: row.ID, RewardResult: r})
		}
		creditOrder(payouts)

		for _, p := range payouts {
			if p.Amount > 0 {
				if _, err := ledger.CreditTx(tx, p.UserID, p.Amount, models.TxTypeWeeklyReward, nil, nil); err != nil {
					return err
				}
			}
			err = tx.Model(&models.WeeklyStats{}).
				Where("id = ?", p.statID).
				Updates(map[string]interface{}{
					"final_rank":      p.Rank,
					"reward_received": true,
				}).Error
			if err != nil {
				return err
			}
		}

		return s.markCompleted(tx, week, year)
	})
	if err != nil {
		s.recordFailure(ctx, week, year, err)
		return nil, err
	}

	logger.Log.Infof("weekly rollover %d/%d settled, %d recipients", week, year, len(results))
	return results, nil
}

// payout pairs a reward row with the weekly stats row it marks as paid.
type payout struct {
	statID uint
	RewardResult
}

// creditOrder sorts payouts into ascending user-id order, the same lock
// order the settlement path takes on user rows.
func creditOrder(payouts []payout) {
	sort.Slice(payouts, func(i, j int) bool { return payouts[i].UserID < payouts[j].UserID })
}

// rewardedRows rebuilds the results of an already completed run, amounts
// included, so a re-invocation returns the same rows the first one did.
func (s *Store) rewardedRows(tx *gorm.DB, week, year int) ([]RewardResult, error) {
	var rows []models.WeeklyStats
	err := tx.Where("week = ? AND year = ? AND reward_received = ?", week, year, true).
		Order("final_rank ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	results := make([]RewardResult, 0, len(rows))
	for _, row := range rows {
		rank := 0
		if row.FinalRank != nil {
			rank = *row.FinalRank
		}
		results = append(results, RewardResult{
			UserID: row.UserID,
			Rank:   rank,
			Amount: TierAmount(s.cfg.Tiers, rank),
		})
	}
	return results, nil
}

func (s *Store) markInProgress(tx *gorm.DB, week, year int) error {
	var status models.WeeklyResetStatus
	err := tx.Where("week = ? AND year = ?", week, year).First(&status).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		status = models.WeeklyResetStatus{
			Week:   week,
			Year:   year,
			Status: models.ResetInProgress,
		}
		return tx.Create(&status).Error
	}
	if err != nil {
		return err
	}
	if status.RetryCount >= s.cfg.MaxRetries && s.cfg.MaxRetries > 0 {
		return ErrRetriesExhausted
	}
	return tx.Model(&status).Update("status", models.ResetInProgress).Error
}

func (s *Store) markCompleted(tx *gorm.DB, week, year int) error {
	return tx.Model(&models.WeeklyResetStatus{}).
		Where("week = ? AND year = ?", week, year).
		Updates(map[string]interface{}{
			"status":        models.ResetCompleted,
			"next_retry_at": nil,
			"last_error":    "",
		}).Error
}

// recordFailure runs outside the rolled-back transaction so the failure
// survives. Backoff doubles per retry.
func (s *Store) recordFailure(ctx context.Context, week, year int, cause error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		tx = tx.WithContext(ctx)

		var status models.WeeklyResetStatus
		err := tx.Where("week = ? AND year = ?", week, year).First(&status).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			status = models.WeeklyResetStatus{Week: week, Year: year}
			if err := tx.Create(&status).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		backoff := s.cfg.RetryBackoff
		for i := 0; i < status.RetryCount; i++ {
			backoff *= 2
		}
		next := time.Now().Add(backoff)

		return tx.Model(&status).Updates(map[string]interface{}{
			"status":        models.ResetFailed,
			"retry_count":   status.RetryCount + 1,
			"next_retry_at": next,
			"last_error":    cause.Error(),
		}).Error
	})
	if err != nil {
		logger.Log.Errorf("failed to record rollover failure for %d/%d: %v", week, year, err)
		return
	}
	logger.Log.Warnf("weekly rollover %d/%d failed, will retry: %v", week, year, cause)
}

// RetryFailed picks up failed or stranded rollovers whose retry time has
// passed. Called periodically by the scheduler.
func (s *Store) RetryFailed(ctx context.Context) {
	var pending []models.WeeklyResetStatus
	err := s.db.DB().WithContext(ctx).
		Where("status IN ?", []string{models.ResetFailed, models.ResetPending}).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", time.Now()).
		Find(&pending).Error
	if err != nil {
		logger.Log.Errorf("failed to scan for stranded rollovers: %v", err)
		return
	}

	for _, status := range pending {
		if s.cfg.MaxRetries > 0 && status.RetryCount >= s.cfg.MaxRetries {
			logger.Log.Errorf("rollover %d/%d gave up after %d retries", status.Week, status.Year, status.RetryCount)
			continue
		}
		if s.OnRetry != nil {
			s.OnRetry()
		}
		if _, err := s.DistributeRewards(ctx, status.Week, status.Year); err != nil {
			logger.Log.Warnf("rollover retry %d/%d failed again: %v", status.Week, status.Year, err)
		}
	}
}
