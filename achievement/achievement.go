// achievement/achievement.go
package achievement

import (
	"context"
	"errors"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/wfunc/boardserver/logger"
	"github.com/wfunc/boardserver/models"
	"github.com/wfunc/boardserver/persistence"
)

// GameContext carries the per-game facts a rule may need beyond the
// updated cumulative stats.
type GameContext struct {
	Won          bool
	WinCondition string
	// PrevLossStreak is the loser streak the player carried into this
	// game, before settlement updated it.
	PrevLossStreak int
}

// Qualifies evaluates one catalog rule against updated stats. Pure, so
// the rule table can be tested without a database.
func Qualifies(rule models.AchievementType, user *models.User, gctx GameContext) bool {
	switch rule.Rule {
	case models.RuleFirstWin:
		return gctx.Won && user.Wins >= 1
	case models.RuleWinStreak:
		return user.CurrentStreak >= rule.Threshold
	case models.RuleTotalWins:
		return user.Wins >= rule.Threshold
	case models.RuleTotalGames:
		return user.Games() >= rule.Threshold
	case models.RuleDiagonalWins:
		return user.DiagonalWins >= rule.Threshold
	case models.RuleComeback:
		return gctx.Won && gctx.PrevLossStreak >= rule.Threshold
	default:
		return false
	}
}

// Evaluator grants achievements against the updated stats after a game
// settles. Granting is idempotent: the (user, type) unique index makes a
// concurrent double-grant a unique violation, which is swallowed.
type Evaluator struct {
	db persistence.Database
}

func NewEvaluator(db persistence.Database) *Evaluator {
	return &Evaluator{db: db}
}

// Evaluate runs the whole catalog for one player and returns the newly
// granted achievement types.
func (e *Evaluator) Evaluate(ctx context.Context, userID int64, gameID string, gctx GameContext) ([]models.AchievementType, error) {
	db := e.db.DB().WithContext(ctx)

	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		return nil, err
	}

	var catalog []models.AchievementType
	if err := db.Order("id ASC").Find(&catalog).Error; err != nil {
		return nil, err
	}

	var granted []models.AchievementType
	for _, rule := range catalog {
		if !Qualifies(rule, &user, gctx) {
			continue
		}
		ok, err := e.grant(db, userID, rule.ID, gameID)
		if err != nil {
			return granted, err
		}
		if ok {
			logger.Log.Infof("achievement %q granted to user %d (game %s)", rule.Name, userID, gameID)
			granted = append(granted, rule)
		}
	}
	return granted, nil
}

// grant inserts the join row. Returns false when the achievement was
// already held, by this call racing another or from an earlier game.
func (e *Evaluator) grant(db *gorm.DB, userID int64, typeID uint, gameID string) (bool, error) {
	row := models.UserAchievement{
		UserID:            userID,
		AchievementTypeID: typeID,
		GameID:            &gameID,
	}
	err := db.Create(&row).Error
	if err == nil {
		return true, nil
	}
	if isUniqueViolation(err) {
		return false, nil
	}
	return false, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// ListForUser returns the user's granted achievements with their catalog
// entries, newest first.
func (e *Evaluator) ListForUser(ctx context.Context, userID int64) ([]models.UserAchievement, error) {
	var rows []models.UserAchievement
	err := e.db.DB().WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}
