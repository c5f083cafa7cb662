// settlement/settlement.go
package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wfunc/boardserver/achievement"
	"github.com/wfunc/boardserver/board"
	"github.com/wfunc/boardserver/config"
	"github.com/wfunc/boardserver/ledger"
	"github.com/wfunc/boardserver/logger"
	"github.com/wfunc/boardserver/models"
	"github.com/wfunc/boardserver/persistence"
	"github.com/wfunc/boardserver/weekly"
)

var (
	// ErrAlreadySettled means another trigger won the race to finish
	// this game. Callers treat it as a no-op, not a failure.
	ErrAlreadySettled = errors.New("game already settled")
	ErrGameNotFound   = errors.New("game not found")
)

// OutcomeKind 结算结果类别
type OutcomeKind string

const (
	KindWin  OutcomeKind = "win"
	KindDraw OutcomeKind = "draw"
)

// Outcome describes how a game ended. Every path to completion — a
// winning move, a draw, an abandonment, an expiry — builds one of these
// and funnels through Settle.
type Outcome struct {
	Kind         OutcomeKind
	Status       models.GameStatus
	WinnerID     *int64
	WinCondition string
	WinCells     []int
}

// Win is a contested win by a move.
func Win(winnerID int64, condition string, cells []int) Outcome {
	return Outcome{
		Kind:         KindWin,
		Status:       models.StatusFinished,
		WinnerID:     &winnerID,
		WinCondition: condition,
		WinCells:     cells,
	}
}

// Draw is a full board with no winner.
func Draw() Outcome {
	return Outcome{Kind: KindDraw, Status: models.StatusFinished}
}

// ForcedLoss settles an abandoned or expired game as a loss for the
// absent player. It counts as an ordinary win for the remaining player's
// streaks and ledger.
func ForcedLoss(winnerID int64, status models.GameStatus) Outcome {
	return Outcome{Kind: KindWin, Status: status, WinnerID: &winnerID}
}

// Event is published after a settlement commits, for downstream
// consumers (notifications, audit).
type Event struct {
	GameID     string            `json:"game_id"`
	Mode       models.GameMode   `json:"mode"`
	Status     models.GameStatus `json:"status"`
	WinnerID   *int64            `json:"winner_id,omitempty"`
	Draw       bool              `json:"draw"`
	CoinDeltas map[int64]int64   `json:"coin_deltas,omitempty"`
	SettledAt  time.Time         `json:"settled_at"`
}

// Publisher pushes settlement events to an external broker. Failures are
// logged and never block settlement.
type Publisher interface {
	PublishSettled(ctx context.Context, ev Event) error
}

// Result is handed back over the transport for broadcast.
type Result struct {
	Game         models.Game
	Draw         bool
	WinnerID     *int64
	CoinDeltas   map[int64]int64
	Achievements map[int64][]models.AchievementType
}

// Pipeline performs the post-game settlement exactly once per game.
type Pipeline struct {
	db           persistence.Database
	achievements *achievement.Evaluator
	weekly       *weekly.Store
	publisher    Publisher
	cfg          config.GameConfig
}

func NewPipeline(db persistence.Database, evaluator *achievement.Evaluator, weeklyStore *weekly.Store, publisher Publisher, cfg config.GameConfig) *Pipeline {
	return &Pipeline{
		db:           db,
		achievements: evaluator,
		weekly:       weeklyStore,
		publisher:    publisher,
		cfg:          cfg,
	}
}

// playerFacts is what the post-commit steps need about each player,
// captured while the rows were locked.
type playerFacts struct {
	userID         int64
	bot            bool
	won            bool
	prevLossStreak int
	result         weekly.Result
	coinsEarned    int64
}

// Settle drives a game into its terminal state and applies every side
// effect. The status transition, stats update and currency transfer
// commit in one transaction guarded by a row-locked check-then-set: of
// any number of concurrent triggers (winning move, timeout sweep,
// disconnect), exactly one passes the guard and the rest get
// ErrAlreadySettled. A mid-transaction failure rolls everything back,
// status included, so retrying Settle from the entry point is safe.
//
// Achievement evaluation and weekly aggregation run after the commit:
// they are individually idempotent or atomic, and a failure there must
// not roll back an already committed currency transfer.
func (p *Pipeline) Settle(ctx context.Context, gameID string, outcome Outcome) (*Result, error) {
	if !outcome.Status.Terminal() {
		outcome.Status = models.StatusFinished
	}

	res := &Result{
		CoinDeltas:   make(map[int64]int64),
		Achievements: make(map[int64][]models.AchievementType),
	}
	var facts []playerFacts

	err := p.db.Transaction(func(tx *gorm.DB) error {
		tx = tx.WithContext(ctx)

		var game models.Game
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", gameID).First(&game).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrGameNotFound
		}
		if err != nil {
			return err
		}

		// The idempotency guard: checked and committed with the status
		// transition as one atomic step.
		if game.Status != models.StatusActive {
			return ErrAlreadySettled
		}

		now := time.Now()
		game.Status = outcome.Status
		game.WinnerID = outcome.WinnerID
		game.WinCondition = outcome.WinCondition
		game.WinCells = toInt64Array(outcome.WinCells)
		game.FinishedAt = &now
		if err := tx.Save(&game).Error; err != nil {
			return err
		}

		facts, err = p.applyStats(tx, &game, outcome)
		if err != nil {
			return err
		}

		if err := p.applyCurrency(tx, &game, outcome, facts, res); err != nil {
			return err
		}

		res.Game = game
		res.WinnerID = game.WinnerID
		res.Draw = outcome.Kind == KindDraw
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.afterCommit(ctx, res, facts)
	return res, nil
}

// applyStats updates both players' win/loss/draw counters and streaks.
// Practice games never touch persistent stats. Rows lock in id order so
// two settlements sharing a player cannot deadlock.
func (p *Pipeline) applyStats(tx *gorm.DB, game *models.Game, outcome Outcome) ([]playerFacts, error) {
	ids := []int64{game.PlayerXID, game.PlayerOID}
	if ids[0] > ids[1] {
		ids[0], ids[1] = ids[1], ids[0]
	}

	players := make(map[int64]*models.User, 2)
	for _, id := range ids {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&user, id).Error; err != nil {
			return nil, err
		}
		players[id] = &user
	}

	facts := make([]playerFacts, 0, 2)
	for _, id := range []int64{game.PlayerXID, game.PlayerOID} {
		user := players[id]
		f := playerFacts{
			userID:         id,
			bot:            user.Bot,
			prevLossStreak: user.LossStreak,
		}

		won := outcome.WinnerID != nil && *outcome.WinnerID == id
		f.won = won
		f.result = applyResult(user, outcome.Kind, won, outcome.WinCondition)

		if game.Mode.Online() {
			err := tx.Model(&models.User{}).Where("id = ?", id).
				Updates(map[string]interface{}{
					"wins":           user.Wins,
					"losses":         user.Losses,
					"draws":          user.Draws,
					"current_streak": user.CurrentStreak,
					"best_streak":    user.BestStreak,
					"loss_streak":    user.LossStreak,
					"diagonal_wins":  user.DiagonalWins,
				}).Error
			if err != nil {
				return nil, err
			}
		}
		facts = append(facts, f)
	}
	return facts, nil
}

// applyResult folds one game result into a user's counters. Draws and
// losses zero the win streak; a draw also breaks a consecutive-loss run.
// Best streak is a running max, never decremented.
func applyResult(user *models.User, kind OutcomeKind, won bool, winCondition string) weekly.Result {
	switch {
	case kind == KindDraw:
		user.Draws++
		user.CurrentStreak = 0
		user.LossStreak = 0
		return weekly.ResultDraw
	case won:
		user.Wins++
		user.CurrentStreak++
		if user.CurrentStreak > user.BestStreak {
			user.BestStreak = user.CurrentStreak
		}
		user.LossStreak = 0
		if winCondition == board.CondDiagonal {
			user.DiagonalWins++
		}
		return weekly.ResultWin
	default:
		user.Losses++
		user.CurrentStreak = 0
		user.LossStreak++
		return weekly.ResultLoss
	}
}

// applyCurrency runs the mode-dependent coin branch. Draws move nothing.
// A loser who cannot cover the debit is skipped, never driven negative,
// and never blocks the winner's payout.
func (p *Pipeline) applyCurrency(tx *gorm.DB, game *models.Game, outcome Outcome, facts []playerFacts, res *Result) error {
	if outcome.Kind != KindWin || outcome.WinnerID == nil {
		return nil
	}
	winnerID := *outcome.WinnerID
	loserID := game.PlayerXID
	if loserID == winnerID {
		loserID = game.PlayerOID
	}
	winnerBot := false
	for _, f := range facts {
		if f.userID == winnerID {
			winnerBot = f.bot
		}
	}

	credit := func(userID, amount int64, txType string) error {
		if _, err := ledger.CreditTx(tx, userID, amount, txType, &game.ID, nil); err != nil {
			return err
		}
		res.CoinDeltas[userID] += amount
		return nil
	}
	debit := func(userID, amount int64, txType string) error {
		_, err := ledger.DebitTx(tx, userID, amount, txType, &game.ID, nil)
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			logger.Log.Infof("debit of %d skipped for user %d in game %s: insufficient balance", amount, userID, game.ID)
			return nil
		}
		if err != nil {
			return err
		}
		res.CoinDeltas[userID] -= amount
		return nil
	}

	switch game.Mode {
	case models.ModePractice:
		if winnerBot {
			return nil
		}
		return credit(winnerID, p.cfg.PracticeReward, models.TxTypePracticeReward)
	case models.ModeFree:
		if err := credit(winnerID, p.cfg.OnlineReward, models.TxTypeWinReward); err != nil {
			return err
		}
		return debit(loserID, p.cfg.OnlineReward, models.TxTypeLossPenalty)
	case models.ModeStaked:
		if err := credit(winnerID, game.Stake, models.TxTypeStakeWin); err != nil {
			return err
		}
		// A reserved stake should always be coverable; the skip path
		// exists for the edge where it was not enforced at entry.
		return debit(loserID, game.Stake, models.TxTypeStakeLoss)
	}
	return nil
}

// afterCommit evaluates achievements and folds weekly aggregates. Both
// steps are logged, never fatal: the game is already settled.
func (p *Pipeline) afterCommit(ctx context.Context, res *Result, facts []playerFacts) {
	if !res.Game.Mode.Online() {
		p.publish(ctx, res)
		return
	}

	for _, f := range facts {
		if f.bot {
			continue
		}

		gctx := achievement.GameContext{
			Won:            f.won,
			WinCondition:   res.Game.WinCondition,
			PrevLossStreak: f.prevLossStreak,
		}
		granted, err := p.achievements.Evaluate(ctx, f.userID, res.Game.ID, gctx)
		if err != nil {
			logger.Log.Errorf("achievement evaluation failed for user %d, game %s: %v", f.userID, res.Game.ID, err)
		}
		if len(granted) > 0 {
			res.Achievements[f.userID] = granted
		}

		coinsEarned := res.CoinDeltas[f.userID]
		if coinsEarned < 0 {
			coinsEarned = 0
		}
		if err := p.weekly.RecordResult(ctx, f.userID, f.result, coinsEarned); err != nil {
			logger.Log.Errorf("weekly aggregate update failed for user %d, game %s: %v", f.userID, res.Game.ID, err)
		}
	}

	p.publish(ctx, res)
}

func (p *Pipeline) publish(ctx context.Context, res *Result) {
	if p.publisher == nil {
		return
	}
	ev := Event{
		GameID:     res.Game.ID,
		Mode:       res.Game.Mode,
		Status:     res.Game.Status,
		WinnerID:   res.WinnerID,
		Draw:       res.Draw,
		CoinDeltas: res.CoinDeltas,
		SettledAt:  time.Now(),
	}
	if err := p.publisher.PublishSettled(ctx, ev); err != nil {
		logger.Log.Warnf("failed to publish settlement event for game %s: %v", res.Game.ID, err)
	}
}

func toInt64Array(cells []int) pq.Int64Array {
	if len(cells) == 0 {
		return nil
	}
	out := make(pq.Int64Array, len(cells))
	for i, c := range cells {
		out[i] = int64(c)
	}
	return out
}
