// game/manager.go
package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wfunc/boardserver/board"
	"github.com/wfunc/boardserver/logger"
	"github.com/wfunc/boardserver/models"
	"github.com/wfunc/boardserver/persistence"
	"github.com/wfunc/boardserver/settlement"
)

var (
	ErrGameNotFound  = errors.New("game not found")
	ErrGameNotActive = errors.New("game is not active")
	ErrNotInGame     = errors.New("player is not in this game")
	ErrNotYourTurn   = errors.New("not your turn")
	ErrIllegalMove   = errors.New("illegal move")
	// ErrStaleSequence rejects a move whose expected sequence does not
	// match the game's: a duplicate or out-of-date submission.
	ErrStaleSequence = errors.New("stale move sequence")
)

// Settler is the settlement entry point. Every terminal transition goes
// through it, whatever triggered the finish.
type Settler interface {
	Settle(ctx context.Context, gameID string, outcome settlement.Outcome) (*settlement.Result, error)
}

// MoveResult is returned to the caller and handed to OnMove for
// broadcast.
type MoveResult struct {
	Game       models.Game
	Move       models.Move
	Win        *board.WinInfo
	Draw       bool
	Settlement *settlement.Result
}

// Manager owns game lifecycles. All mutations of one game serialize on a
// per-game mutex: of two near-simultaneous submissions, one applies and
// the other gets a well-defined rejection, never silent loss.
type Manager struct {
	db      persistence.Database
	settler Settler
	picker  MovePicker

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// OnMove, when set, observes every applied move (real or synthetic)
	// after it commits. The transport layer hooks broadcasts here.
	OnMove func(*MoveResult)
}

func NewManager(db persistence.Database, settler Settler, picker MovePicker) *Manager {
	if picker == nil {
		picker = NewRandomPicker()
	}
	return &Manager{
		db:      db,
		settler: settler,
		picker:  picker,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (m *Manager) gameLock(gameID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[gameID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[gameID] = lock
	}
	return lock
}

// releaseLock drops the per-game mutex entry once a game is terminal.
func (m *Manager) releaseLock(gameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, gameID)
}

// CreateGame starts a new game between two players. X always moves first.
func (m *Manager) CreateGame(ctx context.Context, roomID string, mode models.GameMode, stake int64, playerX, playerO int64) (*models.Game, error) {
	now := time.Now()
	game := &models.Game{
		ID:         uuid.New().String(),
		RoomID:     roomID,
		Mode:       mode,
		Stake:      stake,
		PlayerXID:  playerX,
		PlayerOID:  playerO,
		Board:      board.New().String(),
		Turn:       models.MarkX,
		Status:     models.StatusActive,
		CreatedAt:  now,
		LastMoveAt: now,
	}
	if err := m.db.DB().WithContext(ctx).Create(game).Error; err != nil {
		return nil, err
	}
	logger.Log.Infof("game %s created: mode=%s players=%d/%d stake=%d", game.ID, mode, playerX, playerO, stake)
	return game, nil
}

// ApplyMove validates and applies one move for a real player.
func (m *Manager) ApplyMove(ctx context.Context, gameID string, userID int64, pos int, expectedSeq int64) (*MoveResult, error) {
	return m.apply(ctx, gameID, userID, pos, expectedSeq, false)
}

func (m *Manager) apply(ctx context.Context, gameID string, userID int64, pos int, expectedSeq int64, synthetic bool) (*MoveResult, error) {
	lock := m.gameLock(gameID)
	lock.Lock()
	defer lock.Unlock()

	game, err := m.loadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}

	b, err := board.Parse(game.Board)
	if err != nil {
		return nil, err
	}

	mark, err := validateMove(game, b, userID, pos, expectedSeq)
	if err != nil {
		return nil, err
	}

	b.Set(pos, byte(mark[0]))
	now := time.Now()
	seq := game.Seq

	move := models.Move{
		GameID:    gameID,
		Seq:       seq,
		Mark:      mark,
		Position:  pos,
		Synthetic: synthetic,
		CreatedAt: now,
	}

	updates := map[string]interface{}{
		"board":        b.String(),
		"turn":         mark.Opponent(),
		"seq":          seq + 1,
		"last_move_at": now,
	}
	// A real move always hands control back to the player.
	if !synthetic {
		if mark == models.MarkX {
			updates["auto_play_x"] = false
			updates["auto_play_x_at"] = nil
		} else {
			updates["auto_play_o"] = false
			updates["auto_play_o_at"] = nil
		}
	}

	err = m.db.Transaction(func(tx *gorm.DB) error {
		tx = tx.WithContext(ctx)
		if err := tx.Create(&move).Error; err != nil {
			return err
		}
		return tx.Model(&models.Game{}).Where("id = ?", gameID).
			Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}

	res := &MoveResult{Move: move}
	res.Game = *game
	res.Game.Board = b.String()
	res.Game.Turn = mark.Opponent()
	res.Game.Seq = seq + 1
	res.Game.LastMoveAt = now

	// Terminal detection and synchronous settlement: "move accepted" and
	// "game settled" never observably diverge.
	if win := board.CheckWin(b, byte(mark[0])); win != nil {
		res.Win = win
		res.Settlement, err = m.settler.Settle(ctx, gameID,
			settlement.Win(game.PlayerID(mark), win.Condition, win.Cells))
	} else if board.CheckDraw(b) {
		res.Draw = true
		res.Settlement, err = m.settler.Settle(ctx, gameID, settlement.Draw())
	}
	if err != nil && !errors.Is(err, settlement.ErrAlreadySettled) {
		return nil, err
	}
	if res.Settlement != nil {
		res.Game = res.Settlement.Game
		m.releaseLock(gameID)
	}

	if m.OnMove != nil {
		m.OnMove(res)
	}
	return res, nil
}

// Abandon settles the game as a forced loss for the leaving player.
func (m *Manager) Abandon(ctx context.Context, gameID string, userID int64) (*settlement.Result, error) {
	lock := m.gameLock(gameID)
	lock.Lock()
	defer lock.Unlock()

	game, err := m.loadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	mark, ok := game.PlayerMark(userID)
	if !ok {
		return nil, ErrNotInGame
	}
	if game.Status != models.StatusActive {
		return nil, ErrGameNotActive
	}

	winnerID := game.PlayerID(mark.Opponent())
	res, err := m.settler.Settle(ctx, gameID, settlement.ForcedLoss(winnerID, models.StatusAbandoned))
	if err != nil {
		return nil, err
	}
	m.releaseLock(gameID)
	logger.Log.Infof("game %s abandoned by user %d", gameID, userID)
	return res, nil
}

// Expire settles a game both players walked away from. The player on
// turn is treated as the absent one and loses.
func (m *Manager) Expire(ctx context.Context, gameID string) (*settlement.Result, error) {
	lock := m.gameLock(gameID)
	lock.Lock()
	defer lock.Unlock()

	game, err := m.loadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game.Status != models.StatusActive {
		return nil, ErrGameNotActive
	}

	winnerID := game.PlayerID(game.Turn.Opponent())
	res, err := m.settler.Settle(ctx, gameID, settlement.ForcedLoss(winnerID, models.StatusExpired))
	if err != nil {
		return nil, err
	}
	m.releaseLock(gameID)
	logger.Log.Infof("game %s expired, forced loss for player on turn", gameID)
	return res, nil
}

// EnableAutoPlay flags a player as auto-playing. Idempotent.
func (m *Manager) EnableAutoPlay(ctx context.Context, gameID string, userID int64) error {
	return m.setAutoPlay(ctx, gameID, userID, true)
}

// DisableAutoPlay clears the flag. Always safe to call repeatedly.
func (m *Manager) DisableAutoPlay(ctx context.Context, gameID string, userID int64) error {
	return m.setAutoPlay(ctx, gameID, userID, false)
}

func (m *Manager) setAutoPlay(ctx context.Context, gameID string, userID int64, enabled bool) error {
	lock := m.gameLock(gameID)
	lock.Lock()
	defer lock.Unlock()

	game, err := m.loadGame(ctx, gameID)
	if err != nil {
		return err
	}
	mark, ok := game.PlayerMark(userID)
	if !ok {
		return ErrNotInGame
	}

	updates := map[string]interface{}{}
	var at interface{}
	if enabled {
		at = time.Now()
	}
	if mark == models.MarkX {
		updates["auto_play_x"] = enabled
		updates["auto_play_x_at"] = at
	} else {
		updates["auto_play_o"] = enabled
		updates["auto_play_o_at"] = at
	}
	return m.db.DB().WithContext(ctx).Model(&models.Game{}).
		Where("id = ?", gameID).Updates(updates).Error
}

// Game loads one game by id.
func (m *Manager) Game(ctx context.Context, gameID string) (*models.Game, error) {
	return m.loadGame(ctx, gameID)
}

func (m *Manager) loadGame(ctx context.Context, gameID string) (*models.Game, error) {
	var game models.Game
	err := m.db.DB().WithContext(ctx).Where("id = ?", gameID).First(&game).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// validateMove runs the full rejection chain for a submission.
func validateMove(g *models.Game, b board.Board, userID int64, pos int, expectedSeq int64) (models.Mark, error) {
	if g.Status != models.StatusActive {
		return "", ErrGameNotActive
	}
	mark, ok := g.PlayerMark(userID)
	if !ok {
		return "", ErrNotInGame
	}
	if g.Turn != mark {
		return "", ErrNotYourTurn
	}
	if expectedSeq != g.Seq {
		return "", ErrStaleSequence
	}
	if !board.Legal(b, pos, g.Seq == 0) {
		return "", ErrIllegalMove
	}
	return mark, nil
}
