// game/sweeper.go
package game

import (
	"context"
	"time"

	"github.com/wfunc/boardserver/board"
	"github.com/wfunc/boardserver/logger"
	"github.com/wfunc/boardserver/models"
	"github.com/wfunc/boardserver/persistence"
	"github.com/wfunc/boardserver/timer"
)

// Sweeper escalates idle players into auto-play. It is an ordinary
// caller of the manager's move path, never a bypass: synthetic moves go
// through the same validation, sequencing and settlement as real ones.
type Sweeper struct {
	manager       *Manager
	db            persistence.Database
	timers        *timer.Manager
	interval      time.Duration
	idleThreshold time.Duration
	timerID       int64

	// OnSweep, when set, observes the duration of every sweep pass.
	OnSweep func(time.Duration)
}

func NewSweeper(manager *Manager, db persistence.Database, timers *timer.Manager, interval, idleThreshold time.Duration) *Sweeper {
	return &Sweeper{
		manager:       manager,
		db:            db,
		timers:        timers,
		interval:      interval,
		idleThreshold: idleThreshold,
	}
}

func (s *Sweeper) Start() {
	s.timerID = s.timers.AddTimer(s.interval, s.interval, s.sweepOnce)
	logger.Log.Infof("inactivity sweeper started: interval=%v threshold=%v", s.interval, s.idleThreshold)
}

func (s *Sweeper) Stop() {
	s.timers.RemoveTimer(s.timerID)
}

// sweepOnce scans active online games whose last move is older than the
// idle threshold. Practice games are never swept.
func (s *Sweeper) sweepOnce() {
	start := time.Now()
	if s.OnSweep != nil {
		defer func() { s.OnSweep(time.Since(start)) }()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-s.idleThreshold)
	var stale []models.Game
	err := s.db.DB().WithContext(ctx).
		Where("status = ?", models.StatusActive).
		Where("mode IN ?", []models.GameMode{models.ModeFree, models.ModeStaked}).
		Where("last_move_at < ?", cutoff).
		Find(&stale).Error
	if err != nil {
		logger.Log.Errorf("inactivity sweep query failed: %v", err)
		return
	}

	for i := range stale {
		s.handleIdleGame(ctx, &stale[i])
	}
}

func (s *Sweeper) handleIdleGame(ctx context.Context, g *models.Game) {
	// Both players gone: the game is dead, settle it as expired with a
	// forced loss for the player on turn.
	if g.AutoPlayX && g.AutoPlayO {
		if _, err := s.manager.Expire(ctx, g.ID); err != nil {
			logger.Log.Warnf("failed to expire game %s: %v", g.ID, err)
		}
		return
	}

	idleID := g.PlayerID(g.Turn)

	autoPlaying := g.AutoPlayX
	if g.Turn == models.MarkO {
		autoPlaying = g.AutoPlayO
	}
	if !autoPlaying {
		if err := s.manager.EnableAutoPlay(ctx, g.ID, idleID); err != nil {
			logger.Log.Warnf("failed to flag auto-play for user %d in game %s: %v", idleID, g.ID, err)
			return
		}
	}

	s.playSynthetic(ctx, g, idleID)
}

func boardOf(g *models.Game) (board.Board, error) {
	return board.Parse(g.Board)
}

// playSynthetic submits one random legal move for the idle player. The
// game's current sequence is passed as the expected one, so a racing
// real move makes this a clean stale-sequence rejection.
func (s *Sweeper) playSynthetic(ctx context.Context, g *models.Game, idleID int64) {
	b, err := boardOf(g)
	if err != nil {
		logger.Log.Errorf("corrupt board for game %s: %v", g.ID, err)
		return
	}

	pos, ok := s.manager.picker.Pick(b, g.Seq == 0)
	if !ok {
		return
	}

	if _, err := s.manager.apply(ctx, g.ID, idleID, pos, g.Seq, true); err != nil {
		// Losing the race to a real move is expected, not a fault.
		logger.Log.Debugf("synthetic move for game %s not applied: %v", g.ID, err)
		return
	}
	logger.Log.Infof("synthetic move played for idle user %d in game %s (pos %d)", idleID, g.ID, pos)
}
