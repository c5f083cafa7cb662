// game/picker.go
package game

import (
	"math/rand"
	"sync"
	"time"

	"github.com/wfunc/boardserver/board"
)

// MovePicker chooses the synthetic move played on behalf of an idle
// player. Any legality-preserving strategy will do; a stronger bot can
// be swapped in without touching the sweep path.
type MovePicker interface {
	Pick(b board.Board, firstMove bool) (int, bool)
}

// RandomPicker plays a uniformly random legal cell.
type RandomPicker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomPicker() *RandomPicker {
	return &RandomPicker{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (p *RandomPicker) Pick(b board.Board, firstMove bool) (int, bool) {
	moves := board.LegalMoves(b, firstMove)
	if len(moves) == 0 {
		return 0, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return moves[p.rng.Intn(len(moves))], true
}
