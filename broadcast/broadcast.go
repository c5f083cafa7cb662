// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/wfunc/boardserver/session"
)

var (
	ErrNoRecipients = errors.New("no sessions bound to game")
)

// 广播接口
type Broadcaster interface {
	BroadcastToGame(gameID string, msgID uint16, data []byte) error
	BroadcastToUsers(userIDs []int64, msgID uint16, data []byte) error
}

// 基于会话索引的广播器
type GameBroadcaster struct {
	sessionManager *session.Manager
}

func NewGameBroadcaster(sessionManager *session.Manager) *GameBroadcaster {
	return &GameBroadcaster{sessionManager: sessionManager}
}

func (b *GameBroadcaster) BroadcastToGame(gameID string, msgID uint16, data []byte) error {
	sessions := b.sessionManager.GetByGameID(gameID)
	if len(sessions) == 0 {
		return ErrNoRecipients
	}

	for _, s := range sessions {
		if err := s.Send(msgID, data); err != nil {
			// 处理发送错误, 可能需要移除玩家
			continue
		}
	}
	return nil
}

func (b *GameBroadcaster) BroadcastToUsers(userIDs []int64, msgID uint16, data []byte) error {
	for _, userID := range userIDs {
		sessions := b.sessionManager.GetByUserID(userID)
		for _, s := range sessions {
			if err := s.Send(msgID, data); err != nil {
				continue
			}
		}
	}
	return nil
}
