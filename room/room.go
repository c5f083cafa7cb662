// room/room.go
package room

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/boardserver/models"
	"github.com/wfunc/boardserver/session"
)

var (
	ErrRoomFull      = errors.New("room is full")
	ErrRoomClosed    = errors.New("room is closed")
	ErrAlreadyInRoom = errors.New("user already seated in room")
)

// RoomStatus 表示房间的业务状态
type RoomStatus int

const (
	StatusWaiting RoomStatus = iota // 等待对手
	StatusPlaying                   // 对局进行中
	StatusClosed
)

const MaxSeats = 2

// Room 是两人对局的配对槽位
type Room struct {
	ID        string
	Mode      models.GameMode
	Stake     int64
	GameID    string
	CreatedAt time.Time

	players     map[string]*session.Session // sessionID -> session
	status      RoomStatus
	broadcaster Broadcaster
	statusMutex sync.RWMutex
	playerMutex sync.RWMutex
}

// NewRoom 创建一个新房间
func NewRoom(id string, mode models.GameMode, stake int64, broadcaster Broadcaster) *Room {
	return &Room{
		ID:          id,
		Mode:        mode,
		Stake:       stake,
		CreatedAt:   time.Now(),
		players:     make(map[string]*session.Session),
		status:      StatusWaiting,
		broadcaster: broadcaster,
	}
}

// AddPlayer 添加一个玩家到房间
func (r *Room) AddPlayer(s *session.Session) error {
	r.playerMutex.Lock()
	defer r.playerMutex.Unlock()

	if r.GetStatus() == StatusClosed {
		return ErrRoomClosed
	}
	if len(r.players) >= MaxSeats {
		return ErrRoomFull
	}
	for _, seated := range r.players {
		if seated.UserID == s.UserID {
			return ErrAlreadyInRoom
		}
	}

	r.players[s.ID] = s
	return nil
}

// RemovePlayer 从房间移除一个玩家
func (r *Room) RemovePlayer(sessionID string) {
	r.playerMutex.Lock()
	defer r.playerMutex.Unlock()
	delete(r.players, sessionID)
}

// GetPlayer 获取单个玩家
func (r *Room) GetPlayer(sessionID string) (*session.Session, bool) {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()

	player, exists := r.players[sessionID]
	return player, exists
}

// GetSessions returns a slice of all sessions in the room (thread-safe).
func (r *Room) GetSessions() []*session.Session {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()

	sessions := make([]*session.Session, 0, len(r.players))
	for _, s := range r.players {
		sessions = append(sessions, s)
	}
	return sessions
}

// Full reports whether both seats are taken.
func (r *Room) Full() bool {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()
	return len(r.players) >= MaxSeats
}

// PlayerCount 返回当前座位数
func (r *Room) PlayerCount() int {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()
	return len(r.players)
}

// UserIDs 返回所有已入座玩家的用户ID
func (r *Room) UserIDs() []int64 {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()

	ids := make([]int64, 0, len(r.players))
	for _, s := range r.players {
		ids = append(ids, s.UserID)
	}
	return ids
}

// Broadcast sends a message to all players in the room.
func (r *Room) Broadcast(msgID uint16, data []byte) error {
	return r.broadcaster.BroadcastToUsers(r.UserIDs(), msgID, data)
}

// StartGame 把房间标记为对局中, 记录落地的 game ID
func (r *Room) StartGame(gameID string) {
	r.statusMutex.Lock()
	r.GameID = gameID
	r.statusMutex.Unlock()
	r.SetStatus(StatusPlaying)
}

// SetStatus 设置房间的业务状态
func (r *Room) SetStatus(status RoomStatus) {
	r.statusMutex.Lock()
	defer r.statusMutex.Unlock()
	r.status = status
}

// GetStatus 获取房间的业务状态
func (r *Room) GetStatus() RoomStatus {
	r.statusMutex.RLock()
	defer r.statusMutex.RUnlock()
	return r.status
}

// Close 关闭房间
func (r *Room) Close() {
	r.SetStatus(StatusClosed)
}

// --- 房间管理器 ---

// Manager 管理所有房间并负责配对
type Manager struct {
	rooms       map[string]*Room
	eligibility EligibilityChecker
	mutex       sync.RWMutex
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager(eligibility EligibilityChecker) *Manager {
	return &Manager{
		rooms:       make(map[string]*Room),
		eligibility: eligibility,
	}
}

// CreateRoom 创建一个新房间并添加到管理器
func (m *Manager) CreateRoom(mode models.GameMode, stake int64, broadcaster Broadcaster) *Room {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	room := NewRoom(uuid.New().String(), mode, stake, broadcaster)
	m.rooms[room.ID] = room
	return room
}

// RemoveRoom 从管理器中移除并关闭一个房间
func (m *Manager) RemoveRoom(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if room, exists := m.rooms[id]; exists {
		room.Close()
		delete(m.rooms, id)
	}
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[id]
	return room, exists
}

// EvictSession removes a disconnected session from whichever waiting
// room holds it, closing the room once it empties out.
func (m *Manager) EvictSession(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for id, room := range m.rooms {
		if _, ok := room.GetPlayer(sessionID); !ok {
			continue
		}
		room.RemovePlayer(sessionID)
		if room.GetStatus() == StatusWaiting && room.PlayerCount() == 0 {
			room.Close()
			delete(m.rooms, id)
		}
	}
}

// Join seats the session in a waiting room matching mode and stake,
// creating one when none has a free seat. Staked rooms require the
// user's balance to cover the stake.
func (m *Manager) Join(s *session.Session, mode models.GameMode, stake int64, broadcaster Broadcaster) (*Room, error) {
	if mode == models.ModeStaked && m.eligibility != nil {
		if err := m.eligibility.CheckStake(s.UserID, stake); err != nil {
			return nil, err
		}
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, room := range m.rooms {
		if room.Mode != mode || room.Stake != stake {
			continue
		}
		if room.GetStatus() != StatusWaiting || room.Full() {
			continue
		}
		if err := room.AddPlayer(s); err != nil {
			continue
		}
		return room, nil
	}

	room := NewRoom(uuid.New().String(), mode, stake, broadcaster)
	if err := room.AddPlayer(s); err != nil {
		return nil, err
	}
	m.rooms[room.ID] = room
	return room, nil
}
