// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/boardserver/network"
)

type Session struct {
	ID         string
	Conn       network.Connection
	UserID     int64
	GameID     string
	Data       map[string]interface{} // 自定义数据
	CreatedAt  time.Time
	LastActive time.Time
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		LastActive: now,
		Data:       make(map[string]interface{}),
	}
}

func (s *Session) Set(key string, value interface{}) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Data[key] = value
}

func (s *Session) Get(key string) interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.Data[key]
}

func (s *Session) Send(msgID uint16, data []byte) error {
	s.LastActive = time.Now()
	return s.Conn.Send(msgID, data)
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器, 带游戏维度索引
type Manager struct {
	sessions map[string]*Session
	byGame   map[string]map[string]*Session // gameID -> sessionID -> session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		byGame:   make(map[string]map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
	if session.GameID != "" {
		m.indexGame(session)
	}
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if session, ok := m.sessions[sessionID]; ok {
		m.unindexGame(session)
	}
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

// BindGame moves the session into a game's index. Pass "" to take it
// out without removing the session itself.
func (m *Manager) BindGame(sessionID, gameID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	m.unindexGame(session)
	session.GameID = gameID
	if gameID != "" {
		m.indexGame(session)
	}
}

func (m *Manager) GetByUserID(userID int64) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.UserID == userID {
			result = append(result, session)
		}
	}
	return result
}

func (m *Manager) GetByGameID(gameID string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	members := m.byGame[gameID]
	result := make([]*Session, 0, len(members))
	for _, session := range members {
		result = append(result, session)
	}
	return result
}

func (m *Manager) indexGame(session *Session) {
	members, ok := m.byGame[session.GameID]
	if !ok {
		members = make(map[string]*Session)
		m.byGame[session.GameID] = members
	}
	members[session.ID] = session
}

func (m *Manager) unindexGame(session *Session) {
	if session.GameID == "" {
		return
	}
	if members, ok := m.byGame[session.GameID]; ok {
		delete(members, session.ID)
		if len(members) == 0 {
			delete(m.byGame, session.GameID)
		}
	}
}
