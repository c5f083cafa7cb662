package room

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/boardserver/ledger"
	"github.com/wfunc/boardserver/models"
	"github.com/wfunc/boardserver/network"
	"github.com/wfunc/boardserver/session"
)

// MockBroadcaster is a test double for the Broadcaster interface.
type MockBroadcaster struct{}

func (m *MockBroadcaster) BroadcastToUsers(userIDs []int64, msgID uint16, data []byte) error {
	return nil
}

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct{}

func (m *MockConnection) Send(msgID uint16, data []byte) error { return nil }
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

// fixedBalances is a test double for the EligibilityChecker interface.
type fixedBalances map[int64]int64

func (f fixedBalances) CheckStake(userID int64, stake int64) error {
	if f[userID] < stake {
		return ledger.ErrInsufficientBalance
	}
	return nil
}

func newTestSession(id string, userID int64) *session.Session {
	s := session.NewSession(id, &MockConnection{})
	s.UserID = userID
	return s
}

func TestRoomAddPlayer(t *testing.T) {
	room := NewRoom("r1", models.ModeFree, 0, &MockBroadcaster{})

	require.NoError(t, room.AddPlayer(newTestSession("s1", 100)))
	assert.Equal(t, 1, room.PlayerCount())
	assert.False(t, room.Full())

	require.NoError(t, room.AddPlayer(newTestSession("s2", 200)))
	assert.True(t, room.Full())
}

func TestRoomAddPlayerFull(t *testing.T) {
	room := NewRoom("r1", models.ModeFree, 0, &MockBroadcaster{})

	require.NoError(t, room.AddPlayer(newTestSession("s1", 100)))
	require.NoError(t, room.AddPlayer(newTestSession("s2", 200)))

	err := room.AddPlayer(newTestSession("s3", 300))
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.Equal(t, 2, room.PlayerCount())
}

func TestRoomAddPlayerSameUserTwice(t *testing.T) {
	room := NewRoom("r1", models.ModeFree, 0, &MockBroadcaster{})

	require.NoError(t, room.AddPlayer(newTestSession("s1", 100)))
	err := room.AddPlayer(newTestSession("s2", 100))
	assert.ErrorIs(t, err, ErrAlreadyInRoom)
}

func TestRoomRemovePlayer(t *testing.T) {
	room := NewRoom("r1", models.ModeFree, 0, &MockBroadcaster{})

	sess := newTestSession("s1", 100)
	require.NoError(t, room.AddPlayer(sess))

	room.RemovePlayer(sess.GetID())
	assert.Equal(t, 0, room.PlayerCount())

	_, exists := room.GetPlayer(sess.GetID())
	assert.False(t, exists)
}

func TestManagerJoinPairsByModeAndStake(t *testing.T) {
	manager := NewRoomManager(nil)
	bc := &MockBroadcaster{}

	first, err := manager.Join(newTestSession("s1", 100), models.ModeFree, 0, bc)
	require.NoError(t, err)
	assert.Equal(t, 1, first.PlayerCount())

	// same mode and stake lands in the same room
	second, err := manager.Join(newTestSession("s2", 200), models.ModeFree, 0, bc)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Full())

	// a full room never accepts a third; a fresh one is created
	third, err := manager.Join(newTestSession("s3", 300), models.ModeFree, 0, bc)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestManagerJoinSeparatesStakes(t *testing.T) {
	manager := NewRoomManager(fixedBalances{100: 1000, 200: 1000})
	bc := &MockBroadcaster{}

	low, err := manager.Join(newTestSession("s1", 100), models.ModeStaked, 50, bc)
	require.NoError(t, err)

	high, err := manager.Join(newTestSession("s2", 200), models.ModeStaked, 500, bc)
	require.NoError(t, err)

	assert.NotEqual(t, low.ID, high.ID)
}

func TestManagerJoinRejectsInsufficientStake(t *testing.T) {
	manager := NewRoomManager(fixedBalances{100: 10})

	_, err := manager.Join(newTestSession("s1", 100), models.ModeStaked, 50, &MockBroadcaster{})
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
}

func TestManagerEvictSession(t *testing.T) {
	manager := NewRoomManager(nil)
	bc := &MockBroadcaster{}

	r, err := manager.Join(newTestSession("s1", 100), models.ModeFree, 0, bc)
	require.NoError(t, err)

	// an emptied waiting room is reclaimed
	manager.EvictSession("s1")
	_, exists := manager.GetRoom(r.ID)
	assert.False(t, exists)
	assert.Equal(t, StatusClosed, r.GetStatus())
}

func TestManagerRemoveRoom(t *testing.T) {
	manager := NewRoomManager(nil)

	room := manager.CreateRoom(models.ModeFree, 0, &MockBroadcaster{})
	_, exists := manager.GetRoom(room.ID)
	require.True(t, exists)

	manager.RemoveRoom(room.ID)
	_, exists = manager.GetRoom(room.ID)
	assert.False(t, exists)
	assert.Equal(t, StatusClosed, room.GetStatus())
}
