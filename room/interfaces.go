package room

// Broadcaster defines the interface for broadcasting messages to a room.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	BroadcastToUsers(userIDs []int64, msgID uint16, data []byte) error
}

// EligibilityChecker gates entry into staked rooms. Implemented by the
// ledger store; a non-nil error means the user cannot cover the stake.
type EligibilityChecker interface {
	CheckStake(userID int64, stake int64) error
}
