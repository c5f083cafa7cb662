package network

const (
	MsgTypeHeartbeat = 1
	MsgTypeAuth      = 2

	MsgTypeJoinGame  = 101
	MsgTypeLeaveGame = 102

	MsgTypeMove    = 201
	MsgTypeAbandon = 202

	MsgTypeBoardUpdated = 301
	MsgTypeGameFinished = 302
	MsgTypeMoveRejected = 303
)
