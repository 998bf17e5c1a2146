package session

import "github.com/DoyleJ11/game-room-server/internal/protocol"

// Sender is the contract the coordinator needs from the transport layer:
// group membership keyed by room code plus fire-and-forget delivery. The
// transport must never block the caller on outbound sends.
type Sender interface {
	JoinGroup(connID, group string)
	LeaveGroup(connID, group string)
	ToGroup(group string, msg protocol.ServerMessage)
	ToGroupExcept(group, exceptID string, msg protocol.ServerMessage)
	ToConnection(connID string, msg protocol.ServerMessage)
}
