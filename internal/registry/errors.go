package registry

import "errors"

var (
	ErrAlreadyInRoom       = errors.New("already in a room, leave first")
	ErrRoomNotFound        = errors.New("room not found")
	ErrSessionInProgress   = errors.New("game already in progress")
	ErrRoomFull            = errors.New("room is full")
	ErrUsernameTaken       = errors.New("username already taken in this room")
	ErrNotInRoom           = errors.New("not in a room")
	ErrPlayerNotFound      = errors.New("player not found")
	ErrNotHost             = errors.New("only the host can do that")
	ErrAlreadyStarted      = errors.New("game already started")
	ErrNotAllReady         = errors.New("not all players are ready")
	ErrInsufficientPlayers = errors.New("need at least 2 players to start")
	ErrCannotKickSelf      = errors.New("cannot kick yourself")
	ErrWrongState          = errors.New("game is not in progress")
	ErrCodesExhausted      = errors.New("room code space exhausted")
)

// Kind maps a registry error to its stable wire identifier. Unknown errors
// collapse to "Internal" so internal detail never reaches a client.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyInRoom):
		return "AlreadyInRoom"
	case errors.Is(err, ErrRoomNotFound):
		return "RoomNotFound"
	case errors.Is(err, ErrSessionInProgress):
		return "SessionInProgress"
	case errors.Is(err, ErrRoomFull):
		return "RoomFull"
	case errors.Is(err, ErrUsernameTaken):
		return "UsernameTaken"
	case errors.Is(err, ErrNotInRoom):
		return "NotInRoom"
	case errors.Is(err, ErrPlayerNotFound):
		return "PlayerNotFound"
	case errors.Is(err, ErrNotHost):
		return "NotHost"
	case errors.Is(err, ErrAlreadyStarted):
		return "AlreadyStarted"
	case errors.Is(err, ErrNotAllReady):
		return "NotAllReady"
	case errors.Is(err, ErrInsufficientPlayers):
		return "InsufficientPlayers"
	case errors.Is(err, ErrCannotKickSelf):
		return "CannotKickSelf"
	case errors.Is(err, ErrWrongState):
		return "WrongState"
	default:
		return "Internal"
	}
}
