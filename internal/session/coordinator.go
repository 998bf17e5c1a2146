// Package session maps inbound commands onto registry operations and decides
// which connections hear about each transition. The coordinator holds no
// state of its own; everything authoritative lives in the registry.
package session

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/game-room-server/internal/protocol"
	"github.com/DoyleJ11/game-room-server/internal/registry"
)

type Coordinator struct {
	reg    *registry.Registry
	sender Sender
	log    *zap.Logger
	now    func() time.Time
}

func NewCoordinator(reg *registry.Registry, sender Sender, log *zap.Logger) *Coordinator {
	return &Coordinator{
		reg:    reg,
		sender: sender,
		log:    log,
		now:    time.Now,
	}
}

// Connected greets a freshly attached connection with its id.
func (c *Coordinator) Connected(connID string) {
	c.log.Info("client connected", zap.String("conn", connID))
	c.sender.ToConnection(connID, event(protocol.EvtConnected, protocol.ConnectedEvent{
		ID:      connID,
		Message: "connected to game server",
	}))
}

// Disconnected funnels a transport-detected drop through the same leave path
// as an explicit leaveRoom. Running both is harmless: the registry treats an
// unindexed connection as a successful no-op.
func (c *Coordinator) Disconnected(connID string) {
	c.log.Info("client disconnected", zap.String("conn", connID))
	c.leave(connID)
}

// Handle runs one command and returns the result for the actor. Failures are
// never broadcast; an unexpected panic is logged and surfaced as a generic
// failure.
func (c *Coordinator) Handle(connID string, msg protocol.ClientMessage) (res protocol.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error("command panicked",
				zap.String("cmd", msg.Type),
				zap.String("conn", connID),
				zap.Any("panic", rec))
			res = protocol.Result{Cmd: msg.Type, Success: false, ErrorKind: "Internal", Error: "internal error"}
		}
	}()

	switch msg.Type {
	case protocol.CmdCreateRoom:
		return handle(c, connID, msg, c.createRoom)
	case protocol.CmdJoinRoom:
		return handle(c, connID, msg, c.joinRoom)
	case protocol.CmdLeaveRoom:
		return c.leave(connID)
	case protocol.CmdPlayerReady:
		return handle(c, connID, msg, c.playerReady)
	case protocol.CmdStartGame:
		return c.startGame(connID)
	case protocol.CmdGameAction:
		return handle(c, connID, msg, c.gameAction)
	case protocol.CmdUpdateGameState:
		return handle(c, connID, msg, c.updateGameState)
	case protocol.CmdEndGame:
		return handle(c, connID, msg, c.endGame)
	case protocol.CmdResetRoom:
		return c.resetRoom(connID)
	case protocol.CmdChatMessage:
		return handle(c, connID, msg, c.chatMessage)
	case protocol.CmdGetRoomInfo:
		return c.getRoomInfo(connID)
	case protocol.CmdKickPlayer:
		return handle(c, connID, msg, c.kickPlayer)
	default:
		return protocol.Result{Cmd: msg.Type, Success: false, ErrorKind: "UnknownCommand", Error: "unknown command"}
	}
}

// handle decodes the command payload and invokes fn with it.
func handle[T any](c *Coordinator, connID string, msg protocol.ClientMessage, fn func(connID string, data T) protocol.Result) protocol.Result {
	var data T
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return protocol.Result{Cmd: msg.Type, Success: false, ErrorKind: "BadRequest", Error: "malformed payload"}
		}
	}
	return fn(connID, data)
}

func (c *Coordinator) createRoom(connID string, data protocol.CreateRoomData) protocol.Result {
	room, err := c.reg.CreateRoom(connID, data.RoomName, data.MaxPlayers, data.Username)
	if err != nil {
		return failure(protocol.CmdCreateRoom, err)
	}
	c.sender.JoinGroup(connID, room.Code)
	return success(protocol.CmdCreateRoom, &room)
}

func (c *Coordinator) joinRoom(connID string, data protocol.JoinRoomData) protocol.Result {
	room, err := c.reg.JoinRoom(connID, data.RoomCode, data.Username)
	if err != nil {
		return failure(protocol.CmdJoinRoom, err)
	}
	c.sender.JoinGroup(connID, room.Code)

	// Everyone already in the room learns about the newcomer; the newcomer
	// gets the snapshot in its result instead.
	c.sender.ToGroupExcept(room.Code, connID, event(protocol.EvtPlayerJoined, protocol.PlayerJoinedEvent{
		Player: registry.PlayerInfo{ID: connID, Username: data.Username},
		Room:   room,
	}))
	return success(protocol.CmdJoinRoom, &room)
}

// leave backs both the explicit command and the disconnect path.
func (c *Coordinator) leave(connID string) protocol.Result {
	lr := c.reg.LeaveRoom(connID)
	if !lr.Left {
		// Second run of a leave/disconnect race: nothing to do, no events.
		return protocol.Result{Cmd: protocol.CmdLeaveRoom, Success: true}
	}
	c.sender.LeaveGroup(connID, lr.Code)
	if lr.RoomDeleted {
		return protocol.Result{Cmd: protocol.CmdLeaveRoom, Success: true, RoomDeleted: true}
	}
	c.sender.ToGroup(lr.Code, event(protocol.EvtPlayerLeft, protocol.PlayerLeftEvent{
		PlayerID:  lr.PlayerID,
		Room:      lr.Room,
		NewHostID: lr.NewHostID,
	}))
	return protocol.Result{Cmd: protocol.CmdLeaveRoom, Success: true}
}

func (c *Coordinator) playerReady(connID string, data protocol.PlayerReadyData) protocol.Result {
	room, err := c.reg.SetReady(connID, data.IsReady)
	if err != nil {
		return failure(protocol.CmdPlayerReady, err)
	}
	c.sender.ToGroup(room.Code, event(protocol.EvtPlayerReadyChanged, protocol.PlayerReadyChangedEvent{
		PlayerID: connID,
		IsReady:  data.IsReady,
		Room:     room,
	}))
	return protocol.Result{Cmd: protocol.CmdPlayerReady, Success: true}
}

func (c *Coordinator) startGame(connID string) protocol.Result {
	room, err := c.reg.StartGame(connID)
	if err != nil {
		return failure(protocol.CmdStartGame, err)
	}
	c.sender.ToGroup(room.Code, event(protocol.EvtGameStarted, protocol.GameStartedEvent{Room: room}))
	return success(protocol.CmdStartGame, &room)
}

// gameAction relays an opaque payload to the whole room. The payload is
// stored nowhere and never interpreted.
func (c *Coordinator) gameAction(connID string, data protocol.GameActionData) protocol.Result {
	room, err := c.reg.RoomByConn(connID)
	if err != nil {
		return failure(protocol.CmdGameAction, err)
	}
	if room.Status != registry.StatusInProgress {
		return failure(protocol.CmdGameAction, registry.ErrWrongState)
	}
	c.sender.ToGroup(room.Code, event(protocol.EvtGameActionReceived, protocol.GameActionEvent{
		PlayerID:  connID,
		Action:    data.Action,
		Payload:   data.Payload,
		Timestamp: c.now().UnixMilli(),
	}))
	return protocol.Result{Cmd: protocol.CmdGameAction, Success: true}
}

func (c *Coordinator) updateGameState(connID string, data protocol.UpdateGameStateData) protocol.Result {
	room, err := c.reg.RoomByConn(connID)
	if err != nil {
		return failure(protocol.CmdUpdateGameState, err)
	}
	if room.HostID != connID {
		return failure(protocol.CmdUpdateGameState, registry.ErrNotHost)
	}
	if err := c.reg.SetSessionState(room.Code, data.GameState); err != nil {
		return failure(protocol.CmdUpdateGameState, err)
	}
	c.sender.ToGroup(room.Code, event(protocol.EvtGameStateUpdated, protocol.GameStateUpdatedEvent{
		GameState: data.GameState,
		Timestamp: c.now().UnixMilli(),
	}))
	return protocol.Result{Cmd: protocol.CmdUpdateGameState, Success: true}
}

func (c *Coordinator) endGame(connID string, data protocol.EndGameData) protocol.Result {
	room, err := c.reg.RoomByConn(connID)
	if err != nil {
		return failure(protocol.CmdEndGame, err)
	}
	if room.HostID != connID {
		return failure(protocol.CmdEndGame, registry.ErrNotHost)
	}
	ended, err := c.reg.EndGame(room.Code)
	if err != nil {
		return failure(protocol.CmdEndGame, err)
	}
	c.sender.ToGroup(ended.Code, event(protocol.EvtGameEnded, protocol.GameEndedEvent{
		Room:    ended,
		Winner:  data.Winner,
		Results: data.Results,
	}))
	return success(protocol.CmdEndGame, &ended)
}

func (c *Coordinator) resetRoom(connID string) protocol.Result {
	room, err := c.reg.ResetRoom(connID)
	if err != nil {
		return failure(protocol.CmdResetRoom, err)
	}
	c.sender.ToGroup(room.Code, event(protocol.EvtRoomReset, protocol.RoomResetEvent{Room: room}))
	return success(protocol.CmdResetRoom, &room)
}

func (c *Coordinator) chatMessage(connID string, data protocol.ChatMessageData) protocol.Result {
	room, me, err := c.reg.MemberByConn(connID)
	if err != nil {
		return failure(protocol.CmdChatMessage, err)
	}
	c.sender.ToGroup(room.Code, event(protocol.EvtChatMessageReceived, protocol.ChatMessageEvent{
		PlayerID:  connID,
		Username:  me.Username,
		Message:   data.Message,
		Timestamp: c.now().UnixMilli(),
	}))
	return protocol.Result{Cmd: protocol.CmdChatMessage, Success: true}
}

func (c *Coordinator) getRoomInfo(connID string) protocol.Result {
	room, err := c.reg.RoomByConn(connID)
	if err != nil {
		return failure(protocol.CmdGetRoomInfo, err)
	}
	return success(protocol.CmdGetRoomInfo, &room)
}

func (c *Coordinator) kickPlayer(connID string, data protocol.KickPlayerData) protocol.Result {
	kr, err := c.reg.KickPlayer(connID, data.PlayerID)
	if err != nil {
		return failure(protocol.CmdKickPlayer, err)
	}
	// The target hears why before its group membership goes away.
	c.sender.ToConnection(kr.TargetID, event(protocol.EvtKicked, protocol.KickedEvent{
		Message: "you have been kicked from the room",
	}))
	c.sender.LeaveGroup(kr.TargetID, kr.Code)
	c.sender.ToGroup(kr.Code, event(protocol.EvtPlayerKicked, protocol.PlayerKickedEvent{
		PlayerID: kr.TargetID,
		Room:     kr.Room,
	}))
	return success(protocol.CmdKickPlayer, &kr.Room)
}

func event(name string, data any) protocol.ServerMessage {
	return protocol.ServerMessage{Type: name, Data: data}
}

func success(cmd string, room *registry.RoomInfo) protocol.Result {
	return protocol.Result{Cmd: cmd, Success: true, Room: room}
}

func failure(cmd string, err error) protocol.Result {
	return protocol.Result{Cmd: cmd, Success: false, ErrorKind: registry.Kind(err), Error: err.Error()}
}
