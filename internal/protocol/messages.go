// Package protocol defines the JSON envelope exchanged with clients: inbound
// commands, outbound events, and per-command results.
package protocol

import (
	"encoding/json"

	"github.com/DoyleJ11/game-room-server/internal/registry"
)

// Inbound command types.
const (
	CmdCreateRoom      = "createRoom"
	CmdJoinRoom        = "joinRoom"
	CmdLeaveRoom       = "leaveRoom"
	CmdPlayerReady     = "playerReady"
	CmdStartGame       = "startGame"
	CmdGameAction      = "gameAction"
	CmdUpdateGameState = "updateGameState"
	CmdEndGame         = "endGame"
	CmdResetRoom       = "resetRoom"
	CmdChatMessage     = "chatMessage"
	CmdGetRoomInfo     = "getRoomInfo"
	CmdKickPlayer      = "kickPlayer"
)

// Outbound event types.
const (
	EvtConnected           = "connected"
	EvtPlayerJoined        = "playerJoined"
	EvtPlayerLeft          = "playerLeft"
	EvtPlayerReadyChanged  = "playerReadyChanged"
	EvtGameStarted         = "gameStarted"
	EvtGameActionReceived  = "gameActionReceived"
	EvtGameStateUpdated    = "gameStateUpdated"
	EvtGameEnded           = "gameEnded"
	EvtRoomReset           = "roomReset"
	EvtChatMessageReceived = "chatMessageReceived"
	EvtPlayerKicked        = "playerKicked"
	EvtKicked              = "kicked"
	EvtResult              = "result"
	EvtError               = "error"
)

// ClientMessage is the inbound envelope. Data holds the command payload and
// stays raw until the coordinator knows which struct to decode into.
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is the outbound envelope for events and results alike.
type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Result is the structured reply to a single command, sent only to the
// originating connection.
type Result struct {
	Cmd         string             `json:"cmd"`
	Success     bool               `json:"success"`
	Room        *registry.RoomInfo `json:"room,omitempty"`
	RoomDeleted bool               `json:"roomDeleted,omitempty"`
	ErrorKind   string             `json:"errorKind,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// Command payloads.

type CreateRoomData struct {
	RoomName   string `json:"roomName"`
	MaxPlayers int    `json:"maxPlayers"`
	Username   string `json:"username"`
}

type JoinRoomData struct {
	RoomCode string `json:"roomCode"`
	Username string `json:"username"`
}

type PlayerReadyData struct {
	IsReady bool `json:"isReady"`
}

type GameActionData struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type UpdateGameStateData struct {
	GameState json.RawMessage `json:"gameState"`
}

type EndGameData struct {
	Winner  string          `json:"winner,omitempty"`
	Results json.RawMessage `json:"results,omitempty"`
}

type ChatMessageData struct {
	Message string `json:"message"`
}

type KickPlayerData struct {
	PlayerID string `json:"playerId"`
}

// Event payloads.

type ConnectedEvent struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type PlayerJoinedEvent struct {
	Player registry.PlayerInfo `json:"player"`
	Room   registry.RoomInfo   `json:"room"`
}

type PlayerLeftEvent struct {
	PlayerID  string             `json:"playerId"`
	Room      *registry.RoomInfo `json:"room,omitempty"`
	NewHostID string             `json:"newHostId,omitempty"`
}

type PlayerReadyChangedEvent struct {
	PlayerID string            `json:"playerId"`
	IsReady  bool              `json:"isReady"`
	Room     registry.RoomInfo `json:"room"`
}

type GameStartedEvent struct {
	Room registry.RoomInfo `json:"room"`
}

type GameActionEvent struct {
	PlayerID  string          `json:"playerId"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type GameStateUpdatedEvent struct {
	GameState json.RawMessage `json:"gameState"`
	Timestamp int64           `json:"timestamp"`
}

type GameEndedEvent struct {
	Room    registry.RoomInfo `json:"room"`
	Winner  string            `json:"winner,omitempty"`
	Results json.RawMessage   `json:"results,omitempty"`
}

type RoomResetEvent struct {
	Room registry.RoomInfo `json:"room"`
}

type ChatMessageEvent struct {
	PlayerID  string `json:"playerId"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type PlayerKickedEvent struct {
	PlayerID string            `json:"playerId"`
	Room     registry.RoomInfo `json:"room"`
}

type KickedEvent struct {
	Message string `json:"message"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}
