// Package registry owns the authoritative room state: the code→room mapping,
// the connection→room index, and every transition between them. It knows
// nothing about transports; callers get snapshots, never live room objects.
package registry

import (
	"encoding/json"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Registry serializes all work on a given room. Locking discipline:
//
//   - mu guards rooms and index. Operations that change membership
//     (create/join/leave/kick) hold it for writing; everything else holds it
//     for reading across the whole operation.
//   - each room's own mutex guards the room fields for operations running
//     under the read lock, so room-local traffic on different rooms never
//     blocks. Lock order is always registry before room.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room  // code -> room
	index map[string]string // connection id -> code
	codes *CodeGenerator
	log   *zap.Logger
	now   func() time.Time
}

func New(log *zap.Logger, codes *CodeGenerator) *Registry {
	return &Registry{
		rooms: make(map[string]*room),
		index: make(map[string]string),
		codes: codes,
		log:   log,
		now:   time.Now,
	}
}

// CreateRoom makes a room with the requester as sole member and host.
// Requesters already in a room are rejected here, under the same write lock
// that updates the index, so two racing commands from one connection can
// never double-index it.
func (r *Registry) CreateRoom(connID, name string, maxPlayers int, username string) (RoomInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[connID]; ok {
		return RoomInfo{}, ErrAlreadyInRoom
	}

	code, err := r.codes.Generate(func(c string) bool {
		_, taken := r.rooms[c]
		return taken
	})
	if err != nil {
		return RoomInfo{}, err
	}

	rm := &room{
		id:         uuid.NewString(),
		code:       code,
		name:       name,
		hostID:     connID,
		players:    []*player{{id: connID, username: username, host: true}},
		maxPlayers: clampMaxPlayers(maxPlayers),
		status:     StatusForming,
		createdAt:  r.now(),
	}
	r.rooms[code] = rm
	r.index[connID] = code

	r.log.Info("room created",
		zap.String("code", code),
		zap.String("username", username))
	return rm.snapshot(), nil
}

// JoinRoom validates in order: requester not already in a room, room exists,
// still forming, has capacity, username free (case-insensitive). The new
// member is appended last and is never host. As in CreateRoom, the
// already-in-room check sits under the write lock with the index update.
func (r *Registry) JoinRoom(connID, code, username string) (RoomInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[connID]; ok {
		return RoomInfo{}, ErrAlreadyInRoom
	}

	rm, ok := r.rooms[strings.ToUpper(code)]
	if !ok {
		return RoomInfo{}, ErrRoomNotFound
	}
	if rm.status != StatusForming {
		return RoomInfo{}, ErrSessionInProgress
	}
	if len(rm.players) >= rm.maxPlayers {
		return RoomInfo{}, ErrRoomFull
	}
	if rm.hasUsername(username) {
		return RoomInfo{}, ErrUsernameTaken
	}

	rm.players = append(rm.players, &player{id: connID, username: username})
	r.index[connID] = rm.code

	r.log.Info("player joined",
		zap.String("code", rm.code),
		zap.String("username", username))
	return rm.snapshot(), nil
}

// LeaveResult reports what a membership removal did. Left is false when the
// connection was not in any room, which is the idempotent no-op case shared
// by explicit leaves and transport disconnects.
type LeaveResult struct {
	Left        bool
	Code        string
	PlayerID    string
	WasHost     bool
	NewHostID   string
	RoomDeleted bool
	Room        *RoomInfo // nil when the room was deleted
}

// LeaveRoom removes the connection from its room, if any. Deletes the room
// when the last member leaves; otherwise promotes the earliest-joined
// survivor if the host left.
func (r *Registry) LeaveRoom(connID string) LeaveResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeMember(connID)
}

// removeMember is the single removal path shared by LeaveRoom and
// KickPlayer. Caller must hold the registry write lock.
func (r *Registry) removeMember(connID string) LeaveResult {
	code, ok := r.index[connID]
	if !ok {
		return LeaveResult{}
	}
	delete(r.index, connID)

	rm, ok := r.rooms[code]
	if !ok {
		return LeaveResult{}
	}
	idx := slices.IndexFunc(rm.players, func(p *player) bool { return p.id == connID })
	if idx < 0 {
		return LeaveResult{}
	}

	res := LeaveResult{
		Left:     true,
		Code:     code,
		PlayerID: connID,
		WasHost:  rm.players[idx].host,
	}
	rm.players = slices.Delete(rm.players, idx, idx+1)

	if len(rm.players) == 0 {
		delete(r.rooms, code)
		res.RoomDeleted = true
		r.log.Info("room deleted (empty)", zap.String("code", code))
		return res
	}

	if res.WasHost {
		// Earliest-joined survivor becomes host; slice order is join order.
		next := rm.players[0]
		next.host = true
		rm.hostID = next.id
		res.NewHostID = next.id
		r.log.Info("new host assigned",
			zap.String("code", code),
			zap.String("username", next.username))
	}

	snap := rm.snapshot()
	res.Room = &snap
	return res
}

// KickResult describes a completed kick.
type KickResult struct {
	TargetID  string
	Code      string
	NewHostID string
	Room      RoomInfo
}

// KickPlayer removes target from the requester's room through the same path
// as LeaveRoom. Requester must be host and may not kick itself.
func (r *Registry) KickPlayer(requesterID, targetID string) (KickResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.index[requesterID]
	if !ok {
		return KickResult{}, ErrNotInRoom
	}
	rm, ok := r.rooms[code]
	if !ok {
		return KickResult{}, ErrRoomNotFound
	}
	if rm.hostID != requesterID {
		return KickResult{}, ErrNotHost
	}
	if targetID == requesterID {
		return KickResult{}, ErrCannotKickSelf
	}
	if rm.playerByID(targetID) == nil {
		return KickResult{}, ErrPlayerNotFound
	}

	lr := r.removeMember(targetID)
	if !lr.Left || lr.Room == nil {
		// The requester is still a member, so the room cannot have emptied.
		return KickResult{}, ErrPlayerNotFound
	}
	return KickResult{
		TargetID:  targetID,
		Code:      code,
		NewHostID: lr.NewHostID,
		Room:      *lr.Room,
	}, nil
}

// SetReady toggles the ready flag. No status restriction: whether a
// mid-session toggle means anything is the caller's policy.
func (r *Registry) SetReady(connID string, ready bool) (RoomInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, err := r.roomByConn(connID)
	if err != nil {
		return RoomInfo{}, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()

	p := rm.playerByID(connID)
	if p == nil {
		return RoomInfo{}, ErrPlayerNotFound
	}
	p.ready = ready
	return rm.snapshot(), nil
}

// StartGame transitions Forming → InProgress. Host only; with more than one
// player every non-host must be ready; two players minimum.
func (r *Registry) StartGame(connID string) (RoomInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, err := r.roomByConn(connID)
	if err != nil {
		return RoomInfo{}, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.hostID != connID {
		return RoomInfo{}, ErrNotHost
	}
	if rm.status != StatusForming {
		return RoomInfo{}, ErrAlreadyStarted
	}
	allReady := lo.EveryBy(rm.players, func(p *player) bool {
		return p.host || p.ready
	})
	if !allReady && len(rm.players) > 1 {
		return RoomInfo{}, ErrNotAllReady
	}
	if len(rm.players) < MinPlayers {
		return RoomInfo{}, ErrInsufficientPlayers
	}

	rm.status = StatusInProgress
	r.log.Info("game started", zap.String("code", rm.code))
	return rm.snapshot(), nil
}

// EndGame transitions to Finished unconditionally. Host authorization is the
// caller's job; by the time a code reaches here the caller already resolved
// it from the host's connection.
func (r *Registry) EndGame(code string) (RoomInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[strings.ToUpper(code)]
	if !ok {
		return RoomInfo{}, ErrRoomNotFound
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.status = StatusFinished
	r.log.Info("game ended", zap.String("code", rm.code))
	return rm.snapshot(), nil
}

// ResetRoom returns the room to Forming, clears session state and every
// non-host ready flag. Host only. Allowed from InProgress as well as
// Finished, so a host can abandon a session.
func (r *Registry) ResetRoom(connID string) (RoomInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, err := r.roomByConn(connID)
	if err != nil {
		return RoomInfo{}, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.hostID != connID {
		return RoomInfo{}, ErrNotHost
	}

	rm.status = StatusForming
	rm.sessionState = nil
	for _, p := range rm.players {
		if !p.host {
			p.ready = false
		}
	}
	r.log.Info("room reset", zap.String("code", rm.code))
	return rm.snapshot(), nil
}

// SetSessionState stores the opaque in-session payload. Only meaningful
// while a session is running; Reset clears it.
func (r *Registry) SetSessionState(code string, state json.RawMessage) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[strings.ToUpper(code)]
	if !ok {
		return ErrRoomNotFound
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.status != StatusInProgress {
		return ErrWrongState
	}
	rm.sessionState = state
	return nil
}

// RoomByCode looks a room up by its shareable code, case-insensitively.
func (r *Registry) RoomByCode(code string) (RoomInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[strings.ToUpper(code)]
	if !ok {
		return RoomInfo{}, ErrRoomNotFound
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.snapshot(), nil
}

// RoomByConn resolves the room the connection currently belongs to.
func (r *Registry) RoomByConn(connID string) (RoomInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, err := r.roomByConn(connID)
	if err != nil {
		return RoomInfo{}, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.snapshot(), nil
}

// MemberByConn resolves both the room and the caller's own member record.
func (r *Registry) MemberByConn(connID string) (RoomInfo, PlayerInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, err := r.roomByConn(connID)
	if err != nil {
		return RoomInfo{}, PlayerInfo{}, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()

	p := rm.playerByID(connID)
	if p == nil {
		return RoomInfo{}, PlayerInfo{}, ErrPlayerNotFound
	}
	return rm.snapshot(), PlayerInfo{ID: p.id, Username: p.username, IsReady: p.ready, IsHost: p.host}, nil
}

// Rooms lists every active room, for the diagnostic HTTP surface.
func (r *Registry) Rooms() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RoomInfo, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rm.mu.Lock()
		out = append(out, rm.snapshot())
		rm.mu.Unlock()
	}
	return out
}

// roomByConn maps connection → room via the index. Caller must hold mu.
func (r *Registry) roomByConn(connID string) (*room, error) {
	code, ok := r.index[connID]
	if !ok {
		return nil, ErrNotInRoom
	}
	rm, ok := r.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return rm, nil
}
