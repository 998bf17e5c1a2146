package registry

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

type Status string

const (
	StatusForming    Status = "forming"
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
)

const (
	// MinPlayers and MaxPlayersLimit bound the requested room size.
	MinPlayers      = 2
	MaxPlayersLimit = 10
)

// player is the registry's private member record. Slice position is join
// order, which is what host succession keys on.
type player struct {
	id       string
	username string
	ready    bool
	host     bool
}

// room is owned by the Registry and never escapes it; callers only ever see
// snapshots. Fields are guarded by mu, except that operations holding the
// registry write lock may touch them directly (the write lock excludes every
// reader that could reach the room).
type room struct {
	mu           sync.Mutex
	id           string
	code         string
	name         string
	hostID       string
	players      []*player
	maxPlayers   int
	status       Status
	createdAt    time.Time
	sessionState json.RawMessage
}

// PlayerInfo is the wire-safe view of one member.
type PlayerInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsReady  bool   `json:"isReady"`
	IsHost   bool   `json:"isHost"`
}

// RoomInfo is the wire-safe view of one room. Players preserve join order.
type RoomInfo struct {
	ID         string       `json:"id"`
	Code       string       `json:"code"`
	Name       string       `json:"name"`
	HostID     string       `json:"hostId"`
	Players    []PlayerInfo `json:"players"`
	MaxPlayers int          `json:"maxPlayers"`
	Status     Status       `json:"status"`
}

// snapshot copies the room into a RoomInfo. Caller must hold rm.mu or the
// registry write lock.
func (rm *room) snapshot() RoomInfo {
	return RoomInfo{
		ID:         rm.id,
		Code:       rm.code,
		Name:       rm.name,
		HostID:     rm.hostID,
		MaxPlayers: rm.maxPlayers,
		Status:     rm.status,
		Players: lo.Map(rm.players, func(p *player, _ int) PlayerInfo {
			return PlayerInfo{ID: p.id, Username: p.username, IsReady: p.ready, IsHost: p.host}
		}),
	}
}

// playerByID returns the member record, or nil. Same locking contract as
// snapshot.
func (rm *room) playerByID(id string) *player {
	for _, p := range rm.players {
		if p.id == id {
			return p
		}
	}
	return nil
}

func (rm *room) hasUsername(username string) bool {
	return lo.SomeBy(rm.players, func(p *player) bool {
		return strings.EqualFold(p.username, username)
	})
}

func clampMaxPlayers(n int) int {
	return min(max(n, MinPlayers), MaxPlayersLimit)
}
