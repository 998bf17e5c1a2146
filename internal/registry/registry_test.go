package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry() *Registry {
	return New(zap.NewNop(), NewCodeGenerator(6))
}

// scriptedGen cycles through draws so tests can force specific codes.
func scriptedGen(draws ...int) *CodeGenerator {
	i := 0
	g := NewCodeGenerator(6)
	g.Intn = func(n int) int {
		v := draws[i%len(draws)] % n
		i++
		return v
	}
	return g
}

func requireExactlyOneHost(t *testing.T, room RoomInfo) {
	t.Helper()
	hosts := lo.Filter(room.Players, func(p PlayerInfo, _ int) bool { return p.IsHost })
	require.Len(t, hosts, 1, "want exactly one host, players: %+v", room.Players)
	require.Equal(t, room.HostID, hosts[0].ID)
}

// makeFullLobby creates a room with n members total, everyone but the host
// ready. Connection ids are "host", "p1", "p2", ...
func makeFullLobby(t *testing.T, r *Registry, n int) RoomInfo {
	t.Helper()
	room, err := r.CreateRoom("host", "Test Room", n, "Host")
	require.NoError(t, err)
	for i := 1; i < n; i++ {
		conn := fmt.Sprintf("p%d", i)
		_, err := r.JoinRoom(conn, room.Code, fmt.Sprintf("Player%d", i))
		require.NoError(t, err)
		_, err = r.SetReady(conn, true)
		require.NoError(t, err)
	}
	room, err = r.RoomByCode(room.Code)
	require.NoError(t, err)
	return room
}

func TestCreateRoom_ClampsMaxPlayers(t *testing.T) {
	cases := []struct {
		requested int
		want      int
	}{
		{requested: 1, want: 2},
		{requested: 0, want: 2},
		{requested: -3, want: 2},
		{requested: 2, want: 2},
		{requested: 5, want: 5},
		{requested: 10, want: 10},
		{requested: 99, want: 10},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("requested_%d", tc.requested), func(t *testing.T) {
			r := newTestRegistry()
			room, err := r.CreateRoom("c1", "Clamp", tc.requested, "Alice")
			require.NoError(t, err)
			require.Equal(t, tc.want, room.MaxPlayers)
		})
	}
}

func TestCreateRoom_InitialState(t *testing.T) {
	r := newTestRegistry()
	room, err := r.CreateRoom("c1", "My Room", 4, "Alice")
	require.NoError(t, err)

	require.Len(t, room.Code, 6)
	require.Equal(t, StatusForming, room.Status)
	require.Equal(t, "c1", room.HostID)
	require.Len(t, room.Players, 1)
	require.True(t, room.Players[0].IsHost)
	require.False(t, room.Players[0].IsReady)
	requireExactlyOneHost(t, room)
}

func TestCreateRoom_UniqueCodes(t *testing.T) {
	r := newTestRegistry()
	codes := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		room, err := r.CreateRoom(fmt.Sprintf("c%d", i), "Room", 2, fmt.Sprintf("User%d", i))
		require.NoError(t, err)
		_, dup := codes[room.Code]
		require.False(t, dup, "code %s issued twice", room.Code)
		codes[room.Code] = struct{}{}
	}
}

func TestCreateRoom_RetriesOnCodeCollision(t *testing.T) {
	r := newTestRegistry()
	r.codes = scriptedGen(0) // every draw is 'A'
	first, err := r.CreateRoom("c1", "First", 2, "Alice")
	require.NoError(t, err)
	require.Equal(t, "AAAAAA", first.Code)

	// First attempt redraws AAAAAA and collides; the retry lands on BBBBBB.
	r.codes = scriptedGen(0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1)
	second, err := r.CreateRoom("c2", "Second", 2, "Bob")
	require.NoError(t, err)
	require.Equal(t, "BBBBBB", second.Code)
}

func TestCreateRoom_AlreadyInRoom(t *testing.T) {
	r := newTestRegistry()
	_, err := r.CreateRoom("c1", "First", 4, "Alice")
	require.NoError(t, err)

	_, err = r.CreateRoom("c1", "Second", 4, "Alice")
	require.ErrorIs(t, err, ErrAlreadyInRoom)
	require.Len(t, r.Rooms(), 1)
}

func TestJoinRoom(t *testing.T) {
	t.Run("requester already in a room", func(t *testing.T) {
		r := newTestRegistry()
		room, err := r.CreateRoom("c1", "Room", 4, "Alice")
		require.NoError(t, err)
		other, err := r.CreateRoom("c2", "Other", 4, "Bob")
		require.NoError(t, err)

		_, err = r.JoinRoom("c2", room.Code, "Bobby")
		require.ErrorIs(t, err, ErrAlreadyInRoom)

		// Still indexed in the original room.
		byConn, err := r.RoomByConn("c2")
		require.NoError(t, err)
		require.Equal(t, other.Code, byConn.Code)
	})

	t.Run("room not found", func(t *testing.T) {
		r := newTestRegistry()
		_, err := r.JoinRoom("c2", "NOPE42", "Bob")
		require.ErrorIs(t, err, ErrRoomNotFound)
	})

	t.Run("code lookup is case-insensitive", func(t *testing.T) {
		r := newTestRegistry()
		room, err := r.CreateRoom("c1", "Room", 4, "Alice")
		require.NoError(t, err)
		joined, err := r.JoinRoom("c2", strings.ToLower(room.Code), "Bob")
		require.NoError(t, err)
		require.Equal(t, room.Code, joined.Code)
	})

	t.Run("in-progress beats full", func(t *testing.T) {
		r := newTestRegistry()
		room := makeFullLobby(t, r, 2)
		_, err := r.StartGame("host")
		require.NoError(t, err)
		// Room is both started and at capacity; status check wins.
		_, err = r.JoinRoom("late", room.Code, "Carol")
		require.ErrorIs(t, err, ErrSessionInProgress)
	})

	t.Run("room full", func(t *testing.T) {
		r := newTestRegistry()
		room := makeFullLobby(t, r, 2)
		_, err := r.JoinRoom("c3", room.Code, "Carol")
		require.ErrorIs(t, err, ErrRoomFull)
	})

	t.Run("username taken case-insensitively", func(t *testing.T) {
		r := newTestRegistry()
		room, err := r.CreateRoom("c1", "Room", 4, "Alice")
		require.NoError(t, err)
		_, err = r.JoinRoom("c2", room.Code, "alice")
		require.ErrorIs(t, err, ErrUsernameTaken)
	})

	t.Run("joins append in order, never host", func(t *testing.T) {
		r := newTestRegistry()
		room, err := r.CreateRoom("c1", "Room", 4, "Alice")
		require.NoError(t, err)
		_, err = r.JoinRoom("c2", room.Code, "Bob")
		require.NoError(t, err)
		joined, err := r.JoinRoom("c3", room.Code, "Carol")
		require.NoError(t, err)

		ids := lo.Map(joined.Players, func(p PlayerInfo, _ int) string { return p.ID })
		require.Equal(t, []string{"c1", "c2", "c3"}, ids)
		require.False(t, joined.Players[2].IsHost)
		requireExactlyOneHost(t, joined)

		// Index now resolves the newcomer.
		byConn, err := r.RoomByConn("c3")
		require.NoError(t, err)
		require.Equal(t, room.Code, byConn.Code)
	})
}

func TestLeaveRoom_HostSuccessionIsEarliestJoined(t *testing.T) {
	r := newTestRegistry()
	_ = makeFullLobby(t, r, 3)

	res := r.LeaveRoom("host")
	require.True(t, res.Left)
	require.True(t, res.WasHost)
	require.False(t, res.RoomDeleted)
	require.Equal(t, "p1", res.NewHostID, "earliest-joined survivor becomes host")
	require.NotNil(t, res.Room)
	require.Equal(t, "p1", res.Room.HostID)
	requireExactlyOneHost(t, *res.Room)

	_, err := r.RoomByConn("host")
	require.ErrorIs(t, err, ErrNotInRoom)
}

func TestLeaveRoom_NonHostKeepsHost(t *testing.T) {
	r := newTestRegistry()
	_ = makeFullLobby(t, r, 3)

	res := r.LeaveRoom("p1")
	require.True(t, res.Left)
	require.False(t, res.WasHost)
	require.Empty(t, res.NewHostID)
	require.Equal(t, "host", res.Room.HostID)
	requireExactlyOneHost(t, *res.Room)
}

func TestLeaveRoom_LastPlayerDeletesRoom(t *testing.T) {
	r := newTestRegistry()
	room, err := r.CreateRoom("c1", "Room", 2, "Alice")
	require.NoError(t, err)

	res := r.LeaveRoom("c1")
	require.True(t, res.Left)
	require.True(t, res.RoomDeleted)
	require.Nil(t, res.Room)

	_, err = r.RoomByCode(room.Code)
	require.ErrorIs(t, err, ErrRoomNotFound)
	require.Empty(t, r.Rooms())
}

func TestLeaveRoom_Idempotent(t *testing.T) {
	r := newTestRegistry()
	_ = makeFullLobby(t, r, 2)

	first := r.LeaveRoom("p1")
	require.True(t, first.Left)

	// Disconnect racing an explicit leave lands here: silent no-op.
	second := r.LeaveRoom("p1")
	require.False(t, second.Left)
	require.False(t, second.RoomDeleted)
}

// TestRegistry_ConcurrentMembershipChurn hammers one room with racing joins,
// ready toggles, leaves and kicks. Whatever interleaving the scheduler picks,
// the room must come out with exactly one host, a member count within
// capacity, and an index that agrees with the membership.
func TestRegistry_ConcurrentMembershipChurn(t *testing.T) {
	r := newTestRegistry()
	room, err := r.CreateRoom("host", "Churn", MaxPlayersLimit, "Host")
	require.NoError(t, err)

	const workers = 8
	const rounds = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			conn := fmt.Sprintf("w%d", w)
			name := fmt.Sprintf("Worker%d", w)
			for i := 0; i < rounds; i++ {
				if _, err := r.JoinRoom(conn, room.Code, name); err != nil {
					// Usernames are unique per worker, so only capacity can
					// turn us away.
					if !errors.Is(err, ErrRoomFull) {
						t.Errorf("join %s: %v", conn, err)
						return
					}
					continue
				}
				// A kick may land between these; both tolerate it.
				_, _ = r.SetReady(conn, true)
				r.LeaveRoom(conn)
			}
		}(w)
	}

	// The host kicks workers while they churn; most attempts miss.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < workers*rounds; i++ {
			_, _ = r.KickPlayer("host", fmt.Sprintf("w%d", i%workers))
		}
	}()
	wg.Wait()

	final, err := r.RoomByCode(room.Code)
	require.NoError(t, err, "host never left, so the room must survive")
	require.Equal(t, "host", final.HostID)
	requireExactlyOneHost(t, final)
	require.LessOrEqual(t, len(final.Players), final.MaxPlayers)

	// Every worker finishes its loop outside the room, whether it left or was
	// kicked, so only the host remains and the index agrees.
	require.Len(t, final.Players, 1)
	byConn, err := r.RoomByConn("host")
	require.NoError(t, err)
	require.Equal(t, final.Code, byConn.Code)
	for w := 0; w < workers; w++ {
		_, err := r.RoomByConn(fmt.Sprintf("w%d", w))
		require.ErrorIs(t, err, ErrNotInRoom)
	}
}

func TestKickPlayer(t *testing.T) {
	t.Run("requester not in room", func(t *testing.T) {
		r := newTestRegistry()
		_, err := r.KickPlayer("ghost", "p1")
		require.ErrorIs(t, err, ErrNotInRoom)
	})

	t.Run("non-host cannot kick", func(t *testing.T) {
		r := newTestRegistry()
		_ = makeFullLobby(t, r, 3)
		_, err := r.KickPlayer("p1", "p2")
		require.ErrorIs(t, err, ErrNotHost)
	})

	t.Run("cannot kick self", func(t *testing.T) {
		r := newTestRegistry()
		_ = makeFullLobby(t, r, 2)
		_, err := r.KickPlayer("host", "host")
		require.ErrorIs(t, err, ErrCannotKickSelf)
	})

	t.Run("target must be a member", func(t *testing.T) {
		r := newTestRegistry()
		_ = makeFullLobby(t, r, 2)
		_, err := r.KickPlayer("host", "stranger")
		require.ErrorIs(t, err, ErrPlayerNotFound)
	})

	t.Run("kick removes target and frees the index", func(t *testing.T) {
		r := newTestRegistry()
		room := makeFullLobby(t, r, 3)

		kr, err := r.KickPlayer("host", "p1")
		require.NoError(t, err)
		require.Equal(t, "p1", kr.TargetID)
		require.Equal(t, room.Code, kr.Code)
		require.Len(t, kr.Room.Players, 2)
		requireExactlyOneHost(t, kr.Room)

		// The kicked connection can immediately join again.
		_, err = r.JoinRoom("p1", room.Code, "Player1")
		require.NoError(t, err)
	})
}

func TestStartGame(t *testing.T) {
	t.Run("not host", func(t *testing.T) {
		r := newTestRegistry()
		_ = makeFullLobby(t, r, 2)
		_, err := r.StartGame("p1")
		require.ErrorIs(t, err, ErrNotHost)
	})

	t.Run("insufficient players", func(t *testing.T) {
		r := newTestRegistry()
		_, err := r.CreateRoom("host", "Solo", 4, "Alice")
		require.NoError(t, err)
		_, err = r.StartGame("host")
		require.ErrorIs(t, err, ErrInsufficientPlayers)
	})

	t.Run("non-host not ready", func(t *testing.T) {
		r := newTestRegistry()
		_ = makeFullLobby(t, r, 3)
		_, err := r.SetReady("p2", false)
		require.NoError(t, err)
		_, err = r.StartGame("host")
		require.ErrorIs(t, err, ErrNotAllReady)

		// Once the last player readies up, start succeeds.
		_, err = r.SetReady("p2", true)
		require.NoError(t, err)
		started, err := r.StartGame("host")
		require.NoError(t, err)
		require.Equal(t, StatusInProgress, started.Status)
	})

	t.Run("already started", func(t *testing.T) {
		r := newTestRegistry()
		_ = makeFullLobby(t, r, 2)
		_, err := r.StartGame("host")
		require.NoError(t, err)
		_, err = r.StartGame("host")
		require.ErrorIs(t, err, ErrAlreadyStarted)
	})

	t.Run("host ready flag does not gate start", func(t *testing.T) {
		r := newTestRegistry()
		_ = makeFullLobby(t, r, 2)
		// Host never toggled ready; only non-hosts are checked.
		started, err := r.StartGame("host")
		require.NoError(t, err)
		require.Equal(t, StatusInProgress, started.Status)
	})
}

func TestSetReady(t *testing.T) {
	r := newTestRegistry()
	_, err := r.SetReady("ghost", true)
	require.ErrorIs(t, err, ErrNotInRoom)

	_, err = r.CreateRoom("c1", "Room", 2, "Alice")
	require.NoError(t, err)
	updated, err := r.SetReady("c1", true)
	require.NoError(t, err)
	require.True(t, updated.Players[0].IsReady)
}

func TestEndGame(t *testing.T) {
	r := newTestRegistry()
	_, err := r.EndGame("NOPE42")
	require.ErrorIs(t, err, ErrRoomNotFound)

	room := makeFullLobby(t, r, 2)
	_, err = r.StartGame("host")
	require.NoError(t, err)

	ended, err := r.EndGame(room.Code)
	require.NoError(t, err)
	require.Equal(t, StatusFinished, ended.Status)
}

func TestResetRoom(t *testing.T) {
	setupInProgress := func(t *testing.T) (*Registry, RoomInfo) {
		t.Helper()
		r := newTestRegistry()
		room := makeFullLobby(t, r, 3)
		_, err := r.StartGame("host")
		require.NoError(t, err)
		require.NoError(t, r.SetSessionState(room.Code, json.RawMessage(`{"turn":3}`)))
		return r, room
	}

	t.Run("not host", func(t *testing.T) {
		r, _ := setupInProgress(t)
		_, err := r.ResetRoom("p1")
		require.ErrorIs(t, err, ErrNotHost)
	})

	t.Run("from in-progress", func(t *testing.T) {
		r, _ := setupInProgress(t)
		reset, err := r.ResetRoom("host")
		require.NoError(t, err)
		require.Equal(t, StatusForming, reset.Status)
		for _, p := range reset.Players {
			if !p.IsHost {
				require.False(t, p.IsReady, "non-host %s should be un-readied", p.ID)
			}
		}
	})

	t.Run("from finished", func(t *testing.T) {
		r, room := setupInProgress(t)
		_, err := r.EndGame(room.Code)
		require.NoError(t, err)
		reset, err := r.ResetRoom("host")
		require.NoError(t, err)
		require.Equal(t, StatusForming, reset.Status)
	})

	t.Run("clears session state", func(t *testing.T) {
		r, room := setupInProgress(t)
		_, err := r.ResetRoom("host")
		require.NoError(t, err)
		// Back to forming, so a new session state write is rejected.
		err = r.SetSessionState(room.Code, json.RawMessage(`{}`))
		require.ErrorIs(t, err, ErrWrongState)
	})
}

func TestSetSessionState(t *testing.T) {
	r := newTestRegistry()
	require.ErrorIs(t, r.SetSessionState("NOPE42", nil), ErrRoomNotFound)

	room := makeFullLobby(t, r, 2)
	require.ErrorIs(t, r.SetSessionState(room.Code, json.RawMessage(`{}`)), ErrWrongState)

	_, err := r.StartGame("host")
	require.NoError(t, err)
	require.NoError(t, r.SetSessionState(room.Code, json.RawMessage(`{"score":1}`)))
}

func TestRooms_Listing(t *testing.T) {
	r := newTestRegistry()
	require.Empty(t, r.Rooms())

	_, err := r.CreateRoom("c1", "One", 2, "Alice")
	require.NoError(t, err)
	_, err = r.CreateRoom("c2", "Two", 2, "Bob")
	require.NoError(t, err)
	require.Len(t, r.Rooms(), 2)
}
