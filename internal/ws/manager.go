// Package ws adapts the coordinator's connection abstraction onto websockets:
// per-connection ids, buffered outboxes drained by one writer goroutine each,
// and group membership keyed by room code.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/game-room-server/internal/protocol"
)

const (
	outboxSize   = 16
	writeTimeout = 3 * time.Second
)

// socket is the slice of *websocket.Conn the manager needs; tests substitute
// a stub.
type socket interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

type conn struct {
	id     string
	sock   socket
	outbox chan protocol.ServerMessage
}

// Manager implements session.Sender. Sends never block: each connection has
// a buffered outbox, and a connection that cannot keep up is closed rather
// than allowed to stall a broadcast.
type Manager struct {
	mu     sync.RWMutex
	conns  map[string]*conn
	groups map[string]map[string]struct{} // group key -> member conn ids
	log    *zap.Logger
}

func NewManager(log *zap.Logger) *Manager {
	return &Manager{
		conns:  make(map[string]*conn),
		groups: make(map[string]map[string]struct{}),
		log:    log,
	}
}

// add registers the socket and starts its writer. The returned id is the
// connection's stable identifier for its whole lifetime.
func (m *Manager) add(id string, sock socket) *conn {
	c := &conn{id: id, sock: sock, outbox: make(chan protocol.ServerMessage, outboxSize)}
	m.mu.Lock()
	m.conns[id] = c
	m.mu.Unlock()

	go m.writeLoop(c)
	return c
}

// remove drops the connection from every group and closes its outbox,
// stopping the writer. Safe to call more than once. The close happens inside
// the write-lock critical section: sends only ever run under the read lock,
// so a broadcast can never race the close onto a closed channel.
func (m *Manager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conns[id]
	if !ok {
		return
	}
	delete(m.conns, id)
	for key, members := range m.groups {
		delete(members, id)
		if len(members) == 0 {
			delete(m.groups, key)
		}
	}
	close(c.outbox)
}

func (m *Manager) writeLoop(c *conn) {
	for msg := range c.outbox {
		payload, err := json.Marshal(msg)
		if err != nil {
			m.log.Error("marshal outbound message", zap.Error(err), zap.String("type", msg.Type))
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err = c.sock.Write(ctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			// Reader side will observe the broken socket and run cleanup.
			return
		}
	}
}

func (m *Manager) JoinGroup(connID, group string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.groups[group]
	if !ok {
		members = make(map[string]struct{})
		m.groups[group] = members
	}
	members[connID] = struct{}{}
}

func (m *Manager) LeaveGroup(connID, group string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.groups[group]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(m.groups, group)
	}
}

func (m *Manager) ToGroup(group string, msg protocol.ServerMessage) {
	m.ToGroupExcept(group, "", msg)
}

func (m *Manager) ToGroupExcept(group, exceptID string, msg protocol.ServerMessage) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for id := range m.groups[group] {
		if id == exceptID {
			continue
		}
		if c, ok := m.conns[id]; ok {
			m.push(c, msg)
		}
	}
}

func (m *Manager) ToConnection(connID string, msg protocol.ServerMessage) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if c, ok := m.conns[connID]; ok {
		m.push(c, msg)
	}
}

// push enqueues without blocking. A full outbox means the client stopped
// draining; close the socket and let its reader run the disconnect path.
// Caller must hold m.mu (read is enough): a conn reachable under the lock
// has not been removed, so its outbox is open.
func (m *Manager) push(c *conn, msg protocol.ServerMessage) {
	select {
	case c.outbox <- msg:
	default:
		m.log.Warn("dropping slow connection", zap.String("conn", c.id))
		_ = c.sock.Close(websocket.StatusPolicyViolation, "slow consumer")
	}
}
