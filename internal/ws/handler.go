package ws

import (
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/game-room-server/internal/protocol"
	"github.com/DoyleJ11/game-room-server/internal/session"
)

// Handler upgrades HTTP requests and pumps decoded commands into the
// coordinator. One goroutine per connection reads; the manager's writer
// goroutine sends.
type Handler struct {
	mgr            *Manager
	coord          *session.Coordinator
	log            *zap.Logger
	originPatterns []string
}

func NewHandler(mgr *Manager, coord *session.Coordinator, log *zap.Logger, originPatterns []string) *Handler {
	return &Handler{
		mgr:            mgr,
		coord:          coord,
		log:            log,
		originPatterns: originPatterns,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.log.Warn("websocket accept failed", zap.Error(err))
		return
	}

	id := uuid.NewString()
	h.mgr.add(id, sock)
	defer func() {
		// Runs for clean closes and broken sockets alike. The registry's
		// leave path is idempotent, so an explicit leaveRoom that already
		// ran makes this a no-op.
		h.mgr.remove(id)
		h.coord.Disconnected(id)
		_ = sock.Close(websocket.StatusNormalClosure, "bye")
	}()

	h.coord.Connected(id)

	for {
		_, data, err := sock.Read(r.Context())
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				h.log.Debug("websocket read ended", zap.String("conn", id), zap.Error(err))
			}
			return
		}

		var msg protocol.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.mgr.ToConnection(id, protocol.ServerMessage{
				Type: protocol.EvtError,
				Data: protocol.ErrorEvent{Message: "bad json"},
			})
			continue
		}

		res := h.coord.Handle(id, msg)
		h.mgr.ToConnection(id, protocol.ServerMessage{Type: protocol.EvtResult, Data: res})
	}
}
