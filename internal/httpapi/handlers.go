package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/DoyleJ11/game-room-server/internal/registry"
)

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// ListRooms is a diagnostic view of every active room.
func ListRooms(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms := reg.Rooms()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Count int                 `json:"count"`
			Rooms []registry.RoomInfo `json:"rooms"`
		}{Count: len(rooms), Rooms: rooms})
	}
}
