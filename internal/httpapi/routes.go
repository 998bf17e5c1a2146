package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DoyleJ11/game-room-server/internal/registry"
)

func SetupRoutes(reg *registry.Registry, wsHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/rooms", ListRooms(reg))
	r.Get("/ws", wsHandler.ServeHTTP)
	return r
}
