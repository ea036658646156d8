package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/quickdraw-gg/backend/internal/hub"
	"github.com/quickdraw-gg/backend/internal/registry"
	"github.com/quickdraw-gg/backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, reg *registry.Registry, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Matchmaking surface
	r.Post("/quick-match", QuickMatch(reg, log))
	r.Post("/create-room", CreateRoom(reg, log))
	r.Post("/join-room", JoinRoom(reg, log))
	r.Get("/list-rooms", ListRooms(reg, log))
	r.Post("/leave-room", LeaveRoom(reg, log))
	r.Delete("/delete-room", DeleteRoom(reg, log))

	// Game surface
	r.Get("/ws", ws.Handler(h, log))
	r.Get("/healthz", Healthz)
	return r
}
