// Package hub owns the process-wide room-id -> session map. Routing by id
// through one actor guarantees exactly one live session per room.
package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/quickdraw-gg/backend/internal/game"
	"github.com/quickdraw-gg/backend/internal/session"
	"github.com/quickdraw-gg/backend/internal/store"
)

type HubMsg interface{ isHubMsg() }

// EnsureSession returns the live session for a room, creating (and
// rehydrating) it lazily on the first connection attempt.
type EnsureSession struct {
	RoomID string
	Reply  chan *session.Session
}

type GetSession struct {
	RoomID string
	Reply  chan *session.Session
}

type RemoveSession struct{ RoomID string }

type ShutdownHub struct{}

func (EnsureSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

// SettingsLookup resolves a room's settings when a session is created before
// its durable snapshot exists, typically from the registry's matchmaking
// record.
type SettingsLookup func(ctx context.Context, roomID string) (game.Settings, bool)

type Deps struct {
	Store      store.Store
	Registrar  session.Registrar
	Lookup     SettingsLookup
	Log        *zap.Logger
	SessionCfg session.Config
}

type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Session
	deps     Deps
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, deps Deps) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: map[string]*session.Session{},
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureSession:
				if s := h.sessions[msg.RoomID]; s != nil {
					msg.Reply <- s
					break
				}
				msg.Reply <- h.create(msg.RoomID)

			case GetSession:
				msg.Reply <- h.sessions[msg.RoomID] // may be nil

			case RemoveSession:
				if s := h.sessions[msg.RoomID]; s != nil {
					s.Inbox() <- session.Shutdown{}
					delete(h.sessions, msg.RoomID)
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create(roomID string) *session.Session {
	deps := session.Deps{
		Store:     h.deps.Store,
		Registrar: h.deps.Registrar,
		Log:       h.deps.Log,
		Cfg:       h.deps.SessionCfg,
	}
	if h.deps.Lookup != nil {
		if settings, ok := h.deps.Lookup(h.ctx, roomID); ok {
			deps.Settings = &settings
		}
	}
	s := session.New(h.ctx, roomID, deps)
	h.sessions[roomID] = s
	h.deps.Log.Info("created session", zap.String("roomId", roomID))
	return s
}

func (h *Hub) shutdown() {
	for id, s := range h.sessions {
		s.Inbox() <- session.Shutdown{}
		delete(h.sessions, id)
	}
	h.cancel()
}
