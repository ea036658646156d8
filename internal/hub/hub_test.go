package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quickdraw-gg/backend/internal/game"
	"github.com/quickdraw-gg/backend/internal/session"
	"github.com/quickdraw-gg/backend/internal/store"
)

type nopRegistrar struct{}

func (nopRegistrar) Register(context.Context, string, string, string, game.Settings) error {
	return nil
}
func (nopRegistrar) Leave(context.Context, string, string) error { return nil }

func newTestHub(t *testing.T, lookup SettingsLookup) *Hub {
	t.Helper()
	h := NewHub(context.Background(), Deps{
		Store:     store.NewMemory(),
		Registrar: nopRegistrar{},
		Lookup:    lookup,
	})
	t.Cleanup(func() { h.Inbox() <- ShutdownHub{} })
	return h
}

func ensure(t *testing.T, h *Hub, roomID string) *session.Session {
	t.Helper()
	reply := make(chan *session.Session, 1)
	h.Inbox() <- EnsureSession{RoomID: roomID, Reply: reply}
	select {
	case s := <-reply:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session")
		return nil
	}
}

func get(t *testing.T, h *Hub, roomID string) *session.Session {
	t.Helper()
	reply := make(chan *session.Session, 1)
	h.Inbox() <- GetSession{RoomID: roomID, Reply: reply}
	select {
	case s := <-reply:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session")
		return nil
	}
}

func TestEnsureSession_OneLiveSessionPerRoom(t *testing.T) {
	h := newTestHub(t, nil)

	a := ensure(t, h, "room-a")
	require.NotNil(t, a)
	require.Equal(t, "room-a", a.RoomID())

	again := ensure(t, h, "room-a")
	require.Same(t, a, again, "ensure is idempotent")

	b := ensure(t, h, "room-b")
	require.NotSame(t, a, b)
}

func TestGetSession_NilForUnknownRoom(t *testing.T) {
	h := newTestHub(t, nil)

	require.Nil(t, get(t, h, "nope"))

	created := ensure(t, h, "room-a")
	require.Same(t, created, get(t, h, "room-a"))
}

func TestRemoveSession(t *testing.T) {
	h := newTestHub(t, nil)

	ensure(t, h, "room-a")
	h.Inbox() <- RemoveSession{RoomID: "room-a"}

	require.Eventually(t, func() bool {
		return get(t, h, "room-a") == nil
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEnsureSession_AppliesLookedUpSettings(t *testing.T) {
	custom := game.Settings{MaxWins: 7, MaxFalseStarts: 1, AllowFalseStarts: false, MaxPlayers: 2}
	lookup := func(_ context.Context, roomID string) (game.Settings, bool) {
		if roomID == "room-a" {
			return custom, true
		}
		return game.Settings{}, false
	}
	h := newTestHub(t, lookup)

	s := ensure(t, h, "room-a")
	reply := make(chan session.View, 1)
	s.Inbox() <- session.GetView{Reply: reply}
	select {
	case v := <-reply:
		require.Equal(t, custom, v.Settings)
	case <-time.After(2 * time.Second):
		t.Fatal("session not responding")
	}

	other := ensure(t, h, "room-unknown")
	reply2 := make(chan session.View, 1)
	other.Inbox() <- session.GetView{Reply: reply2}
	select {
	case v := <-reply2:
		require.Equal(t, game.DefaultSettings(), v.Settings, "unknown rooms fall back to defaults")
	case <-time.After(2 * time.Second):
		t.Fatal("session not responding")
	}
}
