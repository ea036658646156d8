// Package ws adapts WebSocket connections to session actor messages: one
// writer goroutine drains an outbox channel, the reader loop feeds raw frames
// into the session inbox.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/quickdraw-gg/backend/internal/hub"
	"github.com/quickdraw-gg/backend/internal/protocol"
	"github.com/quickdraw-gg/backend/internal/session"
)

const writeTimeout = 3 * time.Second

var errOutboxFull = errors.New("connection outbox full")

// wsConn implements session.Conn. Send enqueues without blocking so a slow
// client never stalls the room; the writer goroutine owns the socket writes.
type wsConn struct {
	c      *websocket.Conn
	out    chan protocol.ServerMessage
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	log    *zap.Logger
}

func newWSConn(parent context.Context, c *websocket.Conn, log *zap.Logger) *wsConn {
	ctx, cancel := context.WithCancel(parent)
	wc := &wsConn{
		c:      c,
		out:    make(chan protocol.ServerMessage, 16),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
	go wc.writeLoop()
	return wc
}

func (wc *wsConn) Send(msg protocol.ServerMessage) error {
	select {
	case wc.out <- msg:
		return nil
	case <-wc.ctx.Done():
		return wc.ctx.Err()
	default:
		return errOutboxFull
	}
}

func (wc *wsConn) Close(code int, reason string) {
	wc.once.Do(func() {
		wc.cancel()
		_ = wc.c.Close(websocket.StatusCode(code), reason)
	})
}

func (wc *wsConn) writeLoop() {
	for {
		select {
		case <-wc.ctx.Done():
			return
		case msg := <-wc.out:
			payload, err := json.Marshal(msg)
			if err != nil {
				wc.log.Error("marshal server message", zap.Error(err))
				continue
			}
			ctx, cancel := context.WithTimeout(wc.ctx, writeTimeout)
			err = wc.c.Write(ctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				wc.log.Debug("write failed", zap.Error(err))
				return
			}
		}
	}
}

// Handler upgrades a connection and binds it to the session owning the
// requested room, creating the session lazily.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := r.URL.Query().Get("roomId")
		if roomID == "" {
			http.Error(w, "roomId is required", http.StatusBadRequest)
			return
		}

		reply := make(chan *session.Session, 1)
		select {
		case h.Inbox() <- hub.EnsureSession{RoomID: roomID, Reply: reply}:
		case <-r.Context().Done():
			return
		}
		var sess *session.Session
		select {
		case sess = <-reply:
		case <-r.Context().Done():
			return
		}
		if sess == nil {
			http.Error(w, "failed to resolve session", http.StatusInternalServerError)
			return
		}

		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		conn := newWSConn(r.Context(), c, log)
		defer conn.Close(int(websocket.StatusNormalClosure), "bye")

		if !post(sess, r.Context(), session.Connect{Conn: conn}) {
			return
		}
		defer post(sess, r.Context(), session.Disconnect{Conn: conn})

		for {
			_, data, err := c.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}
			if !post(sess, r.Context(), session.FromClient{Conn: conn, Frame: data}) {
				return
			}
		}
	}
}

// post delivers into the session inbox without risking a permanent park: a
// session that shut down concurrently stops draining its inbox, so the send
// races its Done channel and the request context.
func post(sess *session.Session, ctx context.Context, m session.Msg) bool {
	select {
	case sess.Inbox() <- m:
		return true
	case <-sess.Done():
		return false
	case <-ctx.Done():
		return false
	}
}
