// Package session implements the per-room actor that owns a room's live
// connections and match state. All mutation is serialized through a single
// goroutine reading one inbox; timers feed back into the same inbox, so a
// timer firing never races a game action.
package session

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/quickdraw-gg/backend/internal/game"
	"github.com/quickdraw-gg/backend/internal/protocol"
	"github.com/quickdraw-gg/backend/internal/store"
)

// Close codes handed to Conn.Close.
const (
	// ClosePolicyViolation mirrors the WebSocket 1008 policy-violation code.
	ClosePolicyViolation = 1008
	// CloseSuperseded tells an old connection it was replaced by a newer one
	// carrying the same player id.
	CloseSuperseded = 4000
)

// Conn is the actor's handle on one live connection. Implementations must be
// comparable (pointer types); the actor tracks ownership by handle identity.
// Send is best-effort and must not block the actor.
type Conn interface {
	Send(msg protocol.ServerMessage) error
	Close(code int, reason string)
}

// Registrar is the slice of the room registry the session talks to.
type Registrar interface {
	Register(ctx context.Context, roomID, playerID, matchType string, settings game.Settings) error
	Leave(ctx context.Context, playerID, roomID string) error
}

type Msg interface{ isSessionMsg() }

// Connect admits a new connection provisionally; it is not yet a player.
type Connect struct{ Conn Conn }

// Disconnect reports that a connection's reader has exited.
type Disconnect struct{ Conn Conn }

// FromClient carries one raw inbound frame.
type FromClient struct {
	Conn  Conn
	Frame []byte
}

// GetView reflects internal state for tests without data races.
type GetView struct{ Reply chan View }

type Shutdown struct{}

// Timer messages. Each carries the generation it was armed under; a fired
// timer re-checks state because true cancellation is not guaranteed.
type joinDeadline struct{ conn Conn }

type countdownTick struct {
	gen  uint64
	next int
}

type cueDue struct{ gen uint64 }

func (Connect) isSessionMsg()       {}
func (Disconnect) isSessionMsg()    {}
func (FromClient) isSessionMsg()    {}
func (GetView) isSessionMsg()       {}
func (Shutdown) isSessionMsg()      {}
func (joinDeadline) isSessionMsg()  {}
func (countdownTick) isSessionMsg() {}
func (cueDue) isSessionMsg()        {}

// View is a copy of the session's state for test assertions.
type View struct {
	RoomID      string
	Phase       game.Phase
	HostID      string
	Settings    game.Settings
	Players     []string
	Pending     int
	Ready       map[string]bool
	Wins        map[string]int
	FalseStarts map[string]int
	Votes       map[string]bool
	Reactions   map[string]float64
}

type Config struct {
	// JoinTimeout is how long a provisional connection may wait before
	// sending a valid join.
	JoinTimeout time.Duration
	// CountdownTick is the delay between countdown broadcasts.
	CountdownTick time.Duration
	// MinCueWait/MaxCueWait bound the random delay before the cue fires.
	MinCueWait time.Duration
	MaxCueWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		JoinTimeout:   30 * time.Second,
		CountdownTick: time.Second,
		MinCueWait:    time.Second,
		MaxCueWait:    5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.JoinTimeout == 0 {
		c.JoinTimeout = d.JoinTimeout
	}
	if c.CountdownTick == 0 {
		c.CountdownTick = d.CountdownTick
	}
	if c.MinCueWait == 0 {
		c.MinCueWait = d.MinCueWait
	}
	if c.MaxCueWait == 0 {
		c.MaxCueWait = d.MaxCueWait
	}
	return c
}

type Deps struct {
	Store     store.Store
	Registrar Registrar
	Log       *zap.Logger
	Cfg       Config
	// Settings applies when no durable snapshot exists yet (a fresh room);
	// nil means game defaults.
	Settings *game.Settings
}

type player struct {
	id          string
	name        string
	rating      int
	conn        Conn
	provisional bool
	admittedAt  time.Time
}

type Session struct {
	inbox chan Msg

	roomID   string
	settings game.Settings
	state    *game.State

	players map[string]*player
	order   []string // confirmed player ids, join order

	// timerGen invalidates in-flight countdown/cue timers whenever the phase
	// moves on; a fired timer carrying a stale generation is dropped.
	timerGen uint64

	st  store.Store
	reg Registrar
	log *zap.Logger
	cfg Config
	rng *rand.Rand

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs the single live session for roomID, rehydrating the durable
// subset of any previous incarnation's state. Transient state (reactions,
// countdown, votes, connections) always starts fresh.
func New(parent context.Context, roomID string, deps Deps) *Session {
	ctx, cancel := context.WithCancel(parent)
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}

	settings := game.DefaultSettings()
	if deps.Settings != nil && deps.Settings.Validate() == nil {
		settings = *deps.Settings
	}

	s := &Session{
		inbox:    make(chan Msg, 64),
		roomID:   roomID,
		settings: settings,
		state:    game.NewState(),
		players:  map[string]*player{},
		st:       deps.Store,
		reg:      deps.Registrar,
		log:      deps.Log.Named("session").With(zap.String("roomId", roomID)),
		cfg:      deps.Cfg.withDefaults(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.rehydrate()

	go s.loop()
	return s
}

func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Done is closed once the session has shut down; senders outside the loop
// select on it so they never park on a dead inbox.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

func (s *Session) RoomID() string { return s.roomID }

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return
		case m := <-s.inbox:
			switch msg := m.(type) {
			case Connect:
				s.handleConnect(msg.Conn)
			case Disconnect:
				s.handleDisconnect(msg.Conn)
			case FromClient:
				s.handleFrame(msg.Conn, msg.Frame)
			case joinDeadline:
				s.handleJoinDeadline(msg.conn)
			case countdownTick:
				s.handleCountdownTick(msg)
			case cueDue:
				s.handleCueDue(msg)
			case GetView:
				msg.Reply <- s.view()
			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) shutdown() {
	for id, p := range s.players {
		if p.conn != nil {
			p.conn.Close(ClosePolicyViolation, "session shutting down")
		}
		delete(s.players, id)
	}
	s.order = nil
	s.cancel()
}

// post delivers a message into the inbox from outside the loop goroutine,
// giving up if the session is gone.
func (s *Session) post(m Msg) {
	select {
	case s.inbox <- m:
	case <-s.ctx.Done():
	}
}

func (s *Session) schedule(d time.Duration, m Msg) {
	time.AfterFunc(d, func() { s.post(m) })
}

func (s *Session) findByConn(conn Conn) *player {
	for _, p := range s.players {
		if p.conn == conn {
			return p
		}
	}
	return nil
}

// trySend delivers to one connection, logging (never raising) failures so a
// bad connection cannot stall the room.
func (s *Session) trySend(playerID string, conn Conn, msg protocol.ServerMessage) {
	if conn == nil {
		return
	}
	if err := conn.Send(msg); err != nil {
		s.log.Warn("send failed", zap.String("playerId", playerID), zap.Error(err))
	}
}

func (s *Session) sendTo(playerID string, msg protocol.ServerMessage) {
	p, ok := s.players[playerID]
	if !ok {
		return
	}
	s.trySend(playerID, p.conn, msg)
}

// broadcast fans out to every confirmed player except excludeID.
func (s *Session) broadcast(msg protocol.ServerMessage, excludeID string) {
	for _, id := range s.order {
		if id == excludeID {
			continue
		}
		s.trySend(id, s.players[id].conn, msg)
	}
}

func (s *Session) roster() []protocol.PlayerInfo {
	out := make([]protocol.PlayerInfo, 0, len(s.order))
	for _, id := range s.order {
		p := s.players[id]
		out = append(out, protocol.PlayerInfo{
			PlayerID:   id,
			PlayerName: p.name,
			Rating:     p.rating,
			IsHost:     s.state.HostID == id,
			IsReady:    s.state.Ready[id],
		})
	}
	return out
}

func (s *Session) storeKey() string { return "session:" + s.roomID }

// persist writes the durable subset; it is awaited so a later message on this
// actor reads its own writes.
func (s *Session) persist() {
	snap := s.state.Snapshot(s.roomID, s.settings)
	raw, err := json.Marshal(snap)
	if err != nil {
		s.log.Error("marshal session snapshot", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	if err := s.st.Put(ctx, s.storeKey(), raw); err != nil {
		s.log.Error("persist session snapshot", zap.Error(err))
	}
}

func (s *Session) rehydrate() {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	raw, ok, err := s.st.Get(ctx, s.storeKey())
	if err != nil {
		s.log.Error("load session snapshot", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	var snap game.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		s.log.Error("decode session snapshot", zap.Error(err))
		return
	}
	if snap.Settings.Validate() == nil {
		s.settings = snap.Settings
	}
	s.state = game.FromSnapshot(snap)
}

func (s *Session) view() View {
	players := make([]string, len(s.order))
	copy(players, s.order)
	pending := 0
	for _, p := range s.players {
		if p.provisional {
			pending++
		}
	}
	v := View{
		RoomID:      s.roomID,
		Phase:       s.state.Phase,
		HostID:      s.state.HostID,
		Settings:    s.settings,
		Players:     players,
		Pending:     pending,
		Ready:       map[string]bool{},
		Wins:        map[string]int{},
		FalseStarts: map[string]int{},
		Votes:       map[string]bool{},
		Reactions:   map[string]float64{},
	}
	for k, val := range s.state.Ready {
		v.Ready[k] = val
	}
	for k, val := range s.state.Wins {
		v.Wins[k] = val
	}
	for k, val := range s.state.FalseStarts {
		v.FalseStarts[k] = val
	}
	for k, val := range s.state.RematchVotes {
		v.Votes[k] = val
	}
	for k, val := range s.state.Reactions {
		v.Reactions[k] = val
	}
	return v
}
