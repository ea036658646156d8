// Package registry implements the singleton matchmaking service: it pairs
// players into rooms, issues join codes, tracks pending vs connected
// membership and evicts abandoned reservations. It holds no connections.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quickdraw-gg/backend/internal/game"
	"github.com/quickdraw-gg/backend/internal/store"
)

var ErrRoomFull = errors.New("room is full")
var ErrRoomNotFound = errors.New("room not found")
var ErrInvalidRequest = errors.New("invalid request")

const (
	MatchTypeQuick  = "quick"
	MatchTypeInvite = "invite"
)

// room is the registry-owned matchmaking record. A player id lives in at
// most one of joinedAt/connectedAt at a time: joinedAt while the reservation
// waits for a connection, connectedAt once a session confirms it.
type room struct {
	id          string
	code        string
	matchType   string
	settings    game.Settings
	players     map[string]struct{}
	joinedAt    map[string]time.Time
	connectedAt map[string]time.Time
}

// RoomInfo is the listing view of a room.
type RoomInfo struct {
	RoomID      string        `json:"roomId"`
	MatchType   string        `json:"matchType"`
	PlayerCount int           `json:"playerCount"`
	MaxPlayers  int           `json:"maxPlayers"`
	Settings    game.Settings `json:"settings"`
	Code        string        `json:"code,omitempty"`
	PlayerIDs   []string      `json:"playerIds"`
}

type Config struct {
	// ConnectTimeout bounds how long a pending reservation may wait for its
	// connection before the sweep evicts it.
	ConnectTimeout time.Duration
	// MatchWaitTimeout bounds how long a connected player may wait in an
	// under-capacity room before the sweep evicts them.
	MatchWaitTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   30 * time.Second,
		MatchWaitTimeout: 5 * time.Minute,
	}
}

type Deps struct {
	Store store.Store
	Log   *zap.Logger
	Cfg   Config
	// Now is overridable for sweep tests; defaults to time.Now.
	Now func() time.Time
}

// Registry executes as a single-threaded actor: every operation is a
// request/response message through one inbox, so no locks guard the maps.
type Registry struct {
	inbox chan msg

	rooms      map[string]*room
	roomOrder  []string // insertion order; matchmaking search is deterministic
	codeToRoom map[string]string

	st  store.Store
	log *zap.Logger
	cfg Config
	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

type msg interface{ isRegistryMsg() }

type quickMatchMsg struct {
	playerID string
	settings *game.Settings
	reply    chan quickMatchReply
}

type quickMatchReply struct {
	roomID string
	err    error
}

type createRoomMsg struct {
	playerID string
	settings game.Settings
	reply    chan createRoomReply
}

type createRoomReply struct {
	roomID string
	code   string
	err    error
}

type joinByCodeMsg struct {
	playerID string
	code     string
	reply    chan quickMatchReply
}

type registerMsg struct {
	roomID    string
	playerID  string
	matchType string
	settings  game.Settings
	reply     chan error
}

type leaveMsg struct {
	playerID string
	roomID   string
	reply    chan error
}

type listRoomsMsg struct {
	reply chan []RoomInfo
}

type deleteRoomMsg struct {
	roomID string
	reply  chan error
}

type lookupMsg struct {
	roomID string
	reply  chan lookupReply
}

type lookupReply struct {
	settings  game.Settings
	matchType string
	ok        bool
}

type shutdownMsg struct{}

func (quickMatchMsg) isRegistryMsg() {}
func (createRoomMsg) isRegistryMsg() {}
func (joinByCodeMsg) isRegistryMsg() {}
func (registerMsg) isRegistryMsg()   {}
func (leaveMsg) isRegistryMsg()      {}
func (listRoomsMsg) isRegistryMsg()  {}
func (deleteRoomMsg) isRegistryMsg() {}
func (lookupMsg) isRegistryMsg()     {}
func (shutdownMsg) isRegistryMsg()   {}

func New(parent context.Context, deps Deps) *Registry {
	ctx, cancel := context.WithCancel(parent)
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Cfg.ConnectTimeout == 0 {
		deps.Cfg = DefaultConfig()
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}

	r := &Registry{
		inbox:      make(chan msg, 64),
		rooms:      map[string]*room{},
		codeToRoom: map[string]string{},
		st:         deps.Store,
		log:        deps.Log.Named("registry"),
		cfg:        deps.Cfg,
		now:        deps.Now,
		ctx:        ctx,
		cancel:     cancel,
	}
	r.restore()
	go r.loop()
	return r
}

func (r *Registry) Shutdown() {
	select {
	case r.inbox <- shutdownMsg{}:
	case <-r.ctx.Done():
	}
}

func (r *Registry) loop() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case m := <-r.inbox:
			switch msg := m.(type) {
			case quickMatchMsg:
				roomID, err := r.quickMatch(msg.playerID, msg.settings)
				msg.reply <- quickMatchReply{roomID: roomID, err: err}
			case createRoomMsg:
				roomID, code, err := r.createRoom(msg.playerID, msg.settings)
				msg.reply <- createRoomReply{roomID: roomID, code: code, err: err}
			case joinByCodeMsg:
				roomID, err := r.joinByCode(msg.playerID, msg.code)
				msg.reply <- quickMatchReply{roomID: roomID, err: err}
			case registerMsg:
				msg.reply <- r.register(msg.roomID, msg.playerID, msg.matchType, msg.settings)
			case leaveMsg:
				msg.reply <- r.leave(msg.playerID, msg.roomID)
			case listRoomsMsg:
				r.sweep()
				msg.reply <- r.listRooms()
			case deleteRoomMsg:
				msg.reply <- r.deleteRoom(msg.roomID)
			case lookupMsg:
				if rm, ok := r.rooms[msg.roomID]; ok {
					msg.reply <- lookupReply{settings: rm.settings, matchType: rm.matchType, ok: true}
				} else {
					msg.reply <- lookupReply{}
				}
			case shutdownMsg:
				r.cancel()
				return
			}
		}
	}
}

// --- public request/response surface -------------------------------------

func (r *Registry) QuickMatch(ctx context.Context, playerID string, settings *game.Settings) (string, error) {
	reply := make(chan quickMatchReply, 1)
	if err := r.send(ctx, quickMatchMsg{playerID: playerID, settings: settings, reply: reply}); err != nil {
		return "", err
	}
	res := <-reply
	return res.roomID, res.err
}

func (r *Registry) CreateRoom(ctx context.Context, playerID string, settings game.Settings) (roomID, code string, err error) {
	reply := make(chan createRoomReply, 1)
	if err := r.send(ctx, createRoomMsg{playerID: playerID, settings: settings, reply: reply}); err != nil {
		return "", "", err
	}
	res := <-reply
	return res.roomID, res.code, res.err
}

func (r *Registry) JoinByCode(ctx context.Context, playerID, code string) (string, error) {
	reply := make(chan quickMatchReply, 1)
	if err := r.send(ctx, joinByCodeMsg{playerID: playerID, code: code, reply: reply}); err != nil {
		return "", err
	}
	res := <-reply
	return res.roomID, res.err
}

func (r *Registry) Register(ctx context.Context, roomID, playerID, matchType string, settings game.Settings) error {
	reply := make(chan error, 1)
	if err := r.send(ctx, registerMsg{roomID: roomID, playerID: playerID, matchType: matchType, settings: settings, reply: reply}); err != nil {
		return err
	}
	return <-reply
}

func (r *Registry) Leave(ctx context.Context, playerID, roomID string) error {
	reply := make(chan error, 1)
	if err := r.send(ctx, leaveMsg{playerID: playerID, roomID: roomID, reply: reply}); err != nil {
		return err
	}
	return <-reply
}

func (r *Registry) ListRooms(ctx context.Context) ([]RoomInfo, error) {
	reply := make(chan []RoomInfo, 1)
	if err := r.send(ctx, listRoomsMsg{reply: reply}); err != nil {
		return nil, err
	}
	return <-reply, nil
}

func (r *Registry) DeleteRoom(ctx context.Context, roomID string) error {
	reply := make(chan error, 1)
	if err := r.send(ctx, deleteRoomMsg{roomID: roomID, reply: reply}); err != nil {
		return err
	}
	return <-reply
}

// Lookup returns a room's settings and match type, if the registry knows it.
func (r *Registry) Lookup(ctx context.Context, roomID string) (game.Settings, string, bool) {
	reply := make(chan lookupReply, 1)
	if err := r.send(ctx, lookupMsg{roomID: roomID, reply: reply}); err != nil {
		return game.Settings{}, "", false
	}
	res := <-reply
	return res.settings, res.matchType, res.ok
}

func (r *Registry) send(ctx context.Context, m msg) error {
	select {
	case r.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return context.Canceled
	}
}

// --- actor-side handlers ---------------------------------------------------

func (r *Registry) quickMatch(playerID string, requested *game.Settings) (string, error) {
	r.sweep()

	if playerID == "" {
		return "", ErrInvalidRequest
	}
	settings := game.DefaultSettings()
	if requested != nil {
		settings = *requested
	}

	// An already connected player keeps their room (idempotent reconnect
	// path); a stale pending reservation elsewhere is released first.
	// Releases are collected before applying: removePlayer can drop a room,
	// which mutates roomOrder mid-range.
	var stale []*room
	for _, id := range r.roomOrder {
		rm := r.rooms[id]
		if _, member := rm.players[playerID]; !member {
			continue
		}
		if _, connected := rm.connectedAt[playerID]; connected {
			r.persist()
			return rm.id, nil
		}
		stale = append(stale, rm)
	}
	for _, rm := range stale {
		r.removePlayer(rm, playerID)
	}

	target := r.findQuickRoom(settings)
	now := r.now()
	if target == nil {
		target = &room{
			id:          uuid.NewString(),
			matchType:   MatchTypeQuick,
			settings:    settings,
			players:     map[string]struct{}{},
			joinedAt:    map[string]time.Time{},
			connectedAt: map[string]time.Time{},
		}
		r.addRoom(target)
		r.log.Info("created quick match room",
			zap.String("roomId", target.id), zap.String("playerId", playerID))
	}
	if _, member := target.players[playerID]; !member {
		target.players[playerID] = struct{}{}
		target.joinedAt[playerID] = now
	}

	r.persist()
	return target.id, nil
}

// findQuickRoom prefers an exact settings match, then falls back to matching
// capacity only, since maxPlayers is the one setting matchmaking cannot bend.
func (r *Registry) findQuickRoom(settings game.Settings) *room {
	for _, id := range r.roomOrder {
		rm := r.rooms[id]
		if rm.matchType == MatchTypeQuick && len(rm.players) < rm.settings.MaxPlayers && rm.settings.Equal(settings) {
			return rm
		}
	}
	for _, id := range r.roomOrder {
		rm := r.rooms[id]
		if rm.matchType == MatchTypeQuick && len(rm.players) < rm.settings.MaxPlayers && rm.settings.MaxPlayers == settings.MaxPlayers {
			return rm
		}
	}
	return nil
}

func (r *Registry) createRoom(playerID string, settings game.Settings) (string, string, error) {
	if playerID == "" {
		return "", "", ErrInvalidRequest
	}
	if err := settings.Validate(); err != nil {
		return "", "", ErrInvalidRequest
	}

	code, err := r.freshCode()
	if err != nil {
		return "", "", err
	}
	rm := &room{
		id:          uuid.NewString(),
		code:        code,
		matchType:   MatchTypeInvite,
		settings:    settings,
		players:     map[string]struct{}{playerID: {}},
		joinedAt:    map[string]time.Time{playerID: r.now()},
		connectedAt: map[string]time.Time{},
	}
	r.addRoom(rm)
	r.codeToRoom[code] = rm.id
	r.persist()

	r.log.Info("created invite room",
		zap.String("roomId", rm.id), zap.String("code", code), zap.String("playerId", playerID))
	return rm.id, code, nil
}

func (r *Registry) joinByCode(playerID, code string) (string, error) {
	if playerID == "" || code == "" {
		return "", ErrInvalidRequest
	}
	roomID, ok := r.codeToRoom[code]
	if !ok {
		return "", ErrRoomNotFound
	}
	rm, ok := r.rooms[roomID]
	if !ok {
		return "", ErrRoomNotFound
	}
	if _, member := rm.players[playerID]; !member {
		if len(rm.players) >= rm.settings.MaxPlayers {
			return "", ErrRoomFull
		}
		rm.players[playerID] = struct{}{}
		rm.joinedAt[playerID] = r.now()
	}
	r.persist()
	return roomID, nil
}

// register confirms a player's connection, called by a session once a join
// completes. It creates the room defensively when a session registers before
// any matchmaking call did.
func (r *Registry) register(roomID, playerID, matchType string, settings game.Settings) error {
	if roomID == "" || playerID == "" {
		return ErrInvalidRequest
	}
	if matchType == "" {
		matchType = MatchTypeQuick
	}
	if err := settings.Validate(); err != nil {
		settings = game.DefaultSettings()
	}

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{
			id:          roomID,
			matchType:   matchType,
			settings:    settings,
			players:     map[string]struct{}{playerID: {}},
			joinedAt:    map[string]time.Time{},
			connectedAt: map[string]time.Time{playerID: r.now()},
		}
		r.addRoom(rm)
		r.persist()
		return nil
	}

	if _, member := rm.players[playerID]; !member {
		if len(rm.players) >= rm.settings.MaxPlayers {
			return ErrRoomFull
		}
		rm.players[playerID] = struct{}{}
	}
	rm.connectedAt[playerID] = r.now()
	delete(rm.joinedAt, playerID)
	r.persist()
	return nil
}

func (r *Registry) leave(playerID, roomID string) error {
	if playerID == "" || roomID == "" {
		return ErrInvalidRequest
	}
	if rm, ok := r.rooms[roomID]; ok {
		r.removePlayer(rm, playerID)
	}
	r.persist()
	return nil
}

func (r *Registry) listRooms() []RoomInfo {
	out := make([]RoomInfo, 0, len(r.rooms))
	for _, id := range r.roomOrder {
		rm := r.rooms[id]
		ids := make([]string, 0, len(rm.players))
		for pid := range rm.players {
			ids = append(ids, pid)
		}
		out = append(out, RoomInfo{
			RoomID:      rm.id,
			MatchType:   rm.matchType,
			PlayerCount: len(rm.players),
			MaxPlayers:  rm.settings.MaxPlayers,
			Settings:    rm.settings,
			Code:        rm.code,
			PlayerIDs:   ids,
		})
	}
	return out
}

func (r *Registry) deleteRoom(roomID string) error {
	rm, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	r.dropRoom(rm)
	r.persist()
	r.log.Info("deleted room", zap.String("roomId", roomID))
	return nil
}

// sweep evicts reservations that never produced a connection and connected
// players stuck waiting in rooms that never filled. It runs opportunistically
// before matchmaking and listing, so a timer is unnecessary.
func (r *Registry) sweep() {
	now := r.now()
	var emptied []*room

	for _, id := range r.roomOrder {
		rm := r.rooms[id]
		var evict []string

		for pid, joined := range rm.joinedAt {
			if now.Sub(joined) > r.cfg.ConnectTimeout {
				evict = append(evict, pid)
			}
		}
		if len(rm.players) < rm.settings.MaxPlayers {
			for pid, connected := range rm.connectedAt {
				if now.Sub(connected) > r.cfg.MatchWaitTimeout {
					evict = append(evict, pid)
				}
			}
		}

		for _, pid := range evict {
			r.log.Info("sweeping timed-out player",
				zap.String("roomId", rm.id), zap.String("playerId", pid))
			delete(rm.players, pid)
			delete(rm.joinedAt, pid)
			delete(rm.connectedAt, pid)
		}
		if len(rm.players) == 0 {
			emptied = append(emptied, rm)
		}
	}

	for _, rm := range emptied {
		r.dropRoom(rm)
	}
	if len(emptied) > 0 {
		r.persist()
	}
}

func (r *Registry) addRoom(rm *room) {
	r.rooms[rm.id] = rm
	r.roomOrder = append(r.roomOrder, rm.id)
}

// removePlayer drops a player from a room, deleting the room the moment it
// becomes empty.
func (r *Registry) removePlayer(rm *room, playerID string) {
	delete(rm.players, playerID)
	delete(rm.joinedAt, playerID)
	delete(rm.connectedAt, playerID)
	if len(rm.players) == 0 {
		r.dropRoom(rm)
	}
}

func (r *Registry) dropRoom(rm *room) {
	delete(r.rooms, rm.id)
	if rm.code != "" {
		delete(r.codeToRoom, rm.code)
	}
	for i, id := range r.roomOrder {
		if id == rm.id {
			r.roomOrder = append(r.roomOrder[:i], r.roomOrder[i+1:]...)
			break
		}
	}
}
