package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/quickdraw-gg/backend/internal/game"
	"github.com/quickdraw-gg/backend/internal/protocol"
	"github.com/quickdraw-gg/backend/internal/registry"
)

// Provisional connections get an auto-generated id until the client
// identifies itself; anything matching this pattern is server bookkeeping,
// never a real player.
var tempIDPattern = regexp.MustCompile(`^p\d+-[a-z0-9]{9}$`)

func isTempID(id string) bool { return tempIDPattern.MatchString(id) }

func (s *Session) newTempID() string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = charset[rand.Intn(len(charset))]
	}
	return fmt.Sprintf("p%d-%s", time.Now().UnixMilli(), suffix)
}

// handleConnect admits a connection provisionally. It becomes a player only
// once a valid join arrives; the deadline timer reaps it otherwise.
func (s *Session) handleConnect(conn Conn) {
	tempID := s.newTempID()
	s.players[tempID] = &player{
		id:          tempID,
		name:        "Player-" + tempID,
		conn:        conn,
		provisional: true,
		admittedAt:  time.Now(),
	}
	s.schedule(s.cfg.JoinTimeout, joinDeadline{conn: conn})

	s.trySend(tempID, conn, protocol.ServerMessage{
		Type:     protocol.EventConnectionEstablished,
		RoomID:   s.roomID,
		PlayerID: tempID,
		IsHost:   protocol.Bool(false),
	})
}

func (s *Session) handleJoinDeadline(conn Conn) {
	p := s.findByConn(conn)
	if p == nil || !p.provisional {
		return
	}
	s.log.Info("closing connection that never joined", zap.String("tempId", p.id))
	s.trySend(p.id, p.conn, protocol.ErrorMessage(
		protocol.CodeJoinTimeout, "no join received before the deadline"))
	p.conn.Close(ClosePolicyViolation, "join timeout")
	delete(s.players, p.id)
}

// handleJoin reconciles a provisional connection with a client-supplied
// stable player id. It runs to completion before any other message is
// processed, so the whole sequence is atomic within the room.
func (s *Session) handleJoin(sender *player, data protocol.ActionData) {
	// Validation first: a rejected join must leave no trace.
	if data.PlayerID == "" {
		s.trySend(sender.id, sender.conn, protocol.ErrorMessage(
			protocol.CodeMissingPlayerID, "playerId is required"))
		return
	}
	if s.roomID == "" {
		s.trySend(sender.id, sender.conn, protocol.ErrorMessage(
			protocol.CodeInvalidRequest, "session is not bound to a room"))
		return
	}
	if data.RoomID != "" && data.RoomID != s.roomID {
		s.trySend(sender.id, sender.conn, protocol.ErrorMessage(
			protocol.CodeRoomMismatch, "this session serves room "+s.roomID))
		return
	}

	playerID := data.PlayerID
	var target *player
	created := false

	switch existing := s.players[playerID]; {
	case existing != nil && existing != sender:
		// Reconnect: the stable id is already bound elsewhere. The new
		// connection takes over; the old one is told it was superseded.
		if existing.conn != nil && existing.conn != sender.conn {
			existing.conn.Close(CloseSuperseded, "superseded by a newer connection")
		}
		existing.conn = sender.conn
		if data.PlayerName != "" {
			existing.name = data.PlayerName
		}
		delete(s.players, sender.id)
		s.removeFromOrder(sender.id)
		if existing.provisional {
			// A client claimed an id that was still provisional; confirm it.
			existing.provisional = false
			s.order = append(s.order, existing.id)
			if s.state.HostID == "" {
				s.state.HostID = existing.id
			}
			created = true
		}
		target = existing
		s.log.Info("player reconnected", zap.String("playerId", playerID))

	case existing == sender:
		// The client joined under the id this connection already holds:
		// either a repeated join, or the client adopted the server-issued
		// provisional id. Confirm the latter; refresh the name either way.
		if data.PlayerName != "" {
			sender.name = data.PlayerName
		}
		if sender.provisional {
			sender.provisional = false
			s.order = append(s.order, sender.id)
			if s.state.HostID == "" {
				s.state.HostID = sender.id
			}
			created = true
		}
		target = sender

	default:
		// Fresh identity: rebind this transport from its temporary id. If
		// the transport had confirmed under a different id earlier (client
		// retry), that stale association goes too.
		delete(s.players, sender.id)
		s.removeFromOrder(sender.id)

		name := data.PlayerName
		if name == "" {
			name = "Player-" + playerID
		}
		target = &player{id: playerID, name: name, conn: sender.conn, admittedAt: sender.admittedAt}
		s.players[playerID] = target
		s.order = append(s.order, playerID)
		created = true

		if s.state.HostID == "" {
			s.state.HostID = playerID
		}
	}

	s.purgeAbandonedTempIDs(target)

	matchType := normalizeMatchType(data.MatchType)
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	err := s.reg.Register(ctx, s.roomID, target.id, matchType, s.settings)
	cancel()
	if err != nil {
		if errors.Is(err, registry.ErrRoomFull) {
			s.trySend(target.id, target.conn, protocol.ErrorMessage(
				protocol.CodeRoomFull, "room is full"))
		} else if created {
			s.log.Error("registry registration failed", zap.Error(err))
			s.trySend(target.id, target.conn, protocol.ErrorMessage(
				protocol.CodeInternalError, "failed to register with matchmaking"))
		}
		if created || errors.Is(err, registry.ErrRoomFull) {
			s.evictRejected(target)
			return
		}
		// Reconnect of an established member: bookkeeping failed but the
		// registry already knows them; log and carry on.
		s.log.Warn("registry re-registration failed", zap.Error(err))
	}

	isHost := s.state.HostID == target.id
	s.trySend(target.id, target.conn, protocol.ServerMessage{
		Type:        protocol.EventRoomJoined,
		RoomID:      s.roomID,
		PlayerID:    target.id,
		PlayerCount: len(s.order),
		IsHost:      &isHost,
		RoomPlayers: s.roster(),
	})
	s.broadcast(protocol.ServerMessage{
		Type:        protocol.EventPlayerJoined,
		RoomID:      s.roomID,
		PlayerID:    target.id,
		PlayerCount: len(s.order),
		RoomPlayers: s.roster(),
	}, target.id)

	s.persist()
}

// purgeAbandonedTempIDs drops provisional auto-id records whose transport
// went quiet past the join deadline. Fresh provisional connections from other
// joining clients are left for their own deadline timers.
func (s *Session) purgeAbandonedTempIDs(keep *player) {
	now := time.Now()
	for id, p := range s.players {
		if p == keep || !p.provisional || !isTempID(id) {
			continue
		}
		if p.conn == nil || p.conn == keep.conn || now.Sub(p.admittedAt) >= s.cfg.JoinTimeout {
			if p.conn != nil && p.conn != keep.conn {
				p.conn.Close(ClosePolicyViolation, "join timeout")
			}
			delete(s.players, id)
		}
	}
}

// evictRejected rolls back a join the registry refused: the player is not a
// member locally either.
func (s *Session) evictRejected(target *player) {
	delete(s.players, target.id)
	s.removeFromOrder(target.id)
	s.state.DropPlayer(target.id, s.order)
	if target.conn != nil {
		target.conn.Close(ClosePolicyViolation, "join rejected")
	}
}

func (s *Session) removeFromOrder(playerID string) {
	for i, id := range s.order {
		if id == playerID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func normalizeMatchType(wire string) string {
	switch wire {
	case "custom", "invite":
		return registry.MatchTypeInvite
	default:
		return registry.MatchTypeQuick
	}
}

// handleDisconnect removes whoever owned this connection. A superseded
// connection resolves to no player and is ignored, so a reconnect is never
// undone by the old reader exiting late.
func (s *Session) handleDisconnect(conn Conn) {
	p := s.findByConn(conn)
	if p == nil {
		return
	}
	if p.provisional {
		delete(s.players, p.id)
		return
	}

	delete(s.players, p.id)
	s.removeFromOrder(p.id)
	s.state.DropPlayer(p.id, s.order)

	// Best-effort: local cleanup never waits on the registry.
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	if err := s.reg.Leave(ctx, p.id, s.roomID); err != nil {
		s.log.Warn("registry leave failed", zap.String("playerId", p.id), zap.Error(err))
	}
	cancel()

	switch s.state.Phase {
	case game.PhaseCountdown:
		if len(s.order) < s.settings.MaxPlayers {
			s.state.AbortRound()
			s.timerGen++
		}
	case game.PhaseInRound:
		if len(s.order) == 0 {
			s.state.AbortRound()
			s.timerGen++
		} else if len(s.state.Reactions) >= len(s.order) {
			s.resolveRound()
		}
	}

	s.broadcast(protocol.ServerMessage{
		Type:        protocol.EventPlayerLeft,
		PlayerID:    p.id,
		PlayerCount: len(s.order),
		RoomPlayers: s.roster(),
	}, "")
	s.persist()
	s.log.Info("player left", zap.String("playerId", p.id), zap.Int("remaining", len(s.order)))
}
