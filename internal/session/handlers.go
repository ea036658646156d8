package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/quickdraw-gg/backend/internal/game"
	"github.com/quickdraw-gg/backend/internal/protocol"
)

// handleFrame decodes one inbound frame and dispatches it. Only join_room is
// allowed from a still-provisional connection.
func (s *Session) handleFrame(conn Conn, frame []byte) {
	p := s.findByConn(conn)
	if p == nil {
		// Reader raced a disconnect or supersede; nothing to do.
		return
	}

	cm, err := protocol.DecodeClientMessage(frame)
	if err != nil {
		s.trySend(p.id, p.conn, protocol.ErrorMessage(
			protocol.CodeInvalidMessage, "failed to parse message"))
		return
	}

	if p.provisional && cm.Action != protocol.ActionJoinRoom {
		s.trySend(p.id, p.conn, protocol.ErrorMessage(
			protocol.CodeJoinRequired, "join the room before sending game actions"))
		return
	}

	switch cm.Action {
	case protocol.ActionJoinRoom:
		s.handleJoin(p, cm.Data)
	case protocol.ActionRoundStart:
		s.handleRoundStart(p, cm.Data)
	case protocol.ActionExclamationShow:
		s.handleExclamationShow(p, cm.Data)
	case protocol.ActionPlayerReaction:
		s.handlePlayerReaction(p, cm.Data)
	case protocol.ActionFalseStart:
		s.handleFalseStart(p)
	case protocol.ActionReadyToggle:
		s.handleReadyToggle(p)
	case protocol.ActionRematchRequest:
		s.handleRematchRequest(p)
	case protocol.ActionRematchResponse:
		s.handleRematchResponse(p, cm.Data)
	case protocol.ActionGetRoomState:
		s.handleGetRoomState(p)
	default:
		s.trySend(p.id, p.conn, protocol.ErrorMessage(
			protocol.CodeUnknownAction, "unknown action: "+cm.Action))
	}
}

// handleRoundStart is the host-driven manual start: the host's client picks
// the timing and the server relays it.
func (s *Session) handleRoundStart(p *player, data protocol.ActionData) {
	if s.state.HostID != p.id {
		s.trySend(p.id, p.conn, protocol.ErrorMessage(
			protocol.CodeNotHost, "only the host can start a round"))
		return
	}

	s.state.BeginRound()
	s.timerGen++
	s.broadcast(protocol.ServerMessage{
		Type:          protocol.EventRoundStart,
		WaitTime:      data.WaitTime,
		GameStartTime: data.GameStartTime,
	}, "")
	s.persist()
}

func (s *Session) handleExclamationShow(p *player, data protocol.ActionData) {
	if s.state.HostID != p.id {
		s.trySend(p.id, p.conn, protocol.ErrorMessage(
			protocol.CodeNotHost, "only the host can show the cue"))
		return
	}
	s.broadcast(protocol.ServerMessage{
		Type:      protocol.EventExclamationShow,
		Timestamp: data.Timestamp,
	}, "")
}

func (s *Session) handleReadyToggle(p *player) {
	s.state.Ready[p.id] = !s.state.Ready[p.id]

	ready := make(map[string]bool, len(s.state.Ready))
	for id, v := range s.state.Ready {
		ready[id] = v
	}
	s.broadcast(protocol.ServerMessage{
		Type:            protocol.EventReadyStatus,
		ReadyByPlayerID: ready,
	}, "")

	if s.state.Phase == game.PhaseLobby && s.allReady() && len(s.order) == s.settings.MaxPlayers {
		s.startCountdown()
	}
	s.persist()
}

func (s *Session) allReady() bool {
	if len(s.order) == 0 {
		return false
	}
	for _, id := range s.order {
		if !s.state.Ready[id] {
			return false
		}
	}
	return true
}

// handlePlayerReaction records a reaction. Out-of-round, duplicate and
// invalid values are dropped without an error reply; these are benign races,
// not client bugs worth surfacing.
func (s *Session) handlePlayerReaction(p *player, data protocol.ActionData) {
	frames := 0.0
	if data.ReactionFrames != nil {
		frames = *data.ReactionFrames
	}
	if !s.state.RecordReaction(p.id, frames) {
		s.log.Debug("ignoring reaction",
			zap.String("playerId", p.id), zap.Float64("frames", frames),
			zap.String("phase", string(s.state.Phase)))
		return
	}
	if len(s.state.Reactions) >= len(s.order) {
		s.resolveRound()
	}
}

func (s *Session) resolveRound() {
	result, err := s.state.ResolveRound(s.order, s.settings.MaxWins)
	if err != nil {
		// Never declare a winner from partial or corrupt data.
		s.log.Error("discarding round result", zap.Error(err))
		return
	}
	s.timerGen++ // a pending cue must not fire into the next round
	s.broadcast(roundResultMessage(result), "")
	s.persist()
}

func (s *Session) handleFalseStart(p *player) {
	if s.state.Phase != game.PhaseInRound {
		s.trySend(p.id, p.conn, protocol.ErrorMessage(
			protocol.CodeRoundNotInProgress, "round is not in progress"))
		return
	}

	count, result, ended := s.state.FalseStart(p.id, s.order, s.settings)
	if ended {
		s.timerGen++
		s.broadcast(roundResultMessage(result), "")
	} else {
		s.broadcast(protocol.ServerMessage{
			Type:            protocol.EventFalseStart,
			PlayerID:        p.id,
			FalseStartCount: count,
			MaxFalseStarts:  s.settings.MaxFalseStarts,
		}, "")
	}
	s.persist()
}

func (s *Session) handleRematchRequest(p *player) {
	s.state.RematchVotes[p.id] = true
	s.broadcast(protocol.ServerMessage{
		Type:     protocol.EventRematchRequest,
		PlayerID: p.id,
	}, p.id)
	s.checkRematchConsensus()
	s.persist()
}

func (s *Session) handleRematchResponse(p *player, data protocol.ActionData) {
	accepted := data.Accepted != nil && *data.Accepted
	s.state.RematchVotes[p.id] = accepted
	s.broadcast(protocol.ServerMessage{
		Type:     protocol.EventRematchResponse,
		PlayerID: p.id,
		Accepted: &accepted,
	}, "")
	s.checkRematchConsensus()
	s.persist()
}

// checkRematchConsensus resets match progress once every connected player has
// voted yes with a full roster. Cumulative tallies survive the reset.
func (s *Session) checkRematchConsensus() {
	if !s.state.RematchConsensus(s.order, s.settings.MaxPlayers) {
		return
	}
	s.state.ResetForRematch()
	s.timerGen++
	s.broadcast(protocol.ServerMessage{
		Type:      protocol.EventRematchRequest,
		Accepted:  protocol.Bool(true),
		GameReset: true,
	}, "")
}

func (s *Session) handleGetRoomState(p *player) {
	isHost := s.state.HostID == p.id
	wins := make(map[string]int, len(s.state.Wins))
	for id, v := range s.state.Wins {
		wins[id] = v
	}
	falseStarts := make(map[string]int, len(s.state.FalseStarts))
	for id, v := range s.state.FalseStarts {
		falseStarts[id] = v
	}
	ready := make(map[string]bool, len(s.state.Ready))
	for id, v := range s.state.Ready {
		ready[id] = v
	}
	settings := s.settings
	s.trySend(p.id, p.conn, protocol.ServerMessage{
		Type:                  protocol.EventRoomState,
		RoomID:                s.roomID,
		PlayerID:              p.id,
		PlayerCount:           len(s.order),
		IsHost:                &isHost,
		RoomPlayers:           s.roster(),
		Settings:              &settings,
		Phase:                 string(s.state.Phase),
		WinsByPlayerID:        wins,
		FalseStartsByPlayerID: falseStarts,
		ReadyByPlayerID:       ready,
	})
}

// startCountdown begins the ready -> round transition. The phase move is the
// idempotency guard: a second all-ready signal while counting down is a
// no-op.
func (s *Session) startCountdown() {
	if s.state.Phase != game.PhaseLobby {
		return
	}
	s.state.Phase = game.PhaseCountdown
	s.timerGen++
	gen := s.timerGen

	s.broadcast(protocol.ServerMessage{
		Type:      protocol.EventCountdownStart,
		Countdown: 3,
	}, "")
	s.schedule(s.cfg.CountdownTick, countdownTick{gen: gen, next: 2})
}

func (s *Session) handleCountdownTick(msg countdownTick) {
	if msg.gen != s.timerGen || s.state.Phase != game.PhaseCountdown {
		return
	}
	if msg.next >= 1 {
		s.broadcast(protocol.ServerMessage{
			Type:      protocol.EventCountdownStart,
			Countdown: msg.next,
		}, "")
		s.schedule(s.cfg.CountdownTick, countdownTick{gen: msg.gen, next: msg.next - 1})
		return
	}
	s.beginTimedRound()
}

// beginTimedRound starts the automated round: a pseudo-random wait inside the
// configured bounds, then the cue.
func (s *Session) beginTimedRound() {
	s.state.BeginRound()
	s.timerGen++
	gen := s.timerGen

	wait := s.cfg.MinCueWait
	if spread := s.cfg.MaxCueWait - s.cfg.MinCueWait; spread > 0 {
		wait += time.Duration(s.rng.Int63n(int64(spread) + 1))
	}
	gameStartTime := time.Now().Add(wait).UnixMilli()

	s.broadcast(protocol.ServerMessage{
		Type:          protocol.EventRoundStart,
		WaitTime:      int(wait.Milliseconds()),
		GameStartTime: gameStartTime,
	}, "")
	s.schedule(wait, cueDue{gen: gen})
	s.persist()
}

// handleCueDue fires the cue, unless the round it was armed for already
// ended; the timer itself cannot be cancelled, so it checks before acting.
func (s *Session) handleCueDue(msg cueDue) {
	if msg.gen != s.timerGen || s.state.Phase != game.PhaseInRound {
		return
	}
	s.broadcast(protocol.ServerMessage{
		Type:      protocol.EventExclamationShow,
		Timestamp: time.Now().UnixMilli(),
	}, "")
}

func roundResultMessage(r game.RoundResult) protocol.ServerMessage {
	return protocol.ServerMessage{
		Type:                  protocol.EventRoundResult,
		WinnerID:              r.WinnerID,
		LoserID:               r.LoserID,
		FalseStart:            r.FalseStart,
		Reactions:             r.Reactions,
		WinsByPlayerID:        r.Wins,
		FalseStartsByPlayerID: r.FalseStarts,
		GameOver:              r.GameOver,
		GameWinnerID:          r.GameWinnerID,
	}
}
