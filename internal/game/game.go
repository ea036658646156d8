package game

import (
	"errors"
	"fmt"
	"math"
)

var ErrIncompleteReactions = errors.New("reactions missing for at least one player")
var ErrInvalidReaction = errors.New("reaction value is not a finite non-negative number")

// maxSeats bounds how large a room can be configured.
const maxSeats = 8

// Phase is the explicit match phase. Modeling it as a single enum (rather
// than independent inProgress/countdown booleans) keeps illegal combinations
// unrepresentable.
type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhaseCountdown Phase = "countdown"
	PhaseInRound   Phase = "in_round"
)

// Settings are fixed at room creation and replicated into durable storage.
type Settings struct {
	MaxWins          int  `json:"maxWins"`
	MaxFalseStarts   int  `json:"maxFalseStarts"`
	AllowFalseStarts bool `json:"allowFalseStarts"`
	MaxPlayers       int  `json:"maxPlayers"`
}

func DefaultSettings() Settings {
	return Settings{
		MaxWins:          3,
		MaxFalseStarts:   3,
		AllowFalseStarts: true,
		MaxPlayers:       2,
	}
}

func (s Settings) Validate() error {
	if s.MaxWins <= 0 {
		return fmt.Errorf("maxWins must be positive, got %d", s.MaxWins)
	}
	if s.MaxFalseStarts <= 0 {
		return fmt.Errorf("maxFalseStarts must be positive, got %d", s.MaxFalseStarts)
	}
	if s.MaxPlayers < 1 || s.MaxPlayers > maxSeats {
		return fmt.Errorf("maxPlayers must be in [1,%d], got %d", maxSeats, s.MaxPlayers)
	}
	return nil
}

func (s Settings) Equal(o Settings) bool {
	return s == o
}

// State is the per-room match state owned by exactly one session at a time.
// Reactions, the phase and rematch votes are transient; wins, false starts
// and the ready map survive restarts via Snapshot.
type State struct {
	Phase         Phase
	HostID        string
	Reactions     map[string]float64
	ReactionOrder []string // submission order, used as the tie-break
	Ready         map[string]bool
	Wins          map[string]int
	FalseStarts   map[string]int
	RematchVotes  map[string]bool
}

func NewState() *State {
	return &State{
		Phase:        PhaseLobby,
		Reactions:    map[string]float64{},
		Ready:        map[string]bool{},
		Wins:         map[string]int{},
		FalseStarts:  map[string]int{},
		RematchVotes: map[string]bool{},
	}
}

// BeginRound moves into the in-round phase with a clean reaction slate.
func (s *State) BeginRound() {
	s.Phase = PhaseInRound
	s.Reactions = map[string]float64{}
	s.ReactionOrder = nil
}

// RecordReaction stores a player's reaction for the current round. It reports
// whether the value was recorded; out-of-round, duplicate and invalid values
// are all dropped without error, since they are benign client races.
func (s *State) RecordReaction(playerID string, frames float64) bool {
	if s.Phase != PhaseInRound {
		return false
	}
	if _, dup := s.Reactions[playerID]; dup {
		return false
	}
	if !validReaction(frames) {
		return false
	}
	s.Reactions[playerID] = frames
	s.ReactionOrder = append(s.ReactionOrder, playerID)
	return true
}

func validReaction(frames float64) bool {
	return frames >= 0 && !math.IsInf(frames, 0) && !math.IsNaN(frames)
}

// RoundResult is broadcast after a round resolves, by reaction or by a
// player exhausting their false starts.
type RoundResult struct {
	WinnerID     string
	LoserID      string
	FalseStart   bool
	Reactions    map[string]float64
	Wins         map[string]int
	FalseStarts  map[string]int
	GameOver     bool
	GameWinnerID string
}

// ResolveRound declares the fastest of the connected players the round
// winner. connected must list every currently seated player; if any reaction
// is missing or invalid the round is not resolved and state is untouched, so
// a winner is never declared from partial data.
func (s *State) ResolveRound(connected []string, maxWins int) (RoundResult, error) {
	for _, id := range connected {
		frames, ok := s.Reactions[id]
		if !ok {
			return RoundResult{}, ErrIncompleteReactions
		}
		if !validReaction(frames) {
			return RoundResult{}, ErrInvalidReaction
		}
	}
	if len(s.ReactionOrder) == 0 {
		return RoundResult{}, ErrIncompleteReactions
	}

	// Minimum reaction wins; on a tie the earlier submission takes it.
	winnerID := ""
	best := math.Inf(1)
	for _, id := range s.ReactionOrder {
		if frames := s.Reactions[id]; frames < best {
			best = frames
			winnerID = id
		}
	}
	s.Wins[winnerID]++

	result := RoundResult{
		WinnerID:    winnerID,
		Reactions:   copyFloatMap(s.Reactions),
		Wins:        copyIntMap(s.Wins),
		FalseStarts: copyIntMap(s.FalseStarts),
	}
	result.GameOver, result.GameWinnerID = s.matchWinner(maxWins)

	s.endRound()
	return result, nil
}

// FalseStart counts one false start against playerID. Once the player
// reaches maxFalseStarts the round ends: every other connected player is
// credited a win and the terminal result is returned; until then only the
// running count is reported.
func (s *State) FalseStart(playerID string, connected []string, settings Settings) (count int, result RoundResult, ended bool) {
	s.FalseStarts[playerID]++
	count = s.FalseStarts[playerID]
	if count < settings.MaxFalseStarts {
		return count, RoundResult{}, false
	}

	winnerID := ""
	for _, id := range connected {
		if id == playerID {
			continue
		}
		s.Wins[id]++
		if winnerID == "" {
			winnerID = id
		}
	}

	result = RoundResult{
		WinnerID:    winnerID,
		LoserID:     playerID,
		FalseStart:  true,
		Reactions:   copyFloatMap(s.Reactions),
		Wins:        copyIntMap(s.Wins),
		FalseStarts: copyIntMap(s.FalseStarts),
	}
	result.GameOver, result.GameWinnerID = s.matchWinner(settings.MaxWins)

	s.endRound()
	return count, result, true
}

// matchWinner reports whether any player has reached maxWins.
func (s *State) matchWinner(maxWins int) (bool, string) {
	for id, wins := range s.Wins {
		if wins >= maxWins {
			return true, id
		}
	}
	return false, ""
}

// endRound clears round-transient state. Ready flags survive so the next
// round can start without re-readying.
func (s *State) endRound() {
	s.Phase = PhaseLobby
	s.Reactions = map[string]float64{}
	s.ReactionOrder = nil
}

// AbortRound ends a countdown or round without a result, e.g. when a
// disconnect leaves nobody to play it out.
func (s *State) AbortRound() {
	s.endRound()
}

// RematchConsensus holds when every connected player has voted yes and the
// full roster is seated. Zero or partial rosters never agree vacuously.
func (s *State) RematchConsensus(connected []string, maxPlayers int) bool {
	if len(connected) == 0 || len(connected) != maxPlayers {
		return false
	}
	for _, id := range connected {
		if !s.RematchVotes[id] {
			return false
		}
	}
	return true
}

// ResetForRematch clears match progress while keeping cumulative tallies.
func (s *State) ResetForRematch() {
	s.Phase = PhaseLobby
	s.Reactions = map[string]float64{}
	s.ReactionOrder = nil
	s.Ready = map[string]bool{}
	s.RematchVotes = map[string]bool{}
}

// DropPlayer removes a player's per-round traces and reassigns the host to
// the first of remaining (already in seat order) when the host left.
func (s *State) DropPlayer(playerID string, remaining []string) {
	delete(s.Ready, playerID)
	if _, ok := s.Reactions[playerID]; ok {
		delete(s.Reactions, playerID)
		order := s.ReactionOrder[:0]
		for _, id := range s.ReactionOrder {
			if id != playerID {
				order = append(order, id)
			}
		}
		s.ReactionOrder = order
	}
	if s.HostID == playerID {
		s.HostID = ""
		if len(remaining) > 0 {
			s.HostID = remaining[0]
		}
	}
}

func copyFloatMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyBoolMap(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
