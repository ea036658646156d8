package game

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSettingsValidate(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())

	bad := DefaultSettings()
	bad.MaxWins = 0
	require.Error(t, bad.Validate())

	bad = DefaultSettings()
	bad.MaxFalseStarts = -1
	require.Error(t, bad.Validate())

	bad = DefaultSettings()
	bad.MaxPlayers = 0
	require.Error(t, bad.Validate())

	bad = DefaultSettings()
	bad.MaxPlayers = 99
	require.Error(t, bad.Validate())
}

func TestRecordReaction(t *testing.T) {
	s := NewState()

	require.False(t, s.RecordReaction("a", 100), "not in round")

	s.BeginRound()
	require.True(t, s.RecordReaction("a", 100))
	require.False(t, s.RecordReaction("a", 50), "duplicate is dropped")
	require.Equal(t, 100.0, s.Reactions["a"], "first value wins")

	require.False(t, s.RecordReaction("b", -1), "negative rejected")
	require.False(t, s.RecordReaction("b", math.Inf(1)), "infinite rejected")
	require.False(t, s.RecordReaction("b", math.NaN()), "NaN rejected")
	require.True(t, s.RecordReaction("b", 0), "zero is a valid reaction")
}

func TestResolveRound_FastestWins(t *testing.T) {
	s := NewState()
	s.BeginRound()
	require.True(t, s.RecordReaction("A", 120))
	require.True(t, s.RecordReaction("B", 95))

	result, err := s.ResolveRound([]string{"A", "B"}, 3)
	require.NoError(t, err)
	require.Equal(t, "B", result.WinnerID)
	require.Equal(t, 1, result.Wins["B"])
	require.Zero(t, result.Wins["A"])
	require.False(t, result.GameOver)

	require.Equal(t, PhaseLobby, s.Phase)
	require.Empty(t, s.Reactions, "reactions cleared after resolution")
}

func TestResolveRound_TieGoesToFirstSubmission(t *testing.T) {
	s := NewState()
	s.BeginRound()
	require.True(t, s.RecordReaction("B", 80))
	require.True(t, s.RecordReaction("A", 80))

	result, err := s.ResolveRound([]string{"A", "B"}, 3)
	require.NoError(t, err)
	require.Equal(t, "B", result.WinnerID)
}

func TestResolveRound_IncompleteIsDiscarded(t *testing.T) {
	s := NewState()
	s.BeginRound()
	require.True(t, s.RecordReaction("A", 120))

	_, err := s.ResolveRound([]string{"A", "B"}, 3)
	require.ErrorIs(t, err, ErrIncompleteReactions)
	require.Equal(t, PhaseInRound, s.Phase, "state untouched on discard")
	require.Zero(t, s.Wins["A"], "no winner declared from partial data")
}

func TestResolveRound_MatchOver(t *testing.T) {
	s := NewState()
	s.Wins["B"] = 2

	s.BeginRound()
	require.True(t, s.RecordReaction("A", 200))
	require.True(t, s.RecordReaction("B", 150))

	result, err := s.ResolveRound([]string{"A", "B"}, 3)
	require.NoError(t, err)
	require.True(t, result.GameOver)
	require.Equal(t, "B", result.GameWinnerID)
	require.Equal(t, 3, result.Wins["B"])
}

func TestFalseStart_NonTerminalCountsUp(t *testing.T) {
	s := NewState()
	s.BeginRound()

	count, _, ended := s.FalseStart("A", []string{"A", "B"}, DefaultSettings())
	require.Equal(t, 1, count)
	require.False(t, ended)
	require.Equal(t, PhaseInRound, s.Phase, "round continues")
}

func TestFalseStart_ThirdEndsRoundCreditingOthers(t *testing.T) {
	settings := DefaultSettings() // maxFalseStarts = 3
	s := NewState()
	s.BeginRound()

	players := []string{"A", "B", "C"}
	s.FalseStart("A", players, settings)
	s.FalseStart("A", players, settings)
	count, result, ended := s.FalseStart("A", players, settings)

	require.Equal(t, 3, count)
	require.True(t, ended)
	require.True(t, result.FalseStart)
	require.Equal(t, "A", result.LoserID)
	require.Equal(t, "B", result.WinnerID)
	require.Equal(t, 1, result.Wins["B"], "every non-offender is credited")
	require.Equal(t, 1, result.Wins["C"], "every non-offender is credited")
	require.Zero(t, result.Wins["A"])
	require.Equal(t, PhaseLobby, s.Phase)
}

func TestRematchConsensus(t *testing.T) {
	s := NewState()
	connected := []string{"A", "B"}

	require.False(t, s.RematchConsensus(connected, 2), "no votes yet")

	s.RematchVotes["A"] = true
	require.False(t, s.RematchConsensus(connected, 2), "one vote is not consensus")

	s.RematchVotes["B"] = true
	require.True(t, s.RematchConsensus(connected, 2))

	require.False(t, s.RematchConsensus([]string{"A"}, 2), "partial roster never agrees")
	require.False(t, s.RematchConsensus(nil, 0), "empty roster never agrees")

	s.RematchVotes["B"] = false
	require.False(t, s.RematchConsensus(connected, 2), "explicit decline blocks")
}

func TestResetForRematch_KeepsTallies(t *testing.T) {
	s := NewState()
	s.Wins["A"] = 2
	s.FalseStarts["B"] = 1
	s.Ready["A"] = true
	s.RematchVotes["A"] = true
	s.BeginRound()
	s.RecordReaction("A", 10)

	s.ResetForRematch()

	require.Equal(t, PhaseLobby, s.Phase)
	require.Empty(t, s.Reactions)
	require.Empty(t, s.Ready)
	require.Empty(t, s.RematchVotes)
	require.Equal(t, 2, s.Wins["A"], "cumulative wins survive")
	require.Equal(t, 1, s.FalseStarts["B"], "cumulative false starts survive")
}

func TestDropPlayer_HostPassesToFirstRemaining(t *testing.T) {
	s := NewState()
	s.HostID = "A"
	s.Ready["A"] = true
	s.BeginRound()
	s.RecordReaction("A", 42)
	s.RecordReaction("B", 50)

	s.DropPlayer("A", []string{"B", "C"})
	require.Equal(t, "B", s.HostID)
	require.NotContains(t, s.Ready, "A")
	require.NotContains(t, s.Reactions, "A")
	require.Equal(t, []string{"B"}, s.ReactionOrder)

	s.DropPlayer("B", nil)
	require.Empty(t, s.HostID, "host is null with nobody left")
}

func TestSnapshotRoundTrip_TransientStateNeverSurvives(t *testing.T) {
	s := NewState()
	s.HostID = "A"
	s.Wins["A"] = 2
	s.FalseStarts["B"] = 1
	s.Ready["A"] = true
	s.RematchVotes["A"] = true
	s.BeginRound()
	s.RecordReaction("A", 77)

	snap := s.Snapshot("room-1", DefaultSettings())
	restored := FromSnapshot(snap)

	require.Equal(t, PhaseLobby, restored.Phase, "phase starts fresh")
	require.Empty(t, restored.Reactions)
	require.Empty(t, restored.RematchVotes)
	require.Empty(t, restored.HostID, "host is re-claimed by the next joiner")
	require.Equal(t, 2, restored.Wins["A"])
	require.Equal(t, 1, restored.FalseStarts["B"])
	require.True(t, restored.Ready["A"])
}
