package game

// Snapshot is the durable subset of a room's state. Reactions, the phase and
// rematch votes are deliberately absent: they must never survive a restart.
type Snapshot struct {
	RoomID                string          `json:"roomId"`
	Settings              Settings        `json:"settings"`
	HostID                string          `json:"hostId,omitempty"`
	ReadyByPlayerID       map[string]bool `json:"readyByPlayerId"`
	WinsByPlayerID        map[string]int  `json:"winsByPlayerId"`
	FalseStartsByPlayerID map[string]int  `json:"falseStartsByPlayerId"`
}

// Snapshot captures the durable subset for persistence.
func (s *State) Snapshot(roomID string, settings Settings) Snapshot {
	return Snapshot{
		RoomID:                roomID,
		Settings:              settings,
		HostID:                s.HostID,
		ReadyByPlayerID:       copyBoolMap(s.Ready),
		WinsByPlayerID:        copyIntMap(s.Wins),
		FalseStartsByPlayerID: copyIntMap(s.FalseStarts),
	}
}

// FromSnapshot rehydrates a state by merging the durable subset into fresh
// transient defaults. The host is cleared: no connections exist yet, and the
// first player to join claims it again.
func FromSnapshot(snap Snapshot) *State {
	s := NewState()
	if snap.ReadyByPlayerID != nil {
		s.Ready = copyBoolMap(snap.ReadyByPlayerID)
	}
	if snap.WinsByPlayerID != nil {
		s.Wins = copyIntMap(snap.WinsByPlayerID)
	}
	if snap.FalseStartsByPlayerID != nil {
		s.FalseStarts = copyIntMap(snap.FalseStartsByPlayerID)
	}
	return s
}
