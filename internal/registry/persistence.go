package registry

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/quickdraw-gg/backend/internal/game"
)

const storeKey = "registry:rooms"

const codeLength = 4

// freshCode generates a short numeric join code unique among live codes.
func (r *Registry) freshCode() (string, error) {
	const digits = "0123456789"
	for attempt := 0; attempt < 100; attempt++ {
		code := make([]byte, codeLength)
		for i := range code {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
			if err != nil {
				return "", err
			}
			code[i] = digits[n.Int64()]
		}
		if _, taken := r.codeToRoom[string(code)]; !taken {
			return string(code), nil
		}
	}
	return "", errors.New("could not find a free room code")
}

type persistedRoom struct {
	RoomID      string           `json:"roomId"`
	Code        string           `json:"code,omitempty"`
	MatchType   string           `json:"matchType"`
	PlayerIDs   []string         `json:"playerIds"`
	Settings    game.Settings    `json:"settings"`
	JoinedAt    map[string]int64 `json:"playerJoinedAt"`
	ConnectedAt map[string]int64 `json:"playerConnectedAt"`
}

type persistedState struct {
	Rooms []persistedRoom `json:"rooms"`
}

// persist writes the whole room table. Write failures are logged, not
// raised: matchmaking keeps serving from memory and the next mutation
// retries the write.
func (r *Registry) persist() {
	state := persistedState{Rooms: make([]persistedRoom, 0, len(r.rooms))}
	for _, id := range r.roomOrder {
		rm := r.rooms[id]
		p := persistedRoom{
			RoomID:      rm.id,
			Code:        rm.code,
			MatchType:   rm.matchType,
			Settings:    rm.settings,
			PlayerIDs:   make([]string, 0, len(rm.players)),
			JoinedAt:    make(map[string]int64, len(rm.joinedAt)),
			ConnectedAt: make(map[string]int64, len(rm.connectedAt)),
		}
		for pid := range rm.players {
			p.PlayerIDs = append(p.PlayerIDs, pid)
		}
		for pid, t := range rm.joinedAt {
			p.JoinedAt[pid] = t.UnixMilli()
		}
		for pid, t := range rm.connectedAt {
			p.ConnectedAt[pid] = t.UnixMilli()
		}
		state.Rooms = append(state.Rooms, p)
	}

	raw, err := json.Marshal(state)
	if err != nil {
		r.log.Error("marshal registry state", zap.Error(err))
		return
	}
	if err := r.st.Put(r.ctx, storeKey, raw); err != nil {
		r.log.Error("persist registry state", zap.Error(err))
	}
}

// restore loads the room table at construction, rebuilding the code index.
func (r *Registry) restore() {
	raw, ok, err := r.st.Get(r.ctx, storeKey)
	if err != nil {
		r.log.Error("load registry state", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	var state persistedState
	if err := json.Unmarshal(raw, &state); err != nil {
		r.log.Error("decode registry state", zap.Error(err))
		return
	}

	for _, p := range state.Rooms {
		settings := p.Settings
		if settings.Validate() != nil {
			settings = game.DefaultSettings()
		}
		rm := &room{
			id:          p.RoomID,
			code:        p.Code,
			matchType:   p.MatchType,
			settings:    settings,
			players:     make(map[string]struct{}, len(p.PlayerIDs)),
			joinedAt:    make(map[string]time.Time, len(p.JoinedAt)),
			connectedAt: make(map[string]time.Time, len(p.ConnectedAt)),
		}
		for _, pid := range p.PlayerIDs {
			rm.players[pid] = struct{}{}
		}
		for pid, ms := range p.JoinedAt {
			rm.joinedAt[pid] = time.UnixMilli(ms)
		}
		for pid, ms := range p.ConnectedAt {
			rm.connectedAt[pid] = time.UnixMilli(ms)
		}
		r.addRoom(rm)
		if rm.code != "" {
			r.codeToRoom[rm.code] = rm.id
		}
	}
}
