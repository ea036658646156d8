package protocol

import "github.com/quickdraw-gg/backend/internal/game"

// Client -> Server actions.
const (
	ActionJoinRoom        = "join_room"
	ActionRoundStart      = "round_start"
	ActionExclamationShow = "exclamation_show"
	ActionPlayerReaction  = "player_reaction"
	ActionFalseStart      = "false_start"
	ActionReadyToggle     = "ready_toggle"
	ActionRematchRequest  = "rematch_request"
	ActionRematchResponse = "rematch_response"
	ActionGetRoomState    = "get_room_state"
)

// Server -> Client event types.
const (
	EventConnectionEstablished = "connection_established"
	EventRoomJoined            = "room_joined"
	EventPlayerJoined          = "player_joined"
	EventPlayerLeft            = "player_left"
	EventRoundStart            = "round_start"
	EventExclamationShow       = "exclamation_show"
	EventFalseStart            = "false_start"
	EventRoundResult           = "round_result"
	EventReadyStatus           = "ready_status"
	EventCountdownStart        = "countdown_start"
	EventRematchRequest        = "rematch_request"
	EventRematchResponse       = "rematch_response"
	EventRoomState             = "room_state"
	EventError                 = "error"
)

// Error codes carried in ServerMessage.Error.
const (
	CodeInvalidMessage     = "INVALID_MESSAGE"
	CodeUnknownAction      = "UNKNOWN_ACTION"
	CodeMissingPlayerID    = "MISSING_PLAYER_ID"
	CodeJoinRequired       = "JOIN_REQUIRED"
	CodeNotHost            = "NOT_HOST"
	CodeRoundNotInProgress = "ROUND_NOT_IN_PROGRESS"
	CodeRoomMismatch       = "ROOM_MISMATCH"
	CodeRoomFull           = "ROOM_FULL"
	CodeRoomNotFound       = "ROOM_NOT_FOUND"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeJoinTimeout        = "JOIN_TIMEOUT"
	CodeInternalError      = "INTERNAL_ERROR"
)

// ActionData is the normalized payload of a client message, independent of
// which wire variant carried it.
type ActionData struct {
	RoomID             string         `json:"roomId,omitempty"`
	RoomCode           string         `json:"roomCode,omitempty"`
	MatchType          string         `json:"matchType,omitempty"`
	PlayerID           string         `json:"playerId,omitempty"`
	PlayerName         string         `json:"playerName,omitempty"`
	ReactionFrames     *float64       `json:"reactionFrames,omitempty"`
	WaitTime           int            `json:"waitTime,omitempty"`
	GameStartTime      int64          `json:"gameStartTime,omitempty"`
	Timestamp          int64          `json:"timestamp,omitempty"`
	Accepted           *bool          `json:"accepted,omitempty"`
	CustomRoomSettings *game.Settings `json:"customRoomSettings,omitempty"`
}

// ClientMessage is the internal form every inbound frame is normalized to.
type ClientMessage struct {
	Action string
	Data   ActionData
}

// PlayerInfo is the roster entry replicated to clients.
type PlayerInfo struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Rating     int    `json:"rating"`
	IsHost     bool   `json:"isHost"`
	IsReady    bool   `json:"isReady"`
}

// WireError is the {code, message} pair attached to error events.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServerMessage is the single outbound envelope. Fields are populated per
// event type; everything else stays omitted.
type ServerMessage struct {
	Type        string       `json:"type"`
	RoomID      string       `json:"roomId,omitempty"`
	PlayerID    string       `json:"playerId,omitempty"`
	PlayerCount int          `json:"playerCount,omitempty"`
	IsHost      *bool        `json:"isHost,omitempty"`
	RoomPlayers []PlayerInfo `json:"roomPlayers,omitempty"`

	Settings *game.Settings `json:"settings,omitempty"`
	Phase    string         `json:"phase,omitempty"`

	WaitTime      int   `json:"waitTime,omitempty"`
	GameStartTime int64 `json:"gameStartTime,omitempty"`
	Timestamp     int64 `json:"timestamp,omitempty"`
	Countdown     int   `json:"countdown,omitempty"`

	WinnerID              string             `json:"winnerId,omitempty"`
	LoserID               string             `json:"loserId,omitempty"`
	FalseStart            bool               `json:"falseStart,omitempty"`
	FalseStartCount       int                `json:"falseStartCount,omitempty"`
	MaxFalseStarts        int                `json:"maxFalseStarts,omitempty"`
	Reactions             map[string]float64 `json:"reactions,omitempty"`
	WinsByPlayerID        map[string]int     `json:"winsByPlayerId,omitempty"`
	FalseStartsByPlayerID map[string]int     `json:"falseStartsByPlayerId,omitempty"`
	ReadyByPlayerID       map[string]bool    `json:"readyByPlayerId,omitempty"`
	GameOver              bool               `json:"gameOver,omitempty"`
	GameWinnerID          string             `json:"gameWinnerId,omitempty"`

	Accepted  *bool `json:"accepted,omitempty"`
	GameReset bool  `json:"gameReset,omitempty"`

	Error *WireError `json:"error,omitempty"`
}

// ErrorMessage builds an error event addressed to a single connection.
func ErrorMessage(code, message string) ServerMessage {
	return ServerMessage{
		Type:  EventError,
		Error: &WireError{Code: code, Message: message},
	}
}

// Bool returns a pointer for optional boolean wire fields.
func Bool(v bool) *bool { return &v }
