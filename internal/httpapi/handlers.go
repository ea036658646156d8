package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/quickdraw-gg/backend/internal/game"
	"github.com/quickdraw-gg/backend/internal/protocol"
	"github.com/quickdraw-gg/backend/internal/registry"
)

type errorBody struct {
	Error protocol.WireError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: protocol.WireError{Code: code, Message: message}})
}

// writeRegistryError maps registry sentinels onto wire error codes.
func writeRegistryError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, registry.ErrRoomFull):
		writeError(w, http.StatusBadRequest, protocol.CodeRoomFull, "room is full")
	case errors.Is(err, registry.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, protocol.CodeRoomNotFound, "room not found")
	case errors.Is(err, registry.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, protocol.CodeInvalidRequest, "invalid request")
	default:
		log.Error("registry request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, protocol.CodeInternalError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeError(w, http.StatusBadRequest, protocol.CodeInvalidRequest, "invalid JSON in request body")
		return false
	}
	return true
}

func QuickMatch(reg *registry.Registry, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			PlayerID string         `json:"playerId"`
			Settings *game.Settings `json:"settings"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		if body.PlayerID == "" {
			writeError(w, http.StatusBadRequest, protocol.CodeInvalidRequest, "playerId is required")
			return
		}
		if body.Settings != nil {
			if err := body.Settings.Validate(); err != nil {
				writeError(w, http.StatusBadRequest, protocol.CodeInvalidRequest, err.Error())
				return
			}
		}

		roomID, err := reg.QuickMatch(r.Context(), body.PlayerID, body.Settings)
		if err != nil {
			writeRegistryError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"roomId": roomID})
	}
}

func CreateRoom(reg *registry.Registry, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			PlayerID           string         `json:"playerId"`
			CustomRoomSettings *game.Settings `json:"customRoomSettings"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		if body.PlayerID == "" {
			writeError(w, http.StatusBadRequest, protocol.CodeInvalidRequest, "playerId is required")
			return
		}
		if body.CustomRoomSettings == nil {
			writeError(w, http.StatusBadRequest, protocol.CodeInvalidRequest, "customRoomSettings is required")
			return
		}
		if err := body.CustomRoomSettings.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, protocol.CodeInvalidRequest, err.Error())
			return
		}

		roomID, code, err := reg.CreateRoom(r.Context(), body.PlayerID, *body.CustomRoomSettings)
		if err != nil {
			writeRegistryError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"roomId": roomID, "roomCode": code})
	}
}

func JoinRoom(reg *registry.Registry, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			PlayerID string `json:"playerId"`
			RoomCode string `json:"roomCode"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		if body.PlayerID == "" || body.RoomCode == "" {
			writeError(w, http.StatusBadRequest, protocol.CodeInvalidRequest, "playerId and roomCode are required")
			return
		}

		roomID, err := reg.JoinByCode(r.Context(), body.PlayerID, body.RoomCode)
		if err != nil {
			writeRegistryError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"roomId": roomID})
	}
}

func ListRooms(reg *registry.Registry, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, err := reg.ListRooms(r.Context())
		if err != nil {
			writeRegistryError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]registry.RoomInfo{"rooms": rooms})
	}
}

func LeaveRoom(reg *registry.Registry, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			PlayerID string `json:"playerId"`
			RoomID   string `json:"roomId"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		if body.PlayerID == "" || body.RoomID == "" {
			writeError(w, http.StatusBadRequest, protocol.CodeInvalidRequest, "playerId and roomId are required")
			return
		}

		if err := reg.Leave(r.Context(), body.PlayerID, body.RoomID); err != nil {
			writeRegistryError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func DeleteRoom(reg *registry.Registry, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RoomID string `json:"roomId"`
		}
		if !decodeBody(w, r, &body) {
			return
		}

		if err := reg.DeleteRoom(r.Context(), body.RoomID); err != nil {
			writeRegistryError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "roomId": body.RoomID})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
