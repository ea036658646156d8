package protocol

import (
	"encoding/json"
	"errors"
)

var ErrMalformedMessage = errors.New("malformed client message")
var ErrMissingAction = errors.New("client message has no action")

// Two envelope shapes show up on the wire: the documented
// {"action": "...", "data": {...}} form and an older flattened
// {"type": "...", ...} form some clients still send. Both decode through
// wireMessage; the embedded ActionData captures the flattened fields and an
// explicit data object wins over them.
type wireMessage struct {
	Action string          `json:"action"`
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
	ActionData
}

// DecodeClientMessage normalizes a raw frame into a ClientMessage. The action
// name is not validated here; unknown actions are rejected at dispatch so the
// sender gets a per-action error instead of a decode failure.
func DecodeClientMessage(raw []byte) (ClientMessage, error) {
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return ClientMessage{}, ErrMalformedMessage
	}

	action := w.Action
	if action == "" {
		action = w.Type
	}
	if action == "" {
		return ClientMessage{}, ErrMissingAction
	}

	data := w.ActionData
	if len(w.Data) > 0 {
		if err := json.Unmarshal(w.Data, &data); err != nil {
			return ClientMessage{}, ErrMalformedMessage
		}
	}

	return ClientMessage{Action: action, Data: data}, nil
}
