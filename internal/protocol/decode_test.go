package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeClientMessage_EnvelopeForm(t *testing.T) {
	raw := []byte(`{"action":"join_room","data":{"roomId":"r1","playerId":"p1","playerName":"Ana","matchType":"quick"}}`)

	msg, err := DecodeClientMessage(raw)
	require.NoError(t, err)
	require.Equal(t, ActionJoinRoom, msg.Action)
	require.Equal(t, "r1", msg.Data.RoomID)
	require.Equal(t, "p1", msg.Data.PlayerID)
	require.Equal(t, "Ana", msg.Data.PlayerName)
	require.Equal(t, "quick", msg.Data.MatchType)
}

func TestDecodeClientMessage_FlattenedForm(t *testing.T) {
	raw := []byte(`{"type":"player_reaction","reactionFrames":17.5}`)

	msg, err := DecodeClientMessage(raw)
	require.NoError(t, err)
	require.Equal(t, ActionPlayerReaction, msg.Action)
	require.NotNil(t, msg.Data.ReactionFrames)
	require.Equal(t, 17.5, *msg.Data.ReactionFrames)
}

func TestDecodeClientMessage_DataObjectWinsOverFlattened(t *testing.T) {
	raw := []byte(`{"action":"join_room","playerId":"outer","data":{"playerId":"inner"}}`)

	msg, err := DecodeClientMessage(raw)
	require.NoError(t, err)
	require.Equal(t, "inner", msg.Data.PlayerID)
}

func TestDecodeClientMessage_ActionWinsOverType(t *testing.T) {
	raw := []byte(`{"action":"ready_toggle","type":"join_room"}`)

	msg, err := DecodeClientMessage(raw)
	require.NoError(t, err)
	require.Equal(t, ActionReadyToggle, msg.Action)
}

func TestDecodeClientMessage_ZeroReactionSurvives(t *testing.T) {
	raw := []byte(`{"action":"player_reaction","data":{"reactionFrames":0}}`)

	msg, err := DecodeClientMessage(raw)
	require.NoError(t, err)
	require.NotNil(t, msg.Data.ReactionFrames, "explicit zero must not look like absent")
	require.Zero(t, *msg.Data.ReactionFrames)
}

func TestDecodeClientMessage_Errors(t *testing.T) {
	_, err := DecodeClientMessage([]byte(`not json`))
	require.ErrorIs(t, err, ErrMalformedMessage)

	_, err = DecodeClientMessage([]byte(`{"data":{"playerId":"p1"}}`))
	require.ErrorIs(t, err, ErrMissingAction)

	_, err = DecodeClientMessage([]byte(`{"action":"join_room","data":"nope"}`))
	require.ErrorIs(t, err, ErrMalformedMessage)
}
