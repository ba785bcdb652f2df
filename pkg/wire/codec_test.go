package wire

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mindcare/realtime/pkg/model"
)

func TestDecodeMessage(t *testing.T) {
	req := require.New(t)
	ev, derr := Decode([]byte(`{"type":"message","room_id":"r1","content":"hello there"}`))
	req.Nil(derr)
	msg, ok := ev.(*model.Message)
	req.True(ok)
	req.Equal("r1", msg.RoomID)
	req.Equal("hello there", msg.Content)
	req.Equal("text", msg.ContentType, "content_type defaults to text")
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		detail string
	}{
		{"not json", `{{{`, "invalid json"},
		{"missing type", `{"room_id":"r1"}`, "missing type"},
		{"unknown type", `{"type":"shrug"}`, "unrecognized type"},
		{"empty content", `{"type":"message","room_id":"r1","content":""}`, "must not be empty"},
		{"read without message_id", `{"type":"read","room_id":"r1"}`, "requires message_id"},
		{"reaction without message_id", `{"type":"reaction","room_id":"r1","reaction":"❤️","action":"add"}`, "requires message_id"},
		{"reaction without kind", `{"type":"reaction","room_id":"r1","message_id":7,"action":"add"}`, "requires a reaction"},
		{"reaction bad action", `{"type":"reaction","room_id":"r1","message_id":7,"reaction":"❤️","action":"toggle"}`, "must be add or remove"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)
			ev, derr := Decode([]byte(tc.raw))
			req.Nil(ev)
			req.NotNil(derr)
			req.Equal(model.ErrKindMalformedFrame, derr.ErrKind)
			req.Contains(derr.Detail, tc.detail)
		})
	}
}

func TestDecodeContentLengthBound(t *testing.T) {
	req := require.New(t)

	// Multi-byte runes count as one character each.
	atLimit := strings.Repeat("ü", MaxContentRunes)
	frame, err := json.Marshal(map[string]string{"type": "message", "room_id": "r1", "content": atLimit})
	req.NoError(err)
	ev, derr := Decode(frame)
	req.Nil(derr)
	req.NotNil(ev)

	over := atLimit + "x"
	frame, err = json.Marshal(map[string]string{"type": "message", "room_id": "r1", "content": over})
	req.NoError(err)
	_, derr = Decode(frame)
	req.NotNil(derr)
	req.Contains(derr.Detail, "exceeds")
}

func TestDecodeTypedVariants(t *testing.T) {
	req := require.New(t)

	ev, derr := Decode([]byte(`{"type":"typing","room_id":"r1","is_typing":true}`))
	req.Nil(derr)
	typing := ev.(*model.Typing)
	req.True(typing.IsTyping)

	ev, derr = Decode([]byte(`{"type":"read","room_id":"r1","message_id":42}`))
	req.Nil(derr)
	read := ev.(*model.ReadReceipt)
	req.Equal(int64(42), read.MessageID)

	ev, derr = Decode([]byte(`{"type":"reaction","room_id":"r1","message_id":42,"reaction":"👍","action":"remove"}`))
	req.Nil(derr)
	reaction := ev.(*model.Reaction)
	req.Equal(model.ReactionRemove, reaction.Action)

	ev, derr = Decode([]byte(`{"type":"heartbeat"}`))
	req.Nil(derr)
	_, ok := ev.(*model.Heartbeat)
	req.True(ok)
}

func TestEncodeMessageShape(t *testing.T) {
	req := require.New(t)
	frame, err := Encode(&model.Message{
		ID:           101,
		RoomID:       "r1",
		SenderID:     "alice",
		SenderRole:   "patient",
		Content:      "hi",
		ContentType:  "text",
		SentAt:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Conversation: model.KindGroup,
	})
	req.NoError(err)

	var out map[string]json.RawMessage
	req.NoError(json.Unmarshal(frame, &out))
	req.JSONEq(`"message"`, string(out["type"]))
	req.JSONEq(`"new_message"`, string(out["event"]))

	var msg map[string]any
	req.NoError(json.Unmarshal(out["message"], &msg))
	req.Equal(float64(101), msg["id"])
	req.Equal("group", msg["conversation_type"])
	req.Equal("alice", msg["sender_id"])
	req.NotContains(msg, "client_sent_at", "omitted when the client never set it")
}

func TestEncodeFlatFrames(t *testing.T) {
	req := require.New(t)

	frame, err := Encode(&model.Presence{RoomID: "r1", UserID: "bob", Status: model.PresenceOffline})
	req.NoError(err)
	var out map[string]any
	req.NoError(json.Unmarshal(frame, &out))
	req.Equal("presence", out["type"])
	req.Equal("offline", out["status"])

	frame, err = Encode(&model.ErrorEvent{ErrKind: model.ErrKindRoomClosed, Detail: "room was closed"})
	req.NoError(err)
	out = map[string]any{}
	req.NoError(json.Unmarshal(frame, &out))
	req.Equal("error", out["type"])
	req.Equal("room_closed", out["kind"])
}

func TestEncodeEstablished(t *testing.T) {
	req := require.New(t)
	frame, err := EncodeEstablished("r1", model.KindOneToOne)
	req.NoError(err)
	req.JSONEq(`{"type":"connection_established","room_id":"r1","conversation_type":"one_to_one"}`, string(frame))
}
