// Package wire parses inbound websocket frames into typed events and
// serializes outbound events. Decoding never panics past this boundary:
// every malformed frame is converted into a DecodeError that the gateway
// turns into an error event for the originating connection only.
package wire

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mindcare/realtime/pkg/model"
)

// MaxContentRunes bounds message content length.
const MaxContentRunes = 4000

type DecodeError struct {
	ErrKind string
	Detail  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrKind, e.Detail)
}

func malformed(format string, args ...any) *DecodeError {
	return &DecodeError{ErrKind: model.ErrKindMalformedFrame, Detail: fmt.Sprintf(format, args...)}
}

// frame is the superset of all inbound frame fields.
type frame struct {
	Type         string            `json:"type"`
	RoomID       string            `json:"room_id,omitempty"`
	Content      string            `json:"content,omitempty"`
	ContentType  string            `json:"content_type,omitempty"`
	ClientSentAt time.Time         `json:"client_sent_at,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	IsTyping     bool              `json:"is_typing,omitempty"`
	MessageID    int64             `json:"message_id,omitempty"`
	Reaction     string            `json:"reaction,omitempty"`
	Action       string            `json:"action,omitempty"`
}

// Decode validates a raw inbound frame and returns the typed event. Sender
// identity and room id are stamped by the gateway afterwards; the codec only
// trusts the frame's syntax, never its claims.
func Decode(raw []byte) (model.Event, *DecodeError) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, malformed("invalid json: %v", err)
	}
	if f.Type == "" {
		return nil, malformed("missing type discriminant")
	}

	switch model.EventType(f.Type) {
	case model.TypeMessage:
		if f.Content == "" {
			return nil, malformed("message content must not be empty")
		}
		if utf8.RuneCountInString(f.Content) > MaxContentRunes {
			return nil, malformed("message content exceeds %d characters", MaxContentRunes)
		}
		contentType := f.ContentType
		if contentType == "" {
			contentType = "text"
		}
		return &model.Message{
			RoomID:       f.RoomID,
			Content:      f.Content,
			ContentType:  contentType,
			ClientSentAt: f.ClientSentAt,
			Metadata:     f.Metadata,
		}, nil
	case model.TypeTyping:
		return &model.Typing{RoomID: f.RoomID, IsTyping: f.IsTyping}, nil
	case model.TypeRead:
		if f.MessageID == 0 {
			return nil, malformed("read receipt requires message_id")
		}
		return &model.ReadReceipt{RoomID: f.RoomID, MessageID: f.MessageID}, nil
	case model.TypeReaction:
		if f.MessageID == 0 {
			return nil, malformed("reaction requires message_id")
		}
		if f.Reaction == "" {
			return nil, malformed("reaction requires a reaction kind")
		}
		action := model.ReactionAction(f.Action)
		if action != model.ReactionAdd && action != model.ReactionRemove {
			return nil, malformed("reaction action must be add or remove, got %q", f.Action)
		}
		return &model.Reaction{RoomID: f.RoomID, MessageID: f.MessageID, Reaction: f.Reaction, Action: action}, nil
	case model.TypeHeartbeat:
		return &model.Heartbeat{}, nil
	default:
		return nil, malformed("unrecognized type %q", f.Type)
	}
}

type outMessage struct {
	ID           int64             `json:"id"`
	RoomID       string            `json:"room_id"`
	SenderID     string            `json:"sender_id"`
	SenderRole   string            `json:"sender_role,omitempty"`
	Content      string            `json:"content"`
	ContentType  string            `json:"content_type"`
	ClientSentAt *time.Time        `json:"client_sent_at,omitempty"`
	SentAt       time.Time         `json:"sent_at"`
	Conversation string            `json:"conversation_type"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type outFrame struct {
	Type      string      `json:"type"`
	Event     string      `json:"event,omitempty"`
	Message   *outMessage `json:"message,omitempty"`
	RoomID    string      `json:"room_id,omitempty"`
	UserID    string      `json:"user_id,omitempty"`
	IsTyping  *bool       `json:"is_typing,omitempty"`
	MessageID int64       `json:"message_id,omitempty"`
	Reaction  string      `json:"reaction,omitempty"`
	Action    string      `json:"action,omitempty"`
	Status    string      `json:"status,omitempty"`
	Kind      string      `json:"kind,omitempty"`
	Detail    string      `json:"detail,omitempty"`
}

// Encode serializes an outbound event. Message frames carry the
// conversation_type tag so clients need no prior knowledge of the room kind.
func Encode(ev model.Event) ([]byte, error) {
	var out outFrame
	switch e := ev.(type) {
	case *model.Message:
		m := outMessage{
			ID:           e.ID,
			RoomID:       e.RoomID,
			SenderID:     e.SenderID,
			SenderRole:   e.SenderRole,
			Content:      e.Content,
			ContentType:  e.ContentType,
			SentAt:       e.SentAt,
			Conversation: string(e.Conversation),
			Metadata:     e.Metadata,
		}
		if !e.ClientSentAt.IsZero() {
			t := e.ClientSentAt
			m.ClientSentAt = &t
		}
		out = outFrame{Type: string(model.TypeMessage), Event: "new_message", Message: &m}
	case *model.Typing:
		out = outFrame{Type: string(model.TypeTyping), RoomID: e.RoomID, UserID: e.SenderID, IsTyping: &e.IsTyping}
	case *model.ReadReceipt:
		out = outFrame{Type: string(model.TypeRead), RoomID: e.RoomID, UserID: e.SenderID, MessageID: e.MessageID}
	case *model.Reaction:
		out = outFrame{Type: string(model.TypeReaction), RoomID: e.RoomID, UserID: e.SenderID, MessageID: e.MessageID, Reaction: e.Reaction, Action: string(e.Action)}
	case *model.Presence:
		out = outFrame{Type: string(model.TypePresence), RoomID: e.RoomID, UserID: e.UserID, Status: string(e.Status)}
	case *model.Heartbeat:
		out = outFrame{Type: string(model.TypeHeartbeat)}
	case *model.ErrorEvent:
		out = outFrame{Type: string(model.TypeError), Kind: e.ErrKind, Detail: e.Detail}
	default:
		return nil, fmt.Errorf("wire: cannot encode event type %q", ev.Kind())
	}
	return json.Marshal(out)
}

// EncodeEstablished builds the greeting frame sent after a successful
// subscribe.
func EncodeEstablished(roomID string, kind model.ConversationKind) ([]byte, error) {
	return json.Marshal(struct {
		Type         string `json:"type"`
		RoomID       string `json:"room_id"`
		Conversation string `json:"conversation_type"`
	}{string(model.TypeEstablished), roomID, string(kind)})
}
