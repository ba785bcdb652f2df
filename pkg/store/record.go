// Package store adapts the durable event store. Accepted events that must
// survive reconnect (messages, read receipts, reactions) are published to
// Kafka by the gateway and written to Scylla by the archiver; replay reads
// straight from Scylla.
package store

import (
	"time"

	"github.com/mindcare/realtime/pkg/model"
)

// Record is the persisted shape of a durable event, flat enough for both
// the Kafka payload and the room_events table.
type Record struct {
	RoomID       string                 `json:"room_id"`
	ID           int64                  `json:"id"`
	Kind         model.EventType        `json:"kind"`
	SenderID     string                 `json:"sender_id"`
	SenderRole   string                 `json:"sender_role,omitempty"`
	MessageID    int64                  `json:"message_id,omitempty"`
	Content      string                 `json:"content,omitempty"`
	ContentType  string                 `json:"content_type,omitempty"`
	Reaction     string                 `json:"reaction,omitempty"`
	Action       string                 `json:"action,omitempty"`
	Conversation model.ConversationKind `json:"conversation_type,omitempty"`
	SentAt       time.Time              `json:"sent_at"`
}

// NewRecord converts a durable event kind into its record. Ephemeral kinds
// (typing, presence, heartbeat) report false and are never persisted.
func NewRecord(ev model.Event) (Record, bool) {
	switch e := ev.(type) {
	case *model.Message:
		return Record{
			RoomID:       e.RoomID,
			ID:           e.ID,
			Kind:         model.TypeMessage,
			SenderID:     e.SenderID,
			SenderRole:   e.SenderRole,
			Content:      e.Content,
			ContentType:  e.ContentType,
			Conversation: e.Conversation,
			SentAt:       e.SentAt,
		}, true
	case *model.ReadReceipt:
		return Record{
			RoomID:    e.RoomID,
			ID:        e.ID,
			Kind:      model.TypeRead,
			SenderID:  e.SenderID,
			MessageID: e.MessageID,
		}, true
	case *model.Reaction:
		return Record{
			RoomID:    e.RoomID,
			ID:        e.ID,
			Kind:      model.TypeReaction,
			SenderID:  e.SenderID,
			MessageID: e.MessageID,
			Reaction:  e.Reaction,
			Action:    string(e.Action),
		}, true
	default:
		return Record{}, false
	}
}

func kindOf(s string) model.EventType {
	switch model.EventType(s) {
	case model.TypeRead:
		return model.TypeRead
	case model.TypeReaction:
		return model.TypeReaction
	default:
		return model.TypeMessage
	}
}

func conversationOf(s string) model.ConversationKind {
	if model.ConversationKind(s) == model.KindGroup {
		return model.KindGroup
	}
	return model.KindOneToOne
}

// Event rebuilds the typed event for replay delivery.
func (r Record) Event() model.Event {
	switch r.Kind {
	case model.TypeRead:
		return &model.ReadReceipt{ID: r.ID, RoomID: r.RoomID, SenderID: r.SenderID, MessageID: r.MessageID}
	case model.TypeReaction:
		return &model.Reaction{ID: r.ID, RoomID: r.RoomID, SenderID: r.SenderID, MessageID: r.MessageID, Reaction: r.Reaction, Action: model.ReactionAction(r.Action)}
	default:
		return &model.Message{
			ID:           r.ID,
			RoomID:       r.RoomID,
			SenderID:     r.SenderID,
			SenderRole:   r.SenderRole,
			Content:      r.Content,
			ContentType:  r.ContentType,
			Conversation: r.Conversation,
			SentAt:       r.SentAt,
		}
	}
}
