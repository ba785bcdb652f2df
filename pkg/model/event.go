package model

import "time"

type EventType string

const (
	TypeMessage     EventType = "message"
	TypeTyping      EventType = "typing"
	TypeRead        EventType = "read"
	TypeReaction    EventType = "reaction"
	TypePresence    EventType = "presence"
	TypeHeartbeat   EventType = "heartbeat"
	TypeError       EventType = "error"
	TypeEstablished EventType = "connection_established"
)

type ConversationKind string

const (
	KindOneToOne ConversationKind = "one_to_one"
	KindGroup    ConversationKind = "group"
)

type ReactionAction string

const (
	ReactionAdd    ReactionAction = "add"
	ReactionRemove ReactionAction = "remove"
)

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
	PresenceRemoved PresenceStatus = "removed"
)

// Identity is the authenticated owner of a connection.
type Identity struct {
	UserID string
	Role   string
}

// Event is the discriminated union carried between clients and rooms.
// Every variant except Heartbeat and Error is addressed to a room and is
// validated against that room's membership before delivery.
type Event interface {
	Kind() EventType
	Room() string
}

type Message struct {
	ID           int64
	RoomID       string
	SenderID     string
	SenderRole   string
	Content      string
	ContentType  string
	ClientSentAt time.Time
	SentAt       time.Time // server-assigned, authoritative
	Metadata     map[string]string
	Conversation ConversationKind
}

func (m *Message) Kind() EventType { return TypeMessage }
func (m *Message) Room() string    { return m.RoomID }

type Typing struct {
	RoomID   string
	SenderID string
	IsTyping bool
}

func (t *Typing) Kind() EventType { return TypeTyping }
func (t *Typing) Room() string    { return t.RoomID }

type ReadReceipt struct {
	ID        int64
	RoomID    string
	SenderID  string
	MessageID int64
}

func (r *ReadReceipt) Kind() EventType { return TypeRead }
func (r *ReadReceipt) Room() string    { return r.RoomID }

type Reaction struct {
	ID        int64
	RoomID    string
	SenderID  string
	MessageID int64
	Reaction  string
	Action    ReactionAction
}

func (r *Reaction) Kind() EventType { return TypeReaction }
func (r *Reaction) Room() string    { return r.RoomID }

type Presence struct {
	RoomID string
	UserID string
	Status PresenceStatus
}

func (p *Presence) Kind() EventType { return TypePresence }
func (p *Presence) Room() string    { return p.RoomID }

type Heartbeat struct{}

func (h *Heartbeat) Kind() EventType { return TypeHeartbeat }
func (h *Heartbeat) Room() string    { return "" }

// ErrorEvent is delivered to the originating connection only.
type ErrorEvent struct {
	ErrKind string
	Detail  string
}

func (e *ErrorEvent) Kind() EventType { return TypeError }
func (e *ErrorEvent) Room() string    { return "" }

// Error kinds surfaced to clients.
const (
	ErrKindMalformedFrame  = "malformed_frame"
	ErrKindRoomNotFound    = "room_not_found"
	ErrKindNotAParticipant = "not_a_participant"
	ErrKindRoomClosed      = "room_closed"
	ErrKindMessageHeld     = "message_held"
	ErrKindInternal        = "internal_error"
)
