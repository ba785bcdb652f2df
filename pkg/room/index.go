// Package room tracks conversation rooms and their authorized participants.
// Pairwise rooms have exactly two participants and immutable membership;
// group rooms have at least two and moderator-controlled add/remove.
package room

import (
	"errors"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/mindcare/realtime/pkg/model"
)

var (
	ErrNotFound        = errors.New("room not found")
	ErrNotAParticipant = errors.New("not a participant")
	ErrClosed          = errors.New("room closed")
	ErrNotModerator    = errors.New("moderator capability required")
	ErrPairwiseFixed   = errors.New("pairwise room membership is immutable")
	ErrInvalidMembers  = errors.New("invalid member set")
	ErrAlreadyExists   = errors.New("room already exists")
)

type Room struct {
	ID           string
	Kind         model.ConversationKind
	Name         string
	CreatedAt    time.Time
	participants map[string]struct{}
	moderators   map[string]struct{}
	closed       bool
}

// Snapshot is a consistent read of a room's membership, safe to use during
// fanout while the index mutates concurrently.
type Snapshot struct {
	ID           string
	Kind         model.ConversationKind
	Participants []string
	Closed       bool
}

type Index struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewIndex() *Index {
	return &Index{rooms: make(map[string]*Room)}
}

// CreatePairwise creates a one-to-one room between two distinct users.
func (ix *Index) CreatePairwise(id, userA, userB string) error {
	if userA == "" || userB == "" || userA == userB {
		return ErrInvalidMembers
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.rooms[id]; ok {
		return ErrAlreadyExists
	}
	ix.rooms[id] = &Room{
		ID:           id,
		Kind:         model.KindOneToOne,
		CreatedAt:    time.Now(),
		participants: map[string]struct{}{userA: {}, userB: {}},
		moderators:   map[string]struct{}{},
	}
	return nil
}

// CreateGroup creates a multi-party room. The creator becomes a moderator
// and total membership must be at least two.
func (ix *Index) CreateGroup(id, name, creator string, members []string) error {
	if creator == "" {
		return ErrInvalidMembers
	}
	participants := map[string]struct{}{creator: {}}
	for _, m := range members {
		if m != "" {
			participants[m] = struct{}{}
		}
	}
	if len(participants) < 2 {
		return ErrInvalidMembers
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.rooms[id]; ok {
		return ErrAlreadyExists
	}
	ix.rooms[id] = &Room{
		ID:           id,
		Kind:         model.KindGroup,
		Name:         name,
		CreatedAt:    time.Now(),
		participants: participants,
		moderators:   map[string]struct{}{creator: {}},
	}
	return nil
}

// Authorize reports whether the user is currently an authorized participant
// of an open room.
func (ix *Index) Authorize(userID, roomID string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	r, ok := ix.rooms[roomID]
	if !ok || r.closed {
		return false
	}
	_, member := r.participants[userID]
	return member
}

// Check classifies why a user may not interact with a room; nil means
// authorized.
func (ix *Index) Check(userID, roomID string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	r, ok := ix.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	if r.closed {
		return ErrClosed
	}
	if _, member := r.participants[userID]; !member {
		return ErrNotAParticipant
	}
	return nil
}

// Get returns a membership snapshot.
func (ix *Index) Get(roomID string) (Snapshot, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	r, ok := ix.rooms[roomID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return Snapshot{
		ID:           r.ID,
		Kind:         r.Kind,
		Participants: lo.Keys(r.participants),
		Closed:       r.closed,
	}, nil
}

// AddParticipant adds a user to a group room. The actor must hold the
// moderator capability for that room.
func (ix *Index) AddParticipant(actor, roomID, userID string) error {
	if userID == "" {
		return ErrInvalidMembers
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	r, ok := ix.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	if r.closed {
		return ErrClosed
	}
	if r.Kind == model.KindOneToOne {
		return ErrPairwiseFixed
	}
	if _, mod := r.moderators[actor]; !mod {
		return ErrNotModerator
	}
	r.participants[userID] = struct{}{}
	return nil
}

// RemoveParticipant removes a user from a group room.
func (ix *Index) RemoveParticipant(actor, roomID, userID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	r, ok := ix.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	if r.closed {
		return ErrClosed
	}
	if r.Kind == model.KindOneToOne {
		return ErrPairwiseFixed
	}
	if _, mod := r.moderators[actor]; !mod {
		return ErrNotModerator
	}
	if _, member := r.participants[userID]; !member {
		return ErrNotAParticipant
	}
	// A group keeps at least two participants and one moderator; shrinking
	// past that goes through Close instead.
	if len(r.participants) <= 2 {
		return ErrInvalidMembers
	}
	if _, mod := r.moderators[userID]; mod && len(r.moderators) == 1 {
		return ErrInvalidMembers
	}
	delete(r.participants, userID)
	delete(r.moderators, userID)
	return nil
}

// Close marks a room closed. Further subscriptions and events are rejected.
func (ix *Index) Close(roomID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	r, ok := ix.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	r.closed = true
	return nil
}

// RoomsFor lists open rooms the user participates in, used for presence
// fanout on connect/disconnect.
func (ix *Index) RoomsFor(userID string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var ids []string
	for id, r := range ix.rooms {
		if r.closed {
			continue
		}
		if _, member := r.participants[userID]; member {
			ids = append(ids, id)
		}
	}
	return ids
}

// IsModerator reports whether the user holds the moderator capability.
func (ix *Index) IsModerator(userID, roomID string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	r, ok := ix.rooms[roomID]
	if !ok {
		return false
	}
	_, mod := r.moderators[userID]
	return mod
}
