// Package hub is the fanout engine: it owns the connection registry, one
// sequencer goroutine per room, and delivery to each member's bounded send
// buffer. All accept/deliver decisions for one room funnel through its
// sequencer, so every subscriber observes the same event order; rooms share
// no lock and proceed fully in parallel.
package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mindcare/realtime/pkg/crisis"
	"github.com/mindcare/realtime/pkg/eventid"
	"github.com/mindcare/realtime/pkg/model"
	"github.com/mindcare/realtime/pkg/room"
	"github.com/mindcare/realtime/pkg/store"
	"github.com/mindcare/realtime/pkg/wire"
)

type Config struct {
	SequencerBuffer int
	PersistAttempts int
	PersistBackoff  time.Duration
}

func (c Config) withDefaults() Config {
	if c.SequencerBuffer <= 0 {
		c.SequencerBuffer = 256
	}
	if c.PersistAttempts <= 0 {
		c.PersistAttempts = 3
	}
	if c.PersistBackoff <= 0 {
		c.PersistBackoff = 200 * time.Millisecond
	}
	return c
}

// Ack confirms a subscription.
type Ack struct {
	RoomID string
	Kind   model.ConversationKind
}

type sequencer struct {
	roomID string
	in     chan model.Event
}

// flushEvent is a barrier: the sequencer signals it once everything
// accepted before it has been processed.
type flushEvent struct {
	roomID string
	done   chan struct{}
}

func (f *flushEvent) Kind() model.EventType { return "flush" }
func (f *flushEvent) Room() string          { return f.roomID }

type Hub struct {
	log      *slog.Logger
	rooms    *room.Index
	registry *Registry
	ids      *eventid.Generator
	hook     *crisis.Hook
	appender store.Appender  // nil disables persistence
	presence PresenceTracker // nil disables the external mirror
	cfg      Config

	mu         sync.RWMutex
	seqs       map[string]*sequencer
	subsByRoom map[string]map[ConnID]Conn
	subsByConn map[ConnID]map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

func New(log *slog.Logger, rooms *room.Index, ids *eventid.Generator, hook *crisis.Hook, appender store.Appender, presence PresenceTracker, cfg Config) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		log:        log,
		rooms:      rooms,
		registry:   NewRegistry(),
		ids:        ids,
		hook:       hook,
		appender:   appender,
		presence:   presence,
		cfg:        cfg.withDefaults(),
		seqs:       make(map[string]*sequencer),
		subsByRoom: make(map[string]map[ConnID]Conn),
		subsByConn: make(map[ConnID]map[string]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (h *Hub) Rooms() *room.Index  { return h.rooms }
func (h *Hub) Registry() *Registry { return h.registry }

// Shutdown stops every sequencer. In-flight sends already in connection
// buffers drain through their write pumps.
func (h *Hub) Shutdown() {
	h.cancel()
}

// Connect registers an authenticated connection and announces presence to
// every room the identity participates in.
func (h *Hub) Connect(c Conn) {
	h.registry.Register(c)
	userID := c.Identity().UserID
	for _, roomID := range h.rooms.RoomsFor(userID) {
		if h.presence != nil {
			logPresenceErr(h.log, "online", roomID, userID, h.presence.SetOnline(h.ctx, roomID, userID))
		}
		h.Accept(&model.Presence{RoomID: roomID, UserID: userID, Status: model.PresenceOnline})
	}
	h.log.Info("connection registered", "conn_id", c.ID(), "user_id", userID)
}

// Disconnect releases a connection's subscriptions and, when it was the
// identity's last connection, announces offline presence. Safe to call more
// than once; only the first call does work.
func (h *Hub) Disconnect(c Conn) {
	h.unsubscribeAll(c.ID())
	gone, last := h.registry.Deregister(c.ID())
	if gone == nil {
		return
	}
	userID := c.Identity().UserID
	h.log.Info("connection deregistered", "conn_id", c.ID(), "user_id", userID, "last", last)
	if !last {
		return
	}
	for _, roomID := range h.rooms.RoomsFor(userID) {
		if h.presence != nil {
			logPresenceErr(h.log, "offline", roomID, userID, h.presence.SetOffline(h.ctx, roomID, userID))
		}
		h.Accept(&model.Presence{RoomID: roomID, UserID: userID, Status: model.PresenceOffline})
	}
}

// Subscribe attaches a connection to a room after authorization. Subscribing
// twice from the same connection returns the existing Ack. The family
// argument pins the endpoint family the client used; a room of the other
// kind is reported as not found so endpoint families stay disjoint.
func (h *Hub) Subscribe(c Conn, roomID string, family model.ConversationKind) (Ack, error) {
	snap, err := h.rooms.Get(roomID)
	if err != nil {
		return Ack{}, err
	}
	if snap.Kind != family {
		return Ack{}, room.ErrNotFound
	}
	if err := h.rooms.Check(c.Identity().UserID, roomID); err != nil {
		return Ack{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subsByRoom[roomID] == nil {
		h.subsByRoom[roomID] = make(map[ConnID]Conn)
	}
	h.subsByRoom[roomID][c.ID()] = c
	if h.subsByConn[c.ID()] == nil {
		h.subsByConn[c.ID()] = make(map[string]struct{})
	}
	h.subsByConn[c.ID()][roomID] = struct{}{}
	return Ack{RoomID: roomID, Kind: snap.Kind}, nil
}

func (h *Hub) Unsubscribe(id ConnID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropSub(id, roomID)
}

// dropSub must be called with h.mu held.
func (h *Hub) dropSub(id ConnID, roomID string) {
	if subs, ok := h.subsByRoom[roomID]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(h.subsByRoom, roomID)
		}
	}
	if rooms, ok := h.subsByConn[id]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(h.subsByConn, id)
		}
	}
}

func (h *Hub) unsubscribeAll(id ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID := range h.subsByConn[id] {
		h.dropSub(id, roomID)
	}
}

// CheckSender verifies that an inbound event's sender is both an authorized
// participant and currently subscribed on this connection.
func (h *Hub) CheckSender(c Conn, roomID string) error {
	if err := h.rooms.Check(c.Identity().UserID, roomID); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.subsByConn[c.ID()][roomID]; !ok {
		return room.ErrNotAParticipant
	}
	return nil
}

// Accept hands a validated event to its room's sequencer. Acceptance order
// is the authoritative order for the room.
func (h *Hub) Accept(ev model.Event) {
	roomID := ev.Room()
	if roomID == "" {
		return
	}
	seq := h.sequencerFor(roomID)
	select {
	case seq.in <- ev:
	case <-h.ctx.Done():
	}
}

func (h *Hub) sequencerFor(roomID string) *sequencer {
	h.mu.RLock()
	seq, ok := h.seqs[roomID]
	h.mu.RUnlock()
	if ok {
		return seq
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if seq, ok = h.seqs[roomID]; ok {
		return seq
	}
	seq = &sequencer{roomID: roomID, in: make(chan model.Event, h.cfg.SequencerBuffer)}
	h.seqs[roomID] = seq
	go h.runSequencer(seq)
	return seq
}

func (h *Hub) runSequencer(seq *sequencer) {
	for {
		select {
		case <-h.ctx.Done():
			return
		case ev := <-seq.in:
			h.process(seq.roomID, ev)
		}
	}
}

// process runs on the room's single sequencer goroutine: id assignment,
// crisis interception, one encode, fanout, persistence request.
func (h *Hub) process(roomID string, ev model.Event) {
	if f, ok := ev.(*flushEvent); ok {
		close(f.done)
		return
	}

	snap, err := h.rooms.Get(roomID)
	if err != nil || snap.Closed {
		h.log.Debug("dropping event for unavailable room", "room_id", roomID, "kind", ev.Kind())
		return
	}

	switch e := ev.(type) {
	case *model.Message:
		e.ID = h.ids.Next()
		e.SentAt = time.Now()
		e.Conversation = snap.Kind
		res := h.hook.Intercept(h.ctx, e)
		if res.Outcome == crisis.Hold {
			h.errorToSender(e.SenderID, roomID, &model.ErrorEvent{
				ErrKind: model.ErrKindMessageHeld,
				Detail:  "message was not delivered: " + res.HoldReason,
			})
			return
		}
	case *model.ReadReceipt:
		e.ID = h.ids.Next()
	case *model.Reaction:
		e.ID = h.ids.Next()
	}

	frame, err := wire.Encode(ev)
	if err != nil {
		h.log.Error("failed to encode event", "room_id", roomID, "kind", ev.Kind(), "err", err)
		return
	}

	h.deliver(roomID, snap.Participants, frame)

	if rec, ok := store.NewRecord(ev); ok && h.appender != nil {
		go h.persist(rec)
	}
}

// deliver fans one encoded frame out to every subscribed connection whose
// identity is still an authorized participant at this instant. The record
// map deduplicates within this delivery attempt; a full send buffer evicts
// that connection instead of blocking the room.
func (h *Hub) deliver(roomID string, participants []string, frame []byte) {
	members := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		members[p] = struct{}{}
	}

	h.mu.RLock()
	targets := make([]Conn, 0, len(h.subsByRoom[roomID]))
	for _, c := range h.subsByRoom[roomID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := make(map[ConnID]struct{}, len(targets))
	for _, c := range targets {
		if _, done := delivered[c.ID()]; done {
			continue
		}
		if _, member := members[c.Identity().UserID]; !member {
			continue
		}
		if c.Enqueue(frame) {
			delivered[c.ID()] = struct{}{}
			continue
		}
		h.log.Warn("evicting slow consumer", "conn_id", c.ID(), "user_id", c.Identity().UserID, "room_id", roomID)
		// Disconnect re-enters Accept with offline presence when this is
		// the identity's last connection; on this goroutine that send can
		// block on the room's own full sequencer channel. Evict off the
		// sequencer so the room keeps draining.
		go func(c Conn) {
			h.Disconnect(c)
			c.Kick(model.CloseSlowConsumer)
		}(c)
	}
}

func (h *Hub) persist(rec store.Record) {
	ctx, cancel := context.WithTimeout(h.ctx, 30*time.Second)
	defer cancel()
	if err := store.AppendWithRetry(ctx, h.appender, rec, h.cfg.PersistAttempts, h.cfg.PersistBackoff); err != nil {
		// Live delivery already succeeded; this is for operations, not the sender.
		h.log.Error("event persistence failed", "room_id", rec.RoomID, "event_id", rec.ID, "err", err)
	}
}

// errorToSender delivers an error event to the sender's connections
// subscribed to the room, and to nobody else.
func (h *Hub) errorToSender(userID, roomID string, ev *model.ErrorEvent) {
	frame, err := wire.Encode(ev)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.subsByRoom[roomID] {
		if c.Identity().UserID == userID {
			c.Enqueue(frame)
		}
	}
}

// AddParticipant grants a user access to a group room. The actor must hold
// the moderator capability.
func (h *Hub) AddParticipant(actor, roomID, userID string) error {
	return h.rooms.AddParticipant(actor, roomID, userID)
}

// RemoveParticipant revokes a user's access to a group room, invalidates
// their subscriptions on every live connection immediately, and announces
// Presence{removed} to the remaining members.
func (h *Hub) RemoveParticipant(actor, roomID, userID string) error {
	if err := h.rooms.RemoveParticipant(actor, roomID, userID); err != nil {
		return err
	}

	h.mu.Lock()
	for id, c := range h.subsByRoom[roomID] {
		if c.Identity().UserID == userID {
			h.dropSub(id, roomID)
		}
	}
	h.mu.Unlock()

	if h.presence != nil {
		logPresenceErr(h.log, "offline", roomID, userID, h.presence.SetOffline(h.ctx, roomID, userID))
	}
	h.Accept(&model.Presence{RoomID: roomID, UserID: userID, Status: model.PresenceRemoved})
	return nil
}

// flush blocks until the room's sequencer has processed every event
// accepted before this call.
func (h *Hub) flush(roomID string) {
	f := &flushEvent{roomID: roomID, done: make(chan struct{})}
	h.Accept(f)
	select {
	case <-f.done:
	case <-h.ctx.Done():
	}
}

// CloseRoom closes a room and kicks its subscribers with the room-removed
// close code. In-flight events drain before anyone is kicked.
func (h *Hub) CloseRoom(roomID string) error {
	if err := h.rooms.Close(roomID); err != nil {
		return err
	}
	h.flush(roomID)

	h.mu.Lock()
	conns := make([]Conn, 0, len(h.subsByRoom[roomID]))
	for id, c := range h.subsByRoom[roomID] {
		conns = append(conns, c)
		h.dropSub(id, roomID)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Kick(model.CloseRoomRemoved)
	}
	return nil
}
