package main

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mindcare/realtime/pkg/auth"
	"github.com/mindcare/realtime/pkg/hub"
	"github.com/mindcare/realtime/pkg/model"
	"github.com/mindcare/realtime/pkg/room"
	"github.com/mindcare/realtime/pkg/session"
	"github.com/mindcare/realtime/pkg/store"
	"github.com/mindcare/realtime/pkg/wire"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Accepted deliveries still in the buffer get this long to flush
	// before the close frame goes out.
	drainGrace = 5 * time.Second

	// Maximum inbound frame size. Content length is bounded separately by
	// the codec; this caps the raw transport read.
	maxFrameSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the platform fronts this with its own origin policy
	},
}

// Client owns one websocket connection: the read pump decodes and stamps
// inbound events, the write pump flushes the hub's deliveries and enforces
// heartbeat liveness.
type Client struct {
	id       hub.ConnID
	identity model.Identity
	roomID   string
	conn     *websocket.Conn
	h        *hub.Hub
	machine  *session.Machine
	beats    *session.Beats
	send     chan []byte
	log      *slog.Logger

	quit     chan struct{}
	quitOnce sync.Once
}

func newClient(h *hub.Hub, conn *websocket.Conn, identity model.Identity, roomID string, cfg Config, log *slog.Logger) *Client {
	id := hub.NewConnID()
	return &Client{
		id:       id,
		identity: identity,
		roomID:   roomID,
		conn:     conn,
		h:        h,
		machine:  session.NewMachine(),
		beats:    session.NewBeats(cfg.HeartbeatInterval, time.Now()),
		send:     make(chan []byte, cfg.SendBuffer),
		log:      log.With("conn_id", id, "user_id", identity.UserID, "room_id", roomID),
		quit:     make(chan struct{}),
	}
}

func (c *Client) ID() hub.ConnID           { return c.id }
func (c *Client) Identity() model.Identity { return c.identity }

// Enqueue buffers one outbound frame. A full buffer reports false so the
// hub can evict; a closing connection absorbs the frame silently.
func (c *Client) Enqueue(frame []byte) bool {
	select {
	case <-c.quit:
		return true
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) Kick(reason model.CloseReason) {
	c.shutdown(reason)
}

// shutdown wins the Active->Closing transition at most once: the winner
// releases hub subscriptions and signals the write pump to drain and close.
func (c *Client) shutdown(reason model.CloseReason) {
	if !c.machine.BeginClose(reason) {
		return
	}
	c.h.Disconnect(c)
	c.quitOnce.Do(func() { close(c.quit) })
}

func (c *Client) sendError(ev *model.ErrorEvent) {
	frame, err := wire.Encode(ev)
	if err != nil {
		return
	}
	c.Enqueue(frame)
}

// rejectionError maps a room authorization failure onto the error event
// surfaced to the sender only.
func rejectionError(err error) *model.ErrorEvent {
	switch {
	case err == room.ErrNotFound:
		return &model.ErrorEvent{ErrKind: model.ErrKindRoomNotFound, Detail: "room not found"}
	case err == room.ErrClosed:
		return &model.ErrorEvent{ErrKind: model.ErrKindRoomClosed, Detail: "room is closed"}
	default:
		return &model.ErrorEvent{ErrKind: model.ErrKindNotAParticipant, Detail: "not a participant of this room"}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.shutdown(model.CloseNormal)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(c.beats.Deadline(time.Now()))
	c.conn.SetPongHandler(func(string) error {
		now := time.Now()
		c.beats.Observe(now)
		return c.conn.SetReadDeadline(c.beats.Deadline(now))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("read failed", "err", err)
			}
			return
		}

		ev, derr := wire.Decode(raw)
		if derr != nil {
			c.sendError(&model.ErrorEvent{ErrKind: derr.ErrKind, Detail: derr.Detail})
			continue
		}

		// The connection is bound to one room by its endpoint; the frame's
		// own room claim is never trusted.
		switch e := ev.(type) {
		case *model.Heartbeat:
			now := time.Now()
			c.beats.Observe(now)
			c.conn.SetReadDeadline(c.beats.Deadline(now))
			continue
		case *model.Message:
			e.RoomID = c.roomID
			e.SenderID = c.identity.UserID
			e.SenderRole = c.identity.Role
		case *model.Typing:
			e.RoomID = c.roomID
			e.SenderID = c.identity.UserID
		case *model.ReadReceipt:
			e.RoomID = c.roomID
			e.SenderID = c.identity.UserID
		case *model.Reaction:
			e.RoomID = c.roomID
			e.SenderID = c.identity.UserID
		}

		if err := c.h.CheckSender(c, c.roomID); err != nil {
			c.sendError(rejectionError(err))
			continue
		}
		c.h.Accept(ev)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.beats.Interval())
	defer func() {
		ticker.Stop()
		c.shutdown(model.CloseNormal)
		c.machine.Finish()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			now := time.Now()
			if c.beats.Tick(now) {
				c.log.Info("closing connection after two missed heartbeat intervals")
				c.shutdown(model.CloseHeartbeatTimeout)
				continue
			}
			c.conn.SetWriteDeadline(now.Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.quit:
			c.drainAndClose()
			return
		}
	}
}

// drainAndClose flushes already-accepted deliveries up to a grace deadline,
// then sends the close frame carrying the recorded reason's code.
func (c *Client) drainAndClose() {
	deadline := time.Now().Add(drainGrace)
	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(deadline)
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			reason := c.machine.CloseReason()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(reason.Code(), string(reason)))
			return
		}
	}
}

// replay streams persisted room history after the given event id to this
// connection only. Frames may duplicate live delivery; clients deduplicate
// by event id.
func (c *Client) replay(replayer store.Replayer, sinceID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	recs, err := replayer.Replay(ctx, c.roomID, sinceID)
	if err != nil {
		c.log.Error("history replay failed", "since", sinceID, "err", err)
		c.sendError(&model.ErrorEvent{ErrKind: model.ErrKindInternal, Detail: "history replay unavailable"})
		return
	}
	for _, rec := range recs {
		frame, err := wire.Encode(rec.Event())
		if err != nil {
			continue
		}
		c.Enqueue(frame)
	}
}

// serveWs runs the session handshake for one websocket request: verify the
// credential, upgrade, authorize against the room, then hand the connection
// to the hub.
func serveWs(h *hub.Hub, replayer store.Replayer, cfg Config, family model.ConversationKind, log *slog.Logger, w http.ResponseWriter, r *http.Request) {
	token := auth.BearerToken(r)
	if token == "" {
		http.Error(w, "authorization required", http.StatusUnauthorized)
		return
	}
	identity, err := auth.Verify(token)
	if err != nil {
		// Expired and malformed credentials are distinguishable to the
		// client before any room interaction.
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	roomID := r.PathValue("room")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "err", err)
		return
	}

	c := newClient(h, conn, identity, roomID, cfg, log)
	if err := c.machine.BeginAuth(); err != nil {
		c.log.Error("illegal session transition", "to", "authenticating", "err", err)
	}

	ack, err := h.Subscribe(c, roomID, family)
	if err != nil {
		if rerr := c.machine.Reject(); rerr != nil {
			c.log.Error("illegal session transition", "to", "rejected", "err", rerr)
		}
		reason := model.CloseNotParticipant
		if err == room.ErrClosed {
			reason = model.CloseRoomRemoved
		}
		c.log.Info("subscription rejected", "err", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(reason.Code(), string(reason)), time.Now().Add(writeWait))
		conn.Close()
		return
	}

	if err := c.machine.Activate(); err != nil {
		c.log.Error("illegal session transition", "to", "active", "err", err)
	}
	h.Connect(c)
	go c.writePump()
	go c.readPump()

	if greeting, gerr := wire.EncodeEstablished(ack.RoomID, ack.Kind); gerr == nil {
		c.Enqueue(greeting)
	}

	if since := r.URL.Query().Get("since"); since != "" && replayer != nil {
		sinceID, perr := strconv.ParseInt(since, 10, 64)
		if perr != nil {
			c.sendError(&model.ErrorEvent{ErrKind: model.ErrKindMalformedFrame, Detail: "since must be an event id"})
			return
		}
		go c.replay(replayer, sinceID)
	}
}
