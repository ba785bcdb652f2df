package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/mindcare/realtime/pkg/auth"
	"github.com/mindcare/realtime/pkg/eventid"
	"github.com/mindcare/realtime/pkg/hub"
	"github.com/mindcare/realtime/pkg/model"
	"github.com/mindcare/realtime/pkg/room"
)

func newGatewayServer(t *testing.T, rooms *room.Index) *httptest.Server {
	t.Helper()
	ids, err := eventid.NewGenerator(1)
	require.NoError(t, err)
	h := hub.New(slog.Default(), rooms, ids, nil, nil, nil, hub.Config{})
	t.Cleanup(h.Shutdown)

	cfg := Config{SendBuffer: 16, HeartbeatInterval: 5 * time.Second}
	log := slog.Default()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/one-to-one/{room}", func(w http.ResponseWriter, r *http.Request) {
		serveWs(h, nil, cfg, model.KindOneToOne, log, w, r)
	})
	mux.HandleFunc("GET /ws/group/{room}", func(w http.ResponseWriter, r *http.Request) {
		serveWs(h, nil, cfg, model.KindGroup, log, w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, path, token string) string {
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}

func TestHandshakeDeliversGreeting(t *testing.T) {
	req := require.New(t)
	rooms := room.NewIndex()
	req.NoError(rooms.CreatePairwise("p1", "alice", "bob"))
	srv := newGatewayServer(t, rooms)

	token, err := auth.GenerateToken("alice", "patient")
	req.NoError(err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/one-to-one/p1", token), nil)
	req.NoError(err)
	defer conn.Close()

	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, raw, err := conn.ReadMessage()
	req.NoError(err)

	var greeting struct {
		Type         string `json:"type"`
		RoomID       string `json:"room_id"`
		Conversation string `json:"conversation_type"`
	}
	req.NoError(json.Unmarshal(raw, &greeting))
	req.Equal(string(model.TypeEstablished), greeting.Type)
	req.Equal("p1", greeting.RoomID)
	req.Equal("one_to_one", greeting.Conversation)
}

func TestHandshakeRejectsBadCredentials(t *testing.T) {
	req := require.New(t)
	rooms := room.NewIndex()
	req.NoError(rooms.CreatePairwise("p1", "alice", "bob"))
	srv := newGatewayServer(t, rooms)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/one-to-one/p1", ""), nil)
	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "/ws/one-to-one/p1", "garbage"), nil)
	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestHandshakeClosesNonParticipantAfterUpgrade(t *testing.T) {
	req := require.New(t)
	rooms := room.NewIndex()
	req.NoError(rooms.CreatePairwise("p1", "alice", "bob"))
	srv := newGatewayServer(t, rooms)

	token, err := auth.GenerateToken("mallory", "patient")
	req.NoError(err)

	// The upgrade succeeds so the close code can carry the rejection.
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/one-to-one/p1", token), nil)
	req.NoError(err)
	defer conn.Close()

	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err = conn.ReadMessage()
	req.True(websocket.IsCloseError(err, model.CloseNotParticipant.Code()), "got %v", err)
}

func TestHandshakeClosesRemovedRoom(t *testing.T) {
	req := require.New(t)
	rooms := room.NewIndex()
	req.NoError(rooms.CreatePairwise("p1", "alice", "bob"))
	req.NoError(rooms.Close("p1"))
	srv := newGatewayServer(t, rooms)

	token, err := auth.GenerateToken("alice", "patient")
	req.NoError(err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/one-to-one/p1", token), nil)
	req.NoError(err)
	defer conn.Close()

	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err = conn.ReadMessage()
	req.True(websocket.IsCloseError(err, model.CloseRoomRemoved.Code()), "got %v", err)
}
