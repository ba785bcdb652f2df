package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mindcare/realtime/pkg/auth"
	"github.com/mindcare/realtime/pkg/model"
	"github.com/mindcare/realtime/pkg/store"
)

type fakeReplayer struct {
	recs []store.Record
}

func (f fakeReplayer) Replay(ctx context.Context, roomID string, sinceID int64) ([]store.Record, error) {
	return f.recs, nil
}

type fakeMembership struct {
	members map[string]bool
	err     error
}

func (f fakeMembership) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	return f.members[roomID+"/"+userID], f.err
}

func historyGet(handler http.HandlerFunc, target, userID string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	if userID != "" {
		r = r.WithContext(auth.WithIdentity(r.Context(), model.Identity{UserID: userID, Role: "patient"}))
	}
	w := httptest.NewRecorder()
	handler(w, r)
	return w
}

func TestHistoryVisibleToParticipantsOnly(t *testing.T) {
	req := require.New(t)
	replayer := fakeReplayer{recs: []store.Record{
		{RoomID: "r1", ID: 7, Kind: model.TypeMessage, SenderID: "alice", Content: "hello"},
	}}
	members := fakeMembership{members: map[string]bool{"r1/alice": true, "r1/bob": true}}
	handler := historyHandler(replayer, members, slog.Default())

	w := historyGet(handler, "/history?room_id=r1", "alice")
	req.Equal(http.StatusOK, w.Code)
	var recs []store.Record
	req.NoError(json.Unmarshal(w.Body.Bytes(), &recs))
	req.Len(recs, 1)
	req.Equal("hello", recs[0].Content)

	// Authenticated but not a member of r1.
	w = historyGet(handler, "/history?room_id=r1", "mallory")
	req.Equal(http.StatusForbidden, w.Code)

	w = historyGet(handler, "/history?room_id=r1", "")
	req.Equal(http.StatusUnauthorized, w.Code)

	w = historyGet(handler, "/history", "alice")
	req.Equal(http.StatusBadRequest, w.Code)
}

func TestHistoryDeniesWhenMembershipUnavailable(t *testing.T) {
	req := require.New(t)
	members := fakeMembership{err: context.DeadlineExceeded}
	handler := historyHandler(fakeReplayer{}, members, slog.Default())

	w := historyGet(handler, "/history?room_id=r1", "alice")
	req.Equal(http.StatusInternalServerError, w.Code)
}
