package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mindcare/realtime/pkg/auth"
	"github.com/mindcare/realtime/pkg/store"
)

// roomMembership answers whether a user belongs to a room, backed by the
// membership sets the gateway mirrors into Redis.
type roomMembership interface {
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
}

// historyHandler serves persisted room events after a given event id, in
// the room's authoritative order. Transcripts are visible to the room's
// participants only.
func historyHandler(replayer store.Replayer, members roomMembership, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFrom(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		roomID := r.URL.Query().Get("room_id")
		if roomID == "" {
			http.Error(w, "room_id is required", http.StatusBadRequest)
			return
		}

		member, err := members.IsMember(r.Context(), roomID, identity.UserID)
		if err != nil {
			log.Error("membership check failed", "room_id", roomID, "user_id", identity.UserID, "err", err)
			http.Error(w, "failed to verify membership", http.StatusInternalServerError)
			return
		}
		if !member {
			http.Error(w, "not a participant", http.StatusForbidden)
			return
		}

		var sinceID int64
		if since := r.URL.Query().Get("since"); since != "" {
			parsed, err := strconv.ParseInt(since, 10, 64)
			if err != nil {
				http.Error(w, "since must be an event id", http.StatusBadRequest)
				return
			}
			sinceID = parsed
		}

		records, err := replayer.Replay(r.Context(), roomID, sinceID)
		if err != nil {
			log.Error("history query failed", "room_id", roomID, "err", err)
			http.Error(w, "failed to retrieve history", http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []store.Record{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(records)
	}
}
