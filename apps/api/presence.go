package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mindcare/realtime/pkg/hub"
)

// presenceHandler lists user ids currently online in a room, read from the
// presence sets the gateway maintains.
func presenceHandler(presence *hub.RedisPresence, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := r.PathValue("id")

		users, err := presence.Online(r.Context(), roomID)
		if err != nil {
			log.Error("presence query failed", "room_id", roomID, "err", err)
			http.Error(w, "failed to fetch presence", http.StatusInternalServerError)
			return
		}
		if users == nil {
			users = []string{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(users)
	}
}
