package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/mindcare/realtime/pkg/auth"
)

type loginRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required,oneof=patient therapist moderator admin"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// loginHandler mints a development token. The platform's real identity
// provider issues credentials in production; this stands in for it.
func loginHandler(log *slog.Logger) http.HandlerFunc {
	validate := validator.New()
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		token, err := auth.GenerateToken(req.UserID, req.Role)
		if err != nil {
			log.Error("token generation failed", "user_id", req.UserID, "err", err)
			http.Error(w, "failed to generate token", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(loginResponse{Token: token})
	}
}
