package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mindcare/realtime/pkg/auth"
	"github.com/mindcare/realtime/pkg/hub"
	"github.com/mindcare/realtime/pkg/model"
	"github.com/mindcare/realtime/pkg/room"
)

// memberMirror replicates authoritative membership into the shared store so
// read-side services can check participation. Best effort: a mirror failure
// is logged, never surfaced to the caller.
type memberMirror interface {
	AddMembers(ctx context.Context, roomID string, userIDs ...string) error
	RemoveMember(ctx context.Context, roomID, userID string) error
	DropRoom(ctx context.Context, roomID string) error
}

// roomHandler is the provisioning surface for the in-process membership
// index: rooms are created, mutated and closed through the gateway that
// owns them.
type roomHandler struct {
	h        *hub.Hub
	roster   memberMirror
	validate *validator.Validate
	log      *slog.Logger
}

func newRoomHandler(h *hub.Hub, roster memberMirror, log *slog.Logger) *roomHandler {
	return &roomHandler{
		h:        h,
		roster:   roster,
		validate: validator.New(),
		log:      log,
	}
}

func (rh *roomHandler) mirrorAdd(ctx context.Context, roomID string, userIDs ...string) {
	if rh.roster == nil {
		return
	}
	if err := rh.roster.AddMembers(ctx, roomID, userIDs...); err != nil {
		rh.log.Warn("membership mirror update failed", "room_id", roomID, "err", err)
	}
}

type createRoomRequest struct {
	Kind         string   `json:"kind" validate:"required,oneof=one_to_one group"`
	Name         string   `json:"name" validate:"max=120"`
	Peer         string   `json:"peer" validate:"required_if=Kind one_to_one"`
	Participants []string `json:"participants"`
}

type roomResponse struct {
	ID           string   `json:"id"`
	Kind         string   `json:"kind"`
	Participants []string `json:"participants"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch err {
	case room.ErrNotFound:
		return http.StatusNotFound
	case room.ErrNotAParticipant, room.ErrNotModerator:
		return http.StatusForbidden
	case room.ErrClosed, room.ErrPairwiseFixed, room.ErrAlreadyExists:
		return http.StatusConflict
	case room.ErrInvalidMembers:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (rh *roomHandler) create(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := rh.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := uuid.NewString()
	var err error
	switch model.ConversationKind(req.Kind) {
	case model.KindOneToOne:
		err = rh.h.Rooms().CreatePairwise(id, identity.UserID, req.Peer)
	case model.KindGroup:
		err = rh.h.Rooms().CreateGroup(id, req.Name, identity.UserID, req.Participants)
	}
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	snap, err := rh.h.Rooms().Get(id)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	rh.mirrorAdd(r.Context(), id, snap.Participants...)
	rh.log.Info("room created", "room_id", id, "kind", req.Kind, "creator", identity.UserID)
	writeJSON(w, http.StatusCreated, roomResponse{ID: snap.ID, Kind: string(snap.Kind), Participants: snap.Participants})
}

type participantRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

func (rh *roomHandler) addParticipant(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req participantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := rh.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	roomID := r.PathValue("id")
	if err := rh.h.AddParticipant(identity.UserID, roomID, req.UserID); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	rh.mirrorAdd(r.Context(), roomID, req.UserID)
	rh.log.Info("participant added", "room_id", roomID, "user_id", req.UserID, "actor", identity.UserID)
	w.WriteHeader(http.StatusNoContent)
}

func (rh *roomHandler) removeParticipant(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	roomID := r.PathValue("id")
	userID := r.PathValue("user")
	if err := rh.h.RemoveParticipant(identity.UserID, roomID, userID); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	if rh.roster != nil {
		if err := rh.roster.RemoveMember(r.Context(), roomID, userID); err != nil {
			rh.log.Warn("membership mirror update failed", "room_id", roomID, "err", err)
		}
	}
	rh.log.Info("participant removed", "room_id", roomID, "user_id", userID, "actor", identity.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// closeRoom closes a room. Moderators may close groups; either participant
// may close a pairwise conversation.
func (rh *roomHandler) closeRoom(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	roomID := r.PathValue("id")
	snap, err := rh.h.Rooms().Get(roomID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	switch snap.Kind {
	case model.KindGroup:
		if !rh.h.Rooms().IsModerator(identity.UserID, roomID) {
			http.Error(w, room.ErrNotModerator.Error(), http.StatusForbidden)
			return
		}
	case model.KindOneToOne:
		if !rh.h.Rooms().Authorize(identity.UserID, roomID) {
			http.Error(w, room.ErrNotAParticipant.Error(), http.StatusForbidden)
			return
		}
	}

	if err := rh.h.CloseRoom(roomID); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	if rh.roster != nil {
		if err := rh.roster.DropRoom(r.Context(), roomID); err != nil {
			rh.log.Warn("membership mirror update failed", "room_id", roomID, "err", err)
		}
	}
	rh.log.Info("room closed", "room_id", roomID, "actor", identity.UserID)
	w.WriteHeader(http.StatusNoContent)
}
