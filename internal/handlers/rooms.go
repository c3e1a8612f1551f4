package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tubedj/backend/internal/coordinator"
	"github.com/tubedj/backend/internal/logging"
	"github.com/tubedj/backend/internal/middleware"
	"github.com/tubedj/backend/internal/models"
)

// RoomHandler manages room lifecycle and membership.
type RoomHandler struct {
	coord *coordinator.Coordinator
}

// NewRoomHandler creates a RoomHandler backed by the coordinator.
func NewRoomHandler(coord *coordinator.Coordinator) *RoomHandler {
	return &RoomHandler{coord: coord}
}

// Create allocates a new room owned by the caller. The owner still joins
// like everyone else.
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	room, err := h.coord.CreateRoom(r.Context(), identity.Token)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.CreateRoomResponse{Room: room.Token()})
}

// Join adds the caller to the room and returns the composite room view.
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	roomToken := chi.URLParam(r, "roomID")
	ctx := logging.UpdateRequestAttrs(r.Context(), identity.Token, roomToken)

	result, err := h.coord.Join(ctx, roomToken, identity.Token)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.JoinRoomResponse{
		ID:       result.Room,
		Owner:    result.Owner,
		Playlist: result.Playlist,
		Users:    result.Members,
	})
}

// Leave removes the caller from the room. If the caller owns the room, the
// room closes for everyone.
func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	roomToken := chi.URLParam(r, "roomID")
	ctx := logging.UpdateRequestAttrs(r.Context(), identity.Token, roomToken)

	if err := h.coord.Leave(ctx, roomToken, identity.Token); err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// NextSong advances the queue. Owner-only.
func (h *RoomHandler) NextSong(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	roomToken := chi.URLParam(r, "roomID")
	ctx := logging.UpdateRequestAttrs(r.Context(), identity.Token, roomToken)

	uid, err := h.coord.NextSong(ctx, roomToken, identity.Token)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NextSongResponse{Room: roomToken, SongUID: uid})
}

// Block bars a user from the room and evicts them if present. Owner-only.
func (h *RoomHandler) Block(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	roomToken := chi.URLParam(r, "roomID")
	targetToken := chi.URLParam(r, "userID")
	ctx := logging.UpdateRequestAttrs(r.Context(), identity.Token, roomToken)

	if err := h.coord.Block(ctx, roomToken, identity.Token, targetToken); err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Unblock lifts a block. Owner-only.
func (h *RoomHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	roomToken := chi.URLParam(r, "roomID")
	targetToken := chi.URLParam(r, "userID")
	ctx := logging.UpdateRequestAttrs(r.Context(), identity.Token, roomToken)

	if err := h.coord.Unblock(ctx, roomToken, identity.Token, targetToken); err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
