package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tubedj/backend/internal/coordinator"
	"github.com/tubedj/backend/internal/logging"
	"github.com/tubedj/backend/internal/middleware"
	"github.com/tubedj/backend/internal/models"
)

// PlaylistHandler serves the room queue.
type PlaylistHandler struct {
	coord *coordinator.Coordinator
}

// NewPlaylistHandler creates a PlaylistHandler backed by the coordinator.
func NewPlaylistHandler(coord *coordinator.Coordinator) *PlaylistHandler {
	return &PlaylistHandler{coord: coord}
}

// Get returns the room's queue in play order.
func (h *PlaylistHandler) Get(w http.ResponseWriter, r *http.Request) {
	roomToken := chi.URLParam(r, "roomID")

	playlist, err := h.coord.Playlist(r.Context(), roomToken)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.PlaylistResponse{Room: roomToken, Playlist: playlist})
}

// Add appends a song submitted by the caller. Member-only.
func (h *PlaylistHandler) Add(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	roomToken := chi.URLParam(r, "roomID")
	ctx := logging.UpdateRequestAttrs(r.Context(), identity.Token, roomToken)

	var req models.AddSongRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Song.External {
		if req.Song.ID == "" {
			writeError(w, http.StatusBadRequest, "external song requires an id")
			return
		}
	} else if req.Song.Title == "" {
		writeError(w, http.StatusBadRequest, "song requires a title")
		return
	}

	entry, err := h.coord.AddSong(ctx, roomToken, identity.Token, req.Song)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.AddSongResponse{Room: roomToken, Song: entry})
}

// Remove deletes one entry by uid. Allowed for the submitter and the room
// owner.
func (h *PlaylistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	roomToken := chi.URLParam(r, "roomID")
	ctx := logging.UpdateRequestAttrs(r.Context(), identity.Token, roomToken)

	uid, err := strconv.ParseInt(chi.URLParam(r, "songUID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid song uid")
		return
	}

	if err := h.coord.RemoveSong(ctx, roomToken, identity.Token, uid); err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
