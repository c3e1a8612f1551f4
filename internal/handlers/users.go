package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/tubedj/backend/internal/config"
	"github.com/tubedj/backend/internal/coordinator"
	"github.com/tubedj/backend/internal/middleware"
	"github.com/tubedj/backend/internal/models"
	"github.com/tubedj/backend/internal/session"
	"github.com/tubedj/backend/internal/users"
)

const (
	minNameLength = 2
	maxNameLength = 10
)

// UserHandler manages identity creation and name suggestions.
type UserHandler struct {
	coord   *coordinator.Coordinator
	auth    *session.Authenticator
	namegen *users.NameGenerator
	cfg     *config.Config
}

// NewUserHandler creates a UserHandler with the required dependencies.
func NewUserHandler(coord *coordinator.Coordinator, auth *session.Authenticator, namegen *users.NameGenerator, cfg *config.Config) *UserHandler {
	return &UserHandler{coord: coord, auth: auth, namegen: namegen, cfg: cfg}
}

// Create registers a new identity and sets the session cookie. One identity
// per browser: a caller who already holds a live session is rejected.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	if middleware.GetIdentity(r.Context()) != nil {
		writeError(w, http.StatusConflict, "already registered")
		return
	}

	var req models.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Name) < minNameLength || len(req.Name) > maxNameLength {
		writeError(w, http.StatusBadRequest, "name must be 2-10 characters")
		return
	}

	user, err := h.coord.CreateUser(r.Context(), req.Name)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}

	signed, err := h.auth.Issue(user.Token())
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to issue session", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusCreated, models.CreateUserResponse{ID: user.Token(), Name: req.Name})
}

// SuggestedName returns a random display name the client may offer as a
// default.
func (h *UserHandler) SuggestedName(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.SuggestedNameResponse{Name: h.namegen.Suggest()})
}
