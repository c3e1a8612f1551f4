// Package middleware provides HTTP middleware for session authentication,
// CORS handling, rate limiting, and request context management.
package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/tubedj/backend/internal/logging"
	"github.com/tubedj/backend/internal/session"
)

type contextKey string

const (
	// IdentityKey is the context key for the authenticated session identity.
	IdentityKey contextKey = "identity"
)

// SessionMiddleware reads the session cookie and resolves the caller's
// identity. A missing cookie and a stale identity both pass through as
// anonymous; tampering and corruption are rejected outright.
func SessionMiddleware(auth *session.Authenticator, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var raw string
			if cookie, err := r.Cookie(cookieName); err == nil {
				raw = cookie.Value
			}

			identity, err := auth.Authenticate(r.Context(), raw)
			if err != nil {
				switch {
				case errors.Is(err, session.ErrTamperedSession):
					logging.LogSecurityEvent(r.Context(), logging.SecurityEventTamperedSession, "session signature invalid")
					http.Error(w, `{"error":"invalid session"}`, http.StatusUnauthorized)
					return
				case errors.Is(err, session.ErrCorruptIdentity):
					logging.LogSecurityEvent(r.Context(), logging.SecurityEventCorruptIdentity, "session identity corrupt")
					http.Error(w, `{"error":"invalid session"}`, http.StatusUnauthorized)
					return
				case errors.Is(err, session.ErrStaleIdentity):
					// The user behind this session is gone; let them
					// register again.
					logging.LogSecurityEvent(r.Context(), logging.SecurityEventStaleIdentity, "session references missing user")
				default:
					logging.LogErrorWithStatus(r.Context(), http.StatusInternalServerError, "session authentication failed", err)
					http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
					return
				}
			}

			if identity == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession rejects anonymous requests. Must run after
// SessionMiddleware.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetIdentity(r.Context()) == nil {
			logging.LogSecurityEvent(r.Context(), logging.SecurityEventMissingSession, "session required")
			http.Error(w, `{"error":"session required"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetIdentity retrieves the session identity from the request context.
// Returns nil for anonymous requests.
func GetIdentity(ctx context.Context) *session.Identity {
	identity, _ := ctx.Value(IdentityKey).(*session.Identity)
	return identity
}
