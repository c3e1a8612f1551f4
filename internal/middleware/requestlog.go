package middleware

import (
	"net/http"

	"github.com/tubedj/backend/internal/logging"
)

// RequestContextMiddleware adds request attributes to context early in the
// middleware chain.
func RequestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attrs := &logging.RequestAttrs{
			Method: r.Method,
			Path:   r.URL.Path,
			IP:     logging.ExtractClientIP(r),
		}
		ctx := logging.WithRequestAttrs(r.Context(), attrs)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UpdateRequestContextMiddleware records the authenticated user in the
// request attributes after SessionMiddleware runs.
func UpdateRequestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity := GetIdentity(r.Context()); identity != nil {
			ctx := logging.UpdateRequestAttrs(r.Context(), identity.Token, "")
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}
