// Package router wires the HTTP API: middleware chain, handler
// construction, and routes.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tubedj/backend/internal/broker"
	"github.com/tubedj/backend/internal/config"
	"github.com/tubedj/backend/internal/coordinator"
	"github.com/tubedj/backend/internal/handlers"
	"github.com/tubedj/backend/internal/middleware"
	"github.com/tubedj/backend/internal/session"
	"github.com/tubedj/backend/internal/users"
)

// Deps carries the service singletons main constructs.
type Deps struct {
	Coordinator *coordinator.Coordinator
	Auth        *session.Authenticator
	Broker      *broker.Broker
	Sockets     *handlers.SocketTable
	NameGen     *users.NameGenerator
}

func New(cfg *config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewRealIPMiddleware(cfg.TrustedProxies).Handler)
	r.Use(middleware.RequestContextMiddleware)
	r.Use(middleware.CORSMiddleware(cfg.CORSAllowedOrigins))
	r.Use(middleware.SessionMiddleware(deps.Auth, cfg.CookieName))
	r.Use(middleware.UpdateRequestContextMiddleware)

	// Handlers
	userHandler := handlers.NewUserHandler(deps.Coordinator, deps.Auth, deps.NameGen, cfg)
	roomHandler := handlers.NewRoomHandler(deps.Coordinator)
	playlistHandler := handlers.NewPlaylistHandler(deps.Coordinator)
	eventsHandler := handlers.NewEventsHandler(deps.Coordinator, deps.Broker, deps.Sockets)
	sentryTunnelHandler := handlers.NewSentryTunnelHandler(cfg)

	// Per-endpoint rate limiters; creation is throttled hardest.
	createUserLimiter := middleware.NewRateLimiter(cfg.CreateUserPerMinute)
	joinLimiter := middleware.NewRateLimiter(cfg.JoinRoomPerMinute)
	mutateLimiter := middleware.NewRateLimiter(cfg.MutatePerMinute)
	playlistLimiter := middleware.NewRateLimiter(cfg.PlaylistPerMinute)

	r.Route("/api", func(r chi.Router) {
		// Health check
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})

		r.Post("/sentry-tunnel", sentryTunnelHandler.Tunnel)

		r.Route("/users", func(r chi.Router) {
			r.With(createUserLimiter.Middleware).Post("/", userHandler.Create)
			r.Get("/suggested-name", userHandler.SuggestedName)
		})

		r.Route("/rooms", func(r chi.Router) {
			r.Use(middleware.RequireSession)

			r.With(mutateLimiter.Middleware).Post("/", roomHandler.Create)

			r.Route("/{roomID}", func(r chi.Router) {
				r.With(joinLimiter.Middleware).Get("/", roomHandler.Join)
				r.With(mutateLimiter.Middleware).Post("/leave", roomHandler.Leave)
				r.With(mutateLimiter.Middleware).Post("/next-song", roomHandler.NextSong)

				r.Get("/events", eventsHandler.Stream)

				r.Route("/playlist", func(r chi.Router) {
					r.With(playlistLimiter.Middleware).Get("/", playlistHandler.Get)
					r.With(playlistLimiter.Middleware).Post("/", playlistHandler.Add)
					r.With(playlistLimiter.Middleware).Delete("/{songUID}", playlistHandler.Remove)
				})

				r.Route("/users/{userID}", func(r chi.Router) {
					r.With(mutateLimiter.Middleware).Post("/block", roomHandler.Block)
					r.With(mutateLimiter.Middleware).Post("/unblock", roomHandler.Unblock)
				})
			})
		})
	})

	return r
}
