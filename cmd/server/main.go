package main

import (
	"log/slog"
	"net/http"
	"os"

	sentrygo "github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/tubedj/backend/internal/broker"
	"github.com/tubedj/backend/internal/config"
	"github.com/tubedj/backend/internal/coordinator"
	"github.com/tubedj/backend/internal/handlers"
	"github.com/tubedj/backend/internal/ids"
	"github.com/tubedj/backend/internal/logging"
	"github.com/tubedj/backend/internal/router"
	"github.com/tubedj/backend/internal/rooms"
	"github.com/tubedj/backend/internal/sentry"
	"github.com/tubedj/backend/internal/session"
	"github.com/tubedj/backend/internal/shard"
	"github.com/tubedj/backend/internal/users"
)

func main() {
	// Initialize structured logging (reads LOGGING_LEVEL env var)
	logging.Initialize()

	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	cfg := config.Load()

	if cfg.SentryDSN != "" {
		err := sentrygo.Init(sentrygo.ClientOptions{
			Dsn:                   cfg.SentryDSN,
			Environment:           cfg.SentryEnvironment,
			BeforeSend:            sentry.ScrubEvent,
			BeforeSendTransaction: sentry.ScrubTransaction,
		})
		if err != nil {
			slog.Error("failed to initialize sentry", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shards, err := shard.NewRouter(cfg.ShardAddrs)
	if err != nil {
		slog.Error("failed to connect to shards", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer shards.Close()

	// Rooms and users carry independently keyed codecs so a room token
	// never decodes as a user token.
	roomCodec, err := ids.NewCodec(ids.Config{Key: cfg.RoomIDKey, MinLength: cfg.RoomIDMinLength, Cache: cfg.CacheIDs})
	if err != nil {
		slog.Error("failed to build room id codec", slog.String("error", err.Error()))
		os.Exit(1)
	}
	userCodec, err := ids.NewCodec(ids.Config{Key: cfg.UserIDKey, MinLength: cfg.UserIDMinLength, Cache: cfg.CacheIDs})
	if err != nil {
		slog.Error("failed to build user id codec", slog.String("error", err.Error()))
		os.Exit(1)
	}

	roomDir := rooms.NewDirectory(shards, roomCodec, cfg.StoreTimeout)
	userDir := users.NewDirectory(shards, userCodec, cfg.StoreTimeout)

	auth, err := session.NewAuthenticator(cfg.SessionKeys, userCodec, userDir)
	if err != nil {
		slog.Error("failed to build session authenticator", slog.String("error", err.Error()))
		os.Exit(1)
	}

	events := broker.New()
	sockets := handlers.NewSocketTable()
	coord := coordinator.New(
		coordinator.NewRoomStore(roomDir),
		coordinator.NewUserStore(userDir),
		events,
		sockets,
	)

	r := router.New(cfg, router.Deps{
		Coordinator: coord,
		Auth:        auth,
		Broker:      events,
		Sockets:     sockets,
		NameGen:     users.NewNameGenerator(),
	})

	addr := ":" + cfg.Port
	slog.Info("starting server", slog.String("addr", addr), slog.Int("shards", shards.Len()))

	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
