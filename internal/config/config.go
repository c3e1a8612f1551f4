// Package config handles loading application configuration from environment variables.
// All settings have sensible defaults for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application settings loaded from environment variables.
type Config struct {
	Port string

	// ShardAddrs lists the backing-store instances, one client per shard.
	// The position in the list is the shard id; the list must be stable
	// across restarts or existing tokens stop resolving.
	ShardAddrs []string

	// Room and user tokens are encoded with independent keys so a room
	// token never decodes as a user token by accident.
	RoomIDKey       string
	RoomIDMinLength int
	UserIDKey       string
	UserIDMinLength int
	CacheIDs        bool

	// SessionKeys is the signing key rotation list, newest first. The
	// first key signs new sessions; every key may verify old ones.
	SessionKeys []string
	CookieName  string

	// StoreTimeout bounds every single backing-store operation.
	StoreTimeout time.Duration

	// Per-endpoint rate limits, requests per minute per IP. User creation
	// is throttled hardest, playlist reads lightest.
	CreateUserPerMinute int
	JoinRoomPerMinute   int
	MutatePerMinute     int
	PlaylistPerMinute   int

	CORSAllowedOrigins []string
	TrustedProxies     []string
	SentryDSN          string
	SentryDSNFrontend  string
	SentryEnvironment  string
}

// Load reads configuration from environment variables, using defaults where not set.
func Load() *Config {
	return &Config{
		Port:                getEnv("PORT", "8081"),
		ShardAddrs:          getStringSliceEnv("SHARD_ADDRS", []string{"127.0.0.1:6379"}),
		RoomIDKey:           getEnv("ROOM_ID_KEY", "change-me-room-key"), // #nosec G101 -- intentional dev default
		RoomIDMinLength:     getIntEnv("ROOM_ID_MIN_LENGTH", 8),
		UserIDKey:           getEnv("USER_ID_KEY", "change-me-user-key"), // #nosec G101 -- intentional dev default
		UserIDMinLength:     getIntEnv("USER_ID_MIN_LENGTH", 8),
		CacheIDs:            getBoolEnv("CACHE_IDS", true),
		SessionKeys:         getStringSliceEnv("SESSION_KEYS", []string{"change-me-session-key"}),
		CookieName:          getEnv("COOKIE_NAME", "tubedj-id"),
		StoreTimeout:        getDurationEnv("STORE_TIMEOUT", 3*time.Second),
		CreateUserPerMinute: getIntEnv("RATE_CREATE_USER_PER_MINUTE", 2),
		JoinRoomPerMinute:   getIntEnv("RATE_JOIN_ROOM_PER_MINUTE", 10),
		MutatePerMinute:     getIntEnv("RATE_MUTATE_PER_MINUTE", 30),
		PlaylistPerMinute:   getIntEnv("RATE_PLAYLIST_PER_MINUTE", 60),
		CORSAllowedOrigins:  getStringSliceEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		TrustedProxies:      getStringSliceEnv("TRUSTED_PROXIES", nil),
		SentryDSN:           getEnv("SENTRY_DSN", ""),
		SentryDSNFrontend:   getEnv("SENTRY_DSN_FRONTEND", ""),
		SentryEnvironment:   getEnv("SENTRY_ENVIRONMENT", "production"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result []string
	for _, s := range strings.Split(value, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
