package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	envStorageConnection = "AZURE_STORAGE_CONNECTION"
	envIncomingQueue     = "QUEUE_NAME"
	envOutgoingQueue     = "OUTGOING_QUEUE"
	envBlobContainer     = "BLOB_CONTAINER"
	envHTTPPort          = "PORT"
	envSessionDB         = "WABRIDGE_SESSION_DB"
	envPingPong          = "WABRIDGE_PING_PONG"

	defaultIncomingQueue = "incoming-messages"
	defaultOutgoingQueue = "outgoing-messages"
	defaultBlobContainer = "whatsapp-media"
	defaultHTTPPort      = 3000
	defaultSessionDB     = "auth.db"
)

// ErrMissingConnection is returned when the required storage connection
// string is absent. The process must not start without it.
var ErrMissingConnection = errors.New(envStorageConnection + " is required")

// Config is the root runtime configuration resolved from the environment.
type Config struct {
	Storage StorageConfig
	HTTP    HTTPConfig
	Chat    ChatConfig
	Logging LoggingConfig
}

// StorageConfig holds Azure Storage connection settings shared by the
// queue and blob capabilities.
type StorageConfig struct {
	ConnectionString string
	IncomingQueue    string
	OutgoingQueue    string
	BlobContainer    string
}

// HTTPConfig configures the liveness/send HTTP surface.
type HTTPConfig struct {
	Port int
}

// ChatConfig configures the WhatsApp client adapter.
type ChatConfig struct {
	SessionDB string
	PingPong  bool
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string
	Level     string
	AddSource bool
}

// Load resolves configuration from the environment, reading a local .env
// file first when present. It fails only on missing required values.
func Load() (*Config, error) {
	// Best effort; a missing .env just means the environment is already set.
	_ = godotenv.Load()

	connection := strings.TrimSpace(os.Getenv(envStorageConnection))
	if connection == "" {
		return nil, ErrMissingConnection
	}

	cfg := &Config{
		Storage: StorageConfig{
			ConnectionString: connection,
			IncomingQueue:    envOrDefault(envIncomingQueue, defaultIncomingQueue),
			OutgoingQueue:    envOrDefault(envOutgoingQueue, defaultOutgoingQueue),
			BlobContainer:    envOrDefault(envBlobContainer, defaultBlobContainer),
		},
		HTTP: HTTPConfig{
			Port: envIntOrDefault(envHTTPPort, defaultHTTPPort),
		},
		Chat: ChatConfig{
			SessionDB: envOrDefault(envSessionDB, defaultSessionDB),
			PingPong:  parseBool(os.Getenv(envPingPong)),
		},
	}

	return cfg, nil
}

// envOrDefault returns a trimmed environment value or the fallback when unset.
func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}

	return fallback
}

// envIntOrDefault parses an integer environment value, keeping the fallback
// on absent or malformed input.
func envIntOrDefault(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}

	return value
}

func parseBool(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
