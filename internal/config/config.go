package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App    AppConfig
	Auth   AuthConfig
	Stream StreamConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type AuthConfig struct {
	// PEM-encoded Ed25519 key material. The private key is only needed by
	// the token-minting side; verification uses the public half.
	PrivateKeyPath string
	PublicKeyPath  string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// CookieSecure should be true everywhere except local development.
	CookieSecure bool
}

type StreamConfig struct {
	// StallWindow is how long a stream may go without any event before the
	// connection is considered dead.
	StallWindow time.Duration

	// MaxAttachmentBytes is the aggregate per-message attachment cap.
	// Must match the backend's enforced limit exactly.
	MaxAttachmentBytes int64

	// EventSubjectPrefix is the NATS subject tree carrying upstream agent
	// events, one child subject per conversation.
	EventSubjectPrefix string

	// PromptTopic is the in-process queue topic between the prompt endpoint
	// and the upstream forwarder.
	PromptTopic string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/gateway.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Auth: AuthConfig{
			PrivateKeyPath:  getEnv("AUTH_PRIVATE_KEY_PATH", "keys/signing.pem"),
			PublicKeyPath:   getEnv("AUTH_PUBLIC_KEY_PATH", "keys/signing.pub.pem"),
			AccessTokenTTL:  getEnvAsDuration("ACCESS_TOKEN_TTL_SECONDS", 1800),
			RefreshTokenTTL: getEnvAsDuration("REFRESH_TOKEN_TTL_SECONDS", 604800),
			CookieSecure:    getEnv("GO_ENV", "development") == "production",
		},
		Stream: StreamConfig{
			StallWindow:        getEnvAsDuration("STREAM_STALL_SECONDS", 60),
			MaxAttachmentBytes: int64(getEnvAsInt("MAX_ATTACHMENT_BYTES", 20<<20)),
			EventSubjectPrefix: getEnv("CHAT_EVENT_SUBJECT_PREFIX", "chat.events"),
			PromptTopic:        getEnv("PROMPT_TOPIC", "prompt_submitted"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallbackSeconds int) time.Duration {
	return time.Duration(getEnvAsInt(key, fallbackSeconds)) * time.Second
}
