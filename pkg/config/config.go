package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds runtime configuration for the admin API service.
type Config struct {
	Environment        string
	Addr               string
	DatabaseURL        string
	MigrationsDir      string
	JWTSecret          string
	TokenTTL           time.Duration
	SecretsKey         string
	CORSAllowOrigin    string
	AssistantURL       string
	AssistantAPIKey    string
	AssistantAgentID   string
	AssistantTimeout   time.Duration
	ChatDefaultRoom    string
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// Load constructs a Config from environment variables.
func Load() Config {
	return Config{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":5000"),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://propath:propath@db:5432/propath?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		JWTSecret:          GetString("JWT_SECRET", "supersecuresecret"),
		TokenTTL:           time.Duration(GetInt("TOKEN_TTL_HOURS", 24)) * time.Hour,
		SecretsKey:         GetString("SECRETS_KEY", "supersecuresecret"),
		CORSAllowOrigin:    GetString("CORS_ALLOW_ORIGIN", "*"),
		AssistantURL:       GetString("ASSISTANT_URL", "https://api.mistral.ai/v1/agents/completions"),
		AssistantAPIKey:    GetString("ASSISTANT_API_KEY", ""),
		AssistantAgentID:   GetString("ASSISTANT_AGENT_ID", ""),
		AssistantTimeout:   time.Duration(GetInt("ASSISTANT_TIMEOUT_SECONDS", 30)) * time.Second,
		ChatDefaultRoom:    GetString("CHAT_DEFAULT_ROOM", "lobby"),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}

// GetString retrieves an environment variable or returns a fallback when unset.
func GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetInt retrieves an environment variable as integer or returns fallback.
func GetInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid value for %s: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}
