package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory = "memory"
	BackendREST   = "rest"

	TransportREST     = "rest"
	TransportPostgres = "postgres"
)

type Config struct {
	Env  string
	Port int

	// hosted service
	Backend       string
	BackendURL    string
	AnonKey       string
	DataTransport string
	DBURL         string

	// session persistence; empty RedisAddr keeps the session in memory
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	SessionStorageKey string
	RefreshMargin     time.Duration

	AdminEmail    string
	QuestionsFile string

	OTelEnabled     bool
	OTelEndpoint    string
	OTelSampleRatio float64
}

// Load reads .env (if present) and then the process environment; real
// environment variables win over the file.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not read .env", "err", err)
	}

	return Config{
		Env:  getEnv("APP_ENV", "dev"),
		Port: getEnvInt("PORT", 8080),

		Backend:       strings.ToLower(getEnv("BACKEND", BackendMemory)),
		BackendURL:    getEnv("BACKEND_URL", ""),
		AnonKey:       getEnv("BACKEND_ANON_KEY", ""),
		DataTransport: strings.ToLower(getEnv("DATA_TRANSPORT", TransportREST)),
		DBURL:         buildDBURL(),

		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		SessionStorageKey: getEnv("SESSION_STORAGE_KEY", "sb-survey-auth-token"),
		RefreshMargin:     time.Duration(getEnvInt("REFRESH_MARGIN_SECONDS", 60)) * time.Second,

		AdminEmail:    getEnv("ADMIN_EMAIL", "u61646d696e@survey-system.com"),
		QuestionsFile: getEnv("QUESTIONS_FILE", ""),

		OTelEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OTelSampleRatio: getEnvFloat("OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendREST:
		if c.BackendURL == "" || c.AnonKey == "" {
			return fmt.Errorf("BACKEND=rest needs BACKEND_URL and BACKEND_ANON_KEY")
		}
	default:
		return fmt.Errorf("unknown BACKEND %q", c.Backend)
	}

	switch c.DataTransport {
	case TransportREST, TransportPostgres:
	default:
		return fmt.Errorf("unknown DATA_TRANSPORT %q", c.DataTransport)
	}
	if c.DataTransport == TransportPostgres && c.Backend != BackendREST {
		return fmt.Errorf("DATA_TRANSPORT=postgres needs BACKEND=rest for sessions")
	}
	return nil
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "postgres")
	pass := getEnv("DB_PASSWORD", "postgres")
	name := getEnv("DB_NAME", "postgres")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			slog.Warn("invalid integer setting, using default", "key", key, "value", v)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)

		if err != nil {
			slog.Warn("invalid boolean setting, using default", "key", key, "value", v)
			return fallback
		}

		return b
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)

		if err != nil {
			slog.Warn("invalid number setting, using default", "key", key, "value", v)
			return fallback
		}

		return f
	}
	return fallback
}
