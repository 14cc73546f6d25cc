package agent

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// defaultCORSOrigins are the local static page servers the agent is
// usually opened from.
const defaultCORSOrigins = "http://localhost:5500,http://127.0.0.1:5500,http://localhost:3000,http://127.0.0.1:3000"

type Config struct {
	BackendBaseURL      string        `validate:"required,url"` // BACKEND_BASE_URL (default: http://localhost:8000)
	BackendTimeout      time.Duration `validate:"gt=0"`         // BACKEND_TIMEOUT (default: 30s)
	CORSAllowedOrigins  []string      // CORS_ALLOWED_ORIGINS (default: local static servers)
	Env                 string        // ENV (default: dev)
	LogLevel            string        // LOG_LEVEL (default: info)
	LogFormat           string        // LOG_FORMAT (default: json)
	Port                int           `validate:"gt=0,lte=65535"` // PORT (default: 8090)
	ShutdownGracePeriod time.Duration // SHUTDOWN_GRACE_PERIOD (default: 10s)
}

func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		BackendBaseURL:      getEnvOrDefault("BACKEND_BASE_URL", "http://localhost:8000"),
		BackendTimeout:      getEnvDurationOrDefault("BACKEND_TIMEOUT", 30*time.Second),
		CORSAllowedOrigins:  splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", defaultCORSOrigins)),
		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8090),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if intValue, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return intValue
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if duration, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return duration
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
