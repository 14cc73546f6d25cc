package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/zwj1kor/Agentic-sso/internal/sso/oidc"
	"github.com/zwj1kor/Agentic-sso/internal/sso/service"
	"github.com/zwj1kor/Agentic-sso/pkg/jwtx"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

type Config struct {
	TenantID     string   // TENANT_ID: Azure tenant, used to derive the issuer and endpoints
	Issuer       string   `validate:"required,url"` // OIDC_ISSUER (default: Azure v2.0 issuer of TENANT_ID)
	Discovery    bool     // OIDC_DISCOVERY (default: true)
	AuthURL      string   `validate:"required_if=Discovery false,omitempty,url"` // OIDC_AUTH_URL
	TokenURL     string   `validate:"required_if=Discovery false,omitempty,url"` // OIDC_TOKEN_URL
	JWKSURL      string   `validate:"required_if=Discovery false,omitempty,url"` // OIDC_JWKS_URL
	ClientID     string   `validate:"required"`                                  // CLIENT_ID
	ClientSecret string   `validate:"required"`                                  // CLIENT_SECRET
	RedirectURI  string   `validate:"required,url"`                              // REDIRECT_URI
	Scopes       []string // OIDC_SCOPES (default: openid profile email)

	CookieSecret   string `validate:"required,min=32"` // COOKIE_SECRET: at least 32 bytes
	CookieName     string `validate:"required"`        // COOKIE_NAME (default: sso_session)
	CookieDomain   string // COOKIE_DOMAIN (default: host-only)
	CookieSecure   bool   // COOKIE_SECURE (default: true outside dev)
	CookieSameSite string `validate:"oneof=lax strict none"` // COOKIE_SAMESITE (default: lax)

	SessionTTL         time.Duration `validate:"gt=0"` // SESSION_TTL (default: 8h)
	StateTTL           time.Duration `validate:"gt=0"` // STATE_TTL (default: 10m)
	ClockSkew          time.Duration `validate:"gte=0"` // CLOCK_SKEW (default: 60s)
	JWKSRefreshMin     time.Duration `validate:"gte=0"` // JWKS_MIN_REFRESH_INTERVAL (default: 30s)
	JWKSMaxAge         time.Duration `validate:"gte=0"` // JWKS_MAX_AGE (default: 24h)
	HTTPClientTimeout  time.Duration `validate:"gt=0"` // HTTP_CLIENT_TIMEOUT (default: 10s)
	DisableTLSVerify   bool          // DISABLE_TLS_VERIFY: dev only, never honoured in prod
	FrontendURL        string        `validate:"required"` // FRONTEND_URL (default: /)
	FrontendFailureURL string        `validate:"required"` // FRONTEND_FAILURE_URL (default: FRONTEND_URL?error=login_failed)
	CORSAllowedOrigins []string      // CORS_ALLOWED_ORIGINS: comma separated, empty disables CORS

	StoreDriver          string        `validate:"oneof=memory sqlite redis"` // STORE_DRIVER (default: memory)
	DatabaseFile         string        `validate:"required_if=StoreDriver sqlite"` // DATABASE_FILE (default: sso.db)
	RedisAddr            string        `validate:"required_if=StoreDriver redis"` // REDIS_ADDR (default: localhost:6379)
	RedisPassword        string        // REDIS_PASSWORD
	RedisDB              int           `validate:"gte=0"` // REDIS_DB (default: 0)
	RedisKeyPrefix       string        // REDIS_KEY_PREFIX (default: sso:)
	HousekeepingInterval time.Duration // HOUSEKEEPING_INTERVAL (default: 15m)

	Env                 string        `validate:"oneof=dev staging prod"` // ENV (default: dev)
	LogLevel            string        // LOG_LEVEL (default: info)
	LogFormat           string        // LOG_FORMAT (default: json)
	Port                int           `validate:"gt=0,lte=65535"` // PORT (default: 8000)
	ShutdownGracePeriod time.Duration // SHUTDOWN_GRACE_PERIOD (default: 10s)
}

// LoadConfig reads a .env file from the working directory when present and
// then the process environment. Values already set in the environment win.
func LoadConfig() Config {
	_ = godotenv.Load()

	env := getEnvOrDefault("ENV", "dev")
	tenant := os.Getenv("TENANT_ID")
	azure := oidc.AzureEndpoints(tenant)

	cfg := Config{
		TenantID:     tenant,
		Issuer:       os.Getenv("OIDC_ISSUER"),
		Discovery:    getEnvBoolOrDefault("OIDC_DISCOVERY", true),
		AuthURL:      os.Getenv("OIDC_AUTH_URL"),
		TokenURL:     os.Getenv("OIDC_TOKEN_URL"),
		JWKSURL:      os.Getenv("OIDC_JWKS_URL"),
		ClientID:     os.Getenv("CLIENT_ID"),
		ClientSecret: os.Getenv("CLIENT_SECRET"),
		RedirectURI:  os.Getenv("REDIRECT_URI"),
		Scopes:       strings.Fields(getEnvOrDefault("OIDC_SCOPES", strings.Join(oidc.DefaultScopes, " "))),

		CookieSecret:   os.Getenv("COOKIE_SECRET"),
		CookieName:     getEnvOrDefault("COOKIE_NAME", "sso_session"),
		CookieDomain:   os.Getenv("COOKIE_DOMAIN"),
		CookieSecure:   getEnvBoolOrDefault("COOKIE_SECURE", env != "dev"),
		CookieSameSite: strings.ToLower(getEnvOrDefault("COOKIE_SAMESITE", "lax")),

		SessionTTL:         getEnvDurationOrDefault("SESSION_TTL", service.DefaultSessionTTL),
		StateTTL:           getEnvDurationOrDefault("STATE_TTL", service.DefaultStateTTL),
		ClockSkew:          getEnvDurationOrDefault("CLOCK_SKEW", jwtx.DefaultClockSkew),
		JWKSRefreshMin:     getEnvDurationOrDefault("JWKS_MIN_REFRESH_INTERVAL", oidc.DefaultMinRefreshInterval),
		JWKSMaxAge:         getEnvDurationOrDefault("JWKS_MAX_AGE", oidc.DefaultKeysMaxAge),
		HTTPClientTimeout:  getEnvDurationOrDefault("HTTP_CLIENT_TIMEOUT", oidc.DefaultHTTPTimeout),
		DisableTLSVerify:   getEnvBoolOrDefault("DISABLE_TLS_VERIFY", false),
		FrontendURL:        getEnvOrDefault("FRONTEND_URL", "/"),
		FrontendFailureURL: os.Getenv("FRONTEND_FAILURE_URL"),
		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),

		StoreDriver:          strings.ToLower(getEnvOrDefault("STORE_DRIVER", StoreMemory)),
		DatabaseFile:         getEnvOrDefault("DATABASE_FILE", "sso.db"),
		RedisAddr:            getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getEnvIntOrDefault("REDIS_DB", 0),
		RedisKeyPrefix:       getEnvOrDefault("REDIS_KEY_PREFIX", "sso:"),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 15*time.Minute),

		Env:                 env,
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8000),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}

	if cfg.Issuer == "" && tenant != "" {
		cfg.Issuer = azure.Issuer
	}
	// Without discovery an Azure tenant still gets working endpoints.
	if !cfg.Discovery && tenant != "" {
		cfg.AuthURL = firstNonEmpty(cfg.AuthURL, azure.AuthURL)
		cfg.TokenURL = firstNonEmpty(cfg.TokenURL, azure.TokenURL)
		cfg.JWKSURL = firstNonEmpty(cfg.JWKSURL, azure.JWKSURL)
	}
	if cfg.FrontendFailureURL == "" {
		cfg.FrontendFailureURL = withQuery(cfg.FrontendURL, "error", "login_failed")
	}

	return cfg
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports every missing or malformed setting at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		if c.Env == "prod" && c.DisableTLSVerify {
			return errors.New("config: DISABLE_TLS_VERIFY is not allowed in prod")
		}
		if c.CookieSameSite == "none" && !c.CookieSecure {
			return errors.New("config: COOKIE_SAMESITE=none requires COOKIE_SECURE=true")
		}
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "8h", "10m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
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

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func withQuery(base, key, value string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
