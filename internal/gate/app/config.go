package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/schoolgate/pkg/httpx"
	"github.com/aussiebroadwan/schoolgate/pkg/slogx"
)

// MinSecretLen is the shortest HS256 secret the gate accepts.
const MinSecretLen = 32

type Config struct {
	SigningSecret string        // Required: HS256 secret for session tokens, shared by every instance
	Issuer        string        // Optional: issuer claim for session tokens (default: schoolgate)
	SessionTTL    time.Duration // Optional: session lifetime (default: 8h)
	DevHosts      []string      // Optional: host patterns where developer sessions are honoured

	TrustedProxies []string // Optional: proxy CIDRs whose X-Forwarded-For is believed; empty keys on the peer address

	OAuthIssuer   string // Optional: issuer expected on OAuth assertions
	OAuthJWKSFile string // Optional: JWKS file with the OAuth provider's keys; empty disables OAuth

	DatabaseFile string // Optional: path to SQLite database file (default: ./gate.db)
	PepperFile   string // Optional: path to file containing pepper for password hashing (default: ./pepper)
	RedisURL     string // Optional: shares role-switch counters between instances

	SwitchLimit  int           // Role switches per MASTER per window (default: 10)
	SwitchWindow time.Duration // (default: 15m)
	CookieSecure bool          // Mark session cookies Secure (default: true outside dev)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Rate-limit sweep interval (default: 5m)
}

func LoadConfig() Config {
	env := getEnvOrDefault("ENV", "dev")

	return Config{
		SigningSecret: os.Getenv("GATE_SIGNING_SECRET"),
		Issuer:        getEnvOrDefault("GATE_ISSUER", "schoolgate"),
		SessionTTL:    getEnvDurationOrDefault("SESSION_TTL", 8*time.Hour),
		DevHosts:      getEnvListOrDefault("DEV_HOSTS", nil),

		TrustedProxies: getEnvListOrDefault("TRUSTED_PROXIES", nil),

		OAuthIssuer:   os.Getenv("OAUTH_ISSUER"),
		OAuthJWKSFile: os.Getenv("OAUTH_JWKS_FILE"),

		DatabaseFile: getEnvOrDefault("DATABASE_FILE", "gate.db"),
		PepperFile:   getEnvOrDefault("PEPPER_FILE", "pepper"),
		RedisURL:     os.Getenv("REDIS_URL"),

		SwitchLimit:  getEnvIntOrDefault("SWITCH_LIMIT", 10),
		SwitchWindow: getEnvDurationOrDefault("SWITCH_WINDOW", 15*time.Minute),
		CookieSecure: getEnvBoolOrDefault("COOKIE_SECURE", env != "dev"),

		Env:                  env,
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 5*time.Minute),
	}
}

// Validate reports every problem with cfg at once.
func (cfg Config) Validate() error {
	var errs []error

	if len(cfg.SigningSecret) < MinSecretLen {
		errs = append(errs, fmt.Errorf("GATE_SIGNING_SECRET must be at least %d bytes", MinSecretLen))
	}
	if cfg.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if cfg.SwitchLimit <= 0 {
		errs = append(errs, errors.New("SWITCH_LIMIT must be positive"))
	}
	if cfg.SwitchWindow <= 0 {
		errs = append(errs, errors.New("SWITCH_WINDOW must be positive"))
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", cfg.Port))
	}
	if cfg.OAuthJWKSFile != "" && cfg.OAuthIssuer == "" {
		errs = append(errs, errors.New("OAUTH_ISSUER is required when OAUTH_JWKS_FILE is set"))
	}
	if _, err := httpx.ParseTrustedProxies(cfg.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %w", err))
	}
	if _, err := slogx.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if cfg.Env == "prod" && len(cfg.DevHosts) > 0 {
		errs = append(errs, errors.New("DEV_HOSTS must be empty in prod"))
	}

	return errors.Join(errs...)
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

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

// getEnvListOrDefault splits a comma-separated value, dropping blanks.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
