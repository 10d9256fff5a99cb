// Package config provides configuration loading and validation for the
// API server. It uses koanf to merge environment variables with an
// optional file override; environment variables take precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Datastore. Empty in development selects in-memory stores.
	DatabaseURL string `koanf:"database_url"`

	// Token signing secret (HMAC-SHA-256).
	JWTSecret string `koanf:"jwt_secret"`

	// Redis, used for the shared login rate limit. Optional; empty
	// selects the in-memory limiter.
	RedisURL string `koanf:"redis_url"`

	// Tunables.
	SessionTimeout time.Duration `koanf:"-"`
	TokenTTL       time.Duration `koanf:"-"`
}

// Configuration validation errors.
var (
	ErrMissingJWTSecret   = errors.New("JWT_SECRET is required")
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required in production")
	ErrInvalidPort        = errors.New("PORT must be a valid integer")
)

// Default values for non-secret configuration.
const (
	DefaultPort                  = 8080
	DefaultEnv                   = "development"
	DefaultSessionTimeoutMinutes = 30
	DefaultTokenTTLMinutes       = 30

	// devJWTSecret is only ever used when Env is development.
	devJWTSecret = "dev-secret-not-for-production"
)

// Load reads configuration from environment variables and an optional
// YAML file. Returns the loaded config and a slice of validation errors
// (empty if valid).
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, err := getEnvIntOrDefault("PORT", k.Int("port"), DefaultPort)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	sessionTimeout, err := getEnvIntOrDefault("SESSION_TIMEOUT_MINUTES",
		k.Int("session_timeout_minutes"), DefaultSessionTimeoutMinutes)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	tokenTTL, err := getEnvIntOrDefault("TOKEN_TTL_MINUTES",
		k.Int("token_ttl_minutes"), DefaultTokenTTLMinutes)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	cfg := &Config{
		Port:           port,
		Env:            getEnvOrDefault("ENV", k.String("env"), DefaultEnv),
		DatabaseURL:    getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		JWTSecret:      getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		RedisURL:       getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		SessionTimeout: time.Duration(sessionTimeout) * time.Minute,
		TokenTTL:       time.Duration(tokenTTL) * time.Minute,
	}

	// Development keeps working with no environment at all; production
	// must be explicit about its secrets.
	if cfg.JWTSecret == "" && cfg.Env == DefaultEnv {
		cfg.JWTSecret = devJWTSecret
	}

	errs := append(loadErrs, cfg.Validate()...)
	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise
// the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise the koanf value, or the default.
func getEnvOrDefault(envKey, koanfVal, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set,
// otherwise the koanf value, or the default. Errors if the environment
// variable is set but not an integer.
func getEnvIntOrDefault(envKey string, koanfVal, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, ErrInvalidPort)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
func (c *Config) Validate() []error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.DatabaseURL == "" && c.Env == "production" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	return errs
}

// LogSummary returns a summary of the configuration suitable for
// logging. Secrets are masked.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":            fmt.Sprintf("%d", c.Port),
		"env":             c.Env,
		"database_url":    maskDatabaseURL(c.DatabaseURL),
		"jwt_secret":      maskSecret(c.JWTSecret),
		"redis_url":       maskDatabaseURL(c.RedisURL),
		"session_timeout": c.SessionTimeout.String(),
		"token_ttl":       c.TokenTTL.String(),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a connection URL.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}
	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s
	}
	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s
	}

	return s[:schemeEnd+3] + rest[:colonIndex] + ":****" + rest[atIndex:]
}
