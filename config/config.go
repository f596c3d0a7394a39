// Package config loads application settings from a .env file and environment variables.
// Environment variables always take precedence over .env file values.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	// PostgreSQL – either set DatabaseURL directly, or the individual fields.
	DatabaseURL string
	DBUser      string
	DBPass      string
	DBHost      string
	DBPort      string
	DBName      string
	DBSSLMode   string

	// Signs session tokens and keys the admin-key hash. Required.
	SessionSecret string
	SessionTTL    time.Duration
	// How often expired sessions are purged.
	SessionCleanupInterval time.Duration

	// Admin key seeding.
	AdminKeysFile     string
	BootstrapAdminKey string

	// Optional Redis for the overlay cache. Empty disables it.
	RedisAddr       string
	OverlayCacheTTL time.Duration

	// Default CSV used by slot imports.
	SlotsCSV string

	// Server
	Debug      bool
	Port       string
	TLSDomains []string
}

// Load reads configuration from a .env file (if present) and then from
// environment variables. Environment variables always win.
func Load() *Config {
	// Silently load .env – OK if the file doesn't exist (production uses real env vars).
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file found, using environment variables only")
	}

	v := viper.New()
	v.AutomaticEnv()

	cfg, err := Parse(v)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

// Parse builds a Config from v, applying defaults, and validates it.
func Parse(v *viper.Viper) (*Config, error) {
	// Defaults
	v.SetDefault("DB_USER", "hunts")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "bonushunt")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("SESSION_CLEANUP_INTERVAL", "1h")
	v.SetDefault("ADMIN_KEYS_FILE", "admin-keys.yaml")
	v.SetDefault("OVERLAY_CACHE_TTL", "1s")
	v.SetDefault("SLOTS_CSV", "data/slots.csv")
	v.SetDefault("PORT", ":9000")
	v.SetDefault("TLS_DOMAINS", "")
	v.SetDefault("DEBUG", false)

	cfg := &Config{
		DatabaseURL:            v.GetString("DATABASE_URL"),
		DBUser:                 v.GetString("DB_USER"),
		DBPass:                 v.GetString("DB_PASS"),
		DBHost:                 v.GetString("DB_HOST"),
		DBPort:                 v.GetString("DB_PORT"),
		DBName:                 v.GetString("DB_NAME"),
		DBSSLMode:              v.GetString("DB_SSLMODE"),
		SessionSecret:          v.GetString("SESSION_SECRET"),
		SessionTTL:             v.GetDuration("SESSION_TTL"),
		SessionCleanupInterval: v.GetDuration("SESSION_CLEANUP_INTERVAL"),
		AdminKeysFile:          v.GetString("ADMIN_KEYS_FILE"),
		BootstrapAdminKey:      strings.TrimSpace(v.GetString("BOOTSTRAP_ADMIN_KEY")),
		RedisAddr:              v.GetString("REDIS_ADDR"),
		OverlayCacheTTL:        v.GetDuration("OVERLAY_CACHE_TTL"),
		SlotsCSV:               v.GetString("SLOTS_CSV"),
		Debug:                  v.GetBool("DEBUG"),
		Port:                   v.GetString("PORT"),
		TLSDomains:             splitTrimmed(v.GetString("TLS_DOMAINS")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PostgresDSN returns the full PostgreSQL connection string.
// DATABASE_URL takes precedence over individual fields.
func (c *Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser,
		c.DBPass,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

// SecretKey returns the session secret as a byte slice.
func (c *Config) SecretKey() []byte {
	return []byte(c.SessionSecret)
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" && c.DBPass == "" {
		return errors.New("DATABASE_URL or DB_PASS must be set")
	}
	if c.SessionSecret == "" {
		return errors.New("SESSION_SECRET must be set")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.SessionCleanupInterval <= 0 {
		return fmt.Errorf("SESSION_CLEANUP_INTERVAL must be positive, got %s", c.SessionCleanupInterval)
	}
	if !c.Debug && len(c.TLSDomains) == 0 {
		return errors.New("TLS_DOMAINS must be set outside debug mode")
	}
	return nil
}

func splitTrimmed(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
