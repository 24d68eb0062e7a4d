package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	ListenAddr string

	// CacheFile is where the most recent metrics result is written.
	CacheFile string

	// DatabaseURL enables the run history store when set (PostgreSQL URL).
	DatabaseURL string

	// RetentionDays is how long run history rows are kept.
	RetentionDays int

	// AdminUser and AdminPasswordHash (bcrypt) turn on basic auth for the
	// dashboard and the data endpoints. Both must be set.
	AdminUser         string
	AdminPasswordHash string

	LogLevel  string
	LogFormat string

	KlaviyoBaseURL  string
	KlaviyoRevision string
	KlaviyoTimeout  time.Duration

	// KlaviyoAPIKey is the fallback key used when a caller does not supply one.
	KlaviyoAPIKey string
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	cfg := &Config{
		ListenAddr:        getenv("APP_LISTEN_ADDR", ":8080"),
		CacheFile:         getenv("APP_CACHE_FILE", "public/exports/swapt_data.json"),
		DatabaseURL:       os.Getenv("APP_DATABASE_URL"),
		RetentionDays:     90,
		AdminUser:         os.Getenv("APP_ADMIN_USER"),
		AdminPasswordHash: os.Getenv("APP_ADMIN_PASSWORD_HASH"),
		LogLevel:          getenv("APP_LOG_LEVEL", "info"),
		LogFormat:         getenv("APP_LOG_FORMAT", "json"),
		KlaviyoBaseURL:    getenv("KLAVIYO_BASE_URL", "https://a.klaviyo.com/api"),
		KlaviyoRevision:   getenv("KLAVIYO_REVISION", "2024-10-15"),
		KlaviyoTimeout:    30 * time.Second,
		KlaviyoAPIKey:     getenv("KLAVIYO_API_KEY", os.Getenv("SWAPT_KLAVIYO_API_KEY")),
	}

	if v := os.Getenv("APP_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.RetentionDays = days
		}
	}
	if v := os.Getenv("KLAVIYO_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.KlaviyoTimeout = time.Duration(secs) * time.Second
		}
	}

	return cfg
}

// AuthEnabled reports whether dashboard basic auth is configured.
func (c *Config) AuthEnabled() bool {
	return c.AdminUser != "" && c.AdminPasswordHash != ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
