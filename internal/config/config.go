// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"passgate.org/internal/access"
	"passgate.org/internal/obs"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string
	PGDSN    string

	AuthSecret string
	TokenTTL   time.Duration

	RateBurst  int
	RatePerSec float64

	BootstrapAdminEmail    string
	BootstrapAdminPassword string

	MaxUnauthorizedAttempts int
	SuspensionDuration      time.Duration
	ReactivationInterval    time.Duration
	SuspensionClock         access.SuspensionClock

	LogLevel string
}

// LoadDotenv reads .env (or PASSGATE_ENV_FILE) into the process
// environment. Variables already set win. A missing file is not an error.
func LoadDotenv() {
	path := getenv("PASSGATE_ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		obs.Warn("dotenv load failed", map[string]any{"path": path, "error": err})
	}
}

// Load builds a Config from the environment. Invalid values fall back to
// their defaults with a warning.
func Load() Config {
	return Config{
		HTTPAddr:                getenv("PASSGATE_HTTP_ADDR", ":8080"),
		GRPCAddr:                lookup("PASSGATE_GRPC_ADDR", ":9090"),
		PGDSN:                   getenv("PASSGATE_PG_DSN", ""),
		AuthSecret:              getenv("PASSGATE_AUTH_SECRET", ""),
		TokenTTL:                getDuration("PASSGATE_TOKEN_TTL", time.Hour),
		RateBurst:               getInt("PASSGATE_RATE_BURST", 20),
		RatePerSec:              getFloat("PASSGATE_RATE_PER_SEC", 10),
		BootstrapAdminEmail:     getenv("PASSGATE_BOOTSTRAP_ADMIN_EMAIL", ""),
		BootstrapAdminPassword:  getenv("PASSGATE_BOOTSTRAP_ADMIN_PASSWORD", ""),
		MaxUnauthorizedAttempts: getPositiveInt("MAX_UNAUTHORIZED_ATTEMPTS", 5),
		SuspensionDuration:      time.Duration(getPositiveInt("SUSPENSION_DURATION", 3600)) * time.Second,
		ReactivationInterval:    getDuration("REACTIVATION_INTERVAL", time.Minute),
		SuspensionClock:         getClock("SUSPENSION_CLOCK", access.ClockUpdatedAt),
		LogLevel:                getenv("PASSGATE_LOG_LEVEL", "info"),
	}
}

// EngineOptions maps the suspension settings onto engine options.
func (c Config) EngineOptions() []access.Option {
	return []access.Option{
		access.WithMaxUnauthorizedAttempts(c.MaxUnauthorizedAttempts),
		access.WithSuspensionDuration(c.SuspensionDuration),
		access.WithSuspensionClock(c.SuspensionClock),
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// lookup distinguishes an explicitly empty variable from an unset one.
func lookup(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func invalid(key, value string, def any, err error) {
	obs.Warn("invalid config value, using default", map[string]any{
		"key":     key,
		"value":   value,
		"default": def,
		"error":   err,
	})
}

func getInt(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		invalid(key, v, def, err)
		return def
	}
	return i
}

func getPositiveInt(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err == nil && i <= 0 {
		err = errors.New("must be positive")
	}
	if err != nil {
		invalid(key, v, def, err)
		return def
	}
	return i
}

func getFloat(key string, def float64) float64 {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err == nil && f <= 0 {
		err = errors.New("must be positive")
	}
	if err != nil {
		invalid(key, v, def, err)
		return def
	}
	return f
}

// getDuration accepts Go durations ("90s") or bare seconds ("90").
func getDuration(key string, def time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err == nil && d <= 0 {
		err = errors.New("must be positive")
	}
	if err != nil {
		invalid(key, v, def, err)
		return def
	}
	return d
}

func getClock(key string, def access.SuspensionClock) access.SuspensionClock {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	c, ok := access.ParseSuspensionClock(strings.ToLower(v))
	if !ok {
		invalid(key, v, def, errors.New("want updated_at or suspended_at"))
		return def
	}
	return c
}
