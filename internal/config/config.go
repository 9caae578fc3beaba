// Environment-driven service configuration.
//
// Environment variables:
//   - PORT (default: 8080)
//   - TRUSTED_PROXIES: comma separated IPs/CIDRs allowed to set X-Forwarded-For (default: none)
//   - JWT_SECRET_KEY: HMAC key for access tokens (required)
//   - JWT_ISSUER (default: StudentApi), JWT_AUDIENCE (default: StudentApiUsers)
//   - JWT_ACCESS_TTL (default: 5m), JWT_REFRESH_TTL (default: 168h)
//   - STORE_DRIVER: memory | postgres (default: memory)
//   - DATABASE_URL or PGHOST/PGPORT/PGUSER/PGPASSWORD/PGDATABASE/PGSSLMODE
//   - REDIS_URL: enables the login throttle and Redis stream events (default: disabled)
//   - LOGIN_RATE_LIMIT (default: 10), LOGIN_RATE_WINDOW (default: 1m)
//   - CORS_ALLOWED_ORIGINS: comma separated
//   - LOG_LEVEL: debug | info | warn | error (default: info)

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Store     StoreConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port           string
	TrustedProxies []string
}

type AuthConfig struct {
	JWTSecret     string
	Issuer        string
	Audience      string
	JWTAccessTTL  string
	JWTRefreshTTL string
}

type StoreConfig struct {
	Driver string
}

type PostgresConfig struct {
	DatabaseURL string
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	SSLMode     string
}

type RedisConfig struct {
	URL string
}

type RateLimitConfig struct {
	Limit  string
	Window string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level string
}

func Load() Config {
	return Config{
		Server: ServerConfig{
			Port:           getenv("PORT", "8080"),
			TrustedProxies: splitList(os.Getenv("TRUSTED_PROXIES")),
		},
		Auth: AuthConfig{
			JWTSecret:     os.Getenv("JWT_SECRET_KEY"),
			Issuer:        getenv("JWT_ISSUER", "StudentApi"),
			Audience:      getenv("JWT_AUDIENCE", "StudentApiUsers"),
			JWTAccessTTL:  getenv("JWT_ACCESS_TTL", "5m"),
			JWTRefreshTTL: getenv("JWT_REFRESH_TTL", "168h"),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getenv("STORE_DRIVER", StoreMemory)),
		},
		Postgres: PostgresConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Host:        getenv("PGHOST", "localhost"),
			Port:        getenv("PGPORT", "5432"),
			User:        os.Getenv("PGUSER"),
			Password:    os.Getenv("PGPASSWORD"),
			Database:    os.Getenv("PGDATABASE"),
			SSLMode:     getenv("PGSSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		RateLimit: RateLimitConfig{
			Limit:  getenv("LOGIN_RATE_LIMIT", "10"),
			Window: getenv("LOGIN_RATE_WINDOW", "1m"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(getenv("CORS_ALLOWED_ORIGINS", "https://localhost:7217,http://localhost:5215")),
		},
		Log: LogConfig{
			Level: getenv("LOG_LEVEL", "info"),
		},
	}
}

// Validate reports the first setting that would prevent the service from starting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("%w: JWT_SECRET_KEY is required", ErrInvalidConfig)
	}
	for _, proxy := range c.Server.TrustedProxies {
		if !validProxy(proxy) {
			return fmt.Errorf("%w: invalid TRUSTED_PROXIES entry %q", ErrInvalidConfig, proxy)
		}
	}
	if _, err := c.Auth.AccessTTL(); err != nil {
		return err
	}
	if _, err := c.Auth.RefreshTTL(); err != nil {
		return err
	}
	switch c.Store.Driver {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("%w: unknown STORE_DRIVER %q", ErrInvalidConfig, c.Store.Driver)
	}
	if c.Redis.URL != "" {
		if _, _, err := c.RateLimit.Parse(); err != nil {
			return err
		}
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

func (a AuthConfig) AccessTTL() (time.Duration, error) {
	return parsePositiveDuration("JWT_ACCESS_TTL", a.JWTAccessTTL)
}

func (a AuthConfig) RefreshTTL() (time.Duration, error) {
	return parsePositiveDuration("JWT_REFRESH_TTL", a.JWTRefreshTTL)
}

func (r RateLimitConfig) Parse() (int, time.Duration, error) {
	limit, err := strconv.Atoi(strings.TrimSpace(r.Limit))
	if err != nil || limit < 1 {
		return 0, 0, fmt.Errorf("%w: invalid LOGIN_RATE_LIMIT", ErrInvalidConfig)
	}
	window, err := parsePositiveDuration("LOGIN_RATE_WINDOW", r.Window)
	if err != nil {
		return 0, 0, err
	}
	return limit, window, nil
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(l.Level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: invalid LOG_LEVEL %q", ErrInvalidConfig, l.Level)
	}
	return level, nil
}

func parsePositiveDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", ErrInvalidConfig, name)
	}
	return d, nil
}

func validProxy(value string) bool {
	if net.ParseIP(value) != nil {
		return true
	}
	_, _, err := net.ParseCIDR(value)
	return err == nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
