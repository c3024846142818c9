package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage backend names accepted by Config.Backend.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds the complete application configuration, loadable from
// environment variables (CART_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Backend      string `default:"postgres" usage:"Cart storage backend: postgres or redis"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (CART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL     string `usage:"Redis connection URL, required for the redis backend (CART_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	Currency     string `default:"USD" usage:"ISO 4217 currency code reported in cart responses"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (CART_API_KEY_PEPPER)" flag:"api-key-pepper"`
	GuestCookie  GuestCookieConfig
	Session      SessionConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// GuestCookieConfig controls the guest cart token cookie.
type GuestCookieConfig struct {
	Name   string        `default:"cart_token" usage:"Guest token cookie name" flag:"cookie-name"`
	TTL    time.Duration `default:"720h" usage:"Guest token cookie lifetime" flag:"cookie-ttl"`
	Secure bool          `default:"true" usage:"Mark the guest cookie Secure" flag:"cookie-secure"`
}

// SessionConfig controls cart lifetimes on the ephemeral backend. The
// durable backend keeps carts indefinitely and ignores these.
type SessionConfig struct {
	GuestTTL time.Duration `default:"720h" usage:"Guest cart lifetime on the redis backend" flag:"guest-ttl"`
	UserTTL  time.Duration `default:"2160h" usage:"User cart lifetime on the redis backend" flag:"user-ttl"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"true" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CART",
		Files:     []string{"config.yaml", "/etc/cartd/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Backend != BackendPostgres && c.Backend != BackendRedis {
		return errors.Errorf("unknown backend %q: want %s or %s", c.Backend, BackendPostgres, BackendRedis)
	}
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set CART_DATABASE_URL or DATABASE_URL")
	}
	if c.Backend == BackendRedis && c.RedisURL == "" {
		return errors.New("redis URL is required for the redis backend: set CART_REDIS_URL or REDIS_URL")
	}

	return nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and PORT
// to the application's CART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.RedisURL == "" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.RedisURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
