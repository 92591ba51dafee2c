package session

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultConnectTimeout bounds the startup connectivity check.
const DefaultConnectTimeout = 5 * time.Second

// Config selects and configures the cache backend.
type Config struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int

	// URL overrides Host, Port, Password and DB when set,
	// e.g. redis://:secret@redis:6379/0.
	URL string

	TTL            time.Duration
	ConnectTimeout time.Duration
}

// Options converts the config into go-redis options.
func (c Config) Options() (*redis.Options, error) {
	timeout := c.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	if c.URL != "" {
		opts, err := redis.ParseURL(c.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts.DialTimeout = timeout
		return opts, nil
	}
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = 6379
	}
	return &redis.Options{
		Addr:        net.JoinHostPort(host, strconv.Itoa(port)),
		Password:    c.Password,
		DB:          c.DB,
		DialTimeout: timeout,
	}, nil
}

// NewFromConfig builds the cache described by cfg. When Redis is enabled but
// cannot be reached, it logs a warning and returns a memory cache whose health
// reports the failure.
func NewFromConfig(ctx context.Context, cfg Config, logger *slog.Logger) Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		logger.Info("redis disabled, using in-memory session cache")
		return NewMemoryCache()
	}

	opts, err := cfg.Options()
	if err != nil {
		logger.Warn("redis misconfigured, falling back to in-memory session cache", "error", err)
		return &fallbackCache{MemoryCache: NewMemoryCache(), err: err}
	}

	rc := NewRedisCache(redis.NewClient(opts))
	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := rc.Ping(pingCtx); err != nil {
		_ = rc.Close()
		logger.Warn("redis unreachable, falling back to in-memory session cache", "addr", opts.Addr, "error", err)
		return &fallbackCache{MemoryCache: NewMemoryCache(), err: err}
	}

	logger.Info("redis session cache connected", "addr", opts.Addr, "db", opts.DB)
	return rc
}
