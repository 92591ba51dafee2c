// Package session maps upstream conversation ids to the caller id that
// started them, so follow-up requests reuse the same upstream user.
//
// Two backends are provided: [MemoryCache] for a single process and
// [RedisCache] for deployments with several gateway replicas. [NewFromConfig]
// picks one and falls back to memory when Redis is unreachable.
package session

import (
	"context"
	"time"
)

// KeyPrefix is prepended to conversation ids to form cache keys.
const KeyPrefix = "conv:"

// DefaultTTL is how long a mapping is kept.
const DefaultTTL = 7 * 24 * time.Hour

// Health statuses.
const (
	StatusDisabled = "disabled"
	StatusHealthy  = "healthy"
	StatusError    = "error"
)

// Cache stores string values with an expiry.
type Cache interface {
	// Get returns the value for key. A miss returns ok=false and a nil error.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key for ttl. A non-positive ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	Close() error
}

// Health describes the state of a cache backend.
type Health struct {
	Enabled    bool   `json:"redis_enabled"`
	Status     string `json:"status"`
	Backend    string `json:"backend"`
	Version    string `json:"redis_version,omitempty"`
	UptimeDays int    `json:"uptime_days,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Degraded reports whether an enabled backend is failing.
func (h Health) Degraded() bool {
	return h.Enabled && h.Status == StatusError
}

// HealthChecker is implemented by caches that can report their health.
type HealthChecker interface {
	Health(ctx context.Context) Health
}

// ConversationKey returns the cache key for a conversation id.
func ConversationKey(conversationID string) string {
	return KeyPrefix + conversationID
}

// CheckHealth returns the health of c, or a disabled status when c cannot
// report one.
func CheckHealth(ctx context.Context, c Cache) Health {
	if hc, ok := c.(HealthChecker); ok {
		return hc.Health(ctx)
	}
	return Health{Status: StatusDisabled, Backend: "none"}
}
