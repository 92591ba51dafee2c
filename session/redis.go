package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Cache backed by Redis. Values are written with SET EX.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing client. The cache owns it from then on.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

var (
	_ Cache         = (*RedisCache)(nil)
	_ HealthChecker = (*RedisCache)(nil)
)

func (r *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Health pings Redis and reads the server version and uptime.
func (r *RedisCache) Health(ctx context.Context) Health {
	h := Health{Enabled: true, Backend: "redis"}
	if err := r.client.Ping(ctx).Err(); err != nil {
		h.Status = StatusError
		h.Message = err.Error()
		return h
	}
	h.Status = StatusHealthy

	info, err := r.client.Info(ctx, "server").Result()
	if err != nil {
		return h
	}
	fields := parseInfo(info)
	h.Version = fields["redis_version"]
	h.UptimeDays, _ = strconv.Atoi(fields["uptime_in_days"])
	return h
}

// parseInfo reads the "key:value" lines of an INFO reply.
func parseInfo(info string) map[string]string {
	fields := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if ok {
			fields[k] = v
		}
	}
	return fields
}
