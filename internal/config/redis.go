package config

// Redis backs the shared login-attempt limiter and the department listing
// cache.  Both are optional: when no address is configured, or the server
// does not answer the startup ping, NewRedisClient returns nil and callers
// fall back to the in-process limiter and skip caching.

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection parameters for Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

// LoadRedisConfig reads Redis settings from the environment:
//   - REDIS_HOST and REDIS_PORT: hostname and port of the Redis server
//   - REDIS_ADDR: host:port shorthand, used when REDIS_HOST is not set
//   - REDIS_PASSWORD: optional password
//   - REDIS_DB: database number (default 0)
//   - REDIS_TLS: enable TLS when "true" or "1"
//
// Addr is empty when Redis is not configured at all.
func LoadRedisConfig() RedisConfig {
	addr := envStr("REDIS_ADDR", "")
	host, port := envStr("REDIS_HOST", ""), envStr("REDIS_PORT", "6379")
	if host != "" {
		addr = host + ":" + port
	}
	tlsEnv := envStr("REDIS_TLS", "")
	return RedisConfig{
		Addr:     addr,
		Password: envStr("REDIS_PASSWORD", ""),
		DB:       envInt("REDIS_DB", 0),
		TLS:      strings.EqualFold(tlsEnv, "true") || tlsEnv == "1",
	}
}

// NewRedisClient connects using cfg and pings the server with a short
// timeout.  It returns nil when cfg.Addr is empty or the ping fails.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      cfg.Addr,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
