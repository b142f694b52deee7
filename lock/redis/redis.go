// Package redis implements lock.Locker on Redis with SET NX and a
// check-and-delete release script.
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Options holds the Redis connection settings.
type Options struct {
	Addr     string `toml:"addr" yaml:"addr"`
	Password string `toml:"password" yaml:"password"`
	DB       int    `toml:"db" yaml:"db"`
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a Redis-backed lock.Locker.
type Locker struct {
	client redis.UniversalClient

	mu     sync.Mutex
	tokens map[string]string // key -> token we hold
}

// New wraps an existing client.
func New(client redis.UniversalClient) *Locker {
	return &Locker{client: client, tokens: make(map[string]string)}
}

// NewClient connects to Redis, verifies the connection with a ping and
// returns the Locker with a cleanup func closing the client.
func NewClient(opts Options, log zerolog.Logger) (*Locker, func(), error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Debug().Str("addr", opts.Addr).Msg("redis lock client initialized")
	cleanup := func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("closing redis client")
		}
	}
	return New(rdb), cleanup, nil
}

// Acquire sets key to a fresh token with SET NX and expiry ttl.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SetNX error for lock key '%s': %w", key, err)
	}
	if acquired {
		l.mu.Lock()
		l.tokens[key] = token
		l.mu.Unlock()
	}
	return acquired, nil
}

// Release deletes key if it still holds the token set by Acquire. A lock
// that expired and was taken by someone else is left alone.
func (l *Locker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	token, ok := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis release error for lock key '%s': %w", key, err)
	}
	return nil
}
