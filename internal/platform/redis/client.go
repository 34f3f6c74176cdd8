// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package redis provides a managed client for volatile data storage.

In idgate it backs two short-lived concerns: the ledger of consumed password
reset tokens and the lock that keeps concurrent instances from sweeping the
session store on the same tick.

Core Responsibilities:

  - Volatility: Handles data with TTL (Time-To-Live).
  - Coordination: Provides a SETNX based lock with owner-checked release.
  - Safety: Manages connection pooling and retry logic automatically.
*/
package redis

import (
	stdctx "context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Opiniated default timeouts for Redis operations.
const (
	dialTimeout  = 3 * time.Second
	readTimeout  = 2 * time.Second
	writeTimeout = 2 * time.Second
	pingTimeout  = 2 * time.Second
)

// ErrLockHeld is returned by [AcquireLock] when another owner holds the key.
var ErrLockHeld = errors.New("redis: lock held by another owner")

// NewClient parses a Redis URL and returns a ready-to-use client.
//
// # Parameters
//   - context: Context for the initial ping.
//   - redisURL: Redis connection URL.
//   - logger: Structured logger for connection events.
func NewClient(context stdctx.Context, redisURL string, logger *slog.Logger) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}

	options.PoolSize = 10
	options.MinIdleConns = 2
	options.MaxIdleConns = 5

	options.DialTimeout = dialTimeout
	options.ReadTimeout = readTimeout
	options.WriteTimeout = writeTimeout

	client := redis.NewClient(options)

	// Validate connectivity immediately at startup.
	if err := Ping(context, client); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("redis_client_connected",
		slog.String("addr", options.Addr),
		slog.Int("pool_size", options.PoolSize),
	)

	return client, nil
}

// Ping verifies that the Redis client is healthy.
func Ping(context stdctx.Context, client *redis.Client) error {
	pingCtx, cancel := stdctx.WithTimeout(context, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis: ping failed: %w", err)
	}

	return nil
}

// # Distributed Lock

// releaseScript deletes the key only when it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a held SETNX lock.
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

// AcquireLock tries once to take key for ttl. It returns [ErrLockHeld] when the
// key already exists.
func AcquireLock(context stdctx.Context, client *redis.Client, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()

	acquired, err := client.SetNX(context, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: lock %s failed: %w", key, err)
	}
	if !acquired {
		return nil, ErrLockHeld
	}

	return &Lock{client: client, key: key, token: token}, nil
}

// Release frees the lock if it is still owned. An expired lock is not an error.
func (lock *Lock) Release(context stdctx.Context) error {
	if err := releaseScript.Run(context, lock.client, []string{lock.key}, lock.token).Err(); err != nil {
		return fmt.Errorf("redis: unlock %s failed: %w", lock.key, err)
	}
	return nil
}
