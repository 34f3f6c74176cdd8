// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/taibuivan/idgate/internal/platform/constants"
	"github.com/taibuivan/idgate/internal/platform/metrics"
	"github.com/taibuivan/idgate/internal/platform/redis"
)

// ErrSweepSkipped reports that another instance holds the sweep lock.
var ErrSweepSkipped = errors.New("session: sweep skipped, lock held elsewhere")

// Locker grants one instance at a time the right to sweep.
type Locker interface {
	TryLock(context context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// RedisLocker implements [Locker] with the platform SETNX lock.
type RedisLocker struct {
	client *goredis.Client
}

// NewRedisLocker creates a Redis-backed [Locker].
func NewRedisLocker(client *goredis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// TryLock implements [Locker]. A held lock maps to [ErrSweepSkipped].
func (locker *RedisLocker) TryLock(context context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := redis.AcquireLock(context, locker.client, key, ttl)
	if err != nil {
		if errors.Is(err, redis.ErrLockHeld) {
			return nil, ErrSweepSkipped
		}
		return nil, err
	}
	return lock.Release, nil
}

// Sweeper periodically removes expired and idle sessions.
type Sweeper struct {
	manager    *Manager
	locker     Locker
	interval   time.Duration
	inactivity time.Duration
	metrics    metrics.Recorder
	logger     *slog.Logger
}

// NewSweeper wires a sweeper running every interval.
func NewSweeper(manager *Manager, locker Locker, interval, inactivity time.Duration, recorder metrics.Recorder, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		manager:    manager,
		locker:     locker,
		interval:   interval,
		inactivity: inactivity,
		metrics:    recorder,
		logger:     logger,
	}
}

/*
Run sweeps immediately and then on every tick until ctx is cancelled.

Description: Failures are logged and counted. They never stop the loop; the
next tick retries whatever rows remain eligible.

Parameters:
  - ctx: context.Context
*/
func (sweeper *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sweeper.interval)
	defer ticker.Stop()

	sweeper.logger.InfoContext(ctx, "session_sweeper_started",
		slog.Duration("interval", sweeper.interval),
		slog.Duration("inactivity", sweeper.inactivity),
	)

	for {
		sweeper.tick(ctx)

		select {
		case <-ctx.Done():
			sweeper.logger.InfoContext(ctx, "session_sweeper_stopped")
			return
		case <-ticker.C:
		}
	}
}

func (sweeper *Sweeper) tick(ctx context.Context) {
	result, err := sweeper.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrSweepSkipped):
		sweeper.logger.DebugContext(ctx, "session_sweep_skipped")
	case err != nil:
		sweeper.metrics.RecordSweepFailure()
		sweeper.logger.ErrorContext(ctx, "session_sweep_failed", slog.Any("error", err))
	default:
		sweeper.logger.InfoContext(ctx, "session_sweep_completed",
			slog.Int64("expired", result.Expired),
			slog.Int64("inactive", result.Inactive),
		)
	}
}

/*
RunOnce performs a single locked sweep.

Parameters:
  - ctx: context.Context

Returns:
  - SweepResult: Rows removed
  - error: ErrSweepSkipped, lock or storage failures, or a recovered panic
*/
func (sweeper *Sweeper) RunOnce(ctx context.Context) (result SweepResult, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("session_sweep_panic: %v", recovered)
		}
	}()

	release, err := sweeper.locker.TryLock(ctx, constants.RedisKeySweepLock, sweeper.interval)
	if err != nil {
		return SweepResult{}, err
	}
	defer func() {
		if releaseErr := release(context.WithoutCancel(ctx)); releaseErr != nil {
			sweeper.logger.WarnContext(ctx, "session_sweep_unlock_failed", slog.Any("error", releaseErr))
		}
	}()

	return sweeper.manager.Sweep(ctx, sweeper.inactivity)
}
