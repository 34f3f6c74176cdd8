// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/idgate/internal/platform/constants"
)

// minLedgerTTL keeps a marker alive for tokens that are about to expire anyway.
const minLedgerTTL = time.Second

// RedisTokenLedger implements [TokenLedger] using Redis.
type RedisTokenLedger struct {
	client *redis.Client
}

// NewTokenLedger creates a new Redis-backed [TokenLedger].
func NewTokenLedger(client *redis.Client) *RedisTokenLedger {
	return &RedisTokenLedger{client: client}
}

/*
Consume records tokenID as used.

Description: SET NX makes the first caller win atomically. The marker expires
together with the token it guards.

Parameters:
  - context: context.Context
  - tokenID: string
  - ttl: time.Duration

Returns:
  - bool: true for the first consumer
  - error: Connectivity errors
*/
func (ledger *RedisTokenLedger) Consume(context context.Context, tokenID string, ttl time.Duration) (bool, error) {
	if ttl < minLedgerTTL {
		ttl = minLedgerTTL
	}

	key := constants.RedisPrefixUsedResetToken + tokenID

	first, err := ledger.client.SetNX(context, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis_token_ledger_consume_failed: %w", err)
	}

	return first, nil
}
