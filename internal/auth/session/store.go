// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"time"
)

// Store defines the persistence contract for sessions. Implementations must be
// safe for concurrent use.
type Store interface {

	/*
		Create persists a new session. A second row for the same (user, device)
		is a conflict.

		Parameters:
		  - context: context.Context
		  - session: *Session

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, session *Session) error

	/*
		Find returns the session of a user's device.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - deviceID: string

		Returns:
		  - *Session: Hydrated entity
		  - error: apperr.NotFound or storage errors
	*/
	Find(context context.Context, userID, deviceID string) (*Session, error)

	/*
		SwapToken replaces the token hash only if it still equals currentHash.

		Parameters:
		  - context: context.Context
		  - id: string
		  - currentHash: string
		  - nextHash: string
		  - expiresAt: time.Time

		Returns:
		  - bool: false when another writer got there first
		  - error: Storage errors
	*/
	SwapToken(context context.Context, id, currentHash, nextHash string, expiresAt time.Time) (bool, error)

	// Delete removes a user's device session. A missing row is not an error.
	Delete(context context.Context, userID, deviceID string) (bool, error)

	// DeleteByProvider removes every session of a (user, provider) pair.
	DeleteByProvider(context context.Context, userID, providerName string) (int64, error)

	// DeleteExpired removes sessions whose token expired before now.
	DeleteExpired(context context.Context, now time.Time) (int64, error)

	// DeleteIdle removes sessions not updated since before.
	DeleteIdle(context context.Context, before time.Time) (int64, error)
}
