// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/idgate/internal/platform/apperr"
	"github.com/taibuivan/idgate/internal/platform/dberr"
)

// PostgresStore implements [Store] on the auth.session table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL implementation of [Store].
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

/*
Create persists a new session. (user_id, device_id) is unique.

Parameters:
  - context: context.Context
  - session: *Session

Returns:
  - error: apperr.Conflict on a duplicate device, storage failures
*/
func (store *PostgresStore) Create(context context.Context, session *Session) error {
	const query = `
		INSERT INTO auth.session (
			id, user_id, device_id, provider_name, token_hash, is_active, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := store.pool.Exec(context, query,
		session.ID,
		session.UserID,
		session.DeviceID,
		session.ProviderName,
		session.TokenHash,
		session.IsActive,
		session.ExpiresAt,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return dberr.Wrap(fmt.Errorf("postgres_session_store_create_failed: %w", err), "Session")
	}

	return nil
}

// Find implements [Store].
func (store *PostgresStore) Find(context context.Context, userID, deviceID string) (*Session, error) {
	const query = `
		SELECT id, user_id, device_id, provider_name, token_hash, is_active, expires_at, created_at, updated_at
		FROM auth.session
		WHERE user_id = $1 AND device_id = $2`

	session := &Session{}
	err := store.pool.QueryRow(context, query, userID, deviceID).Scan(
		&session.ID,
		&session.UserID,
		&session.DeviceID,
		&session.ProviderName,
		&session.TokenHash,
		&session.IsActive,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Session")
		}
		return nil, fmt.Errorf("postgres_session_store_find_failed: %w", err)
	}

	return session, nil
}

// SwapToken implements [Store] as a single conditional UPDATE.
func (store *PostgresStore) SwapToken(context context.Context, id, currentHash, nextHash string, expiresAt time.Time) (bool, error) {
	const query = `
		UPDATE auth.session
		SET token_hash = $3, expires_at = $4, updated_at = now()
		WHERE id = $1 AND token_hash = $2 AND is_active`

	tag, err := store.pool.Exec(context, query, id, currentHash, nextHash, expiresAt)
	if err != nil {
		return false, fmt.Errorf("postgres_session_store_swap_failed: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// Delete implements [Store].
func (store *PostgresStore) Delete(context context.Context, userID, deviceID string) (bool, error) {
	const query = `DELETE FROM auth.session WHERE user_id = $1 AND device_id = $2`

	tag, err := store.pool.Exec(context, query, userID, deviceID)
	if err != nil {
		return false, fmt.Errorf("postgres_session_store_delete_failed: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// DeleteByProvider implements [Store].
func (store *PostgresStore) DeleteByProvider(context context.Context, userID, providerName string) (int64, error) {
	const query = `DELETE FROM auth.session WHERE user_id = $1 AND provider_name = $2`

	tag, err := store.pool.Exec(context, query, userID, providerName)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_store_delete_provider_failed: %w", err)
	}

	return tag.RowsAffected(), nil
}

// DeleteExpired implements [Store].
func (store *PostgresStore) DeleteExpired(context context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM auth.session WHERE expires_at <= $1`

	tag, err := store.pool.Exec(context, query, now)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_store_delete_expired_failed: %w", err)
	}

	return tag.RowsAffected(), nil
}

// DeleteIdle implements [Store].
func (store *PostgresStore) DeleteIdle(context context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM auth.session WHERE updated_at < $1`

	tag, err := store.pool.Exec(context, query, before)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_store_delete_idle_failed: %w", err)
	}

	return tag.RowsAffected(), nil
}
