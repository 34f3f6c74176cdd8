// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/idgate/internal/platform/apperr"
	"github.com/taibuivan/idgate/internal/platform/metrics"
	"github.com/taibuivan/idgate/internal/platform/sec"
	"github.com/taibuivan/idgate/pkg/uuid"
)

// Manager owns the session lifecycle.
type Manager struct {
	store   Store
	signer  *sec.Signer
	metrics metrics.Recorder
	logger  *slog.Logger
	clock   func() time.Time
}

// NewManager wires the manager. signer must issue [sec.KindSession] tokens.
func NewManager(store Store, signer *sec.Signer, recorder metrics.Recorder, logger *slog.Logger) *Manager {
	return &Manager{
		store:   store,
		signer:  signer,
		metrics: recorder,
		logger:  logger,
		clock:   time.Now,
	}
}

/*
CreateSession signs a token for a new device of a user and persists the session.

Description: Only sign-in flows call this. Every sign-in gets a freshly
generated device id, so signing in again never replaces an existing session.

Parameters:
  - context: context.Context
  - userID: string
  - providerName: string

Returns:
  - *Issued: Token, expiry and the generated device id
  - error: Signing or storage failures
*/
func (manager *Manager) CreateSession(context context.Context, userID, providerName string) (*Issued, error) {
	deviceID := uuid.New()

	token, expiresAt, err := manager.signer.Sign(userID, &sec.Claims{DeviceID: deviceID, ProviderName: providerName})
	if err != nil {
		return nil, fmt.Errorf("session_manager_sign_failed: %w", err)
	}

	now := manager.clock()
	session := &Session{
		ID:           uuid.New(),
		UserID:       userID,
		DeviceID:     deviceID,
		ProviderName: providerName,
		TokenHash:    sec.HashToken(token),
		IsActive:     true,
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := manager.store.Create(context, session); err != nil {
		return nil, err
	}

	manager.metrics.RecordSessionEvent(metrics.SessionCreated)
	manager.logger.InfoContext(context, "session_created",
		slog.String("user_id", userID),
		slog.String("device_id", deviceID),
		slog.String("provider", providerName),
	)

	return &Issued{Token: token, ExpiresAt: expiresAt, UserID: userID, DeviceID: deviceID}, nil
}

/*
RotateToken replaces a live token with a new one on the same session row.

Description: The old token must be the session's current token. The swap is
conditional on that, so of two concurrent rotations of one token exactly one
succeeds. Presenting a token that was already rotated away fails.

Parameters:
  - context: context.Context
  - oldToken: string

Returns:
  - *Issued: The replacement token
  - error: ErrInvalidToken or storage failures
*/
func (manager *Manager) RotateToken(context context.Context, oldToken string) (*Issued, error) {
	claims, session, err := manager.resolve(context, oldToken)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := manager.signer.Sign(claims.Subject, &sec.Claims{
		DeviceID:     session.DeviceID,
		ProviderName: session.ProviderName,
	})
	if err != nil {
		return nil, fmt.Errorf("session_manager_sign_failed: %w", err)
	}

	swapped, err := manager.store.SwapToken(context, session.ID, session.TokenHash, sec.HashToken(token), expiresAt)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, manager.reject(context, "rotation_lost_race")
	}

	manager.metrics.RecordSessionEvent(metrics.SessionRotated)
	manager.logger.InfoContext(context, "session_rotated",
		slog.String("user_id", session.UserID),
		slog.String("device_id", session.DeviceID),
	)

	return &Issued{Token: token, ExpiresAt: expiresAt, UserID: session.UserID, DeviceID: session.DeviceID}, nil
}

/*
ValidateToken checks a token against its live session.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - *sec.Claims: Subject, device and provider of the session
  - error: ErrInvalidToken or storage failures
*/
func (manager *Manager) ValidateToken(context context.Context, token string) (*sec.Claims, error) {
	claims, _, err := manager.resolve(context, token)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

/*
Logout deletes the session the token belongs to.

Description: A session that is already gone, or a token that was rotated away,
is a successful no-op. Only an undecodable token is an error.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - error: ErrInvalidToken or storage failures
*/
func (manager *Manager) Logout(context context.Context, token string) error {
	claims, err := manager.signer.Verify(token)
	if err != nil {
		return manager.reject(context, "undecodable")
	}

	session, err := manager.store.Find(context, claims.Subject, claims.DeviceID)
	if err != nil {
		if apperr.HasCode(err, apperr.CodeNotFound) {
			return nil
		}
		return err
	}
	if session.TokenHash != sec.HashToken(token) {
		return nil
	}

	deleted, err := manager.store.Delete(context, session.UserID, session.DeviceID)
	if err != nil {
		return err
	}

	if deleted {
		manager.metrics.RecordSessionEvent(metrics.SessionLoggedOut)
		manager.logger.InfoContext(context, "session_logged_out",
			slog.String("user_id", session.UserID),
			slog.String("device_id", session.DeviceID),
		)
	}
	return nil
}

/*
DeleteAllProviderSessions signs a user out of every device that used the provider.

Parameters:
  - context: context.Context
  - userID: string
  - providerName: string

Returns:
  - int64: Number of sessions removed
  - error: Storage failures
*/
func (manager *Manager) DeleteAllProviderSessions(context context.Context, userID, providerName string) (int64, error) {
	deleted, err := manager.store.DeleteByProvider(context, userID, providerName)
	if err != nil {
		return 0, err
	}

	manager.metrics.RecordSessionEvent(metrics.SessionPurged)
	manager.logger.InfoContext(context, "sessions_purged",
		slog.String("user_id", userID),
		slog.String("provider", providerName),
		slog.Int64("deleted", deleted),
	)

	return deleted, nil
}

/*
Sweep deletes expired sessions, then sessions idle for longer than inactivity.

Description: Both passes run even when the first one fails.

Parameters:
  - context: context.Context
  - inactivity: time.Duration

Returns:
  - SweepResult: Rows removed per pass
  - error: Joined storage failures
*/
func (manager *Manager) Sweep(context context.Context, inactivity time.Duration) (SweepResult, error) {
	now := manager.clock()

	var (
		result SweepResult
		errs   []error
		err    error
	)

	if result.Expired, err = manager.store.DeleteExpired(context, now); err != nil {
		errs = append(errs, err)
	} else {
		manager.metrics.RecordSweep("expired", result.Expired)
	}

	if result.Inactive, err = manager.store.DeleteIdle(context, now.Add(-inactivity)); err != nil {
		errs = append(errs, err)
	} else {
		manager.metrics.RecordSweep("inactive", result.Inactive)
	}

	return result, errors.Join(errs...)
}

// # Helpers

// resolve verifies a token and loads the live session it designates.
func (manager *Manager) resolve(context context.Context, token string) (*sec.Claims, *Session, error) {
	claims, err := manager.signer.Verify(token)
	if err != nil {
		return nil, nil, manager.reject(context, "undecodable")
	}

	session, err := manager.store.Find(context, claims.Subject, claims.DeviceID)
	if err != nil {
		if apperr.HasCode(err, apperr.CodeNotFound) {
			return nil, nil, manager.reject(context, "session_missing")
		}
		return nil, nil, err
	}

	if !session.IsActive {
		return nil, nil, manager.reject(context, "session_inactive")
	}
	if session.TokenHash != sec.HashToken(token) {
		return nil, nil, manager.reject(context, "token_superseded")
	}

	return claims, session, nil
}

// reject counts and logs a refused token, then returns the generic error.
func (manager *Manager) reject(context context.Context, reason string) error {
	manager.metrics.RecordSessionEvent(metrics.SessionRejected)
	manager.logger.DebugContext(context, "session_token_rejected", slog.String("reason", reason))
	return ErrInvalidToken
}
