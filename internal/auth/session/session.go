// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package session implements the Auth service: signed session tokens bound to a
persisted (user, device) row, the sign-up and sign-in flows, and the background
sweep of expired or idle sessions.

Lifecycle:

  - Active: the row exists, is active and its token has not expired.
  - Rotated: a new token replaced the old one on the same row.
  - Gone: logged out, purged, expired or idle rows are deleted.

The Users service is reached through [UsersGateway]; it reaches back through
[Manager.DeleteAllProviderSessions].
*/
package session

import (
	"time"

	"github.com/taibuivan/idgate/internal/platform/apperr"
)

// ErrInvalidToken is the single failure reported for any unusable session token.
// It never distinguishes expired, forged, rotated or revoked tokens.
var ErrInvalidToken = apperr.Unauthorized("Invalid token")

// Session is one signed-in device of one user.
type Session struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	DeviceID     string `json:"deviceId"`
	ProviderName string `json:"providerName"`

	// TokenHash is the SHA-256 digest of the current token.
	TokenHash string `json:"-"`

	IsActive  bool      `json:"isActive"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Issued is a freshly signed session token.
type Issued struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserID    string    `json:"userId"`
	DeviceID  string    `json:"deviceId"`
}

// SweepResult counts the rows removed by one sweep.
type SweepResult struct {
	Expired  int64 `json:"expired"`
	Inactive int64 `json:"inactive"`
}
