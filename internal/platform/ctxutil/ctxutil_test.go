// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ctxutil_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/idgate/internal/platform/ctxutil"
	"github.com/taibuivan/idgate/internal/platform/sec"
)

/*
TestContext_RequestID verifies that Request IDs can be injected and retrieved.
*/
func TestContext_RequestID(t *testing.T) {
	ctx := context.Background()
	requestID := "test-request-id"

	// 1. Initially should be empty
	assert.Empty(t, ctxutil.GetRequestID(ctx))

	// 2. Inject and retrieve
	ctx = ctxutil.WithRequestID(ctx, requestID)
	assert.Equal(t, requestID, ctxutil.GetRequestID(ctx))
}

/*
TestContext_Logger verifies that a custom logger can be stored in context.
*/
func TestContext_Logger(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	assert.Equal(t, slog.Default(), ctxutil.GetLogger(ctx))

	ctx = ctxutil.WithLogger(ctx, logger)
	assert.Equal(t, logger, ctxutil.GetLogger(ctx))
}

/*
TestContext_Session verifies that session claims survive a context round trip.
*/
func TestContext_Session(t *testing.T) {
	ctx := context.Background()
	claims := &sec.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-123"},
		Kind:             sec.KindSession,
		DeviceID:         "device-1",
		ProviderName:     "local",
	}

	// 1. Anonymous request
	assert.Nil(t, ctxutil.GetSession(ctx))

	// 2. Inject and retrieve
	ctx = ctxutil.WithSession(ctx, claims)
	retrieved := ctxutil.GetSession(ctx)

	require.NotNil(t, retrieved)
	assert.Equal(t, "user-123", retrieved.Subject)
	assert.Equal(t, "device-1", retrieved.DeviceID)
	assert.Equal(t, "local", retrieved.ProviderName)
}
