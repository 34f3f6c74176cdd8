// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/idgate/internal/platform/config"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/idgate")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("AUTH_JWT_SECRET", "session-secret")
	t.Setenv("EMAIL_VERIFICATION_SECRET", "verification-secret")
	t.Setenv("PASSWORD_RESET_SECRET", "reset-secret")
	t.Setenv("INTERNAL_API_TOKEN", "internal-token")
}

/*
TestParse_Defaults checks the defaults applied on top of the required variables.
*/
func TestParse_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := config.Parse()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, config.SessionStorePostgres, cfg.SessionStore)
	assert.Equal(t, 24*time.Hour, cfg.Session.TokenTTL)
	assert.Equal(t, 720*time.Hour, cfg.Session.InactivityPeriod)
	assert.Equal(t, "verification-secret", cfg.Verification.Secret)
	assert.Equal(t, "reset-secret", cfg.Reset.Secret)
	assert.Equal(t, 5*time.Second, cfg.CompanionTimeout)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

/*
TestParse_Rejects checks the cross-field rules.
*/
func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"Unknown session store", map[string]string{"SESSION_STORE": "memcached"}},
		{"Mongo without URL", map[string]string{"SESSION_STORE": "mongo"}},
		{"Shared email secrets", map[string]string{"PASSWORD_RESET_SECRET": "verification-secret"}},
		{"Session secret reused", map[string]string{"AUTH_JWT_SECRET": "reset-secret"}},
		{"Internal token reused", map[string]string{"INTERNAL_API_TOKEN": "session-secret"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			for key, value := range tc.env {
				t.Setenv(key, value)
			}

			_, err := config.Parse()
			assert.Error(t, err)
		})
	}
}

/*
TestParse_MissingRequired checks that a required variable cannot be omitted.
*/
func TestParse_MissingRequired(t *testing.T) {
	setRequired(t)
	require.NoError(t, os.Unsetenv("AUTH_JWT_SECRET"))

	_, err := config.Parse()
	assert.Error(t, err)

	setRequired(t)
	require.NoError(t, os.Unsetenv("INTERNAL_API_TOKEN"))

	_, err = config.Parse()
	assert.Error(t, err)
}
