// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/idgate/internal/auth/session"
	"github.com/taibuivan/idgate/internal/platform/apperr"
	"github.com/taibuivan/idgate/internal/platform/sec"
	"github.com/taibuivan/idgate/internal/users/identity"
)

type flowFixture struct {
	*managerFixture
	users         *fakeUsers
	authenticator *session.Authenticator
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()
	hasher := sec.NewBcryptHasher(4)
	digest, err := hasher.Hash("Pw1!")
	require.NoError(t, err)

	verified := &identity.Credential{ID: "record-1", UserLocalID: "user-1", PasswordHash: digest, Email: "a@x.com", EmailIsValidated: true}
	pending := &identity.Credential{ID: "record-2", UserLocalID: "user-2", PasswordHash: digest, Email: "b@x.com"}

	users := &fakeUsers{credentials: map[string]*identity.Credential{
		"a@x.com": verified,
		"alice":   verified,
		"b@x.com": pending,
	}}
	fixture := newManagerFixture(t)

	return &flowFixture{
		managerFixture: fixture,
		users:          users,
		authenticator:  session.NewAuthenticator(users, fixture.manager, hasher, discardLogger()),
	}
}

/*
TestAuthenticator_SignInLocal covers the password sign-in outcomes.
*/
func TestAuthenticator_SignInLocal(t *testing.T) {
	tests := []struct {
		name    string
		input   session.SignInInput
		wantErr error
	}{
		{"Unknown account", session.SignInInput{EmailOrLogin: "nobody@x.com", Password: "Pw1!"}, session.ErrInvalidCredentials},
		{"Wrong password", session.SignInInput{EmailOrLogin: "a@x.com", Password: "wrong"}, session.ErrInvalidCredentials},
		{"Unverified with wrong password", session.SignInInput{EmailOrLogin: "b@x.com", Password: "wrong"}, session.ErrInvalidCredentials},
		{"Unverified email", session.SignInInput{EmailOrLogin: "b@x.com", Password: "Pw1!"}, session.ErrEmailNotVerified},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fixture := newFlowFixture(t)

			issued, err := fixture.authenticator.SignInLocal(context.Background(), tc.input)
			assert.Nil(t, issued)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, 0, fixture.store.count())
		})
	}
}

/*
TestAuthenticator_SignInLocalSuccess checks that both email and login open a local session.
*/
func TestAuthenticator_SignInLocalSuccess(t *testing.T) {
	for _, emailOrLogin := range []string{"a@x.com", "alice"} {
		t.Run(emailOrLogin, func(t *testing.T) {
			fixture := newFlowFixture(t)
			ctx := context.Background()

			issued, err := fixture.authenticator.SignInLocal(ctx, session.SignInInput{EmailOrLogin: emailOrLogin, Password: "Pw1!"})
			require.NoError(t, err)
			assert.Equal(t, "user-1", issued.UserID)
			assert.NotEmpty(t, issued.DeviceID)

			claims, err := fixture.manager.ValidateToken(ctx, issued.Token)
			require.NoError(t, err)
			assert.Equal(t, string(identity.ProviderLocal), claims.ProviderName)
		})
	}
}

/*
TestAuthenticator_SignInLocalTwice checks that signing in again keeps the
earlier session alive next to the new one.
*/
func TestAuthenticator_SignInLocalTwice(t *testing.T) {
	fixture := newFlowFixture(t)
	ctx := context.Background()
	input := session.SignInInput{EmailOrLogin: "alice", Password: "Pw1!"}

	first, err := fixture.authenticator.SignInLocal(ctx, input)
	require.NoError(t, err)
	second, err := fixture.authenticator.SignInLocal(ctx, input)
	require.NoError(t, err)

	assert.NotEqual(t, first.DeviceID, second.DeviceID)
	assert.Equal(t, 2, fixture.store.count())

	_, err = fixture.manager.ValidateToken(ctx, first.Token)
	assert.NoError(t, err)
	_, err = fixture.manager.ValidateToken(ctx, second.Token)
	assert.NoError(t, err)
}

/*
TestAuthenticator_SignInLocalUpstream checks that gateway failures are not masked.
*/
func TestAuthenticator_SignInLocalUpstream(t *testing.T) {
	fixture := newFlowFixture(t)
	fixture.users.err = apperr.Upstream(context.DeadlineExceeded)

	_, err := fixture.authenticator.SignInLocal(context.Background(), session.SignInInput{EmailOrLogin: "a@x.com", Password: "Pw1!"})
	assert.True(t, apperr.HasCode(err, apperr.CodeUpstream))
}

/*
TestAuthenticator_SignInExternal checks reconciliation followed by a session.
*/
func TestAuthenticator_SignInExternal(t *testing.T) {
	fixture := newFlowFixture(t)
	ctx := context.Background()

	attempt := identity.Attempt{ProviderName: identity.ProviderGoogle, Sub: "g-1", Email: "a@x.com"}
	issued, err := fixture.authenticator.SignInExternal(ctx, attempt)
	require.NoError(t, err)
	assert.Equal(t, "user-g-1", issued.UserID)

	claims, err := fixture.manager.ValidateToken(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "google", claims.ProviderName)
	assert.Equal(t, issued.DeviceID, claims.DeviceID)
	require.Len(t, fixture.users.attempts, 1)
	assert.Equal(t, attempt, fixture.users.attempts[0])
}

/*
TestAuthenticator_SignInExternalFailures checks rejected attempts open no session.
*/
func TestAuthenticator_SignInExternalFailures(t *testing.T) {
	t.Run("Local provider", func(t *testing.T) {
		fixture := newFlowFixture(t)

		_, err := fixture.authenticator.SignInExternal(context.Background(), identity.Attempt{ProviderName: identity.ProviderLocal, Email: "a@x.com"})
		assert.True(t, apperr.HasCode(err, apperr.CodeValidation))
		assert.Empty(t, fixture.users.attempts)
	})

	t.Run("Reconciliation rejected", func(t *testing.T) {
		fixture := newFlowFixture(t)
		fixture.users.err = identity.ErrRegistrationFailed

		_, err := fixture.authenticator.SignInExternal(context.Background(), identity.Attempt{ProviderName: identity.ProviderGitHub, Sub: "gh-1", Email: "a@x.com"})
		assert.ErrorIs(t, err, identity.ErrRegistrationFailed)
		assert.Equal(t, 0, fixture.store.count())
	})
}

/*
TestAuthenticator_SignUpLocal checks the attempt sent to the Users service.
*/
func TestAuthenticator_SignUpLocal(t *testing.T) {
	fixture := newFlowFixture(t)
	name := "Alice"

	outcome, err := fixture.authenticator.SignUpLocal(context.Background(), session.SignUpInput{
		Email: "c@x.com", Login: "carol", Password: "Pw1!", Name: &name,
	})
	require.NoError(t, err)
	assert.Equal(t, "user-carol", outcome.UserID)

	require.Len(t, fixture.users.attempts, 1)
	attempt := fixture.users.attempts[0]
	assert.Equal(t, identity.ProviderLocal, attempt.ProviderName)
	assert.Equal(t, "carol", attempt.Login)
	assert.Equal(t, "Pw1!", attempt.Password)
	assert.Equal(t, &name, attempt.Name)
	assert.False(t, attempt.EmailIsValidated)
	assert.Equal(t, 0, fixture.store.count())
}
