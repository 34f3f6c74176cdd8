// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/idgate/internal/platform/apperr"
	"github.com/taibuivan/idgate/internal/users/identity"
	"github.com/taibuivan/idgate/pkg/pagination"
)

/*
TestService_CreateUserConflicts checks that every conflict reaches callers as
the same generic registration failure.
*/
func TestService_CreateUserConflicts(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	first := signUpLocal(t, fixture, "a@x.com", "alice")
	signUpLocal(t, fixture, "b@x.com", "bob")

	// Store-level conflict: the unconfirmed update would take bob's login.
	_, err := fixture.service.CreateUser(ctx, localAttempt("a@x.com", "bob"))
	assert.ErrorIs(t, err, identity.ErrRegistrationFailed)

	// Table-level conflict: the email is confirmed.
	require.NoError(t, fixture.repository.ConfirmEmail(ctx, first.ProviderRecordID))
	_, err = fixture.service.CreateUser(ctx, localAttempt("a@x.com", "carol"))
	assert.ErrorIs(t, err, identity.ErrRegistrationFailed)

	assert.Equal(t, "Registration failed", identity.ErrRegistrationFailed.Error())
}

/*
TestService_FindByEmailOrLogin checks the credential returned to the sign-in flow.
*/
func TestService_FindByEmailOrLogin(t *testing.T) {
	fixture := newServiceFixture(t)
	ctx := context.Background()

	outcome := signUpLocal(t, fixture, "a@x.com", "alice")

	for _, value := range []string{"a@x.com", "alice"} {
		t.Run(value, func(t *testing.T) {
			credential, err := fixture.service.FindByEmailOrLogin(ctx, value)
			require.NoError(t, err)
			assert.Equal(t, outcome.ProviderRecordID, credential.ID)
			assert.Equal(t, outcome.UserID, credential.UserLocalID)
			assert.Equal(t, "a@x.com", credential.Email)
			assert.False(t, credential.EmailIsValidated)
			assert.True(t, testHasher().Compare("Pw1!", credential.PasswordHash))
		})
	}

	_, err := fixture.service.FindByEmailOrLogin(ctx, "nobody@x.com")
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
}

/*
TestService_DeleteUser checks removal of every credential and the per-provider purge.
*/
func TestService_DeleteUser(t *testing.T) {
	t.Run("purges each provider once", func(t *testing.T) {
		fixture := newServiceFixture(t)
		ctx := context.Background()

		federated, err := fixture.service.CreateUser(ctx, googleAttempt("g-1", "e@x.com"))
		require.NoError(t, err)
		signUpLocal(t, fixture, "e@x.com", "eve")

		warning, err := fixture.service.DeleteUser(ctx, federated.UserID)
		require.NoError(t, err)
		assert.Empty(t, warning)

		assert.ElementsMatch(t, []purgeCall{
			{UserID: federated.UserID, Provider: "local"},
			{UserID: federated.UserID, Provider: "google"},
		}, fixture.purger.calls)
		assert.Equal(t, 0, fixture.repository.userCount())
		assert.Equal(t, 0, fixture.repository.recordCount())
	})

	t.Run("purge failure becomes a warning", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.purger.err = errors.New("auth unavailable")

		outcome := signUpLocal(t, fixture, "a@x.com", "alice")

		warning, err := fixture.service.DeleteUser(context.Background(), outcome.UserID)
		require.NoError(t, err)
		assert.NotEmpty(t, warning)
		assert.Equal(t, 0, fixture.repository.userCount())
	})

	t.Run("unknown user", func(t *testing.T) {
		fixture := newServiceFixture(t)
		_, err := fixture.service.DeleteUser(context.Background(), "missing")
		assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
		assert.Empty(t, fixture.purger.calls)
	})
}

/*
TestService_ListUsers checks the returned window and its metadata.
*/
func TestService_ListUsers(t *testing.T) {
	fixture := newServiceFixture(t)

	for index := range 3 {
		signUpLocal(t, fixture, fmt.Sprintf("user%d@x.com", index), fmt.Sprintf("user%d", index))
	}

	users, meta, err := fixture.service.ListUsers(context.Background(), pagination.Params{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "user2@x.com", users[0].Providers[0].Email)
	assert.Equal(t, pagination.Meta{Limit: 2, Offset: 2, Total: 3, HasMore: false}, meta)

	view, err := fixture.service.GetUser(context.Background(), users[0].ID)
	require.NoError(t, err)
	assert.Equal(t, users[0].ID, view.ID)
}
