// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/idgate/internal/auth/session"
)

func newSweeperFixture(t *testing.T) (*managerFixture, *fakeLocker, *session.Sweeper) {
	t.Helper()
	fixture := newManagerFixture(t)
	locker := &fakeLocker{}
	sweeper := session.NewSweeper(fixture.manager, locker, time.Minute, 24*time.Hour, fixture.recorder, discardLogger())
	return fixture, locker, sweeper
}

/*
TestSweeper_RunOnce checks a locked sweep and the lock release.
*/
func TestSweeper_RunOnce(t *testing.T) {
	fixture, locker, sweeper := newSweeperFixture(t)
	now := time.Now()
	fixture.store.put(session.Session{ID: "a", UserID: "u", DeviceID: "d1", ExpiresAt: now.Add(-time.Second), UpdatedAt: now})
	fixture.store.put(session.Session{ID: "b", UserID: "u", DeviceID: "d2", ExpiresAt: now.Add(time.Hour), UpdatedAt: now})

	result, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Expired)
	assert.Equal(t, int64(0), result.Inactive)
	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, 1, locker.released)
}

/*
TestSweeper_RunOnceLockHeld checks that another instance's lock skips the sweep.
*/
func TestSweeper_RunOnceLockHeld(t *testing.T) {
	fixture, locker, sweeper := newSweeperFixture(t)
	locker.held = true
	fixture.store.put(session.Session{ID: "a", UserID: "u", DeviceID: "d1", ExpiresAt: time.Now().Add(-time.Second)})

	_, err := sweeper.RunOnce(context.Background())
	assert.ErrorIs(t, err, session.ErrSweepSkipped)
	assert.Equal(t, 1, fixture.store.count())
}

/*
TestSweeper_RunOnceFailures checks that storage errors and panics surface as
errors and still release the lock.
*/
func TestSweeper_RunOnceFailures(t *testing.T) {
	t.Run("Store error", func(t *testing.T) {
		fixture, locker, sweeper := newSweeperFixture(t)
		fixture.store.err = errStoreDown

		_, err := sweeper.RunOnce(context.Background())
		assert.ErrorIs(t, err, errStoreDown)
		assert.Equal(t, 1, locker.released)
	})

	t.Run("Panic", func(t *testing.T) {
		fixture, locker, sweeper := newSweeperFixture(t)
		fixture.store.panics = true

		_, err := sweeper.RunOnce(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "store exploded")
		assert.Equal(t, 1, locker.released)
	})
}

/*
TestSweeper_Run checks that a failing tick is counted and the loop stops on cancel.
*/
func TestSweeper_Run(t *testing.T) {
	fixture, _, sweeper := newSweeperFixture(t)
	fixture.store.err = errStoreDown

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}
	assert.Equal(t, 1, fixture.recorder.failures)
}
