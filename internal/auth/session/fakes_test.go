// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taibuivan/idgate/internal/auth/session"
	"github.com/taibuivan/idgate/internal/platform/apperr"
	"github.com/taibuivan/idgate/internal/platform/metrics"
	"github.com/taibuivan/idgate/internal/platform/sec"
	"github.com/taibuivan/idgate/internal/users/identity"
)

// # In-memory Store

type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]session.Session
	err      error
	panics   bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: map[string]session.Session{}}
}

func storeKey(userID, deviceID string) string { return userID + "|" + deviceID }

func (store *memoryStore) Create(_ context.Context, value *session.Session) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	key := storeKey(value.UserID, value.DeviceID)
	if _, ok := store.sessions[key]; ok {
		return apperr.Conflict("Session already exists")
	}
	store.sessions[key] = *value
	return nil
}

func (store *memoryStore) Find(_ context.Context, userID, deviceID string) (*session.Session, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	found, ok := store.sessions[storeKey(userID, deviceID)]
	if !ok {
		return nil, apperr.NotFound("Session")
	}
	return &found, nil
}

func (store *memoryStore) SwapToken(_ context.Context, id, currentHash, nextHash string, expiresAt time.Time) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	for key, value := range store.sessions {
		if value.ID != id {
			continue
		}
		if value.TokenHash != currentHash || !value.IsActive {
			return false, nil
		}
		value.TokenHash = nextHash
		value.ExpiresAt = expiresAt
		value.UpdatedAt = time.Now()
		store.sessions[key] = value
		return true, nil
	}
	return false, nil
}

func (store *memoryStore) Delete(_ context.Context, userID, deviceID string) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	key := storeKey(userID, deviceID)
	_, ok := store.sessions[key]
	delete(store.sessions, key)
	return ok, nil
}

func (store *memoryStore) DeleteByProvider(_ context.Context, userID, providerName string) (int64, error) {
	return store.deleteWhere(func(value session.Session) bool {
		return value.UserID == userID && value.ProviderName == providerName
	})
}

func (store *memoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	return store.deleteWhere(func(value session.Session) bool { return !value.ExpiresAt.After(now) })
}

func (store *memoryStore) DeleteIdle(_ context.Context, before time.Time) (int64, error) {
	return store.deleteWhere(func(value session.Session) bool { return value.UpdatedAt.Before(before) })
}

func (store *memoryStore) deleteWhere(match func(session.Session) bool) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.panics {
		panic("store exploded")
	}
	if store.err != nil {
		return 0, store.err
	}

	var deleted int64
	for key, value := range store.sessions {
		if match(value) {
			delete(store.sessions, key)
			deleted++
		}
	}
	return deleted, nil
}

func (store *memoryStore) put(value session.Session) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.sessions[storeKey(value.UserID, value.DeviceID)] = value
}

func (store *memoryStore) update(userID, deviceID string, mutate func(*session.Session)) {
	store.mu.Lock()
	defer store.mu.Unlock()
	key := storeKey(userID, deviceID)
	value := store.sessions[key]
	mutate(&value)
	store.sessions[key] = value
}

func (store *memoryStore) count() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.sessions)
}

// # Users Gateway Fake

type fakeUsers struct {
	mu          sync.Mutex
	credentials map[string]*identity.Credential
	attempts    []identity.Attempt
	err         error
}

func (users *fakeUsers) CreateUser(_ context.Context, attempt identity.Attempt) (*identity.Outcome, error) {
	users.mu.Lock()
	defer users.mu.Unlock()

	if users.err != nil {
		return nil, users.err
	}
	users.attempts = append(users.attempts, attempt)
	return &identity.Outcome{UserID: "user-" + attempt.Sub + attempt.Login, ProviderRecordID: "record-1", Action: identity.ActionCreate}, nil
}

func (users *fakeUsers) FindByEmailOrLogin(_ context.Context, emailOrLogin string) (*identity.Credential, error) {
	users.mu.Lock()
	defer users.mu.Unlock()

	if users.err != nil {
		return nil, users.err
	}
	credential, ok := users.credentials[emailOrLogin]
	if !ok {
		return nil, apperr.NotFound("Account")
	}
	return credential, nil
}

// # Locker Fake

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	acquired int
	released int
}

func (locker *fakeLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, error) {
	locker.mu.Lock()
	defer locker.mu.Unlock()

	if locker.held {
		return nil, session.ErrSweepSkipped
	}
	locker.acquired++
	return func(context.Context) error {
		locker.mu.Lock()
		defer locker.mu.Unlock()
		locker.released++
		return nil
	}, nil
}

// # Metrics Fake

type countingRecorder struct {
	metrics.Nop
	mu       sync.Mutex
	events   map[string]int
	failures int
}

func (recorder *countingRecorder) RecordSessionEvent(event string) {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if recorder.events == nil {
		recorder.events = map[string]int{}
	}
	recorder.events[event]++
}

func (recorder *countingRecorder) RecordSweepFailure() {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	recorder.failures++
}

// # Fixtures

var errStoreDown = errors.New("store down")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSessionSigner(t *testing.T, secret string) *sec.Signer {
	t.Helper()
	signer, err := sec.NewSigner(sec.SignerOptions{
		Secret:   secret,
		Issuer:   "idgate.test",
		Audience: "idgate.gateway",
		Kind:     sec.KindSession,
		TTL:      time.Hour,
	})
	require.NoError(t, err)
	return signer
}

type managerFixture struct {
	store    *memoryStore
	recorder *countingRecorder
	manager  *session.Manager
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	store := newMemoryStore()
	recorder := &countingRecorder{}
	return &managerFixture{
		store:    store,
		recorder: recorder,
		manager:  session.NewManager(store, newSessionSigner(t, "session-secret"), recorder, discardLogger()),
	}
}
