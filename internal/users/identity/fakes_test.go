// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity_test

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taibuivan/idgate/internal/platform/apperr"
	"github.com/taibuivan/idgate/internal/platform/mailer"
	"github.com/taibuivan/idgate/internal/platform/metrics"
	"github.com/taibuivan/idgate/internal/platform/sec"
	"github.com/taibuivan/idgate/internal/users/identity"
)

const (
	localProviderID  = "00000000-0000-0000-0000-000000000001"
	googleProviderID = "00000000-0000-0000-0000-000000000002"
	githubProviderID = "00000000-0000-0000-0000-000000000003"
)

// # In-memory Repository

// memoryRepository mirrors the uniqueness rules of the SQL schema.
type memoryRepository struct {
	txMu sync.Mutex
	mu   sync.Mutex

	providers []identity.Provider
	users     map[string]identity.User
	userOrder []string
	records   []identity.UsersProvider
	locks     []string
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		providers: []identity.Provider{
			{ID: localProviderID, Name: identity.ProviderLocal},
			{ID: googleProviderID, Name: identity.ProviderGoogle},
			{ID: githubProviderID, Name: identity.ProviderGitHub},
		},
		users: map[string]identity.User{},
	}
}

func (repository *memoryRepository) InTx(_ context.Context, fn func(identity.Repository) error) error {
	repository.txMu.Lock()
	defer repository.txMu.Unlock()

	repository.mu.Lock()
	users := maps.Clone(repository.users)
	order := slices.Clone(repository.userOrder)
	records := slices.Clone(repository.records)
	repository.mu.Unlock()

	if err := fn(repository); err != nil {
		repository.mu.Lock()
		repository.users, repository.userOrder, repository.records = users, order, records
		repository.mu.Unlock()
		return err
	}
	return nil
}

func (repository *memoryRepository) LockKeys(_ context.Context, keys ...string) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	repository.locks = append(repository.locks, keys...)
	return nil
}

func (repository *memoryRepository) FindProviderByName(_ context.Context, name identity.ProviderName) (*identity.Provider, error) {
	for _, provider := range repository.providers {
		if provider.Name == name {
			found := provider
			return &found, nil
		}
	}
	return nil, apperr.NotFound("Provider")
}

func (repository *memoryRepository) FindUsersProvider(_ context.Context, filter identity.Filter) (*identity.UsersProvider, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	if filter.IsEmpty() {
		return nil, nil
	}

	var matches []identity.UsersProvider
	for _, record := range repository.records {
		if matchesFilter(record, filter) {
			matches = append(matches, record)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].ProviderName.IsLocal() && !matches[j].ProviderName.IsLocal()
	})

	found := matches[0]
	return &found, nil
}

func (repository *memoryRepository) CreateUser(_ context.Context, aggregate *identity.Aggregate) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	user := aggregate.User()
	if _, exists := repository.users[user.ID]; exists {
		return apperr.Conflict("Account already exists")
	}

	record := *aggregate.UsersProvider()
	if err := repository.checkUnique(record, ""); err != nil {
		return err
	}

	repository.users[user.ID] = user
	repository.userOrder = append(repository.userOrder, user.ID)
	repository.records = append(repository.records, record)
	return nil
}

func (repository *memoryRepository) CreateUsersProvider(_ context.Context, userID string, record *identity.UsersProvider) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	if _, exists := repository.users[userID]; !exists {
		return apperr.NotFound("User")
	}

	stored := *record
	stored.UserLocalID = userID
	if err := repository.checkUnique(stored, ""); err != nil {
		return err
	}

	repository.records = append(repository.records, stored)
	record.UserLocalID = userID
	return nil
}

func (repository *memoryRepository) UpdateUsersProvider(_ context.Context, id string, values *identity.UsersProvider, fields ...identity.Field) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	index := repository.indexOf(id)
	if index < 0 {
		return apperr.NotFound("Account")
	}

	updated := repository.records[index]
	for _, field := range fields {
		switch field {
		case identity.FieldEmail:
			updated.Email = values.Email
		case identity.FieldLogin:
			updated.Login = values.Login
		case identity.FieldName:
			updated.Name = values.Name
		case identity.FieldSurname:
			updated.Surname = values.Surname
		case identity.FieldPassword:
			updated.Password = values.Password
		case identity.FieldAvatar:
			updated.Avatar = values.Avatar
		}
	}

	if err := repository.checkUnique(updated, id); err != nil {
		return err
	}

	updated.UpdatedAt = time.Now()
	repository.records[index] = updated
	return nil
}

func (repository *memoryRepository) ConfirmEmail(_ context.Context, providerRecordID string) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	index := repository.indexOf(providerRecordID)
	if index < 0 {
		return apperr.NotFound("Account")
	}
	repository.records[index].EmailIsValidated = true
	return nil
}

func (repository *memoryRepository) DeleteUser(_ context.Context, id string) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	if _, exists := repository.users[id]; !exists {
		return apperr.NotFound("User")
	}

	delete(repository.users, id)
	repository.userOrder = slices.DeleteFunc(repository.userOrder, func(userID string) bool { return userID == id })
	repository.records = slices.DeleteFunc(repository.records, func(record identity.UsersProvider) bool {
		return record.UserLocalID == id
	})
	return nil
}

func (repository *memoryRepository) FindUser(_ context.Context, id string) (*identity.UserView, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	user, exists := repository.users[id]
	if !exists {
		return nil, apperr.NotFound("User")
	}
	return &identity.UserView{User: user, Providers: repository.providersOf(id)}, nil
}

func (repository *memoryRepository) ListUsers(_ context.Context, limit, offset int) ([]identity.UserView, int, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	total := len(repository.userOrder)
	views := []identity.UserView{}
	for index := offset; index < total && index < offset+limit; index++ {
		id := repository.userOrder[index]
		views = append(views, identity.UserView{User: repository.users[id], Providers: repository.providersOf(id)})
	}
	return views, total, nil
}

// # Helpers

func (repository *memoryRepository) indexOf(id string) int {
	return slices.IndexFunc(repository.records, func(record identity.UsersProvider) bool { return record.ID == id })
}

func (repository *memoryRepository) providersOf(userID string) []identity.UsersProvider {
	var owned []identity.UsersProvider
	for _, record := range repository.records {
		if record.UserLocalID == userID {
			owned = append(owned, record)
		}
	}
	sort.SliceStable(owned, func(i, j int) bool {
		return owned[i].ProviderName.IsLocal() && !owned[j].ProviderName.IsLocal()
	})
	return owned
}

// checkUnique enforces the login and per-provider email/sub unique indexes.
func (repository *memoryRepository) checkUnique(candidate identity.UsersProvider, skipID string) error {
	for _, record := range repository.records {
		if record.ID == skipID {
			continue
		}
		if record.Login == candidate.Login {
			return apperr.Conflict("Account already exists")
		}
		if record.ProviderLocalID == candidate.ProviderLocalID && (record.Email == candidate.Email || record.Sub == candidate.Sub) {
			return apperr.Conflict("Account already exists")
		}
	}
	return nil
}

func matchesFilter(record identity.UsersProvider, filter identity.Filter) bool {
	check := func(value *string, actual string) bool { return value == nil || *value == actual }
	return check(filter.ID, record.ID) &&
		check(filter.Email, record.Email) &&
		check(filter.Login, record.Login) &&
		check(filter.Sub, record.Sub) &&
		check(filter.ProviderLocalID, record.ProviderLocalID)
}

func (repository *memoryRepository) recordCount() int {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	return len(repository.records)
}

func (repository *memoryRepository) userCount() int {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	return len(repository.users)
}

func (repository *memoryRepository) record(t *testing.T, id string) identity.UsersProvider {
	t.Helper()
	repository.mu.Lock()
	defer repository.mu.Unlock()
	index := repository.indexOf(id)
	require.GreaterOrEqual(t, index, 0, "record %s not found", id)
	return repository.records[index]
}

// # Collaborator Fakes

type sentVerification struct {
	ProviderRecordID string
	Email            string
}

type verificationRecorder struct {
	mu   sync.Mutex
	sent []sentVerification
}

func (recorder *verificationRecorder) SendVerification(_ context.Context, providerRecordID string, email string) {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	recorder.sent = append(recorder.sent, sentVerification{ProviderRecordID: providerRecordID, Email: email})
}

func (recorder *verificationRecorder) count() int {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	return len(recorder.sent)
}

type memoryLedger struct {
	mu   sync.Mutex
	used map[string]bool
}

func (ledger *memoryLedger) Consume(_ context.Context, tokenID string, _ time.Duration) (bool, error) {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	if ledger.used == nil {
		ledger.used = map[string]bool{}
	}
	if ledger.used[tokenID] {
		return false, nil
	}
	ledger.used[tokenID] = true
	return true, nil
}

type purgeCall struct {
	UserID   string
	Provider string
}

type fakePurger struct {
	mu    sync.Mutex
	calls []purgeCall
	err   error
	// block waits for the caller's deadline.
	block bool
}

func (purger *fakePurger) DeleteAllProviderSessions(ctx context.Context, userID string, providerName string) (int64, error) {
	purger.mu.Lock()
	purger.calls = append(purger.calls, purgeCall{UserID: userID, Provider: providerName})
	purger.mu.Unlock()

	if purger.block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if purger.err != nil {
		return 0, purger.err
	}
	return 2, nil
}

type captureNotifier struct {
	mu       sync.Mutex
	messages []mailer.Message
}

func (notifier *captureNotifier) Dispatch(_ context.Context, message mailer.Message) {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	notifier.messages = append(notifier.messages, message)
}

func (notifier *captureNotifier) tags() []string {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	tags := make([]string, len(notifier.messages))
	for index, message := range notifier.messages {
		tags[index] = message.Tag
	}
	return tags
}

// # Fixtures

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testHasher() sec.Hasher {
	return sec.NewBcryptHasher(4)
}

func newTokenSigner(t *testing.T, secret string, kind sec.TokenKind) *sec.Signer {
	t.Helper()
	signer, err := sec.NewSigner(sec.SignerOptions{
		Secret:   secret,
		Issuer:   "idgate.test",
		Audience: "idgate.users",
		Kind:     kind,
		TTL:      time.Hour,
	})
	require.NoError(t, err)
	return signer
}

type engineFixture struct {
	repository   *memoryRepository
	verification *verificationRecorder
	engine       *identity.Engine
}

func newEngineFixture() *engineFixture {
	repository := newMemoryRepository()
	verification := &verificationRecorder{}
	engine := identity.NewEngine(repository, identity.NewFactory(testHasher()), verification, metrics.Nop{}, discardLogger())
	return &engineFixture{repository: repository, verification: verification, engine: engine}
}

type serviceFixture struct {
	repository   *memoryRepository
	purger       *fakePurger
	notifier     *captureNotifier
	verification *sec.Signer
	reset        *sec.Signer
	service      *identity.Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	fixture := &serviceFixture{
		repository:   newMemoryRepository(),
		purger:       &fakePurger{},
		notifier:     &captureNotifier{},
		verification: newTokenSigner(t, "verification-secret", sec.KindEmailVerification),
		reset:        newTokenSigner(t, "reset-secret", sec.KindPasswordReset),
	}

	tokens := identity.NewTokenFlow(identity.TokenFlowDeps{
		Repository:   fixture.repository,
		Verification: fixture.verification,
		Reset:        fixture.reset,
		Ledger:       &memoryLedger{},
		Hasher:       testHasher(),
		Purger:       fixture.purger,
		PurgeTimeout: 50 * time.Millisecond,
		Emails:       identity.NewEmailComposer("https://api.idgate.test/api/v1", "https://idgate.test"),
		Notifier:     fixture.notifier,
		Metrics:      metrics.Nop{},
		Logger:       discardLogger(),
	})

	engine := identity.NewEngine(fixture.repository, identity.NewFactory(testHasher()), tokens, metrics.Nop{}, discardLogger())
	fixture.service = identity.NewService(fixture.repository, engine, tokens, fixture.purger, 50*time.Millisecond, discardLogger())
	return fixture
}

func localAttempt(email, login string) identity.Attempt {
	return identity.Attempt{ProviderName: identity.ProviderLocal, Email: email, Login: login, Password: "Pw1!"}
}

func googleAttempt(sub, email string) identity.Attempt {
	return identity.Attempt{ProviderName: identity.ProviderGoogle, Sub: sub, Email: email}
}
