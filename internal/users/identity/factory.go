// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/taibuivan/idgate/internal/platform/apperr"
	"github.com/taibuivan/idgate/internal/platform/constants"
	"github.com/taibuivan/idgate/internal/platform/sec"
	"github.com/taibuivan/idgate/pkg/uuid"
)

// # Identity Factory

// Factory turns an [Attempt] into an in-memory [Aggregate] with identifiers
// and defaults assigned. It never touches storage.
type Factory struct {
	hasher sec.Hasher
	newID  func() string
	clock  func() time.Time
}

// NewFactory creates a factory that hashes passwords with hasher.
func NewFactory(hasher sec.Hasher) *Factory {
	return &Factory{hasher: hasher, newID: uuid.New, clock: time.Now}
}

// Aggregate is a candidate user and credential built from one attempt.
type Aggregate struct {
	user      User
	record    UsersProvider
	isNewUser bool
}

/*
Build constructs the aggregate for attempt.

Description: userLocalID binds the credential to an existing user found by
email; when empty a fresh user id is generated. Federated attempts get a
derived login, a random password when none is supplied and a validated email.
Local attempts use the owning user id as their subject.

Parameters:
  - attempt: Attempt
  - userLocalID: string (optional)

Returns:
  - *Aggregate: The candidate
  - error: ValidationError for unusable attempts, hashing failures
*/
func (factory *Factory) Build(attempt Attempt, userLocalID string) (*Aggregate, error) {
	if !attempt.ProviderName.Valid() {
		return nil, apperr.ValidationError("Unsupported provider", apperr.FieldError{Field: "providerName", Message: "Unknown provider"})
	}

	email := strings.TrimSpace(attempt.Email)
	if email == "" {
		return nil, apperr.ValidationError("Email is required", apperr.FieldError{Field: "email", Message: "This field is required"})
	}

	now := factory.clock()
	aggregate := &Aggregate{isNewUser: userLocalID == ""}
	if aggregate.isNewUser {
		userLocalID = factory.newID()
	}
	aggregate.user = User{ID: userLocalID, CreatedAt: now, UpdatedAt: now}

	record := UsersProvider{
		ID:           factory.newID(),
		UserLocalID:  userLocalID,
		ProviderName: attempt.ProviderName,
		Email:        email,
		Name:         attempt.Name,
		Surname:      attempt.Surname,
		Avatar:       attempt.Avatar,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	password := attempt.Password

	if attempt.ProviderName.IsLocal() {
		if attempt.Login == "" || password == "" {
			return nil, apperr.ValidationError("Login and password are required for local sign-up")
		}
		record.Sub = userLocalID
		record.Login = attempt.Login
		record.EmailIsValidated = attempt.EmailIsValidated
	} else {
		if attempt.Sub == "" {
			return nil, apperr.ValidationError("Provider subject is required", apperr.FieldError{Field: "sub", Message: "This field is required"})
		}
		record.Sub = attempt.Sub
		record.Login = FederatedLogin(email, attempt.ProviderName)
		record.EmailIsValidated = true

		// Never used to authenticate; it only fills the non-null column.
		if password == "" {
			random, err := sec.RandomSecret(constants.RandomPasswordBytes)
			if err != nil {
				return nil, fmt.Errorf("identity_factory_random_password_failed: %w", err)
			}
			password = random
		}
	}

	hashed, err := factory.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("identity_factory_hash_failed: %w", err)
	}
	record.Password = hashed

	aggregate.record = record
	return aggregate, nil
}

// FederatedLogin derives the login stored for non-local credentials.
func FederatedLogin(email string, provider ProviderName) string {
	return email + ":" + string(provider)
}

// ProviderName returns the provider the attempt targets.
func (aggregate *Aggregate) ProviderName() ProviderName { return aggregate.record.ProviderName }

// IsLocalProvider reports whether the attempt is a password sign-up.
func (aggregate *Aggregate) IsLocalProvider() bool { return aggregate.record.ProviderName.IsLocal() }

// UsersProvider returns the built credential record.
func (aggregate *Aggregate) UsersProvider() *UsersProvider { return &aggregate.record }

// User returns the owning user.
func (aggregate *Aggregate) User() User { return aggregate.user }

// IsNewUser reports whether the owning user id was generated by the factory.
func (aggregate *Aggregate) IsNewUser() bool { return aggregate.isNewUser }

// SetProviderLocalID late-binds the catalog id once the provider lookup completes.
func (aggregate *Aggregate) SetProviderLocalID(id string) { aggregate.record.ProviderLocalID = id }
