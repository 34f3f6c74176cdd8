// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"time"
)

// # Lookup Predicates

// Filter is an equality predicate over any subset of credential fields. Nil
// fields are ignored; an empty filter matches nothing.
type Filter struct {
	ID              *string
	Email           *string
	Login           *string
	Sub             *string
	ProviderLocalID *string
}

// IsEmpty reports whether no field is constrained.
func (filter Filter) IsEmpty() bool {
	return filter.ID == nil && filter.Email == nil && filter.Login == nil &&
		filter.Sub == nil && filter.ProviderLocalID == nil
}

// Field names a mutable credential column.
type Field string

const (
	FieldEmail    Field = "email"
	FieldLogin    Field = "login"
	FieldName     Field = "name"
	FieldSurname  Field = "surname"
	FieldPassword Field = "password"
	FieldAvatar   Field = "avatar"
)

// # Data Access

// Repository defines the data access contract for users and their credentials.
type Repository interface {

	/*
		InTx runs fn against a transaction-bound repository. Lookups made through
		it lock the matched rows until fn returns.

		Parameters:
		  - context: context.Context
		  - fn: func(Repository) error

		Returns:
		  - error: fn's error or commit failures
	*/
	InTx(context context.Context, fn func(repository Repository) error) error

	/*
		LockKeys serializes concurrent reconciliations touching the same email,
		login or subject for the lifetime of the current transaction.

		Parameters:
		  - context: context.Context
		  - keys: ...string

		Returns:
		  - error: Database failures
	*/
	LockKeys(context context.Context, keys ...string) error

	/*
		FindProviderByName resolves a catalog entry.

		Parameters:
		  - context: context.Context
		  - name: ProviderName

		Returns:
		  - *Provider: Catalog row
		  - error: apperr.NotFound when the catalog was not seeded
	*/
	FindProviderByName(context context.Context, name ProviderName) (*Provider, error)

	/*
		FindUsersProvider returns the first credential matching filter, preferring
		the local provider when several rows match.

		Parameters:
		  - context: context.Context
		  - filter: Filter

		Returns:
		  - *UsersProvider: The match, or nil when nothing matches
		  - error: Database failures
	*/
	FindUsersProvider(context context.Context, filter Filter) (*UsersProvider, error)

	/*
		CreateUser persists a new user together with its first credential.

		Parameters:
		  - context: context.Context
		  - aggregate: *Aggregate

		Returns:
		  - error: apperr.Conflict on uniqueness violations
	*/
	CreateUser(context context.Context, aggregate *Aggregate) error

	/*
		CreateUsersProvider attaches a credential to an existing user.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - record: *UsersProvider

		Returns:
		  - error: apperr.Conflict on uniqueness violations, apperr.NotFound for an unknown user
	*/
	CreateUsersProvider(context context.Context, userID string, record *UsersProvider) error

	/*
		UpdateUsersProvider copies the listed fields from values onto the row id.

		Parameters:
		  - context: context.Context
		  - id: string
		  - values: *UsersProvider
		  - fields: ...Field

		Returns:
		  - error: apperr.NotFound, apperr.Conflict on uniqueness violations
	*/
	UpdateUsersProvider(context context.Context, id string, values *UsersProvider, fields ...Field) error

	/*
		ConfirmEmail flips emailIsValidated on one credential.

		Parameters:
		  - context: context.Context
		  - providerRecordID: string

		Returns:
		  - error: apperr.NotFound when the credential is gone
	*/
	ConfirmEmail(context context.Context, providerRecordID string) error

	/*
		DeleteUser removes a user and, by cascade, every credential it owns.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - error: apperr.NotFound
	*/
	DeleteUser(context context.Context, id string) error

	/*
		FindUser returns a user with its credentials.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *UserView: Hydrated user
		  - error: apperr.NotFound
	*/
	FindUser(context context.Context, id string) (*UserView, error)

	/*
		ListUsers returns one page of users ordered by creation, with their credentials.

		Parameters:
		  - context: context.Context
		  - limit: int
		  - offset: int

		Returns:
		  - []UserView: Page content
		  - int: Total number of users
		  - error: Database failures
	*/
	ListUsers(context context.Context, limit, offset int) ([]UserView, int, error)
}

// # Token Ledger

// TokenLedger remembers consumed single-use token ids until they expire.
type TokenLedger interface {

	/*
		Consume marks tokenID as used for ttl.

		Parameters:
		  - context: context.Context
		  - tokenID: string
		  - ttl: time.Duration

		Returns:
		  - bool: true for the first consumer, false for every replay
		  - error: Storage failures
	*/
	Consume(context context.Context, tokenID string, ttl time.Duration) (bool, error)
}

// # Companion Contracts

// SessionPurger is the Auth service operation invoked after credential changes.
type SessionPurger interface {
	DeleteAllProviderSessions(context context.Context, userID string, providerName string) (int64, error)
}
