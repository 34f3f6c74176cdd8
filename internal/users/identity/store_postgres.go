// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/idgate/internal/platform/apperr"
	"github.com/taibuivan/idgate/internal/platform/dberr"
	"github.com/taibuivan/idgate/internal/platform/postgres"
	"github.com/taibuivan/idgate/pkg/pointer"
	"github.com/taibuivan/idgate/pkg/slice"
)

// querier is satisfied by both [pgxpool.Pool] and [pgx.Tx].
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// scanner is satisfied by [pgx.Row] and [pgx.Rows].
type scanner interface {
	Scan(dest ...any) error
}

// usersProviderColumns is the projection shared by every credential query.
const usersProviderColumns = `
	up.id, up.user_local_id, up.provider_local_id, p.name,
	up.sub, up.email, up.login, up.name, up.surname, up.avatar,
	up.password, up.email_is_validated, up.created_at, up.updated_at`

const usersProviderFrom = `
	FROM users.users_provider up
	JOIN users.provider p ON p.id = up.provider_local_id`

// localFirst orders several matches so the password credential wins.
const localFirst = ` ORDER BY (p.name = 'local') DESC, up.created_at ASC, up.id ASC`

var fieldColumns = map[Field]string{
	FieldEmail:    "email",
	FieldLogin:    "login",
	FieldName:     "name",
	FieldSurname:  "surname",
	FieldPassword: "password",
	FieldAvatar:   "avatar",
}

// # Repository

// PostgresRepository implements [Repository] using pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
	db   querier
	inTx bool
}

// NewRepository creates a new PostgreSQL implementation of [Repository].
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool, db: pool}
}

// InTx implements [Repository]. Nested calls reuse the outer transaction.
func (repository *PostgresRepository) InTx(context context.Context, fn func(repository Repository) error) error {
	if repository.inTx {
		return fn(repository)
	}

	return postgres.InTx(context, repository.pool, func(tx pgx.Tx) error {
		return fn(&PostgresRepository{pool: repository.pool, db: tx, inTx: true})
	})
}

// LockKeys implements [Repository] with transaction-scoped advisory locks.
// Keys are taken in sorted order so two reconciliations never deadlock.
func (repository *PostgresRepository) LockKeys(context context.Context, keys ...string) error {
	if !repository.inTx {
		return errors.New("postgres_identity_repo_lock_outside_tx")
	}

	const query = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

	sorted := slices.Clone(keys)
	slices.Sort(sorted)

	for _, key := range slices.Compact(sorted) {
		if _, err := repository.db.Exec(context, query, key); err != nil {
			return fmt.Errorf("postgres_identity_repo_lock_failed: %w", err)
		}
	}

	return nil
}

// FindProviderByName implements [Repository].
func (repository *PostgresRepository) FindProviderByName(context context.Context, name ProviderName) (*Provider, error) {
	const query = `SELECT id, name FROM users.provider WHERE name = $1`

	provider := &Provider{}
	if err := repository.db.QueryRow(context, query, string(name)).Scan(&provider.ID, &provider.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Provider")
		}
		return nil, fmt.Errorf("postgres_identity_repo_find_provider_failed: %w", err)
	}

	return provider, nil
}

/*
FindUsersProvider implements [Repository].

Description: Builds an equality predicate from the non-nil filter fields. Inside
a transaction the matched row is locked with FOR UPDATE.

Parameters:
  - context: context.Context
  - filter: Filter

Returns:
  - *UsersProvider: Local-first match, nil when none
  - error: Database failures
*/
func (repository *PostgresRepository) FindUsersProvider(context context.Context, filter Filter) (*UsersProvider, error) {
	if filter.IsEmpty() {
		return nil, errors.New("postgres_identity_repo_empty_filter")
	}

	where, args := filter.sql()
	query := "SELECT" + usersProviderColumns + usersProviderFrom + " WHERE " + where + localFirst + " LIMIT 1"
	if repository.inTx {
		query += " FOR UPDATE OF up"
	}

	record, err := scanUsersProvider(repository.db.QueryRow(context, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres_identity_repo_find_failed: %w", err)
	}

	return record, nil
}

// CreateUser implements [Repository].
func (repository *PostgresRepository) CreateUser(context context.Context, aggregate *Aggregate) error {
	return repository.InTx(context, func(inner Repository) error {
		tx := inner.(*PostgresRepository)
		user := aggregate.User()

		const query = `INSERT INTO users.account (id, created_at, updated_at) VALUES ($1, $2, $3)`
		if _, err := tx.db.Exec(context, query, user.ID, user.CreatedAt, user.UpdatedAt); err != nil {
			return dberr.Wrap(fmt.Errorf("postgres_identity_repo_create_user_failed: %w", err), "Account")
		}

		return tx.insertUsersProvider(context, user.ID, aggregate.UsersProvider())
	})
}

// CreateUsersProvider implements [Repository].
func (repository *PostgresRepository) CreateUsersProvider(context context.Context, userID string, record *UsersProvider) error {
	return repository.insertUsersProvider(context, userID, record)
}

func (repository *PostgresRepository) insertUsersProvider(context context.Context, userID string, record *UsersProvider) error {
	const query = `
		INSERT INTO users.users_provider (
			id, user_local_id, provider_local_id, sub, email, login,
			name, surname, avatar, password, email_is_validated, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := repository.db.Exec(context, query,
		record.ID,
		userID,
		record.ProviderLocalID,
		record.Sub,
		record.Email,
		record.Login,
		record.Name,
		record.Surname,
		record.Avatar,
		record.Password,
		record.EmailIsValidated,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return dberr.Wrap(fmt.Errorf("postgres_identity_repo_create_provider_failed: %w", err), "Account")
	}

	record.UserLocalID = userID
	return nil
}

// UpdateUsersProvider implements [Repository].
func (repository *PostgresRepository) UpdateUsersProvider(context context.Context, id string, values *UsersProvider, fields ...Field) error {
	if len(fields) == 0 {
		return nil
	}

	assignments := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+1)

	for _, field := range fields {
		column, ok := fieldColumns[field]
		if !ok {
			return fmt.Errorf("postgres_identity_repo_unknown_field: %s", field)
		}
		args = append(args, fieldValue(values, field))
		assignments = append(assignments, column+" = $"+strconv.Itoa(len(args)))
	}
	assignments = append(assignments, "updated_at = now()")
	args = append(args, id)

	query := "UPDATE users.users_provider SET " + strings.Join(assignments, ", ") +
		" WHERE id = $" + strconv.Itoa(len(args))

	tag, err := repository.db.Exec(context, query, args...)
	if err != nil {
		return dberr.Wrap(fmt.Errorf("postgres_identity_repo_update_failed: %w", err), "Account")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Account")
	}

	return nil
}

// ConfirmEmail implements [Repository].
func (repository *PostgresRepository) ConfirmEmail(context context.Context, providerRecordID string) error {
	const query = `
		UPDATE users.users_provider
		SET email_is_validated = true, updated_at = now()
		WHERE id = $1`

	tag, err := repository.db.Exec(context, query, providerRecordID)
	if err != nil {
		return fmt.Errorf("postgres_identity_repo_confirm_email_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Account")
	}

	return nil
}

// DeleteUser implements [Repository]. Credentials go with it via ON DELETE CASCADE.
func (repository *PostgresRepository) DeleteUser(context context.Context, id string) error {
	const query = `DELETE FROM users.account WHERE id = $1`

	tag, err := repository.db.Exec(context, query, id)
	if err != nil {
		return fmt.Errorf("postgres_identity_repo_delete_user_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("User")
	}

	return nil
}

// FindUser implements [Repository].
func (repository *PostgresRepository) FindUser(context context.Context, id string) (*UserView, error) {
	const query = `SELECT id, created_at, updated_at FROM users.account WHERE id = $1`

	view := &UserView{}
	if err := repository.db.QueryRow(context, query, id).Scan(&view.ID, &view.CreatedAt, &view.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User")
		}
		return nil, fmt.Errorf("postgres_identity_repo_find_user_failed: %w", err)
	}

	byUser, err := repository.providersOf(context, []string{id})
	if err != nil {
		return nil, err
	}
	view.Providers = byUser[id]

	return view, nil
}

// ListUsers implements [Repository].
func (repository *PostgresRepository) ListUsers(context context.Context, limit, offset int) ([]UserView, int, error) {
	var total int
	if err := repository.db.QueryRow(context, `SELECT count(*) FROM users.account`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres_identity_repo_count_users_failed: %w", err)
	}

	const query = `
		SELECT id, created_at, updated_at
		FROM users.account
		ORDER BY created_at ASC, id ASC
		LIMIT $1 OFFSET $2`

	rows, err := repository.db.Query(context, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres_identity_repo_list_users_failed: %w", err)
	}

	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (UserView, error) {
		var view UserView
		err := row.Scan(&view.ID, &view.CreatedAt, &view.UpdatedAt)
		return view, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("postgres_identity_repo_list_users_scan_failed: %w", err)
	}

	ids := slice.Map(users, func(view UserView) string { return view.ID })

	byUser, err := repository.providersOf(context, ids)
	if err != nil {
		return nil, 0, err
	}
	for index := range users {
		users[index].Providers = byUser[users[index].ID]
	}

	return users, total, nil
}

// providersOf loads the credentials of several users, local first.
func (repository *PostgresRepository) providersOf(context context.Context, userIDs []string) (map[string][]UsersProvider, error) {
	grouped := make(map[string][]UsersProvider, len(userIDs))
	if len(userIDs) == 0 {
		return grouped, nil
	}

	query := "SELECT" + usersProviderColumns + usersProviderFrom +
		" WHERE up.user_local_id = ANY($1::uuid[])" + localFirst

	rows, err := repository.db.Query(context, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres_identity_repo_providers_failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanUsersProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres_identity_repo_providers_scan_failed: %w", err)
		}
		grouped[record.UserLocalID] = append(grouped[record.UserLocalID], *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_identity_repo_providers_failed: %w", err)
	}

	return grouped, nil
}

// # Helpers

// sql renders the filter as a conjunction of equality predicates.
func (filter Filter) sql() (string, []any) {
	var (
		clauses []string
		args    []any
	)

	add := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		clauses = append(clauses, column+" = $"+strconv.Itoa(len(args)))
	}

	add("up.id", filter.ID)
	add("up.email", filter.Email)
	add("up.login", filter.Login)
	add("up.sub", filter.Sub)
	add("up.provider_local_id", filter.ProviderLocalID)

	return strings.Join(clauses, " AND "), args
}

func fieldValue(values *UsersProvider, field Field) any {
	switch field {
	case FieldEmail:
		return values.Email
	case FieldLogin:
		return values.Login
	case FieldName:
		return values.Name
	case FieldSurname:
		return values.Surname
	case FieldPassword:
		return values.Password
	case FieldAvatar:
		return values.Avatar
	}
	return nil
}

func scanUsersProvider(row scanner) (*UsersProvider, error) {
	record := &UsersProvider{}
	var userLocalID *string

	err := row.Scan(
		&record.ID,
		&userLocalID,
		&record.ProviderLocalID,
		&record.ProviderName,
		&record.Sub,
		&record.Email,
		&record.Login,
		&record.Name,
		&record.Surname,
		&record.Avatar,
		&record.Password,
		&record.EmailIsValidated,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.UserLocalID = pointer.Val(userLocalID)
	return record, nil
}
