// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package identity implements the Users service: account identity resolution and
merging across login providers (local password, Google, GitHub).

Architecture:

  - Factory: builds candidate credentials from raw attempts.
  - Engine: the reconciliation decision table (CREATE / ATTACH / UPDATE / REJECT).
  - TokenFlow: email verification and password reset tokens.
  - Repository: PostgreSQL persistence with local-first lookups, Redis token ledger.

The Auth service reaches this package through [Service] for sign-up, sign-in
lookups and credential changes; this package reaches back only through
[SessionPurger].
*/
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/idgate/internal/platform/apperr"
	"github.com/taibuivan/idgate/pkg/pagination"
)

// Service exposes the Users service operations.
type Service struct {
	repository   Repository
	engine       *Engine
	tokens       *TokenFlow
	purger       SessionPurger
	purgeTimeout time.Duration
	logger       *slog.Logger
}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(repository Repository, engine *Engine, tokens *TokenFlow, purger SessionPurger, purgeTimeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		repository:   repository,
		engine:       engine,
		tokens:       tokens,
		purger:       purger,
		purgeTimeout: purgeTimeout,
		logger:       logger,
	}
}

// # Registration Flow

/*
CreateUser reconciles a provider attempt into an account.

Description: Any conflict, explicit or raised by a uniqueness constraint, is
reported as the generic [ErrRegistrationFailed].

Parameters:
  - context: context.Context
  - attempt: Attempt

Returns:
  - *Outcome: Owning user id and affected credential
  - error: ErrRegistrationFailed, validation or storage errors
*/
func (service *Service) CreateUser(context context.Context, attempt Attempt) (*Outcome, error) {
	outcome, err := service.engine.Reconcile(context, attempt)
	if err != nil {
		if apperr.HasCode(err, apperr.CodeConflict) {
			if !errors.Is(err, ErrRegistrationFailed) {
				service.logger.InfoContext(context, "registration_conflict", slog.Any("error", apperr.As(err).Cause))
			}
			return nil, ErrRegistrationFailed
		}
		if apperr.IsAppError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("identity_service_create_user_failed: %w", err)
	}

	return outcome, nil
}

// # Credential Lookup

/*
FindByEmailOrLogin returns the local credential used for password sign-in.

Parameters:
  - context: context.Context
  - emailOrLogin: string

Returns:
  - *Credential: Digest and verification state
  - error: apperr.NotFound
*/
func (service *Service) FindByEmailOrLogin(context context.Context, emailOrLogin string) (*Credential, error) {
	record, err := findLocalByEmailOrLogin(context, service.repository, emailOrLogin)
	if err != nil {
		return nil, err
	}

	return &Credential{
		ID:               record.ID,
		UserLocalID:      record.UserLocalID,
		PasswordHash:     record.Password,
		Email:            record.Email,
		EmailIsValidated: record.EmailIsValidated,
	}, nil
}

// GetUser returns one user with its credentials.
func (service *Service) GetUser(context context.Context, userID string) (*UserView, error) {
	return service.repository.FindUser(context, userID)
}

// ListUsers returns one window of users.
func (service *Service) ListUsers(context context.Context, params pagination.Params) ([]UserView, pagination.Meta, error) {
	users, total, err := service.repository.ListUsers(context, params.Limit, params.Offset)
	if err != nil {
		return nil, pagination.Meta{}, fmt.Errorf("identity_service_list_users_failed: %w", err)
	}
	return users, pagination.NewMeta(params, total), nil
}

// # Account Removal

/*
DeleteUser removes an account with every credential, then signs it out everywhere.

Description: The deletion is committed before sessions are purged. A purge
failure is returned as a warning, not an error.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - string: Partial-failure warning, empty on full success
  - error: apperr.NotFound or storage errors
*/
func (service *Service) DeleteUser(ctx context.Context, userID string) (string, error) {
	user, err := service.repository.FindUser(ctx, userID)
	if err != nil {
		return "", err
	}

	if err := service.repository.DeleteUser(ctx, userID); err != nil {
		return "", err
	}

	seen := map[ProviderName]bool{}
	var purgeErrors []error

	for _, record := range user.Providers {
		if seen[record.ProviderName] {
			continue
		}
		seen[record.ProviderName] = true

		purgeCtx, cancel := context.WithTimeout(ctx, service.purgeTimeout)
		_, err := service.purger.DeleteAllProviderSessions(purgeCtx, userID, string(record.ProviderName))
		cancel()

		if err != nil {
			purgeErrors = append(purgeErrors, fmt.Errorf("%s: %w", record.ProviderName, err))
		}
	}

	service.logger.InfoContext(ctx, "user_deleted", slog.String("user_id", userID))

	if len(purgeErrors) > 0 {
		service.logger.WarnContext(ctx, "session_purge_partial_failure",
			slog.String("user_id", userID),
			slog.Any("error", errors.Join(purgeErrors...)),
		)
		return "Account deleted, but some sessions could not be signed out.", nil
	}

	return "", nil
}

// # Token Flows

// VerifyEmail redeems an email verification token. See [TokenFlow.VerifyEmail].
func (service *Service) VerifyEmail(context context.Context, token string) bool {
	return service.tokens.VerifyEmail(context, token)
}

// ForgotPassword mails a reset link. See [TokenFlow.ForgotPassword].
func (service *Service) ForgotPassword(context context.Context, emailOrLogin string) error {
	return service.tokens.ForgotPassword(context, emailOrLogin)
}

// ResetPassword redeems a reset token. See [TokenFlow.ResetPassword].
func (service *Service) ResetPassword(context context.Context, token, newPassword string) (*ResetResult, error) {
	return service.tokens.ResetPassword(context, token, newPassword)
}
