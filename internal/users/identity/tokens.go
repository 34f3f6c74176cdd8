// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/idgate/internal/platform/apperr"
	"github.com/taibuivan/idgate/internal/platform/metrics"
	"github.com/taibuivan/idgate/internal/platform/sec"
	"github.com/taibuivan/idgate/pkg/pointer"
)

// ErrInvalidToken is returned for any unusable verification or reset token.
var ErrInvalidToken = apperr.Unauthorized("Invalid token")

// PurgeWarning is attached to a reset whose session purge did not complete.
const PurgeWarning = "Password changed, but existing sessions could not be signed out. Please retry signing out on your other devices."

// TokenFlow issues and redeems email verification and password reset tokens.
type TokenFlow struct {
	repository   Repository
	verification *sec.Signer
	reset        *sec.Signer
	ledger       TokenLedger
	hasher       sec.Hasher
	purger       SessionPurger
	purgeTimeout time.Duration
	emails       *EmailComposer
	notifier     Notifier
	metrics      metrics.Recorder
	logger       *slog.Logger
}

// TokenFlowDeps groups the collaborators of a [TokenFlow].
type TokenFlowDeps struct {
	Repository   Repository
	Verification *sec.Signer
	Reset        *sec.Signer
	Ledger       TokenLedger
	Hasher       sec.Hasher
	Purger       SessionPurger
	PurgeTimeout time.Duration
	Emails       *EmailComposer
	Notifier     Notifier
	Metrics      metrics.Recorder
	Logger       *slog.Logger
}

// NewTokenFlow creates the flow. The two signers must use distinct secrets.
func NewTokenFlow(deps TokenFlowDeps) *TokenFlow {
	return &TokenFlow{
		repository:   deps.Repository,
		verification: deps.Verification,
		reset:        deps.Reset,
		ledger:       deps.Ledger,
		hasher:       deps.Hasher,
		purger:       deps.Purger,
		purgeTimeout: deps.PurgeTimeout,
		emails:       deps.Emails,
		notifier:     deps.Notifier,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
	}
}

// # Email Verification

// SendVerification signs a verification token for the credential and mails it.
// Failures are logged; the caller's operation has already succeeded.
func (flow *TokenFlow) SendVerification(context context.Context, providerRecordID string, email string) {
	token, _, err := flow.verification.Sign(providerRecordID, nil)
	if err != nil {
		flow.logger.ErrorContext(context, "verification_token_sign_failed", slog.Any("error", err))
		return
	}

	message, err := flow.emails.Verification(email, token, humanDuration(flow.verification.TTL()))
	if err != nil {
		flow.logger.ErrorContext(context, "verification_email_render_failed", slog.Any("error", err))
		return
	}

	flow.notifier.Dispatch(context, message)
}

/*
VerifyEmail redeems a verification token.

Description: Any failure (bad signature, expiry, wrong token kind or a
credential deleted in the meantime) yields false rather than an error.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - bool: Whether the email is now confirmed
*/
func (flow *TokenFlow) VerifyEmail(context context.Context, token string) bool {
	claims, err := flow.verification.Verify(token)
	if err != nil {
		return false
	}

	if err := flow.repository.ConfirmEmail(context, claims.Subject); err != nil {
		if !apperr.HasCode(err, apperr.CodeNotFound) {
			flow.logger.ErrorContext(context, "verify_email_failed", slog.Any("error", err))
		}
		return false
	}

	flow.logger.InfoContext(context, "email_verified", slog.String("provider_record_id", claims.Subject))
	return true
}

// # Password Reset

/*
ForgotPassword mails a reset link for the local credential matching the email or login.

Parameters:
  - context: context.Context
  - emailOrLogin: string

Returns:
  - error: apperr.NotFound when no local credential matches
*/
func (flow *TokenFlow) ForgotPassword(context context.Context, emailOrLogin string) error {
	record, err := findLocalByEmailOrLogin(context, flow.repository, emailOrLogin)
	if err != nil {
		return err
	}

	token, _, err := flow.reset.Sign(record.ID, nil)
	if err != nil {
		return fmt.Errorf("identity_reset_token_sign_failed: %w", err)
	}

	message, err := flow.emails.PasswordReset(record.Email, token, humanDuration(flow.reset.TTL()))
	if err != nil {
		return fmt.Errorf("identity_reset_email_render_failed: %w", err)
	}

	flow.notifier.Dispatch(context, message)
	return nil
}

// ResetResult reports a completed password reset.
type ResetResult struct {
	UserID         string `json:"userId"`
	SessionsPurged int64  `json:"sessionsPurged"`
	// Warning is set when the password changed but the session purge did not finish.
	Warning string `json:"warning,omitempty"`
}

/*
ResetPassword redeems a reset token and replaces the credential's password.

Description: The token is single-use. After the new digest is persisted every
session of that user and provider is purged through the Auth service, awaited
with a bounded timeout; a failed purge is reported as a warning because the
password change itself has already been committed. A notification is mailed last.

Parameters:
  - context: context.Context
  - token: string
  - newPassword: string

Returns:
  - *ResetResult: Outcome, possibly with a partial-failure warning
  - error: ErrInvalidToken, apperr.NotFound when the credential is gone
*/
func (flow *TokenFlow) ResetPassword(context context.Context, token, newPassword string) (*ResetResult, error) {
	claims, err := flow.reset.Verify(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	record, err := flow.repository.FindUsersProvider(context, Filter{ID: pointer.To(claims.Subject)})
	if err != nil {
		return nil, fmt.Errorf("identity_reset_lookup_failed: %w", err)
	}
	if record == nil {
		return nil, apperr.NotFound("Account")
	}

	first, err := flow.ledger.Consume(context, claims.ID, time.Until(claims.ExpiresAt.Time))
	if err != nil {
		return nil, fmt.Errorf("identity_reset_ledger_failed: %w", err)
	}
	if !first {
		return nil, ErrInvalidToken
	}

	hashed, err := flow.hasher.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("identity_reset_hash_failed: %w", err)
	}

	if err := flow.repository.UpdateUsersProvider(context, record.ID, &UsersProvider{Password: hashed}, FieldPassword); err != nil {
		return nil, err
	}

	result := &ResetResult{UserID: record.UserLocalID}

	purged, err := flow.purgeSessions(context, record.UserLocalID, record.ProviderName)
	if err != nil {
		flow.logger.WarnContext(context, "session_purge_partial_failure",
			slog.String("user_id", record.UserLocalID),
			slog.String("provider", string(record.ProviderName)),
			slog.Any("error", err),
		)
		result.Warning = PurgeWarning
	} else {
		result.SessionsPurged = purged
	}

	if message, err := flow.emails.PasswordChanged(record.Email); err == nil {
		flow.notifier.Dispatch(context, message)
	} else {
		flow.logger.ErrorContext(context, "password_changed_email_render_failed", slog.Any("error", err))
	}

	return result, nil
}

// purgeSessions awaits the Auth service with a bounded timeout.
func (flow *TokenFlow) purgeSessions(ctx context.Context, userID string, provider ProviderName) (int64, error) {
	purgeCtx, cancel := context.WithTimeout(ctx, flow.purgeTimeout)
	defer cancel()

	purged, err := flow.purger.DeleteAllProviderSessions(purgeCtx, userID, string(provider))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, apperr.Upstream(err)
		}
		return 0, err
	}
	return purged, nil
}

// findLocalByEmailOrLogin resolves a local credential by email first, then by login.
func findLocalByEmailOrLogin(context context.Context, repository Repository, value string) (*UsersProvider, error) {
	provider, err := repository.FindProviderByName(context, ProviderLocal)
	if err != nil {
		return nil, err
	}

	filters := []Filter{
		{Email: pointer.To(Attempt{Email: value}.Normalized().Email), ProviderLocalID: pointer.To(provider.ID)},
		{Login: pointer.To(value), ProviderLocalID: pointer.To(provider.ID)},
	}

	for _, filter := range filters {
		record, err := repository.FindUsersProvider(context, filter)
		if err != nil {
			return nil, fmt.Errorf("identity_lookup_failed: %w", err)
		}
		if record != nil {
			return record, nil
		}
	}

	return nil, apperr.NotFound("Account")
}

// humanDuration renders a token lifetime for email copy.
func humanDuration(duration time.Duration) string {
	switch {
	case duration >= time.Hour && duration%time.Hour == 0:
		return pluralize(int(duration/time.Hour), "hour")
	case duration >= time.Minute:
		return pluralize(int(duration/time.Minute), "minute")
	}
	return duration.String()
}

func pluralize(count int, unit string) string {
	if count == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", count, unit)
}
