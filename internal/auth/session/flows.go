// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"log/slog"

	"github.com/taibuivan/idgate/internal/platform/apperr"
	"github.com/taibuivan/idgate/internal/platform/sec"
	"github.com/taibuivan/idgate/internal/users/identity"
)

// ErrInvalidCredentials hides whether the account or the password was wrong.
var ErrInvalidCredentials = apperr.Unauthorized("Invalid login credentials")

// ErrEmailNotVerified is returned for a correct password on an unconfirmed email.
var ErrEmailNotVerified = apperr.Forbidden("Email address is not verified")

// UsersGateway is the Auth service's view of the Users service.
type UsersGateway interface {
	CreateUser(context context.Context, attempt identity.Attempt) (*identity.Outcome, error)
	FindByEmailOrLogin(context context.Context, emailOrLogin string) (*identity.Credential, error)
}

// Authenticator implements sign-up and sign-in on top of the [Manager].
type Authenticator struct {
	users   UsersGateway
	manager *Manager
	hasher  sec.Hasher
	logger  *slog.Logger
}

// NewAuthenticator wires the sign-in flows.
func NewAuthenticator(users UsersGateway, manager *Manager, hasher sec.Hasher, logger *slog.Logger) *Authenticator {
	return &Authenticator{users: users, manager: manager, hasher: hasher, logger: logger}
}

// SignUpInput is a local registration request.
type SignUpInput struct {
	Email    string
	Login    string
	Password string
	Name     *string
	Surname  *string
}

// SignInInput is a local password sign-in request.
type SignInInput struct {
	EmailOrLogin string
	Password     string
}

/*
SignUpLocal registers a password credential.

Description: No session is opened; the email must be confirmed first.

Parameters:
  - context: context.Context
  - input: SignUpInput

Returns:
  - *identity.Outcome: Owning user id
  - error: identity.ErrRegistrationFailed, validation or upstream errors
*/
func (authenticator *Authenticator) SignUpLocal(context context.Context, input SignUpInput) (*identity.Outcome, error) {
	return authenticator.users.CreateUser(context, identity.Attempt{
		ProviderName: identity.ProviderLocal,
		Email:        input.Email,
		Login:        input.Login,
		Password:     input.Password,
		Name:         input.Name,
		Surname:      input.Surname,
	})
}

/*
SignInLocal checks a password and opens a session.

Description: Unknown accounts and wrong passwords both yield
[ErrInvalidCredentials]. The verification state is only revealed after the
password matched.

Parameters:
  - context: context.Context
  - input: SignInInput

Returns:
  - *Issued: Session token
  - error: ErrInvalidCredentials, ErrEmailNotVerified, upstream errors
*/
func (authenticator *Authenticator) SignInLocal(context context.Context, input SignInInput) (*Issued, error) {
	credential, err := authenticator.users.FindByEmailOrLogin(context, input.EmailOrLogin)
	if err != nil {
		if apperr.HasCode(err, apperr.CodeNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !authenticator.hasher.Compare(input.Password, credential.PasswordHash) {
		authenticator.logger.InfoContext(context, "sign_in_password_mismatch", slog.String("user_id", credential.UserLocalID))
		return nil, ErrInvalidCredentials
	}

	if !credential.EmailIsValidated {
		return nil, ErrEmailNotVerified
	}

	return authenticator.manager.CreateSession(context, credential.UserLocalID, string(identity.ProviderLocal))
}

/*
SignInExternal reconciles a federated identity and opens a session.

Parameters:
  - context: context.Context
  - attempt: identity.Attempt

Returns:
  - *Issued: Session token
  - error: Reconciliation or upstream errors
*/
func (authenticator *Authenticator) SignInExternal(context context.Context, attempt identity.Attempt) (*Issued, error) {
	if attempt.ProviderName.IsLocal() {
		return nil, apperr.ValidationError("Password credentials cannot sign in through a federated provider")
	}

	outcome, err := authenticator.users.CreateUser(context, attempt)
	if err != nil {
		return nil, err
	}

	return authenticator.manager.CreateSession(context, outcome.UserID, string(attempt.ProviderName))
}
