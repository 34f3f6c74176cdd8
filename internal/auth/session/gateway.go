// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"errors"
	"time"

	"github.com/taibuivan/idgate/internal/platform/apperr"
	"github.com/taibuivan/idgate/internal/users/identity"
)

// LocalUsers implements [UsersGateway] with in-process calls bounded by a timeout.
type LocalUsers struct {
	service *identity.Service
	timeout time.Duration
}

// NewLocalUsers wraps the Users service.
func NewLocalUsers(service *identity.Service, timeout time.Duration) *LocalUsers {
	return &LocalUsers{service: service, timeout: timeout}
}

// CreateUser implements [UsersGateway].
func (users *LocalUsers) CreateUser(ctx context.Context, attempt identity.Attempt) (*identity.Outcome, error) {
	callCtx, cancel := context.WithTimeout(ctx, users.timeout)
	defer cancel()

	outcome, err := users.service.CreateUser(callCtx, attempt)
	return outcome, upstream(err)
}

// FindByEmailOrLogin implements [UsersGateway].
func (users *LocalUsers) FindByEmailOrLogin(ctx context.Context, emailOrLogin string) (*identity.Credential, error) {
	callCtx, cancel := context.WithTimeout(ctx, users.timeout)
	defer cancel()

	credential, err := users.service.FindByEmailOrLogin(callCtx, emailOrLogin)
	return credential, upstream(err)
}

// upstream maps a blown deadline to the Upstream error class.
func upstream(err error) error {
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !apperr.HasCode(err, apperr.CodeUpstream) {
		return apperr.Upstream(err)
	}
	return err
}
