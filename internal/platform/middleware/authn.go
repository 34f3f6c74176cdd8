// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/taibuivan/idgate/internal/platform/apperr"
	"github.com/taibuivan/idgate/internal/platform/constants"
	"github.com/taibuivan/idgate/internal/platform/ctxutil"
	requestutil "github.com/taibuivan/idgate/internal/platform/request"
	"github.com/taibuivan/idgate/internal/platform/respond"
	"github.com/taibuivan/idgate/internal/platform/sec"
)

// SessionValidator is the gateway's view of the session manager.
type SessionValidator interface {
	ValidateToken(context context.Context, token string) (*sec.Claims, error)
}

// Authenticate resolves the bearer token (or session cookie) into session claims.
//
// # Flow
//  1. No token: the request proceeds as anonymous.
//  2. Token present: it must validate against a live, active session.
//  3. Claims are stored in the request context for [RequireSession] and handlers.
func Authenticate(validator SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			token := requestutil.BearerToken(request)
			if token == "" {
				next.ServeHTTP(writer, request)
				return
			}

			claims, err := validator.ValidateToken(request.Context(), token)
			if err != nil {
				respond.Error(writer, request, err)
				return
			}

			ctx := ctxutil.WithSession(request.Context(), claims)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// RequireSession rejects anonymous requests with 401.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if ctxutil.GetSession(request.Context()) == nil {
			respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// ErrInvalidServiceToken is returned to callers of the companion API without
// the shared service token.
var ErrInvalidServiceToken = apperr.Unauthorized("Invalid service token")

// RequireServiceToken guards the companion API. The caller must send the
// shared secret in the [constants.HeaderXServiceToken] header. An empty
// secret refuses every request.
func RequireServiceToken(secret string) func(http.Handler) http.Handler {
	expected := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			presented := []byte(request.Header.Get(constants.HeaderXServiceToken))
			if len(expected) == 0 || subtle.ConstantTimeCompare(presented, expected) != 1 {
				respond.Error(writer, request, ErrInvalidServiceToken)
				return
			}
			next.ServeHTTP(writer, request)
		})
	}
}
