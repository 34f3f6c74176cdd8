// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/idgate/internal/platform/apperr"
	"github.com/taibuivan/idgate/internal/platform/constants"
	"github.com/taibuivan/idgate/internal/platform/ctxutil"
	"github.com/taibuivan/idgate/internal/platform/middleware"
	"github.com/taibuivan/idgate/internal/platform/sec"
)

type stubValidator struct {
	token string
}

func (validator stubValidator) ValidateToken(_ context.Context, token string) (*sec.Claims, error) {
	if token != validator.token {
		return nil, apperr.Unauthorized("Invalid token")
	}
	return &sec.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}, Kind: sec.KindSession}, nil
}

func guarded() http.Handler {
	inner := http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write([]byte(ctxutil.GetSession(request.Context()).Subject))
	})
	return middleware.Authenticate(stubValidator{token: "good"})(middleware.RequireSession(inner))
}

/*
TestAuthenticate covers anonymous, valid bearer, valid cookie and rejected tokens.
*/
func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name       string
		prepare    func(request *http.Request)
		wantStatus int
		wantBody   string
	}{
		{"Anonymous", func(*http.Request) {}, http.StatusUnauthorized, ""},
		{"Bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, http.StatusOK, "user-1"},
		{"Cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: constants.SessionCookieName, Value: "good"})
		}, http.StatusOK, "user-1"},
		{"Forged", func(r *http.Request) { r.Header.Set("Authorization", "Bearer bad") }, http.StatusUnauthorized, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/me", nil)
			tc.prepare(request)
			recorder := httptest.NewRecorder()

			guarded().ServeHTTP(recorder, request)

			assert.Equal(t, tc.wantStatus, recorder.Code)
			if tc.wantBody != "" {
				assert.Equal(t, tc.wantBody, recorder.Body.String())
			}
		})
	}
}

/*
TestRequestID verifies generation and propagation of the correlation header.
*/
func TestRequestID(t *testing.T) {
	var seen string
	handler := middleware.RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, request *http.Request) {
		seen = ctxutil.GetRequestID(request.Context())
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, recorder.Header().Get(constants.HeaderXRequestID))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set(constants.HeaderXRequestID, "upstream-id")
	handler.ServeHTTP(httptest.NewRecorder(), request)
	assert.Equal(t, "upstream-id", seen)
}

/*
TestRateLimiter verifies the bucket empties after the burst and is per key.
*/
func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter := middleware.NewRateLimiter(ctx, 0.001, 2)

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"))
}

/*
TestRealIP verifies proxy header precedence.
*/
func TestRealIP(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.RemoteAddr = "192.0.2.1:4321"
	assert.Equal(t, "192.0.2.1", middleware.RealIP(request))

	request.Header.Set(constants.HeaderXForwardedFor, "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", middleware.RealIP(request))

	request.Header.Set(constants.HeaderXRealIP, "198.51.100.7")
	assert.Equal(t, "198.51.100.7", middleware.RealIP(request))
}

type corsEnvironment bool

func (development corsEnvironment) IsDevelopment() bool { return bool(development) }

/*
TestCORS checks that only the configured domain and its subdomains are allowed
outside development.
*/
func TestCORS(t *testing.T) {
	handler := middleware.CORS(corsEnvironment(false), "idgate.app")(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"https://idgate.app", true},
		{"https://www.idgate.app", true},
		{"https://accounts.eu.idgate.app:8443", true},
		{"https://evil-idgate.app", false},
		{"https://idgate.app.evil.com", false},
		{"https://evilidgate.app", false},
		{"javascript://idgate.app", false},
		{"null", false},
	}

	for _, tc := range tests {
		t.Run(tc.origin, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/", nil)
			request.Header.Set(constants.HeaderOrigin, tc.origin)
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)

			if tc.allowed {
				assert.Equal(t, tc.origin, recorder.Header().Get("Access-Control-Allow-Origin"))
				assert.Equal(t, "true", recorder.Header().Get("Access-Control-Allow-Credentials"))
			} else {
				assert.Empty(t, recorder.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

/*
TestRequireServiceToken checks the companion guard.
*/
func TestRequireServiceToken(t *testing.T) {
	inner := http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"Matching", "s3cret", "s3cret", http.StatusNoContent},
		{"Missing header", "s3cret", "", http.StatusUnauthorized},
		{"Wrong value", "s3cret", "s3creT", http.StatusUnauthorized},
		{"Longer value", "s3cret", "s3cret-and-more", http.StatusUnauthorized},
		{"No secret configured", "", "", http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodPost, "/internal/users/lookup", nil)
			if tc.header != "" {
				request.Header.Set(constants.HeaderXServiceToken, tc.header)
			}
			recorder := httptest.NewRecorder()
			middleware.RequireServiceToken(tc.secret)(inner).ServeHTTP(recorder, request)

			assert.Equal(t, tc.want, recorder.Code)
		})
	}
}
