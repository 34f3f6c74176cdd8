// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, rate limits, and cross-cutting keys that are shared
between the gateway, the Users service and the Auth service.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Rate Limiting: Burst capacities and IP tracking TTLs.
  - Security: cookie names and bcrypt cost.
  - Redis: key prefixes for the token ledger and sweep lock.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "idgate"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Rate Limiting

const (
	// DefaultRateLimitRPS is the requests per second allowed per IP.
	DefaultRateLimitRPS = 20.0

	// DefaultRateLimitBurst is the maximum burst allowed for the rate limiter.
	DefaultRateLimitBurst = 40

	// RateLimitCleanupInterval is how often old IP entries are removed from memory.
	RateLimitCleanupInterval = 1 * time.Minute

	// RateLimitClientTTL is how long a client must be idle before its entry is deleted.
	RateLimitClientTTL = 3 * time.Minute
)

// # Authentication

const (
	// SessionCookieName carries the session token for browser clients.
	SessionCookieName = "idgate_session"

	// SessionCookiePath scopes the session cookie to the API.
	SessionCookiePath = "/api/v1"

	// OAuthStateCookieName stores the anti-CSRF state during the OAuth dance.
	OAuthStateCookieName = "idgate_oauth_state"

	// OAuthStateTTL bounds how long a user may take at the provider's consent screen.
	OAuthStateTTL = 10 * time.Minute

	// OAuthProfileTimeout bounds each provider profile request.
	OAuthProfileTimeout = 10 * time.Second

	// BcryptCost is the work factor used for every stored credential.
	BcryptCost = 12

	// RandomPasswordBytes is the entropy of the placeholder password stored
	// for federated credentials.
	RandomPasswordBytes = 32
)

// # HTTP Headers

const (
	HeaderXRequestID    = "X-Request-ID"
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderOrigin        = "Origin"
	HeaderXServiceToken = "X-Service-Token"
)

// # JSON Field Identifiers

const (
	FieldData    = "data"
	FieldMeta    = "meta"
	FieldError   = "error"
	FieldCode    = "code"
	FieldDetails = "details"
	FieldItems   = "items"
	FieldTotal   = "total"
	FieldMessage = "message"
	FieldStatus  = "status"
	FieldApp     = "app"
	FieldVersion = "version"
	FieldChecks  = "checks"
	FieldWarning = "warning"
)

// # Database Schemas

const (
	SchemaUsers = "users"
	SchemaAuth  = "auth"
)

// # Redis Prefixes (Cache Taxonomy)

const (
	// RedisPrefixUsedResetToken marks a reset token id as consumed.
	RedisPrefixUsedResetToken = "users:reset_token:used:"

	// RedisKeySweepLock guards the session sweep across instances.
	RedisKeySweepLock = "auth:session:sweep_lock"
)
