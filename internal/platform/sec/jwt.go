// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing) from
// the domain logic. Each token family (session, email verification, password
// reset) gets its own [Signer] with its own secret and a [TokenKind] claim, so a
// token minted for one purpose never verifies for another.
package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for every verification failure. Callers must not
// distinguish expired, forged and mistyped tokens.
var ErrInvalidToken = errors.New("sec: invalid token")

// TokenKind tags the purpose a token was minted for.
type TokenKind string

const (
	KindSession           TokenKind = "session"
	KindEmailVerification TokenKind = "email_verification"
	KindPasswordReset     TokenKind = "password_reset"
)

// Claims is the payload embedded inside every idgate token.
//
// Subject holds the user id for session tokens and the provider record id for
// verification and reset tokens.
type Claims struct {
	jwt.RegisteredClaims

	Kind         TokenKind `json:"typ"`
	DeviceID     string    `json:"did,omitempty"`
	ProviderName string    `json:"pvd,omitempty"`
}

// SignerOptions configures a [Signer].
type SignerOptions struct {
	Secret   string
	Issuer   string
	Audience string
	Kind     TokenKind
	TTL      time.Duration

	// Clock overrides time.Now, mainly for tests.
	Clock func() time.Time
}

// Signer issues and verifies HS256 tokens of a single [TokenKind].
type Signer struct {
	secret   []byte
	issuer   string
	audience string
	kind     TokenKind
	ttl      time.Duration
	clock    func() time.Time
}

// NewSigner creates a new Signer. An empty secret is rejected.
func NewSigner(options SignerOptions) (*Signer, error) {
	if options.Secret == "" {
		return nil, fmt.Errorf("sec: empty secret for %s tokens", options.Kind)
	}
	if options.TTL <= 0 {
		return nil, fmt.Errorf("sec: non-positive ttl for %s tokens", options.Kind)
	}

	clock := options.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Signer{
		secret:   []byte(options.Secret),
		issuer:   options.Issuer,
		audience: options.Audience,
		kind:     options.Kind,
		ttl:      options.TTL,
		clock:    clock,
	}, nil
}

// TTL returns the lifetime given to every token this signer issues.
func (signer *Signer) TTL() time.Duration { return signer.ttl }

// Sign issues a token for subject. Issuer, audience, kind, timestamps and a
// unique token id are filled by the signer; DeviceID and ProviderName are copied
// from extra when non-nil.
func (signer *Signer) Sign(subject string, extra *Claims) (string, time.Time, error) {
	issuedAt := signer.clock()
	expiresAt := issuedAt.Add(signer.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    signer.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Kind: signer.kind,
	}
	if signer.audience != "" {
		claims.Audience = jwt.ClaimStrings{signer.audience}
	}
	if extra != nil {
		claims.DeviceID = extra.DeviceID
		claims.ProviderName = extra.ProviderName
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(signer.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signedToken, expiresAt, nil
}

// Verify checks signature, expiry, issuer, audience and kind of a token string.
// Any failure yields [ErrInvalidToken].
func (signer *Signer) Verify(tokenString string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(signer.clock),
	}
	if signer.issuer != "" {
		options = append(options, jwt.WithIssuer(signer.issuer))
	}
	if signer.audience != "" {
		options = append(options, jwt.WithAudience(signer.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return signer.secret, nil
	}, options...)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Kind != signer.kind || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
