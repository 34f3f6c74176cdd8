// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher is the one-way credential hasher shared by both services.
type Hasher interface {
	// Hash derives a storable digest from a plain-text password.
	Hash(plainTextPassword string) (string, error)

	// Compare reports whether the plain-text password produced the stored digest.
	Compare(plainTextPassword, existingHash string) bool
}

// BcryptHasher implements [Hasher] with the bcrypt algorithm.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using the given work factor. Values outside
// bcrypt's accepted range fall back to [bcrypt.DefaultCost].
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash hashes a plain-text password.
func (hasher *BcryptHasher) Hash(plainTextPassword string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(plainTextPassword), hasher.cost)
	if err != nil {
		return "", fmt.Errorf("sec: failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// Compare compares a plain-text password with its hashed version.
func (hasher *BcryptHasher) Compare(plainTextPassword, existingHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(existingHash), []byte(plainTextPassword))
	return err == nil
}

// RandomSecret returns n bytes of crypto-grade randomness, URL-safe encoded.
//
// bcrypt only consumes the first 72 bytes of its input, so n should stay below 54.
func RandomSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("sec: failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the SHA-256 hex digest stored in place of a bearer token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
