// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package uuid provides time-ordered unique identifiers for idgate records.

It wraps google/uuid to generate Version 7 values, which sort by creation time
and keep PostgreSQL B-tree indexes compact.

Users, credentials and sessions all take their primary keys from [New].
*/
package uuid

import "github.com/google/uuid"

// # Generators

// New generates a new UUIDv7 string.
func New() string {
	id, err := uuid.NewV7()

	// entropy failure is an unrecoverable system-level error
	if err != nil {
		panic("uuid: failed to generate UUIDv7: " + err.Error())
	}

	return id.String()
}

// IsV7 reports whether s is a well-formed version 7 UUID.
func IsV7(s string) bool {
	id, err := uuid.Parse(s)
	return err == nil && id.Version() == 7
}
