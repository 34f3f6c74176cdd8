// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package uuid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/idgate/pkg/uuid"
)

/*
TestNew verifies the generated identifiers are unique version 7 values.
*/
func TestNew(t *testing.T) {
	first, second := uuid.New(), uuid.New()

	assert.NotEqual(t, first, second)
	assert.True(t, uuid.IsV7(first))
	assert.True(t, uuid.IsV7(second))
	assert.False(t, uuid.IsV7("not-a-uuid"))
	assert.False(t, uuid.IsV7("550e8400-e29b-41d4-a716-446655440000"))
}
