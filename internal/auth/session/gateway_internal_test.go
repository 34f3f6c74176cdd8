// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/idgate/internal/platform/apperr"
)

/*
TestUpstream checks that only blown deadlines become Upstream errors.
*/
func TestUpstream(t *testing.T) {
	plain := errors.New("boom")
	already := apperr.Upstream(context.DeadlineExceeded)

	assert.NoError(t, upstream(nil))
	assert.Same(t, plain, upstream(plain))
	assert.Same(t, already, upstream(already))

	wrapped := upstream(fmt.Errorf("identity_create_user_failed: %w", context.DeadlineExceeded))
	assert.True(t, apperr.HasCode(wrapped, apperr.CodeUpstream))
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
}
