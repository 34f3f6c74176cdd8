// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package pagination_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/idgate/pkg/pagination"
)

func TestFromRequest(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  pagination.Params
	}{
		{"Defaults", "", pagination.Params{Limit: pagination.DefaultLimit}},
		{"Explicit", "?limit=10&offset=30", pagination.Params{Limit: 10, Offset: 30}},
		{"Limit too large", "?limit=100000", pagination.Params{Limit: pagination.DefaultLimit}},
		{"Negative offset", "?offset=-4", pagination.Params{Limit: pagination.DefaultLimit}},
		{"Garbage", "?limit=ten&offset=x", pagination.Params{Limit: pagination.DefaultLimit}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			request := httptest.NewRequest("GET", "/internal/users"+tc.query, nil)
			assert.Equal(t, tc.want, pagination.FromRequest(request))
		})
	}
}

func TestNewMeta(t *testing.T) {
	assert.True(t, pagination.NewMeta(pagination.Params{Limit: 2, Offset: 0}, 3).HasMore)
	assert.False(t, pagination.NewMeta(pagination.Params{Limit: 2, Offset: 2}, 3).HasMore)
}
