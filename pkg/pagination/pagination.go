// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package pagination parses limit/offset windows for list endpoints and
// describes the returned window in the response envelope.
package pagination

import (
	"net/http"

	"github.com/taibuivan/idgate/pkg/convert"
)

const (
	// DefaultLimit is the window size when "limit" is absent or invalid.
	DefaultLimit = 50
	// MaxLimit caps one window. Larger requests fall back to [DefaultLimit].
	MaxLimit = 500
)

// Params is one requested window of a list.
type Params struct {
	Limit  int
	Offset int
}

// Meta describes the window returned in a list response.
type Meta struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	Total   int  `json:"total"`
	HasMore bool `json:"hasMore"`
}

// NewMeta builds the metadata for a window of params over total rows.
func NewMeta(params Params, total int) Meta {
	return Meta{
		Limit:   params.Limit,
		Offset:  params.Offset,
		Total:   total,
		HasMore: params.Offset+params.Limit < total,
	}
}

// FromRequest parses the "limit" and "offset" query parameters.
// Invalid values fall back to [DefaultLimit] and zero.
func FromRequest(r *http.Request) Params {
	query := r.URL.Query()

	limit := convert.ToIntD(query.Get("limit"), DefaultLimit)
	if limit < 1 || limit > MaxLimit {
		limit = DefaultLimit
	}

	offset := convert.ToIntD(query.Get("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}
