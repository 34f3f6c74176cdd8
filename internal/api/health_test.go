// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/idgate/internal/api"
)

/*
TestReadiness checks the aggregate status for healthy and failing probes.
*/
func TestReadiness(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	failing := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		checks     []api.Check
		wantCode   int
		wantStatus string
	}{
		{"No dependencies", nil, http.StatusOK, "ready"},
		{"All healthy", []api.Check{{Name: "postgres", Probe: healthy}, {Name: "redis", Probe: healthy}}, http.StatusOK, "ready"},
		{"One failing", []api.Check{{Name: "postgres", Probe: healthy}, {Name: "redis", Probe: failing}}, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, readiness := api.NewHealthHandlers(tc.checks, slog.New(slog.NewTextHandler(io.Discard, nil)))

			recorder := httptest.NewRecorder()
			readiness(recorder, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tc.wantCode, recorder.Code)

			var envelope struct {
				Data struct {
					Status string `json:"status"`
					Checks []struct {
						Name string `json:"name"`
						OK   bool   `json:"ok"`
					} `json:"checks"`
				} `json:"data"`
			}
			require.NoError(t, json.NewDecoder(recorder.Body).Decode(&envelope))
			assert.Equal(t, tc.wantStatus, envelope.Data.Status)
			assert.Len(t, envelope.Data.Checks, len(tc.checks))
		})
	}
}

/*
TestLiveness checks the probe always answers.
*/
func TestLiveness(t *testing.T) {
	liveness, _ := api.NewHealthHandlers(nil, slog.Default())

	recorder := httptest.NewRecorder()
	liveness(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, recorder.Code)
}
