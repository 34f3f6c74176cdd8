// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/idgate/internal/platform/metrics"
)

/*
TestCollector_Counters verifies that recorded events reach the registry.
*/
func TestCollector_Counters(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	collector.RecordReconciliation("local", "create")
	collector.RecordReconciliation("local", "create")
	collector.RecordSessionEvent(metrics.SessionRotated)
	collector.RecordSweep("expired", 3)
	collector.RecordMail("verify_email", metrics.MailFailed)

	expected := `
# HELP idgate_reconciliation_decisions_total Identity reconciliation outcomes by provider kind and action.
# TYPE idgate_reconciliation_decisions_total counter
idgate_reconciliation_decisions_total{action="create",provider_kind="local"} 2
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "idgate_reconciliation_decisions_total"))

	count, err := testutil.GatherAndCount(registry, "idgate_session_sweep_deleted_total", "idgate_mail_total", "idgate_session_events_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

/*
TestCollector_Instrument verifies that requests are labelled by route pattern.
*/
func TestCollector_Instrument(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	router := chi.NewRouter()
	router.Use(collector.Instrument)
	router.Get("/verify-email/{token}", func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusFound)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/verify-email/abc", nil))

	families, err := registry.Gather()
	require.NoError(t, err)

	var labels map[string]string
	for _, family := range families {
		if family.GetName() != "idgate_http_request_duration_seconds" {
			continue
		}
		labels = map[string]string{}
		for _, pair := range family.GetMetric()[0].GetLabel() {
			labels[pair.GetName()] = pair.GetValue()
		}
	}

	require.NotNil(t, labels)
	assert.Equal(t, "/verify-email/{token}", labels["route"])
	assert.Equal(t, "302", labels["status"])
}
