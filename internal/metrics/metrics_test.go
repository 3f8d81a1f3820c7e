package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Handler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ScansIngested.Inc()
	m.ScansDropped.WithLabelValues("malformed_address").Add(2)
	m.ZoneTransitions.WithLabelValues("DEGEN_ORBIT", "enter").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "attention_tracker_ingestion_scans_ingested_total 1")
	assert.Contains(t, body, `attention_tracker_ingestion_scans_dropped_total{reason="malformed_address"} 2`)
	assert.Contains(t, body, `attention_tracker_zones_transitions_total{direction="enter",zone="DEGEN_ORBIT"} 1`)
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
