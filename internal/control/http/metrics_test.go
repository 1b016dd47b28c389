package http_test

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestMetricsMiddleware_RecordsRequestDuration(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	labels := map[string]string{
		"method": "GET",
		"path":   "/v1/imports/resumable",
		"status": "200",
	}
	before := histogramSampleCount(t, "archive_http_request_duration_seconds", labels)

	req := httptest.NewRequest("GET", "/v1/imports/resumable", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	after := histogramSampleCount(t, "archive_http_request_duration_seconds", labels)
	require.Equal(t, before+1, after)
}

func histogramSampleCount(t *testing.T, name string, labels map[string]string) uint64 {
	t.Helper()
	mf := findMetricFamily(t, name)
	if mf == nil {
		return 0
	}
	for _, m := range mf.Metric {
		if labelsMatch(m.GetLabel(), labels) {
			return m.GetHistogram().GetSampleCount()
		}
	}
	return 0
}

// findMetricFamily returns nil when the family has not been observed
// yet, so callers can read a zero baseline before the first request.
func findMetricFamily(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func labelsMatch(pairs []*dto.LabelPair, labels map[string]string) bool {
	if len(pairs) != len(labels) {
		return false
	}
	for _, pair := range pairs {
		if labels[pair.GetName()] != pair.GetValue() {
			return false
		}
	}
	return true
}
