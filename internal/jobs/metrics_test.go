package jobmetrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
)

func scrape(t *testing.T, registry *prometheus.Registry) string {
	t.Helper()
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rr.Body.String()
}

func TestTrackerRecordsStatus(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	assert.NoError(t, m.Track("sheet_recount").End(nil))
	boom := errors.New("db down")
	assert.ErrorIs(t, m.Track("sheet_recount").End(boom), boom)

	body := scrape(t, registry)
	assert.Contains(t, body, `sheetdesk_jobs_total{job="sheet_recount",status="success"} 1`)
	assert.Contains(t, body, `sheetdesk_jobs_total{job="sheet_recount",status="failure"} 1`)
	assert.Contains(t, body, `sheetdesk_jobs_failures_total{job="sheet_recount"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NoError(t, m.Track("x").End(nil))
	m.AddPruned(4)
}

func TestAddPrunedIgnoresZero(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.AddPruned(0)
	m.AddPruned(12)

	assert.Contains(t, scrape(t, registry), "sheetdesk_activity_pruned_total 12")
}
