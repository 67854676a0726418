package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagersAreIndependent(t *testing.T) {
	a := NewManager()
	b := NewManager()

	a.GetPrometheusMetrics().RecordAlert("jailed", "CRITICAL")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.GetPrometheusMetrics().AlertsTotal.WithLabelValues("jailed", "CRITICAL")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.GetPrometheusMetrics().AlertsTotal.WithLabelValues("jailed", "CRITICAL")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewManager()
	m.GetPrometheusMetrics().RecordTick("success", 2*time.Second)
	m.GetPrometheusMetrics().RecordTickSkipped()
	m.UpdateSystemMetrics()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `valmon_ticks_total{status="success"} 1`))
	assert.True(t, strings.Contains(body, "valmon_ticks_skipped_total 1"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
