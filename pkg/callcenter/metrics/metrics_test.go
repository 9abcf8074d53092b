package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordTransition("idle", "dialing", "idle")
		m.RecordCall("completed")
		m.RecordToolCall("real_estate_search_listings", "ok")
		m.RecordPlaybackError("ring")
		m.RecordBackendSession("local", "ok")
		m.ObserveTurn("hosted", time.Second)
	})
	assert.Nil(t, m.Registry())
}

func TestRecordTransition_TracksActiveCalls(t *testing.T) {
	m := New("test")

	m.RecordTransition("idle", "dialing", "idle")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallsActive))

	m.RecordTransition("dialing", "ringing", "idle")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallsActive))

	m.RecordTransition("terminating", "idle", "idle")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CallsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StateTransitions.WithLabelValues("dialing", "ringing")))
}

func TestHandler_ServesRegistry(t *testing.T) {
	m := New("callerpro")
	m.RecordToolCall("real_estate_schedule_viewing", "validation_error")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `callerpro_tool_calls_total{result="validation_error",tool="real_estate_schedule_viewing"} 1`)
}
