package stats

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
	assert.NotNil(t, su.updateChan, "expected updateChan to be initialized")
	handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/debug/vars"}, Method: http.MethodGet})
	assert.NotNil(t, handler, "expected handler for /debug/vars to be set")
	assert.Equal(t, "GET /debug/vars", pattern, "expected handler to be registered for GET method on /debug/vars")

	_, pattern = mux.Handler(&http.Request{URL: &url.URL{Path: "/metrics"}, Method: http.MethodGet})
	assert.Equal(t, "GET /metrics", pattern, "expected handler to be registered for GET method on /metrics")
}

func TestStatsUpdater_ConcurrentUpdates(t *testing.T) {
	su := NewStatsUpdater(http.NewServeMux())
	su.RegisterMetric("MessagesSent")
	su.RegisterMetric("AuthenticatedConnections")
	su.Run()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				su.Incr("MessagesSent")
			}
			su.Incr("AuthenticatedConnections")
			su.Decr("AuthenticatedConnections")
		}()
	}
	wg.Wait()
	su.Stop()

	assert.Equal(t, int64(1000), su.Value("MessagesSent"), "expected no lost increments")
	assert.Equal(t, int64(0), su.Value("AuthenticatedConnections"))
	assert.Equal(t, int64(0), su.Value("Unknown"))
}

func TestStatsUpdater_Handlers(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	su.RegisterMetric("TotalConnections")
	su.Run()
	su.Incr("TotalConnections")
	su.Incr("TotalConnections")
	su.Stop()

	t.Run("expvar", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))
		assert.Equal(t, http.StatusOK, rr.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, float64(2), body["TotalConnections"])
		assert.Contains(t, body, "Uptime")
	})

	t.Run("prometheus", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "bidroom_total_connections 2")
		assert.Contains(t, rr.Body.String(), "bidroom_uptime_seconds")
	})
}

func TestStatsUpdater_UpdatesAfterStop(t *testing.T) {
	su := NewStatsUpdater(http.NewServeMux())
	su.RegisterMetric("Errors")
	su.Run()
	su.Incr("Errors")
	su.Stop()

	assert.NotPanics(t, func() {
		su.Incr("Errors")
		su.Decr("Errors")
	}, "expected late updates to be ignored")
	assert.Equal(t, int64(1), su.Value("Errors"))
	assert.NotPanics(t, su.Stop, "expected Stop to be idempotent")
}

func Test_metricName(t *testing.T) {
	assert.Equal(t, "messages_sent", metricName("MessagesSent"))
	assert.Equal(t, "errors", metricName("Errors"))
	assert.Equal(t, "total_connections", metricName("TotalConnections"))
}
