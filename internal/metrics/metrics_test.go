package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_CountsRequestsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/posts/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", m.Handler())

	for _, id := range []string{"1", "2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/posts/"+id, nil))
		require.Equal(t, http.StatusNoContent, w.Code)
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/posts/:id", "204")))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "apollo_http_requests_total")
}

func TestEvent(t *testing.T) {
	m := New()
	m.Event(EventLogin, 1)
	m.Event(EventCodesPurged, 3)
	m.Event(EventCodesPurged, 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.events.WithLabelValues(EventLogin)))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.events.WithLabelValues(EventCodesPurged)))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.Event(EventLogin, 1) })
}
