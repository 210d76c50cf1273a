package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()

	a.EventsIngested.WithLabelValues("backend", "order").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(a.EventsIngested.WithLabelValues("backend", "order")))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.EventsIngested.WithLabelValues("backend", "order")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Deliveries.WithLabelValues("success").Add(2)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `event_sourcing_deliveries_total{outcome="success"} 2`)
}
