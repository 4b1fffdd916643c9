package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterAndGauge(t *testing.T) {
	r := New()
	c := r.Counter("carart_jobs_total", "Jobs")
	c.Inc()
	c.Add(4)
	assert.Equal(t, int64(5), c.Value())
	assert.Same(t, c, r.Counter("carart_jobs_total", ""))

	g := r.Gauge("carart_queue_depth", "Depth")
	g.Set(3)
	g.Inc()
	g.Dec()
	g.Dec()
	assert.Equal(t, int64(2), g.Value())
}

func TestHistogramBuckets(t *testing.T) {
	r := New()
	h := r.Histogram("carart_latency_seconds", "Latency", []float64{1, 0.5, 0.1})
	h.Observe(0.05)
	h.Observe(0.3)
	h.Observe(0.8)
	h.Observe(5)
	assert.Equal(t, uint64(4), h.Count())

	out := r.Render()
	assert.Contains(t, out, `carart_latency_seconds_bucket{le="0.1"} 1`)
	assert.Contains(t, out, `carart_latency_seconds_bucket{le="0.5"} 2`)
	assert.Contains(t, out, `carart_latency_seconds_bucket{le="1"} 3`)
	assert.Contains(t, out, `carart_latency_seconds_bucket{le="+Inf"} 4`)
	assert.Contains(t, out, "carart_latency_seconds_count 4")
}

func TestWithLabels(t *testing.T) {
	assert.Equal(t, `x{a="1",b="2"}`, WithLabels("x", "a", "1", "b", "2"))
	assert.Equal(t, "x", WithLabels("x", "dangling"))
}

func TestRenderLabelledFamilies(t *testing.T) {
	r := New()
	r.Counter(WithLabels("carart_generations_total", "outcome", "ok"), "Generations").Add(2)
	r.Counter(WithLabels("carart_generations_total", "outcome", "error"), "").Inc()
	r.Histogram(WithLabels("carart_call_seconds", "op", "style"), "Calls", []float64{1}).Observe(0.2)

	out := r.Render()
	assert.Contains(t, out, "# HELP carart_generations_total Generations")
	assert.Contains(t, out, "# TYPE carart_generations_total counter")
	assert.Contains(t, out, `carart_generations_total{outcome="error"} 1`)
	assert.Contains(t, out, `carart_generations_total{outcome="ok"} 2`)
	assert.Contains(t, out, `carart_call_seconds_bucket{le="1",op="style"} 1`)
	assert.Contains(t, out, `carart_call_seconds_sum{op="style"} 0.2`)
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("up", "").Inc()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "up 1")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}
