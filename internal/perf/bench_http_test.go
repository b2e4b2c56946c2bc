package perf

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/vendai/vendai-jobs/internal/app"
	"github.com/vendai/vendai-jobs/internal/observability"
)

func TestOpsServerLatencyTargets(t *testing.T) {
	router := app.NewRouter(app.RouterParams{
		Config:  &app.Config{AppEnv: "test"},
		Metrics: observability.NewMetrics(),
	})

	scenarios := []struct {
		name      string
		path      string
		threshold time.Duration
	}{
		{name: "healthz", path: "/healthz", threshold: 50 * time.Millisecond},
		{name: "metrics", path: "/metrics", threshold: 250 * time.Millisecond},
	}

	for _, scenario := range scenarios {
		samples := make([]time.Duration, 0, 25)
		for i := 0; i < 25; i++ {
			req := httptest.NewRequest(http.MethodGet, scenario.path, nil)
			req.RemoteAddr = "10.0.0.1:1234"
			rec := httptest.NewRecorder()
			start := time.Now()
			router.ServeHTTP(rec, req)
			samples = append(samples, time.Since(start))
			if rec.Code != http.StatusOK {
				t.Fatalf("%s returned %d", scenario.path, rec.Code)
			}
		}
		if p95 := percentile95(samples); p95 > scenario.threshold {
			t.Fatalf("%s latency regression: p95=%s threshold=%s", scenario.name, p95, scenario.threshold)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
