package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveProvider("tavily", "discovery", OutcomeOK, 3, time.Second)
	m.ObserveHarvest("ok")
	m.ObserveWait("fetch", time.Millisecond)
	m.ObserveDedup("pre_fetch", 2)
	m.ObserveFallback()
	if m.Registry() != nil {
		t.Fatalf("expected nil registry")
	}
}

func TestMetricsCounters(t *testing.T) {
	m := New()
	m.ObserveProvider("tavily", "discovery", OutcomeOK, 4, 20*time.Millisecond)
	m.ObserveProvider("exa", "discovery", OutcomeError, 0, time.Millisecond)
	m.ObserveHarvest("too_short")
	m.ObserveHarvest("too_short")
	m.ObserveDedup("post_fetch", 3)
	m.ObserveDedup("post_fetch", 0)
	m.ObserveFallback()

	if got := testutil.ToFloat64(m.providerRequests.WithLabelValues("exa", "discovery", OutcomeError)); got != 1 {
		t.Fatalf("expected 1 exa error, got %v", got)
	}
	if got := testutil.ToFloat64(m.providerResults.WithLabelValues("tavily", "discovery")); got != 4 {
		t.Fatalf("expected 4 tavily results, got %v", got)
	}
	if got := testutil.ToFloat64(m.harvestOutcomes.WithLabelValues("too_short")); got != 2 {
		t.Fatalf("expected 2 too_short, got %v", got)
	}
	if got := testutil.ToFloat64(m.dedupDrops.WithLabelValues("post_fetch")); got != 3 {
		t.Fatalf("expected 3 dedup drops, got %v", got)
	}
	if got := testutil.ToFloat64(m.fallbacks); got != 1 {
		t.Fatalf("expected 1 fallback, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveWait("tavily", 10*time.Millisecond)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `evidence_ratelimit_wait_seconds_count{limiter="tavily"} 1`) {
		t.Fatalf("limiter wait histogram missing from output")
	}
}
