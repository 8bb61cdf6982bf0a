package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.CacheHit()
	m.CacheHit()
	m.CacheMiss()
	m.Extraction("success", 2*time.Second)
	m.Extraction("invalid", time.Second)
	m.Extraction("success", time.Second)
	m.Job("retry")

	if got := testutil.ToFloat64(m.cacheHitsTotal); got != 2 {
		t.Fatalf("expected 2 hits, got %v", got)
	}
	if got := testutil.ToFloat64(m.cacheMissesTotal); got != 1 {
		t.Fatalf("expected 1 miss, got %v", got)
	}
	if got := testutil.ToFloat64(m.extractionsTotal.WithLabelValues("success")); got != 2 {
		t.Fatalf("expected 2 successful extractions, got %v", got)
	}
	if got := testutil.ToFloat64(m.extractionsTotal.WithLabelValues("invalid")); got != 1 {
		t.Fatalf("expected 1 invalid extraction, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobsTotal.WithLabelValues("retry")); got != 1 {
		t.Fatalf("expected 1 retried job, got %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.CacheMiss()
	m.ArticlesFetched(12)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"newsgraph_cache_misses_total 1", "newsgraph_articles_fetched_count 1"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %q in exposition, got:\n%s", want, body)
		}
	}
}

func TestNew_SeparateRegistries(t *testing.T) {
	// Registering twice on the default registry would panic.
	a, b := New(), New()
	a.CacheHit()
	if got := testutil.ToFloat64(b.cacheHitsTotal); got != 0 {
		t.Fatalf("expected independent registries, got %v hits", got)
	}
}
