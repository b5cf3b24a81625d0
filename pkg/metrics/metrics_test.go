package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollectorsAreExposed(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.PipelineQueriesTotal.WithLabelValues("bm25", "ok").Inc()
	m.ExpansionNoopTotal.WithLabelValues("rm3", "empty_feedback").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`pipeline_queries_total{outcome="ok",pipeline="bm25"} 1`,
		`expansion_noop_total{model="rm3",reason="empty_feedback"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %s", want)
		}
	}
}
