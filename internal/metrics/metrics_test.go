package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordMutation("visit", 3, 1)
	m.FetchStarted()
	m.FetchDeduplicated()
	m.FetchFinished("gopher", "ok", time.Millisecond, 10)
	m.SetObservers(2)
	m.ObserverLagged()
	m.HTTPRequest("GET /api/state", 200)
	if m.Registry() != nil {
		t.Fatalf("expected nil registry")
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.RecordMutation("visit", 2, 1)
	m.FetchStarted()
	m.FetchFinished("gopher", "failed", time.Millisecond, 0)
	m.HTTPRequest("POST /api/action", 404)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	for _, want := range []string{
		`burrow_mutations_total{command="visit"} 1`,
		`burrow_change_edits_total 2`,
		`burrow_fetches_total{result="failed",scheme="gopher"} 1`,
		`burrow_http_requests_total{code="4xx",route="POST /api/action"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, text)
		}
	}
}
