package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mcloones/mcloones"
)

type fakeSource struct {
	snapshot mcloones.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() mcloones.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func sampleSource() fakeSource {
	return fakeSource{
		snapshot: mcloones.MetricsSnapshot{
			Counters: map[mcloones.MetricID]uint64{
				mcloones.MetricLoginSuccess: 7,
				mcloones.MetricLogout:       2,
			},
			Histograms: map[mcloones.MetricID][]uint64{
				mcloones.MetricLoginLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 3,
	}
}

func TestCollectorCounters(t *testing.T) {
	c := NewCollector(sampleSource())

	expected := `
# HELP mcloones_login_success_total Successful password logins.
# TYPE mcloones_login_success_total counter
mcloones_login_success_total 7
# HELP mcloones_logout_total Logouts.
# TYPE mcloones_logout_total counter
mcloones_logout_total 2
# HELP mcloones_audit_dropped_total Audit events dropped because the dispatcher buffer was full.
# TYPE mcloones_audit_dropped_total counter
mcloones_audit_dropped_total 3
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"mcloones_login_success_total",
		"mcloones_logout_total",
		"mcloones_audit_dropped_total",
	)
	if err != nil {
		t.Fatal(err)
	}
}

func TestCollectorHistogramIsCumulative(t *testing.T) {
	c := NewCollector(sampleSource())

	expected := `
# HELP mcloones_login_latency_seconds Provider sign-in latency.
# TYPE mcloones_login_latency_seconds histogram
mcloones_login_latency_seconds_bucket{le="0.005"} 1
mcloones_login_latency_seconds_bucket{le="0.01"} 3
mcloones_login_latency_seconds_bucket{le="0.025"} 6
mcloones_login_latency_seconds_bucket{le="0.05"} 10
mcloones_login_latency_seconds_bucket{le="0.1"} 15
mcloones_login_latency_seconds_bucket{le="0.25"} 21
mcloones_login_latency_seconds_bucket{le="0.5"} 28
mcloones_login_latency_seconds_bucket{le="+Inf"} 36
mcloones_login_latency_seconds_sum 0
mcloones_login_latency_seconds_count 36
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "mcloones_login_latency_seconds"); err != nil {
		t.Fatal(err)
	}
}

func TestCollectorSkipsDisabledHistogram(t *testing.T) {
	src := sampleSource()
	src.snapshot.Histograms = map[mcloones.MetricID][]uint64{}
	if n := testutil.CollectAndCount(NewCollector(src), "mcloones_login_latency_seconds"); n != 0 {
		t.Fatalf("expected no histogram, got %d", n)
	}
}

func TestHandlerServesManagerMetrics(t *testing.T) {
	m := mcloones.NewMetrics(mcloones.MetricsConfig{Enabled: true})
	m.Inc(mcloones.MetricSessionRestored)

	h, err := Handler(fakeSource{snapshot: m.Snapshot()})
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "mcloones_session_restored_total 1") {
		t.Fatalf("missing counter in:\n%s", body)
	}
}
