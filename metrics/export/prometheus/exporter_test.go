package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	goSession "github.com/MrEthical07/goSession"
)

type fakeSource struct {
	snapshot goSession.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goSession.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                       { return f.dropped }

func TestCollectorCounters(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters: map[goSession.MetricID]uint64{
				goSession.MetricLoginSuccess:         7,
				goSession.MetricRefreshReuseDetected: 2,
			},
			Histograms: map[goSession.MetricID][]uint64{},
		},
		dropped: 3,
	})

	expected := `
# HELP gosession_login_success_total Successful logins.
# TYPE gosession_login_success_total counter
gosession_login_success_total 7
# HELP gosession_refresh_reuse_detected_total Refresh tokens presented after their record was gone.
# TYPE gosession_refresh_reuse_detected_total counter
gosession_refresh_reuse_detected_total 2
# HELP gosession_audit_dropped_total Audit events dropped because the dispatcher buffer was full.
# TYPE gosession_audit_dropped_total counter
gosession_audit_dropped_total 3
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"gosession_login_success_total",
		"gosession_refresh_reuse_detected_total",
		"gosession_audit_dropped_total",
	)
	if err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestCollectorHistogram(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters: map[goSession.MetricID]uint64{},
			Histograms: map[goSession.MetricID][]uint64{
				goSession.MetricAuthenticateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
			LatencySums: map[goSession.MetricID]time.Duration{
				goSession.MetricAuthenticateLatency: 1500 * time.Millisecond,
			},
		},
	})

	expected := `
# HELP gosession_authenticate_latency_seconds Authenticate latency.
# TYPE gosession_authenticate_latency_seconds histogram
gosession_authenticate_latency_seconds_bucket{le="0.005"} 1
gosession_authenticate_latency_seconds_bucket{le="0.01"} 3
gosession_authenticate_latency_seconds_bucket{le="0.025"} 6
gosession_authenticate_latency_seconds_bucket{le="0.05"} 10
gosession_authenticate_latency_seconds_bucket{le="0.1"} 15
gosession_authenticate_latency_seconds_bucket{le="0.25"} 21
gosession_authenticate_latency_seconds_bucket{le="0.5"} 28
gosession_authenticate_latency_seconds_bucket{le="+Inf"} 36
gosession_authenticate_latency_seconds_sum 1.5
gosession_authenticate_latency_seconds_count 36
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "gosession_authenticate_latency_seconds"); err != nil {
		t.Fatalf("unexpected histogram: %v", err)
	}

	// Histograms without samples recorded are omitted.
	if n := testutil.CollectAndCount(c, "gosession_login_latency_seconds"); n != 0 {
		t.Fatalf("expected no login histogram, got %d", n)
	}
}

func TestCollectorRegistersCleanly(t *testing.T) {
	registry := prom.NewPedanticRegistry()
	if err := registry.Register(NewCollectorFromSource(fakeSource{})); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := registry.Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters: map[goSession.MetricID]uint64{goSession.MetricLogout: 4},
		},
	})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "gosession_logout_total 4") {
		t.Fatalf("expected logout counter, got:\n%s", rec.Body.String())
	}
}

func BenchmarkCollect(b *testing.B) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters: map[goSession.MetricID]uint64{
				goSession.MetricLoginSuccess:   1000,
				goSession.MetricRefreshSuccess: 800,
			},
			Histograms: map[goSession.MetricID][]uint64{
				goSession.MetricAuthenticateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})
	registry := prom.NewRegistry()
	registry.MustRegister(c)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = registry.Gather()
	}
}
