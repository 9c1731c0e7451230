package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nexustalent/sessionauth"
)

type stubSource struct {
	counters map[sessionauth.MetricID]uint64
	latency  []uint64
	dropped  uint64
}

func (s stubSource) MetricsSnapshot() sessionauth.MetricsSnapshot {
	snap := sessionauth.MetricsSnapshot{
		Counters:   map[sessionauth.MetricID]uint64{},
		Histograms: map[sessionauth.MetricID][]uint64{},
	}
	for id, v := range s.counters {
		snap.Counters[id] = v
	}
	if s.latency != nil {
		snap.Histograms[sessionauth.MetricAuthenticateLatency] = s.latency
	}
	return snap
}

func (s stubSource) AuditDropped() uint64 { return s.dropped }

func mustContain(t *testing.T, out string, lines ...string) {
	t.Helper()
	for _, l := range lines {
		if !strings.Contains(out, l+"\n") {
			t.Fatalf("missing %q in:\n%s", l, out)
		}
	}
}

func TestRenderSilentWhileDisabled(t *testing.T) {
	if got := NewExporterFromSource(stubSource{}).Render(); got != "" {
		t.Fatalf("disabled metrics rendered:\n%s", got)
	}
	var nilExp *Exporter
	if got := nilExp.Render(); got != "" {
		t.Fatalf("nil exporter rendered %q", got)
	}
}

func TestRenderDroppedAuditAloneStillRenders(t *testing.T) {
	out := NewExporterFromSource(stubSource{dropped: 3}).Render()
	mustContain(t, out,
		"# TYPE sessionauth_audit_dropped_total counter",
		"sessionauth_audit_dropped_total 3",
		"sessionauth_login_success_total 0",
	)
}

func TestRenderCumulativeLatency(t *testing.T) {
	out := NewExporterFromSource(stubSource{
		counters: map[sessionauth.MetricID]uint64{sessionauth.MetricLoginSuccess: 7},
		latency:  []uint64{1, 2, 3, 4, 5, 6, 7, 8},
	}).Render()

	mustContain(t, out,
		"sessionauth_login_success_total 7",
		"# TYPE sessionauth_authenticate_latency_seconds histogram",
		`sessionauth_authenticate_latency_seconds_bucket{le="0.005"} 1`,
		`sessionauth_authenticate_latency_seconds_bucket{le="0.01"} 3`,
		`sessionauth_authenticate_latency_seconds_bucket{le="0.5"} 28`,
		`sessionauth_authenticate_latency_seconds_bucket{le="+Inf"} 36`,
		"sessionauth_authenticate_latency_seconds_count 36",
		"sessionauth_authenticate_latency_seconds_sum 0",
	)
}

func TestRenderShortHistogramPadsWithZero(t *testing.T) {
	out := NewExporterFromSource(stubSource{latency: []uint64{2}}).Render()
	mustContain(t, out,
		`sessionauth_authenticate_latency_seconds_bucket{le="0.005"} 2`,
		`sessionauth_authenticate_latency_seconds_bucket{le="+Inf"} 2`,
	)
}

func TestRenderGateCounters(t *testing.T) {
	out := NewExporterFromSource(stubSource{
		counters: map[sessionauth.MetricID]uint64{
			sessionauth.MetricGateRedirected:    4,
			sessionauth.MetricGateLegacyAllowed: 2,
		},
	}).Render()

	mustContain(t, out,
		"sessionauth_gate_redirected_total 4",
		"sessionauth_gate_legacy_allowed_total 2",
		"sessionauth_gate_allowed_total 0",
		"sessionauth_gate_public_total 0",
	)
}

func TestHandler(t *testing.T) {
	exp := NewExporterFromSource(stubSource{
		counters: map[sessionauth.MetricID]uint64{sessionauth.MetricLogout: 1},
	})
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != contentType {
		t.Fatalf("content type %q", got)
	}
	mustContain(t, rec.Body.String(), "sessionauth_logout_total 1")
}

func BenchmarkRender(b *testing.B) {
	exp := NewExporterFromSource(stubSource{
		counters: map[sessionauth.MetricID]uint64{
			sessionauth.MetricLoginSuccess:    1000,
			sessionauth.MetricCredentialValid: 52000,
			sessionauth.MetricGateAllowed:     52000,
			sessionauth.MetricGateRedirected:  310,
		},
		latency: []uint64{10, 20, 30, 40, 50, 60, 70, 80},
	})
	b.ReportAllocs()
	for b.Loop() {
		_ = exp.Render()
	}
}
