package sessionauth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter or histogram.
type MetricID uint16

const (
	// MetricLoginSuccess counts logins that produced a credential.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts logins rejected with ErrInvalidCredentials.
	MetricLoginFailure
	// MetricLoginUpstreamError counts logins that failed because no store could answer.
	MetricLoginUpstreamError
	// MetricPrimaryStoreAffirmed counts logins affirmed by the primary identity store.
	MetricPrimaryStoreAffirmed
	// MetricFallbackStoreAffirmed counts logins affirmed by the fallback user store.
	MetricFallbackStoreAffirmed
	// MetricStoreError counts individual store calls that failed for reasons unrelated to credentials.
	MetricStoreError
	// MetricRoleByEmailFallback counts role lookups that had to retry by email.
	MetricRoleByEmailFallback
	// MetricRoleUnresolved counts logins that finished without a role.
	MetricRoleUnresolved
	// MetricCredentialMinted counts signed credentials.
	MetricCredentialMinted
	// MetricCredentialValid counts credentials that passed verification.
	MetricCredentialValid
	// MetricCredentialInvalid counts malformed, tampered or expired credentials.
	MetricCredentialInvalid
	// MetricGatePublic counts requests classified as public.
	MetricGatePublic
	// MetricGateAllowed counts protected requests allowed by the session credential.
	MetricGateAllowed
	// MetricGateLegacyAllowed counts protected requests allowed by a secondary session mechanism.
	MetricGateLegacyAllowed
	// MetricGateRedirected counts protected requests redirected to the login page.
	MetricGateRedirected
	// MetricLogout counts logout requests.
	MetricLogout
	// MetricAuthenticateLatency is the latency histogram of Authenticate.
	MetricAuthenticateLatency
	metricIDCount
)

// latencyBounds are the inclusive upper bounds of the Authenticate latency
// buckets; the last bucket takes everything slower.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const histBucketCount = len(latencyBounds) + 1

// counter sits alone on its cache line so hot gate and credential counters
// do not contend.
type counter struct {
	atomic.Uint64
	_ [56]byte
}

// Metrics is a fixed array of lock-free counters plus the Authenticate
// latency histogram. A nil or disabled Metrics is a no-op.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]counter
	latency       [histBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters configured by cfg. Counting is skipped entirely
// when cfg.Enabled is false.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the Authenticate latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to counter id.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Observe records d when id is MetricAuthenticateLatency; other ids have no
// histogram and are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if id != MetricAuthenticateLatency || !m.LatencyEnabled() {
		return
	}
	m.latency[bucketIndex(d)].Add(1)
}

// Value returns the current value of counter id, even when counting is disabled.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot copies every counter. The maps are empty when metrics are disabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}
	for id := range metricIDCount {
		s.Counters[id] = m.counters[id].Load()
	}
	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = m.latency[i].Load()
		}
		s.Histograms[MetricAuthenticateLatency] = buckets
	}
	return s
}

// bucketIndex compares at millisecond resolution, so 5.4ms still lands in
// the 5ms bucket.
func bucketIndex(d time.Duration) int {
	d = d.Truncate(time.Millisecond)
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
