package prometheus

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nexustalent/sessionauth"
	"github.com/nexustalent/sessionauth/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// Source is what the exporter scrapes. *sessionauth.Engine satisfies it.
type Source interface {
	MetricsSnapshot() sessionauth.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter writes the engine counters in text exposition format.
type Exporter struct {
	src Source
}

// NewExporter scrapes engine.
func NewExporter(engine *sessionauth.Engine) *Exporter {
	return &Exporter{src: engine}
}

// NewExporterFromSource scrapes src.
func NewExporterFromSource(src Source) *Exporter {
	return &Exporter{src: src}
}

// Handler serves the current scrape.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = io.WriteString(w, e.Render())
	})
}

// Render returns one scrape, or "" while metrics are off and no audit event
// has been dropped.
func (e *Exporter) Render() string {
	if e == nil || e.src == nil {
		return ""
	}
	snap := e.src.MetricsSnapshot()
	dropped := e.src.AuditDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	for _, f := range internaldefs.Counters {
		counter(&b, f, snap.Counters[f.ID])
	}

	lat := internaldefs.Latency
	header(&b, lat, "histogram")
	buckets := internaldefs.Cumulative(snap.Histograms[lat.ID])
	for i, n := range buckets {
		fmt.Fprintf(&b, "%s_bucket{le=%q} %d\n", lat.Name, internaldefs.Label(i), n)
	}
	// Snapshots keep bucket counts only, so the sum is not tracked.
	fmt.Fprintf(&b, "%s_sum 0\n%s_count %d\n", lat.Name, lat.Name, buckets[len(buckets)-1])

	counter(&b, internaldefs.AuditDropped, dropped)
	return b.String()
}

func header(b *strings.Builder, f internaldefs.Family, kind string) {
	help := strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(f.Help)
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s %s\n", f.Name, help, f.Name, kind)
}

func counter(b *strings.Builder, f internaldefs.Family, v uint64) {
	header(b, f, "counter")
	fmt.Fprintf(b, "%s %d\n", f.Name, v)
}
