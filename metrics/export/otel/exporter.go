package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nexustalent/sessionauth"
	"github.com/nexustalent/sessionauth/metrics/export/internaldefs"
)

var (
	// ErrNilMeter is returned when no Meter is supplied.
	ErrNilMeter = errors.New("nil meter")
	// ErrNilSource is returned when no snapshot source is supplied.
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what the callback reads. *sessionauth.Engine satisfies it.
type Source interface {
	MetricsSnapshot() sessionauth.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter owns the callback registration on a Meter.
type Exporter struct {
	src Source
	reg metric.Registration

	counters map[sessionauth.MetricID]metric.Int64ObservableCounter
	buckets  metric.Int64ObservableCounter
	samples  metric.Int64ObservableCounter
	dropped  metric.Int64ObservableCounter

	// le attribute sets, built once.
	bounds [internaldefs.Buckets]metric.ObserveOption
}

// NewExporter registers engine's counters on meter.
func NewExporter(meter metric.Meter, engine *sessionauth.Engine) (*Exporter, error) {
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource registers src's counters on meter.
func NewExporterFromSource(meter metric.Meter, src Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if src == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		src:      src,
		counters: make(map[sessionauth.MetricID]metric.Int64ObservableCounter, len(internaldefs.Counters)),
	}
	var all []metric.Observable

	observe := func(f internaldefs.Family, name string) (metric.Int64ObservableCounter, error) {
		ins, err := meter.Int64ObservableCounter(name, metric.WithDescription(f.Help))
		if err != nil {
			return nil, fmt.Errorf("otel: instrument %s: %w", name, err)
		}
		all = append(all, ins)
		return ins, nil
	}

	for _, f := range internaldefs.Counters {
		ins, err := observe(f, f.Name)
		if err != nil {
			return nil, err
		}
		e.counters[f.ID] = ins
	}

	var err error
	lat := internaldefs.Latency
	if e.buckets, err = observe(lat, lat.Name+"_bucket"); err != nil {
		return nil, err
	}
	if e.samples, err = observe(lat, lat.Name+"_count"); err != nil {
		return nil, err
	}
	if e.dropped, err = observe(internaldefs.AuditDropped, internaldefs.AuditDropped.Name); err != nil {
		return nil, err
	}
	for i := range e.bounds {
		e.bounds[i] = metric.WithAttributes(attribute.String("le", internaldefs.Label(i)))
	}

	e.reg, err = meter.RegisterCallback(e.collect, all...)
	if err != nil {
		return nil, fmt.Errorf("otel: register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) collect(_ context.Context, o metric.Observer) error {
	snap := e.src.MetricsSnapshot()
	for id, ins := range e.counters {
		o.ObserveInt64(ins, int64(snap.Counters[id]))
	}
	cum := internaldefs.Cumulative(snap.Histograms[internaldefs.Latency.ID])
	for i, n := range cum {
		o.ObserveInt64(e.buckets, int64(n), e.bounds[i])
	}
	o.ObserveInt64(e.samples, int64(cum[len(cum)-1]))
	o.ObserveInt64(e.dropped, int64(e.src.AuditDropped()))
	return nil
}

// Close unregisters the callback.
func (e *Exporter) Close() error {
	if e == nil || e.reg == nil {
		return nil
	}
	return e.reg.Unregister()
}
