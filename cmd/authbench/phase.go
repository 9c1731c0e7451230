package main

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// phase runs op a fixed number of times across workers and records the
// latency of every call.
type phase struct {
	name    string
	ops     int
	workers int
	op      func() bool
}

type report struct {
	name          string
	elapsed       time.Duration
	samples       []time.Duration
	failures      int64
	p50, p95, p99 time.Duration
}

func (p phase) run(ctx context.Context) (report, error) {
	var (
		next     atomic.Int64
		failures atomic.Int64
	)
	perWorker := make([][]time.Duration, p.workers)

	g, ctx := errgroup.WithContext(ctx)
	start := time.Now()
	for w := range p.workers {
		g.Go(func() error {
			lat := make([]time.Duration, 0, p.ops/p.workers+1)
			for next.Add(1) <= int64(p.ops) {
				if err := ctx.Err(); err != nil {
					return err
				}
				t0 := time.Now()
				if !p.op() {
					failures.Add(1)
				}
				lat = append(lat, time.Since(t0))
			}
			perWorker[w] = lat
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report{}, fmt.Errorf("%s: %w", p.name, err)
	}

	r := report{
		name:     p.name,
		elapsed:  time.Since(start),
		samples:  slices.Concat(perWorker...),
		failures: failures.Load(),
	}
	slices.Sort(r.samples)
	r.p50, r.p95, r.p99 = r.quantile(0.50), r.quantile(0.95), r.quantile(0.99)
	return r, nil
}

// quantile uses the nearest-rank method on sorted samples.
func (r report) quantile(q float64) time.Duration {
	if len(r.samples) == 0 {
		return 0
	}
	i := int(q * float64(len(r.samples)-1))
	return r.samples[min(max(i, 0), len(r.samples)-1)]
}

func (r report) String() string {
	rate := 0.0
	if s := r.elapsed.Seconds(); s > 0 {
		rate = float64(len(r.samples)) / s
	}
	return fmt.Sprintf("%-7s ops=%d failures=%d elapsed=%s rate=%.0f/s p50=%s p95=%s p99=%s",
		r.name, len(r.samples), r.failures,
		r.elapsed.Round(time.Millisecond), rate,
		r.p50.Round(time.Microsecond), r.p95.Round(time.Microsecond), r.p99.Round(time.Microsecond))
}
