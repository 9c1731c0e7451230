package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config sizes the delivery queue.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events on a full queue instead of blocking the
	// request that produced them.
	DropIfFull bool
}

type pending struct {
	ctx   context.Context
	event Event
}

// Dispatcher hands events to a Sink on one background goroutine so that
// login and logout never wait on audit I/O.
type Dispatcher struct {
	sink       Sink
	queue      chan pending
	dropIfFull bool

	stop     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once

	dropped atomic.Uint64
}

// NewDispatcher returns nil when cfg is disabled. Every method is a no-op on
// a nil Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		queue:      make(chan pending, size),
		dropIfFull: cfg.DropIfFull,
		stop:       make(chan struct{}),
		exited:     make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.exited)
	for {
		select {
		case p := <-d.queue:
			d.sink.Emit(p.ctx, p.event)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case p := <-d.queue:
			d.sink.Emit(p.ctx, p.event)
		default:
			return
		}
	}
}

func (d *Dispatcher) stopped() bool {
	select {
	case <-d.stop:
		return true
	default:
		return false
	}
}

// Emit queues event. The sink later sees ctx's values (request id, client
// address) but not its cancellation, since the request has usually finished
// by then. Without DropIfFull, Emit waits for room until ctx is done; an
// event abandoned that way counts as dropped.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.stopped() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p := pending{ctx: context.WithoutCancel(ctx), event: event}

	if d.dropIfFull {
		select {
		case d.queue <- p:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- p:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stop:
	}
}

// Close refuses new events, delivers what is queued and returns once the
// sink has seen the last one. Safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() { close(d.stop) })
	<-d.exited
}

// Dropped reports events lost to a full queue or an abandoned wait.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
