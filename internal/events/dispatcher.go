package events

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls how session events are queued on their way to a sink.
//
// With DropIfFull set, Emit never waits for buffer space and a full queue
// discards the event, except for types listed in Critical. Those wait like
// they would without DropIfFull, bounded by the caller's context.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	Critical   []string
}

// Dispatcher queues session events and hands them to a sink on a single
// worker goroutine, so sinks see events in emission order.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool
	critical   map[string]struct{}

	queue     chan Event
	stop      chan struct{}
	worker    sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once

	dropMu  sync.Mutex
	dropped map[string]uint64
	total   atomic.Uint64
}

// NewDispatcher starts a dispatcher goroutine. It returns nil when cfg is
// disabled; every method is safe on a nil *Dispatcher.
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
		dropIfFull: cfg.DropIfFull,
		critical:   make(map[string]struct{}, len(cfg.Critical)),
		queue:      make(chan Event, size),
		stop:       make(chan struct{}),
		dropped:    make(map[string]uint64),
	}
	for _, eventType := range cfg.Critical {
		d.critical[eventType] = struct{}{}
	}

	d.worker.Add(1)
	go d.deliver()

	return d
}

func (d *Dispatcher) deliver() {
	defer d.worker.Done()

	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.stop:
			d.flush()
			return
		}
	}
}

// flush hands whatever is still queued to the sink once Close has been called.
func (d *Dispatcher) flush() {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// Emit queues event for the sink. Events emitted after Close are ignored.
//
// A full queue under DropIfFull discards the event and records the drop
// against its Type. Otherwise, and always for critical types, Emit waits for
// space until ctx is done or the dispatcher closes; a wait cut short by ctx
// is recorded as a drop too.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull && !d.isCritical(event.Type) {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.recordDrop(event.Type)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-d.stop:
	case <-ctx.Done():
		d.recordDrop(event.Type)
	}
}

func (d *Dispatcher) isCritical(eventType string) bool {
	_, ok := d.critical[eventType]
	return ok
}

func (d *Dispatcher) recordDrop(eventType string) {
	d.dropMu.Lock()
	d.dropped[eventType]++
	d.dropMu.Unlock()
	d.total.Add(1)
}

// Close stops accepting events, drains the buffer into the sink and waits
// for the worker to exit.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.worker.Wait()
	})
}

// Dropped reports how many events never reached the queue, across all types.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.total.Load()
}

// DroppedByType returns a copy of the drop counts keyed by event type. Types
// that never lost an event are absent.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	out := make(map[string]uint64)
	if d == nil {
		return out
	}
	d.dropMu.Lock()
	defer d.dropMu.Unlock()
	for eventType, n := range d.dropped {
		out[eventType] = n
	}
	return out
}
