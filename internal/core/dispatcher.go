package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type EventKind string

const (
	EventJobCompleted         EventKind = "job_completed"
	EventJobFailed            EventKind = "job_failed"
	EventPrinterStatusChanged EventKind = "printer_status_changed"
)

// Event is an immutable result record sent from a worker to the dispatcher.
type Event struct {
	Kind          EventKind
	CorrelationID int64
	JobID         uint32
	DocumentName  string
	Device        string
	PagesPrinted  int
	TotalPages    int
	Reason        string
	Outcome       OutcomeKind
	Online        bool
	At            time.Time
}

// EventSink is handed to every worker at spawn time.
type EventSink interface {
	Emit(ev Event)
}

type Handler interface {
	HandleEvent(ctx context.Context, ev Event)
}

type HandlerFunc func(ctx context.Context, ev Event)

func (f HandlerFunc) HandleEvent(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// Dispatcher owns the event channel. Run is the single consumer; handlers are
// invoked sequentially in registration order on that goroutine.
type Dispatcher struct {
	events   chan Event
	handlers []Handler
	log      zerolog.Logger

	mu       sync.RWMutex
	closed   bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewDispatcher(buffer int, log zerolog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		events: make(chan Event, buffer),
		log:    log,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Register must be called before Run.
func (d *Dispatcher) Register(h Handler) {
	d.handlers = append(d.handlers, h)
}

func (d *Dispatcher) Emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped(ev)
		return
	}
	select {
	case d.events <- ev:
	case <-d.stop:
		d.dropped(ev)
	}
}

func (d *Dispatcher) dropped(ev Event) {
	d.log.Warn().Str("event", string(ev.Kind)).Int64("correlation_id", ev.CorrelationID).
		Msg("dispatcher closed, dropping event")
}

// Run consumes events until ctx is done or Close drains the channel.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			d.drain(ctx)
			return
		case ev, ok := <-d.events:
			if !ok {
				return
			}
			d.dispatch(ctx, ev)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	d.Close()
	for ev := range d.events {
		d.dispatch(ctx, ev)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev Event) {
	for _, h := range d.handlers {
		h.HandleEvent(ctx, ev)
	}
}

// Close stops accepting events. Already queued events are still delivered.
func (d *Dispatcher) Close() {
	d.stopOnce.Do(func() { close(d.stop) })
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.events)
}

// Done is closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}
