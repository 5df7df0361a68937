package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/squadwarden/warden/internal/serial"
	"github.com/squadwarden/warden/pkg/core"
)

// ErrNoHandler is returned by Dispatch for event types nobody handles.
var ErrNoHandler = errors.New("no handler registered")

// HandlerFunc processes an event.
type HandlerFunc func(core.Event) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	name       string
	bufferSize int
	blocking   bool
	logged     bool
}

// Named sets the handler name used in logs and metrics.
func Named(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// Buffered makes the handler async with a queue of the given size. Buffered
// handlers run outside the serialization point and must not touch state
// shared with other handlers.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes events to registered handlers in registration order.
// Synchronous handlers and functions passed to Do run one at a time, so they
// share a single serialization point with timer callbacks.
type Dispatcher struct {
	handlers map[core.EventType][]HandlerFunc
	logger   Logger
	serial   serial.Mutex

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter

	// Track buffers for gauge callback
	mu      sync.RWMutex
	buffers map[string]chan core.Event
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[core.EventType][]HandlerFunc),
		buffers:  make(map[string]chan core.Event),
		logger:   logger,
	}

	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events in queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for name, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(buf)),
					metric.WithAttributes(attribute.String("handler", name)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	d.failed, err = m.Int64Counter(
		"dispatcher.events.failed",
		metric.WithDescription("Total handler invocations that returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	return d, nil
}

// Register appends a handler for the event type. Handlers must be registered
// before the first Dispatch.
func (d *Dispatcher) Register(t core.EventType, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.name == "" {
		cfg.name = fmt.Sprintf("%s#%d", t, len(d.handlers[t]))
	}

	handler := h

	if cfg.logged {
		handler = d.withLogging(cfg.name, handler)
	}

	if cfg.bufferSize > 0 {
		handler = d.withBuffer(cfg.name, cfg.bufferSize, cfg.blocking, handler)
	}

	d.handlers[t] = append(d.handlers[t], handler)
}

// Dispatch delivers the event to every handler of its type, in registration
// order, under the serialization point. Handler errors are joined; a failing
// handler does not stop the ones after it.
func (d *Dispatcher) Dispatch(e core.Event) error {
	hs, ok := d.handlers[e.Type()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, e.Type())
	}

	attrs := metric.WithAttributes(attribute.String("event", string(e.Type())))
	var errs []error
	d.serial.Do(func() {
		for _, h := range hs {
			if err := h(e); err != nil {
				d.failed.Add(context.Background(), 1, attrs)
				errs = append(errs, err)
			}
		}
	})
	d.processed.Add(context.Background(), 1, attrs)

	return errors.Join(errs...)
}

// Do runs fn under the serialization point.
func (d *Dispatcher) Do(fn func()) {
	d.serial.Do(fn)
}

// HasHandler returns true if a handler is registered for the event type.
func (d *Dispatcher) HasHandler(t core.EventType) bool {
	_, ok := d.handlers[t]
	return ok
}

// QueueLengths returns the current length of every buffered handler queue.
func (d *Dispatcher) QueueLengths() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]int, len(d.buffers))
	for name, buf := range d.buffers {
		out[name] = len(buf)
	}
	return out
}

func (d *Dispatcher) withBuffer(name string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan core.Event, size)

	d.mu.Lock()
	d.buffers[name] = buffer
	d.mu.Unlock()

	nameAttr := attribute.String("handler", name)

	go func() {
		for e := range buffer {
			if err := h(e); err != nil {
				d.failed.Add(context.Background(), 1, metric.WithAttributes(nameAttr))
			}
		}
	}()

	if blocking {
		return func(e core.Event) error {
			buffer <- e
			return nil
		}
	}

	return func(e core.Event) error {
		select {
		case buffer <- e:
			return nil
		default:
			d.dropped.Add(context.Background(), 1, metric.WithAttributes(nameAttr))
			return fmt.Errorf("queue full: %s", name)
		}
	}
}

func (d *Dispatcher) withLogging(name string, h HandlerFunc) HandlerFunc {
	return func(e core.Event) error {
		start := time.Now()
		d.logger.Debug("handling event", "handler", name, "event", e.Type())

		err := h(e)

		if err != nil {
			d.logger.Error("event failed", "handler", name, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "handler", name, "duration", time.Since(start))
		}

		return err
	}
}
