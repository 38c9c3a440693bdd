package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/receipt-scan/internal/domain/event"
)

// Handler reacts to a job event
type Handler func(ctx context.Context, evt *event.Event) error

// ErrClosed is returned when publishing on a closed dispatcher
var ErrClosed = errors.New("dispatcher is closed")

// Dispatcher fans job lifecycle events out to subscribers
type Dispatcher interface {
	// Subscribe registers a handler under a generated name
	Subscribe(eventType event.Type, handler Handler)

	// SubscribeNamed registers a handler under name
	SubscribeNamed(eventType event.Type, name string, handler Handler)

	// SubscribeMany registers one named handler for several event types
	SubscribeMany(eventTypes []event.Type, name string, handler Handler)

	// Unsubscribe removes every handler registered under name for eventType
	Unsubscribe(eventType event.Type, name string)

	// Dispatch runs every handler in registration order and joins their errors
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync runs each handler on its own goroutine and returns at once
	DispatchAsync(ctx context.Context, evt *event.Event)

	// ListHandlers returns handler names for eventType in registration order
	ListHandlers(eventType event.Type) []string

	// Close rejects further events and waits for running async handlers
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type subscription struct {
	name    string
	handler Handler
}

type eventDispatcher struct {
	mu     sync.RWMutex
	subs   map[event.Type][]subscription
	logger Logger

	inflight sync.WaitGroup
	closed   atomic.Bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		subs:   make(map[event.Type][]subscription),
		logger: nopLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.add(eventType, fmt.Sprintf("handler-%d", len(d.subs[eventType])), handler)
}

func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.add(eventType, name, handler)
}

func (d *eventDispatcher) SubscribeMany(eventTypes []event.Type, name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range eventTypes {
		d.add(t, name, handler)
	}
}

// add appends to a fresh slice so snapshots taken by dispatchers stay valid
func (d *eventDispatcher) add(eventType event.Type, name string, handler Handler) {
	current := d.subs[eventType]
	next := make([]subscription, len(current), len(current)+1)
	copy(next, current)
	d.subs[eventType] = append(next, subscription{name: name, handler: handler})

	d.logger.Info("Handler registered", "event_type", eventType, "handler_name", name)
}

func (d *eventDispatcher) Unsubscribe(eventType event.Type, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var kept []subscription
	for _, s := range d.subs[eventType] {
		if s.name != name {
			kept = append(kept, s)
		}
	}
	d.subs[eventType] = kept
}

func (d *eventDispatcher) snapshot(eventType event.Type) []subscription {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.subs[eventType]
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if d.closed.Load() {
		return ErrClosed
	}

	var errs []error
	for _, s := range d.snapshot(evt.Type) {
		if err := d.run(ctx, evt, s); err != nil {
			errs = append(errs, fmt.Errorf("handler %s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// DispatchAsync detaches handlers from ctx cancellation so a finished request
// or pipeline run does not abort a pending notification
func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	if d.closed.Load() {
		d.logger.Error("Dropping event, dispatcher is closed", "event_type", evt.Type, "job_id", evt.JobID)
		return
	}
	ctx = context.WithoutCancel(ctx)

	for _, s := range d.snapshot(evt.Type) {
		d.inflight.Add(1)
		go func(s subscription) {
			defer d.inflight.Done()
			_ = d.run(ctx, evt, s)
		}(s)
	}
}

func (d *eventDispatcher) ListHandlers(eventType event.Type) []string {
	subs := d.snapshot(eventType)
	names := make([]string, 0, len(subs))
	for _, s := range subs {
		names = append(names, s.name)
	}
	return names
}

func (d *eventDispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	d.inflight.Wait()
	d.logger.Info("Dispatcher closed")
	return nil
}

// run invokes one handler, converting a panic into an error
func (d *eventDispatcher) run(ctx context.Context, evt *event.Event, s subscription) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			d.logger.Error("Event handler failed",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"job_id", evt.JobID,
				"handler_name", s.name,
				"error", err)
		}
	}()
	return s.handler(ctx, evt)
}
