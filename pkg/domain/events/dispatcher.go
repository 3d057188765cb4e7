package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// HandlerFunc handles one event.
type HandlerFunc func(ctx context.Context, e *Event) error

type namedHandler struct {
	name    string
	handler HandlerFunc
}

// Dispatcher fans events out to registered handlers in registration order.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	logger   *slog.Logger
	// ContinueOnError runs the remaining handlers after a failure and
	// reports all failures together.
	ContinueOnError bool
}

// NewDispatcher creates a Dispatcher. A nil logger uses slog.Default().
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handlers:        make(map[string][]namedHandler),
		logger:          logger,
		ContinueOnError: true,
	}
}

// Subscribe registers handler for the given event types, or every type when
// none is given.
func (d *Dispatcher) Subscribe(name string, handler HandlerFunc, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = []string{Wildcard}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range eventTypes {
		d.handlers[t] = append(d.handlers[t], namedHandler{name: name, handler: handler})
	}
}

// HandlerCount returns how many handlers receive events of eventType.
func (d *Dispatcher) HandlerCount(eventType string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := len(d.handlers[eventType])
	if eventType != Wildcard {
		n += len(d.handlers[Wildcard])
	}
	return n
}

// Dispatch delivers e to the type-specific handlers, then the wildcard ones.
func (d *Dispatcher) Dispatch(ctx context.Context, e *Event) error {
	d.mu.RLock()
	handlers := make([]namedHandler, 0, len(d.handlers[e.Type])+len(d.handlers[Wildcard]))
	handlers = append(handlers, d.handlers[e.Type]...)
	handlers = append(handlers, d.handlers[Wildcard]...)
	d.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h.handler(ctx, e); err != nil {
			err = fmt.Errorf("handler %s failed for event %s: %w", h.name, e.Type, err)
			d.logger.Warn("event handler failed", "handler", h.name, "event", e.Type, "task_id", e.TaskID, "error", err)
			if !d.ContinueOnError {
				return err
			}
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &DispatchError{Errors: errs}
	}
	return nil
}

// DispatchError contains multiple errors from event dispatch.
type DispatchError struct {
	Errors []error
}

func (e *DispatchError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("multiple dispatch errors (%d)", len(e.Errors))
}

// Unwrap exposes every handler error to errors.Is and errors.As.
func (e *DispatchError) Unwrap() []error {
	return e.Errors
}
