package events

import "context"

// Store persists events in append order.
type Store interface {
	// Append assigns the id and hash chain and persists the event.
	Append(ctx context.Context, e *Event) error
	// LoadAll returns every event oldest first.
	LoadAll(ctx context.Context) ([]*Event, error)
	// LoadByTask returns the events of one task oldest first.
	LoadByTask(ctx context.Context, taskID string) ([]*Event, error)
}
