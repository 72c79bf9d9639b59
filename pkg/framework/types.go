package framework

import (
	"context"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// Event is something happened which must be processed by the loop.
// Events are processed strictly one at a time in arrival order.
type Event interface {
	// EventName is a short name for logging.
	EventName() string
}

// EventHandler reacts to an event. It runs on the loop goroutine
// and must return promptly.
type EventHandler interface {
	HandleEvent(context.Context, Event) error
}

// HandleEventFunc is the func form of EventHandler.
type HandleEventFunc func(context.Context, Event) error

// HandleEvent implements EventHandler.
func (f HandleEventFunc) HandleEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// EventPoster accepts events from any goroutine.
type EventPoster interface {
	// PostEvent enqueues the event for processing on the loop.
	PostEvent(Event)
}

// LoopControl exposes access to the running loop.
type LoopControl interface {
	EventPoster
	// Go starts a Runnable bound to the lifetime of the loop.
	Go(...Runnable)
}
