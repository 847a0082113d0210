package coreevents

import "context"

// Broadcaster is the uniform publish interface used by everything upstream
// of the event taxonomy: the Process Executor's output/status sinks, and
// any external entity service reporting a DataChanged event. Grounded on
// the teacher's internal/events/bus.EventBus interface shape.
//
// Publish never returns an error a caller is expected to act on — per
// spec.md §7, "Publishing via the Event Broadcaster is fire-and-forget; no
// caller ever observes an error." The error return exists only so
// implementations can log distinctly; callers should not check it.
type Broadcaster interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NullBroadcaster discards every event, for callers and tests that need a
// Broadcaster but don't care about event delivery. (A process spawned with
// no sink uses process.NullSink, not this type.)
type NullBroadcaster struct{}

func (NullBroadcaster) Publish(context.Context, Event) error { return nil }
func (NullBroadcaster) Close() error                          { return nil }
