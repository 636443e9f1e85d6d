// Package streamtest provides observers for tests.
package streamtest

import (
	"slices"
	"sync"

	"github.com/a2y-d5l/forge"
)

// EventRecorder records every event it observes. It is safe under
// concurrent HandleEvent calls.
type EventRecorder struct {
	events []forge.Event
	mu     sync.Mutex
}

// NewEventRecorder returns an empty recorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

func (r *EventRecorder) HandleEvent(e forge.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *EventRecorder) Events() []forge.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Types returns the recorded event types in order.
func (r *EventRecorder) Types() []forge.EventType {
	evs := r.Events()
	out := make([]forge.EventType, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}

// Results returns the task results carried by recorded events, in order.
func (r *EventRecorder) Results() []forge.TaskResult {
	var out []forge.TaskResult
	for _, e := range r.Events() {
		if e.Result != nil {
			out = append(out, *e.Result)
		}
	}
	return out
}

// Reset clears the recorder.
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
