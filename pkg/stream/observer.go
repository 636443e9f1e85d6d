package stream

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/a2y-d5l/forge"
)

// Drops reports how many items an Observer dropped on overflow.
type Drops struct {
	Events  uint64
	Results uint64
}

// Observer implements forge.Observer and forwards events, and the task
// results they carry, into channels. It is safe under concurrent
// HandleEvent calls.
type Observer struct {
	events    chan forge.Event
	results   chan forge.TaskResult
	inbox     chan forge.Event
	cfg       config
	wg        sync.WaitGroup
	drops     [2]atomic.Uint64
	closeOnce sync.Once

	// mu guards closed and the inbox send; Close takes it exclusively.
	mu     sync.RWMutex
	closed bool
}

const (
	dropEvent = iota
	dropResult
)

// NewObserver returns an Observer. Both buffers default to 1024 items and
// the policy to DropNewest.
func NewObserver(opts ...Option) *Observer {
	c := config{
		eventBuf:  defaultEventBufSize,
		resultBuf: defaultResultBufSize,
		policy:    DropNewest,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	c.eventBuf = max(c.eventBuf, 0)
	c.resultBuf = max(c.resultBuf, 0)

	// the inbox absorbs short bursts so drop policies rarely drop at the door
	inbox := max(defaultInboxSize, 2*max(c.eventBuf, c.resultBuf)+256)

	o := &Observer{
		cfg:     c,
		events:  make(chan forge.Event, c.eventBuf),
		results: make(chan forge.TaskResult, c.resultBuf),
		inbox:   make(chan forge.Event, inbox),
	}
	o.wg.Go(o.forward)
	return o
}

// HandleEvent queues e for forwarding according to the overflow policy.
// Events arriving after Close are discarded.
func (o *Observer) HandleEvent(e forge.Event) {
	if o == nil {
		return
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return
	}

	switch o.cfg.policy {
	case Block:
		o.inbox <- e
	case DropNewest, DropOldest:
		select {
		case o.inbox <- e:
		default:
			o.drops[dropEvent].Add(1)
			if e.Result != nil {
				o.drops[dropResult].Add(1)
			}
		}
	default:
		panic(errors.Errorf("stream: unknown overflow policy %s", o.cfg.policy))
	}
}

// Events returns the event channel. It is closed by Close.
func (o *Observer) Events() <-chan forge.Event {
	if o == nil {
		return closed[forge.Event]()
	}
	return o.events
}

// Results returns the task result channel. It is closed by Close.
func (o *Observer) Results() <-chan forge.TaskResult {
	if o == nil {
		return closed[forge.TaskResult]()
	}
	return o.results
}

// Drops returns the current drop counters.
func (o *Observer) Drops() Drops {
	if o == nil {
		return Drops{}
	}
	return Drops{Events: o.drops[dropEvent].Load(), Results: o.drops[dropResult].Load()}
}

// Close refuses further events, forwards everything already queued, then
// closes both channels. Under Block it returns only once the consumer has
// taken every queued item that does not fit the channel buffers. Close may
// be called more than once.
func (o *Observer) Close() {
	if o == nil {
		return
	}
	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.closed = true
		close(o.inbox)
		o.mu.Unlock()

		o.wg.Wait()
		close(o.events)
		close(o.results)
	})
}

func (o *Observer) forward() {
	for e := range o.inbox {
		deliver(o.events, e, o.cfg.policy, &o.drops[dropEvent])
		if e.Result != nil {
			deliver(o.results, *e.Result, o.cfg.policy, &o.drops[dropResult])
		}
	}
}

func deliver[T any](ch chan T, v T, policy OverflowPolicy, dropped *atomic.Uint64) {
	switch policy {
	case Block:
		ch <- v
		return
	case DropOldest:
		select {
		case ch <- v:
			return
		default:
		}
		// evict one buffered item and retry once
		select {
		case <-ch:
		default:
		}
	}
	select {
	case ch <- v:
	default:
		dropped.Add(1)
	}
}

func closed[T any]() <-chan T {
	ch := make(chan T)
	close(ch)
	return ch
}
