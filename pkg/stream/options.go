package stream

import "fmt"

// OverflowPolicy decides what an Observer does with an event or task result
// when its consumer falls behind the run.
type OverflowPolicy uint8

const (
	// DropNewest discards the incoming item and counts it in Drops. A pipeline
	// or service run never waits for the consumer.
	DropNewest OverflowPolicy = iota

	// DropOldest discards the oldest buffered item instead, so a consumer
	// showing the latest task status always sees the most recent one.
	DropOldest

	// Block delivers everything. The run waits on the consumer, and Close
	// waits until the queue is drained.
	Block
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropNewest:
		return "drop-newest"
	case DropOldest:
		return "drop-oldest"
	case Block:
		return "block"
	}
	return fmt.Sprintf("OverflowPolicy(%d)", uint8(p))
}

// Buffer sizes, in items. The inbox sits between HandleEvent and the
// forwarding goroutine and never drops below defaultInboxSize.
const (
	defaultEventBufSize  = 1024
	defaultResultBufSize = 1024
	defaultInboxSize     = 64
)

// Option configures an Observer.
type Option func(*config)

type config struct {
	eventBuf  int
	resultBuf int
	policy    OverflowPolicy
}

// WithEventBuffer sizes the channel returned by Events. Negative sizes
// count as zero.
func WithEventBuffer(n int) Option {
	return func(c *config) { c.eventBuf = n }
}

// WithResultBuffer sizes the channel returned by Results, which carries the
// TaskResult of every EventTaskFinished.
func WithResultBuffer(n int) Option {
	return func(c *config) { c.resultBuf = n }
}

// WithOverflowPolicy picks the overflow policy; DropNewest by default.
func WithOverflowPolicy(p OverflowPolicy) Option {
	return func(c *config) { c.policy = p }
}
