package dispatch

import (
	"time"

	"github.com/voidKandy/espionox-sub001/internal/hook"
)

// Option adjusts a single dispatch.
type Option func(*options)

type options struct {
	timeout    time.Duration
	retries    int
	hasRetries bool
	onDelta    func(string)
	isolation  *hook.Isolation
}

// WithTimeout overrides the agent's timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRetries overrides the agent's retry count.
func WithRetries(n int) Option {
	return func(o *options) {
		o.retries = max(n, 0)
		o.hasRetries = true
	}
}

// OnDelta registers a handler for every non-empty streamed delta. It runs
// on the dispatch goroutine and must not block.
func OnDelta(fn func(delta string)) Option {
	return func(o *options) { o.onDelta = fn }
}

// WithIsolation overrides the dispatcher's observer isolation policy.
func WithIsolation(i hook.Isolation) Option {
	return func(o *options) { o.isolation = &i }
}
