// Package hook runs observers after a dispatch has been committed. Observers
// see the completed exchange in registration order; their failures are
// reported to the caller but never undo the exchange.
package hook

import (
	"context"
	"time"

	"github.com/voidKandy/espionox-sub001/pkg/message"
)

// Exchange is one completed prompt/reply pair.
type Exchange struct {
	Agent    string
	Provider string
	Thread   string
	Mode     string

	Prompt message.Message
	Reply  message.Message

	Started  time.Time
	Duration time.Duration
}

// Observer reacts to completed exchanges.
type Observer interface {
	// Name identifies the observer in logs, metrics and failures.
	Name() string

	// Observe is called once per exchange. Returning an error marks the
	// observer as failed for this exchange only.
	Observe(ctx context.Context, ex Exchange) error
}

// ObserverFunc adapts a function to the Observer interface. Its name is
// "func"; use Named to give it a better one.
type ObserverFunc func(ctx context.Context, ex Exchange) error

// Name implements Observer.
func (f ObserverFunc) Name() string { return "func" }

// Observe implements Observer.
func (f ObserverFunc) Observe(ctx context.Context, ex Exchange) error { return f(ctx, ex) }

type named struct {
	name string
	fn   ObserverFunc
}

func (n named) Name() string { return n.name }
func (n named) Observe(ctx context.Context, ex Exchange) error { return n.fn(ctx, ex) }

// Named returns an Observer called name that runs fn.
func Named(name string, fn ObserverFunc) Observer {
	return named{name: name, fn: fn}
}
