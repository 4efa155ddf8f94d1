package dispatch

import (
	"context"
	"errors"
	"fmt"

	ctxengine "github.com/voidKandy/espionox-sub001/internal/context"
	"github.com/voidKandy/espionox-sub001/internal/memory"
	"github.com/voidKandy/espionox-sub001/internal/stream"
)

// Configuration errors. A dispatch that fails with one of these made no
// network call.
var (
	ErrAgentIsNone = errors.New("dispatch: agent is nil")
	ErrNoProvider  = errors.New("dispatch: provider not registered")
	ErrNoAPIKey    = errors.New("dispatch: no API key for provider")
)

// ErrTimeout is wrapped by errors of KindTimeout.
var ErrTimeout = errors.New("dispatch: timed out")

// Kind classifies dispatch failures.
type Kind int

// Failure kinds.
const (
	KindUnknown Kind = iota
	KindConfiguration
	KindTransport
	KindTimeout
	KindCancelled
	KindDecode
	KindModeMismatch
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindDecode:
		return "decode"
	case KindModeMismatch:
		return "mode_mismatch"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Error is returned by every failing Dispatcher operation.
type Error struct {
	Kind  Kind
	Agent string
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.Agent == "" {
		return fmt.Sprintf("dispatch %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("dispatch %s %q: %s: %v", e.Op, e.Agent, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// IsRecoverable reports whether retrying the same dispatch may succeed.
func IsRecoverable(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindTimeout, KindPersistence:
		return true
	default:
		return false
	}
}

// classify builds an *Error for err. parent is the caller's context and
// scoped the dispatch context; together they tell a timeout from a
// cancellation even when the transport reported something else.
func classify(parent, scoped context.Context, agent, op string, err error) *Error {
	e := &Error{Agent: agent, Op: op, Err: err}

	switch {
	case errors.Is(err, ErrAgentIsNone), errors.Is(err, ErrNoProvider), errors.Is(err, ErrNoAPIKey):
		e.Kind = KindConfiguration
	case parent != nil && errors.Is(parent.Err(), context.Canceled),
		scoped == nil && errors.Is(err, context.Canceled):
		e.Kind = KindCancelled
	case scoped != nil && scoped.Err() != nil,
		errors.Is(err, context.DeadlineExceeded):
		e.Kind = KindTimeout
		e.Err = fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, stream.ErrMalformedChunk), errors.Is(err, stream.ErrStreamFinished):
		e.Kind = KindDecode
	case errors.Is(err, memory.ErrModeMismatch):
		e.Kind = KindModeMismatch
	case errors.Is(err, memory.ErrPersistence), errors.Is(err, ctxengine.ErrEvictionFailed):
		e.Kind = KindPersistence
	case errors.Is(err, context.Canceled):
		e.Kind = KindCancelled
	default:
		e.Kind = KindTransport
	}
	return e
}
