// Package ctxengine decides when the live transcript must shrink and how:
// dropping old messages, or condensing them into a summary that can be
// archived to long-term storage.
package ctxengine

import (
	"errors"
	"fmt"
)

// ForgetfulLimit is the fixed limit of the Forgetful mechanism.
const ForgetfulLimit = 2

// ErrInvalidLimit is returned for limits that cannot keep a request/response pair.
var ErrInvalidLimit = errors.New("ctxengine: limit must be at least 2")

// MechanismKind discriminates the caching mechanisms.
type MechanismKind int

// Mechanism kinds.
const (
	KindForgetful MechanismKind = iota + 1
	KindSummarize
)

func (k MechanismKind) String() string {
	switch k {
	case KindForgetful:
		return "forgetful"
	case KindSummarize:
		return "summarize"
	default:
		return fmt.Sprintf("mechanism(%d)", int(k))
	}
}

// Mechanism is the caching policy value.
type Mechanism struct {
	kind    MechanismKind
	limit   int
	persist bool
}

// Forgetful keeps only the last two messages and never persists.
func Forgetful() Mechanism {
	return Mechanism{kind: KindForgetful, limit: ForgetfulLimit}
}

// SummarizeAtLimit condenses evicted messages once the transcript reaches
// limit. When persist is true the summary is archived before truncation.
func SummarizeAtLimit(limit int, persist bool) Mechanism {
	return Mechanism{kind: KindSummarize, limit: limit, persist: persist}
}

// Kind returns the mechanism kind.
func (m Mechanism) Kind() MechanismKind { return m.kind }

// Limit returns the transcript length that triggers eviction.
func (m Mechanism) Limit() int { return m.limit }

// Persist reports whether summaries are archived.
func (m Mechanism) Persist() bool { return m.persist }

// Validate checks the limit invariant.
func (m Mechanism) Validate() error {
	switch m.kind {
	case KindForgetful, KindSummarize:
	default:
		return fmt.Errorf("ctxengine: unknown mechanism %v", m.kind)
	}
	if m.limit < 2 {
		return fmt.Errorf("%w: got %d", ErrInvalidLimit, m.limit)
	}
	return nil
}

// MechanismFromConfig parses the configured mechanism name.
func MechanismFromConfig(name string, limit int, persist bool) (Mechanism, error) {
	var m Mechanism
	switch name {
	case "", "forgetful":
		m = Forgetful()
	case "summarize", "summarize_at_limit":
		m = SummarizeAtLimit(limit, persist)
	default:
		return Mechanism{}, fmt.Errorf("ctxengine: unknown mechanism %q", name)
	}
	return m, m.Validate()
}
