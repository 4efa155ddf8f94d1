package memory

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMode is returned for modes that cannot be activated.
var ErrInvalidMode = errors.New("memory: invalid mode")

// cacheKey addresses the anonymous cache transcript.
const cacheKey = "cache"

type modeKind uint8

const (
	modeLongTerm modeKind = iota + 1
	modeCache
	modeForget
)

// Mode selects where a Backend keeps its transcript. The zero Mode is invalid.
type Mode struct {
	kind   modeKind
	thread string
}

// LongTerm persists the transcript under the named thread.
func LongTerm(thread string) Mode { return Mode{kind: modeLongTerm, thread: thread} }

// Cache keeps the transcript in process memory only.
func Cache() Mode { return Mode{kind: modeCache} }

// Forget keeps nothing between loads.
func Forget() Mode { return Mode{kind: modeForget} }

// ParseMode maps a configured mode name to a Mode.
func ParseMode(name, thread string) (Mode, error) {
	var m Mode
	switch strings.ToLower(name) {
	case "long_term", "longterm", "long-term":
		m = LongTerm(thread)
	case "cache", "":
		m = Cache()
	case "forget":
		m = Forget()
	default:
		return Mode{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidMode, name)
	}
	return m, m.Validate()
}

// Validate reports whether m can be activated.
func (m Mode) Validate() error {
	switch m.kind {
	case modeLongTerm:
		if strings.TrimSpace(m.thread) == "" {
			return fmt.Errorf("%w: long-term mode requires a thread name", ErrInvalidMode)
		}
	case modeCache, modeForget:
	default:
		return fmt.Errorf("%w: zero mode", ErrInvalidMode)
	}
	return nil
}

// IsLongTerm reports whether m persists to a Store.
func (m Mode) IsLongTerm() bool { return m.kind == modeLongTerm }

// IsCache reports whether m is the volatile cache.
func (m Mode) IsCache() bool { return m.kind == modeCache }

// IsForget reports whether m discards its transcript.
func (m Mode) IsForget() bool { return m.kind == modeForget }

// Thread returns the thread name, or "" outside long-term mode.
func (m Mode) Thread() string { return m.thread }

func (m Mode) String() string {
	switch m.kind {
	case modeLongTerm:
		return "long_term(" + m.thread + ")"
	case modeCache:
		return "cache"
	case modeForget:
		return "forget"
	default:
		return "invalid"
	}
}
