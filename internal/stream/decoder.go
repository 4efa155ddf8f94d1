// Package stream turns streamed completion chunks into an incremental
// completion signal. One Decoder handles exactly one in-flight completion.
package stream

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrMalformedChunk is returned for a chunk that is not the expected
	// {"choices":[{"delta":{...}}]} shape. It is fatal for the stream.
	ErrMalformedChunk = errors.New("stream: malformed chunk")

	// ErrStreamFinished is returned when a chunk arrives after Finished.
	ErrStreamFinished = errors.New("stream: chunk after finish")
)

// State is the decoder position in Awaiting → Working → Finished.
type State int

// Decoder states.
const (
	Awaiting State = iota
	Working
	Finished
)

func (s State) String() string {
	switch s {
	case Awaiting:
		return "awaiting"
	case Working:
		return "working"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is the result of decoding one chunk: either Working with a text
// delta or Finished.
type Status struct {
	Finished bool
	Delta    string
}

// WorkingStatus returns the Working(delta) status.
func WorkingStatus(delta string) Status { return Status{Delta: delta} }

// FinishedStatus returns the terminal status.
func FinishedStatus() Status { return Status{Finished: true} }

func (s Status) String() string {
	if s.Finished {
		return "Finished"
	}
	return "Working(" + strconv.Quote(s.Delta) + ")"
}

// Decoder is a single-pass state machine. It is not safe for concurrent use;
// the goroutine consuming the stream owns it.
type Decoder struct {
	state State
	text  strings.Builder
	role  string
}

// NewDecoder returns a decoder in the Awaiting state.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// State returns the current state.
func (d *Decoder) State() State { return d.state }

// Role returns the role marker seen in the stream, if any.
func (d *Decoder) Role() string { return d.role }

// Text returns the ordered concatenation of every Working delta so far.
func (d *Decoder) Text() string { return d.text.String() }

// Decode consumes one chunk. A chunk without a content field finishes the
// stream; a malformed chunk finishes it with ErrMalformedChunk.
func (d *Decoder) Decode(chunk []byte) (Status, error) {
	if d.state == Finished {
		return Status{}, ErrStreamFinished
	}

	if !gjson.ValidBytes(chunk) {
		d.state = Finished
		return Status{}, fmt.Errorf("%w: invalid json", ErrMalformedChunk)
	}

	delta := gjson.GetBytes(chunk, "choices.0.delta")
	if !delta.IsObject() {
		d.state = Finished
		return Status{}, fmt.Errorf("%w: missing choices[0].delta", ErrMalformedChunk)
	}

	if role := delta.Get("role"); role.Type == gjson.String && d.role == "" {
		d.role = role.Str
	}

	content := delta.Get("content")
	if !content.Exists() || content.Type == gjson.Null {
		d.state = Finished
		return FinishedStatus(), nil
	}
	if content.Type != gjson.String {
		d.state = Finished
		return Status{}, fmt.Errorf("%w: content is %s", ErrMalformedChunk, content.Type)
	}

	text := stripQuotes(content.Str)
	d.state = Working
	d.text.WriteString(text)
	return WorkingStatus(text), nil
}

// stripQuotes removes one layer of JSON string quoting that some providers
// leave around a delta.
func stripQuotes(s string) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}
	unquoted, err := strconv.Unquote(s)
	if err != nil {
		return s
	}
	return unquoted
}
