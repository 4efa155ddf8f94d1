package message

import "slices"

// Transcript is an ordered sequence of messages in conversation order.
// The zero value is an empty transcript ready to use. A Transcript is not
// safe for concurrent mutation; its owner serializes access.
type Transcript struct {
	msgs []Message
}

// NewTranscript returns a transcript holding a copy of msgs.
func NewTranscript(msgs ...Message) Transcript {
	return Transcript{msgs: slices.Clone(msgs)}
}

// NewTranscriptWithSystemPrompt returns a transcript whose only entry is a
// System message carrying prompt.
func NewTranscriptWithSystemPrompt(prompt string) Transcript {
	return Transcript{msgs: []Message{New(RoleSystem, prompt)}}
}

// Push appends a new message and returns it.
func (t *Transcript) Push(role Role, content string) Message {
	msg := New(role, content)
	t.msgs = append(t.msgs, msg)
	return msg
}

// Append appends already-built messages.
func (t *Transcript) Append(msgs ...Message) {
	t.msgs = append(t.msgs, msgs...)
}

// Len returns the number of messages.
func (t Transcript) Len() int { return len(t.msgs) }

// At returns the message at index i.
func (t Transcript) At(i int) Message { return t.msgs[i] }

// Last returns the final message, or false when the transcript is empty.
func (t Transcript) Last() (Message, bool) {
	if len(t.msgs) == 0 {
		return Message{}, false
	}
	return t.msgs[len(t.msgs)-1], true
}

// Messages returns a copy of the underlying messages.
func (t Transcript) Messages() []Message {
	return slices.Clone(t.msgs)
}

// Clone returns an independent copy of the transcript.
func (t Transcript) Clone() Transcript {
	return Transcript{msgs: slices.Clone(t.msgs)}
}

// ToWire projects every message, in order, to its {role, content} form.
func (t Transcript) ToWire() []Wire {
	out := make([]Wire, len(t.msgs))
	for i, m := range t.msgs {
		out[i] = m.Wire()
	}
	return out
}
