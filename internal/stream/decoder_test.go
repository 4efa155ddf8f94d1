package stream

import (
	"errors"
	"testing"
)

func TestDecoder_Decode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		chunk     string
		want      Status
		wantState State
	}{
		{"content", `{"choices":[{"delta":{"content":"hi"}}]}`, WorkingStatus("hi"), Working},
		{"no content", `{"choices":[{"delta":{}}]}`, FinishedStatus(), Finished},
		{"null content", `{"choices":[{"delta":{"content":null}}]}`, FinishedStatus(), Finished},
		{"role only", `{"choices":[{"delta":{"role":"assistant","content":""}}]}`, WorkingStatus(""), Working},
		{"quoted delta", `{"choices":[{"delta":{"content":"\"hi there\""}}]}`, WorkingStatus("hi there"), Working},
		{"single quote char", `{"choices":[{"delta":{"content":"\""}}]}`, WorkingStatus(`"`), Working},
		{"extra fields", `{"id":"x","choices":[{"index":0,"delta":{"content":"ok"},"finish_reason":null}]}`, WorkingStatus("ok"), Working},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := NewDecoder()
			got, err := d.Decode([]byte(tt.chunk))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode = %v, want %v", got, tt.want)
			}
			if d.State() != tt.wantState {
				t.Errorf("state = %v, want %v", d.State(), tt.wantState)
			}
		})
	}
}

func TestDecoder_Concatenation(t *testing.T) {
	t.Parallel()

	d := NewDecoder()
	var got string
	for _, delta := range []string{"He", "llo", "!"} {
		s, err := d.Decode([]byte(`{"choices":[{"delta":{"content":"` + delta + `"}}]}`))
		if err != nil {
			t.Fatalf("Decode(%q): %v", delta, err)
		}
		got += s.Delta
	}
	s, err := d.Decode([]byte(`{"choices":[{"delta":{}}]}`))
	if err != nil || !s.Finished {
		t.Fatalf("terminator = %v, %v", s, err)
	}

	if got != "Hello!" {
		t.Errorf("concatenated deltas = %q, want %q", got, "Hello!")
	}
	if d.Text() != "Hello!" {
		t.Errorf("Text() = %q, want %q", d.Text(), "Hello!")
	}
}

func TestDecoder_RejectsAfterFinished(t *testing.T) {
	t.Parallel()

	d := NewDecoder()
	if _, err := d.Decode([]byte(`{"choices":[{"delta":{}}]}`)); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	_, err := d.Decode([]byte(`{"choices":[{"delta":{"content":"late"}}]}`))
	if !errors.Is(err, ErrStreamFinished) {
		t.Fatalf("err = %v, want ErrStreamFinished", err)
	}
	if d.Text() != "" {
		t.Errorf("late chunk leaked into text: %q", d.Text())
	}
}

func TestDecoder_Malformed(t *testing.T) {
	t.Parallel()

	chunks := []string{
		`not json`,
		`{"choices":[]}`,
		`{"choices":[{"message":{"content":"x"}}]}`,
		`{"choices":[{"delta":"x"}]}`,
		`{"choices":[{"delta":{"content":42}}]}`,
	}

	for _, c := range chunks {
		t.Run(c, func(t *testing.T) {
			t.Parallel()
			d := NewDecoder()
			_, err := d.Decode([]byte(c))
			if !errors.Is(err, ErrMalformedChunk) {
				t.Fatalf("err = %v, want ErrMalformedChunk", err)
			}
			if d.State() != Finished {
				t.Errorf("state = %v, want finished", d.State())
			}
			if _, err := d.Decode([]byte(`{"choices":[{"delta":{"content":"x"}}]}`)); !errors.Is(err, ErrStreamFinished) {
				t.Errorf("decoder accepted input after fatal error: %v", err)
			}
		})
	}
}

func TestDecoder_RecordsRole(t *testing.T) {
	t.Parallel()

	d := NewDecoder()
	_, _ = d.Decode([]byte(`{"choices":[{"delta":{"role":"assistant"}}]}`))
	if d.Role() != "assistant" {
		t.Errorf("Role() = %q", d.Role())
	}
}
