package security

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateBodySize(t *testing.T) {
	t.Parallel()

	if err := ValidateBodySize(make([]byte, 10), 10); err != nil {
		t.Errorf("at limit: %v", err)
	}
	if err := ValidateBodySize(make([]byte, 11), 10); !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("over limit: %v", err)
	}
}

func TestValidateJSONDepth(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		limit   int
		wantErr error
	}{
		{"flat", `{"prompt":"hi"}`, 2, nil},
		{"at limit", `{"a":{"b":1}}`, 2, nil},
		{"too deep", `{"a":{"b":{"c":1}}}`, 2, ErrJSONTooDeep},
		{"arrays count", strings.Repeat("[", 40) + strings.Repeat("]", 40), 0, ErrJSONTooDeep},
		{"invalid", `{"a":`, 2, ErrInvalidJSON},
		{"empty", ``, 2, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJSONDepth([]byte(tt.input), tt.limit)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path    string
		blocked bool
	}{
		{"/proc/self/environ", true},
		{"/sys/kernel", true},
		{"/dev", true},
		{"/tmp/notes.md", false},
		{"/home/u/devices.txt", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if got := errors.Is(err, ErrRestrictedPath); got != tt.blocked {
				t.Errorf("ValidatePath(%q) = %v", tt.path, err)
			}
		})
	}
}
