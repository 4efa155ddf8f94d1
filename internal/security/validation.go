package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Validation limits.
const (
	DefaultMaxBodySize  = 1 << 20 // 1 MiB
	DefaultMaxJSONDepth = 32
)

// Validation errors.
var (
	ErrBodyTooLarge   = errors.New("security: request body too large")
	ErrJSONTooDeep    = errors.New("security: JSON nesting too deep")
	ErrInvalidJSON    = errors.New("security: invalid JSON")
	ErrRestrictedPath = errors.New("security: restricted path")
)

// ValidateBodySize checks that data does not exceed limit bytes.
// A limit of zero or less means DefaultMaxBodySize.
func ValidateBodySize(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	if len(data) > limit {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrBodyTooLarge, len(data), limit)
	}
	return nil
}

// ValidateJSONDepth rejects JSON nested deeper than limit.
// A limit of zero or less means DefaultMaxJSONDepth.
func ValidateJSONDepth(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxJSONDepth
	}
	if len(data) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}
		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
			if depth > limit {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, depth, limit)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
}

// ValidatePath rejects paths that resolve into /proc, /sys or /dev.
// Symlinks are followed when they can be resolved.
func ValidatePath(path string) error {
	cleaned := filepath.Clean(path)
	if abs, err := filepath.Abs(cleaned); err == nil {
		cleaned = abs
	}
	if resolved, err := filepath.EvalSymlinks(cleaned); err == nil {
		cleaned = resolved
	}
	normalized := strings.ToLower(cleaned) + "/"
	for _, prefix := range []string{"/proc/", "/sys/", "/dev/"} {
		if strings.HasPrefix(normalized, prefix) {
			return fmt.Errorf("%w: %s", ErrRestrictedPath, path)
		}
	}
	return nil
}
