// Package embedding defines embedding vectors, their L2 similarity score,
// and the Embedder collaborator that produces them.
package embedding

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDimensionMismatch is returned when comparing vectors of different lengths.
	ErrDimensionMismatch = errors.New("embedding: dimension mismatch")

	// ErrEmptyEmbedding is returned when an embedder produces no values.
	ErrEmptyEmbedding = errors.New("embedding: empty vector")

	// ErrCorruptBlob is returned when a stored vector has an invalid length.
	ErrCorruptBlob = errors.New("embedding: corrupt blob")
)

// Vector is a fixed-length sequence of 32-bit floats.
type Vector []float32

// Embedder turns text into a Vector. Implementations report failures
// instead of returning a zero vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
}

// EmbedderFunc adapts a function to the Embedder interface.
type EmbedderFunc func(ctx context.Context, text string) (Vector, error)

// Embed implements Embedder.
func (f EmbedderFunc) Embed(ctx context.Context, text string) (Vector, error) {
	return f(ctx, text)
}

// Equal reports element-wise equality.
func (v Vector) Equal(o Vector) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if v[i] != o[i] {
			return false
		}
	}
	return true
}

// ScoreL2 returns the Euclidean distance between a and b. Lower is closer.
// The score is symmetric and zero for identical vectors.
func ScoreL2(a, b Vector) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum)), nil
}

// Encode serializes v as little-endian float32 values.
func Encode(v Vector) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// Decode is the inverse of Encode.
func Decode(b []byte) (Vector, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorruptBlob, len(b))
	}
	v := make(Vector, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

// Checked wraps e so that empty vectors are reported as ErrEmptyEmbedding.
func Checked(e Embedder) Embedder {
	return EmbedderFunc(func(ctx context.Context, text string) (Vector, error) {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		if len(v) == 0 {
			return nil, ErrEmptyEmbedding
		}
		return v, nil
	})
}
