// Package jsonprint writes streams of values as json documents.
package jsonprint

import (
	"encoding/json"
	"io"

	"github.com/stealthrocket/fsreplay/internal/stream"
)

type WriterOption func(*json.Encoder)

// Compact writes each value on a single line, producing json lines instead of
// a sequence of indented documents.
func Compact() WriterOption {
	return func(e *json.Encoder) { e.SetIndent("", "") }
}

func NewWriter[T any](w io.Writer, opts ...WriterOption) stream.WriteCloser[T] {
	e := json.NewEncoder(w)
	e.SetEscapeHTML(false)
	e.SetIndent("", "  ")
	for _, opt := range opts {
		opt(e)
	}
	return writer[T]{e}
}

type writer[T any] struct{ *json.Encoder }

func (w writer[T]) Write(values []T) (int, error) {
	for n := range values {
		if err := w.Encode(values[n]); err != nil {
			return n, err
		}
	}
	return len(values), nil
}

func (w writer[T]) Close() error {
	return nil
}
