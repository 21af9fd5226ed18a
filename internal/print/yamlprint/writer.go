// Package yamlprint writes streams of values as a sequence of yaml documents.
package yamlprint

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/stealthrocket/fsreplay/internal/stream"
)

// NewWriter returns a writer encoding each value as a yaml document. Documents
// are separated by "---" lines.
func NewWriter[T any](w io.Writer) stream.WriteCloser[T] {
	e := yaml.NewEncoder(w)
	e.SetIndent(2)
	return &writer[T]{encoder: e}
}

type writer[T any] struct {
	encoder *yaml.Encoder
	count   int
}

func (w *writer[T]) Write(values []T) (int, error) {
	for i := range values {
		if err := w.encoder.Encode(values[i]); err != nil {
			return i, err
		}
		w.count++
	}
	return len(values), nil
}

// Close flushes the encoder. The yaml encoder fails to close without having
// written a document, in which case there is nothing to flush.
func (w *writer[T]) Close() error {
	if w.count == 0 {
		return nil
	}
	return w.encoder.Close()
}
