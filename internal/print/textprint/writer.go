package textprint

import (
	"bufio"
	"fmt"
	"io"

	"github.com/stealthrocket/fsreplay/internal/stream"
)

// WriterOption configures the writers returned by NewWriter.
type WriterOption func(*writerConfig)

type writerConfig struct {
	format    string
	separator string
}

// Format sets the format of each value, "%v" by default. Values implementing
// fmt.Formatter control their own output.
func Format(s string) WriterOption {
	return func(c *writerConfig) { c.format = s }
}

// Separator sets the text written between values, an empty line by default.
func Separator(s string) WriterOption {
	return func(c *writerConfig) { c.separator = s }
}

// NewWriter returns a writer printing values one after the other.
func NewWriter[T any](w io.Writer, opts ...WriterOption) stream.WriteCloser[T] {
	c := writerConfig{format: "%v", separator: "\n"}
	for _, opt := range opts {
		opt(&c)
	}
	return &writer[T]{config: c, output: bufio.NewWriter(w)}
}

type writer[T any] struct {
	config  writerConfig
	output  *bufio.Writer
	written bool
}

func (w *writer[T]) Write(values []T) (int, error) {
	for i, v := range values {
		if w.written {
			if _, err := io.WriteString(w.output, w.config.separator); err != nil {
				return i, err
			}
		}
		if _, err := fmt.Fprintf(w.output, w.config.format, v); err != nil {
			return i, err
		}
		w.written = true
	}
	return len(values), nil
}

func (w *writer[T]) Close() error {
	return w.output.Flush()
}
