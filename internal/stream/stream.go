// Package stream is a library of generic types designed to work on streams of
// values.
package stream

import "io"

// Reader is an interface implemented by types that produce a stream of values
// of type T.
type Reader[T any] interface {
	// Reads values from the stream, returning the number of values read and any
	// error that occurred.
	//
	// The error is io.EOF when the end of the stream has been reached.
	Read(values []T) (int, error)
}

// NewReader constructs a Reader from a sequence of values.
func NewReader[T any](values ...T) Reader[T] {
	return &reader[T]{values: append([]T{}, values...)}
}

type reader[T any] struct{ values []T }

func (r *reader[T]) Read(values []T) (n int, err error) {
	n = copy(values, r.values)
	r.values = r.values[n:]
	if len(r.values) == 0 {
		err = io.EOF
	}
	return n, err
}

// Writer is an interface implemented by types that consume a stream of values
// of type T.
type Writer[T any] interface {
	// Writes values to the stream, returning the number of values written and
	// any error that occurred.
	Write(values []T) (int, error)
}

// WriteCloser represents a closable stream of values of T. Writers which
// buffer values flush them when closed.
type WriteCloser[T any] interface {
	Writer[T]
	io.Closer
}

// ReadAll reads all values from r and returns them as a slice, along with any
// error that occurred (other than io.EOF).
func ReadAll[T any](r Reader[T]) ([]T, error) {
	values := make([]T, 0, 1)
	for {
		if len(values) == cap(values) {
			values = append(values, make([]T, 2*len(values))...)[:len(values)]
		}
		n, err := r.Read(values[len(values):cap(values)])
		values = values[:len(values)+n]
		if err != nil {
			if err == io.EOF {
				err = nil
			}
			return values, err
		}
	}
}

// Copy writes values read from r to w until the end of r is reached, returning
// the number of values copied.
func Copy[T any](w Writer[T], r Reader[T]) (int64, error) {
	var n int64
	var buf [20]T
	for {
		rn, err := r.Read(buf[:])
		if rn > 0 {
			wn, werr := w.Write(buf[:rn])
			n += int64(wn)
			if werr != nil {
				return n, werr
			}
			if wn < rn {
				return n, io.ErrShortWrite
			}
		}
		if err != nil {
			if err == io.EOF {
				err = nil
			}
			return n, err
		}
		if rn == 0 {
			return n, io.ErrNoProgress
		}
	}
}
