package textprint

import (
	"io"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/stealthrocket/fsreplay/internal/stream"
)

type TableOption[T any] func(*tableWriter[T])

// Header enables or disables the line of column names, enabled by default.
func Header[T any](enable bool) TableOption[T] {
	return func(t *tableWriter[T]) { t.header = enable }
}

// List limits the output to the first column.
func List[T any](enable bool) TableOption[T] {
	return func(t *tableWriter[T]) { t.list = enable }
}

// OrderBy sorts the rows with less before printing them. Rows comparing
// equal keep the order they were written in.
func OrderBy[T any](less func(T, T) bool) TableOption[T] {
	return func(t *tableWriter[T]) { t.orderBy = less }
}

// NewTableWriter returns a writer printing values as rows of a table aligned
// on columns. Each exported field of T is a column, named after the field or
// the first element of its `text` tag. Fields tagged `text:"-"` are omitted.
//
// Rows are buffered until the writer is closed.
func NewTableWriter[T any](w io.Writer, opts ...TableOption[T]) stream.WriteCloser[T] {
	t := &tableWriter[T]{
		output: w,
		header: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type tableWriter[T any] struct {
	output  io.Writer
	values  []T
	header  bool
	list    bool
	orderBy func(T, T) bool
}

func (t *tableWriter[T]) Write(values []T) (int, error) {
	t.values = append(t.values, values...)
	return len(values), nil
}

func (t *tableWriter[T]) Close() error {
	tw := tabwriter.NewWriter(t.output, 0, 4, 2, ' ', 0)

	if t.orderBy != nil {
		sort.SliceStable(t.values, func(i, j int) bool {
			return t.orderBy(t.values[i], t.values[j])
		})
	}

	valueOf := func(values []T, index int) reflect.Value {
		return reflect.ValueOf(&values[index]).Elem()
	}

	var v T
	valueType := reflect.TypeOf(v)
	if valueType.Kind() == reflect.Pointer {
		valueType = valueType.Elem()
		valueOf = func(values []T, index int) reflect.Value {
			return reflect.ValueOf(values[index]).Elem()
		}
	}

	var columns []string
	var encoders []encodeFunc
	for _, f := range reflect.VisibleFields(valueType) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		name := f.Name
		if textTag := f.Tag.Get("text"); textTag != "" {
			name, _, _ = strings.Cut(textTag, ",")
		}
		if name == "-" {
			continue
		}
		columns = append(columns, name)
		encoders = append(encoders, encodeFuncOfStructField(f.Type, f.Index))
	}

	if t.list {
		columns = columns[:1]
		encoders = encoders[:1]
	}

	if t.header {
		if _, err := io.WriteString(tw, strings.Join(columns, "\t")+"\n"); err != nil {
			return err
		}
	}

	for n := range t.values {
		v := valueOf(t.values, n)

		for i, enc := range encoders {
			if i != 0 {
				if _, err := io.WriteString(tw, "\t"); err != nil {
					return err
				}
			}
			if err := enc(tw, v); err != nil {
				return err
			}
		}

		if _, err := io.WriteString(tw, "\n"); err != nil {
			return err
		}
	}

	return tw.Flush()
}
