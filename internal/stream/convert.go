package stream

// ConvertWriter returns a Writer which converts values with conv before
// writing them to base. Conversion errors abort the write before anything
// reaches base.
func ConvertWriter[To, From any](base Writer[To], conv func(From) (To, error)) Writer[From] {
	return &convertWriter[To, From]{base: base, conv: conv}
}

type convertWriter[To, From any] struct {
	base Writer[To]
	conv func(From) (To, error)
	buf  []To
}

func (w *convertWriter[To, From]) Write(values []From) (int, error) {
	w.buf = w.buf[:0]
	for _, v := range values {
		c, err := w.conv(v)
		if err != nil {
			return 0, err
		}
		w.buf = append(w.buf, c)
	}
	n, err := w.base.Write(w.buf)
	clear(w.buf)
	return n, err
}
