package textprint_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stealthrocket/fsreplay/internal/assert"
	"github.com/stealthrocket/fsreplay/internal/print/textprint"
)

type result struct {
	Name     string `text:"JOB"`
	Syscalls int    `text:"SYSCALLS"`
	Failed   uint   `text:"FAILED"`
	Error    error  `text:"ERROR"`
	internal bool
}

var results = []result{
	{Name: "crash-2", Syscalls: 12, Failed: 3},
	{Name: "crash-1", Syscalls: 4},
	{Name: "crash-3", Error: errors.New("kernel setup: no such file or directory")},
}

func TestTableWriteNothing(t *testing.T) {
	b := new(bytes.Buffer)
	w := textprint.NewTableWriter[result](b)
	assert.OK(t, w.Close())
	assert.Equal(t, b.String(), "JOB  SYSCALLS  FAILED  ERROR\n")
}

func TestTableWriteValues(t *testing.T) {
	b := new(bytes.Buffer)
	w := textprint.NewTableWriter[result](b)
	_, err := w.Write(results)
	assert.OK(t, err)
	assert.OK(t, w.Close())
	assert.Equal(t, b.String(), `JOB      SYSCALLS  FAILED  ERROR
crash-2  12        3       -
crash-1  4         0       -
crash-3  0         0       kernel setup: no such file or directory
`)
}

func TestTableOrderBy(t *testing.T) {
	b := new(bytes.Buffer)
	w := textprint.NewTableWriter[*result](b,
		textprint.Header[*result](false),
		textprint.List[*result](true),
		textprint.OrderBy(func(a, b *result) bool { return a.Name < b.Name }),
	)
	for i := range results {
		_, err := w.Write([]*result{&results[i]})
		assert.OK(t, err)
	}
	assert.OK(t, w.Close())
	assert.Equal(t, b.String(), "crash-1\ncrash-2\ncrash-3\n")
}

func TestWriter(t *testing.T) {
	b := new(bytes.Buffer)
	w := textprint.NewWriter[string](b, textprint.Format("%s\n"), textprint.Separator("--\n"))
	_, err := w.Write([]string{"a", "b"})
	assert.OK(t, err)
	assert.OK(t, w.Close())
	assert.Equal(t, b.String(), "a\n--\nb\n")
}
