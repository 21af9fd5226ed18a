package program_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/stealthrocket/fsreplay/internal/assert"
	"github.com/stealthrocket/fsreplay/internal/program"
)

func sampleProgram() *program.Program {
	return &program.Program{
		Syscalls: []program.Syscall{
			{NR: program.SYS_OPEN, Args: []program.Argument{program.Var(0), program.Lit(65), program.Lit(0o644)}},
			{NR: program.SYS_WRITE, Args: []program.Argument{program.Lit(3), program.Var(1), program.Lit(2)}},
			{NR: program.SYS_READ, Args: []program.Argument{program.Lit(3), program.Var(2), program.Lit(16)}},
			{NR: program.SYS_CLOSE, Args: []program.Argument{program.Var(3)}},
		},
		Variables: []program.Variable{
			program.Str("/x"),
			program.Buffer{Data: []byte("hi"), Size: 2},
			program.Buffer{Size: 16},
			program.Long(3),
		},
		ActiveFDs: []int64{3},
	}
}

func TestCodecRoundTrip(t *testing.T) {
	for _, name := range []string{
		"prog.json",
		"prog.json.gz",
		"prog.json.zst",
		"prog.yaml",
		"prog.yml.gz",
		"prog.yaml.zst",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			want := sampleProgram()
			assert.OK(t, program.Save(path, want))

			got, err := program.Load(path)
			assert.OK(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("program mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path   string
		format program.Format
	}{
		{"a.json", program.JSON},
		{"a.yaml", program.YAML},
		{"a.YML", program.YAML},
		{"a.yaml.gz", program.YAML},
		{"a.json.zst", program.JSON},
		{"a", program.JSON},
	}
	for _, test := range tests {
		assert.Equal(t, program.FormatOf(test.path), test.format)
	}
}

func TestDecodeJSON(t *testing.T) {
	const input = `{
  "syscalls": [
    {"nr": "open", "args": [{"is_variable": true, "index": 0}, {"is_variable": false, "value": 65}]},
    {"nr": 1, "args": [{"is_variable": false, "value": 3}, {"is_variable": true, "index": 1}]},
    {"nr": 0, "args": [{"is_variable": true, "index": 7}]}
  ],
  "variables": [
    {"str": "/x"},
    {"buffer": {"text": "hello"}},
    {"buffer": {"size": 4, "data": "AAEC"}},
    {"buffer": {"size": 8}}
  ],
  "active_fds": [3, 4]
}`
	got, err := program.DecodeJSON(strings.NewReader(input))
	assert.OK(t, err)

	want := &program.Program{
		Syscalls: []program.Syscall{
			{NR: program.SYS_OPEN, Args: []program.Argument{program.Var(0), program.Lit(65)}},
			{NR: program.SYS_WRITE, Args: []program.Argument{program.Lit(3), program.Var(1)}},
			{NR: program.SYS_READ, Args: []program.Argument{program.Var(7)}},
		},
		Variables: []program.Variable{
			program.Str("/x"),
			program.Buffer{Data: []byte("hello"), Size: 5},
			program.Buffer{Data: []byte{0, 1, 2}, Size: 4},
			program.Buffer{Size: 8},
		},
		ActiveFDs: []int64{3, 4},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("program mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeYAML(t *testing.T) {
	const input = `
syscalls:
  - nr: mkdir
    args:
      - {is_variable: true, index: 0}
      - {is_variable: false, value: 493}
  - nr: 84
    args:
      - {is_variable: true, index: 0}
variables:
  - str: /x/d
  - long: -1
`
	got, err := program.DecodeYAML(strings.NewReader(input))
	assert.OK(t, err)

	want := &program.Program{
		Syscalls: []program.Syscall{
			{NR: program.SYS_MKDIR, Args: []program.Argument{program.Var(0), program.Lit(0o755)}},
			{NR: program.SYS_RMDIR, Args: []program.Argument{program.Var(0)}},
		},
		Variables: []program.Variable{
			program.Str("/x/d"),
			program.Long(-1),
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("program mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		scenario string
		input    string
	}{
		{
			scenario: "unknown field",
			input:    `{"syscalls": [], "extra": 1}`,
		},
		{
			scenario: "variable without index",
			input:    `{"syscalls": [{"nr": 0, "args": [{"is_variable": true}]}]}`,
		},
		{
			scenario: "literal without value",
			input:    `{"syscalls": [{"nr": 0, "args": [{"is_variable": false}]}]}`,
		},
		{
			scenario: "literal with index",
			input:    `{"syscalls": [{"nr": 0, "args": [{"is_variable": false, "value": 1, "index": 0}]}]}`,
		},
		{
			scenario: "empty variable",
			input:    `{"syscalls": [], "variables": [{}]}`,
		},
		{
			scenario: "ambiguous variable",
			input:    `{"syscalls": [], "variables": [{"str": "a", "long": 1}]}`,
		},
		{
			scenario: "data and text",
			input:    `{"syscalls": [], "variables": [{"buffer": {"data": "", "text": ""}}]}`,
		},
		{
			scenario: "bad base64",
			input:    `{"syscalls": [], "variables": [{"buffer": {"data": "!!"}}]}`,
		},
		{
			scenario: "unknown system call name",
			input:    `{"syscalls": [{"nr": "fork", "args": []}]}`,
		},
	}

	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			_, err := program.DecodeJSON(strings.NewReader(test.input))
			assert.ErrorAs[*program.DecodeError](t, err)
		})
	}
}

func TestDecodeYAMLUnknownField(t *testing.T) {
	_, err := program.DecodeYAML(strings.NewReader("syscalls: []\nvariable: []\n"))
	assert.ErrorAs[*program.DecodeError](t, err)

	_, err = program.DecodeYAML(strings.NewReader(""))
	assert.ErrorAs[*program.DecodeError](t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := program.Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCloneVariables(t *testing.T) {
	p := sampleProgram()
	vars := p.CloneVariables()
	if diff := cmp.Diff(p.Variables, vars); diff != "" {
		t.Fatalf("clone mismatch (-want +got):\n%s", diff)
	}

	b := vars[1].(program.Buffer)
	b.Data[0] = 'H'
	assert.Equal(t, string(p.Variables[1].(program.Buffer).Data), "hi")
}

func TestSysno(t *testing.T) {
	assert.Equal(t, program.SYS_PREAD64.String(), "pread64")
	assert.Equal(t, program.Sysno(999).String(), "syscall_999")

	nr, err := program.ParseSysno("pwrite")
	assert.OK(t, err)
	assert.Equal(t, nr, program.SYS_PWRITE64)

	nr, err = program.ParseSysno("306")
	assert.OK(t, err)
	assert.Equal(t, nr, program.SYS_SYNCFS)

	_, err = program.ParseSysno("nope")
	assert.NotEqual(t, err, nil)
}

func TestStringers(t *testing.T) {
	p := sampleProgram()
	assert.Equal(t, p.Syscalls[0].String(), `open($0, 65, 420)`)
	assert.Equal(t, p.Variables[0].String(), `"/x"`)
	assert.Equal(t, p.Variables[1].String(), `buffer[2]"hi"`)
	assert.Equal(t, p.Variables[2].String(), `buffer[16]`)
	assert.Equal(t, program.KindOf(p.Variables[3]), "long")
	assert.Equal(t, program.KindOf(nil), "none")

	long := program.Buffer{Data: bytes.Repeat([]byte("a"), 40), Size: 40}
	assert.HasPrefix(t, long.String(), `buffer[40]"aaaa`)
	assert.True(t, strings.HasSuffix(long.String(), `"...`))
}
