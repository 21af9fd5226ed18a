package main

import (
	"strings"
	"testing"

	"github.com/stealthrocket/fsreplay/internal/assert"
	"github.com/stealthrocket/fsreplay/internal/program"
)

var describeTests = tests{
	"describe without a program is a usage error": func(t *testing.T) {
		stdout, stderr, exitCode := fsreplay(t, "describe")
		assert.Equal(t, exitCode, 2)
		assert.Equal(t, stdout, "")
		assert.HasPrefix(t, stderr, "Expected at least one program path as argument")
	},

	"describe a program as text": func(t *testing.T) {
		prog := writeProgram(t, t.TempDir(), "prog.json", createAndWrite)
		stdout, stderr, exitCode := fsreplay(t, "describe", prog)
		assert.Equal(t, exitCode, 0)
		assert.Equal(t, stderr, "")

		assert.Contains(t, stdout, "Program:    "+prog+"\n")
		assert.Contains(t, stdout, "Format:     json\n")
		assert.Contains(t, stdout, "Syscalls:   3\n")
		assert.Contains(t, stdout, "Variables:  3 (")
		assert.Contains(t, stdout, "Active FDs: 3\n")
		assert.Contains(t, stdout, "SYSCALL")
		assert.Contains(t, stdout, "fsync")
		assert.Contains(t, stdout, `"/x"`)
	},

	"unsupported system calls are counted": func(t *testing.T) {
		prog := writeProgram(t, t.TempDir(), "prog.yaml", &program.Program{
			Syscalls: []program.Syscall{
				{NR: program.SYS_CLOSE, Args: []program.Argument{program.Lit(3)}},
				{NR: program.SYS_FSYNC, Args: []program.Argument{program.Lit(3)}},
			},
		})
		stdout, _, exitCode := fsreplay(t, "describe", prog)
		assert.Equal(t, exitCode, 0)
		assert.Contains(t, stdout, "Format:     yaml\n")
		assert.Contains(t, stdout, "Syscalls:   2 (1 unsupported)\n")
		assert.Contains(t, stdout, "Active FDs: (none)\n")
		assert.Contains(t, stdout, "unsupported")
	},

	"describe converts programs to json": func(t *testing.T) {
		prog := writeProgram(t, t.TempDir(), "prog.yaml.gz", createAndWrite)
		stdout, _, exitCode := fsreplay(t, "describe", "-o", "json", prog)
		assert.Equal(t, exitCode, 0)

		p, err := program.DecodeJSON(strings.NewReader(stdout))
		assert.OK(t, err)
		assert.DeepEqual(t, p, createAndWrite)
	},

	"describe converts programs to yaml": func(t *testing.T) {
		prog := writeProgram(t, t.TempDir(), "prog.json", createAndWrite)
		stdout, _, exitCode := fsreplay(t, "describe", "--output=yaml", prog)
		assert.Equal(t, exitCode, 0)

		p, err := program.DecodeYAML(strings.NewReader(stdout))
		assert.OK(t, err)
		assert.DeepEqual(t, p, createAndWrite)
	},

	"describe an unsupported output format": func(t *testing.T) {
		_, _, exitCode := fsreplay(t, "describe", "-o", "xml", "prog.json")
		assert.Equal(t, exitCode, 2)
	},
}
