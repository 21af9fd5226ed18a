package main

import (
	"testing"

	"github.com/stealthrocket/fsreplay/internal/assert"
)

var rootTests = tests{
	"invoking fsreplay without a command prints the introduction message": func(t *testing.T) {
		stdout, stderr, exitCode := fsreplay(t)
		assert.Equal(t, exitCode, 0)
		assert.HasPrefix(t, stdout, "fsreplay - File System Call Replay\n")
		assert.Equal(t, stderr, "")
	},

	"show the fsreplay help with the short option": func(t *testing.T) {
		stdout, stderr, exitCode := fsreplay(t, "-h")
		assert.Equal(t, exitCode, 0)
		assert.HasPrefix(t, stdout, "Usage:\tfsreplay <command> ")
		assert.Equal(t, stderr, "")
	},

	"show the fsreplay help with the long option": func(t *testing.T) {
		stdout, stderr, exitCode := fsreplay(t, "--help")
		assert.Equal(t, exitCode, 0)
		assert.HasPrefix(t, stdout, "Usage:\tfsreplay <command> ")
		assert.Equal(t, stderr, "")
	},

	"passing an unsupported flag causes an error": func(t *testing.T) {
		stdout, stderr, exitCode := fsreplay(t, "-_")
		assert.Equal(t, exitCode, 2)
		assert.Equal(t, stdout, "")
		assert.HasPrefix(t, stderr, "fsreplay: flag provided but not defined: -_\n")
	},

	"passing an unsupported flag to a command causes an error": func(t *testing.T) {
		for _, cmd := range []string{"replay", "describe", "batch", "config", "version"} {
			stdout, stderr, exitCode := fsreplay(t, cmd, "--nope")
			assert.Equal(t, exitCode, 2)
			assert.Equal(t, stdout, "")
			assert.HasPrefix(t, stderr, "fsreplay "+cmd+": flag provided but not defined: -nope\n")
		}
	},
}

var unknownTests = tests{
	"an error is reported when invoking an unknown command": func(t *testing.T) {
		stdout, stderr, exitCode := fsreplay(t, "whatever")
		assert.Equal(t, exitCode, 2)
		assert.Equal(t, stdout, "")
		assert.HasPrefix(t, stderr, "fsreplay whatever: unknown command\n")
	},
}

var versionTests = tests{
	"print the version": func(t *testing.T) {
		stdout, stderr, exitCode := fsreplay(t, "version")
		assert.Equal(t, exitCode, 0)
		assert.Equal(t, stdout, "fsreplay devel\n")
		assert.Equal(t, stderr, "")
	},

	"print the supported file systems in verbose mode": func(t *testing.T) {
		stdout, _, exitCode := fsreplay(t, "version", "-v")
		assert.Equal(t, exitCode, 0)
		assert.Contains(t, stdout, "file systems: [auto dir oci tar tmpfs]\n")
	},

	"show the version command help": func(t *testing.T) {
		stdout, stderr, exitCode := fsreplay(t, "version", "--help")
		assert.Equal(t, exitCode, 0)
		assert.HasPrefix(t, stdout, "Usage:\tfsreplay version")
		assert.Equal(t, stderr, "")
	},
}
