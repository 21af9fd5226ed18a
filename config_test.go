package main

import (
	"encoding/json"
	"testing"

	"github.com/stealthrocket/fsreplay/internal/assert"
)

var configTests = tests{
	"show the config command help": func(t *testing.T) {
		stdout, _, exitCode := fsreplay(t, "config", "--help")
		assert.Equal(t, exitCode, 0)
		assert.HasPrefix(t, stdout, "Usage:\tfsreplay config ")
	},

	"print the default configuration": func(t *testing.T) {
		stdout, stderr, exitCode := fsreplay(t, "config")
		assert.Equal(t, exitCode, 0)
		assert.Equal(t, stderr, "")
		assert.Contains(t, stdout, "mount-point: /mnt/image")
	},

	"print the configuration file as is": func(t *testing.T) {
		const content = "# local settings\nbatch:\n  jobs: 2\n"
		writeConfig(t, content)
		stdout, _, exitCode := fsreplay(t, "config")
		assert.Equal(t, exitCode, 0)
		assert.Equal(t, stdout, content)
	},

	"print the configuration in json": func(t *testing.T) {
		writeConfig(t, "batch:\n  jobs: 2\nreplay:\n  write-back: false\n")
		stdout, _, exitCode := fsreplay(t, "config", "-o", "json")
		assert.Equal(t, exitCode, 0)

		var c struct {
			Batch struct {
				Jobs int `json:"jobs"`
			} `json:"batch"`
			Replay struct {
				WriteBack bool `json:"write-back"`
			} `json:"replay"`
		}
		assert.OK(t, json.Unmarshal([]byte(stdout), &c))
		assert.Equal(t, c.Batch.Jobs, 2)
		assert.Equal(t, c.Replay.WriteBack, false)
	},

	"print the configuration in yaml": func(t *testing.T) {
		writeConfig(t, "kernel:\n  boot: mem=1M ro\n")
		stdout, _, exitCode := fsreplay(t, "config", "-o", "yaml")
		assert.Equal(t, exitCode, 0)
		assert.Contains(t, stdout, "boot: mem=1M ro")
	},

	"an invalid configuration is reported": func(t *testing.T) {
		writeConfig(t, "batch:\n  jobs: -1\n")
		_, stderr, exitCode := fsreplay(t, "config")
		assert.Equal(t, exitCode, 1)
		assert.Contains(t, stderr, "batch.jobs")
	},

	"the configuration path can be passed as an option": func(t *testing.T) {
		stdout, _, exitCode := fsreplay(t, "-c", "/nonexistent/config.yaml", "config")
		assert.Equal(t, exitCode, 0)
		assert.Contains(t, stdout, "mount-point: /mnt/image")
	},
}

var helpTests = tests{
	"invoking help without a command shows the list of commands": func(t *testing.T) {
		stdout, stderr, exitCode := fsreplay(t, "help")
		assert.Equal(t, exitCode, 0)
		assert.HasPrefix(t, stdout, "Usage:\tfsreplay <command> [options]\n")
		assert.Equal(t, stderr, "")
	},

	"each command has its help": func(t *testing.T) {
		for _, cmd := range []string{"batch", "config", "describe", "help", "replay", "version"} {
			stdout, _, exitCode := fsreplay(t, "help", cmd)
			assert.Equal(t, exitCode, 0)
			assert.HasPrefix(t, stdout, "Usage:\tfsreplay ")
		}
	},

	"help for an unknown command is an error": func(t *testing.T) {
		stdout, stderr, exitCode := fsreplay(t, "help", "whatever")
		assert.Equal(t, exitCode, 2)
		assert.Equal(t, stdout, "")
		assert.HasPrefix(t, stderr, "fsreplay help whatever: unknown command")
	},
}
