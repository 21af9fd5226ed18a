package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stealthrocket/fsreplay/internal/assert"
)

func writeBatch(t *testing.T, dir, manifest string) string {
	t.Helper()
	writeProgram(t, dir, "create.json", createAndWrite)
	writeProgram(t, dir, "unlink.yaml", unlinkMissing)
	path := filepath.Join(dir, "batch.yaml")
	assert.OK(t, os.WriteFile(path, []byte(manifest), 0644))
	return path
}

var batchTests = tests{
	"batch without a manifest is a usage error": func(t *testing.T) {
		_, stderr, exitCode := fsreplay(t, "batch")
		assert.Equal(t, exitCode, 2)
		assert.HasPrefix(t, stderr, "Expected")
	},

	"run jobs and print a json summary": func(t *testing.T) {
		dir := t.TempDir()
		manifest := writeBatch(t, dir, `
jobs:
  - name: create
    program: create.json
    filesystem: tmpfs
  - name: unlink
    program: unlink.yaml
    filesystem: tmpfs
`)
		outputDir := filepath.Join(dir, "out")
		stdout, stderr, exitCode := fsreplay(t, "batch", "-j", "2", "-d", outputDir, "-o", "json", manifest)
		assert.Equal(t, exitCode, 0)
		assert.Equal(t, stderr, "")

		lines := strings.Split(strings.TrimSpace(stdout), "\n")
		assert.Equal(t, len(lines), 2)

		type summary struct {
			Name     string `json:"name"`
			Status   string `json:"status"`
			Syscalls int    `json:"syscalls"`
			Failed   int    `json:"failed"`
		}
		var summaries []summary
		for _, line := range lines {
			var s summary
			assert.OK(t, json.Unmarshal([]byte(line), &s))
			summaries = append(summaries, s)
		}
		assert.Equal(t, summaries[0].Name, "create")
		assert.Equal(t, summaries[0].Status, "ok")
		assert.Equal(t, summaries[0].Syscalls, 3)
		assert.Equal(t, summaries[1].Name, "unlink")
		assert.Equal(t, summaries[1].Failed, 1)

		out, err := os.ReadFile(filepath.Join(outputDir, "create.stdout"))
		assert.OK(t, err)
		assert.Equal(t, string(out), "2 3\n1 2\n74 0\n")

		out, err = os.ReadFile(filepath.Join(outputDir, "unlink.stdout"))
		assert.OK(t, err)
		assert.Equal(t, string(out), "87 -2\n83 0\n")
	},

	"failed jobs are reported on stderr": func(t *testing.T) {
		dir := t.TempDir()
		manifest := writeBatch(t, dir, `
jobs:
  - name: create
    program: create.json
    filesystem: tmpfs
  - name: missing
    program: missing.json
    filesystem: tmpfs
`)
		stdout, stderr, exitCode := fsreplay(t, "batch", "--output-dir", filepath.Join(dir, "out"), manifest)
		assert.Equal(t, exitCode, 1)
		assert.HasPrefix(t, stdout, "JOB")
		assert.Contains(t, stdout, "error")
		assert.HasPrefix(t, stderr, "ERR: fsreplay batch: missing: ")
	},

	"an invalid manifest is reported": func(t *testing.T) {
		dir := t.TempDir()
		manifest := writeBatch(t, dir, "jobs:\n  - image: rootfs.tar\n")
		_, stderr, exitCode := fsreplay(t, "batch", "-d", filepath.Join(dir, "out"), manifest)
		assert.Equal(t, exitCode, 1)
		assert.Contains(t, stderr, "missing program")
	},

	"the number of jobs must be positive": func(t *testing.T) {
		_, _, exitCode := fsreplay(t, "batch", "-j", "0", "batch.yaml")
		assert.Equal(t, exitCode, 2)
	},
}
