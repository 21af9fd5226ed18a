// Package vfstest contains a conformance test suite run against every
// implementation of vfs.FileSystem. The expectations match the behavior of
// the Linux system calls the file system methods model.
package vfstest

import (
	"sort"
	"testing"

	"golang.org/x/exp/maps"

	"github.com/stealthrocket/fsreplay/internal/assert"
	"github.com/stealthrocket/fsreplay/internal/vfs"
)

// TestFileSystem runs the test suite. The makeFS function is called to create
// an empty file system for each test.
func TestFileSystem(t *testing.T, makeFS func(*testing.T) vfs.FileSystem) {
	t.Run("Open", func(t *testing.T) { fsTestOpen.run(t, makeFS) })
	t.Run("ReadWrite", func(t *testing.T) { fsTestReadWrite.run(t, makeFS) })
	t.Run("Seek", func(t *testing.T) { fsTestSeek.run(t, makeFS) })
	t.Run("Stat", func(t *testing.T) { fsTestStat.run(t, makeFS) })
	t.Run("ReadDirent", func(t *testing.T) { fsTestReadDirent.run(t, makeFS) })
	t.Run("Mkdir", func(t *testing.T) { fsTestMkdir.run(t, makeFS) })
	t.Run("Rmdir", func(t *testing.T) { fsTestRmdir.run(t, makeFS) })
	t.Run("Unlink", func(t *testing.T) { fsTestUnlink.run(t, makeFS) })
	t.Run("Rename", func(t *testing.T) { fsTestRename.run(t, makeFS) })
	t.Run("Link", func(t *testing.T) { fsTestLink.run(t, makeFS) })
	t.Run("Symlink", func(t *testing.T) { fsTestSymlink.run(t, makeFS) })
	t.Run("Xattr", func(t *testing.T) { fsTestXattr.run(t, makeFS) })
}

type fsTestSuite map[string]func(*testing.T, vfs.FileSystem)

func (tests fsTestSuite) run(t *testing.T, makeFS func(*testing.T) vfs.FileSystem) {
	names := maps.Keys(tests)
	sort.Strings(names)

	for _, name := range names {
		test := tests[name]
		t.Run(name, func(t *testing.T) { test(t, makeFS(t)) })
	}
}

func openRoot(t *testing.T, fsys vfs.FileSystem) vfs.File {
	t.Helper()
	d, err := vfs.OpenRoot(fsys)
	assert.OK(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func writeFile(t *testing.T, fsys vfs.FileSystem, name, data string) {
	t.Helper()
	assert.OK(t, vfs.WriteFile(fsys, name, []byte(data), 0644))
}

func readFile(t *testing.T, fsys vfs.FileSystem, name string) string {
	t.Helper()
	b, err := vfs.ReadFile(fsys, name)
	assert.OK(t, err)
	return string(b)
}

func readDir(t *testing.T, f vfs.File) []string {
	t.Helper()
	var names []string
	buf := make([]byte, 1024)
	for {
		n, err := f.ReadDirent(buf)
		assert.OK(t, err)
		if n == 0 {
			break
		}
		for b := buf[:n]; len(b) > 0; {
			size, _, _, _, name, err := vfs.ReadDirent(b)
			assert.OK(t, err)
			names = append(names, string(name))
			b = b[size:]
		}
	}
	sort.Strings(names)
	return names
}
