package vfstest

import (
	"testing"

	"github.com/stealthrocket/fsreplay/internal/assert"
	"github.com/stealthrocket/fsreplay/internal/vfs"
)

var fsTestOpen = fsTestSuite{
	"opening a file that does not exist errors with ENOENT": func(t *testing.T, fsys vfs.FileSystem) {
		_, err := fsys.Open("nope", vfs.O_RDONLY, 0)
		assert.Error(t, err, vfs.ENOENT)
	},

	"opening a file with O_CREAT creates it": func(t *testing.T, fsys vfs.FileSystem) {
		f, err := fsys.Open("test", vfs.O_CREAT|vfs.O_WRONLY, 0644)
		assert.OK(t, err)
		assert.OK(t, f.Close())

		s, err := vfs.Stat(fsys, "test")
		assert.OK(t, err)
		assert.True(t, s.Mode.IsRegular())
		assert.Equal(t, s.Size, 0)
	},

	"opening an existing file with O_CREAT|O_EXCL errors with EEXIST": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "test", "hello")
		_, err := fsys.Open("test", vfs.O_CREAT|vfs.O_EXCL|vfs.O_WRONLY, 0644)
		assert.Error(t, err, vfs.EEXIST)
	},

	"opening a file with O_TRUNC drops its content": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "test", "hello")
		f, err := fsys.Open("test", vfs.O_TRUNC|vfs.O_WRONLY, 0)
		assert.OK(t, err)
		assert.OK(t, f.Close())
		assert.Equal(t, readFile(t, fsys, "test"), "")
	},

	"opening a file in a directory that does not exist errors with ENOENT": func(t *testing.T, fsys vfs.FileSystem) {
		_, err := fsys.Open("nope/test", vfs.O_CREAT|vfs.O_WRONLY, 0644)
		assert.Error(t, err, vfs.ENOENT)
	},

	"opening a file below a regular file errors with ENOTDIR": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "file", "")
		_, err := fsys.Open("file/test", vfs.O_RDONLY, 0)
		assert.Error(t, err, vfs.ENOTDIR)
	},

	"opening a regular file with O_DIRECTORY errors with ENOTDIR": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "file", "")
		_, err := fsys.Open("file", vfs.O_DIRECTORY, 0)
		assert.Error(t, err, vfs.ENOTDIR)
	},

	"opening a directory for writing errors with EISDIR": func(t *testing.T, fsys vfs.FileSystem) {
		assert.OK(t, vfs.MkdirAll(fsys, "dir", 0755))
		_, err := fsys.Open("dir", vfs.O_WRONLY, 0)
		assert.Error(t, err, vfs.EISDIR)
	},

	"opening a symbolic link with O_NOFOLLOW errors with ELOOP": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "file", "")
		assert.OK(t, openRoot(t, fsys).Symlink("file", "link"))
		_, err := fsys.Open("link", vfs.O_RDONLY|vfs.O_NOFOLLOW, 0)
		assert.Error(t, err, vfs.ELOOP)
	},

	"opening a symbolic link follows it to its target": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "file", "hello")
		assert.OK(t, openRoot(t, fsys).Symlink("file", "link"))
		assert.Equal(t, readFile(t, fsys, "link"), "hello")
	},

	"opening a symbolic link loop errors with ELOOP": func(t *testing.T, fsys vfs.FileSystem) {
		d := openRoot(t, fsys)
		assert.OK(t, d.Symlink("b", "a"))
		assert.OK(t, d.Symlink("a", "b"))
		_, err := fsys.Open("a", vfs.O_RDONLY, 0)
		assert.Error(t, err, vfs.ELOOP)
	},

	"parent references do not escape the root directory": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "test", "hello")
		assert.Equal(t, readFile(t, fsys, "../../test"), "hello")
	},

	"opening a file relative to a directory resolves the name from it": func(t *testing.T, fsys vfs.FileSystem) {
		assert.OK(t, vfs.MkdirAll(fsys, "a/b", 0755))
		writeFile(t, fsys, "a/b/test", "hello")

		d, err := vfs.OpenDir(fsys, "a")
		assert.OK(t, err)
		defer d.Close()

		f, err := d.Open("b/test", vfs.O_RDONLY, 0)
		assert.OK(t, err)
		defer f.Close()

		buf := make([]byte, 8)
		n, err := f.Readv([][]byte{buf})
		assert.OK(t, err)
		assert.Equal(t, string(buf[:n]), "hello")
	},
}
