package vfstest

import (
	"testing"

	"github.com/stealthrocket/fsreplay/internal/assert"
	"github.com/stealthrocket/fsreplay/internal/vfs"
)

var fsTestReadWrite = fsTestSuite{
	"data written to a file can be read back": func(t *testing.T, fsys vfs.FileSystem) {
		f, err := fsys.Open("test", vfs.O_CREAT|vfs.O_RDWR, 0644)
		assert.OK(t, err)
		defer f.Close()

		n, err := f.Writev([][]byte{[]byte("hello "), []byte("world")})
		assert.OK(t, err)
		assert.Equal(t, n, 11)

		buf := make([]byte, 16)
		n, err = f.Preadv([][]byte{buf}, 6)
		assert.OK(t, err)
		assert.Equal(t, string(buf[:n]), "world")

		// the seek offset is at the end of the file after the write
		n, err = f.Readv([][]byte{buf})
		assert.OK(t, err)
		assert.Equal(t, n, 0)
	},

	"writing at an offset past the end of file fills the gap with zeros": func(t *testing.T, fsys vfs.FileSystem) {
		f, err := fsys.Open("test", vfs.O_CREAT|vfs.O_WRONLY, 0644)
		assert.OK(t, err)
		_, err = f.Pwritev([][]byte{[]byte("x")}, 3)
		assert.OK(t, err)
		assert.OK(t, f.Close())
		assert.Equal(t, readFile(t, fsys, "test"), "\x00\x00\x00x")
	},

	"writes to a file opened with O_APPEND go to the end": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "test", "hello")
		f, err := fsys.Open("test", vfs.O_APPEND|vfs.O_WRONLY, 0)
		assert.OK(t, err)
		_, err = f.Writev([][]byte{[]byte("!")})
		assert.OK(t, err)
		assert.OK(t, f.Close())
		assert.Equal(t, readFile(t, fsys, "test"), "hello!")
	},

	"writing to a file opened read-only errors with EBADF": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "test", "hello")
		f, err := fsys.Open("test", vfs.O_RDONLY, 0)
		assert.OK(t, err)
		defer f.Close()
		_, err = f.Writev([][]byte{[]byte("!")})
		assert.Error(t, err, vfs.EBADF)
	},

	"reading from a file opened write-only errors with EBADF": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "test", "hello")
		f, err := fsys.Open("test", vfs.O_WRONLY, 0)
		assert.OK(t, err)
		defer f.Close()
		_, err = f.Readv([][]byte{make([]byte, 4)})
		assert.Error(t, err, vfs.EBADF)
	},

	"reading from a directory errors with EISDIR": func(t *testing.T, fsys vfs.FileSystem) {
		d := openRoot(t, fsys)
		_, err := d.Readv([][]byte{make([]byte, 4)})
		assert.Error(t, err, vfs.EISDIR)
	},

	"reading at a negative offset errors with EINVAL": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "test", "hello")
		f, err := fsys.Open("test", vfs.O_RDONLY, 0)
		assert.OK(t, err)
		defer f.Close()
		_, err = f.Preadv([][]byte{make([]byte, 4)}, -1)
		assert.Error(t, err, vfs.EINVAL)
	},

	"truncating a file changes its size": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "test", "hello")
		f, err := fsys.Open("test", vfs.O_WRONLY, 0)
		assert.OK(t, err)
		assert.OK(t, f.Truncate(2))
		s, err := f.Stat("", 0)
		assert.OK(t, err)
		assert.Equal(t, s.Size, 2)
		assert.OK(t, f.Truncate(4))
		assert.OK(t, f.Close())
		assert.Equal(t, readFile(t, fsys, "test"), "he\x00\x00")
	},

	"truncating a file opened read-only errors with EINVAL": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "test", "hello")
		f, err := fsys.Open("test", vfs.O_RDONLY, 0)
		assert.OK(t, err)
		defer f.Close()
		assert.Error(t, f.Truncate(0), vfs.EINVAL)
	},

	"syncing a file succeeds": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "test", "hello")
		f, err := fsys.Open("test", vfs.O_RDWR, 0)
		assert.OK(t, err)
		defer f.Close()
		assert.OK(t, f.Sync())
		assert.OK(t, f.Datasync())
	},
}

var fsTestSeek = fsTestSuite{
	"seeking positions the offset of the next read": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "test", "hello world")
		f, err := fsys.Open("test", vfs.O_RDONLY, 0)
		assert.OK(t, err)
		defer f.Close()

		off, err := f.Seek(6, vfs.SEEK_SET)
		assert.OK(t, err)
		assert.Equal(t, off, 6)

		buf := make([]byte, 3)
		n, err := f.Readv([][]byte{buf})
		assert.OK(t, err)
		assert.Equal(t, string(buf[:n]), "wor")

		off, err = f.Seek(-1, vfs.SEEK_CUR)
		assert.OK(t, err)
		assert.Equal(t, off, 8)

		off, err = f.Seek(-2, vfs.SEEK_END)
		assert.OK(t, err)
		assert.Equal(t, off, 9)
	},

	"seeking to a negative offset errors with EINVAL": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "test", "hello")
		f, err := fsys.Open("test", vfs.O_RDONLY, 0)
		assert.OK(t, err)
		defer f.Close()
		_, err = f.Seek(-10, vfs.SEEK_END)
		assert.Error(t, err, vfs.EINVAL)
	},

	"seeking with an invalid whence errors with EINVAL": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "test", "hello")
		f, err := fsys.Open("test", vfs.O_RDONLY, 0)
		assert.OK(t, err)
		defer f.Close()
		_, err = f.Seek(0, 42)
		assert.Error(t, err, vfs.EINVAL)
	},

	"seeking past the end of file is permitted": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "test", "hello")
		f, err := fsys.Open("test", vfs.O_RDONLY, 0)
		assert.OK(t, err)
		defer f.Close()
		off, err := f.Seek(100, vfs.SEEK_SET)
		assert.OK(t, err)
		assert.Equal(t, off, 100)
		n, err := f.Readv([][]byte{make([]byte, 4)})
		assert.OK(t, err)
		assert.Equal(t, n, 0)
	},
}
