package vfstest

import (
	"testing"

	"github.com/stealthrocket/fsreplay/internal/assert"
	"github.com/stealthrocket/fsreplay/internal/vfs"
)

var fsTestMkdir = fsTestSuite{
	"creating a directory makes it visible": func(t *testing.T, fsys vfs.FileSystem) {
		assert.OK(t, openRoot(t, fsys).Mkdir("dir", 0755))
		s, err := vfs.Stat(fsys, "dir")
		assert.OK(t, err)
		assert.True(t, s.Mode.IsDir())
	},

	"creating a directory that already exists errors with EEXIST": func(t *testing.T, fsys vfs.FileSystem) {
		d := openRoot(t, fsys)
		assert.OK(t, d.Mkdir("dir", 0755))
		assert.Error(t, d.Mkdir("dir", 0755), vfs.EEXIST)
	},

	"creating a directory over a symbolic link errors with EEXIST": func(t *testing.T, fsys vfs.FileSystem) {
		d := openRoot(t, fsys)
		assert.OK(t, d.Symlink("nope", "link"))
		assert.Error(t, d.Mkdir("link", 0755), vfs.EEXIST)
	},

	"creating a directory in a missing parent errors with ENOENT": func(t *testing.T, fsys vfs.FileSystem) {
		assert.Error(t, openRoot(t, fsys).Mkdir("a/b", 0755), vfs.ENOENT)
	},

	"creating the root directory errors with EEXIST": func(t *testing.T, fsys vfs.FileSystem) {
		assert.Error(t, openRoot(t, fsys).Mkdir("/", 0755), vfs.EEXIST)
	},

	"creating a directory named by a dot-dot element": func(t *testing.T, fsys vfs.FileSystem) {
		d := openRoot(t, fsys)
		assert.OK(t, d.Mkdir("dir", 0755))
		assert.Error(t, d.Mkdir("dir/..", 0755), vfs.EEXIST)
		assert.Error(t, d.Mkdir("nope/..", 0755), vfs.ENOENT)
		assert.OK(t, d.Mkdir("dir/../other", 0755))
		s, err := vfs.Stat(fsys, "other")
		assert.OK(t, err)
		assert.True(t, s.Mode.IsDir())
	},

	"creating nested directories with MkdirAll creates every level": func(t *testing.T, fsys vfs.FileSystem) {
		assert.OK(t, vfs.MkdirAll(fsys, "a/b/c", 0755))
		assert.OK(t, vfs.MkdirAll(fsys, "a/b/c", 0755))
		s, err := vfs.Stat(fsys, "a/b/c")
		assert.OK(t, err)
		assert.True(t, s.Mode.IsDir())
	},
}

var fsTestRmdir = fsTestSuite{
	"removing an empty directory makes it disappear": func(t *testing.T, fsys vfs.FileSystem) {
		d := openRoot(t, fsys)
		assert.OK(t, d.Mkdir("dir", 0755))
		assert.OK(t, d.Rmdir("dir"))
		_, err := vfs.Stat(fsys, "dir")
		assert.Error(t, err, vfs.ENOENT)
	},

	"removing a directory that does not exist errors with ENOENT": func(t *testing.T, fsys vfs.FileSystem) {
		assert.Error(t, openRoot(t, fsys).Rmdir("nope"), vfs.ENOENT)
	},

	"removing a directory that is not empty errors with ENOTEMPTY": func(t *testing.T, fsys vfs.FileSystem) {
		assert.OK(t, vfs.MkdirAll(fsys, "dir/sub", 0755))
		assert.Error(t, openRoot(t, fsys).Rmdir("dir"), vfs.ENOTEMPTY)
	},

	"removing a regular file as a directory errors with ENOTDIR": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "file", "")
		assert.Error(t, openRoot(t, fsys).Rmdir("file"), vfs.ENOTDIR)
	},

	"removing the current directory errors with EINVAL": func(t *testing.T, fsys vfs.FileSystem) {
		assert.OK(t, vfs.MkdirAll(fsys, "dir", 0755))
		assert.Error(t, openRoot(t, fsys).Rmdir("dir/."), vfs.EINVAL)
	},

	"removing the current directory of a subdirectory errors with EINVAL": func(t *testing.T, fsys vfs.FileSystem) {
		assert.OK(t, vfs.MkdirAll(fsys, "dir/sub", 0755))
		d, err := fsys.Open("dir", vfs.O_DIRECTORY, 0)
		assert.OK(t, err)
		defer d.Close()
		assert.Error(t, d.Rmdir("sub/."), vfs.EINVAL)
		assert.Error(t, d.Rmdir("sub/.."), vfs.ENOTEMPTY)
		_, err = vfs.Stat(fsys, "dir/sub")
		assert.OK(t, err)
	},
}

var fsTestUnlink = fsTestSuite{
	"unlinking a file makes it disappear": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "file", "")
		assert.OK(t, openRoot(t, fsys).Unlink("file"))
		_, err := vfs.Stat(fsys, "file")
		assert.Error(t, err, vfs.ENOENT)
	},

	"unlinking a file that does not exist errors with ENOENT": func(t *testing.T, fsys vfs.FileSystem) {
		assert.Error(t, openRoot(t, fsys).Unlink("nope"), vfs.ENOENT)
	},

	"unlinking a directory errors with EISDIR": func(t *testing.T, fsys vfs.FileSystem) {
		assert.OK(t, vfs.MkdirAll(fsys, "dir", 0755))
		assert.Error(t, openRoot(t, fsys).Unlink("dir"), vfs.EISDIR)
	},

	"unlinking a symbolic link removes the link and not its target": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "file", "hello")
		d := openRoot(t, fsys)
		assert.OK(t, d.Symlink("file", "link"))
		assert.OK(t, d.Unlink("link"))
		assert.Equal(t, readFile(t, fsys, "file"), "hello")
	},

	"an unlinked file remains readable through open descriptors": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "file", "hello")
		f, err := fsys.Open("file", vfs.O_RDONLY, 0)
		assert.OK(t, err)
		defer f.Close()

		assert.OK(t, openRoot(t, fsys).Unlink("file"))

		buf := make([]byte, 8)
		n, err := f.Readv([][]byte{buf})
		assert.OK(t, err)
		assert.Equal(t, string(buf[:n]), "hello")
	},
}
