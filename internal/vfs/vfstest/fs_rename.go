package vfstest

import (
	"testing"

	"github.com/stealthrocket/fsreplay/internal/assert"
	"github.com/stealthrocket/fsreplay/internal/vfs"
)

var fsTestRename = fsTestSuite{
	"renaming a file that does not exist errors with ENOENT": func(t *testing.T, fsys vfs.FileSystem) {
		d := openRoot(t, fsys)
		assert.Error(t, d.Rename("old", d, "new"), vfs.ENOENT)
	},

	"renaming a file moves it to the new location": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "old", "hello")
		assert.OK(t, vfs.MkdirAll(fsys, "dir", 0755))
		d := openRoot(t, fsys)
		assert.OK(t, d.Rename("old", d, "dir/new"))

		assert.Equal(t, readFile(t, fsys, "dir/new"), "hello")
		_, err := vfs.Stat(fsys, "old")
		assert.Error(t, err, vfs.ENOENT)
	},

	"renaming a file to a location where a file already exists replaces it": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "one", "1")
		writeFile(t, fsys, "two", "2")
		d := openRoot(t, fsys)
		assert.OK(t, d.Rename("two", d, "one"))
		assert.Equal(t, readFile(t, fsys, "one"), "2")
	},

	"renaming a file onto itself does nothing": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "one", "1")
		d := openRoot(t, fsys)
		assert.OK(t, d.Rename("one", d, "one"))
		assert.Equal(t, readFile(t, fsys, "one"), "1")
	},

	"renaming a file to a location where a directory exists errors with EISDIR": func(t *testing.T, fsys vfs.FileSystem) {
		assert.OK(t, vfs.MkdirAll(fsys, "one", 0755))
		writeFile(t, fsys, "two", "2")
		d := openRoot(t, fsys)
		assert.Error(t, d.Rename("two", d, "one"), vfs.EISDIR)
	},

	"renaming a directory over a regular file errors with ENOTDIR": func(t *testing.T, fsys vfs.FileSystem) {
		assert.OK(t, vfs.MkdirAll(fsys, "dir", 0755))
		writeFile(t, fsys, "file", "")
		d := openRoot(t, fsys)
		assert.Error(t, d.Rename("dir", d, "file"), vfs.ENOTDIR)
	},

	"renaming a directory over a non-empty directory errors with ENOTEMPTY": func(t *testing.T, fsys vfs.FileSystem) {
		assert.OK(t, vfs.MkdirAll(fsys, "one", 0755))
		assert.OK(t, vfs.MkdirAll(fsys, "two/sub", 0755))
		d := openRoot(t, fsys)
		assert.Error(t, d.Rename("one", d, "two"), vfs.ENOTEMPTY)
	},

	"renaming a directory into one of its children errors with EINVAL": func(t *testing.T, fsys vfs.FileSystem) {
		assert.OK(t, vfs.MkdirAll(fsys, "a/b", 0755))
		d := openRoot(t, fsys)
		assert.Error(t, d.Rename("a", d, "a/b/c"), vfs.EINVAL)
	},

	"renaming a directory moves its content": func(t *testing.T, fsys vfs.FileSystem) {
		assert.OK(t, vfs.MkdirAll(fsys, "a/b", 0755))
		writeFile(t, fsys, "a/b/file", "hello")
		d := openRoot(t, fsys)
		assert.OK(t, d.Rename("a", d, "c"))
		assert.Equal(t, readFile(t, fsys, "c/b/file"), "hello")
	},
}

var fsTestLink = fsTestSuite{
	"linking a file creates a second name for it": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "one", "hello")
		d := openRoot(t, fsys)
		assert.OK(t, d.Link("one", d, "two", 0))
		assert.Equal(t, readFile(t, fsys, "two"), "hello")

		s, err := vfs.Stat(fsys, "one")
		assert.OK(t, err)
		assert.Equal(t, s.Nlink, 2)
	},

	"linking to a location that exists errors with EEXIST": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "one", "1")
		writeFile(t, fsys, "two", "2")
		d := openRoot(t, fsys)
		assert.Error(t, d.Link("one", d, "two", 0), vfs.EEXIST)
	},

	"linking a directory errors with EPERM": func(t *testing.T, fsys vfs.FileSystem) {
		assert.OK(t, vfs.MkdirAll(fsys, "dir", 0755))
		d := openRoot(t, fsys)
		assert.Error(t, d.Link("dir", d, "link", 0), vfs.EPERM)
	},

	"linking a file that does not exist errors with ENOENT": func(t *testing.T, fsys vfs.FileSystem) {
		d := openRoot(t, fsys)
		assert.Error(t, d.Link("nope", d, "link", 0), vfs.ENOENT)
	},

	"unlinking one of the names of a file keeps the other": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "one", "hello")
		d := openRoot(t, fsys)
		assert.OK(t, d.Link("one", d, "two", 0))
		assert.OK(t, d.Unlink("one"))
		assert.Equal(t, readFile(t, fsys, "two"), "hello")
	},
}

var fsTestSymlink = fsTestSuite{
	"the target of a symbolic link is stored verbatim": func(t *testing.T, fsys vfs.FileSystem) {
		assert.OK(t, openRoot(t, fsys).Symlink("../some//where", "link"))
		target, err := vfs.Readlink(fsys, "link")
		assert.OK(t, err)
		assert.Equal(t, target, "../some//where")
	},

	"creating a symbolic link where a file exists errors with EEXIST": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "file", "")
		assert.Error(t, openRoot(t, fsys).Symlink("target", "file"), vfs.EEXIST)
	},

	"creating a symbolic link to an empty target errors with ENOENT": func(t *testing.T, fsys vfs.FileSystem) {
		assert.Error(t, openRoot(t, fsys).Symlink("", "link"), vfs.ENOENT)
	},

	"reading the target of a regular file errors with EINVAL": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "file", "")
		_, err := vfs.Readlink(fsys, "file")
		assert.Error(t, err, vfs.EINVAL)
	},

	"absolute symbolic links resolve from the root of the file system": func(t *testing.T, fsys vfs.FileSystem) {
		assert.OK(t, vfs.MkdirAll(fsys, "a/b", 0755))
		writeFile(t, fsys, "a/file", "hello")
		assert.OK(t, openRoot(t, fsys).Symlink("/a/file", "a/b/link"))
		assert.Equal(t, readFile(t, fsys, "a/b/link"), "hello")
	},

	"relative symbolic links resolve from the directory holding them": func(t *testing.T, fsys vfs.FileSystem) {
		assert.OK(t, vfs.MkdirAll(fsys, "a/b", 0755))
		writeFile(t, fsys, "a/file", "hello")
		assert.OK(t, openRoot(t, fsys).Symlink("../file", "a/b/link"))
		assert.Equal(t, readFile(t, fsys, "a/b/link"), "hello")
	},
}
