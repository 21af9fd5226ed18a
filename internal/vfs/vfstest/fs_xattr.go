package vfstest

import (
	"errors"
	"testing"

	"github.com/stealthrocket/fsreplay/internal/assert"
	"github.com/stealthrocket/fsreplay/internal/vfs"
)

var fsTestXattr = fsTestSuite{
	"extended attributes can be set, read, listed, and removed": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "file", "")
		d := openRoot(t, fsys)
		setxattrOrSkip(t, d, "file", "user.one", "1")
		assert.OK(t, d.Setxattr("file", "user.two", []byte("22"), 0))

		v, err := vfs.Getxattr(d, "file", "user.two")
		assert.OK(t, err)
		assert.Equal(t, string(v), "22")

		names, err := vfs.Listxattr(d, "file")
		assert.OK(t, err)
		assert.True(t, contains(names, "user.one"))
		assert.True(t, contains(names, "user.two"))

		assert.OK(t, d.Removexattr("file", "user.one"))
		_, err = vfs.Getxattr(d, "file", "user.one")
		assert.Error(t, err, vfs.ENODATA)
	},

	"creating an extended attribute that exists errors with EEXIST": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "file", "")
		d := openRoot(t, fsys)
		setxattrOrSkip(t, d, "file", "user.one", "1")
		assert.Error(t, d.Setxattr("file", "user.one", []byte("2"), vfs.XATTR_CREATE), vfs.EEXIST)
	},

	"replacing an extended attribute that does not exist errors with ENODATA": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "file", "")
		d := openRoot(t, fsys)
		setxattrOrSkip(t, d, "file", "user.one", "1")
		assert.Error(t, d.Setxattr("file", "user.two", []byte("2"), vfs.XATTR_REPLACE), vfs.ENODATA)
	},

	"removing an extended attribute that does not exist errors with ENODATA": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "file", "")
		d := openRoot(t, fsys)
		setxattrOrSkip(t, d, "file", "user.one", "1")
		assert.Error(t, d.Removexattr("file", "user.nope"), vfs.ENODATA)
	},

	"extended attribute names without a namespace error with EOPNOTSUPP": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "file", "")
		d := openRoot(t, fsys)
		setxattrOrSkip(t, d, "file", "user.one", "1")
		assert.Error(t, d.Setxattr("file", "nonamespace", []byte("1"), 0), vfs.EOPNOTSUPP)
	},

	"reading an extended attribute into a short buffer errors with ERANGE": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "file", "")
		d := openRoot(t, fsys)
		setxattrOrSkip(t, d, "file", "user.one", "hello")

		n, err := d.Getxattr("file", "user.one", nil)
		assert.OK(t, err)
		assert.Equal(t, n, 5)

		_, err = d.Getxattr("file", "user.one", make([]byte, 2))
		assert.Error(t, err, vfs.ERANGE)
	},
}

// setxattrOrSkip sets a first attribute on the file, skipping the test if the
// underlying file system does not support user extended attributes.
func setxattrOrSkip(t *testing.T, d vfs.File, name, attr, value string) {
	t.Helper()
	err := d.Setxattr(name, attr, []byte(value), 0)
	if errors.Is(err, vfs.EOPNOTSUPP) {
		t.Skip("extended attributes are not supported:", err)
	}
	assert.OK(t, err)
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
