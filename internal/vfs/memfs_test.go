package vfs_test

import (
	"testing"

	"github.com/stealthrocket/fsreplay/internal/assert"
	"github.com/stealthrocket/fsreplay/internal/vfs"
	"github.com/stealthrocket/fsreplay/internal/vfs/vfstest"
)

func TestMemFS(t *testing.T) {
	vfstest.TestFileSystem(t, func(t *testing.T) vfs.FileSystem {
		return vfs.NewMemFS(0)
	})
}

func TestMemFSLimit(t *testing.T) {
	fsys := vfs.NewMemFS(8)

	f, err := fsys.Open("test", vfs.O_CREAT|vfs.O_WRONLY, 0644)
	assert.OK(t, err)
	defer f.Close()

	n, err := f.Writev([][]byte{[]byte("hello")})
	assert.OK(t, err)
	assert.Equal(t, n, 5)

	// partial writes fill the remaining space before failing
	n, err = f.Writev([][]byte{[]byte("world")})
	assert.OK(t, err)
	assert.Equal(t, n, 3)

	_, err = f.Writev([][]byte{[]byte("!")})
	assert.Error(t, err, vfs.ENOSPC)
	assert.Error(t, f.Truncate(100), vfs.ENOSPC)

	assert.OK(t, f.Truncate(0))
	assert.Equal(t, fsys.Used(), 0)
}

func TestMemFSUnlinkReleasesSpace(t *testing.T) {
	fsys := vfs.NewMemFS(0)
	assert.OK(t, vfs.WriteFile(fsys, "test", []byte("hello"), 0644))
	assert.Equal(t, fsys.Used(), 5)

	d, err := vfs.OpenRoot(fsys)
	assert.OK(t, err)
	defer d.Close()
	assert.OK(t, d.Unlink("test"))
	assert.Equal(t, fsys.Used(), 0)
}

func TestMemFSDirectoryOffsets(t *testing.T) {
	fsys := vfs.NewMemFS(0)
	for _, name := range []string{"a", "b", "c"} {
		assert.OK(t, vfs.WriteFile(fsys, name, nil, 0644))
	}

	d, err := vfs.OpenRoot(fsys)
	assert.OK(t, err)
	defer d.Close()

	// room for exactly two entries with one-letter names
	buf := make([]byte, 2*vfs.SizeOfDirent(2))
	n, err := d.ReadDirent(buf)
	assert.OK(t, err)

	size, _, _, off, name, err := vfs.ReadDirent(buf[:n])
	assert.OK(t, err)
	assert.Equal(t, string(name), ".")
	assert.Equal(t, off, 1)

	_, _, _, _, name, err = vfs.ReadDirent(buf[size:n])
	assert.OK(t, err)
	assert.Equal(t, string(name), "..")

	// rewind to the third entry
	_, err = d.Seek(2, vfs.SEEK_SET)
	assert.OK(t, err)
	n, err = d.ReadDirent(buf)
	assert.OK(t, err)
	_, _, _, _, name, err = vfs.ReadDirent(buf[:n])
	assert.OK(t, err)
	assert.Equal(t, string(name), "a")
}

func TestMemFSClosedFile(t *testing.T) {
	fsys := vfs.NewMemFS(0)
	f, err := fsys.Open("test", vfs.O_CREAT|vfs.O_RDWR, 0644)
	assert.OK(t, err)
	assert.OK(t, f.Close())

	_, err = f.Writev([][]byte{[]byte("x")})
	assert.Error(t, err, vfs.EBADF)
	assert.Error(t, f.Close(), vfs.EBADF)
}

func TestMemFSRemovedDirectory(t *testing.T) {
	fsys := vfs.NewMemFS(0)
	assert.OK(t, vfs.MkdirAll(fsys, "dir", 0755))

	d, err := vfs.OpenDir(fsys, "dir")
	assert.OK(t, err)
	defer d.Close()

	root, err := vfs.OpenRoot(fsys)
	assert.OK(t, err)
	defer root.Close()
	assert.OK(t, root.Rmdir("dir"))

	_, err = d.Open("test", vfs.O_CREAT|vfs.O_WRONLY, 0644)
	assert.Error(t, err, vfs.ENOENT)
}

func TestMemFSXattrList(t *testing.T) {
	fsys := vfs.NewMemFS(0)
	assert.OK(t, vfs.WriteFile(fsys, "test", nil, 0644))

	d, err := vfs.OpenRoot(fsys)
	assert.OK(t, err)
	defer d.Close()

	assert.OK(t, d.Setxattr("test", "user.b", []byte("2"), 0))
	assert.OK(t, d.Setxattr("test", "user.a", []byte("1"), 0))

	size, err := d.Listxattr("test", nil)
	assert.OK(t, err)
	assert.Equal(t, size, len("user.a\x00user.b\x00"))

	_, err = d.Listxattr("test", make([]byte, 3))
	assert.Error(t, err, vfs.ERANGE)

	buf := make([]byte, size)
	n, err := d.Listxattr("test", buf)
	assert.OK(t, err)
	assert.Equal(t, string(buf[:n]), "user.a\x00user.b\x00")

	assert.Error(t, d.Setxattr("test", "", nil, 0), vfs.ERANGE)
	assert.Error(t, d.Setxattr("test", "user.c", make([]byte, vfs.XATTR_SIZE_MAX+1), 0), vfs.E2BIG)
	assert.Error(t, d.Setxattr("test", "user.c", nil, 42), vfs.EINVAL)
}
