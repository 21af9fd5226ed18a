package vfstest

import (
	"io/fs"
	"testing"

	"github.com/stealthrocket/fsreplay/internal/assert"
	"github.com/stealthrocket/fsreplay/internal/vfs"
)

var fsTestStat = fsTestSuite{
	"stat of a file that does not exist errors with ENOENT": func(t *testing.T, fsys vfs.FileSystem) {
		_, err := vfs.Stat(fsys, "nope")
		assert.Error(t, err, vfs.ENOENT)
	},

	"stat of a regular file reports its size and permissions": func(t *testing.T, fsys vfs.FileSystem) {
		f, err := fsys.Open("test", vfs.O_CREAT|vfs.O_WRONLY, 0600)
		assert.OK(t, err)
		_, err = f.Writev([][]byte{[]byte("hello")})
		assert.OK(t, err)
		assert.OK(t, f.Close())

		s, err := vfs.Stat(fsys, "test")
		assert.OK(t, err)
		assert.Equal(t, s.Mode, 0600)
		assert.Equal(t, s.Size, 5)
		assert.Equal(t, s.Nlink, 1)
	},

	"stat of a directory reports a directory mode": func(t *testing.T, fsys vfs.FileSystem) {
		assert.OK(t, vfs.MkdirAll(fsys, "dir", 0755))
		s, err := vfs.Stat(fsys, "dir")
		assert.OK(t, err)
		assert.True(t, s.Mode.IsDir())
		assert.Equal(t, s.Mode.Perm(), 0755)
	},

	"stat follows symbolic links, lstat does not": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "file", "hello")
		assert.OK(t, openRoot(t, fsys).Symlink("file", "link"))

		s, err := vfs.Stat(fsys, "link")
		assert.OK(t, err)
		assert.True(t, s.Mode.IsRegular())
		assert.Equal(t, s.Size, 5)

		s, err = vfs.Lstat(fsys, "link")
		assert.OK(t, err)
		assert.Equal(t, s.Mode.Type(), fs.ModeSymlink)
		assert.Equal(t, s.Size, 4)
	},

	"stat of a name with a trailing slash on a regular file errors with ENOTDIR": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "file", "hello")
		_, err := vfs.Stat(fsys, "file/")
		assert.Error(t, err, vfs.ENOTDIR)
	},

	"stat of an open file with an empty name returns the file metadata": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "file", "hello")
		f, err := fsys.Open("file", vfs.O_RDONLY, 0)
		assert.OK(t, err)
		defer f.Close()

		s1, err := f.Stat("", 0)
		assert.OK(t, err)
		s2, err := vfs.Stat(fsys, "file")
		assert.OK(t, err)
		assert.Equal(t, s1.Ino, s2.Ino)
	},
}

var fsTestReadDirent = fsTestSuite{
	"reading a directory lists its entries": func(t *testing.T, fsys vfs.FileSystem) {
		assert.OK(t, vfs.MkdirAll(fsys, "dir/sub", 0755))
		writeFile(t, fsys, "dir/a", "")
		writeFile(t, fsys, "dir/b", "")

		d, err := vfs.OpenDir(fsys, "dir")
		assert.OK(t, err)
		defer d.Close()
		assert.EqualAll(t, readDir(t, d), []string{".", "..", "a", "b", "sub"})
	},

	"reading a directory with a buffer too small for one entry errors with EINVAL": func(t *testing.T, fsys vfs.FileSystem) {
		d := openRoot(t, fsys)
		_, err := d.ReadDirent(make([]byte, 8))
		assert.Error(t, err, vfs.EINVAL)
	},

	"reading a regular file as a directory errors with ENOTDIR": func(t *testing.T, fsys vfs.FileSystem) {
		writeFile(t, fsys, "file", "")
		f, err := fsys.Open("file", vfs.O_RDONLY, 0)
		assert.OK(t, err)
		defer f.Close()
		_, err = f.ReadDirent(make([]byte, 1024))
		assert.Error(t, err, vfs.ENOTDIR)
	},

	"directory entries carry the type of the files": func(t *testing.T, fsys vfs.FileSystem) {
		assert.OK(t, vfs.MkdirAll(fsys, "dir", 0755))
		writeFile(t, fsys, "file", "")

		buf := make([]byte, 1024)
		n, err := openRoot(t, fsys).ReadDirent(buf)
		assert.OK(t, err)

		types := map[string]fs.FileMode{}
		for b := buf[:n]; len(b) > 0; {
			size, typ, _, _, name, err := vfs.ReadDirent(b)
			assert.OK(t, err)
			types[string(name)] = typ
			b = b[size:]
		}
		assert.Equal(t, types["dir"], fs.ModeDir)
		assert.Equal(t, types["file"], 0)
	},
}
