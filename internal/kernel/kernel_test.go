package kernel_test

import (
	"archive/tar"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"golang.org/x/exp/maps"
	"golang.org/x/sys/unix"

	"github.com/stealthrocket/fsreplay/internal/assert"
	"github.com/stealthrocket/fsreplay/internal/kernel"
	"github.com/stealthrocket/fsreplay/internal/vfs"
)

func path(s string) []byte { return append([]byte(s), 0) }

func code(errno unix.Errno) int64 { return -int64(errno) }

const (
	O_RDONLY = unix.O_RDONLY
	O_WRONLY = unix.O_WRONLY
	O_RDWR   = unix.O_RDWR
	O_CREAT  = unix.O_CREAT
	O_EXCL   = unix.O_EXCL
	O_APPEND = unix.O_APPEND
	O_DIR    = unix.O_DIRECTORY
)

func mountTmpfs(t *testing.T, boot string) *kernel.Kernel {
	t.Helper()
	k, err := kernel.Mount(context.Background(), kernel.Options{
		FileSystem: kernel.FileSystemTmpfs,
		Boot:       boot,
	})
	assert.OK(t, err)
	t.Cleanup(func() { k.Unmount() })
	return k
}

func writeTar(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	assert.OK(t, err)
	defer f.Close()

	w := tar.NewWriter(f)
	names := maps.Keys(files)
	sort.Strings(names)
	for _, name := range names {
		data := files[name]
		assert.OK(t, w.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0644,
			Size:     int64(len(data)),
		}))
		_, err := w.Write([]byte(data))
		assert.OK(t, err)
	}
	assert.OK(t, w.Close())
}

var kernelTests = map[string]func(*testing.T, *kernel.Kernel){
	"create, write, and read back a file": func(t *testing.T, k *kernel.Kernel) {
		fd := k.Open(path("/mnt/image/x"), O_CREAT|O_WRONLY, 0644)
		assert.Equal(t, fd, 3)
		assert.Equal(t, k.Write(int32(fd), []byte("hi"), 2), 2)
		assert.Equal(t, k.Fsync(int32(fd)), 0)
		assert.Equal(t, k.Fdatasync(int32(fd)), 0)
		assert.Equal(t, k.Close(int32(fd)), 0)

		b, err := vfs.ReadFile(k.FS(), "x")
		assert.OK(t, err)
		assert.Equal(t, string(b), "hi")

		fd = k.Open(path("/mnt/image/x"), O_RDONLY, 0)
		buf := make([]byte, 8)
		assert.Equal(t, k.Read(int32(fd), buf, 8), 2)
		assert.Equal(t, string(buf[:2]), "hi")
		assert.Equal(t, k.Read(int32(fd), buf, 8), 0)
	},

	"descriptors are allocated from the lowest free number": func(t *testing.T, k *kernel.Kernel) {
		assert.Equal(t, k.Open(path("/mnt/image/a"), O_CREAT|O_RDWR, 0644), 3)
		assert.Equal(t, k.Open(path("/mnt/image/b"), O_CREAT|O_RDWR, 0644), 4)
		assert.Equal(t, k.Close(3), 0)
		assert.Equal(t, k.Open(path("/mnt/image/c"), O_CREAT|O_RDWR, 0644), 3)
		assert.Equal(t, k.OpenFiles(), 2)
	},

	"invalid descriptors": func(t *testing.T, k *kernel.Kernel) {
		buf := make([]byte, 4)
		assert.Equal(t, k.Close(0), code(unix.EBADF))
		assert.Equal(t, k.Close(-1), code(unix.EBADF))
		assert.Equal(t, k.Read(42, buf, 4), code(unix.EBADF))
		assert.Equal(t, k.Write(3, buf, 4), code(unix.EBADF))
		assert.Equal(t, k.Lseek(3, 0, 0), code(unix.EBADF))
		assert.Equal(t, k.Fsync(3), code(unix.EBADF))
		assert.Equal(t, k.Syncfs(3), code(unix.EBADF))
		assert.Equal(t, k.Fstat(3, new(kernel.Stat)), code(unix.EBADF))
	},

	"malformed paths": func(t *testing.T, k *kernel.Kernel) {
		assert.Equal(t, k.Open([]byte("/mnt/image/x"), O_RDONLY, 0), code(unix.EFAULT))
		assert.Equal(t, k.Open(path(""), O_RDONLY, 0), code(unix.ENOENT))
		long := make([]byte, vfs.PATH_MAX)
		for i := range long {
			long[i] = 'a'
		}
		assert.Equal(t, k.Mkdir(path(string(long)), 0755), code(unix.ENAMETOOLONG))
	},

	"dot-dot elements are resolved in the namespace": func(t *testing.T, k *kernel.Kernel) {
		assert.Equal(t, k.Mkdir(path("/mnt/image/../image/d"), 0755), 0)
		_, err := vfs.Stat(k.FS(), "d")
		assert.OK(t, err)

		assert.Equal(t, k.Access(path("/mnt/image/../../../mnt/image/d"), kernel.F_OK), 0)
		assert.Equal(t, k.Access(path("/mnt/image/../../d"), kernel.F_OK), code(unix.ENOENT))
		assert.Equal(t, k.Access(path("/mnt/image/d/"), kernel.F_OK), 0)
	},

	"dot and dot-dot elements below the mount point reach the file system": func(t *testing.T, k *kernel.Kernel) {
		assert.Equal(t, k.Mkdir(path("/mnt/image/d"), 0755), 0)
		assert.Equal(t, k.Rmdir(path("/mnt/image/d/.")), code(unix.EINVAL))
		assert.Equal(t, k.Rmdir(path("/mnt/image/d/..")), code(unix.ENOTEMPTY))
		assert.Equal(t, k.Rmdir(path("/mnt/image/.")), code(unix.EINVAL))
		assert.Equal(t, k.Access(path("/mnt/image/d"), kernel.F_OK), 0)

		assert.Equal(t, k.Mkdir(path("/mnt/image/d2/.."), 0755), code(unix.ENOENT))
		assert.Equal(t, k.Mkdir(path("/mnt/image/d/.."), 0755), code(unix.EEXIST))
		assert.Equal(t, k.Mkdir(path("/mnt/image/d/../e"), 0755), 0)

		assert.Equal(t, k.Close(int32(k.Open(path("/mnt/image/f"), O_CREAT|O_WRONLY, 0644))), 0)
		assert.Equal(t, k.Open(path("/mnt/image/f/../g"), O_CREAT|O_WRONLY, 0644), code(unix.ENOTDIR))
		assert.Equal(t, k.Access(path("/mnt/image/g"), kernel.F_OK), code(unix.ENOENT))
		assert.Equal(t, k.Unlink(path("/mnt/image/d/.")), code(unix.EISDIR))
	},

	"dot elements outside of the mount point": func(t *testing.T, k *kernel.Kernel) {
		assert.Equal(t, k.Mkdir(path("/tmp"), 0755), 0)
		assert.Equal(t, k.Rmdir(path("/tmp/.")), code(unix.EINVAL))
		assert.Equal(t, k.Access(path("/tmp"), kernel.F_OK), 0)
		assert.Equal(t, k.Access(path("/mnt/image/.."), kernel.F_OK), 0)
	},

	"relative paths are resolved from the root": func(t *testing.T, k *kernel.Kernel) {
		assert.Equal(t, k.Mkdir(path("mnt/image/d"), 0755), 0)
		assert.Equal(t, k.Access(path("/mnt/image/d"), kernel.F_OK), 0)
	},

	"paths outside of the mount point": func(t *testing.T, k *kernel.Kernel) {
		assert.Equal(t, k.Mkdir(path("/tmp"), 0755), 0)
		fd := k.Open(path("/tmp/a"), O_CREAT|O_WRONLY, 0644)
		assert.Equal(t, fd, 3)
		assert.Equal(t, k.Rename(path("/tmp/a"), path("/mnt/image/a")), code(unix.EXDEV))
		assert.Equal(t, k.Link(path("/tmp/a"), path("/mnt/image/a")), code(unix.EXDEV))
		assert.Equal(t, k.Rename(path("/tmp/a"), path("/tmp/b")), 0)

		_, err := vfs.Stat(k.FS(), "tmp")
		assert.Error(t, err, vfs.ENOENT)
	},

	"mount points are busy": func(t *testing.T, k *kernel.Kernel) {
		assert.Equal(t, k.Rmdir(path("/mnt/image")), code(unix.EBUSY))
		assert.Equal(t, k.Rmdir(path("/mnt/image/")), code(unix.EBUSY))
		assert.Equal(t, k.Rmdir(path("/mnt")), code(unix.EBUSY))
		assert.Equal(t, k.Unlink(path("/mnt/image")), code(unix.EBUSY))
		assert.Equal(t, k.Rename(path("/mnt/image"), path("/mnt/other")), code(unix.EBUSY))
		assert.Equal(t, k.Mkdir(path("/mnt/image"), 0755), code(unix.EEXIST))
	},

	"seek and positional reads and writes": func(t *testing.T, k *kernel.Kernel) {
		fd := int32(k.Open(path("/mnt/image/f"), O_CREAT|O_RDWR, 0644))
		assert.Equal(t, k.Pwrite64(fd, []byte("hello world"), 11, 0), 11)
		assert.Equal(t, k.Lseek(fd, 0, vfs.SEEK_CUR), 0)
		assert.Equal(t, k.Lseek(fd, 6, vfs.SEEK_SET), 6)

		buf := make([]byte, 5)
		assert.Equal(t, k.Read(fd, buf, 5), 5)
		assert.Equal(t, string(buf), "world")

		assert.Equal(t, k.Pread64(fd, buf, 5, 0), 5)
		assert.Equal(t, string(buf), "hello")
		assert.Equal(t, k.Pread64(fd, buf, 5, -1), code(unix.EINVAL))
		assert.Equal(t, k.Pread64(fd, buf, 6, 0), code(unix.EFAULT))
		assert.Equal(t, k.Read(fd, buf, 6), code(unix.EFAULT))

		assert.Equal(t, k.Lseek(fd, 0, vfs.SEEK_END), 11)
		assert.Equal(t, k.Lseek(fd, 0, 3), code(unix.EINVAL))
		assert.Equal(t, k.Lseek(fd, -20, vfs.SEEK_END), code(unix.EINVAL))
	},

	"reading directory entries": func(t *testing.T, k *kernel.Kernel) {
		assert.Equal(t, k.Mkdir(path("/mnt/image/d"), 0755), 0)
		assert.Equal(t, k.Close(int32(k.Open(path("/mnt/image/d/a"), O_CREAT|O_WRONLY, 0644))), 0)

		fd := int32(k.Open(path("/mnt/image/d"), O_RDONLY|O_DIR, 0))
		assert.Equal(t, fd, 3)

		buf := make([]byte, 1024)
		n := k.Getdents64(fd, buf, 1024)
		assert.Equal(t, n, int64(vfs.SizeOfDirent(1)+vfs.SizeOfDirent(2)+vfs.SizeOfDirent(1)))
		assert.Equal(t, k.Getdents64(fd, buf, 1024), 0)
		assert.Equal(t, k.Getdents64(fd, buf, 2048), code(unix.EFAULT))

		f := int32(k.Open(path("/mnt/image/d/a"), O_RDONLY, 0))
		assert.Equal(t, k.Getdents64(f, buf, 1024), code(unix.ENOTDIR))
		assert.Equal(t, k.Read(fd, buf, 10), code(unix.EISDIR))
	},

	"file status": func(t *testing.T, k *kernel.Kernel) {
		fd := int32(k.Open(path("/mnt/image/f"), O_CREAT|O_RDWR, 0640))
		assert.Equal(t, k.Write(fd, []byte("abc"), 3), 3)

		var st kernel.Stat
		assert.Equal(t, k.Fstat(fd, &st), 0)
		assert.Equal(t, st.Mode, uint32(unix.S_IFREG|0640))
		assert.Equal(t, st.Size, 3)
		assert.Equal(t, st.Nlink, 1)
		assert.Equal(t, st.Blksize, 4096)

		dir := int32(k.Open(path("/mnt/image"), O_RDONLY|O_DIR, 0))
		assert.Equal(t, k.Fstat(dir, &st), 0)
		assert.Equal(t, st.Mode&unix.S_IFMT, uint32(unix.S_IFDIR))
		assert.Equal(t, k.Fstat(dir, nil), code(unix.EFAULT))
	},

	"truncate files": func(t *testing.T, k *kernel.Kernel) {
		fd := int32(k.Open(path("/mnt/image/f"), O_CREAT|O_RDWR, 0644))
		assert.Equal(t, k.Ftruncate(fd, 10), 0)
		assert.Equal(t, k.Lseek(fd, 0, vfs.SEEK_END), 10)
		assert.Equal(t, k.Ftruncate(fd, -1), code(unix.EINVAL))

		assert.Equal(t, k.Truncate(path("/mnt/image/f"), 4), 0)
		assert.Equal(t, k.Lseek(fd, 0, vfs.SEEK_END), 4)
		assert.Equal(t, k.Truncate(path("/mnt/image/nope"), 4), code(unix.ENOENT))
		assert.Equal(t, k.Truncate(path("/mnt/image"), 0), code(unix.EISDIR))

		ro := int32(k.Open(path("/mnt/image/f"), O_RDONLY, 0))
		assert.Equal(t, k.Ftruncate(ro, 0), code(unix.EINVAL))
	},

	"make and remove directories": func(t *testing.T, k *kernel.Kernel) {
		assert.Equal(t, k.Mkdir(path("/mnt/image/d"), 0755), 0)
		assert.Equal(t, k.Mkdir(path("/mnt/image/d"), 0755), code(unix.EEXIST))
		assert.Equal(t, k.Mkdir(path("/mnt/image/d/e/"), 0755), 0)
		assert.Equal(t, k.Mkdir(path("/mnt/image/x/y"), 0755), code(unix.ENOENT))
		assert.Equal(t, k.Rmdir(path("/mnt/image/d")), code(unix.ENOTEMPTY))
		assert.Equal(t, k.Unlink(path("/mnt/image/d")), code(unix.EISDIR))
		assert.Equal(t, k.Rmdir(path("/mnt/image/d/e")), 0)
		assert.Equal(t, k.Rmdir(path("/mnt/image/d/")), 0)
		assert.Equal(t, k.Rmdir(path("/mnt/image/d")), code(unix.ENOENT))
	},

	"unlink missing file": func(t *testing.T, k *kernel.Kernel) {
		ret := k.Unlink(path("/mnt/image/nope"))
		assert.Equal(t, ret, code(unix.ENOENT))
		assert.Equal(t, kernel.Describe(ret), "ENOENT: no such file or directory")
	},

	"rename files": func(t *testing.T, k *kernel.Kernel) {
		assert.Equal(t, k.Close(int32(k.Open(path("/mnt/image/a"), O_CREAT|O_WRONLY, 0644))), 0)
		assert.Equal(t, k.Rename(path("/mnt/image/a"), path("/mnt/image/b")), 0)
		assert.Equal(t, k.Access(path("/mnt/image/a"), kernel.F_OK), code(unix.ENOENT))
		assert.Equal(t, k.Access(path("/mnt/image/b"), kernel.F_OK), 0)
		assert.Equal(t, k.Rename(path("/mnt/image/a"), path("/mnt/image/b")), code(unix.ENOENT))
	},

	"hard and symbolic links": func(t *testing.T, k *kernel.Kernel) {
		fd := int32(k.Open(path("/mnt/image/x"), O_CREAT|O_WRONLY, 0644))
		assert.Equal(t, k.Write(fd, []byte("data"), 4), 4)

		assert.Equal(t, k.Link(path("/mnt/image/x"), path("/mnt/image/y")), 0)
		assert.Equal(t, k.Link(path("/mnt/image/x"), path("/mnt/image/y")), code(unix.EEXIST))

		var st kernel.Stat
		assert.Equal(t, k.Fstat(fd, &st), 0)
		assert.Equal(t, st.Nlink, 2)

		assert.Equal(t, k.Symlink(path("/mnt/image/x"), path("/mnt/image/abs")), 0)
		assert.Equal(t, k.Symlink(path("y"), path("/mnt/image/rel")), 0)
		assert.Equal(t, k.Symlink(path(""), path("/mnt/image/empty")), code(unix.ENOENT))

		target, err := vfs.Readlink(k.FS(), "abs")
		assert.OK(t, err)
		assert.Equal(t, target, "/x")

		buf := make([]byte, 4)
		for _, name := range []string{"/mnt/image/abs", "/mnt/image/rel"} {
			fd := int32(k.Open(path(name), O_RDONLY, 0))
			assert.Equal(t, k.Read(fd, buf, 4), 4)
			assert.Equal(t, string(buf), "data")
		}
	},

	"access modes": func(t *testing.T, k *kernel.Kernel) {
		assert.Equal(t, k.Close(int32(k.Open(path("/mnt/image/f"), O_CREAT|O_WRONLY, 0644))), 0)
		assert.Equal(t, k.Close(int32(k.Open(path("/mnt/image/g"), O_CREAT|O_WRONLY, 0755))), 0)

		assert.Equal(t, k.Access(path("/mnt/image/f"), kernel.R_OK|kernel.W_OK), 0)
		assert.Equal(t, k.Access(path("/mnt/image/f"), kernel.X_OK), code(unix.EACCES))
		assert.Equal(t, k.Access(path("/mnt/image/g"), kernel.X_OK), 0)
		assert.Equal(t, k.Access(path("/mnt/image"), kernel.X_OK), 0)
		assert.Equal(t, k.Access(path("/mnt/image/f"), 8), code(unix.EINVAL))
		assert.Equal(t, k.Access(path("/mnt/image/nope"), kernel.F_OK), code(unix.ENOENT))
	},

	"send file": func(t *testing.T, k *kernel.Kernel) {
		in := int32(k.Open(path("/mnt/image/in"), O_CREAT|O_RDWR, 0644))
		out := int32(k.Open(path("/mnt/image/out"), O_CREAT|O_RDWR, 0644))
		assert.Equal(t, k.Write(in, []byte("0123456789"), 10), 10)

		offset := int64(2)
		assert.Equal(t, k.Sendfile(out, in, &offset, 4), 4)
		assert.Equal(t, offset, 6)
		assert.Equal(t, k.Lseek(in, 0, vfs.SEEK_CUR), 10)

		assert.Equal(t, k.Lseek(in, 8, vfs.SEEK_SET), 8)
		assert.Equal(t, k.Sendfile(out, in, nil, 100), 2)
		assert.Equal(t, k.Sendfile(out, in, nil, 100), 0)

		b, err := vfs.ReadFile(k.FS(), "out")
		assert.OK(t, err)
		assert.Equal(t, string(b), "234589")

		ro := int32(k.Open(path("/mnt/image/in"), O_RDONLY, 0))
		assert.Equal(t, k.Sendfile(ro, in, nil, 1), code(unix.EBADF))
		app := int32(k.Open(path("/mnt/image/out"), O_WRONLY|O_APPEND, 0))
		assert.Equal(t, k.Sendfile(app, in, nil, 1), code(unix.EINVAL))
		offset = -1
		assert.Equal(t, k.Sendfile(out, in, &offset, 1), code(unix.EINVAL))
	},

	"extended attributes": func(t *testing.T, k *kernel.Kernel) {
		assert.Equal(t, k.Close(int32(k.Open(path("/mnt/image/f"), O_CREAT|O_WRONLY, 0644))), 0)
		f := path("/mnt/image/f")

		assert.Equal(t, k.Setxattr(f, "user.a", []byte("12345"), 3, 0), 0)
		assert.Equal(t, k.Setxattr(f, "user.b", nil, 0, 0), 0)
		assert.Equal(t, k.Setxattr(f, "user.a", nil, 0, vfs.XATTR_CREATE), code(unix.EEXIST))
		assert.Equal(t, k.Setxattr(f, "user.c", nil, 0, vfs.XATTR_REPLACE), code(unix.ENODATA))
		assert.Equal(t, k.Setxattr(f, "user.c", nil, 1, 0), code(unix.EFAULT))
		assert.Equal(t, k.Setxattr(f, "nonamespace", nil, 0, 0), code(unix.EOPNOTSUPP))

		assert.Equal(t, k.Listxattr(f, nil), 14)
		buf := make([]byte, 14)
		assert.Equal(t, k.Listxattr(f, buf), 14)
		assert.Equal(t, string(buf), "user.a\x00user.b\x00")
		assert.Equal(t, k.Listxattr(f, buf[:4]), code(unix.ERANGE))

		assert.Equal(t, k.Removexattr(f, "user.a"), 0)
		assert.Equal(t, k.Removexattr(f, "user.a"), code(unix.ENODATA))
		assert.Equal(t, k.Listxattr(f, nil), 7)

		value, err := vfs.Getxattr(mustOpenRoot(t, k), "f", "user.b")
		assert.OK(t, err)
		assert.Equal(t, len(value), 0)
	},

	"sync the file system": func(t *testing.T, k *kernel.Kernel) {
		fd := int32(k.Open(path("/mnt/image/f"), O_CREAT|O_WRONLY, 0644))
		assert.Equal(t, k.Syncfs(fd), 0)
		assert.Equal(t, k.Mkdir(path("/tmp"), 0755), 0)
		ns := int32(k.Open(path("/tmp"), O_RDONLY|O_DIR, 0))
		assert.Equal(t, k.Syncfs(ns), 0)
	},

	"exclusive creation": func(t *testing.T, k *kernel.Kernel) {
		assert.Equal(t, k.Open(path("/mnt/image/f"), O_CREAT|O_EXCL|O_WRONLY, 0644), 3)
		assert.Equal(t, k.Open(path("/mnt/image/f"), O_CREAT|O_EXCL|O_WRONLY, 0644), code(unix.EEXIST))
		assert.Equal(t, k.Open(path("/mnt/image/g"), O_RDONLY, 0), code(unix.ENOENT))
		assert.Equal(t, k.Open(path("/mnt/image/f/"), O_RDONLY, 0), code(unix.ENOTDIR))
		assert.Equal(t, k.Open(path("/mnt/image"), O_WRONLY, 0), code(unix.EISDIR))
	},
}

func mustOpenRoot(t *testing.T, k *kernel.Kernel) vfs.File {
	t.Helper()
	d, err := vfs.OpenRoot(k.FS())
	assert.OK(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestKernel(t *testing.T) {
	names := maps.Keys(kernelTests)
	sort.Strings(names)

	for _, name := range names {
		test := kernelTests[name]
		t.Run(name, func(t *testing.T) {
			test(t, mountTmpfs(t, ""))
		})
	}
}

func TestKernelReadOnly(t *testing.T) {
	image := filepath.Join(t.TempDir(), "image.tar")
	writeTar(t, image, map[string]string{"etc/hosts": "localhost\n"})

	k, err := kernel.Mount(context.Background(), kernel.Options{
		Image: image,
		Boot:  "mem=1M ro",
	})
	assert.OK(t, err)
	defer k.Unmount()
	assert.Equal(t, k.FileSystem(), kernel.FileSystemTar)

	assert.Equal(t, k.Open(path("/mnt/image/x"), O_CREAT|O_WRONLY, 0644), code(unix.EROFS))
	assert.Equal(t, k.Open(path("/mnt/image/x"), O_CREAT|O_RDONLY, 0644), code(unix.EROFS))
	assert.Equal(t, k.Open(path("/mnt/image/etc/hosts"), O_RDWR, 0), code(unix.EROFS))
	assert.Equal(t, k.Open(path("/mnt/image/etc/hosts"), O_CREAT|O_EXCL|O_RDONLY, 0), code(unix.EEXIST))
	assert.Equal(t, k.Mkdir(path("/mnt/image/d"), 0755), code(unix.EROFS))
	assert.Equal(t, k.Unlink(path("/mnt/image/etc/hosts")), code(unix.EROFS))
	assert.Equal(t, k.Truncate(path("/mnt/image/etc/hosts"), 0), code(unix.EROFS))
	assert.Equal(t, k.Access(path("/mnt/image/etc/hosts"), kernel.W_OK), code(unix.EROFS))
	assert.Equal(t, k.Setxattr(path("/mnt/image/etc/hosts"), "user.a", nil, 0, 0), code(unix.EROFS))

	// the namespace outside of the mount point remains writable
	assert.Equal(t, k.Mkdir(path("/tmp"), 0755), 0)

	fd := k.Open(path("/mnt/image/etc/hosts"), O_CREAT|O_RDONLY, 0)
	assert.Equal(t, fd, 3)
	buf := make([]byte, 16)
	assert.Equal(t, k.Read(int32(fd), buf, 16), 10)
}

func TestKernelPersist(t *testing.T) {
	image := filepath.Join(t.TempDir(), "image.tar")
	writeTar(t, image, map[string]string{"a": "A"})

	k, err := kernel.Mount(context.Background(), kernel.Options{
		Image:      image,
		FileSystem: kernel.FileSystemTar,
		Boot:       "persist",
	})
	assert.OK(t, err)

	fd := int32(k.Open(path("/mnt/image/b"), O_CREAT|O_WRONLY, 0644))
	assert.Equal(t, k.Write(fd, []byte("B"), 1), 1)
	assert.OK(t, k.Unmount())
	assert.OK(t, k.Unmount())
	assert.Equal(t, k.Close(fd), code(unix.EBADF))

	f, err := os.Open(image)
	assert.OK(t, err)
	defer f.Close()
	fsys, _, err := vfs.LoadTar(f, 0)
	assert.OK(t, err)

	for name, want := range map[string]string{"a": "A", "b": "B"} {
		b, err := vfs.ReadFile(fsys, name)
		assert.OK(t, err)
		assert.Equal(t, string(b), want)
	}
}

func TestKernelDirectory(t *testing.T) {
	dir := t.TempDir()
	assert.OK(t, os.WriteFile(filepath.Join(dir, "a"), []byte("A"), 0644))

	k, err := kernel.Mount(context.Background(), kernel.Options{
		Image:      dir,
		MountPoint: "/data/",
	})
	assert.OK(t, err)
	defer k.Unmount()
	assert.Equal(t, k.FileSystem(), kernel.FileSystemDir)
	assert.Equal(t, k.MountPoint(), "/data")

	fd := int32(k.Open(path("/data/b"), O_CREAT|O_WRONLY, 0644))
	assert.Equal(t, k.Write(fd, []byte("B"), 1), 1)
	assert.Equal(t, k.Close(fd), 0)
	assert.Equal(t, k.Access(path("/data/a"), kernel.R_OK), 0)
	assert.Equal(t, k.Rename(path("/data/../data/b"), path("/data/c")), 0)

	b, err := os.ReadFile(filepath.Join(dir, "c"))
	assert.OK(t, err)
	assert.Equal(t, string(b), "B")
}

func TestMountErrors(t *testing.T) {
	ctx := context.Background()

	_, err := kernel.Mount(ctx, kernel.Options{Image: t.TempDir(), FileSystem: "ext4"})
	assert.Error(t, err, vfs.ENODEV)

	_, err = kernel.Mount(ctx, kernel.Options{FileSystem: kernel.FileSystemTmpfs, MountPoint: "mnt"})
	assert.NotEqual(t, err, nil)

	_, err = kernel.Mount(ctx, kernel.Options{FileSystem: kernel.FileSystemTmpfs, Boot: "mem=oops"})
	assert.NotEqual(t, err, nil)

	_, err = kernel.Mount(ctx, kernel.Options{FileSystem: kernel.FileSystemTmpfs, Boot: "persist"})
	assert.NotEqual(t, err, nil)

	_, err = kernel.Mount(ctx, kernel.Options{Image: filepath.Join(t.TempDir(), "nope")})
	assert.True(t, errors.Is(err, os.ErrNotExist))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = kernel.Mount(canceled, kernel.Options{FileSystem: kernel.FileSystemTmpfs})
	assert.Error(t, err, context.Canceled)
}

func TestMountIdentity(t *testing.T) {
	k1 := mountTmpfs(t, "")
	k2 := mountTmpfs(t, "")
	assert.NotEqual(t, k1.ID(), k2.ID())
	assert.Equal(t, k1.Boot().Mem, 128<<20)
	assert.Equal(t, k1.MountPoint(), kernel.DefaultMountPoint)

	// kernels do not share state
	assert.Equal(t, k1.Mkdir(path("/mnt/image/d"), 0755), 0)
	assert.Equal(t, k2.Access(path("/mnt/image/d"), kernel.F_OK), code(unix.ENOENT))
}

func TestMountAtRoot(t *testing.T) {
	k, err := kernel.Mount(context.Background(), kernel.Options{
		FileSystem: kernel.FileSystemTmpfs,
		MountPoint: "/",
	})
	assert.OK(t, err)
	defer k.Unmount()

	assert.Equal(t, k.Mkdir(path("/d"), 0755), 0)
	assert.Equal(t, k.Rmdir(path("/")), code(unix.EBUSY))
	_, err = vfs.Stat(k.FS(), "d")
	assert.OK(t, err)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, kernel.Describe(0), "success")
	assert.Equal(t, kernel.Describe(3), "success")
	assert.Equal(t, kernel.Describe(-int64(unix.EBADF)), "EBADF: bad file descriptor")
	assert.HasPrefix(t, kernel.Describe(-4000), "errno 4000")
}
