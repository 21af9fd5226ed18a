package vfs

import (
	"io/fs"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/stealthrocket/fsreplay/internal/vfs/fspath"
)

// DirFS is a FileSystem backed by a directory of the host file system.
//
// Path resolution is confined to the directory with openat2(2) and
// RESOLVE_IN_ROOT, so absolute symbolic links and ".." components never escape
// it. On kernels without openat2, the file system falls back to openat(2)
// without confinement.
type DirFS struct {
	mu     sync.Mutex
	rootfd int
	path   string
}

// OpenDirFS opens the directory at path as a file system. The directory stays
// open until Close is called.
func OpenDirFS(path string) (*DirFS, error) {
	fd, err := ignoreEINTR2(func() (int, error) {
		return unix.Open(path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	})
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: path, Err: err}
	}
	return &DirFS{rootfd: fd, path: path}, nil
}

// Path returns the host path of the directory.
func (fsys *DirFS) Path() string { return fsys.path }

func (fsys *DirFS) Close() error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	if fsys.rootfd >= 0 {
		unix.Close(fsys.rootfd)
		fsys.rootfd = -1
	}
	return nil
}

// Sync satisfies Syncer by calling syncfs(2) on the host file system holding
// the directory.
func (fsys *DirFS) Sync() error {
	if err := ignoreEINTR(func() error { return unix.Syncfs(fsys.rootfd) }); err != nil {
		return &fs.PathError{Op: "syncfs", Path: fsys.path, Err: err}
	}
	return nil
}

// Open satisfies FileSystem.
func (fsys *DirFS) Open(name string, flags OpenFlags, mode fs.FileMode) (File, error) {
	name = "/" + fspath.TrimLeadingSlash(name)
	fd, err := fsys.openat(name, flags, mode)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &dirFile{fsys: fsys, fd: fd, name: fspath.Clean(name)}, nil
}

func (fsys *DirFS) openat(name string, flags OpenFlags, mode fs.FileMode) (int, error) {
	how := unix.OpenHow{
		Flags:   uint64(flags | O_CLOEXEC),
		Resolve: unix.RESOLVE_IN_ROOT | unix.RESOLVE_NO_MAGICLINKS,
	}
	if flags&O_CREAT != 0 {
		how.Mode = uint64(UnixMode(mode))
	}
	fd, err := ignoreEINTR2(func() (int, error) { return unix.Openat2(fsys.rootfd, name, &how) })
	if err == unix.ENOSYS {
		fd, err = ignoreEINTR2(func() (int, error) {
			return unix.Openat(fsys.rootfd, fspath.TrimLeadingSlash(name), int(flags|O_CLOEXEC), uint32(how.Mode))
		})
	}
	return fd, err
}

// openPath opens an O_PATH descriptor on name, which is used to operate on
// files without requiring read or write access to them.
func (fsys *DirFS) openPath(name string, follow bool) (int, error) {
	flags := O_PATH
	if !follow {
		flags |= O_NOFOLLOW
	}
	if name == "" {
		name = "."
	}
	return fsys.openat(name, flags, 0)
}

// openParent opens the directory containing the last element of name.
func (fsys *DirFS) openParent(name string) (int, string, error) {
	dir, base := fspath.Split(name)
	fd, err := fsys.openat(dir, O_PATH|O_DIRECTORY, 0)
	if err != nil {
		return -1, "", err
	}
	switch {
	case base == "":
		base = "."
	case fspath.HasTrailingSlash(name):
		base += "/"
	}
	return fd, base, nil
}

type dirFile struct {
	fsys *DirFS
	fd   int
	name string
}

func (f *dirFile) Name() string { return f.name }

func (f *dirFile) Close() error {
	fd := f.fd
	f.fd = -1
	if fd < 0 {
		return EBADF
	}
	unix.Close(fd)
	return nil
}

// join returns the path of name relative to the root of the file system.
// Dot elements of name are kept so the host sees the path as written.
func (f *dirFile) join(name string) string {
	switch {
	case fspath.IsAbs(name):
		return name
	case name == "":
		return f.name
	}
	return fspath.TrimTrailingSlash(f.name) + "/" + name
}

func (f *dirFile) Open(name string, flags OpenFlags, mode fs.FileMode) (File, error) {
	if f.fd < 0 {
		return nil, EBADF
	}
	return f.fsys.Open(f.join(name), flags, mode)
}

func (f *dirFile) Readv(iovs [][]byte) (int, error) {
	n, err := handleEINTR(func() (int, error) { return unix.Readv(f.fd, iovs) })
	if err != nil {
		err = &fs.PathError{Op: "read", Path: f.name, Err: err}
	}
	return n, err
}

func (f *dirFile) Writev(iovs [][]byte) (int, error) {
	n, err := handleEINTR(func() (int, error) { return unix.Writev(f.fd, iovs) })
	if err != nil {
		err = &fs.PathError{Op: "write", Path: f.name, Err: err}
	}
	return n, err
}

func (f *dirFile) Preadv(iovs [][]byte, offset int64) (int, error) {
	n, err := handleEINTR(func() (int, error) { return unix.Preadv(f.fd, iovs, offset) })
	if err != nil {
		err = &fs.PathError{Op: "pread", Path: f.name, Err: err}
	}
	return n, err
}

func (f *dirFile) Pwritev(iovs [][]byte, offset int64) (int, error) {
	n, err := handleEINTR(func() (int, error) { return unix.Pwritev(f.fd, iovs, offset) })
	if err != nil {
		err = &fs.PathError{Op: "pwrite", Path: f.name, Err: err}
	}
	return n, err
}

func (f *dirFile) Seek(offset int64, whence int) (int64, error) {
	seek, err := ignoreEINTR2(func() (int64, error) { return unix.Seek(f.fd, offset, whence) })
	if err != nil {
		err = &fs.PathError{Op: "seek", Path: f.name, Err: err}
	}
	return seek, err
}

func (f *dirFile) Truncate(size int64) error {
	if err := ignoreEINTR(func() error { return unix.Ftruncate(f.fd, size) }); err != nil {
		return &fs.PathError{Op: "truncate", Path: f.name, Err: err}
	}
	return nil
}

func (f *dirFile) Sync() error {
	if err := ignoreEINTR(func() error { return unix.Fsync(f.fd) }); err != nil {
		return &fs.PathError{Op: "sync", Path: f.name, Err: err}
	}
	return nil
}

func (f *dirFile) Datasync() error {
	if err := ignoreEINTR(func() error { return unix.Fdatasync(f.fd) }); err != nil {
		return &fs.PathError{Op: "datasync", Path: f.name, Err: err}
	}
	return nil
}

func (f *dirFile) ReadDirent(buf []byte) (int, error) {
	n, err := ignoreEINTR2(func() (int, error) { return unix.ReadDirent(f.fd, buf) })
	if err != nil {
		err = &fs.PathError{Op: "getdents", Path: f.name, Err: err}
	}
	return n, err
}

func (f *dirFile) Stat(name string, flags LookupFlags) (FileInfo, error) {
	var stat unix.Stat_t
	var err error
	if name == "" {
		err = ignoreEINTR(func() error { return unix.Fstat(f.fd, &stat) })
	} else {
		err = f.withPath(name, flags.Follow(), func(fd int) error {
			return ignoreEINTR(func() error { return unix.Fstat(fd, &stat) })
		})
	}
	if err != nil {
		return FileInfo{}, &fs.PathError{Op: "stat", Path: f.join(name), Err: err}
	}
	return makeFileInfo(&stat), nil
}

func (f *dirFile) Readlink(name string, buf []byte) (int, error) {
	var n int
	readlink := func(fd int) (err error) {
		var stat unix.Stat_t
		if err := unix.Fstat(fd, &stat); err != nil {
			return err
		}
		if stat.Mode&unix.S_IFMT != unix.S_IFLNK {
			return EINVAL
		}
		n, err = ignoreEINTR2(func() (int, error) { return unix.Readlinkat(fd, "", buf) })
		return err
	}
	var err error
	if name == "" {
		err = readlink(f.fd)
	} else {
		err = f.withPath(name, false, readlink)
	}
	if err != nil {
		return 0, &fs.PathError{Op: "readlink", Path: f.join(name), Err: err}
	}
	return n, nil
}

func (f *dirFile) withPath(name string, follow bool, do func(int) error) error {
	fd, err := f.fsys.openPath(f.join(name), follow)
	if err != nil {
		return err
	}
	defer unix.Close(fd)
	return do(fd)
}

func (f *dirFile) withParent(name string, do func(int, string) error) error {
	fd, base, err := f.fsys.openParent(f.join(name))
	if err != nil {
		return err
	}
	defer unix.Close(fd)
	return do(fd, base)
}

func (f *dirFile) Mkdir(name string, mode fs.FileMode) error {
	err := f.withParent(name, func(dirfd int, base string) error {
		return ignoreEINTR(func() error { return unix.Mkdirat(dirfd, base, UnixMode(mode)) })
	})
	if err != nil {
		return &fs.PathError{Op: "mkdir", Path: f.join(name), Err: err}
	}
	return nil
}

func (f *dirFile) Rmdir(name string) error {
	err := f.withParent(name, func(dirfd int, base string) error {
		return ignoreEINTR(func() error { return unix.Unlinkat(dirfd, base, unix.AT_REMOVEDIR) })
	})
	if err != nil {
		return &fs.PathError{Op: "rmdir", Path: f.join(name), Err: err}
	}
	return nil
}

func (f *dirFile) Unlink(name string) error {
	err := f.withParent(name, func(dirfd int, base string) error {
		return ignoreEINTR(func() error { return unix.Unlinkat(dirfd, base, 0) })
	})
	if err != nil {
		return &fs.PathError{Op: "unlink", Path: f.join(name), Err: err}
	}
	return nil
}

func (f *dirFile) sameFS(dir File) (*dirFile, error) {
	d, ok := dir.(*dirFile)
	if !ok || d.fsys != f.fsys {
		return nil, EXDEV
	}
	return d, nil
}

func (f *dirFile) Rename(oldName string, newDir File, newName string) error {
	d, err := f.sameFS(newDir)
	if err == nil {
		err = f.withParent(oldName, func(olddirfd int, oldBase string) error {
			return d.withParent(newName, func(newdirfd int, newBase string) error {
				return ignoreEINTR(func() error { return unix.Renameat(olddirfd, oldBase, newdirfd, newBase) })
			})
		})
	}
	if err != nil {
		return &fs.PathError{Op: "rename", Path: f.join(oldName), Err: err}
	}
	return nil
}

func (f *dirFile) Link(oldName string, newDir File, newName string, flags LookupFlags) error {
	d, err := f.sameFS(newDir)
	if err == nil {
		// The old name is resolved in the root first, then linked through its
		// /proc/self/fd entry so symbolic links cannot escape the directory.
		err = f.withPath(oldName, flags.Follow(), func(oldfd int) error {
			return d.withParent(newName, func(newdirfd int, newBase string) error {
				return ignoreEINTR(func() error {
					return unix.Linkat(unix.AT_FDCWD, procPath(oldfd), newdirfd, newBase, unix.AT_SYMLINK_FOLLOW)
				})
			})
		})
	}
	if err != nil {
		return &fs.PathError{Op: "link", Path: f.join(oldName), Err: err}
	}
	return nil
}

func (f *dirFile) Symlink(oldName, newName string) error {
	err := f.withParent(newName, func(dirfd int, base string) error {
		return ignoreEINTR(func() error { return unix.Symlinkat(oldName, dirfd, base) })
	})
	if err != nil {
		return &fs.PathError{Op: "symlink", Path: f.join(newName), Err: err}
	}
	return nil
}

func (f *dirFile) Setxattr(name, attr string, value []byte, flags int) error {
	err := f.withPath(name, true, func(fd int) error {
		return ignoreEINTR(func() error { return unix.Setxattr(procPath(fd), attr, value, flags) })
	})
	if err != nil {
		return &fs.PathError{Op: "setxattr", Path: f.join(name), Err: err}
	}
	return nil
}

func (f *dirFile) Getxattr(name, attr string, buf []byte) (n int, err error) {
	err = f.withPath(name, true, func(fd int) (err error) {
		n, err = ignoreEINTR2(func() (int, error) { return unix.Getxattr(procPath(fd), attr, buf) })
		return err
	})
	if err != nil {
		return 0, &fs.PathError{Op: "getxattr", Path: f.join(name), Err: err}
	}
	return n, nil
}

func (f *dirFile) Listxattr(name string, buf []byte) (n int, err error) {
	err = f.withPath(name, true, func(fd int) (err error) {
		n, err = ignoreEINTR2(func() (int, error) { return unix.Listxattr(procPath(fd), buf) })
		return err
	})
	if err != nil {
		return 0, &fs.PathError{Op: "listxattr", Path: f.join(name), Err: err}
	}
	return n, nil
}

func (f *dirFile) Removexattr(name, attr string) error {
	err := f.withPath(name, true, func(fd int) error {
		return ignoreEINTR(func() error { return unix.Removexattr(procPath(fd), attr) })
	})
	if err != nil {
		return &fs.PathError{Op: "removexattr", Path: f.join(name), Err: err}
	}
	return nil
}

func procPath(fd int) string {
	return "/proc/self/fd/" + strconv.Itoa(fd)
}

// UnixMode converts the permission bits of mode to the unix representation.
func UnixMode(mode fs.FileMode) uint32 {
	m := uint32(mode.Perm())
	if mode&fs.ModeSetuid != 0 {
		m |= unix.S_ISUID
	}
	if mode&fs.ModeSetgid != 0 {
		m |= unix.S_ISGID
	}
	if mode&fs.ModeSticky != 0 {
		m |= unix.S_ISVTX
	}
	return m
}

func makeFileInfo(stat *unix.Stat_t) FileInfo {
	mode := fs.FileMode(stat.Mode & 0777)
	switch stat.Mode & unix.S_IFMT {
	case unix.S_IFBLK:
		mode |= fs.ModeDevice
	case unix.S_IFCHR:
		mode |= fs.ModeDevice | fs.ModeCharDevice
	case unix.S_IFDIR:
		mode |= fs.ModeDir
	case unix.S_IFIFO:
		mode |= fs.ModeNamedPipe
	case unix.S_IFLNK:
		mode |= fs.ModeSymlink
	case unix.S_IFSOCK:
		mode |= fs.ModeSocket
	}
	if stat.Mode&unix.S_ISUID != 0 {
		mode |= fs.ModeSetuid
	}
	if stat.Mode&unix.S_ISGID != 0 {
		mode |= fs.ModeSetgid
	}
	if stat.Mode&unix.S_ISVTX != 0 {
		mode |= fs.ModeSticky
	}
	return FileInfo{
		Dev:   uint64(stat.Dev),
		Ino:   uint64(stat.Ino),
		Nlink: uint64(stat.Nlink),
		Mode:  mode,
		Uid:   stat.Uid,
		Gid:   stat.Gid,
		Rdev:  uint64(stat.Rdev),
		Size:  stat.Size,
		Atime: time.Unix(stat.Atim.Unix()),
		Mtime: time.Unix(stat.Mtim.Unix()),
		Ctime: time.Unix(stat.Ctim.Unix()),
	}
}

func ignoreEINTR(f func() error) error {
	for {
		if err := f(); err != EINTR {
			return err
		}
	}
}

func ignoreEINTR2[F func() (R, error), R any](f F) (R, error) {
	for {
		v, err := f()
		if err != EINTR {
			return v, err
		}
	}
}

// handleEINTR retries f when it was interrupted before transferring any data,
// and reports partial transfers as successful otherwise.
func handleEINTR(f func() (int, error)) (int, error) {
	for {
		n, err := f()
		if err == EINTR {
			if n <= 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

var (
	_ FileSystem = (*DirFS)(nil)
	_ Syncer     = (*DirFS)(nil)
	_ File       = (*dirFile)(nil)
)
