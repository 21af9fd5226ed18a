// Package vfs defines the file system abstraction that images are mounted
// with, and the implementations backing the supported image types.
//
// The interfaces are modeled after the *at family of system calls: most
// operations are methods of a File referencing a directory, and receive the
// name of the entry they apply to relative to that directory. Errors returned
// by the methods wrap unix.Errno values so the kernel layer can translate them
// into the negative error codes of the system call boundary.
package vfs

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/stealthrocket/fsreplay/internal/vfs/fspath"
)

const (
	// MaxFollowSymlink is the limit of symbolic links that may be followed
	// when resolving a path, matching the Linux limit.
	MaxFollowSymlink = 40
)

// FileSystem is the interface representing file systems.
//
// The interface has a single method used to open a file at a path on the file
// system, which may be a directory. Most of the time this method is used to
// open the root directory and use the methods of the returned File to access
// the rest of the directory tree.
type FileSystem interface {
	Open(name string, flags OpenFlags, mode fs.FileMode) (File, error)
}

// Syncer is implemented by file systems which can flush all their buffered
// changes at once, which is what syncfs(2) requests.
type Syncer interface {
	Sync() error
}

// File is an interface representing files opened from a file system.
//
// Methods which accept a name resolve it relative to the receiver, which must
// then be a directory. An empty name designates the receiver itself.
type File interface {
	// Returns the name of the file on the file system it was opened from.
	Name() string

	// Closes the file. Using the file after it was closed makes the methods
	// return EBADF.
	Close() error

	// Opens a file at the given name, relative to the receiver.
	Open(name string, flags OpenFlags, mode fs.FileMode) (File, error)

	// Readv reads data from the current seek offset into the list of vectors.
	// When the end of file is reached, the method returns zero and a nil error.
	Readv(iovs [][]byte) (int, error)

	// Writev writes data from the list of vectors at the current seek offset,
	// or at the end of the file if it was opened with O_APPEND.
	Writev(iovs [][]byte) (int, error)

	// Preadv and Pwritev are like Readv and Writev but they operate at the
	// given offset and do not change the seek offset of the file.
	Preadv(iovs [][]byte, offset int64) (int, error)
	Pwritev(iovs [][]byte, offset int64) (int, error)

	// Seek positions the seek offset of the file relative to whence, which is
	// one of SEEK_SET, SEEK_CUR, or SEEK_END.
	Seek(offset int64, whence int) (int64, error)

	// Truncate sets the size of the file, dropping data past the new size or
	// appending zero bytes to reach it.
	Truncate(size int64) error

	// Sync flushes file data and metadata, Datasync only flushes the data.
	Sync() error
	Datasync() error

	// ReadDirent reads linux_dirent64 records into buf and returns the number
	// of bytes written. Zero means the end of the directory was reached.
	ReadDirent(buf []byte) (int, error)

	// Stat looks up file metadata. AT_SYMLINK_NOFOLLOW returns metadata of a
	// symbolic link instead of its target.
	Stat(name string, flags LookupFlags) (FileInfo, error)

	// Readlink reads the target of a symbolic link into buf.
	Readlink(name string, buf []byte) (int, error)

	Mkdir(name string, mode fs.FileMode) error

	Rmdir(name string) error

	// Rename moves oldName, relative to the receiver, to newName relative to
	// newDir. Both directories must belong to the same file system or the
	// method fails with EXDEV.
	Rename(oldName string, newDir File, newName string) error

	// Link creates a hard link. The flags may be AT_SYMLINK_NOFOLLOW to link
	// a symbolic link instead of its target.
	Link(oldName string, newDir File, newName string, flags LookupFlags) error

	// Symlink creates a symbolic link at newName pointing to oldName, which
	// is stored verbatim and does not need to exist.
	Symlink(oldName, newName string) error

	Unlink(name string) error

	// Extended attributes. The methods follow symbolic links.
	//
	// Getxattr and Listxattr return the size of the value when buf is empty,
	// and fail with ERANGE when buf is too short to hold it.
	Setxattr(name, attr string, value []byte, flags int) error
	Getxattr(name, attr string, buf []byte) (int, error)
	Listxattr(name string, buf []byte) (int, error)
	Removexattr(name, attr string) error
}

// FileInfo is a type similar to syscall.Stat_t on linux. It contains metadata
// about an entry on the file system.
type FileInfo struct {
	Dev   uint64
	Ino   uint64
	Nlink uint64
	Mode  fs.FileMode
	Uid   uint32
	Gid   uint32
	Rdev  uint64
	Size  int64
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

func (info FileInfo) String() string {
	return fmt.Sprintf("%s %d %d %d %d %s",
		info.Mode,
		info.Nlink,
		info.Uid,
		info.Gid,
		info.Size,
		info.Mtime.Format(time.Stamp),
	)
}

// Create creates and opens a file on a file system.
func Create(fsys FileSystem, name string, mode fs.FileMode) (File, error) {
	return fsys.Open(name, O_CREAT|O_TRUNC|O_WRONLY, mode)
}

// OpenDir opens a directory with the given name on the file system.
func OpenDir(fsys FileSystem, name string) (File, error) {
	return fsys.Open(name, O_DIRECTORY, 0)
}

// OpenRoot opens the root directory of a file system.
func OpenRoot(fsys FileSystem) (File, error) {
	return OpenDir(fsys, "/")
}

// Stat returns information about a file on a file system, following symbolic
// links.
func Stat(fsys FileSystem, name string) (FileInfo, error) {
	return withRoot2(fsys, func(dir File) (FileInfo, error) { return dir.Stat(name, 0) })
}

// Lstat returns information about a file on a file system. If the name points
// to a symbolic link, the function returns information about the link itself.
func Lstat(fsys FileSystem, name string) (FileInfo, error) {
	return withRoot2(fsys, func(dir File) (FileInfo, error) { return dir.Stat(name, AT_SYMLINK_NOFOLLOW) })
}

// ReadFile reads the whole content of a file on a file system.
func ReadFile(fsys FileSystem, name string) ([]byte, error) {
	f, err := fsys.Open(name, O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readAll(f)
}

func readAll(f File) ([]byte, error) {
	s, err := f.Stat("", 0)
	if err != nil {
		return nil, err
	}
	b := make([]byte, s.Size)
	v := make([][]byte, 1)
	n := 0
	for n < len(b) {
		v[0] = b[n:]
		rn, err := f.Preadv(v, int64(n))
		if rn > 0 {
			n += rn
		}
		if err != nil || rn == 0 {
			return b[:n], err
		}
	}
	return b, nil
}

// WriteFile creates a file on a file system, failing if it already exists.
func WriteFile(fsys FileSystem, name string, data []byte, mode fs.FileMode) error {
	f, err := fsys.Open(name, O_CREAT|O_WRONLY|O_TRUNC|O_EXCL, mode)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Writev([][]byte{data})
	return err
}

// MkdirAll creates all directories to form the given path name on a file
// system. Permissions of existing directories are left untouched.
func MkdirAll(fsys FileSystem, name string, mode fs.FileMode) error {
	if err := mkdirAll(fsys, name, mode); err != nil {
		return &fs.PathError{Op: "mkdir", Path: name, Err: unwrap(err)}
	}
	return nil
}

func mkdirAll(fsys FileSystem, name string, mode fs.FileMode) error {
	path := fspath.TrimLeadingSlash(fspath.Clean(name))
	if path == "" || path == "." {
		return nil
	}

	d, err := OpenRoot(fsys)
	if err != nil {
		return err
	}
	defer func() { d.Close() }()

	for path != "" {
		var dir string
		dir, path = fspath.Walk(path)

		if err := d.Mkdir(dir, mode); err != nil {
			if !errors.Is(err, EEXIST) {
				return err
			}
		}

		f, err := d.Open(dir, O_DIRECTORY, 0)
		if err != nil {
			return err
		}
		d.Close()
		d = f
	}
	return nil
}

// Readlink reads the target of a symbolic link located at the given path name
// on a file system.
func Readlink(fsys FileSystem, name string) (string, error) {
	return withRoot2(fsys, func(dir File) (string, error) { return readlink(dir, name) })
}

func readlink(dir File, name string) (string, error) {
	b := make([]byte, 256)
	for {
		n, err := dir.Readlink(name, b)
		if err != nil {
			return "", err
		}
		if n < len(b) {
			return string(b[:n]), nil
		}
		if len(b) > PATH_MAX {
			return "", &fs.PathError{Op: "readlink", Path: name, Err: ENAMETOOLONG}
		}
		b = make([]byte, 2*len(b))
	}
}

// Listxattr returns the names of extended attributes set on a file.
func Listxattr(dir File, name string) ([]string, error) {
	n, err := dir.Listxattr(name, nil)
	if err != nil || n == 0 {
		return nil, err
	}
	b := make([]byte, n)
	n, err = dir.Listxattr(name, b)
	if err != nil {
		return nil, err
	}
	return strings.FieldsFunc(string(b[:n]), func(r rune) bool { return r == 0 }), nil
}

// Getxattr returns the value of an extended attribute set on a file.
func Getxattr(dir File, name, attr string) ([]byte, error) {
	n, err := dir.Getxattr(name, attr, nil)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	n, err = dir.Getxattr(name, attr, b)
	return b[:n], err
}

func withRoot2[R any](fsys FileSystem, do func(File) (R, error)) (ret R, err error) {
	d, err := OpenRoot(fsys)
	if err != nil {
		return ret, err
	}
	defer d.Close()
	return do(d)
}

func unwrap(err error) error {
	if e := errors.Unwrap(err); e != nil {
		err = e
	}
	return err
}

var xattrNamespaces = [...]string{
	"security.",
	"system.",
	"trusted.",
	"user.",
}

// ValidateXattr checks the name, value, and flags of an extended attribute the
// way the Linux VFS does before reaching the file system.
func ValidateXattr(attr string, value []byte, flags int) error {
	if err := validateXattrName(attr); err != nil {
		return err
	}
	if len(value) > XATTR_SIZE_MAX {
		return E2BIG
	}
	if flags&^(XATTR_CREATE|XATTR_REPLACE) != 0 {
		return EINVAL
	}
	return nil
}

func validateXattrName(attr string) error {
	if len(attr) == 0 || len(attr) > XATTR_NAME_MAX {
		return ERANGE
	}
	for _, ns := range xattrNamespaces {
		if strings.HasPrefix(attr, ns) && len(attr) > len(ns) {
			return nil
		}
	}
	return EOPNOTSUPP
}
