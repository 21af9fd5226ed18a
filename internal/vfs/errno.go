package vfs

import (
	"errors"

	"golang.org/x/sys/unix"
)

const (
	E2BIG        = unix.E2BIG
	EACCES       = unix.EACCES
	EBADF        = unix.EBADF
	EBUSY        = unix.EBUSY
	EEXIST       = unix.EEXIST
	EFAULT       = unix.EFAULT
	EINVAL       = unix.EINVAL
	EINTR        = unix.EINTR
	EIO          = unix.EIO
	EISDIR       = unix.EISDIR
	ELOOP        = unix.ELOOP
	ENAMETOOLONG = unix.ENAMETOOLONG
	ENODATA      = unix.ENODATA
	ENODEV       = unix.ENODEV
	ENOENT       = unix.ENOENT
	ENOSPC       = unix.ENOSPC
	ENOSYS       = unix.ENOSYS
	ENOTDIR      = unix.ENOTDIR
	ENOTEMPTY    = unix.ENOTEMPTY
	ENXIO        = unix.ENXIO
	EOPNOTSUPP   = unix.EOPNOTSUPP
	EPERM        = unix.EPERM
	ERANGE       = unix.ERANGE
	EROFS        = unix.EROFS
	ESPIPE       = unix.ESPIPE
	EXDEV        = unix.EXDEV
)

// Errno is the type of error codes returned by file systems.
type Errno = unix.Errno

// ErrnoOf extracts the error code carried by err. Errors which do not wrap an
// error code are reported as EIO.
func ErrnoOf(err error) Errno {
	if err == nil {
		return 0
	}
	var errno Errno
	if errors.As(err, &errno) {
		return errno
	}
	return EIO
}
