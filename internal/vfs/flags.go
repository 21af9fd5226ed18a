package vfs

import (
	"sort"
	"strings"

	"golang.org/x/sys/unix"
)

// OpenFlags is a bitset of flags that can be passed to the Open method of
// File and FileSystem values. The values match the Linux open(2) flags.
type OpenFlags int

const (
	O_RDONLY    OpenFlags = unix.O_RDONLY
	O_WRONLY    OpenFlags = unix.O_WRONLY
	O_RDWR      OpenFlags = unix.O_RDWR
	O_ACCMODE   OpenFlags = unix.O_ACCMODE
	O_APPEND    OpenFlags = unix.O_APPEND
	O_CREAT     OpenFlags = unix.O_CREAT
	O_EXCL      OpenFlags = unix.O_EXCL
	O_SYNC      OpenFlags = unix.O_SYNC
	O_TRUNC     OpenFlags = unix.O_TRUNC
	O_DIRECTORY OpenFlags = unix.O_DIRECTORY
	O_NOFOLLOW  OpenFlags = unix.O_NOFOLLOW
	O_NONBLOCK  OpenFlags = unix.O_NONBLOCK
	O_CLOEXEC   OpenFlags = unix.O_CLOEXEC
	O_PATH      OpenFlags = unix.O_PATH
)

// AccessMode returns the O_RDONLY, O_WRONLY, or O_RDWR part of the flags.
func (openFlags OpenFlags) AccessMode() OpenFlags {
	return openFlags & O_ACCMODE
}

// Readable reports whether a file opened with these flags may be read from.
func (openFlags OpenFlags) Readable() bool {
	return openFlags.AccessMode() != O_WRONLY
}

// Writable reports whether a file opened with these flags may be written to.
func (openFlags OpenFlags) Writable() bool {
	mode := openFlags.AccessMode()
	return mode == O_WRONLY || mode == O_RDWR
}

func (openFlags OpenFlags) String() string {
	var names []string

	switch openFlags.AccessMode() {
	case O_RDWR:
		names = append(names, "O_RDWR")
	case O_WRONLY:
		names = append(names, "O_WRONLY")
	}

	for _, f := range [...]struct {
		flag OpenFlags
		name string
	}{
		{O_APPEND, "O_APPEND"},
		{O_CREAT, "O_CREAT"},
		{O_EXCL, "O_EXCL"},
		{O_SYNC, "O_SYNC"},
		{O_TRUNC, "O_TRUNC"},
		{O_DIRECTORY, "O_DIRECTORY"},
		{O_NOFOLLOW, "O_NOFOLLOW"},
		{O_NONBLOCK, "O_NONBLOCK"},
		{O_CLOEXEC, "O_CLOEXEC"},
	} {
		if (openFlags & f.flag) == f.flag {
			names = append(names, f.name)
		}
	}

	if len(names) == 0 {
		names = append(names, "O_RDONLY")
	}

	sort.Strings(names)
	return strings.Join(names, "|")
}

// LookupFlags returns the lookup flags equivalent to the O_NOFOLLOW bit.
func (openFlags OpenFlags) LookupFlags() LookupFlags {
	if (openFlags & O_NOFOLLOW) != 0 {
		return AT_SYMLINK_NOFOLLOW
	}
	return 0
}

// LookupFlags is a bitset of flags that can be passed to methods of File and
// FileSystem values to customize the behavior of file name lookups.
type LookupFlags int

const (
	AT_SYMLINK_NOFOLLOW LookupFlags = unix.AT_SYMLINK_NOFOLLOW
)

func (lookupFlags LookupFlags) String() string {
	if (lookupFlags & AT_SYMLINK_NOFOLLOW) != 0 {
		return "AT_SYMLINK_NOFOLLOW"
	}
	return "AT_SYMLINK_FOLLOW"
}

// Follow reports whether a symbolic link in the last position of a path must
// be followed.
func (lookupFlags LookupFlags) Follow() bool {
	return (lookupFlags & AT_SYMLINK_NOFOLLOW) == 0
}

// Xattr flags accepted by setxattr(2).
const (
	XATTR_CREATE  = unix.XATTR_CREATE
	XATTR_REPLACE = unix.XATTR_REPLACE
)

const (
	SEEK_SET = unix.SEEK_SET
	SEEK_CUR = unix.SEEK_CUR
	SEEK_END = unix.SEEK_END
)

const (
	PATH_MAX       = 4096
	XATTR_NAME_MAX = 255
	XATTR_SIZE_MAX = 65536
)
