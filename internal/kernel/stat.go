package kernel

import (
	"io/fs"
	"time"

	"golang.org/x/sys/unix"

	"github.com/stealthrocket/fsreplay/internal/vfs"
)

// Timespec is the time representation of the stat structure.
type Timespec struct {
	Sec  int64
	Nsec int64
}

func makeTimespec(t time.Time) Timespec {
	if t.IsZero() {
		return Timespec{}
	}
	return Timespec{Sec: t.Unix(), Nsec: int64(t.Nanosecond())}
}

// Stat is the structure populated by Fstat, laid out like struct stat of
// linux/amd64.
type Stat struct {
	Dev     uint64
	Ino     uint64
	Nlink   uint64
	Mode    uint32
	Uid     uint32
	Gid     uint32
	_       int32
	Rdev    uint64
	Size    int64
	Blksize int64
	Blocks  int64
	Atim    Timespec
	Mtim    Timespec
	Ctim    Timespec
	_       [3]int64
}

const blockSize = 4096

func makeStat(info vfs.FileInfo) Stat {
	return Stat{
		Dev:     info.Dev,
		Ino:     info.Ino,
		Nlink:   info.Nlink,
		Mode:    fileType(info.Mode) | vfs.UnixMode(info.Mode),
		Uid:     info.Uid,
		Gid:     info.Gid,
		Rdev:    info.Rdev,
		Size:    info.Size,
		Blksize: blockSize,
		Blocks:  (info.Size + 511) / 512,
		Atim:    makeTimespec(info.Atime),
		Mtim:    makeTimespec(info.Mtime),
		Ctim:    makeTimespec(info.Ctime),
	}
}

func fileType(mode fs.FileMode) uint32 {
	switch mode.Type() {
	case fs.ModeDir:
		return unix.S_IFDIR
	case fs.ModeSymlink:
		return unix.S_IFLNK
	case fs.ModeNamedPipe:
		return unix.S_IFIFO
	case fs.ModeSocket:
		return unix.S_IFSOCK
	case fs.ModeDevice:
		return unix.S_IFBLK
	case fs.ModeDevice | fs.ModeCharDevice:
		return unix.S_IFCHR
	default:
		return unix.S_IFREG
	}
}
