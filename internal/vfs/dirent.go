package vfs

import (
	"bytes"
	"encoding/binary"
	"io"
	"io/fs"
)

// Values of the d_type field of linux_dirent64.
const (
	DT_UNKNOWN = 0
	DT_FIFO    = 1
	DT_CHR     = 2
	DT_DIR     = 4
	DT_BLK     = 6
	DT_REG     = 8
	DT_LNK     = 10
	DT_SOCK    = 12
)

// sizeOfDirent is the size of the fixed part of a linux_dirent64 record:
// d_ino (8), d_off (8), d_reclen (2), d_type (1).
const sizeOfDirent = 19

// SizeOfDirent returns the size of a directory entry with a name of the given
// length, including the null terminator.
func SizeOfDirent(nameLen int) int {
	return sizeOfDirent + nameLen + 1
}

// WriteDirent writes a directory entry to buf and returns the number of bytes
// written. The caller must ensure that buf is at least SizeOfDirent(len(name))
// bytes long.
func WriteDirent(buf []byte, typ fs.FileMode, ino, off uint64, name string) int {
	reclen := SizeOfDirent(len(name))
	binary.LittleEndian.PutUint64(buf[0:], ino)
	binary.LittleEndian.PutUint64(buf[8:], off)
	binary.LittleEndian.PutUint16(buf[16:], uint16(reclen))
	buf[18] = direntType(typ)
	n := sizeOfDirent
	n += copy(buf[n:], name)
	buf[n] = 0
	return reclen
}

// ReadDirent reads a directory entry from buf, returning the number of bytes
// consumed and the values extracted from the buffer.
//
// If the buffer was too short to contain a directory entry, the function
// returns io.ErrShortBuffer.
func ReadDirent(buf []byte) (n int, typ fs.FileMode, ino, off uint64, name []byte, err error) {
	if len(buf) < sizeOfDirent {
		err = io.ErrShortBuffer
		return
	}
	reclen := int(binary.LittleEndian.Uint16(buf[16:]))
	if reclen < sizeOfDirent || reclen > len(buf) {
		err = io.ErrShortBuffer
		return
	}
	ino = binary.LittleEndian.Uint64(buf[0:])
	off = binary.LittleEndian.Uint64(buf[8:])
	typ = direntMode(buf[18])

	name = buf[sizeOfDirent:reclen:reclen]
	if k := bytes.IndexByte(name, 0); k >= 0 {
		name = name[:k:k]
	}
	n = reclen
	return
}

func direntType(mode fs.FileMode) uint8 {
	switch mode.Type() {
	case 0:
		return DT_REG
	case fs.ModeDevice:
		return DT_BLK
	case fs.ModeDevice | fs.ModeCharDevice:
		return DT_CHR
	case fs.ModeDir:
		return DT_DIR
	case fs.ModeNamedPipe:
		return DT_FIFO
	case fs.ModeSymlink:
		return DT_LNK
	case fs.ModeSocket:
		return DT_SOCK
	default:
		return DT_UNKNOWN
	}
}

func direntMode(typ uint8) fs.FileMode {
	switch typ {
	case DT_REG:
		return 0
	case DT_BLK:
		return fs.ModeDevice
	case DT_CHR:
		return fs.ModeDevice | fs.ModeCharDevice
	case DT_DIR:
		return fs.ModeDir
	case DT_LNK:
		return fs.ModeSymlink
	case DT_FIFO:
		return fs.ModeNamedPipe
	case DT_SOCK:
		return fs.ModeSocket
	default:
		return fs.ModeIrregular
	}
}
