package kernel

import (
	"strings"

	"github.com/stealthrocket/fsreplay/internal/vfs"
)

// Modes of access(2).
const (
	F_OK = 0
	X_OK = 1
	W_OK = 2
	R_OK = 4
)

// sendfileChunkSize is the size of the intermediary buffer of Sendfile.
const sendfileChunkSize = 64 * 1024

func errno(err error) int64 {
	return -int64(vfs.ErrnoOf(err))
}

func status(err error) int64 {
	if err != nil {
		return errno(err)
	}
	return 0
}

// cname truncates s at its first NUL byte, like a C string would be.
func cname(s string) string {
	if i := strings.IndexByte(s, 0); i >= 0 {
		return s[:i]
	}
	return s
}

func (k *Kernel) Open(path []byte, flags, mode uint32) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	loc, err := k.namei(path)
	if err != nil {
		return errno(err)
	}
	oflags := vfs.OpenFlags(flags)

	if err := k.writable(loc); err != nil {
		if oflags.Writable() || oflags&vfs.O_TRUNC != 0 {
			return errno(err)
		}
		if oflags&vfs.O_CREAT != 0 {
			// Opening an existing file with O_CREAT does not write to the
			// file system.
			_, statErr := loc.dir.Stat(loc.name, oflags.LookupFlags())
			switch {
			case statErr != nil:
				return errno(err)
			case oflags&vfs.O_EXCL != 0:
				return errno(vfs.EEXIST)
			}
		}
	}

	f, err := loc.dir.Open(loc.name, oflags, makeMode(mode))
	if err != nil {
		return errno(err)
	}
	return int64(k.allocFD(&openFile{
		file:    f,
		path:    loc.name,
		flags:   oflags,
		mounted: loc.mounted,
	}))
}

func (k *Kernel) Close(fd int32) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	f, err := k.lookupFD(fd)
	if err != nil {
		return errno(err)
	}
	k.files[fd] = nil
	return status(f.file.Close())
}

func (k *Kernel) Read(fd int32, buf []byte, count uint64) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	f, err := k.lookupFD(fd)
	if err != nil {
		return errno(err)
	}
	if count > uint64(len(buf)) {
		return errno(vfs.EFAULT)
	}
	n, err := f.file.Readv([][]byte{buf[:count]})
	if err != nil {
		return errno(err)
	}
	return int64(n)
}

func (k *Kernel) Write(fd int32, buf []byte, count uint64) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	f, err := k.lookupFD(fd)
	if err != nil {
		return errno(err)
	}
	if count > uint64(len(buf)) {
		return errno(vfs.EFAULT)
	}
	n, err := f.file.Writev([][]byte{buf[:count]})
	if err != nil && n == 0 {
		return errno(err)
	}
	return int64(n)
}

func (k *Kernel) Lseek(fd int32, offset int64, whence uint32) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	f, err := k.lookupFD(fd)
	if err != nil {
		return errno(err)
	}
	if whence > vfs.SEEK_END {
		return errno(vfs.EINVAL)
	}
	off, err := f.file.Seek(offset, int(whence))
	if err != nil {
		return errno(err)
	}
	return off
}

func (k *Kernel) Getdents64(fd int32, buf []byte, count uint64) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	f, err := k.lookupFD(fd)
	if err != nil {
		return errno(err)
	}
	if count > uint64(len(buf)) {
		return errno(vfs.EFAULT)
	}
	n, err := f.file.ReadDirent(buf[:count])
	if err != nil {
		return errno(err)
	}
	return int64(n)
}

func (k *Kernel) Pread64(fd int32, buf []byte, count uint64, offset int64) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	f, err := k.lookupFD(fd)
	if err != nil {
		return errno(err)
	}
	if count > uint64(len(buf)) {
		return errno(vfs.EFAULT)
	}
	if offset < 0 {
		return errno(vfs.EINVAL)
	}
	n, err := f.file.Preadv([][]byte{buf[:count]}, offset)
	if err != nil {
		return errno(err)
	}
	return int64(n)
}

func (k *Kernel) Pwrite64(fd int32, buf []byte, count uint64, offset int64) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	f, err := k.lookupFD(fd)
	if err != nil {
		return errno(err)
	}
	if count > uint64(len(buf)) {
		return errno(vfs.EFAULT)
	}
	if offset < 0 {
		return errno(vfs.EINVAL)
	}
	n, err := f.file.Pwritev([][]byte{buf[:count]}, offset)
	if err != nil && n == 0 {
		return errno(err)
	}
	return int64(n)
}

func (k *Kernel) Fstat(fd int32, st *Stat) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	f, err := k.lookupFD(fd)
	if err != nil {
		return errno(err)
	}
	if st == nil {
		return errno(vfs.EFAULT)
	}
	info, err := f.file.Stat("", vfs.AT_SYMLINK_NOFOLLOW)
	if err != nil {
		return errno(err)
	}
	*st = makeStat(info)
	return 0
}

func (k *Kernel) Rename(oldPath, newPath []byte) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	oldLoc, err := k.namei(oldPath)
	if err != nil {
		return errno(err)
	}
	newLoc, err := k.namei(newPath)
	if err != nil {
		return errno(err)
	}
	if err := k.removable(oldLoc); err != nil {
		return errno(err)
	}
	if err := k.removable(newLoc); err != nil {
		return errno(err)
	}
	if oldLoc.mounted != newLoc.mounted {
		return errno(vfs.EXDEV)
	}
	return status(oldLoc.dir.Rename(oldLoc.name, newLoc.dir, newLoc.name))
}

func (k *Kernel) Fsync(fd int32) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	f, err := k.lookupFD(fd)
	if err != nil {
		return errno(err)
	}
	return status(f.file.Sync())
}

func (k *Kernel) Fdatasync(fd int32) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	f, err := k.lookupFD(fd)
	if err != nil {
		return errno(err)
	}
	return status(f.file.Datasync())
}

func (k *Kernel) Syncfs(fd int32) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	f, err := k.lookupFD(fd)
	if err != nil {
		return errno(err)
	}
	fsys := vfs.FileSystem(k.nsfs)
	if f.mounted {
		fsys = k.fsys
	}
	if s, ok := fsys.(vfs.Syncer); ok {
		return status(s.Sync())
	}
	return 0
}

// Sendfile copies count bytes from inFD to outFD. When offset is not nil, the
// data is read from *offset, which is then advanced, and the seek offset of
// inFD is left unchanged.
func (k *Kernel) Sendfile(outFD, inFD int32, offset *int64, count uint64) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	out, err := k.lookupFD(outFD)
	if err != nil {
		return errno(err)
	}
	in, err := k.lookupFD(inFD)
	if err != nil {
		return errno(err)
	}
	if !in.flags.Readable() || !out.flags.Writable() {
		return errno(vfs.EBADF)
	}
	if out.flags&vfs.O_APPEND != 0 {
		return errno(vfs.EINVAL)
	}
	if offset != nil && *offset < 0 {
		return errno(vfs.EINVAL)
	}

	total, err := copyFile(out.file, in.file, offset, count)
	if total == 0 && err != nil {
		return errno(err)
	}
	return total
}

// copyFile moves up to count bytes from in to out, reading at *offset when it
// is not nil. The error is only meaningful when nothing was copied.
func copyFile(out, in vfs.File, offset *int64, count uint64) (total int64, err error) {
	buf := make([]byte, min(count, sendfileChunkSize))

	for count > 0 {
		chunk := buf[:min(count, uint64(len(buf)))]
		var rn int
		if offset != nil {
			rn, err = in.Preadv([][]byte{chunk}, *offset)
		} else {
			rn, err = in.Readv([][]byte{chunk})
		}
		if err != nil || rn == 0 {
			break
		}
		wn, werr := out.Writev([][]byte{chunk[:rn]})
		if offset != nil {
			*offset += int64(wn)
		} else if wn < rn {
			// The bytes that were not written must be read again.
			if _, serr := in.Seek(int64(wn-rn), vfs.SEEK_CUR); serr != nil && werr == nil {
				werr = serr
			}
		}
		total += int64(wn)
		count -= uint64(wn)
		if werr != nil || wn < rn {
			err = werr
			break
		}
	}
	return total, err
}

func (k *Kernel) Access(path []byte, mode int32) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	if mode&^(R_OK|W_OK|X_OK) != 0 {
		return errno(vfs.EINVAL)
	}
	loc, err := k.namei(path)
	if err != nil {
		return errno(err)
	}
	info, err := loc.dir.Stat(loc.name, 0)
	if err != nil {
		return errno(err)
	}
	if mode&W_OK != 0 {
		if err := k.writable(loc); err != nil {
			return errno(err)
		}
	}
	if mode&X_OK != 0 && !info.Mode.IsDir() && info.Mode.Perm()&0111 == 0 {
		return errno(vfs.EACCES)
	}
	return 0
}

func (k *Kernel) Ftruncate(fd int32, length int64) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	f, err := k.lookupFD(fd)
	if err != nil {
		return errno(err)
	}
	if length < 0 {
		return errno(vfs.EINVAL)
	}
	return status(f.file.Truncate(length))
}

func (k *Kernel) Truncate(path []byte, length int64) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	loc, err := k.namei(path)
	if err != nil {
		return errno(err)
	}
	if length < 0 {
		return errno(vfs.EINVAL)
	}
	if err := k.writable(loc); err != nil {
		return errno(err)
	}
	f, err := loc.dir.Open(loc.name, vfs.O_WRONLY, 0)
	if err != nil {
		return errno(err)
	}
	defer f.Close()
	return status(f.Truncate(length))
}

func (k *Kernel) Mkdir(path []byte, mode uint32) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	loc, err := k.namei(path)
	if err != nil {
		return errno(err)
	}
	if err := k.writable(loc); err != nil {
		return errno(err)
	}
	return status(loc.dir.Mkdir(strings.TrimSuffix(loc.name, "/"), makeMode(mode)))
}

func (k *Kernel) Rmdir(path []byte) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	loc, err := k.namei(path)
	if err != nil {
		return errno(err)
	}
	if err := k.removable(loc); err != nil {
		return errno(err)
	}
	return status(loc.dir.Rmdir(strings.TrimSuffix(loc.name, "/")))
}

func (k *Kernel) Unlink(path []byte) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	loc, err := k.namei(path)
	if err != nil {
		return errno(err)
	}
	if err := k.removable(loc); err != nil {
		return errno(err)
	}
	return status(loc.dir.Unlink(loc.name))
}

// Link creates newPath as a hard link to oldPath. Like link(2), symbolic links
// are not followed.
func (k *Kernel) Link(oldPath, newPath []byte) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	oldLoc, err := k.namei(oldPath)
	if err != nil {
		return errno(err)
	}
	newLoc, err := k.namei(newPath)
	if err != nil {
		return errno(err)
	}
	if oldLoc.mounted != newLoc.mounted {
		return errno(vfs.EXDEV)
	}
	if err := k.writable(newLoc); err != nil {
		return errno(err)
	}
	return status(oldLoc.dir.Link(oldLoc.name, newLoc.dir, newLoc.name, vfs.AT_SYMLINK_NOFOLLOW))
}

// Symlink creates a symbolic link at linkPath pointing to target.
//
// The mounted file system resolves absolute targets from its own root, so
// targets below the mount point are stored relative to it: a link to
// "/mnt/image/a" created in an image mounted at /mnt/image points to "/a".
func (k *Kernel) Symlink(target, linkPath []byte) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	name, err := cstring(target)
	if err != nil {
		return errno(err)
	}
	switch {
	case name == "":
		return errno(vfs.ENOENT)
	case len(name) >= vfs.PATH_MAX:
		return errno(vfs.ENAMETOOLONG)
	}
	loc, err := k.namei(linkPath)
	if err != nil {
		return errno(err)
	}
	if err := k.writable(loc); err != nil {
		return errno(err)
	}
	if loc.mounted && strings.HasPrefix(name, "/") && k.mountPoint != "/" {
		if name == k.mountPoint {
			name = "/"
		} else if rest, ok := strings.CutPrefix(name, k.mountPoint+"/"); ok {
			name = "/" + rest
		}
	}
	return status(loc.dir.Symlink(name, loc.name))
}

// Setxattr sets the extended attribute attr of the file at path to the first
// size bytes of value.
func (k *Kernel) Setxattr(path []byte, attr string, value []byte, size uint64, flags uint32) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	loc, err := k.namei(path)
	if err != nil {
		return errno(err)
	}
	if size > uint64(len(value)) {
		return errno(vfs.EFAULT)
	}
	attr, value = cname(attr), value[:size]
	if err := vfs.ValidateXattr(attr, value, int(flags)); err != nil {
		return errno(err)
	}
	if err := k.writable(loc); err != nil {
		return errno(err)
	}
	return status(loc.dir.Setxattr(loc.name, attr, value, int(flags)))
}

// Listxattr writes the NUL separated list of extended attribute names of the
// file at path to buf. When buf is empty, the size of the list is returned.
func (k *Kernel) Listxattr(path []byte, buf []byte) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	loc, err := k.namei(path)
	if err != nil {
		return errno(err)
	}
	n, err := loc.dir.Listxattr(loc.name, buf)
	if err != nil {
		return errno(err)
	}
	return int64(n)
}

func (k *Kernel) Removexattr(path []byte, attr string) int64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	loc, err := k.namei(path)
	if err != nil {
		return errno(err)
	}
	attr = cname(attr)
	if err := vfs.ValidateXattr(attr, nil, 0); err != nil {
		return errno(err)
	}
	if err := k.writable(loc); err != nil {
		return errno(err)
	}
	return status(loc.dir.Removexattr(loc.name, attr))
}
