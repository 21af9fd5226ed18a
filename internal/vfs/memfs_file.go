package vfs

import (
	"io/fs"

	"github.com/stealthrocket/fsreplay/internal/vfs/fspath"
)

type memFile struct {
	fsys   *MemFS
	node   *inode
	name   string
	flags  OpenFlags
	offset int64
	closed bool
}

func (f *memFile) Name() string { return f.name }

func (f *memFile) Close() error {
	f.fsys.mu.Lock()
	defer f.fsys.mu.Unlock()
	if f.closed {
		return EBADF
	}
	f.closed = true
	return nil
}

// lock acquires the file system mutex and checks that the file is usable for
// the operation. Files opened with O_PATH only support path-based operations.
func (f *memFile) lock(pathOnly bool) error {
	f.fsys.mu.Lock()
	if f.closed || (!pathOnly && f.flags&O_PATH != 0) {
		f.fsys.mu.Unlock()
		return EBADF
	}
	return nil
}

func (f *memFile) unlock() { f.fsys.mu.Unlock() }

func (f *memFile) Open(name string, flags OpenFlags, mode fs.FileMode) (File, error) {
	if err := f.lock(true); err != nil {
		return nil, err
	}
	defer f.unlock()
	if !f.node.isDir() {
		return nil, ENOTDIR
	}
	return f.fsys.open(f.node, f.name, name, flags, mode, 0)
}

func (f *memFile) Readv(iovs [][]byte) (int, error) {
	if err := f.lock(false); err != nil {
		return 0, err
	}
	defer f.unlock()
	if err := f.checkRead(); err != nil {
		return 0, err
	}
	n := preadInode(f.node, iovs, f.offset)
	f.offset += int64(n)
	f.node.atime = f.fsys.now()
	return n, nil
}

func (f *memFile) Preadv(iovs [][]byte, offset int64) (int, error) {
	if err := f.lock(false); err != nil {
		return 0, err
	}
	defer f.unlock()
	if err := f.checkRead(); err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, EINVAL
	}
	return preadInode(f.node, iovs, offset), nil
}

func (f *memFile) checkRead() error {
	switch {
	case !f.flags.Readable():
		return EBADF
	case f.node.isDir():
		return EISDIR
	}
	return nil
}

func (f *memFile) Writev(iovs [][]byte) (int, error) {
	if err := f.lock(false); err != nil {
		return 0, err
	}
	defer f.unlock()
	if !f.flags.Writable() {
		return 0, EBADF
	}
	if f.flags&O_APPEND != 0 {
		f.offset = int64(len(f.node.data))
	}
	n, err := f.fsys.pwrite(f.node, iovs, f.offset)
	f.offset += int64(n)
	return n, err
}

func (f *memFile) Pwritev(iovs [][]byte, offset int64) (int, error) {
	if err := f.lock(false); err != nil {
		return 0, err
	}
	defer f.unlock()
	if !f.flags.Writable() {
		return 0, EBADF
	}
	if offset < 0 {
		return 0, EINVAL
	}
	// Linux appends regardless of the offset when O_APPEND is set.
	if f.flags&O_APPEND != 0 {
		offset = int64(len(f.node.data))
	}
	return f.fsys.pwrite(f.node, iovs, offset)
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	if err := f.lock(false); err != nil {
		return 0, err
	}
	defer f.unlock()

	var base int64
	switch whence {
	case SEEK_SET:
	case SEEK_CUR:
		base = f.offset
	case SEEK_END:
		if f.node.isDir() {
			return 0, EINVAL
		}
		base = int64(len(f.node.data))
	default:
		return 0, EINVAL
	}
	if offset += base; offset < 0 {
		return 0, EINVAL
	}
	f.offset = offset
	return offset, nil
}

func (f *memFile) Truncate(size int64) error {
	if err := f.lock(false); err != nil {
		return err
	}
	defer f.unlock()
	if !f.flags.Writable() || !f.node.isRegular() || size < 0 {
		return EINVAL
	}
	return f.fsys.truncate(f.node, size)
}

func (f *memFile) Sync() error {
	if err := f.lock(false); err != nil {
		return err
	}
	f.unlock()
	return nil
}

func (f *memFile) Datasync() error { return f.Sync() }

// ReadDirent lists ".", "..", and the entries of the directory in name order.
// The seek offset of the file is the index of the next entry to read.
func (f *memFile) ReadDirent(buf []byte) (int, error) {
	if err := f.lock(false); err != nil {
		return 0, err
	}
	defer f.unlock()
	if !f.node.isDir() {
		return 0, ENOTDIR
	}
	if f.node.nlink == 0 {
		return 0, ENOENT
	}

	names := append([]string{".", ".."}, f.node.sortedNames()...)
	n := 0
	for f.offset < int64(len(names)) {
		name := names[f.offset]
		size := SizeOfDirent(len(name))
		if n+size > len(buf) {
			if n == 0 {
				return 0, EINVAL
			}
			break
		}
		node := f.node.child(name)
		n += WriteDirent(buf[n:], node.mode, node.ino, uint64(f.offset+1), name)
		f.offset++
	}
	f.node.atime = f.fsys.now()
	return n, nil
}

func (f *memFile) Stat(name string, flags LookupFlags) (FileInfo, error) {
	if err := f.lock(true); err != nil {
		return FileInfo{}, err
	}
	defer f.unlock()
	node, err := f.resolve(name, flags.Follow())
	if err != nil {
		return FileInfo{}, err
	}
	return node.stat(), nil
}

func (f *memFile) Readlink(name string, buf []byte) (int, error) {
	if err := f.lock(true); err != nil {
		return 0, err
	}
	defer f.unlock()
	node, err := f.resolve(name, false)
	if err != nil {
		return 0, err
	}
	if !node.isSymlink() {
		return 0, EINVAL
	}
	return copy(buf, node.target), nil
}

// resolve returns the inode of the receiver when name is empty, or the inode
// found at name relative to the receiver otherwise.
func (f *memFile) resolve(name string, follow bool) (*inode, error) {
	if name == "" {
		return f.node, nil
	}
	if !f.node.isDir() {
		return nil, ENOTDIR
	}
	loops := 0
	return f.fsys.lookup(f.node, name, follow, &loops)
}

func (f *memFile) parent(name string) (*inode, string, error) {
	if !f.node.isDir() {
		return nil, "", ENOTDIR
	}
	return f.fsys.lookupParent(f.node, name)
}

func (f *memFile) Mkdir(name string, mode fs.FileMode) error {
	if err := f.lock(true); err != nil {
		return err
	}
	defer f.unlock()
	parent, base, err := f.parent(name)
	if err != nil {
		return err
	}
	if base == "" || base == "." || base == ".." || parent.ents[base] != nil {
		return EEXIST
	}
	if parent.nlink == 0 {
		return ENOENT
	}
	f.fsys.insert(parent, base, f.fsys.newInode(fs.ModeDir|mode.Perm()))
	return nil
}

func (f *memFile) Rmdir(name string) error {
	if err := f.lock(true); err != nil {
		return err
	}
	defer f.unlock()
	parent, base, err := f.parent(name)
	if err != nil {
		return err
	}
	switch base {
	case "":
		return EBUSY
	case ".":
		return EINVAL
	case "..":
		return ENOTEMPTY
	}
	node := parent.ents[base]
	switch {
	case node == nil:
		return ENOENT
	case !node.isDir():
		return ENOTDIR
	case len(node.ents) != 0:
		return ENOTEMPTY
	}
	f.fsys.remove(parent, base)
	return nil
}

func (f *memFile) Unlink(name string) error {
	if err := f.lock(true); err != nil {
		return err
	}
	defer f.unlock()
	parent, base, err := f.parent(name)
	if err != nil {
		return err
	}
	if base == "" || base == "." || base == ".." {
		return EISDIR
	}
	node := parent.ents[base]
	switch {
	case node == nil:
		return ENOENT
	case node.isDir():
		return EISDIR
	case fspath.HasTrailingSlash(name):
		return ENOTDIR
	}
	f.fsys.remove(parent, base)
	return nil
}

func (f *memFile) sameFS(dir File) (*memFile, error) {
	d, ok := dir.(*memFile)
	if !ok || d.fsys != f.fsys {
		return nil, EXDEV
	}
	if d.closed {
		return nil, EBADF
	}
	if !d.node.isDir() {
		return nil, ENOTDIR
	}
	return d, nil
}

func (f *memFile) Rename(oldName string, newDir File, newName string) error {
	if err := f.lock(true); err != nil {
		return err
	}
	defer f.unlock()
	d, err := f.sameFS(newDir)
	if err != nil {
		return err
	}
	oldParent, oldBase, err := f.parent(oldName)
	if err != nil {
		return err
	}
	newParent, newBase, err := d.parent(newName)
	if err != nil {
		return err
	}
	if isDotOrEmpty(oldBase) || isDotOrEmpty(newBase) {
		return EBUSY
	}
	node := oldParent.ents[oldBase]
	if node == nil {
		return ENOENT
	}
	if !node.isDir() && (fspath.HasTrailingSlash(oldName) || fspath.HasTrailingSlash(newName)) {
		return ENOTDIR
	}
	target := newParent.ents[newBase]
	if target == node {
		return nil
	}
	if node.isDir() {
		if node.isAncestorOf(newParent) {
			return EINVAL
		}
		if target != nil {
			if !target.isDir() {
				return ENOTDIR
			}
			if len(target.ents) != 0 {
				return ENOTEMPTY
			}
		}
	} else if target != nil && target.isDir() {
		return EISDIR
	}
	if newParent.nlink == 0 {
		return ENOENT
	}
	if target != nil {
		f.fsys.remove(newParent, newBase)
	}
	delete(oldParent.ents, oldBase)
	oldParent.mtime = f.fsys.now()
	oldParent.ctime = oldParent.mtime
	f.fsys.insert(newParent, newBase, node)
	node.ctime = f.fsys.now()
	return nil
}

func (f *memFile) Link(oldName string, newDir File, newName string, flags LookupFlags) error {
	if err := f.lock(true); err != nil {
		return err
	}
	defer f.unlock()
	d, err := f.sameFS(newDir)
	if err != nil {
		return err
	}
	node, err := f.resolve(oldName, flags.Follow())
	if err != nil {
		return err
	}
	if node.isDir() {
		return EPERM
	}
	newParent, newBase, err := d.parent(newName)
	if err != nil {
		return err
	}
	if isDotOrEmpty(newBase) || newParent.ents[newBase] != nil {
		return EEXIST
	}
	if fspath.HasTrailingSlash(newName) {
		return ENOENT
	}
	if newParent.nlink == 0 || node.nlink == 0 {
		return ENOENT
	}
	node.nlink++
	node.ctime = f.fsys.now()
	f.fsys.insert(newParent, newBase, node)
	return nil
}

func (f *memFile) Symlink(oldName, newName string) error {
	if err := f.lock(true); err != nil {
		return err
	}
	defer f.unlock()
	if oldName == "" {
		return ENOENT
	}
	if len(oldName) > PATH_MAX {
		return ENAMETOOLONG
	}
	parent, base, err := f.parent(newName)
	if err != nil {
		return err
	}
	if isDotOrEmpty(base) || parent.ents[base] != nil {
		return EEXIST
	}
	if fspath.HasTrailingSlash(newName) {
		return ENOENT
	}
	if parent.nlink == 0 {
		return ENOENT
	}
	node := f.fsys.newInode(fs.ModeSymlink | 0777)
	node.target = oldName
	f.fsys.insert(parent, base, node)
	return nil
}

func (f *memFile) Setxattr(name, attr string, value []byte, flags int) error {
	if err := f.lock(true); err != nil {
		return err
	}
	defer f.unlock()
	node, err := f.resolve(name, true)
	if err != nil {
		return err
	}
	return f.fsys.setxattr(node, attr, value, flags)
}

func (f *memFile) Getxattr(name, attr string, buf []byte) (int, error) {
	if err := f.lock(true); err != nil {
		return 0, err
	}
	defer f.unlock()
	node, err := f.resolve(name, true)
	if err != nil {
		return 0, err
	}
	return getxattrInode(node, attr, buf)
}

func (f *memFile) Listxattr(name string, buf []byte) (int, error) {
	if err := f.lock(true); err != nil {
		return 0, err
	}
	defer f.unlock()
	node, err := f.resolve(name, true)
	if err != nil {
		return 0, err
	}
	return listxattrInode(node, buf)
}

func (f *memFile) Removexattr(name, attr string) error {
	if err := f.lock(true); err != nil {
		return err
	}
	defer f.unlock()
	node, err := f.resolve(name, true)
	if err != nil {
		return err
	}
	return f.fsys.removexattr(node, attr)
}

func isDotOrEmpty(name string) bool {
	return name == "" || name == "." || name == ".."
}

var (
	_ File = (*memFile)(nil)
)
