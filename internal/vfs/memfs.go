package vfs

import (
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/stealthrocket/fsreplay/internal/vfs/fspath"
)

// MemFS is an in-memory implementation of the FileSystem interface. It backs
// the tmpfs, tar, and oci image types.
//
// All operations are serialized by a single mutex; the file system is meant to
// be driven by one replay at a time.
type MemFS struct {
	mu    sync.Mutex
	root  *inode
	ino   uint64
	used  int64
	limit int64
	now   func() time.Time
}

// NewMemFS creates an empty file system. When limit is positive, writes which
// would grow the total size of file data past it fail with ENOSPC.
func NewMemFS(limit int64) *MemFS {
	fsys := &MemFS{limit: limit, now: time.Now}
	fsys.root = fsys.newInode(fs.ModeDir | 0755)
	fsys.root.parent = fsys.root
	return fsys
}

// Used returns the number of bytes of file data held by the file system.
func (fsys *MemFS) Used() int64 {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	return fsys.used
}

// Open satisfies FileSystem.
func (fsys *MemFS) Open(name string, flags OpenFlags, mode fs.FileMode) (File, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	f, err := fsys.open(fsys.root, "/", name, flags, mode, 0)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return f, nil
}

// Sync satisfies Syncer, there is nothing to flush.
func (fsys *MemFS) Sync() error { return nil }

type inode struct {
	ino    uint64
	mode   fs.FileMode
	nlink  uint64
	rdev   uint64
	data   []byte
	target string
	ents   map[string]*inode
	parent *inode
	xattrs map[string][]byte
	atime  time.Time
	mtime  time.Time
	ctime  time.Time
}

func (fsys *MemFS) newInode(mode fs.FileMode) *inode {
	fsys.ino++
	now := fsys.now()
	node := &inode{
		ino:   fsys.ino,
		mode:  mode,
		nlink: 1,
		atime: now,
		mtime: now,
		ctime: now,
	}
	if mode.IsDir() {
		node.ents = make(map[string]*inode)
	}
	return node
}

func (node *inode) isDir() bool     { return node.mode.IsDir() }
func (node *inode) isSymlink() bool { return node.mode.Type() == fs.ModeSymlink }
func (node *inode) isRegular() bool { return node.mode.IsRegular() }

func (node *inode) child(name string) *inode {
	switch name {
	case ".":
		return node
	case "..":
		return node.parent
	default:
		return node.ents[name]
	}
}

func (node *inode) stat() FileInfo {
	info := FileInfo{
		Ino:   node.ino,
		Nlink: node.nlink,
		Mode:  node.mode,
		Rdev:  node.rdev,
		Size:  int64(len(node.data)),
		Atime: node.atime,
		Mtime: node.mtime,
		Ctime: node.ctime,
	}
	switch {
	case node.isDir():
		info.Nlink = 2
		for _, ent := range node.ents {
			if ent.isDir() {
				info.Nlink++
			}
		}
		info.Size = int64(4096)
	case node.isSymlink():
		info.Size = int64(len(node.target))
	}
	return info
}

func (node *inode) sortedNames() []string {
	names := make([]string, 0, len(node.ents))
	for name := range node.ents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// isAncestorOf reports whether node is dir or one of its parents.
func (node *inode) isAncestorOf(dir *inode) bool {
	for {
		if dir == node {
			return true
		}
		if dir.parent == dir {
			return false
		}
		dir = dir.parent
	}
}

// lookup resolves name relative to dir. Symbolic links in intermediate
// positions are always followed, the last one only if follow is true or the
// name ends with a slash.
func (fsys *MemFS) lookup(dir *inode, name string, follow bool, loops *int) (*inode, error) {
	if name == "" {
		return nil, ENOENT
	}
	if len(name) > PATH_MAX {
		return nil, ENAMETOOLONG
	}
	if fspath.IsAbs(name) {
		dir = fsys.root
	}
	trailingSlash := fspath.HasTrailingSlash(name)

	node := dir
	for rest := name; ; {
		elem, next := fspath.Walk(rest)
		if elem == "" {
			break
		}
		if !node.isDir() {
			return nil, ENOTDIR
		}
		if len(elem) > 255 {
			return nil, ENAMETOOLONG
		}
		child := node.child(elem)
		if child == nil {
			return nil, ENOENT
		}
		if child.isSymlink() && (next != "" || follow || trailingSlash) {
			if *loops++; *loops > MaxFollowSymlink {
				return nil, ELOOP
			}
			target, err := fsys.lookup(node, child.target, true, loops)
			if err != nil {
				return nil, err
			}
			child = target
		}
		node, rest = child, next
		if rest == "" {
			break
		}
	}

	if trailingSlash && !node.isDir() {
		return nil, ENOTDIR
	}
	return node, nil
}

// lookupParent resolves the directory containing the last element of name and
// returns it along with the base name of the element.
func (fsys *MemFS) lookupParent(dir *inode, name string) (*inode, string, error) {
	if name == "" {
		return nil, "", ENOENT
	}
	if len(name) > PATH_MAX {
		return nil, "", ENAMETOOLONG
	}
	dirname, base := fspath.Split(name)
	if len(base) > 255 {
		return nil, "", ENAMETOOLONG
	}
	loops := 0
	parent, err := fsys.lookup(dir, dirname, true, &loops)
	if err != nil {
		return nil, "", err
	}
	if !parent.isDir() {
		return nil, "", ENOTDIR
	}
	return parent, base, nil
}

func (fsys *MemFS) open(dir *inode, dirName, name string, flags OpenFlags, mode fs.FileMode, loops int) (*memFile, error) {
	if name == "" {
		return nil, ENOENT
	}
	follow := flags&O_NOFOLLOW == 0 && flags&(O_CREAT|O_EXCL) != (O_CREAT|O_EXCL)

	node, err := fsys.lookup(dir, name, follow, &loops)
	switch {
	case err == ENOENT && flags&O_CREAT != 0:
		if flags&O_DIRECTORY != 0 {
			return nil, EINVAL
		}
		parent, base, err := fsys.lookupParent(dir, name)
		if err != nil {
			return nil, err
		}
		if fspath.HasTrailingSlash(name) {
			return nil, EISDIR
		}
		if link := parent.ents[base]; link != nil && link.isSymlink() {
			// dangling symbolic link, the file is created at its target
			if loops++; loops > MaxFollowSymlink {
				return nil, ELOOP
			}
			return fsys.open(parent, dirName, link.target, flags, mode, loops)
		}
		if parent.nlink == 0 {
			return nil, ENOENT
		}
		node = fsys.newInode(mode.Perm())
		fsys.insert(parent, base, node)
		return fsys.newFile(node, fspath.Join(dirName, name), flags), nil
	case err != nil:
		return nil, err
	}

	if flags&(O_CREAT|O_EXCL) == (O_CREAT|O_EXCL) {
		return nil, EEXIST
	}
	if flags&O_PATH != 0 {
		if flags&O_DIRECTORY != 0 && !node.isDir() {
			return nil, ENOTDIR
		}
		return fsys.newFile(node, fspath.Join(dirName, name), flags), nil
	}

	switch {
	case node.isSymlink():
		return nil, ELOOP
	case node.isDir():
		if flags&O_CREAT != 0 || flags.Writable() {
			return nil, EISDIR
		}
	case flags&O_DIRECTORY != 0:
		return nil, ENOTDIR
	case !node.isRegular():
		return nil, ENXIO
	}

	if flags&O_TRUNC != 0 && node.isRegular() {
		fsys.truncate(node, 0)
	}
	return fsys.newFile(node, fspath.Join(dirName, name), flags), nil
}

func (fsys *MemFS) newFile(node *inode, name string, flags OpenFlags) *memFile {
	return &memFile{fsys: fsys, node: node, name: name, flags: flags}
}

func (fsys *MemFS) insert(parent *inode, name string, node *inode) {
	if node.isDir() {
		node.parent = parent
	}
	parent.ents[name] = node
	parent.mtime = fsys.now()
	parent.ctime = parent.mtime
}

func (fsys *MemFS) remove(parent *inode, name string) {
	node := parent.ents[name]
	delete(parent.ents, name)
	parent.mtime = fsys.now()
	parent.ctime = parent.mtime
	if node.nlink > 0 {
		node.nlink--
	}
	if node.isDir() {
		node.nlink = 0
	}
	if node.nlink == 0 {
		fsys.used -= int64(len(node.data))
		if fsys.used < 0 {
			fsys.used = 0
		}
	}
}

func (fsys *MemFS) grow(node *inode, size int64) error {
	if size <= int64(len(node.data)) {
		return nil
	}
	delta := size - int64(len(node.data))
	if node.nlink == 0 {
		delta = 0
	}
	if fsys.limit > 0 && fsys.used+delta > fsys.limit {
		return ENOSPC
	}
	if size > int64(cap(node.data)) {
		data := make([]byte, size, 2*size)
		copy(data, node.data)
		node.data = data
	} else {
		node.data = node.data[:size]
	}
	fsys.used += delta
	return nil
}

func (fsys *MemFS) truncate(node *inode, size int64) error {
	if size > int64(len(node.data)) {
		if err := fsys.grow(node, size); err != nil {
			return err
		}
	} else {
		clear(node.data[size:])
		if node.nlink > 0 {
			fsys.used -= int64(len(node.data)) - size
		}
		node.data = node.data[:size]
	}
	node.mtime = fsys.now()
	node.ctime = node.mtime
	return nil
}

func (fsys *MemFS) pwrite(node *inode, iovs [][]byte, offset int64) (int, error) {
	size := 0
	for _, iov := range iovs {
		size += len(iov)
	}
	if size == 0 {
		return 0, nil
	}
	end := offset + int64(size)
	if err := fsys.grow(node, end); err != nil {
		// write as much as fits before reporting the error
		if fsys.limit <= 0 {
			return 0, err
		}
		avail := fsys.limit - fsys.used + int64(len(node.data))
		if avail <= offset {
			return 0, err
		}
		end = avail
		if err := fsys.grow(node, end); err != nil {
			return 0, err
		}
	}
	n := 0
	for _, iov := range iovs {
		n += copy(node.data[offset+int64(n):end], iov)
	}
	node.mtime = fsys.now()
	node.ctime = node.mtime
	return n, nil
}

func preadInode(node *inode, iovs [][]byte, offset int64) int {
	n := 0
	for _, iov := range iovs {
		if offset >= int64(len(node.data)) {
			break
		}
		c := copy(iov, node.data[offset:])
		offset += int64(c)
		n += c
	}
	return n
}

func (fsys *MemFS) setxattr(node *inode, attr string, value []byte, flags int) error {
	if err := ValidateXattr(attr, value, flags); err != nil {
		return err
	}
	_, exists := node.xattrs[attr]
	switch {
	case flags&XATTR_CREATE != 0 && exists:
		return EEXIST
	case flags&XATTR_REPLACE != 0 && !exists:
		return ENODATA
	}
	if node.xattrs == nil {
		node.xattrs = make(map[string][]byte)
	}
	node.xattrs[attr] = append([]byte{}, value...)
	node.ctime = fsys.now()
	return nil
}

func getxattrInode(node *inode, attr string, buf []byte) (int, error) {
	if err := validateXattrName(attr); err != nil {
		return 0, err
	}
	value, exists := node.xattrs[attr]
	switch {
	case !exists:
		return 0, ENODATA
	case len(buf) == 0:
		return len(value), nil
	case len(buf) < len(value):
		return 0, ERANGE
	default:
		return copy(buf, value), nil
	}
}

func listxattrInode(node *inode, buf []byte) (int, error) {
	names := make([]string, 0, len(node.xattrs))
	size := 0
	for name := range node.xattrs {
		names = append(names, name)
		size += len(name) + 1
	}
	switch {
	case len(buf) == 0:
		return size, nil
	case len(buf) < size:
		return 0, ERANGE
	}
	sort.Strings(names)
	n := 0
	for _, name := range names {
		n += copy(buf[n:], name)
		buf[n] = 0
		n++
	}
	return n, nil
}

func (fsys *MemFS) removexattr(node *inode, attr string) error {
	if err := validateXattrName(attr); err != nil {
		return err
	}
	if _, exists := node.xattrs[attr]; !exists {
		return ENODATA
	}
	delete(node.xattrs, attr)
	node.ctime = fsys.now()
	return nil
}

var (
	_ FileSystem = (*MemFS)(nil)
	_ Syncer     = (*MemFS)(nil)
)
