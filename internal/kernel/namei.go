package kernel

import (
	"bytes"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/stealthrocket/fsreplay/internal/vfs"
	"github.com/stealthrocket/fsreplay/internal/vfs/fspath"
)

// location is the result of resolving a path of the namespace: the root of
// the file system that the path belongs to, and the name relative to it.
type location struct {
	dir     vfs.File
	name    string
	mounted bool
	// isMountPoint is set when the path names the mount point itself, or one
	// of the namespace directories leading to it.
	isMountPoint bool
}

// cstring extracts the string of a NUL-terminated path argument.
func cstring(b []byte) (string, error) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return "", vfs.EFAULT
	}
	return string(b[:i]), nil
}

// namei resolves a path argument. Relative paths are interpreted from the
// root of the namespace, which is the working directory of the replay.
//
// Namespace elements are resolved lexically until the path enters the mount
// point. From there the remainder is passed as written to the mounted file
// system, which resolves its ".." elements and symbolic links the way the
// file system would, unless the remainder climbs back above the mount point.
func (k *Kernel) namei(p []byte) (location, error) {
	if k.root == nil {
		return location{}, vfs.ENOENT
	}
	s, err := cstring(p)
	if err != nil {
		return location{}, err
	}
	switch {
	case s == "":
		return location{}, vfs.ENOENT
	case len(s) >= vfs.PATH_MAX:
		return location{}, vfs.ENAMETOOLONG
	}

	elems := strings.Split(s, "/")
	mountPoint := splitElems(k.mountPoint)

	var ns []string
	for i := 0; ; i++ {
		if slices.Equal(ns, mountPoint) && staysBelow(elems[i:]) {
			rest := strings.Join(elems[i:], "/")
			if fspath.TrimLeadingSlash(rest) == "" {
				return location{dir: k.root, name: ".", mounted: true, isMountPoint: true}, nil
			}
			return location{dir: k.root, name: fspath.TrimLeadingSlash(rest), mounted: true}, nil
		}
		if i == len(elems) {
			break
		}
		// The last element of the path is kept as written when it is a dot
		// or dot-dot, so the file system sees what the operation targets.
		if last := i == lastElem(elems); last && (elems[i] == "." || elems[i] == "..") {
			name := strings.Join(append(ns, elems[i]), "/")
			if len(mountPoint) == 0 {
				return location{dir: k.root, name: name, mounted: true}, nil
			}
			return location{dir: k.nsRoot, name: name}, nil
		}
		switch elems[i] {
		case "", ".":
		case "..":
			if len(ns) > 0 {
				ns = ns[:len(ns)-1]
			}
		default:
			ns = append(ns, elems[i])
		}
	}

	name := "/" + strings.Join(ns, "/")
	loc := location{
		dir:          k.nsRoot,
		name:         relative(fspath.TrimLeadingSlash(name)),
		isMountPoint: isAncestor(name, k.mountPoint),
	}
	if fspath.HasTrailingSlash(s) && loc.name != "." {
		loc.name += "/"
	}
	return loc, nil
}

// splitElems returns the elements of a clean absolute path.
func splitElems(p string) []string {
	if p = fspath.TrimLeadingSlash(p); p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// lastElem returns the index of the last non-empty element, or -1.
func lastElem(elems []string) int {
	for i := len(elems) - 1; i >= 0; i-- {
		if elems[i] != "" {
			return i
		}
	}
	return -1
}

// staysBelow reports whether the ".." elements of a relative path never climb
// above the directory it starts from.
func staysBelow(elems []string) bool {
	depth := 0
	for _, elem := range elems {
		switch elem {
		case "", ".":
		case "..":
			if depth--; depth < 0 {
				return false
			}
		default:
			depth++
		}
	}
	return true
}

func relative(p string) string {
	if p == "" {
		return "."
	}
	return p
}

func isAncestor(dir, p string) bool {
	return dir == "/" || dir == p || strings.HasPrefix(p, dir+"/")
}

// writable returns EROFS if loc is on the mounted file system and the
// kernel was booted read-only.
func (k *Kernel) writable(loc location) error {
	if loc.mounted && k.boot.ReadOnly {
		return vfs.EROFS
	}
	return nil
}

// removable is like writable for operations which remove or replace the
// entry at loc. Mount points and the directories leading to them are busy.
func (k *Kernel) removable(loc location) error {
	if loc.isMountPoint {
		return vfs.EBUSY
	}
	return k.writable(loc)
}
