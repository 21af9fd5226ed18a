package vfs

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/stealthrocket/fsreplay/internal/compress"
)

// paxXattrPrefix is the prefix of PAX records carrying extended attributes, as
// written by GNU tar and bsdtar.
const paxXattrPrefix = "SCHILY.xattr."

// LoadTar reads a tarball into a new in-memory file system. The tarball may be
// compressed with gzip or zstd, the format is detected from its content and
// returned so the image can be written back in the same form.
//
// Hard links are resolved after all other entries were created since they may
// reference files that appear later in the archive. Missing parent directories
// are created implicitly.
func LoadTar(r io.Reader, limit int64) (*MemFS, compress.Format, error) {
	z, format, err := compress.NewReader(r)
	if err != nil {
		return nil, format, err
	}
	defer z.Close()

	fsys := NewMemFS(limit)
	files := map[string]*inode{"/": fsys.root}
	links := make(map[string]string)
	t := tar.NewReader(z)

	for {
		header, err := t.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, format, err
		}
		name := absPath(header.Name)

		if name == "/" {
			fsys.root.mode = fs.ModeDir | fs.FileMode(header.Mode).Perm()
			setHeaderMetadata(fsys.root, header)
			continue
		}

		var node *inode
		switch header.Typeflag {
		case tar.TypeReg:
			node = fsys.newInode(fs.FileMode(header.Mode).Perm())
			if err := fsys.grow(node, header.Size); err != nil {
				return nil, format, fmt.Errorf("%s: %w", name, err)
			}
			if _, err := io.ReadFull(t, node.data); err != nil {
				return nil, format, fmt.Errorf("%s: %w", name, err)
			}
		case tar.TypeDir:
			node = fsys.newInode(fs.ModeDir | fs.FileMode(header.Mode).Perm())
		case tar.TypeSymlink:
			node = fsys.newInode(fs.ModeSymlink | 0777)
			node.target = header.Linkname
		case tar.TypeChar:
			node = fsys.newInode(fs.ModeDevice | fs.ModeCharDevice | fs.FileMode(header.Mode).Perm())
			node.rdev = mkdev(header.Devmajor, header.Devminor)
		case tar.TypeBlock:
			node = fsys.newInode(fs.ModeDevice | fs.FileMode(header.Mode).Perm())
			node.rdev = mkdev(header.Devmajor, header.Devminor)
		case tar.TypeFifo:
			node = fsys.newInode(fs.ModeNamedPipe | fs.FileMode(header.Mode).Perm())
		case tar.TypeLink:
			if _, exists := links[name]; exists {
				return nil, format, fmt.Errorf("%s: duplicate link entry in tar archive", name)
			}
			links[name] = absPath(header.Linkname)
			continue
		default:
			continue // pax global headers, GNU sparse files, etc...
		}
		setHeaderMetadata(node, header)

		if prev := files[name]; prev != nil {
			// Directories may appear more than once, later entries only
			// update their metadata.
			if !(prev.isDir() && node.isDir()) {
				return nil, format, fmt.Errorf("%s: duplicate file entry in tar archive", name)
			}
			prev.mode, prev.xattrs = node.mode, node.xattrs
			continue
		}
		if err := fsys.makePath(files, name, node); err != nil {
			return nil, format, err
		}
	}

	// Sort link names so the result does not depend on map iteration order
	// when links point to each other.
	names := make([]string, 0, len(links))
	for link := range links {
		names = append(names, link)
	}
	sort.Strings(names)

	for _, link := range names {
		target := files[links[link]]
		if target == nil || target.isDir() {
			return nil, format, fmt.Errorf("%s->%s: hard link to invalid file in tar archive", link, links[link])
		}
		if files[link] != nil {
			return nil, format, fmt.Errorf("%s: duplicate file entry in tar archive", link)
		}
		if err := fsys.makePath(files, link, target); err != nil {
			return nil, format, err
		}
		target.nlink++
	}
	return fsys, format, nil
}

// makePath inserts node at name, creating the missing parent directories.
func (fsys *MemFS) makePath(files map[string]*inode, name string, node *inode) error {
	dirname := path.Dir(name)
	parent := files[dirname]
	if parent == nil {
		parent = fsys.newInode(fs.ModeDir | 0755)
		if err := fsys.makePath(files, dirname, parent); err != nil {
			return err
		}
	}
	if !parent.isDir() {
		return fmt.Errorf("%s: file parent is not a directory", name)
	}
	files[name] = node
	fsys.insert(parent, path.Base(name), node)
	return nil
}

func setHeaderMetadata(node *inode, header *tar.Header) {
	if !header.ModTime.IsZero() {
		node.mtime = header.ModTime
		node.atime = header.ModTime
		node.ctime = header.ModTime
	}
	if !header.AccessTime.IsZero() {
		node.atime = header.AccessTime
	}
	if !header.ChangeTime.IsZero() {
		node.ctime = header.ChangeTime
	}
	for key, value := range header.PAXRecords {
		if attr, ok := strings.CutPrefix(key, paxXattrPrefix); ok {
			if node.xattrs == nil {
				node.xattrs = make(map[string][]byte)
			}
			node.xattrs[attr] = []byte(value)
		}
	}
}

func absPath(p string) string {
	return path.Join("/", p)
}

func mkdev(major, minor int64) uint64 {
	return uint64(major)<<8 | uint64(minor)&0xff | (uint64(minor)&^0xff)<<12
}

// ExportTar writes the content of fsys as a tarball to w, compressed with the
// given format. Entries are written in depth-first name order; files with
// multiple links are written once and referenced by hard link entries after.
func ExportTar(w io.Writer, fsys *MemFS, format compress.Format) error {
	z, err := compress.NewWriter(w, format)
	if err != nil {
		return err
	}
	t := tar.NewWriter(z)

	fsys.mu.Lock()
	err = exportTree(t, fsys.root, ".", make(map[*inode]string))
	fsys.mu.Unlock()

	if err != nil {
		return err
	}
	if err := t.Close(); err != nil {
		return err
	}
	return z.Close()
}

func exportTree(t *tar.Writer, dir *inode, dirname string, seen map[*inode]string) error {
	for _, name := range dir.sortedNames() {
		node := dir.ents[name]
		name = path.Join(dirname, name)

		header := &tar.Header{
			Name:       name,
			Mode:       int64(node.mode.Perm()),
			ModTime:    node.mtime,
			AccessTime: node.atime,
			ChangeTime: node.ctime,
			Format:     tar.FormatPAX,
		}
		for attr, value := range node.xattrs {
			if header.PAXRecords == nil {
				header.PAXRecords = make(map[string]string)
			}
			header.PAXRecords[paxXattrPrefix+attr] = string(value)
		}

		if linkname, ok := seen[node]; ok {
			header.Typeflag = tar.TypeLink
			header.Linkname = linkname
			header.Mode, header.PAXRecords = 0, nil
			if err := t.WriteHeader(header); err != nil {
				return err
			}
			continue
		}
		if !node.isDir() && node.nlink > 1 {
			seen[node] = name
		}

		switch node.mode.Type() {
		case 0:
			header.Typeflag = tar.TypeReg
			header.Size = int64(len(node.data))
		case fs.ModeDir:
			header.Typeflag = tar.TypeDir
			header.Name += "/"
		case fs.ModeSymlink:
			header.Typeflag = tar.TypeSymlink
			header.Linkname = node.target
		case fs.ModeDevice | fs.ModeCharDevice:
			header.Typeflag = tar.TypeChar
			header.Devmajor, header.Devminor = splitdev(node.rdev)
		case fs.ModeDevice:
			header.Typeflag = tar.TypeBlock
			header.Devmajor, header.Devminor = splitdev(node.rdev)
		case fs.ModeNamedPipe:
			header.Typeflag = tar.TypeFifo
		default:
			continue
		}

		if err := t.WriteHeader(header); err != nil {
			return err
		}
		if header.Typeflag == tar.TypeReg {
			if _, err := t.Write(node.data); err != nil {
				return err
			}
		}
		if node.isDir() {
			if err := exportTree(t, node, name, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

func splitdev(dev uint64) (major, minor int64) {
	major = int64((dev >> 8) & 0xfff)
	minor = int64((dev & 0xff) | ((dev >> 12) & 0xfff00))
	return major, minor
}
