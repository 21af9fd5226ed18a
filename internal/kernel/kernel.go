// Package kernel implements the in-process kernel that programs are replayed
// against.
//
// A Kernel is created by mounting a file system image. The image is attached
// at a mount point of an otherwise empty in-memory namespace, and the kernel
// exposes system call entry points operating on that namespace. Entry points
// take primitive arguments, with paths given as NUL-terminated byte slices,
// and return a signed 64 bit result where negative values are the negated
// error codes of failed calls.
//
// Each kernel owns its own namespace and descriptor table, so independent
// replays may run concurrently as long as they use different kernels.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/stealthrocket/fsreplay/internal/compress"
	"github.com/stealthrocket/fsreplay/internal/vfs"
)

const (
	// DefaultMountPoint is where images are mounted when Options does not
	// specify a mount point.
	DefaultMountPoint = "/mnt/image"

	// DefaultBoot is the kernel command line used when Options does not
	// specify one.
	DefaultBoot = "mem=128M"
)

// File system types accepted by Mount.
const (
	FileSystemAuto  = "auto"
	FileSystemDir   = "dir"
	FileSystemTar   = "tar"
	FileSystemOCI   = "oci"
	FileSystemTmpfs = "tmpfs"
)

// FileSystems lists the file system types that Mount accepts.
var FileSystems = []string{
	FileSystemAuto,
	FileSystemDir,
	FileSystemOCI,
	FileSystemTar,
	FileSystemTmpfs,
}

// Options configures the kernel created by Mount.
type Options struct {
	// Path to the image to mount. Ignored by tmpfs.
	Image string
	// Type of file system that the image holds, one of FileSystems. The
	// empty string is the same as "auto".
	FileSystem string
	// Kernel command line, see BootOptions.
	Boot string
	// Absolute path that the image is mounted at.
	MountPoint string
}

// Kernel is an instance of the in-process kernel, with a mounted image.
type Kernel struct {
	mu         sync.Mutex
	id         uuid.UUID
	boot       BootOptions
	fstype     string
	mountPoint string
	image      string

	// The namespace holds the directories leading to the mount point, the
	// mounted file system holds everything below it.
	nsfs   *vfs.MemFS
	nsRoot vfs.File
	fsys   vfs.FileSystem
	root   vfs.File

	tarFormat compress.Format
	closeFS   func() error

	files []*openFile
}

type openFile struct {
	file    vfs.File
	path    string
	flags   vfs.OpenFlags
	mounted bool
}

// Mount boots a kernel and mounts the image described by opts. The context
// bounds the time spent loading the image.
func Mount(ctx context.Context, opts Options) (*Kernel, error) {
	if opts.Boot == "" {
		opts.Boot = DefaultBoot
	}
	if opts.MountPoint == "" {
		opts.MountPoint = DefaultMountPoint
	}
	if opts.FileSystem == "" {
		opts.FileSystem = FileSystemAuto
	}
	if !path.IsAbs(opts.MountPoint) {
		return nil, fmt.Errorf("mount point must be an absolute path: %q", opts.MountPoint)
	}

	boot, err := ParseBoot(opts.Boot)
	if err != nil {
		return nil, err
	}
	if err := checkMemory(boot.Mem); err != nil {
		return nil, err
	}

	k := &Kernel{
		id:         uuid.New(),
		boot:       boot,
		fstype:     opts.FileSystem,
		mountPoint: path.Clean(opts.MountPoint),
		image:      opts.Image,
		nsfs:       vfs.NewMemFS(0),
	}

	if err := k.load(ctx); err != nil {
		return nil, err
	}
	if boot.Persist && k.fstype != FileSystemTar {
		k.unload()
		return nil, fmt.Errorf("persist: %s file systems cannot be written back to their image", k.fstype)
	}

	if err := vfs.MkdirAll(k.nsfs, k.mountPoint, 0755); err != nil {
		k.unload()
		return nil, err
	}
	if k.nsRoot, err = vfs.OpenRoot(k.nsfs); err != nil {
		k.unload()
		return nil, err
	}
	if k.root, err = vfs.OpenRoot(k.fsys); err != nil {
		k.nsRoot.Close()
		k.unload()
		return nil, err
	}
	return k, nil
}

func (k *Kernel) load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if k.fstype == FileSystemAuto {
		typ, err := vfs.DetectImage(k.image)
		if err != nil {
			return err
		}
		k.fstype = string(typ)
	}

	switch k.fstype {
	case FileSystemTmpfs:
		k.fsys = vfs.NewMemFS(k.boot.Mem)

	case FileSystemDir:
		fsys, err := vfs.OpenDirFS(k.image)
		if err != nil {
			return err
		}
		k.fsys, k.closeFS = fsys, fsys.Close

	case FileSystemTar:
		f, err := os.Open(k.image)
		if err != nil {
			return err
		}
		defer f.Close()
		fsys, format, err := vfs.LoadTar(f, k.boot.Mem)
		if err != nil {
			return fmt.Errorf("%s: %w", k.image, err)
		}
		k.fsys, k.tarFormat = fsys, format

	case FileSystemOCI:
		fsys, err := vfs.LoadOCI(k.image, k.boot.Mem)
		if err != nil {
			return err
		}
		k.fsys = fsys

	default:
		return fmt.Errorf("mounting %s file system: %w", k.fstype, vfs.ENODEV)
	}
	return ctx.Err()
}

func (k *Kernel) unload() error {
	if k.closeFS != nil {
		return k.closeFS()
	}
	return nil
}

// ID returns the boot id of the kernel, unique to each call to Mount.
func (k *Kernel) ID() uuid.UUID { return k.id }

// Boot returns the boot options that the kernel was mounted with.
func (k *Kernel) Boot() BootOptions { return k.boot }

// FileSystem returns the type of the mounted file system, after detection.
func (k *Kernel) FileSystem() string { return k.fstype }

// MountPoint returns the path that the image is mounted at.
func (k *Kernel) MountPoint() string { return k.mountPoint }

// FS returns the mounted file system.
func (k *Kernel) FS() vfs.FileSystem { return k.fsys }

// Unmount closes all open descriptors and releases the image. When booted
// with the persist option, the content of the file system is written back to
// the image file.
//
// After Unmount, entry points fail with EBADF or ENOENT.
func (k *Kernel) Unmount() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.root == nil {
		return nil
	}

	var errs []error
	for fd, f := range k.files {
		if f != nil {
			if err := f.file.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing fd %d: %w", fd, err))
			}
		}
	}
	k.files = nil

	if k.boot.Persist && !k.boot.ReadOnly {
		if err := k.persist(); err != nil {
			errs = append(errs, err)
		}
	}

	errs = append(errs, k.root.Close(), k.nsRoot.Close(), k.unload())
	k.root, k.nsRoot = nil, nil
	return errors.Join(errs...)
}

// persist atomically replaces the image with an export of the in-memory file
// system, keeping the compression format of the original.
func (k *Kernel) persist() error {
	memfs, ok := k.fsys.(*vfs.MemFS)
	if !ok {
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(k.image), "."+filepath.Base(k.image)+".*")
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := vfs.ExportTar(tmp, memfs, k.tarFormat); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	if s, err := os.Stat(k.image); err == nil {
		_ = os.Chmod(tmp.Name(), s.Mode().Perm())
	}
	if err := os.Rename(tmp.Name(), k.image); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	return nil
}

func (k *Kernel) lookupFD(fd int32) (*openFile, error) {
	if fd < 0 || int(fd) >= len(k.files) || k.files[fd] == nil {
		return nil, vfs.EBADF
	}
	return k.files[fd], nil
}

// allocFD installs f in the lowest free slot of the descriptor table. The
// standard descriptors 0 to 2 are reserved, like in a process that inherited
// them from its parent.
func (k *Kernel) allocFD(f *openFile) int32 {
	const firstFD = 3
	for fd := firstFD; fd < len(k.files); fd++ {
		if k.files[fd] == nil {
			k.files[fd] = f
			return int32(fd)
		}
	}
	for len(k.files) < firstFD {
		k.files = append(k.files, nil)
	}
	k.files = append(k.files, f)
	return int32(len(k.files) - 1)
}

// OpenFiles returns the number of open descriptors.
func (k *Kernel) OpenFiles() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := 0
	for _, f := range k.files {
		if f != nil {
			n++
		}
	}
	return n
}

func makeMode(mode uint32) fs.FileMode {
	m := fs.FileMode(mode & 0777)
	if mode&04000 != 0 {
		m |= fs.ModeSetuid
	}
	if mode&02000 != 0 {
		m |= fs.ModeSetgid
	}
	if mode&01000 != 0 {
		m |= fs.ModeSticky
	}
	return m
}
