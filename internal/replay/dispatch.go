package replay

import (
	"fmt"
	"sort"

	"github.com/stealthrocket/fsreplay/internal/kernel"
	"github.com/stealthrocket/fsreplay/internal/program"
)

// Kernel is the set of entry points that system calls are dispatched to.
// *kernel.Kernel implements it.
type Kernel interface {
	MountPoint() string
	Open(path []byte, flags, mode uint32) int64
	Close(fd int32) int64
	Read(fd int32, buf []byte, count uint64) int64
	Write(fd int32, buf []byte, count uint64) int64
	Lseek(fd int32, offset int64, whence uint32) int64
	Getdents64(fd int32, buf []byte, count uint64) int64
	Pread64(fd int32, buf []byte, count uint64, offset int64) int64
	Pwrite64(fd int32, buf []byte, count uint64, offset int64) int64
	Fstat(fd int32, st *kernel.Stat) int64
	Rename(oldPath, newPath []byte) int64
	Fsync(fd int32) int64
	Fdatasync(fd int32) int64
	Syncfs(fd int32) int64
	Sendfile(outFD, inFD int32, offset *int64, count uint64) int64
	Access(path []byte, mode int32) int64
	Ftruncate(fd int32, length int64) int64
	Truncate(path []byte, length int64) int64
	Mkdir(path []byte, mode uint32) int64
	Rmdir(path []byte) int64
	Link(oldPath, newPath []byte) int64
	Unlink(path []byte) int64
	Symlink(target, linkPath []byte) int64
	Setxattr(path []byte, attr string, value []byte, size uint64, flags uint32) int64
	Listxattr(path []byte, buf []byte) int64
	Removexattr(path []byte, attr string) int64
}

// Param describes a positional parameter of a system call.
type Param struct {
	Name string
	Kind Kind
	// Output is set on buffers that the kernel writes to.
	Output bool
}

// Handler describes how a system call is dispatched.
type Handler struct {
	NR     program.Sysno
	Params []Param
	Call   func(k Kernel, args []Value) int64
}

func (h *Handler) Name() string { return h.NR.String() }

// Prepare resolves the arguments of a system call and coerces them to the
// kinds of the handler parameters. Arguments in excess are ignored.
func (h *Handler) Prepare(vars []program.Variable, args []program.Argument, mountPoint string) ([]Value, error) {
	values := make([]Value, len(h.Params))
	for i, param := range h.Params {
		if param.Kind == Ignored {
			values[i] = Value{Kind: Ignored}
			continue
		}
		if i >= len(args) {
			return nil, &ArgumentResolutionError{
				Position: i,
				Param:    param.Name,
				Index:    -1,
				Want:     param.Kind,
				Reason:   fmt.Sprintf("missing argument, %s takes %d", h.Name(), len(h.Params)),
			}
		}
		v, err := Resolve(vars, args[i])
		if err == nil {
			values[i], err = Coerce(v, param.Kind, mountPoint)
		}
		if err != nil {
			if e, ok := err.(*ArgumentResolutionError); ok {
				e.Position, e.Param = i, param.Name
				if args[i].IsVariable {
					e.Index = args[i].Index
				}
			}
			return nil, err
		}
	}
	return values, nil
}

// Lookup returns the handler of a system call.
func Lookup(nr program.Sysno) (*Handler, bool) {
	h, ok := handlers[nr]
	return h, ok
}

// Supported returns the list of system calls that have a handler, in
// ascending order.
func Supported() []program.Sysno {
	nrs := make([]program.Sysno, 0, len(handlers))
	for nr := range handlers {
		nrs = append(nrs, nr)
	}
	sort.Slice(nrs, func(i, j int) bool { return nrs[i] < nrs[j] })
	return nrs
}

// Dispatch invokes the kernel entry point of a system call with coerced
// arguments. The kernel is not called when the system call is unsupported or
// the arguments do not match the handler parameters.
func Dispatch(k Kernel, nr program.Sysno, args []Value) (int64, error) {
	h, ok := handlers[nr]
	if !ok {
		return 0, &UnsupportedSyscallError{NR: nr}
	}
	if len(args) != len(h.Params) {
		return 0, fmt.Errorf("%s takes %d arguments, got %d", h.Name(), len(h.Params), len(args))
	}
	for i, param := range h.Params {
		if args[i].Kind != param.Kind {
			return 0, &ArgumentResolutionError{
				Position: i,
				Param:    param.Name,
				Index:    -1,
				Want:     param.Kind,
				Reason:   fmt.Sprintf("%s parameter given a %s value", param.Kind, args[i].Kind),
			}
		}
	}
	return h.Call(k, args), nil
}

// maxDirentBuffer bounds the buffer allocated for getdents.
const maxDirentBuffer = 1 << 20

var (
	fdParam    = Param{Name: "fd", Kind: I32}
	pathParam  = Param{Name: "pathname", Kind: Path}
	countParam = Param{Name: "count", Kind: Usize}
)

var handlers = map[program.Sysno]*Handler{
	program.SYS_OPEN: {
		Params: []Param{pathParam, {Name: "flags", Kind: U32}, {Name: "mode", Kind: U32}},
		Call: func(k Kernel, args []Value) int64 {
			return k.Open(args[0].Bytes, args[1].U32(), args[2].U32())
		},
	},

	program.SYS_READ: {
		Params: []Param{fdParam, {Name: "buf", Kind: Buffer, Output: true}, countParam},
		Call: func(k Kernel, args []Value) int64 {
			return k.Read(args[0].I32(), args[1].Bytes, args[2].Usize())
		},
	},

	program.SYS_WRITE: {
		Params: []Param{fdParam, {Name: "buf", Kind: String}, countParam},
		Call: func(k Kernel, args []Value) int64 {
			return k.Write(args[0].I32(), []byte(args[1].Text), args[2].Usize())
		},
	},

	program.SYS_LSEEK: {
		Params: []Param{fdParam, {Name: "offset", Kind: U32}, {Name: "whence", Kind: U32}},
		Call: func(k Kernel, args []Value) int64 {
			return k.Lseek(args[0].I32(), int64(args[1].U32()), args[2].U32())
		},
	},

	program.SYS_GETDENTS: {
		Params: []Param{fdParam, {Name: "dirp", Kind: Ignored}, countParam},
		Call: func(k Kernel, args []Value) int64 {
			count := args[2].Usize()
			buf := make([]byte, min(count, maxDirentBuffer))
			return k.Getdents64(args[0].I32(), buf, count)
		},
	},

	program.SYS_PREAD64: {
		Params: []Param{fdParam, {Name: "buf", Kind: Buffer, Output: true}, countParam, {Name: "offset", Kind: U64}},
		Call: func(k Kernel, args []Value) int64 {
			return k.Pread64(args[0].I32(), args[1].Bytes, args[2].Usize(), args[3].I64())
		},
	},

	program.SYS_PWRITE64: {
		Params: []Param{fdParam, {Name: "buf", Kind: Buffer}, countParam, {Name: "offset", Kind: U64}},
		Call: func(k Kernel, args []Value) int64 {
			return k.Pwrite64(args[0].I32(), args[1].Bytes, args[2].Usize(), args[3].I64())
		},
	},

	program.SYS_FSTAT: {
		Params: []Param{fdParam},
		Call: func(k Kernel, args []Value) int64 {
			var st kernel.Stat
			return k.Fstat(args[0].I32(), &st)
		},
	},

	program.SYS_RENAME: {
		Params: []Param{{Name: "oldpath", Kind: Path}, {Name: "newpath", Kind: Path}},
		Call: func(k Kernel, args []Value) int64 {
			return k.Rename(args[0].Bytes, args[1].Bytes)
		},
	},

	program.SYS_FSYNC: {
		Params: []Param{fdParam},
		Call: func(k Kernel, args []Value) int64 {
			return k.Fsync(args[0].I32())
		},
	},

	program.SYS_FDATASYNC: {
		Params: []Param{fdParam},
		Call: func(k Kernel, args []Value) int64 {
			return k.Fdatasync(args[0].I32())
		},
	},

	program.SYS_SYNCFS: {
		Params: []Param{fdParam},
		Call: func(k Kernel, args []Value) int64 {
			return k.Syncfs(args[0].I32())
		},
	},

	program.SYS_SENDFILE: {
		Params: []Param{{Name: "out_fd", Kind: I32}, {Name: "in_fd", Kind: I32}, {Name: "offset", Kind: I64}, countParam},
		Call: func(k Kernel, args []Value) int64 {
			// Programs cannot express pointers: a negative offset stands for
			// NULL, reading from the file offset of in_fd.
			var offset *int64
			if off := args[2].I64(); off >= 0 {
				offset = &off
			}
			return k.Sendfile(args[0].I32(), args[1].I32(), offset, args[3].Usize())
		},
	},

	program.SYS_ACCESS: {
		Params: []Param{pathParam, {Name: "mode", Kind: I32}},
		Call: func(k Kernel, args []Value) int64 {
			return k.Access(args[0].Bytes, args[1].I32())
		},
	},

	program.SYS_FTRUNCATE: {
		Params: []Param{fdParam, {Name: "length", Kind: U64}},
		Call: func(k Kernel, args []Value) int64 {
			return k.Ftruncate(args[0].I32(), args[1].I64())
		},
	},

	program.SYS_TRUNCATE: {
		Params: []Param{pathParam, {Name: "length", Kind: I64}},
		Call: func(k Kernel, args []Value) int64 {
			return k.Truncate(args[0].Bytes, args[1].I64())
		},
	},

	program.SYS_MKDIR: {
		Params: []Param{pathParam, {Name: "mode", Kind: U32}},
		Call: func(k Kernel, args []Value) int64 {
			return k.Mkdir(args[0].Bytes, args[1].U32())
		},
	},

	program.SYS_RMDIR: {
		Params: []Param{pathParam},
		Call: func(k Kernel, args []Value) int64 {
			return k.Rmdir(args[0].Bytes)
		},
	},

	program.SYS_LINK: {
		Params: []Param{{Name: "oldpath", Kind: Path}, {Name: "newpath", Kind: Path}},
		Call: func(k Kernel, args []Value) int64 {
			return k.Link(args[0].Bytes, args[1].Bytes)
		},
	},

	program.SYS_UNLINK: {
		Params: []Param{pathParam},
		Call: func(k Kernel, args []Value) int64 {
			return k.Unlink(args[0].Bytes)
		},
	},

	program.SYS_SYMLINK: {
		Params: []Param{{Name: "target", Kind: Path}, {Name: "linkpath", Kind: Path}},
		Call: func(k Kernel, args []Value) int64 {
			return k.Symlink(args[0].Bytes, args[1].Bytes)
		},
	},

	program.SYS_SETXATTR: {
		Params: []Param{
			pathParam,
			{Name: "name", Kind: String},
			{Name: "value", Kind: Buffer},
			{Name: "size", Kind: Usize},
			{Name: "flags", Kind: U32},
		},
		Call: func(k Kernel, args []Value) int64 {
			return k.Setxattr(args[0].Bytes, args[1].Text, args[2].Bytes, args[3].Usize(), args[4].U32())
		},
	},

	program.SYS_LISTXATTR: {
		Params: []Param{pathParam, {Name: "list", Kind: Buffer, Output: true}},
		Call: func(k Kernel, args []Value) int64 {
			return k.Listxattr(args[0].Bytes, args[1].Bytes)
		},
	},

	program.SYS_REMOVEXATTR: {
		Params: []Param{pathParam, {Name: "name", Kind: String}},
		Call: func(k Kernel, args []Value) int64 {
			return k.Removexattr(args[0].Bytes, args[1].Text)
		},
	},
}

func init() {
	for nr, h := range handlers {
		h.NR = nr
	}
}
