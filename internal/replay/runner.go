package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/stealthrocket/fsreplay/internal/kernel"
	"github.com/stealthrocket/fsreplay/internal/program"
)

// Session is a kernel that a program is replayed against. The runner releases
// it with Unmount when the replay completes.
type Session interface {
	Kernel
	Unmount() error
}

// booted is implemented by sessions that carry the identifier of the kernel
// boot, which is written at the top of traces.
type booted interface {
	ID() uuid.UUID
}

// MountFunc creates the kernel session of a replay.
type MountFunc func(ctx context.Context) (Session, error)

// Mount returns a MountFunc creating kernels with the given options.
func Mount(opts kernel.Options) MountFunc {
	return func(ctx context.Context) (Session, error) {
		k, err := kernel.Mount(ctx, opts)
		if err != nil {
			return nil, err
		}
		return k, nil
	}
}

// Stats counts the outcomes of the system calls of a replay.
type Stats struct {
	// Number of system calls executed.
	Syscalls int
	// Calls which returned a negative result.
	Failed int
	// Calls which could not be dispatched to the kernel.
	Errors int
}

// Runner replays programs.
//
// Each system call of a program produces exactly one line of the form
// "<nr> <result>" on Output. Calls that cannot be dispatched, because they
// are unsupported or their arguments are malformed, are reported with the
// result -ENOSYS or -EINVAL respectively and a description of the problem on
// Errors. Negative results of the kernel are also described on Errors.
type Runner struct {
	Output io.Writer
	Errors io.Writer
	// When set, each call is also rendered strace-style to Trace.
	Trace io.Writer
	// WriteBack stores the buffers that the kernel wrote to back into the
	// variables they were read from, so later calls observe the data.
	WriteBack bool
}

// Run replays prog against the kernel created by mount. The kernel is
// unmounted before Run returns, and all descriptors listed in the active
// descriptors of the program are closed before that, even when the replay
// stops early.
//
// Errors of individual system calls do not interrupt the replay. The returned
// error is a *SetupError if the kernel could not be created, the error of the
// context if it was canceled during the replay, or an error from unmounting
// the kernel.
func (r *Runner) Run(ctx context.Context, prog *program.Program, mount MountFunc) error {
	_, err := r.Replay(ctx, prog, mount)
	return err
}

// Replay is like Run but also returns statistics about the replay.
func (r *Runner) Replay(ctx context.Context, prog *program.Program, mount MountFunc) (stats Stats, err error) {
	k, err := mount(ctx)
	if err != nil {
		return stats, &SetupError{Err: err}
	}
	defer func() {
		if unmountErr := k.Unmount(); unmountErr != nil {
			err = errors.Join(err, fmt.Errorf("unmount: %w", unmountErr))
		}
	}()
	defer func() {
		for _, fd := range prog.ActiveFDs {
			k.Close(int32(fd))
		}
	}()

	if b, ok := k.(booted); ok && r.Trace != nil {
		fmt.Fprintf(r.Trace, "# kernel %s\n", b.ID())
	}

	output := writerOrDiscard(r.Output)
	errout := writerOrDiscard(r.Errors)
	vars := prog.CloneVariables()

	for seq, syscall := range prog.Syscalls {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		ret, err := r.exec(k, vars, syscall)
		stats.Syscalls++
		switch {
		case err != nil:
			stats.Errors++
			fmt.Fprintf(errout, "ERR: %s\n", &SyscallError{Seq: seq, Syscall: syscall, Err: err})
		case ret < 0:
			stats.Failed++
			fmt.Fprintf(errout, "syscall %d: %s: %s\n", seq, syscall.NR, kernel.Describe(ret))
		}

		if _, err := fmt.Fprintf(output, "%d %d\n", int64(syscall.NR), ret); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// exec runs a single system call. Calls that are not dispatched to the kernel
// return an error along with the result reported for them.
func (r *Runner) exec(k Kernel, vars []program.Variable, syscall program.Syscall) (int64, error) {
	h, ok := Lookup(syscall.NR)
	if !ok {
		r.traceError(syscall, unix.ENOSYS)
		return -int64(unix.ENOSYS), &UnsupportedSyscallError{NR: syscall.NR}
	}

	args, err := h.Prepare(vars, syscall.Args, k.MountPoint())
	if err != nil {
		r.traceError(syscall, unix.EINVAL)
		return -int64(unix.EINVAL), err
	}

	ret, err := Dispatch(k, syscall.NR, args)
	if err != nil {
		r.traceError(syscall, unix.EINVAL)
		return -int64(unix.EINVAL), err
	}
	r.trace(h, args, ret)

	if r.WriteBack && ret >= 0 {
		for i, param := range h.Params {
			if param.Output {
				writeBack(vars, syscall.Args[i], args[i])
			}
		}
	}
	return ret, nil
}

func writeBack(vars []program.Variable, arg program.Argument, value Value) {
	if !arg.IsVariable || arg.Index < 0 || arg.Index >= len(vars) {
		return
	}
	if b, ok := vars[arg.Index].(program.Buffer); ok {
		vars[arg.Index] = program.Buffer{Data: value.Bytes, Size: b.Size}
	}
}

func (r *Runner) trace(h *Handler, args []Value, ret int64) {
	if r.Trace == nil {
		return
	}
	s := make([]string, len(args))
	for i, arg := range args {
		s[i] = arg.String()
	}
	fmt.Fprintf(r.Trace, "%s(%s) = %s\n", h.Name(), strings.Join(s, ", "), formatResult(ret))
}

func (r *Runner) traceError(syscall program.Syscall, errno unix.Errno) {
	if r.Trace == nil {
		return
	}
	fmt.Fprintf(r.Trace, "%s = %s (not dispatched)\n", syscall, formatResult(-int64(errno)))
}

func formatResult(ret int64) string {
	if ret >= 0 {
		return fmt.Sprint(ret)
	}
	return fmt.Sprintf("%d %s", ret, kernel.Describe(ret))
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
