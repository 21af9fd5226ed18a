package replay

import (
	"fmt"

	"github.com/stealthrocket/fsreplay/internal/program"
)

// ArgumentResolutionError is returned when an argument of a system call cannot
// be turned into the value that the call expects, either because it
// references a variable that does not exist or because the variable has the
// wrong type.
type ArgumentResolutionError struct {
	// Position of the argument in the system call, -1 if unknown.
	Position int
	// Name of the parameter that the argument was passed to, if known.
	Param string
	// Index of the variable referenced by the argument, -1 for literals.
	Index int
	// The kind of value that the parameter requires, and the variable that
	// was passed instead. Got is nil when the variable does not exist.
	Want Kind
	Got  program.Variable
	// Reason describes why the argument could not be resolved.
	Reason string
}

func (e *ArgumentResolutionError) Error() string {
	switch {
	case e.Position < 0:
		return e.Reason
	case e.Param != "":
		return fmt.Sprintf("argument %d (%s): %s", e.Position, e.Param, e.Reason)
	default:
		return fmt.Sprintf("argument %d: %s", e.Position, e.Reason)
	}
}

// UnsupportedSyscallError is returned when a program contains a system call
// that has no handler.
type UnsupportedSyscallError struct {
	NR program.Sysno
}

func (e *UnsupportedSyscallError) Error() string {
	return fmt.Sprintf("unsupported system call: %s (%d)", e.NR, int64(e.NR))
}

// SetupError is returned by Runner.Run when the kernel could not be mounted.
// No system calls of the program are executed in that case.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string { return "kernel setup: " + e.Err.Error() }

func (e *SetupError) Unwrap() error { return e.Err }

// SyscallError wraps the errors of individual system calls, reporting the
// position of the call in the program.
type SyscallError struct {
	Seq     int
	Syscall program.Syscall
	Err     error
}

func (e *SyscallError) Error() string {
	return fmt.Sprintf("syscall %d: %s: %s", e.Seq, e.Syscall.NR, e.Err)
}

func (e *SyscallError) Unwrap() error { return e.Err }
