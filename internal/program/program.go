// Package program contains the in-memory representation of replayable test
// cases, and the loader reading them from files.
//
// A program is an ordered sequence of system calls whose arguments are either
// integer literals or references into a table of variables. Programs are built
// once by the loader and not modified afterward; consumers which need to
// mutate variables work on a copy obtained with CloneVariables.
package program

import (
	"fmt"
	"strconv"
	"strings"
)

// Program is a replayable test case.
type Program struct {
	// Syscalls is the sequence of system calls, in replay order.
	Syscalls []Syscall
	// Variables is the table that arguments reference by index.
	Variables []Variable
	// ActiveFDs lists descriptors that must be closed at the end of a replay,
	// whether or not the program closes them explicitly.
	ActiveFDs []int64
}

// Syscall is a single system call of a program.
type Syscall struct {
	NR   Sysno
	Args []Argument
}

func (s Syscall) String() string {
	args := make([]string, len(s.Args))
	for i, arg := range s.Args {
		args[i] = arg.String()
	}
	return s.NR.String() + "(" + strings.Join(args, ", ") + ")"
}

// Argument is a positional parameter of a system call. When IsVariable is true
// the argument references the variable at Index, otherwise it carries the
// literal integer Value.
type Argument struct {
	IsVariable bool
	Index      int
	Value      int64
}

// Var constructs an argument referencing the variable at index i.
func Var(i int) Argument { return Argument{IsVariable: true, Index: i} }

// Lit constructs a literal integer argument.
func Lit(v int64) Argument { return Argument{Value: v} }

func (arg Argument) String() string {
	if arg.IsVariable {
		return "$" + strconv.Itoa(arg.Index)
	}
	return strconv.FormatInt(arg.Value, 10)
}

// Variable is the tagged union of values held in the variable table. The
// concrete types are Str, Long, and Buffer.
type Variable interface {
	fmt.Stringer
	variable()
}

// Str is a string variable, used for paths, names, and small text buffers.
type Str string

// Long is a 64 bit integer variable.
type Long int64

// Buffer is a byte buffer variable. A nil Data is the absent backing store of
// an output buffer which was not populated yet; Size is its declared length.
type Buffer struct {
	Data []byte
	Size uint64
}

func (Str) variable()    {}
func (Long) variable()   {}
func (Buffer) variable() {}

func (s Str) String() string  { return strconv.Quote(string(s)) }
func (l Long) String() string { return strconv.FormatInt(int64(l), 10) }

func (b Buffer) String() string {
	if b.Data == nil {
		return fmt.Sprintf("buffer[%d]", b.Size)
	}
	const maxLen = 32
	data := b.Data
	if len(data) > maxLen {
		return fmt.Sprintf("buffer[%d]%q...", b.Size, data[:maxLen])
	}
	return fmt.Sprintf("buffer[%d]%q", b.Size, data)
}

// CloneVariables returns a deep copy of the variable table of p.
func (p *Program) CloneVariables() []Variable {
	vars := make([]Variable, len(p.Variables))
	for i, v := range p.Variables {
		if b, ok := v.(Buffer); ok && b.Data != nil {
			b.Data = append(make([]byte, 0, len(b.Data)), b.Data...)
			v = b
		}
		vars[i] = v
	}
	return vars
}

// KindOf returns the name of the variable type, as used in the file format.
func KindOf(v Variable) string {
	switch v.(type) {
	case Str:
		return "str"
	case Long:
		return "long"
	case Buffer:
		return "buffer"
	case nil:
		return "none"
	default:
		return fmt.Sprintf("%T", v)
	}
}
