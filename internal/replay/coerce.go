package replay

import (
	"fmt"

	"github.com/stealthrocket/fsreplay/internal/program"
)

// Kind is the type of value that a system call parameter requires.
type Kind int

const (
	_ Kind = iota
	U32
	I32
	U64
	I64
	Usize
	String
	Path
	Buffer
	// Ignored parameters are neither resolved nor coerced.
	Ignored
)

var kindNames = [...]string{
	U32:     "u32",
	I32:     "i32",
	U64:     "u64",
	I64:     "i64",
	Usize:   "usize",
	String:  "string",
	Path:    "path",
	Buffer:  "buffer",
	Ignored: "ignored",
}

func (k Kind) String() string {
	if k > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// variant returns the name of the variable type that k is coerced from.
func (k Kind) variant() string {
	switch k {
	case U32, I32, U64, I64, Usize:
		return "long"
	case String, Path:
		return "str"
	case Buffer:
		return "buffer"
	default:
		return "any"
	}
}

// MaxBufferSize is the largest buffer that Coerce materializes for a buffer
// variable without backing data.
const MaxBufferSize = 1 << 30

// Value is a coerced system call argument.
type Value struct {
	Kind Kind
	// Bits of integer values, to be reinterpreted with the accessors.
	Bits uint64
	// Text of string values.
	Text string
	// Bytes of paths and buffers. Paths are NUL-terminated.
	Bytes []byte
}

// Integer accessors truncate or sign-extend the 64 bits of the value, the
// way a C cast would.
func (v Value) U32() uint32   { return uint32(v.Bits) }
func (v Value) I32() int32    { return int32(v.Bits) }
func (v Value) U64() uint64   { return v.Bits }
func (v Value) I64() int64    { return int64(v.Bits) }
func (v Value) Usize() uint64 { return v.Bits }

func (v Value) String() string {
	switch v.Kind {
	case U32:
		return fmt.Sprint(v.U32())
	case I32:
		return fmt.Sprint(v.I32())
	case U64, Usize:
		return fmt.Sprint(v.U64())
	case I64:
		return fmt.Sprint(v.I64())
	case String:
		return fmt.Sprintf("%q", v.Text)
	case Path:
		return fmt.Sprintf("%q", v.Bytes[:len(v.Bytes)-1])
	case Buffer:
		return program.Buffer{Data: v.Bytes, Size: uint64(len(v.Bytes))}.String()
	default:
		return "_"
	}
}

// Coerce converts a variable to the kind of value that a parameter requires.
// Path values are virtualized under mountPoint.
//
// Integer kinds accept Long variables and reinterpret their bits without range
// checks. String and Path accept Str variables. Buffer accepts Buffer
// variables; the result is always a fresh copy, zero-filled when the variable
// has no backing data. Other combinations fail with an
// *ArgumentResolutionError.
func Coerce(v program.Variable, kind Kind, mountPoint string) (Value, error) {
	switch kind {
	case Ignored:
		return Value{Kind: kind}, nil

	case U32, I32, U64, I64, Usize:
		if l, ok := v.(program.Long); ok {
			return Value{Kind: kind, Bits: uint64(l)}, nil
		}

	case String:
		if s, ok := v.(program.Str); ok {
			return Value{Kind: kind, Text: string(s)}, nil
		}

	case Path:
		if s, ok := v.(program.Str); ok {
			return Value{Kind: kind, Bytes: Virtualize(mountPoint, string(s))}, nil
		}

	case Buffer:
		if b, ok := v.(program.Buffer); ok {
			if b.Data != nil {
				return Value{Kind: kind, Bytes: append([]byte{}, b.Data...)}, nil
			}
			if b.Size > MaxBufferSize {
				return Value{}, &ArgumentResolutionError{
					Position: -1,
					Index:    -1,
					Want:     kind,
					Got:      v,
					Reason:   fmt.Sprintf("buffer of %d bytes exceeds the limit of %d bytes", b.Size, MaxBufferSize),
				}
			}
			return Value{Kind: kind, Bytes: make([]byte, b.Size)}, nil
		}

	default:
		return Value{}, fmt.Errorf("invalid coercion kind: %s", kind)
	}

	return Value{}, &ArgumentResolutionError{
		Position: -1,
		Index:    -1,
		Want:     kind,
		Got:      v,
		Reason:   fmt.Sprintf("%s parameter requires a %s variable, got %s %v", kind, kind.variant(), program.KindOf(v), v),
	}
}
