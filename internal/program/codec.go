package program

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// The types below are the file representation of programs, shared by the json
// and yaml formats:
//
//	syscalls:
//	  - nr: open          # number or name
//	    args:
//	      - {is_variable: true, index: 0}
//	      - {is_variable: false, value: 65}
//	variables:
//	  - str: /x
//	  - long: 3
//	  - buffer: {size: 16}              # absent backing store
//	  - buffer: {size: 2, text: "hi"}   # or data: <base64>
//	active_fds: [3]
type encodedProgram struct {
	Syscalls  []encodedSyscall  `json:"syscalls"             yaml:"syscalls"`
	Variables []encodedVariable `json:"variables,omitempty"  yaml:"variables,omitempty"`
	ActiveFDs []int64           `json:"active_fds,omitempty" yaml:"active_fds,omitempty"`
}

type encodedSyscall struct {
	NR   Sysno             `json:"nr"   yaml:"nr"`
	Args []encodedArgument `json:"args" yaml:"args"`
}

type encodedArgument struct {
	IsVariable bool   `json:"is_variable"     yaml:"is_variable"`
	Index      *int   `json:"index,omitempty" yaml:"index,omitempty"`
	Value      *int64 `json:"value,omitempty" yaml:"value,omitempty"`
}

type encodedVariable struct {
	Str    *string        `json:"str,omitempty"    yaml:"str,omitempty"`
	Long   *int64         `json:"long,omitempty"   yaml:"long,omitempty"`
	Buffer *encodedBuffer `json:"buffer,omitempty" yaml:"buffer,omitempty"`
}

type encodedBuffer struct {
	Size uint64  `json:"size"           yaml:"size"`
	Data *string `json:"data,omitempty" yaml:"data,omitempty"`
	Text *string `json:"text,omitempty" yaml:"text,omitempty"`
}

// DecodeError is returned when a program file is malformed.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return "decoding program: " + e.Err.Error()
	}
	return "decoding program: " + e.Field + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeError(field string, err error) error {
	return &DecodeError{Field: field, Err: err}
}

// DecodeJSON reads a program in json format from r. Unknown fields are
// rejected.
func DecodeJSON(r io.Reader) (*Program, error) {
	var p encodedProgram
	d := json.NewDecoder(r)
	d.DisallowUnknownFields()
	if err := d.Decode(&p); err != nil {
		return nil, decodeError("", err)
	}
	return p.decode()
}

// DecodeYAML reads a program in yaml format from r. Unknown fields are
// rejected.
func DecodeYAML(r io.Reader) (*Program, error) {
	var p encodedProgram
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty document")
		}
		return nil, decodeError("", err)
	}
	return p.decode()
}

// EncodeJSON writes p to w in json format.
func EncodeJSON(w io.Writer, p *Program) error {
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(encode(p))
}

// EncodeYAML writes p to w in yaml format.
func EncodeYAML(w io.Writer, p *Program) error {
	e := yaml.NewEncoder(w)
	e.SetIndent(2)
	if err := e.Encode(encode(p)); err != nil {
		return err
	}
	return e.Close()
}

// MarshalJSON satisfies json.Marshaler, using the file representation.
func (p *Program) MarshalJSON() ([]byte, error) {
	return json.Marshal(encode(p))
}

// MarshalYAML satisfies yaml.Marshaler, using the file representation.
func (p *Program) MarshalYAML() (any, error) {
	return encode(p), nil
}

func (p *encodedProgram) decode() (*Program, error) {
	prog := &Program{
		Syscalls:  make([]Syscall, len(p.Syscalls)),
		Variables: make([]Variable, len(p.Variables)),
		ActiveFDs: p.ActiveFDs,
	}

	for i, s := range p.Syscalls {
		args := make([]Argument, len(s.Args))
		for j, a := range s.Args {
			field := fmt.Sprintf("syscalls[%d].args[%d]", i, j)
			switch {
			case a.IsVariable && a.Index == nil:
				return nil, decodeError(field, errors.New("variable argument without an index"))
			case a.IsVariable && a.Value != nil:
				return nil, decodeError(field, errors.New("variable argument with a literal value"))
			case !a.IsVariable && a.Value == nil:
				return nil, decodeError(field, errors.New("literal argument without a value"))
			case !a.IsVariable && a.Index != nil:
				return nil, decodeError(field, errors.New("literal argument with a variable index"))
			case a.IsVariable:
				// Out of range indexes are reported when the argument is
				// resolved, so the rest of the program can still be replayed.
				args[j] = Var(*a.Index)
			default:
				args[j] = Lit(*a.Value)
			}
		}
		prog.Syscalls[i] = Syscall{NR: s.NR, Args: args}
	}

	for i, v := range p.Variables {
		field := fmt.Sprintf("variables[%d]", i)
		count := 0
		if v.Str != nil {
			prog.Variables[i] = Str(*v.Str)
			count++
		}
		if v.Long != nil {
			prog.Variables[i] = Long(*v.Long)
			count++
		}
		if v.Buffer != nil {
			b, err := v.Buffer.decode()
			if err != nil {
				return nil, decodeError(field+".buffer", err)
			}
			prog.Variables[i] = b
			count++
		}
		if count != 1 {
			return nil, decodeError(field, errors.New("variable must have exactly one of str, long, or buffer"))
		}
	}
	return prog, nil
}

func (b *encodedBuffer) decode() (Buffer, error) {
	buf := Buffer{Size: b.Size}
	switch {
	case b.Data != nil && b.Text != nil:
		return buf, errors.New("data and text are mutually exclusive")
	case b.Data != nil:
		data, err := base64.StdEncoding.DecodeString(*b.Data)
		if err != nil {
			return buf, fmt.Errorf("data: %w", err)
		}
		buf.Data = data
	case b.Text != nil:
		buf.Data = []byte(*b.Text)
	}
	if buf.Data != nil && buf.Size == 0 {
		buf.Size = uint64(len(buf.Data))
	}
	return buf, nil
}

func encode(p *Program) *encodedProgram {
	e := &encodedProgram{
		Syscalls:  make([]encodedSyscall, len(p.Syscalls)),
		Variables: make([]encodedVariable, len(p.Variables)),
		ActiveFDs: p.ActiveFDs,
	}
	for i, s := range p.Syscalls {
		args := make([]encodedArgument, len(s.Args))
		for j, a := range s.Args {
			if a.IsVariable {
				index := a.Index
				args[j] = encodedArgument{IsVariable: true, Index: &index}
			} else {
				value := a.Value
				args[j] = encodedArgument{Value: &value}
			}
		}
		e.Syscalls[i] = encodedSyscall{NR: s.NR, Args: args}
	}
	for i, v := range p.Variables {
		switch v := v.(type) {
		case Str:
			s := string(v)
			e.Variables[i].Str = &s
		case Long:
			l := int64(v)
			e.Variables[i].Long = &l
		case Buffer:
			b := &encodedBuffer{Size: v.Size}
			if v.Data != nil {
				data := base64.StdEncoding.EncodeToString(v.Data)
				b.Data = &data
			}
			e.Variables[i].Buffer = b
		}
	}
	return e
}
