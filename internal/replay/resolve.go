package replay

import (
	"fmt"

	"github.com/stealthrocket/fsreplay/internal/program"
)

// Resolve returns the value of a system call argument: the variable that it
// references, or a Long holding its literal value.
//
// Referencing a variable outside of the table fails with an
// *ArgumentResolutionError, which has Position set to -1 since Resolve does
// not know which argument of the call it was given.
func Resolve(vars []program.Variable, arg program.Argument) (program.Variable, error) {
	if !arg.IsVariable {
		return program.Long(arg.Value), nil
	}
	if arg.Index < 0 || arg.Index >= len(vars) {
		return nil, &ArgumentResolutionError{
			Position: -1,
			Index:    arg.Index,
			Reason:   fmt.Sprintf("variable index %d out of range [0:%d]", arg.Index, len(vars)),
		}
	}
	return vars[arg.Index], nil
}
