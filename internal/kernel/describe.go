package kernel

import (
	"strconv"

	"golang.org/x/sys/unix"
)

// Describe translates the result of an entry point into a message such as
// "ENOENT: no such file or directory". Non-negative results are successes and
// described as such.
func Describe(code int64) string {
	if code >= 0 {
		return "success"
	}
	errno := unix.Errno(-code)
	name := unix.ErrnoName(errno)
	if name == "" {
		return "errno " + strconv.FormatInt(-code, 10) + ": unknown error"
	}
	return name + ": " + errno.Error()
}
