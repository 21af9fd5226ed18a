package program

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Sysno is a Linux x86-64 system call number.
type Sysno int64

const (
	SYS_READ         Sysno = 0
	SYS_WRITE        Sysno = 1
	SYS_OPEN         Sysno = 2
	SYS_CLOSE        Sysno = 3
	SYS_STAT         Sysno = 4
	SYS_FSTAT        Sysno = 5
	SYS_LSTAT        Sysno = 6
	SYS_LSEEK        Sysno = 8
	SYS_PREAD64      Sysno = 17
	SYS_PWRITE64     Sysno = 18
	SYS_ACCESS       Sysno = 21
	SYS_SENDFILE     Sysno = 40
	SYS_FSYNC        Sysno = 74
	SYS_FDATASYNC    Sysno = 75
	SYS_TRUNCATE     Sysno = 76
	SYS_FTRUNCATE    Sysno = 77
	SYS_GETDENTS     Sysno = 78
	SYS_RENAME       Sysno = 82
	SYS_MKDIR        Sysno = 83
	SYS_RMDIR        Sysno = 84
	SYS_CREAT        Sysno = 85
	SYS_LINK         Sysno = 86
	SYS_UNLINK       Sysno = 87
	SYS_SYMLINK      Sysno = 88
	SYS_READLINK     Sysno = 89
	SYS_CHMOD        Sysno = 90
	SYS_SETXATTR     Sysno = 188
	SYS_LSETXATTR    Sysno = 189
	SYS_FSETXATTR    Sysno = 190
	SYS_GETXATTR     Sysno = 191
	SYS_LGETXATTR    Sysno = 192
	SYS_FGETXATTR    Sysno = 193
	SYS_LISTXATTR    Sysno = 194
	SYS_LLISTXATTR   Sysno = 195
	SYS_FLISTXATTR   Sysno = 196
	SYS_REMOVEXATTR  Sysno = 197
	SYS_LREMOVEXATTR Sysno = 198
	SYS_FREMOVEXATTR Sysno = 199
	SYS_GETDENTS64   Sysno = 217
	SYS_SYNCFS       Sysno = 306
)

var sysnoNames = map[Sysno]string{
	SYS_READ:         "read",
	SYS_WRITE:        "write",
	SYS_OPEN:         "open",
	SYS_CLOSE:        "close",
	SYS_STAT:         "stat",
	SYS_FSTAT:        "fstat",
	SYS_LSTAT:        "lstat",
	SYS_LSEEK:        "lseek",
	SYS_PREAD64:      "pread64",
	SYS_PWRITE64:     "pwrite64",
	SYS_ACCESS:       "access",
	SYS_SENDFILE:     "sendfile",
	SYS_FSYNC:        "fsync",
	SYS_FDATASYNC:    "fdatasync",
	SYS_TRUNCATE:     "truncate",
	SYS_FTRUNCATE:    "ftruncate",
	SYS_GETDENTS:     "getdents",
	SYS_RENAME:       "rename",
	SYS_MKDIR:        "mkdir",
	SYS_RMDIR:        "rmdir",
	SYS_CREAT:        "creat",
	SYS_LINK:         "link",
	SYS_UNLINK:       "unlink",
	SYS_SYMLINK:      "symlink",
	SYS_READLINK:     "readlink",
	SYS_CHMOD:        "chmod",
	SYS_SETXATTR:     "setxattr",
	SYS_LSETXATTR:    "lsetxattr",
	SYS_FSETXATTR:    "fsetxattr",
	SYS_GETXATTR:     "getxattr",
	SYS_LGETXATTR:    "lgetxattr",
	SYS_FGETXATTR:    "fgetxattr",
	SYS_LISTXATTR:    "listxattr",
	SYS_LLISTXATTR:   "llistxattr",
	SYS_FLISTXATTR:   "flistxattr",
	SYS_REMOVEXATTR:  "removexattr",
	SYS_LREMOVEXATTR: "lremovexattr",
	SYS_FREMOVEXATTR: "fremovexattr",
	SYS_GETDENTS64:   "getdents64",
	SYS_SYNCFS:       "syncfs",
}

var sysnoByName = func() map[string]Sysno {
	m := make(map[string]Sysno, len(sysnoNames)+2)
	for nr, name := range sysnoNames {
		m[name] = nr
	}
	// Names used by the fuzzer for the positional read and write calls.
	m["pread"] = SYS_PREAD64
	m["pwrite"] = SYS_PWRITE64
	return m
}()

func (nr Sysno) String() string {
	if name, ok := sysnoNames[nr]; ok {
		return name
	}
	return "syscall_" + strconv.FormatInt(int64(nr), 10)
}

// ParseSysno parses a system call number or name.
func ParseSysno(s string) (Sysno, error) {
	if nr, ok := sysnoByName[s]; ok {
		return nr, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid system call: %q", s)
	}
	return Sysno(n), nil
}

// MarshalJSON writes the numeric value of nr.
func (nr Sysno) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, int64(nr), 10), nil
}

// UnmarshalJSON accepts either a number or a system call name.
func (nr *Sysno) UnmarshalJSON(b []byte) error {
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*nr = Sysno(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("invalid system call: %s", b)
	}
	v, err := ParseSysno(s)
	if err != nil {
		return err
	}
	*nr = v
	return nil
}

func (nr Sysno) MarshalYAML() (any, error) {
	return int64(nr), nil
}

func (nr *Sysno) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: system call must be a scalar", node.Line)
	}
	v, err := ParseSysno(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*nr = v
	return nil
}
