package kernel

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/mem"
)

// BootOptions are the parsed form of the kernel command line passed to Mount.
//
// The command line is a space separated list of options:
//
//	mem=<size>   bound the memory available to in-memory file systems; the
//	             size accepts K, M, G, and T suffixes (powers of 1024)
//	ro           mount the image read-only
//	rw           mount the image read-write (default)
//	persist      write in-memory tar images back to their file on unmount
//
// Other options are accepted and recorded in Unknown, the way a kernel passes
// unrecognized parameters through to init.
type BootOptions struct {
	Mem      int64
	ReadOnly bool
	Persist  bool
	Unknown  []string
}

func (opts BootOptions) String() string {
	var s []string
	if opts.Mem != 0 {
		s = append(s, "mem="+formatSize(opts.Mem))
	}
	if opts.ReadOnly {
		s = append(s, "ro")
	} else {
		s = append(s, "rw")
	}
	if opts.Persist {
		s = append(s, "persist")
	}
	return strings.Join(append(s, opts.Unknown...), " ")
}

// ParseBoot parses a kernel command line.
func ParseBoot(cmdline string) (BootOptions, error) {
	var opts BootOptions
	for _, opt := range strings.Fields(cmdline) {
		key, value, hasValue := strings.Cut(opt, "=")
		switch key {
		case "mem":
			if !hasValue {
				return opts, fmt.Errorf("boot option %q: missing size", opt)
			}
			size, err := parseSize(value)
			if err != nil {
				return opts, fmt.Errorf("boot option %q: %w", opt, err)
			}
			opts.Mem = size
		case "ro":
			opts.ReadOnly = true
		case "rw":
			opts.ReadOnly = false
		case "persist":
			opts.Persist = true
		default:
			opts.Unknown = append(opts.Unknown, opt)
		}
	}
	return opts, nil
}

// checkMemory verifies that the host has enough memory to satisfy the mem=
// boot option. Hosts where the amount of memory cannot be determined are
// assumed to have enough.
func checkMemory(size int64) error {
	if size <= 0 {
		return nil
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil
	}
	if uint64(size) > vm.Total {
		return fmt.Errorf("mem=%s exceeds the %s of host memory", formatSize(size), formatSize(int64(vm.Total)))
	}
	return nil
}

var sizeSuffixes = [...]struct {
	suffix string
	scale  int64
}{
	{"T", 1 << 40},
	{"G", 1 << 30},
	{"M", 1 << 20},
	{"K", 1 << 10},
}

func parseSize(s string) (int64, error) {
	scale := int64(1)
	for _, x := range sizeSuffixes {
		if strings.HasSuffix(s, x.suffix) || strings.HasSuffix(s, strings.ToLower(x.suffix)) {
			s, scale = s[:len(s)-1], x.scale
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed size: %q", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size: %d", n)
	}
	if n > (1<<63-1)/scale {
		return 0, fmt.Errorf("size out of range: %q", s)
	}
	return n * scale, nil
}

func formatSize(size int64) string {
	for _, x := range sizeSuffixes {
		if size != 0 && size%x.scale == 0 {
			return strconv.FormatInt(size/x.scale, 10) + x.suffix
		}
	}
	return strconv.FormatInt(size, 10)
}
