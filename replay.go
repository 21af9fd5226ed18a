package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/stealthrocket/fsreplay/internal/print/human"
	"github.com/stealthrocket/fsreplay/internal/program"
	replayer "github.com/stealthrocket/fsreplay/internal/replay"
)

const replayUsage = `
Usage:	fsreplay replay [options] <program> <image> [filesystem]

   The replay command executes the system calls of a program against a file
   system image mounted in an isolated kernel. Each system call prints one line
   with its number and result to stdout, errors are described on stderr.

   The file system type is one of auto, dir, tar, oci, or tmpfs, and defaults to
   the configured type (auto unless configured otherwise). Programs are json or
   yaml files, which may be compressed with gzip or zstd.

Example:

   $ fsreplay replay crash.json rootfs.tar
   2 3
   1 2
   74 0

Options:
   -b, --boot options       Kernel command line (default: mem=128M)
   -c, --config path        Path to the configuration file (overrides FSREPLAYCONFIG)
   -h, --help               Show this usage information
   -m, --mount-point path   Path where the image is mounted (default: /mnt/image)
       --no-write-back      Do not store buffers written by the kernel into variables
   -t, --type filesystem    File system type of the image
       --timeout duration   Abort the replay if it takes longer than this duration
   -T, --trace              Print a trace of the system calls to stderr
`

func replay(ctx context.Context, args []string) error {
	var (
		boot        optionalString
		mountPoint  optionalString
		fstype      optionalString
		timeout     human.Duration
		noWriteBack bool
		trace       bool
	)

	flagSet := newFlagSet("fsreplay replay", replayUsage)
	customVar(flagSet, &boot, "b", "boot")
	customVar(flagSet, &mountPoint, "m", "mount-point")
	customVar(flagSet, &fstype, "t", "type")
	customVar(flagSet, &timeout, "timeout")
	boolVar(flagSet, &noWriteBack, "no-write-back")
	boolVar(flagSet, &trace, "T", "trace")

	args, err := parseFlags(flagSet, args)
	if err != nil {
		return err
	}
	if len(args) < 2 || len(args) > 3 {
		return usageError("Expected program and image paths as arguments, and optionally the file system type")
	}
	if len(args) == 3 {
		_ = fstype.Set(args[2])
	}

	config, err := loadConfig()
	if err != nil {
		return err
	}

	prog, err := program.Load(args[0])
	if err != nil {
		return err
	}

	opts := config.KernelOptions()
	opts.Image = args[1]
	opts.FileSystem = fstype.or(opts.FileSystem)
	opts.Boot = boot.or(opts.Boot)
	opts.MountPoint = mountPoint.or(opts.MountPoint)

	runner := &replayer.Runner{
		Output:    os.Stdout,
		Errors:    os.Stderr,
		WriteBack: config.WriteBack() && !noWriteBack,
	}
	if trace {
		runner.Trace = os.Stderr
	}

	limit := time.Duration(timeout)
	if limit == 0 {
		limit = config.Timeout()
	}
	return watchdog(ctx, limit, func(ctx context.Context) error {
		return runner.Run(ctx, prog, replayer.Mount(opts))
	})
}

// watchdog runs fn and returns its error, unless fn is still running when the
// timeout expires, in which case an error is returned without waiting for fn
// to complete. A zero timeout means no limit.
func watchdog(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- fn(ctx) }()

	select {
	case err := <-errc:
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("watchdog: replay did not complete within %s", human.Duration(timeout))
		}
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("watchdog: replay did not complete within %s", human.Duration(timeout))
		}
		return ctx.Err()
	}
}
