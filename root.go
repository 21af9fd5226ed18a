package main

// Notes on program structure
// --------------------------
//
// fsreplay uses subcommands to invoke specific functionalities of the program.
// Each subcommand is implemented by a function named after the command, in a
// file of the same name (e.g. the "help" command is implemented by the help
// function in help.go).
//
// The usage message for each command is declared by a constant starting with
// the command name and followed by the suffix "Usage". For example, the usage
// message for the "help" command is declared by the constant helpUsage.
//
// The usage message contains a "Usage:	fsreplay <command>" section presenting
// the structure of the command. Note the tabulation separating "Usage:" and
// "fsreplay".

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"

	conf "github.com/stealthrocket/fsreplay/internal/config"
	"github.com/stealthrocket/fsreplay/internal/print/human"
)

const rootUsage = `fsreplay - File System Call Replay

   fsreplay replays sequences of file system calls, typically test cases found
   by a fuzzer, against a file system image mounted in an isolated in-process
   kernel. Replays never touch the file systems of the host, unless explicitly
   asked to with a directory image.

Example:

   $ fsreplay replay crash.json rootfs.tar.zst
   2 3
   1 2
   87 -2
   ...

For a list of commands available, run 'fsreplay help'.`

// configPath is the path to the configuration file, set by the -c/--config
// option of all commands.
var configPath human.Path

// root is the fsreplay entrypoint.
func root(ctx context.Context, args ...string) int {
	configPath = ""

	flagSet := newFlagSet("fsreplay", helpUsage)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(flagSet)
			return 0
		}
		return exit("", usageError("fsreplay: %s", err))
	}

	if args = flagSet.Args(); len(args) == 0 {
		fmt.Fprintln(os.Stdout, rootUsage)
		return 0
	}

	cmd, args := args[0], args[1:]

	var err error
	switch cmd {
	case "batch":
		err = batch(ctx, args)
	case "config":
		err = config(ctx, args)
	case "describe":
		err = describe(ctx, args)
	case "help":
		err = help(ctx, args)
	case "replay":
		err = replay(ctx, args)
	case "version":
		err = version(ctx, args)
	default:
		err = unknown(ctx, cmd)
	}
	return exit(cmd, err)
}

func exit(cmd string, err error) int {
	var code exitCode
	var use usage
	switch {
	case err == nil:
		return 0
	case errors.As(err, &code):
		return int(code)
	case errors.As(err, &use):
		fmt.Fprintf(os.Stderr, "%s\n", use)
		return 2
	default:
		fmt.Fprintf(os.Stderr, "ERR: %s: %s\n", strings.TrimSpace("fsreplay "+cmd), err)
		return 1
	}
}

// exitCode is an error type returned from command functions to indicate the
// exit code that should be returned by the program.
type exitCode int

func (e exitCode) Error() string {
	return fmt.Sprintf("exit: %d", e)
}

// usage is an error type returned from command functions to indicate a usage
// error.
//
// Usage errors cause the program to exit with status code 2.
type usage string

func usageError(msg string, args ...any) error {
	return usage(fmt.Sprintf(msg, args...))
}

func (e usage) Error() string {
	return string(e)
}

func loadConfig() (*conf.Config, error) {
	return conf.Load(conf.Path(configPath))
}

func setEnum[T ~string](enum *T, typ string, value string, options ...string) error {
	if slices.Contains(options, value) {
		*enum = T(value)
		return nil
	}
	return fmt.Errorf("unsupported %s: %q (not one of %s)", typ, value, strings.Join(options, ", "))
}

type outputFormat string

func (o outputFormat) String() string {
	return string(o)
}

func (o *outputFormat) Set(value string) error {
	return setEnum(o, "output format", value, "text", "json", "yaml")
}

// optionalString is a string flag that records whether it was set, so
// configuration values apply when the option is absent.
type optionalString struct {
	value string
	isSet bool
}

func (s optionalString) String() string {
	return s.value
}

func (s *optionalString) Set(value string) error {
	s.value, s.isSet = value, true
	return nil
}

func (s optionalString) or(def string) string {
	if s.isSet {
		return s.value
	}
	return def
}

type positiveInt int

func (n positiveInt) String() string {
	return strconv.Itoa(int(n))
}

func (n *positiveInt) Set(value string) error {
	i, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	if i <= 0 {
		return fmt.Errorf("not a positive number: %d", i)
	}
	*n = positiveInt(i)
	return nil
}

func newFlagSet(cmd, usage string) *flag.FlagSet {
	usage = strings.TrimSpace(usage)
	flagSet := flag.NewFlagSet(cmd, flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.Usage = func() { fmt.Fprintln(flagSet.Output(), usage) }
	customVar(flagSet, &configPath, "c", "config")
	return flagSet
}

// printUsage writes the usage message of f to stdout. The flag package also
// calls f.Usage on parse errors, which must not print anything.
func printUsage(f *flag.FlagSet) {
	f.SetOutput(os.Stdout)
	defer f.SetOutput(io.Discard)
	f.Usage()
}

// parseFlags is a greedy parser which consumes all options known to f and
// returns the remaining arguments. Arguments that follow "--" are never
// interpreted as options.
//
// The returned error is exitCode(0) if the help option was passed, after the
// usage message was printed, or a usage error if the arguments were malformed.
func parseFlags(f *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := f.Parse(args); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				printUsage(f)
				return nil, exitCode(0)
			}
			return nil, usageError("%s: %s", f.Name(), err)
		}
		rest := f.Args()
		if len(rest) == 0 {
			return positional, nil
		}
		if len(args) > len(rest) && args[len(args)-len(rest)-1] == "--" {
			return append(positional, rest...), nil
		}
		i := slices.IndexFunc(rest, func(s string) bool {
			return strings.HasPrefix(s, "-") && s != "-"
		})
		if i < 0 {
			return append(positional, rest...), nil
		}
		positional = append(positional, rest[:i]...)
		args = rest[i:]
	}
}

func boolVar(f *flag.FlagSet, dst *bool, name string, alias ...string) {
	f.BoolVar(dst, name, *dst, "")
	for _, name := range alias {
		f.BoolVar(dst, name, *dst, "")
	}
}

func customVar(f *flag.FlagSet, dst flag.Value, name string, alias ...string) {
	f.Var(dst, name, "")
	for _, name := range alias {
		f.Var(dst, name, "")
	}
}
