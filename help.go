package main

import (
	"context"
	"fmt"
	"os"
	"strings"
)

const helpUsage = `
Usage:	fsreplay <command> [options]

Replay Commands:
   replay    Replay a program against a file system image
   batch     Replay many programs concurrently, each in its own kernel

Inspection Commands:
   describe  Print the system calls and variables of a program

Other Commands:
   config    Show or edit the fsreplay configuration
   help      Show usage information about fsreplay commands
   version   Show the fsreplay version information

Global Options:
   -c, --config path  Path to the configuration file (overrides FSREPLAYCONFIG)
   -h, --help         Show usage information

For a description of each command, run 'fsreplay help <command>'.`

func help(ctx context.Context, args []string) error {
	flagSet := newFlagSet("fsreplay help", helpUsage)
	args, err := parseFlags(flagSet, args)
	if err != nil {
		return err
	}

	var cmd string
	var msg string

	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "batch":
		msg = batchUsage
	case "config":
		msg = configUsage
	case "describe":
		msg = describeUsage
	case "help", "":
		msg = helpUsage
	case "replay":
		msg = replayUsage
	case "version":
		msg = versionUsage
	default:
		return usageError("fsreplay help %s: unknown command", cmd)
	}

	fmt.Fprintln(os.Stdout, strings.TrimSpace(msg))
	return nil
}
