package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/stealthrocket/fsreplay/internal/kernel"
)

const versionUsage = `
Usage:	fsreplay version [options]

Options:
   -h, --help     Show this usage information
   -v, --verbose  Also print the supported file systems and the Go version
`

func version(ctx context.Context, args []string) error {
	var verbose bool

	flagSet := newFlagSet("fsreplay version", versionUsage)
	boolVar(flagSet, &verbose, "v", "verbose")

	if _, err := parseFlags(flagSet, args); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "fsreplay %s\n", currentVersion())
	if verbose {
		fmt.Fprintf(os.Stdout, "file systems: %v\n", kernel.FileSystems)
		if info, ok := debug.ReadBuildInfo(); ok {
			fmt.Fprintf(os.Stdout, "go: %s\n", info.GoVersion)
		}
	}
	return nil
}

func currentVersion() string {
	version := "devel"
	if info, ok := debug.ReadBuildInfo(); ok {
		switch info.Main.Version {
		case "":
		case "(devel)":
		default:
			version = info.Main.Version
		}
	}
	return version
}
