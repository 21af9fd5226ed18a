package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/stealthrocket/fsreplay/internal/print/human"
	"github.com/stealthrocket/fsreplay/internal/print/jsonprint"
	"github.com/stealthrocket/fsreplay/internal/print/textprint"
	"github.com/stealthrocket/fsreplay/internal/print/yamlprint"
	"github.com/stealthrocket/fsreplay/internal/program"
	replayer "github.com/stealthrocket/fsreplay/internal/replay"
	"github.com/stealthrocket/fsreplay/internal/stream"
)

const describeUsage = `
Usage:	fsreplay describe [options] <program>...

   The describe command prints the system calls and variables of programs.

   With the json and yaml output formats, programs are printed in the file
   format that fsreplay reads, which can be used to convert programs between
   formats.

Example:

   $ fsreplay describe crash.json
   Program:    crash.json
   Format:     json
   Syscalls:   3
   Variables:  3 (18 B)
   Active FDs: 3

   SEQ  NR  SYSCALL  ARGUMENTS     NOTES
   0    2   open     $0, 65, 420
   ...

Options:
   -c, --config path    Path to the configuration file (overrides FSREPLAYCONFIG)
   -h, --help           Show this usage information
   -o, --output format  Output format, one of: text, json, yaml
`

func describe(ctx context.Context, args []string) error {
	output := outputFormat("text")

	flagSet := newFlagSet("fsreplay describe", describeUsage)
	customVar(flagSet, &output, "o", "output")

	args, err := parseFlags(flagSet, args)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return usageError("Expected at least one program path as argument")
	}

	descs := make([]*programDescriptor, len(args))
	progs := make([]*program.Program, len(args))
	for i, path := range args {
		p, err := program.Load(path)
		if err != nil {
			return err
		}
		progs[i] = p
		descs[i] = &programDescriptor{path: path, format: program.FormatOf(path), prog: p}
	}

	switch output {
	case "json":
		return printAll(jsonprint.NewWriter[*program.Program](os.Stdout), progs)
	case "yaml":
		return printAll(yamlprint.NewWriter[*program.Program](os.Stdout), progs)
	default:
		return printAll(textprint.NewWriter[*programDescriptor](os.Stdout), descs)
	}
}

func printAll[T any](w stream.WriteCloser[T], values []T) error {
	if _, err := stream.Copy[T](w, stream.NewReader(values...)); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

type programDescriptor struct {
	path   string
	format program.Format
	prog   *program.Program
}

type syscallDefinition struct {
	Seq   int    `text:"SEQ"`
	NR    int64  `text:"NR"`
	Name  string `text:"SYSCALL"`
	Args  string `text:"ARGUMENTS"`
	Notes string `text:"NOTES"`
}

type variableDefinition struct {
	Index int         `text:"VAR"`
	Type  string      `text:"TYPE"`
	Size  human.Bytes `text:"SIZE"`
	Value string      `text:"VALUE"`
}

func (desc *programDescriptor) Format(w fmt.State, _ rune) {
	p := desc.prog

	var unsupported int
	syscalls := make([]syscallDefinition, len(p.Syscalls))
	for i, syscall := range p.Syscalls {
		args := make([]string, len(syscall.Args))
		for j, arg := range syscall.Args {
			args[j] = arg.String()
		}
		syscalls[i] = syscallDefinition{
			Seq:  i,
			NR:   int64(syscall.NR),
			Name: syscall.NR.String(),
			Args: strings.Join(args, ", "),
		}
		if _, ok := replayer.Lookup(syscall.NR); !ok {
			syscalls[i].Notes = "unsupported"
			unsupported++
		}
	}

	var size human.Bytes
	variables := make([]variableDefinition, len(p.Variables))
	for i, v := range p.Variables {
		variables[i] = makeVariableDefinition(i, v)
		size += variables[i].Size
	}

	fmt.Fprintf(w, "Program:    %s\n", desc.path)
	fmt.Fprintf(w, "Format:     %s\n", desc.format)
	if unsupported > 0 {
		fmt.Fprintf(w, "Syscalls:   %d (%d unsupported)\n", len(syscalls), unsupported)
	} else {
		fmt.Fprintf(w, "Syscalls:   %d\n", len(syscalls))
	}
	fmt.Fprintf(w, "Variables:  %d (%v)\n", len(variables), size)
	fmt.Fprintf(w, "Active FDs: %s\n", formatFDs(p.ActiveFDs))

	if len(syscalls) > 0 {
		fmt.Fprintf(w, "\n")
		sw := textprint.NewTableWriter[syscallDefinition](w)
		_, _ = sw.Write(syscalls)
		_ = sw.Close()
	}

	if len(variables) > 0 {
		fmt.Fprintf(w, "\n")
		vw := textprint.NewTableWriter[variableDefinition](w)
		_, _ = vw.Write(variables)
		_ = vw.Close()
	}
}

func makeVariableDefinition(index int, v program.Variable) variableDefinition {
	def := variableDefinition{Index: index, Type: program.KindOf(v)}
	switch v := v.(type) {
	case program.Str:
		def.Size = human.Bytes(len(v))
		def.Value = strconv.Quote(string(v))
	case program.Long:
		def.Size = 8
		def.Value = strconv.FormatInt(int64(v), 10)
	case program.Buffer:
		def.Size = human.Bytes(v.Size)
		if v.Data == nil {
			def.Value = "(zero)"
		} else {
			def.Value = fmt.Sprintf("%16x", human.ByteArray(v.Data))
		}
	}
	return def
}

func formatFDs(fds []int64) string {
	if len(fds) == 0 {
		return "(none)"
	}
	s := make([]string, len(fds))
	for i, fd := range fds {
		s[i] = strconv.FormatInt(fd, 10)
	}
	return strings.Join(s, ", ")
}
