package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/stealthrocket/fsreplay/internal/print/human"
	"github.com/stealthrocket/fsreplay/internal/print/jsonprint"
	"github.com/stealthrocket/fsreplay/internal/print/textprint"
	"github.com/stealthrocket/fsreplay/internal/print/yamlprint"
	replayer "github.com/stealthrocket/fsreplay/internal/replay"
	"github.com/stealthrocket/fsreplay/internal/stream"
)

const batchUsage = `
Usage:	fsreplay batch [options] <manifest>

   The batch command replays the jobs listed in a manifest concurrently, each
   against its own kernel. The output of each job is written to the files
   <name>.stdout and <name>.stderr of the output directory, and a summary of
   the jobs is printed when they all completed.

   Manifests are yaml files listing the program and image of each job:

   jobs:
     - name: crash-1
       program: crash-1.json
       image: rootfs.tar.zst
     - program: crash-2.yaml
       image: ./rootfs
       filesystem: dir
       boot: mem=1G ro

Options:
   -c, --config path         Path to the configuration file (overrides FSREPLAYCONFIG)
   -d, --output-dir path     Directory where job outputs are written (default: .)
   -h, --help                Show this usage information
   -j, --jobs n              Number of jobs running concurrently (default: number of CPUs)
       --no-write-back       Do not store buffers written by the kernel into variables
   -o, --output format       Output format of the summary, one of: text, json, yaml
       --timeout duration    Abort jobs which take longer than this duration
`

type jobSummary struct {
	Name     string         `json:"name" yaml:"name" text:"JOB"`
	Status   string         `json:"status" yaml:"status" text:"STATUS"`
	Syscalls int            `json:"syscalls" yaml:"syscalls" text:"SYSCALLS"`
	Failed   int            `json:"failed" yaml:"failed" text:"FAILED"`
	Errors   int            `json:"errors" yaml:"errors" text:"ERRORS"`
	Duration human.Duration `json:"duration" yaml:"duration" text:"DURATION"`
	Error    string         `json:"error,omitempty" yaml:"error,omitempty" text:"-"`
}

func makeJobSummary(r replayer.JobResult) (jobSummary, error) {
	s := jobSummary{
		Name:     r.Job.Name,
		Status:   "ok",
		Syscalls: r.Stats.Syscalls,
		Failed:   r.Stats.Failed,
		Errors:   r.Stats.Errors,
		Duration: human.Duration(r.Duration.Round(time.Millisecond)),
	}
	if r.Err != nil {
		s.Status, s.Error = "error", r.Err.Error()
	}
	return s, nil
}

func batch(ctx context.Context, args []string) error {
	var (
		outputDir   = human.Path(".")
		jobs        positiveInt
		timeout     human.Duration
		noWriteBack bool
		output      = outputFormat("text")
	)

	flagSet := newFlagSet("fsreplay batch", batchUsage)
	customVar(flagSet, &outputDir, "d", "output-dir")
	customVar(flagSet, &jobs, "j", "jobs")
	customVar(flagSet, &timeout, "timeout")
	boolVar(flagSet, &noWriteBack, "no-write-back")
	customVar(flagSet, &output, "o", "output")

	args, err := parseFlags(flagSet, args)
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return usageError("Expected exactly one manifest path as argument")
	}

	config, err := loadConfig()
	if err != nil {
		return err
	}
	manifest, err := replayer.LoadManifest(args[0])
	if err != nil {
		return err
	}
	dir, err := outputDir.Resolve()
	if err != nil {
		return err
	}

	b := &replayer.Batch{
		Parallelism: int(jobs),
		OutputDir:   dir,
		Kernel:      config.KernelOptions(),
		Timeout:     time.Duration(timeout),
		WriteBack:   config.WriteBack() && !noWriteBack,
	}
	if b.Parallelism == 0 {
		b.Parallelism = config.Jobs()
	}
	if b.Timeout == 0 {
		b.Timeout = config.Timeout()
	}

	results, err := b.Run(ctx, manifest.Jobs)
	if err != nil {
		return err
	}

	var w stream.WriteCloser[jobSummary]
	switch output {
	case "json":
		w = jsonprint.NewWriter[jobSummary](os.Stdout, jsonprint.Compact())
	case "yaml":
		w = yamlprint.NewWriter[jobSummary](os.Stdout)
	default:
		w = textprint.NewTableWriter[jobSummary](os.Stdout)
	}
	if _, err := stream.ConvertWriter[jobSummary](w, makeJobSummary).Write(results); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	var failed bool
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(os.Stderr, "ERR: fsreplay batch: %s: %s\n", r.Job.Name, r.Err)
			failed = true
		}
	}
	if failed {
		return exitCode(1)
	}
	return nil
}
