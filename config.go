package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	conf "github.com/stealthrocket/fsreplay/internal/config"
	"github.com/stealthrocket/fsreplay/internal/print/human"
	"github.com/stealthrocket/fsreplay/internal/print/jsonprint"
	"github.com/stealthrocket/fsreplay/internal/print/yamlprint"
	"github.com/stealthrocket/fsreplay/internal/stream"
)

const configUsage = `
Usage:	fsreplay config [options]

   The config command prints the fsreplay configuration. The configuration
   provides the defaults of the kernel, replay, and batch options:

   kernel:
     boot: mem=128M
     mount-point: /mnt/image
     filesystem: auto
   replay:
     write-back: true
     timeout: 0s
   batch:
     jobs: 4

Options:
   -c, --config path    Path to the configuration file (overrides FSREPLAYCONFIG)
       --edit           Open $EDITOR to edit the configuration
   -h, --help           Show usage information
   -o, --output format  Output format, one of: text, json, yaml
`

func config(ctx context.Context, args []string) error {
	var (
		edit   bool
		output = outputFormat("text")
	)

	flagSet := newFlagSet("fsreplay config", configUsage)
	boolVar(flagSet, &edit, "edit")
	customVar(flagSet, &output, "o", "output")

	if _, err := parseFlags(flagSet, args); err != nil {
		return err
	}

	path := conf.Path(configPath)
	if edit {
		if err := editConfig(path); err != nil {
			return err
		}
	}

	config, err := conf.Load(path)
	if err != nil {
		return err
	}

	var w stream.WriteCloser[*conf.Config]
	switch output {
	case "json":
		w = jsonprint.NewWriter[*conf.Config](os.Stdout)
	case "yaml":
		w = yamlprint.NewWriter[*conf.Config](os.Stdout)
	default:
		// The text output is the file itself, preserving comments.
		r, _, err := conf.Open(path)
		if err != nil {
			return err
		}
		defer r.Close()
		_, err = io.Copy(os.Stdout, r)
		return err
	}

	if _, err := w.Write([]*conf.Config{config}); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// editConfig opens the configuration in $EDITOR. The edited copy replaces the
// configuration file only if it is valid.
func editConfig(path human.Path) error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		return errors.New(`$EDITOR is not set`)
	}
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}

	r, resolved, err := conf.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(resolved), 0777); err != nil {
		if !errors.Is(err, fs.ErrExist) {
			return err
		}
	}

	tmp, err := createTempFile(resolved, r)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	p, err := os.StartProcess(shell, []string{shell, "-c", editor + " " + tmp}, &os.ProcAttr{
		Files: []*os.File{
			0: os.Stdin,
			1: os.Stdout,
			2: os.Stderr,
		},
	})
	if err != nil {
		return err
	}
	if _, err := p.Wait(); err != nil {
		return err
	}

	if _, err := conf.Load(human.Path(tmp)); err != nil {
		return fmt.Errorf("not applying configuration updates because the file is invalid: %w", err)
	}
	return os.Rename(tmp, resolved)
}

func createTempFile(path string, r io.Reader) (string, error) {
	dir, file := filepath.Split(path)
	w, err := os.CreateTemp(dir, "."+file+".*")
	if err != nil {
		return "", err
	}
	defer w.Close()
	_, err = io.Copy(w, r)
	return w.Name(), err
}
