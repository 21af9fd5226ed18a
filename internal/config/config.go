// Package config loads the fsreplay configuration file.
//
// The configuration provides the defaults of command line options:
//
//	kernel:
//	  boot: mem=128M
//	  mount-point: /mnt/image
//	  filesystem: auto
//	replay:
//	  write-back: true
//	  timeout: 0s
//	batch:
//	  jobs: 4
//
// Unset values fall back to built-in defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime"
	"time"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/stealthrocket/fsreplay/internal/kernel"
	"github.com/stealthrocket/fsreplay/internal/print/human"
)

const (
	// DefaultPath is the location of the configuration file when neither the
	// command line nor the environment set one.
	DefaultPath human.Path = "~/.fsreplay/config.yaml"
	// PathEnv is the environment variable overriding DefaultPath.
	PathEnv = "FSREPLAYCONFIG"
)

// Config is the fsreplay configuration.
type Config struct {
	Kernel struct {
		Boot       Nullable[string] `json:"boot" yaml:"boot"`
		MountPoint Nullable[string] `json:"mount-point" yaml:"mount-point"`
		FileSystem Nullable[string] `json:"filesystem" yaml:"filesystem"`
	} `json:"kernel" yaml:"kernel"`
	Replay struct {
		WriteBack Nullable[bool]           `json:"write-back" yaml:"write-back"`
		Timeout   Nullable[human.Duration] `json:"timeout" yaml:"timeout"`
	} `json:"replay" yaml:"replay"`
	Batch struct {
		Jobs Nullable[int] `json:"jobs" yaml:"jobs"`
	} `json:"batch" yaml:"batch"`
}

// Default is the default configuration.
func Default() *Config {
	c := new(Config)
	c.Kernel.Boot = NullableValue(kernel.DefaultBoot)
	c.Kernel.MountPoint = NullableValue(kernel.DefaultMountPoint)
	c.Kernel.FileSystem = NullableValue(kernel.FileSystemAuto)
	c.Replay.WriteBack = NullableValue(true)
	c.Replay.Timeout = NullableValue(human.Duration(0))
	c.Batch.Jobs = NullableValue(runtime.NumCPU())
	return c
}

// Path returns the path of the configuration file: flag when it is not empty,
// then the value of the environment variable, then DefaultPath.
func Path(flag human.Path) human.Path {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(PathEnv); env != "" {
		return human.Path(env)
	}
	return DefaultPath
}

// Load opens, reads, and validates the configuration file at path.
func Load(path human.Path) (*Config, error) {
	r, _, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	c, err := Read(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Open opens the configuration file at path. When the file does not exist,
// the returned reader produces the default configuration. The second return
// value is the resolved path of the file.
func Open(path human.Path) (io.ReadCloser, string, error) {
	resolved, err := path.Resolve()
	if err != nil {
		return nil, resolved, err
	}
	f, err := os.Open(resolved)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, resolved, err
		}
		b, _ := yaml.Marshal(Default())
		return io.NopCloser(bytes.NewReader(b)), resolved, nil
	}
	return f, resolved, nil
}

// Read parses configuration from r. Values absent from r keep their default,
// values set to null are cleared.
func Read(r io.Reader) (*Config, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	c := Default()
	d := yaml.NewDecoder(bytes.NewReader(b))
	d.KnownFields(true)
	if err := d.Decode(c); err != nil && err != io.EOF {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	c.clearNulls(&doc)
	return c, nil
}

// The decoder leaves fields unchanged when their value is null, so the
// defaults must be cleared by walking the document.
func (c *Config) clearNulls(doc *yaml.Node) {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return
	}
	fields := map[string]map[string]interface{ clear() }{
		"kernel": {
			"boot":        &c.Kernel.Boot,
			"mount-point": &c.Kernel.MountPoint,
			"filesystem":  &c.Kernel.FileSystem,
		},
		"replay": {
			"write-back": &c.Replay.WriteBack,
			"timeout":    &c.Replay.Timeout,
		},
		"batch": {
			"jobs": &c.Batch.Jobs,
		},
	}
	forEach(doc.Content[0], func(name string, section *yaml.Node) {
		if isNull(section) {
			for _, field := range fields[name] {
				field.clear()
			}
			return
		}
		forEach(section, func(key string, value *yaml.Node) {
			if field, ok := fields[name][key]; ok && isNull(value) {
				field.clear()
			}
		})
	})
}

func forEach(node *yaml.Node, do func(string, *yaml.Node)) {
	if node.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		do(node.Content[i].Value, node.Content[i+1])
	}
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null"
}

// Validate checks that the values of c are usable.
func (c *Config) Validate() error {
	if boot, ok := c.Kernel.Boot.Value(); ok {
		if _, err := kernel.ParseBoot(boot); err != nil {
			return fmt.Errorf("kernel.boot: %w", err)
		}
	}
	if mountPoint, ok := c.Kernel.MountPoint.Value(); ok {
		if mountPoint == "" || mountPoint[0] != '/' {
			return fmt.Errorf("kernel.mount-point: not an absolute path: %q", mountPoint)
		}
	}
	if fstype, ok := c.Kernel.FileSystem.Value(); ok {
		if !slices.Contains(kernel.FileSystems, fstype) {
			return fmt.Errorf("kernel.filesystem: unsupported file system type: %q", fstype)
		}
	}
	if timeout, ok := c.Replay.Timeout.Value(); ok && timeout < 0 {
		return fmt.Errorf("replay.timeout: negative duration: %s", timeout)
	}
	if jobs, ok := c.Batch.Jobs.Value(); ok && jobs < 0 {
		return fmt.Errorf("batch.jobs: negative number of jobs: %d", jobs)
	}
	return nil
}

// KernelOptions returns the options used to mount kernels. The image is left
// for the caller to set.
func (c *Config) KernelOptions() kernel.Options {
	return kernel.Options{
		FileSystem: c.Kernel.FileSystem.Or(kernel.FileSystemAuto),
		Boot:       c.Kernel.Boot.Or(kernel.DefaultBoot),
		MountPoint: c.Kernel.MountPoint.Or(kernel.DefaultMountPoint),
	}
}

// WriteBack reports whether replays store output buffers back into variables.
func (c *Config) WriteBack() bool { return c.Replay.WriteBack.Or(true) }

// Timeout is the bound on the duration of replays, zero meaning no bound.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Replay.Timeout.Or(0))
}

// Jobs is the number of batch jobs running concurrently.
func (c *Config) Jobs() int {
	if jobs := c.Batch.Jobs.Or(0); jobs > 0 {
		return jobs
	}
	return runtime.NumCPU()
}
