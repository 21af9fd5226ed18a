package replay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/stealthrocket/fsreplay/internal/kernel"
	"github.com/stealthrocket/fsreplay/internal/program"
)

// Job is an independent replay of a batch.
type Job struct {
	// Name of the job, used to name its output files. Jobs without a name are
	// given a random one.
	Name string `yaml:"name,omitempty"`
	// Path to the program to replay.
	Program string `yaml:"program"`
	// Image and file system type to mount, the latter being optional.
	Image      string `yaml:"image"`
	FileSystem string `yaml:"filesystem,omitempty"`
	// Kernel command line, overriding the default of the batch.
	Boot string `yaml:"boot,omitempty"`
}

// Manifest is the list of jobs of a batch, as stored in yaml files:
//
//	jobs:
//	  - name: crash-1
//	    program: crash-1.json
//	    image: rootfs.tar.zst
//	  - program: crash-2.yaml
//	    image: ./rootfs
//	    filesystem: dir
type Manifest struct {
	Jobs []Job `yaml:"jobs"`
}

// LoadManifest reads a batch manifest. Relative paths of programs and images
// are interpreted relative to the directory of the manifest.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m := new(Manifest)
	d := yaml.NewDecoder(f)
	d.KnownFields(true)
	if err := d.Decode(m); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dir := filepath.Dir(path)
	names := make(map[string]bool, len(m.Jobs))
	for i := range m.Jobs {
		job := &m.Jobs[i]
		if job.Program == "" {
			return nil, fmt.Errorf("%s: job %d: missing program", path, i)
		}
		if job.Image == "" && job.FileSystem != kernel.FileSystemTmpfs {
			return nil, fmt.Errorf("%s: job %d: missing image", path, i)
		}
		if job.Name != "" {
			if names[job.Name] {
				return nil, fmt.Errorf("%s: job %d: duplicate name %q", path, i, job.Name)
			}
			names[job.Name] = true
		}
		job.Program = resolvePath(dir, job.Program)
		job.Image = resolvePath(dir, job.Image)
	}
	return m, nil
}

func resolvePath(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// JobResult is the outcome of a job.
type JobResult struct {
	Job      Job
	Stats    Stats
	Duration time.Duration
	// Err is set if the job could not complete.
	Err error
}

// Batch runs jobs concurrently, each against its own kernel.
type Batch struct {
	// Maximum number of jobs running at the same time. Zero or less means
	// no limit.
	Parallelism int
	// Directory where the <name>.stdout and <name>.stderr files of each job
	// are created.
	OutputDir string
	// Options used to mount the kernels. The image, file system type, and
	// boot options are overridden by the fields of each job.
	Kernel kernel.Options
	// Bound on the duration of each job, zero means no timeout.
	Timeout   time.Duration
	WriteBack bool
}

// Run executes the jobs and returns their results, in the order of the jobs.
// The failure of a job does not prevent the others from running; the returned
// error is only set when the output directory could not be created or ctx was
// canceled.
func (b *Batch) Run(ctx context.Context, jobs []Job) ([]JobResult, error) {
	if err := os.MkdirAll(b.OutputDir, 0755); err != nil {
		return nil, err
	}

	results := make([]JobResult, len(jobs))
	group, ctx := errgroup.WithContext(ctx)
	if b.Parallelism > 0 {
		group.SetLimit(b.Parallelism)
	}

	for i := range jobs {
		i, job := i, jobs[i]
		if job.Name == "" {
			job.Name = uuid.NewString()
		}

		group.Go(func() error {
			start := time.Now()
			stats, err := b.runJob(ctx, job)
			results[i] = JobResult{
				Job:      job,
				Stats:    stats,
				Duration: time.Since(start),
				Err:      err,
			}
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		})
	}

	err := group.Wait()
	return results, err
}

func (b *Batch) runJob(ctx context.Context, job Job) (Stats, error) {
	prog, err := program.Load(job.Program)
	if err != nil {
		return Stats{}, err
	}

	stdout, err := os.Create(filepath.Join(b.OutputDir, job.Name+".stdout"))
	if err != nil {
		return Stats{}, err
	}
	defer stdout.Close()

	stderr, err := os.Create(filepath.Join(b.OutputDir, job.Name+".stderr"))
	if err != nil {
		return Stats{}, err
	}
	defer stderr.Close()

	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	opts := b.Kernel
	opts.Image = job.Image
	if job.FileSystem != "" {
		opts.FileSystem = job.FileSystem
	}
	if job.Boot != "" {
		opts.Boot = job.Boot
	}

	r := &Runner{
		Output:    stdout,
		Errors:    stderr,
		WriteBack: b.WriteBack,
	}
	stats, err := r.Replay(ctx, prog, Mount(opts))
	if err != nil {
		fmt.Fprintf(stderr, "ERR: %s\n", err)
		return stats, err
	}
	if err := stdout.Close(); err != nil {
		return stats, err
	}
	return stats, stderr.Close()
}
