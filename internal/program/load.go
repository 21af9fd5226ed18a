package program

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/stealthrocket/fsreplay/internal/compress"
)

// Format is a file format that programs can be stored in.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// FormatOf returns the format of a program file from its name. The extension
// of a compression format is ignored, so "prog.yaml.zst" is in yaml format.
// Names without a recognized extension default to json.
func FormatOf(path string) Format {
	_, path = compress.FromPath(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	default:
		return JSON
	}
}

// Load reads the program stored at path. The compression of the file is
// detected from its content, the format from its name.
func Load(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := Decode(f, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Decode reads a program from a possibly compressed stream.
func Decode(r io.Reader, format Format) (*Program, error) {
	z, _, err := compress.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer z.Close()

	switch format {
	case YAML:
		return DecodeYAML(z)
	case JSON:
		return DecodeJSON(z)
	default:
		return nil, fmt.Errorf("unsupported program format: %q", format)
	}
}

// Save writes p to path, in the format and compression implied by the name of
// the file.
func Save(path string, p *Program) error {
	compression, _ := compress.FromPath(path)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	z, err := compress.NewWriter(w, compression)
	if err != nil {
		return err
	}

	switch FormatOf(path) {
	case YAML:
		err = EncodeYAML(z, p)
	default:
		err = EncodeJSON(z, p)
	}
	if err != nil {
		return err
	}
	if err := z.Close(); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}
