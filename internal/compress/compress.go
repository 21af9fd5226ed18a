// Package compress detects and applies the stream compression formats accepted
// for program files and tarball images.
package compress

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Format identifies a compression format.
type Format int

const (
	Uncompressed Format = iota
	Gzip
	Zstd
)

func (f Format) String() string {
	switch f {
	case Uncompressed:
		return "none"
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Ext returns the file name extension conventionally used for f.
func (f Format) Ext() string {
	switch f {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	default:
		return ""
	}
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Detect peeks at the first bytes of r to determine its compression format.
// The reader is left positioned at the start of the stream.
func Detect(r *bufio.Reader) (Format, error) {
	b, err := r.Peek(len(zstdMagic))
	if err != nil && err != io.EOF {
		return Uncompressed, err
	}
	switch {
	case bytes.HasPrefix(b, zstdMagic):
		return Zstd, nil
	case bytes.HasPrefix(b, gzipMagic):
		return Gzip, nil
	default:
		return Uncompressed, nil
	}
}

// FromPath returns the compression format implied by the extension of path,
// and the path with that extension removed.
func FromPath(path string) (Format, string) {
	switch ext := filepath.Ext(path); strings.ToLower(ext) {
	case ".gz", ".gzip":
		return Gzip, strings.TrimSuffix(path, ext)
	case ".zst", ".zstd":
		return Zstd, strings.TrimSuffix(path, ext)
	default:
		return Uncompressed, path
	}
}

// NewReader returns a reader decompressing the content of r, detecting the
// format from the leading magic bytes.
func NewReader(r io.Reader) (io.ReadCloser, Format, error) {
	br := bufio.NewReader(r)
	format, err := Detect(br)
	if err != nil {
		return nil, format, err
	}
	switch format {
	case Gzip:
		z, err := gzip.NewReader(br)
		if err != nil {
			return nil, format, err
		}
		return z, format, nil
	case Zstd:
		z, err := zstd.NewReader(br,
			zstd.WithDecoderConcurrency(1),
		)
		if err != nil {
			return nil, format, err
		}
		return z.IOReadCloser(), format, nil
	default:
		return io.NopCloser(br), format, nil
	}
}

// NewWriter returns a writer compressing data written to it with the given
// format. Closing the writer flushes the compressed stream but does not close w.
func NewWriter(w io.Writer, format Format) (io.WriteCloser, error) {
	switch format {
	case Gzip:
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	case Zstd:
		return zstd.NewWriter(w,
			zstd.WithEncoderConcurrency(1),
			zstd.WithEncoderLevel(zstd.SpeedDefault),
		)
	case Uncompressed:
		return nopWriteCloser{w}, nil
	default:
		return nil, fmt.Errorf("unknown compression format: %d", format)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
