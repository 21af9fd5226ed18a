package vfs

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/layout"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/tarball"

	"github.com/stealthrocket/fsreplay/internal/compress"
)

// LoadOCI flattens the layers of a container image into a new in-memory file
// system. The path may be an OCI image layout directory, in which case the
// first image of its index is used, or a tarball written by `docker save` or
// similar tools.
func LoadOCI(path string, limit int64) (*MemFS, error) {
	img, err := openImage(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r := mutate.Extract(img)
	defer r.Close()

	fsys, _, err := LoadTar(r, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fsys, nil
}

func openImage(path string) (v1.Image, error) {
	s, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !s.IsDir() {
		return tarball.ImageFromPath(path, nil)
	}

	p, err := layout.FromPath(path)
	if err != nil {
		return nil, err
	}
	index, err := p.ImageIndex()
	if err != nil {
		return nil, err
	}
	manifest, err := index.IndexManifest()
	if err != nil {
		return nil, err
	}
	for _, desc := range manifest.Manifests {
		if desc.MediaType.IsImage() {
			return p.Image(desc.Digest)
		}
	}
	return nil, errors.New("no image found in layout index")
}

// ImageType is the type of image detected by DetectImage.
type ImageType string

const (
	ImageDir ImageType = "dir"
	ImageTar ImageType = "tar"
	ImageOCI ImageType = "oci"
)

// DetectImage guesses the type of the image at path. Directories are mounted
// as is unless they hold an OCI layout. Tarballs are OCI images when they
// contain the manifest.json written by `docker save`, and plain file system
// archives otherwise.
func DetectImage(path string) (ImageType, error) {
	s, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if s.IsDir() {
		if _, err := os.Stat(path + "/oci-layout"); err == nil {
			return ImageOCI, nil
		}
		return ImageDir, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	z, _, err := compress.NewReader(f)
	if err != nil {
		return "", err
	}
	defer z.Close()

	t := tar.NewReader(z)
	for {
		header, err := t.Next()
		if err != nil {
			if err == io.EOF {
				return ImageTar, nil
			}
			return "", fmt.Errorf("%s: not a tarball: %w", path, err)
		}
		if absPath(header.Name) == "/manifest.json" {
			return ImageOCI, nil
		}
	}
}
