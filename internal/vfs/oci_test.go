package vfs_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/layout"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/tarball"

	"github.com/stealthrocket/fsreplay/internal/assert"
	"github.com/stealthrocket/fsreplay/internal/compress"
	"github.com/stealthrocket/fsreplay/internal/vfs"
)

func makeImage(t *testing.T) v1.Image {
	t.Helper()
	data := sampleTar(t, compress.Uncompressed)
	layer, err := tarball.LayerFromOpener(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
	assert.OK(t, err)
	img, err := mutate.AppendLayers(empty.Image, layer)
	assert.OK(t, err)
	return img
}

func checkImage(t *testing.T, fsys vfs.FileSystem) {
	t.Helper()
	b, err := vfs.ReadFile(fsys, "etc/hosts")
	assert.OK(t, err)
	assert.Equal(t, string(b), "127.0.0.1 localhost\n")
}

func TestLoadOCITarball(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.tar")
	ref, err := name.ParseReference("fsreplay/test:latest")
	assert.OK(t, err)
	assert.OK(t, tarball.WriteToFile(path, ref, makeImage(t)))

	typ, err := vfs.DetectImage(path)
	assert.OK(t, err)
	assert.Equal(t, typ, vfs.ImageOCI)

	fsys, err := vfs.LoadOCI(path, 0)
	assert.OK(t, err)
	checkImage(t, fsys)
}

func TestLoadOCILayout(t *testing.T) {
	dir := t.TempDir()
	p, err := layout.Write(dir, empty.Index)
	assert.OK(t, err)
	assert.OK(t, p.AppendImage(makeImage(t)))

	typ, err := vfs.DetectImage(dir)
	assert.OK(t, err)
	assert.Equal(t, typ, vfs.ImageOCI)

	fsys, err := vfs.LoadOCI(dir, 0)
	assert.OK(t, err)
	checkImage(t, fsys)
}

func TestDetectImage(t *testing.T) {
	dir := t.TempDir()

	typ, err := vfs.DetectImage(dir)
	assert.OK(t, err)
	assert.Equal(t, typ, vfs.ImageDir)

	path := filepath.Join(dir, "rootfs.tar.zst")
	assert.OK(t, os.WriteFile(path, sampleTar(t, compress.Zstd), 0644))
	typ, err = vfs.DetectImage(path)
	assert.OK(t, err)
	assert.Equal(t, typ, vfs.ImageTar)

	path = filepath.Join(dir, "garbage")
	assert.OK(t, os.WriteFile(path, bytes.Repeat([]byte("garbage!"), 128), 0644))
	_, err = vfs.DetectImage(path)
	assert.NotEqual(t, err, nil)

	_, err = vfs.DetectImage(filepath.Join(dir, "nope"))
	assert.True(t, os.IsNotExist(err))
}
