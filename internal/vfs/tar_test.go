package vfs_test

import (
	"archive/tar"
	"bytes"
	"io/fs"
	"testing"

	"github.com/stealthrocket/fsreplay/internal/assert"
	"github.com/stealthrocket/fsreplay/internal/compress"
	"github.com/stealthrocket/fsreplay/internal/vfs"
)

type tarEntry struct {
	header tar.Header
	data   string
}

func makeTar(t *testing.T, format compress.Format, entries ...tarEntry) []byte {
	t.Helper()
	b := new(bytes.Buffer)
	z, err := compress.NewWriter(b, format)
	assert.OK(t, err)
	w := tar.NewWriter(z)
	for _, entry := range entries {
		header := entry.header
		header.Size = int64(len(entry.data))
		if header.Typeflag != tar.TypeReg {
			header.Size = 0
		}
		assert.OK(t, w.WriteHeader(&header))
		if header.Size > 0 {
			_, err := w.Write([]byte(entry.data))
			assert.OK(t, err)
		}
	}
	assert.OK(t, w.Close())
	assert.OK(t, z.Close())
	return b.Bytes()
}

func sampleTar(t *testing.T, format compress.Format) []byte {
	return makeTar(t, format,
		tarEntry{header: tar.Header{Name: "etc/", Typeflag: tar.TypeDir, Mode: 0755}},
		tarEntry{header: tar.Header{Name: "etc/hosts", Typeflag: tar.TypeReg, Mode: 0644}, data: "127.0.0.1 localhost\n"},
		tarEntry{header: tar.Header{Name: "etc/hosts.link", Typeflag: tar.TypeLink, Linkname: "etc/hosts"}},
		tarEntry{header: tar.Header{Name: "usr/bin/tool", Typeflag: tar.TypeReg, Mode: 0755}, data: "#!/bin/sh\n"},
		tarEntry{header: tar.Header{Name: "bin", Typeflag: tar.TypeSymlink, Linkname: "usr/bin"}},
		tarEntry{header: tar.Header{
			Name:       "data",
			Typeflag:   tar.TypeReg,
			Mode:       0600,
			Format:     tar.FormatPAX,
			PAXRecords: map[string]string{"SCHILY.xattr.user.origin": "test"},
		}, data: "payload"},
	)
}

func TestLoadTar(t *testing.T) {
	for _, format := range []compress.Format{compress.Uncompressed, compress.Gzip, compress.Zstd} {
		t.Run(format.String(), func(t *testing.T) {
			fsys, detected, err := vfs.LoadTar(bytes.NewReader(sampleTar(t, format)), 0)
			assert.OK(t, err)
			assert.Equal(t, detected, format)

			b, err := vfs.ReadFile(fsys, "etc/hosts.link")
			assert.OK(t, err)
			assert.Equal(t, string(b), "127.0.0.1 localhost\n")

			s, err := vfs.Stat(fsys, "etc/hosts")
			assert.OK(t, err)
			assert.Equal(t, s.Nlink, 2)

			// implicit parent directories are created
			s, err = vfs.Stat(fsys, "usr/bin")
			assert.OK(t, err)
			assert.True(t, s.Mode.IsDir())

			b, err = vfs.ReadFile(fsys, "bin/tool")
			assert.OK(t, err)
			assert.Equal(t, string(b), "#!/bin/sh\n")

			d, err := vfs.OpenRoot(fsys)
			assert.OK(t, err)
			defer d.Close()
			v, err := vfs.Getxattr(d, "data", "user.origin")
			assert.OK(t, err)
			assert.Equal(t, string(v), "test")
		})
	}
}

func TestLoadTarErrors(t *testing.T) {
	tests := []struct {
		scenario string
		entries  []tarEntry
	}{
		{
			scenario: "duplicate file",
			entries: []tarEntry{
				{header: tar.Header{Name: "a", Typeflag: tar.TypeReg}},
				{header: tar.Header{Name: "a", Typeflag: tar.TypeReg}},
			},
		},
		{
			scenario: "hard link to a missing file",
			entries: []tarEntry{
				{header: tar.Header{Name: "a", Typeflag: tar.TypeLink, Linkname: "b"}},
			},
		},
		{
			scenario: "file below a regular file",
			entries: []tarEntry{
				{header: tar.Header{Name: "a", Typeflag: tar.TypeReg}},
				{header: tar.Header{Name: "a/b", Typeflag: tar.TypeReg}},
			},
		},
	}

	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			_, _, err := vfs.LoadTar(bytes.NewReader(makeTar(t, compress.Uncompressed, test.entries...)), 0)
			assert.NotEqual(t, err, nil)
		})
	}
}

func TestLoadTarLimit(t *testing.T) {
	_, _, err := vfs.LoadTar(bytes.NewReader(sampleTar(t, compress.Uncompressed)), 10)
	assert.Error(t, err, vfs.ENOSPC)
}

func TestExportTar(t *testing.T) {
	fsys, format, err := vfs.LoadTar(bytes.NewReader(sampleTar(t, compress.Gzip)), 0)
	assert.OK(t, err)

	assert.OK(t, vfs.WriteFile(fsys, "new", []byte("created"), 0640))
	d, err := vfs.OpenRoot(fsys)
	assert.OK(t, err)
	assert.OK(t, d.Unlink("data"))
	assert.OK(t, d.Close())

	b := new(bytes.Buffer)
	assert.OK(t, vfs.ExportTar(b, fsys, format))

	reloaded, detected, err := vfs.LoadTar(b, 0)
	assert.OK(t, err)
	assert.Equal(t, detected, compress.Gzip)

	data, err := vfs.ReadFile(reloaded, "new")
	assert.OK(t, err)
	assert.Equal(t, string(data), "created")

	s, err := vfs.Stat(reloaded, "new")
	assert.OK(t, err)
	assert.Equal(t, s.Mode, fs.FileMode(0640))

	s, err = vfs.Stat(reloaded, "etc/hosts.link")
	assert.OK(t, err)
	assert.Equal(t, s.Nlink, 2)

	target, err := vfs.Readlink(reloaded, "bin")
	assert.OK(t, err)
	assert.Equal(t, target, "usr/bin")

	_, err = vfs.Stat(reloaded, "data")
	assert.Error(t, err, vfs.ENOENT)
}
