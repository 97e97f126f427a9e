// Package archive packages workspace files into a single zip archive.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/example/promptpack/api-go/internal/config"
	"github.com/example/promptpack/api-go/internal/model"
	"github.com/example/promptpack/api-go/internal/workspace"
)

const ContentType = "application/zip"

// Entries carry a fixed timestamp so identical inputs produce identical bytes.
var entryTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Result describes a fully written, closed archive.
type Result struct {
	Path    string
	Name    string
	Size    int64
	Entries []string
}

// Builder streams files into <dir>/<Name>.
type Builder struct {
	Name  string
	Level int
}

func NewBuilder(name string, level int) *Builder {
	if name == "" {
		name = config.DefaultArchiveName
	}
	return &Builder{Name: name, Level: level}
}

// Build archives files (workspace-relative names) from dir. It returns only
// after the archive is flushed and closed; a caller may read Result.Path as
// soon as Build returns without error. On failure no archive is left behind.
func (b *Builder) Build(ctx context.Context, dir string, files []string) (res Result, err error) {
	entries, err := b.entries(files)
	if err != nil {
		return Result{}, err
	}

	path := filepath.Join(dir, b.Name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return Result{}, model.NewJobError(model.ErrArchive, "create archive", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	zw := zip.NewWriter(f)
	level := b.Level
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	for _, name := range entries {
		if err := ctx.Err(); err != nil {
			zw.Close()
			f.Close()
			return Result{}, model.NewJobError(model.ErrArchive, "archive cancelled", err)
		}
		if err := addFile(zw, dir, name); err != nil {
			zw.Close()
			f.Close()
			return Result{}, err
		}
	}

	if err := zw.Close(); err != nil {
		f.Close()
		return Result{}, model.NewJobError(model.ErrArchive, "finalize archive", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return Result{}, model.NewJobError(model.ErrArchive, "flush archive", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return Result{}, model.NewJobError(model.ErrArchive, "stat archive", err)
	}
	if err := f.Close(); err != nil {
		return Result{}, model.NewJobError(model.ErrArchive, "close archive", err)
	}

	return Result{Path: path, Name: b.Name, Size: info.Size(), Entries: entries}, nil
}

// entries validates and sorts the logical names.
func (b *Builder) entries(files []string) ([]string, error) {
	seen := make(map[string]bool, len(files))
	out := make([]string, 0, len(files))
	for _, name := range files {
		clean, err := workspace.CleanRel(name)
		if err != nil {
			return nil, model.NewJobError(model.ErrArchive, "invalid entry name", err)
		}
		if clean == b.Name {
			return nil, model.NewJobError(model.ErrArchive, "entry collides with archive name", nil)
		}
		if seen[clean] {
			return nil, model.NewJobError(model.ErrArchive, "duplicate entry", fmt.Errorf("entry %q", clean))
		}
		seen[clean] = true
		out = append(out, clean)
	}
	sort.Strings(out)
	return out, nil
}

func addFile(zw *zip.Writer, dir, name string) error {
	src, err := os.Open(filepath.Join(dir, filepath.FromSlash(name)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.NewJobError(model.ErrArchive, "missing entry", err)
		}
		return model.NewJobError(model.ErrArchive, "open entry", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return model.NewJobError(model.ErrArchive, "stat entry", err)
	}
	if !info.Mode().IsRegular() {
		return model.NewJobError(model.ErrArchive, "entry is not a regular file", nil)
	}

	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: entryTime,
	}
	hdr.SetMode(0o644)
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return model.NewJobError(model.ErrArchive, "write entry header", err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return model.NewJobError(model.ErrArchive, "write entry", err)
	}
	return nil
}
