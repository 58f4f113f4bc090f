// Package archive zips a directory into a reproducible archive.
package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/zip"
	"github.com/specialistvlad/buildgrid/internal/buildctx"
	"github.com/specialistvlad/buildgrid/internal/ctxlog"
	"github.com/specialistvlad/buildgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// modTime is stamped on every entry so identical inputs give identical
// archives.
var modTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of an archive action.
type Input struct {
	Dir string `hcl:"dir"`
	Out string `hcl:"out"`
	// Exclude holds doublestar patterns relative to Dir.
	Exclude []string `hcl:"exclude,optional"`
}

// Output is published as the task result.
type Output struct {
	Path  string `cty:"path"`
	Files int    `cty:"files"`
}

// OnRunArchive writes every file under Dir, in sorted order, to Out.
func OnRunArchive(ctx context.Context, input *Input) (cty.Value, error) {
	for _, p := range input.Exclude {
		if !doublestar.ValidatePattern(p) {
			return cty.NilVal, fmt.Errorf("invalid exclude pattern '%s'", p)
		}
	}
	dir := buildctx.Resolve(ctx, input.Dir)
	out := buildctx.Resolve(ctx, input.Out)

	absOut, err := filepath.Abs(out)
	if err != nil {
		return cty.NilVal, err
	}
	files, err := collect(dir, absOut, input.Exclude)
	if err != nil {
		return cty.NilVal, err
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return cty.NilVal, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := writeZip(ctx, out, dir, files); err != nil {
		_ = os.Remove(out)
		return cty.NilVal, err
	}

	ctxlog.FromContext(ctx).Info("Wrote archive.", "path", input.Out, "files", len(files))
	return registry.OutputValue(Output{Path: input.Out, Files: len(files)})
}

// collect returns slash-separated file paths relative to dir.
func collect(dir, skip string, exclude []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if abs, _ := filepath.Abs(p); abs == skip {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		for _, pattern := range exclude {
			if ok, _ := doublestar.Match(pattern, rel); ok {
				return nil
			}
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list '%s': %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

func writeZip(ctx context.Context, out, dir string, files []string) error {
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addFile(zw, dir, rel); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return f.Close()
}

func addFile(zw *zip.Writer, dir, rel string) error {
	src, err := os.Open(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("failed to open '%s': %w", rel, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat '%s': %w", rel, err)
	}
	header := &zip.FileHeader{Name: rel, Method: zip.Deflate, Modified: modTime}
	header.SetMode(info.Mode().Perm())

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add '%s': %w", rel, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("failed to compress '%s': %w", rel, err)
	}
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("archive", &registry.RegisteredAction{
		Description: "Zips a directory deterministically.",
		NewInput:    func() any { return new(Input) },
		Fn:          OnRunArchive,
	})
}
