// Package copyfiles copies static assets into the build output.
package copyfiles

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/specialistvlad/buildgrid/internal/buildctx"
	"github.com/specialistvlad/buildgrid/internal/ctxlog"
	"github.com/specialistvlad/buildgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of a copy action.
type Input struct {
	// From is the source directory. Defaults to the project root.
	From     string   `hcl:"from,optional"`
	Patterns []string `hcl:"patterns"`
	To       string   `hcl:"to"`
}

// Output is published as the task result.
type Output struct {
	Files []string `cty:"files"`
}

// OnRunCopy copies every file matching the patterns, keeping its path
// relative to From.
func OnRunCopy(ctx context.Context, input *Input) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx)
	from := buildctx.Root(ctx)
	if input.From != "" {
		from = buildctx.Resolve(ctx, input.From)
	}
	to := buildctx.Resolve(ctx, input.To)
	fsys := os.DirFS(from)

	seen := make(map[string]bool)
	files := []string{}
	for _, pattern := range input.Patterns {
		matches, err := doublestar.Glob(fsys, filepath.ToSlash(pattern), doublestar.WithFilesOnly())
		if err != nil {
			return cty.NilVal, fmt.Errorf("invalid copy pattern '%s': %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)

	for _, rel := range files {
		src := filepath.Join(from, filepath.FromSlash(rel))
		dst := filepath.Join(to, filepath.FromSlash(rel))
		if err := copyFile(src, dst); err != nil {
			return cty.NilVal, err
		}
	}

	logger.Info("Copied files.", "count", len(files), "to", input.To)
	return registry.OutputValue(Output{Files: files})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open '%s': %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat '%s': %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for '%s': %w", dst, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create '%s': %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy '%s': %w", src, err)
	}
	return out.Close()
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("copy", &registry.RegisteredAction{
		Description: "Copies files matching glob patterns into a directory.",
		NewInput:    func() any { return new(Input) },
		Fn:          OnRunCopy,
	})
}
