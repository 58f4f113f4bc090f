// Package clean removes build outputs.
package clean

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/specialistvlad/buildgrid/internal/buildctx"
	"github.com/specialistvlad/buildgrid/internal/ctxlog"
	"github.com/specialistvlad/buildgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of a clean action.
type Input struct {
	// Paths are doublestar patterns relative to the project root.
	Paths []string `hcl:"paths"`
}

// Output is published as the task result.
type Output struct {
	Removed []string `cty:"removed"`
}

// OnRunClean deletes every file and directory matching the patterns. Missing
// paths are not an error.
func OnRunClean(ctx context.Context, input *Input) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx)
	root := buildctx.Root(ctx)
	fsys := os.DirFS(root)

	var matches []string
	for _, p := range input.Paths {
		pattern, err := rootRelative(p)
		if err != nil {
			return cty.NilVal, err
		}
		found, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return cty.NilVal, fmt.Errorf("invalid clean pattern '%s': %w", p, err)
		}
		matches = append(matches, found...)
	}
	sort.Strings(matches)

	removed := []string{}
	for _, m := range matches {
		if coveredBy(removed, m) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, filepath.FromSlash(m))); err != nil {
			return cty.NilVal, fmt.Errorf("failed to remove '%s': %w", m, err)
		}
		logger.Debug("Removed path.", "path", m)
		removed = append(removed, m)
	}

	logger.Info("Cleaned build outputs.", "removed", len(removed))
	return registry.OutputValue(Output{Removed: removed})
}

// rootRelative rejects patterns that could escape the project root.
func rootRelative(p string) (string, error) {
	clean := path.Clean(filepath.ToSlash(p))
	if filepath.IsAbs(p) || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("clean pattern '%s' must be a path inside the project root", p)
	}
	return clean, nil
}

// coveredBy reports whether p lies under a directory already removed.
func coveredBy(removed []string, p string) bool {
	for _, r := range removed {
		if p == r || strings.HasPrefix(p, r+"/") {
			return true
		}
	}
	return false
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("clean", &registry.RegisteredAction{
		Description: "Removes files and directories matching glob patterns.",
		NewInput:    func() any { return new(Input) },
		Fn:          OnRunClean,
	})
}
