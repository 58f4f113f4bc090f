// Package buildctx carries the project root through context.Context so that
// actions can resolve the relative paths written in a pipeline file.
package buildctx

import (
	"context"
	"path/filepath"
)

type key struct{}

var rootKey = key{}

// WithRoot returns a new context carrying the absolute project root.
func WithRoot(ctx context.Context, root string) context.Context {
	return context.WithValue(ctx, rootKey, root)
}

// Root returns the project root stored in ctx, or "." when none was set.
func Root(ctx context.Context) string {
	if root, ok := ctx.Value(rootKey).(string); ok && root != "" {
		return root
	}
	return "."
}

// Resolve joins a relative path onto the project root. Absolute paths and
// empty strings are returned unchanged.
func Resolve(ctx context.Context, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(Root(ctx), p)
}

// ResolveAll applies Resolve to every element of paths.
func ResolveAll(ctx context.Context, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = Resolve(ctx, p)
	}
	return out
}
