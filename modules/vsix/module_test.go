package vsix

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/specialistvlad/buildgrid/internal/buildctx"
	"github.com/specialistvlad/buildgrid/internal/proc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func setup(t *testing.T) (string, context.Context) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dist"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "dist", "package.json"),
		[]byte(`{"name": "js-debug", "version": "2026.10.1815"}`), 0o644))
	return root, buildctx.WithRoot(context.Background(), root)
}

func TestRun(t *testing.T) {
	root, ctx := setup(t)
	m := &Module{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}

	val, err := m.Run(ctx, &Input{
		Dir:     "dist",
		Command: "sh",
		Args:    []string{"-c", "printf vsix-content > js-debug-2026.10.1815.vsix"},
		OutDir:  "out",
	})
	require.NoError(t, err)

	sum := sha256.Sum256([]byte("vsix-content"))
	assert.Equal(t, cty.StringVal("out/js-debug-2026.10.1815.vsix"), val.GetAttr("path"))
	assert.Equal(t, cty.StringVal(hex.EncodeToString(sum[:])), val.GetAttr("sha256"))
	assert.True(t, val.GetAttr("size").RawEquals(cty.NumberIntVal(12)))

	assert.FileExists(t, filepath.Join(root, "out", "js-debug-2026.10.1815.vsix"))
	assert.NoFileExists(t, filepath.Join(root, "dist", "js-debug-2026.10.1815.vsix"))
}

func TestRun_LocalTool(t *testing.T) {
	root, ctx := setup(t)
	bin := filepath.Join(root, "node_modules", ".bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "vsce"),
		[]byte("#!/bin/sh\n[ \"$1\" = package ] || exit 3\nprintf x > js-debug-2026.10.1815.vsix\n"), 0o755))

	val, err := (&Module{}).Run(ctx, &Input{Dir: "dist"})
	require.NoError(t, err)
	assert.Equal(t, cty.StringVal("dist/js-debug-2026.10.1815.vsix"), val.GetAttr("path"))
}

func TestRun_Errors(t *testing.T) {
	t.Run("tool fails", func(t *testing.T) {
		_, ctx := setup(t)
		m := &Module{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
		_, err := m.Run(ctx, &Input{Dir: "dist", Command: "sh", Args: []string{"-c", "exit 4"}})
		var exitErr *proc.ExitError
		require.True(t, errors.As(err, &exitErr))
		assert.Equal(t, 4, exitErr.Code)
	})

	t.Run("no package produced", func(t *testing.T) {
		_, ctx := setup(t)
		m := &Module{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
		_, err := m.Run(ctx, &Input{Dir: "dist", Command: "sh", Args: []string{"-c", "printf x > other.vsix"}})
		assert.ErrorContains(t, err, "packaging tool did not produce 'js-debug-2026.10.1815.vsix'")
	})

	t.Run("manifest without version", func(t *testing.T) {
		root, ctx := setup(t)
		require.NoError(t, os.WriteFile(filepath.Join(root, "dist", "package.json"), []byte(`{"name": "js-debug"}`), 0o644))
		_, err := (&Module{}).Run(ctx, &Input{Dir: "dist", Command: "true"})
		assert.ErrorContains(t, err, "must define name and version")
	})
}
