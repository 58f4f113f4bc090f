package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/specialistvlad/buildgrid/internal/buildctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestOnRunArchive(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"dist/extension.js":      "module.exports = {}",
		"dist/extension.js.map":  "{}",
		"dist/src/bootloader.js": "void 0",
		"dist/package.json":      `{"name":"js-debug"}`,
	})
	ctx := buildctx.WithRoot(context.Background(), root)
	input := &Input{Dir: "dist", Out: "dist/js-debug.zip", Exclude: []string{"**/*.map"}}

	val, err := OnRunArchive(ctx, input)
	require.NoError(t, err)
	assert.True(t, val.GetAttr("files").RawEquals(cty.NumberIntVal(3)))

	zr, err := zip.OpenReader(filepath.Join(root, "dist", "js-debug.zip"))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"extension.js", "package.json", "src/bootloader.js"}, names)

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "module.exports = {}", string(content))
	require.NoError(t, zr.Close())

	first, err := os.ReadFile(filepath.Join(root, "dist", "js-debug.zip"))
	require.NoError(t, err)

	// Rebuilding the same tree later yields the same bytes.
	later := filepath.Join(root, "dist", "extension.js")
	require.NoError(t, os.Chtimes(later, modTime.AddDate(40, 0, 0), modTime.AddDate(40, 0, 0)))
	_, err = OnRunArchive(ctx, input)
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(root, "dist", "js-debug.zip"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestOnRunArchive_Errors(t *testing.T) {
	ctx := buildctx.WithRoot(context.Background(), t.TempDir())

	_, err := OnRunArchive(ctx, &Input{Dir: "dist", Out: "out.zip", Exclude: []string{"[a-"}})
	assert.ErrorContains(t, err, "invalid exclude pattern '[a-'")

	_, err = OnRunArchive(ctx, &Input{Dir: "missing", Out: "out.zip"})
	assert.ErrorContains(t, err, "failed to list")
}
