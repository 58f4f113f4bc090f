package bundle

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/specialistvlad/buildgrid/internal/buildctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty/gocty"
)

func write(t *testing.T, root, name, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestOnRunBundle(t *testing.T) {
	root := t.TempDir()
	write(t, root, "src/util.ts", `export const greet = (n: string) => "hello " + n;`)
	write(t, root, "src/extension.ts", `
import * as vscode from "vscode";
import { greet } from "./util";
export function activate() { vscode.window.showInformationMessage(greet(VERSION)); }
`)
	ctx := buildctx.WithRoot(context.Background(), root)

	val, err := OnRunBundle(ctx, &Input{
		EntryPoints: []string{"src/extension.ts"},
		Outdir:      "dist",
		External:    []string{"vscode"},
		Define:      map[string]string{"VERSION": `"2026.10.1815"`},
		Sourcemap:   true,
		Target:      "node18",
	})
	require.NoError(t, err)

	var files []string
	require.NoError(t, gocty.FromCtyValue(val.GetAttr("files"), &files))
	assert.Equal(t, []string{"dist/extension.js", "dist/extension.js.map"}, files)

	out, err := os.ReadFile(filepath.Join(root, "dist", "extension.js"))
	require.NoError(t, err)
	assert.Contains(t, string(out), `require("vscode")`)
	assert.Contains(t, string(out), "2026.10.1815")
	assert.Contains(t, string(out), "hello ")
}

func TestOnRunBundle_CompileError(t *testing.T) {
	root := t.TempDir()
	write(t, root, "src/broken.ts", "import { nope } from \"./missing\";\nconsole.log(nope);\n")
	ctx := buildctx.WithRoot(context.Background(), root)

	_, err := OnRunBundle(ctx, &Input{EntryPoints: []string{"src/broken.ts"}, Outfile: "dist/out.js"})
	assert.ErrorContains(t, err, "bundle failed with 1 errors")
	assert.NoFileExists(t, filepath.Join(root, "dist", "out.js"))
}

func TestBuildOptions(t *testing.T) {
	ctx := buildctx.WithRoot(context.Background(), "/work/js-debug")

	opts, err := buildOptions(ctx, &Input{
		EntryPoints: []string{"src/extension.ts"},
		Outfile:     "dist/extension.js",
		Platform:    "browser",
		Format:      "esm",
		Target:      "es2020",
		Minify:      true,
		Loader:      map[string]string{".svg": "text"},
	})
	require.NoError(t, err)
	assert.Equal(t, api.PlatformBrowser, opts.Platform)
	assert.Equal(t, api.FormatESModule, opts.Format)
	assert.Equal(t, api.ES2020, opts.Target)
	assert.True(t, opts.MinifySyntax)
	assert.Equal(t, api.LoaderText, opts.Loader[".svg"])
	assert.Equal(t, filepath.FromSlash("/work/js-debug/dist/extension.js"), opts.Outfile)

	testCases := []struct {
		name    string
		input   *Input
		wantErr string
	}{
		{"no entry points", &Input{Outdir: "dist"}, "at least one entry point"},
		{"no output", &Input{EntryPoints: []string{"a.ts"}}, "exactly one of outdir and outfile"},
		{"both outputs", &Input{EntryPoints: []string{"a.ts"}, Outdir: "d", Outfile: "f.js"}, "exactly one of outdir and outfile"},
		{"outfile with many entries", &Input{EntryPoints: []string{"a.ts", "b.ts"}, Outfile: "f.js"}, "single entry point"},
		{"platform", &Input{EntryPoints: []string{"a.ts"}, Outdir: "d", Platform: "deno"}, "unknown platform 'deno'"},
		{"format", &Input{EntryPoints: []string{"a.ts"}, Outdir: "d", Format: "amd"}, "unknown format 'amd'"},
		{"target", &Input{EntryPoints: []string{"a.ts"}, Outdir: "d", Target: "es3"}, "unknown target 'es3'"},
		{"loader", &Input{EntryPoints: []string{"a.ts"}, Outdir: "d", Loader: map[string]string{".x": "magic"}}, "unknown loader 'magic'"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := buildOptions(ctx, tc.input)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}
