// Package bundle produces single-file JavaScript artifacts with esbuild.
package bundle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/specialistvlad/buildgrid/internal/buildctx"
	"github.com/specialistvlad/buildgrid/internal/ctxlog"
	"github.com/specialistvlad/buildgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of a bundle action.
type Input struct {
	EntryPoints []string `hcl:"entry_points"`
	Outdir      string   `hcl:"outdir,optional"`
	Outfile     string   `hcl:"outfile,optional"`
	// Platform is node (default), browser or neutral.
	Platform string `hcl:"platform,optional"`
	// Format is cjs (default), esm or iife.
	Format string `hcl:"format,optional"`
	// Target is an ECMAScript version such as es2022, or an engine such as
	// node18.
	Target    string            `hcl:"target,optional"`
	External  []string          `hcl:"external,optional"`
	Minify    bool              `hcl:"minify,optional"`
	Sourcemap bool              `hcl:"sourcemap,optional"`
	Define    map[string]string `hcl:"define,optional"`
	// Loader maps file extensions such as ".svg" to esbuild loaders.
	Loader map[string]string `hcl:"loader,optional"`
}

// Output is published as the task result.
type Output struct {
	Files []string `cty:"files"`
}

// OnRunBundle builds the entry points and writes the output files.
func OnRunBundle(ctx context.Context, input *Input) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx)
	root := buildctx.Root(ctx)

	opts, err := buildOptions(ctx, input)
	if err != nil {
		return cty.NilVal, err
	}

	result := api.Build(opts)
	for _, w := range api.FormatMessages(result.Warnings, api.FormatMessagesOptions{Kind: api.WarningMessage}) {
		logger.Warn(strings.TrimSpace(w))
	}
	if len(result.Errors) > 0 {
		msg := strings.Join(api.FormatMessages(result.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage}), "")
		return cty.NilVal, fmt.Errorf("bundle failed with %d errors:\n%s", len(result.Errors), strings.TrimSpace(msg))
	}

	files := make([]string, 0, len(result.OutputFiles))
	for _, f := range result.OutputFiles {
		if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
			return cty.NilVal, fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(f.Path, f.Contents, 0o644); err != nil {
			return cty.NilVal, fmt.Errorf("failed to write '%s': %w", f.Path, err)
		}
		rel, err := filepath.Rel(root, f.Path)
		if err != nil {
			rel = f.Path
		}
		files = append(files, filepath.ToSlash(rel))
	}
	sort.Strings(files)

	logger.Info("Bundled entry points.", "entries", len(input.EntryPoints), "files", len(files))
	return registry.OutputValue(Output{Files: files})
}

func buildOptions(ctx context.Context, input *Input) (api.BuildOptions, error) {
	root := buildctx.Root(ctx)
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return api.BuildOptions{}, err
	}

	if len(input.EntryPoints) == 0 {
		return api.BuildOptions{}, fmt.Errorf("bundle needs at least one entry point")
	}
	if (input.Outdir == "") == (input.Outfile == "") {
		return api.BuildOptions{}, fmt.Errorf("exactly one of outdir and outfile must be set")
	}
	if input.Outfile != "" && len(input.EntryPoints) > 1 {
		return api.BuildOptions{}, fmt.Errorf("outfile requires a single entry point, got %d", len(input.EntryPoints))
	}

	opts := api.BuildOptions{
		EntryPoints:       input.EntryPoints,
		AbsWorkingDir:     absRoot,
		Bundle:            true,
		Write:             false,
		External:          input.External,
		Define:            input.Define,
		MinifyWhitespace:  input.Minify,
		MinifyIdentifiers: input.Minify,
		MinifySyntax:      input.Minify,
		KeepNames:         true,
		TreeShaking:       api.TreeShakingTrue,
		LogLevel:          api.LogLevelSilent,
	}
	if input.Outdir != "" {
		opts.Outdir = filepath.Join(absRoot, input.Outdir)
		if filepath.IsAbs(input.Outdir) {
			opts.Outdir = input.Outdir
		}
	} else {
		opts.Outfile = filepath.Join(absRoot, input.Outfile)
		if filepath.IsAbs(input.Outfile) {
			opts.Outfile = input.Outfile
		}
	}
	if input.Sourcemap {
		opts.Sourcemap = api.SourceMapLinked
	}

	switch strings.ToLower(input.Platform) {
	case "", "node":
		opts.Platform = api.PlatformNode
	case "browser":
		opts.Platform = api.PlatformBrowser
	case "neutral":
		opts.Platform = api.PlatformNeutral
	default:
		return api.BuildOptions{}, fmt.Errorf("unknown platform '%s'", input.Platform)
	}

	switch strings.ToLower(input.Format) {
	case "", "cjs":
		opts.Format = api.FormatCommonJS
	case "esm":
		opts.Format = api.FormatESModule
	case "iife":
		opts.Format = api.FormatIIFE
	default:
		return api.BuildOptions{}, fmt.Errorf("unknown format '%s'", input.Format)
	}

	if err := applyTarget(&opts, input.Target); err != nil {
		return api.BuildOptions{}, err
	}

	if len(input.Loader) > 0 {
		opts.Loader = make(map[string]api.Loader, len(input.Loader))
		for ext, name := range input.Loader {
			l, ok := loaders[name]
			if !ok {
				return api.BuildOptions{}, fmt.Errorf("unknown loader '%s' for '%s'", name, ext)
			}
			opts.Loader[ext] = l
		}
	}
	return opts, nil
}

var targets = map[string]api.Target{
	"esnext": api.ESNext,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"es2024": api.ES2024,
}

var loaders = map[string]api.Loader{
	"js":      api.LoaderJS,
	"jsx":     api.LoaderJSX,
	"ts":      api.LoaderTS,
	"tsx":     api.LoaderTSX,
	"json":    api.LoaderJSON,
	"text":    api.LoaderText,
	"base64":  api.LoaderBase64,
	"dataurl": api.LoaderDataURL,
	"file":    api.LoaderFile,
	"binary":  api.LoaderBinary,
	"copy":    api.LoaderCopy,
	"empty":   api.LoaderEmpty,
	"css":     api.LoaderCSS,
}

// applyTarget sets either the language target or an engine version.
func applyTarget(opts *api.BuildOptions, target string) error {
	target = strings.ToLower(target)
	if target == "" {
		opts.Target = api.ES2022
		return nil
	}
	if t, ok := targets[target]; ok {
		opts.Target = t
		return nil
	}
	if v, ok := strings.CutPrefix(target, "node"); ok && v != "" {
		opts.Engines = []api.Engine{{Name: api.EngineNode, Version: v}}
		return nil
	}
	return fmt.Errorf("unknown target '%s'", target)
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("bundle", &registry.RegisteredAction{
		Description: "Bundles entry points into single-file artifacts with esbuild.",
		NewInput:    func() any { return new(Input) },
		Fn:          OnRunBundle,
	})
}
