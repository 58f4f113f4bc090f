// Package vsix produces the distributable extension package by running the
// packaging tool.
package vsix

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/specialistvlad/buildgrid/internal/buildctx"
	"github.com/specialistvlad/buildgrid/internal/ctxlog"
	"github.com/specialistvlad/buildgrid/internal/manifest"
	"github.com/specialistvlad/buildgrid/internal/proc"
	"github.com/specialistvlad/buildgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

const defaultCommand = "vsce"

// Module implements the registry.Module interface for this package.
type Module struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Input defines the arguments of a package action.
type Input struct {
	// Dir holds the package.json to package. Defaults to the project root.
	Dir     string   `hcl:"dir,optional"`
	Command string   `hcl:"command,optional"`
	Args    []string `hcl:"args,optional"`
	// OutDir receives the package. Defaults to Dir.
	OutDir string `hcl:"out_dir,optional"`
}

// Output is published as the task result.
type Output struct {
	Path   string `cty:"path"`
	SHA256 string `cty:"sha256"`
	Size   int64  `cty:"size"`
}

// Run invokes the packaging tool in Dir and collects the
// <name>-<version>.vsix it produces.
func (m *Module) Run(ctx context.Context, input *Input) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx)
	root := buildctx.Root(ctx)

	dir := root
	if input.Dir != "" {
		dir = buildctx.Resolve(ctx, input.Dir)
	}
	mf, err := manifest.Read(filepath.Join(dir, "package.json"))
	if err != nil {
		return cty.NilVal, err
	}
	name, _ := mf["name"].(string)
	version, _ := mf["version"].(string)
	if name == "" || version == "" {
		return cty.NilVal, fmt.Errorf("package.json in '%s' must define name and version", dir)
	}
	fileName := fmt.Sprintf("%s-%s.vsix", name, version)

	command := input.Command
	if command == "" {
		command = defaultCommand
	}
	args := input.Args
	if len(args) == 0 {
		args = []string{"package"}
	}

	cmd := proc.Command{
		Name:   proc.LocalBin(root, command),
		Args:   args,
		Dir:    dir,
		Stdout: m.Stdout,
		Stderr: m.Stderr,
	}
	logger.Info("Packaging extension.", "command", cmd.String(), "file", fileName)
	if err := proc.Run(ctx, cmd); err != nil {
		return cty.NilVal, err
	}

	produced := filepath.Join(dir, fileName)
	if _, err := os.Stat(produced); err != nil {
		return cty.NilVal, fmt.Errorf("packaging tool did not produce '%s': %w", fileName, err)
	}

	final := produced
	if input.OutDir != "" {
		outDir := buildctx.Resolve(ctx, input.OutDir)
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return cty.NilVal, fmt.Errorf("failed to create '%s': %w", input.OutDir, err)
		}
		final = filepath.Join(outDir, fileName)
		if final != produced {
			if err := os.Rename(produced, final); err != nil {
				return cty.NilVal, fmt.Errorf("failed to move package to '%s': %w", input.OutDir, err)
			}
		}
	}

	sum, size, err := digest(final)
	if err != nil {
		return cty.NilVal, err
	}
	rel, err := filepath.Rel(root, final)
	if err != nil {
		rel = final
	}
	rel = filepath.ToSlash(rel)

	logger.Info("Packaged extension.", "path", rel, "size", size, "sha256", sum)
	return registry.OutputValue(Output{Path: rel, SHA256: sum, Size: size})
}

func digest(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open package: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("failed to hash package: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("package", &registry.RegisteredAction{
		Description: "Runs the packaging tool and collects the .vsix file.",
		NewInput:    func() any { return new(Input) },
		Fn:          m.Run,
	})
}
