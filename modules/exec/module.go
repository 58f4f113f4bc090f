// Package exec runs external tools such as the TypeScript compiler, linters
// and formatters as pipeline actions.
package exec

import (
	"context"
	"errors"
	"io"
	"sort"

	"github.com/specialistvlad/buildgrid/internal/buildctx"
	"github.com/specialistvlad/buildgrid/internal/ctxlog"
	"github.com/specialistvlad/buildgrid/internal/proc"
	"github.com/specialistvlad/buildgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Stdout and Stderr receive process output. When nil, output lines are
	// logged.
	Stdout io.Writer
	Stderr io.Writer
}

// Input defines the arguments of an exec action.
type Input struct {
	Command  string            `hcl:"command"`
	Args     []string          `hcl:"args,optional"`
	Dir      string            `hcl:"dir,optional"`
	Env      map[string]string `hcl:"env,optional"`
	LocalBin bool              `hcl:"local_bin,optional"`
	// IgnoreExitCode reports a non-zero exit in the output instead of
	// failing the task.
	IgnoreExitCode bool `hcl:"ignore_exit_code,optional"`
}

// Output is published as the task result.
type Output struct {
	ExitCode int `cty:"exit_code"`
}

// Run spawns the command and waits for it to exit.
func (m *Module) Run(ctx context.Context, input *Input) (cty.Value, error) {
	root := buildctx.Root(ctx)
	name := input.Command
	if input.LocalBin {
		name = proc.LocalBin(root, name)
	}
	dir := root
	if input.Dir != "" {
		dir = buildctx.Resolve(ctx, input.Dir)
	}

	cmd := proc.Command{
		Name:   name,
		Args:   input.Args,
		Dir:    dir,
		Env:    envList(input.Env),
		Stdout: m.Stdout,
		Stderr: m.Stderr,
	}
	ctxlog.FromContext(ctx).Info("Running command.", "command", cmd.String())

	if err := proc.Run(ctx, cmd); err != nil {
		var exitErr *proc.ExitError
		if input.IgnoreExitCode && errors.As(err, &exitErr) {
			ctxlog.FromContext(ctx).Warn("Command failed, continuing.", "command", cmd.String(), "exit_code", exitErr.Code)
			return registry.OutputValue(Output{ExitCode: exitErr.Code})
		}
		return cty.NilVal, err
	}
	return registry.OutputValue(Output{ExitCode: 0})
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("exec", &registry.RegisteredAction{
		Description: "Runs an external command.",
		NewInput:    func() any { return new(Input) },
		Fn:          m.Run,
	})
}
