// Package generate runs generator scripts that compute derived manifest
// data, such as contributed commands and configuration, and writes the
// merged result as a JSON fragment.
//
// A generator is a TypeScript or JavaScript module. Its default export (or
// module.exports) is either an object or a function returning one. Scripts
// are bundled with esbuild and evaluated in an embedded JavaScript runtime,
// so no Node.js installation is needed.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/specialistvlad/buildgrid/internal/buildctx"
	"github.com/specialistvlad/buildgrid/internal/ctxlog"
	"github.com/specialistvlad/buildgrid/internal/httpx"
	mf "github.com/specialistvlad/buildgrid/internal/manifest"
	"github.com/specialistvlad/buildgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
	"golang.org/x/sync/errgroup"
)

// globalName is the variable the bundled generator is assigned to.
const globalName = "__generator"

const defaultTimeout = 30 * time.Second

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of a generate action.
type Input struct {
	Scripts []string `hcl:"scripts"`
	Out     string   `hcl:"out"`
	// Args is passed to generator functions as their only argument.
	Args    map[string]string `hcl:"args,optional"`
	Timeout string            `hcl:"timeout,optional"`
}

// Output is published as the task result.
type Output struct {
	Path string   `cty:"path"`
	Keys []string `cty:"keys"`
}

// OnRunGenerate evaluates all scripts concurrently and merges their results
// in script order.
func OnRunGenerate(ctx context.Context, input *Input) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx)
	timeout, err := httpx.ParseTimeout(input.Timeout, defaultTimeout)
	if err != nil {
		return cty.NilVal, err
	}

	results := make([]map[string]any, len(input.Scripts))
	g, gctx := errgroup.WithContext(ctx)
	for i, script := range input.Scripts {
		g.Go(func() error {
			code, err := bundleScript(buildctx.Root(gctx), script)
			if err != nil {
				return err
			}
			out, err := evaluate(gctx, code, input.Args, timeout)
			if err != nil {
				return fmt.Errorf("generator '%s': %w", script, err)
			}
			logger.Debug("Generator finished.", "script", script, "keys", len(out))
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return cty.NilVal, err
	}

	merged := map[string]any{}
	for _, r := range results {
		merged = mf.DeepMerge(merged, r)
	}

	if err := mf.Write(buildctx.Resolve(ctx, input.Out), mf.Manifest(merged)); err != nil {
		return cty.NilVal, err
	}
	keys := mf.Manifest(merged).Keys()
	logger.Info("Generated manifest fragment.", "path", input.Out, "scripts", len(input.Scripts))
	return registry.OutputValue(Output{Path: input.Out, Keys: keys})
}

// bundleScript compiles a generator and its imports into one script that
// assigns the module to globalName.
func bundleScript(root, script string) (string, error) {
	result := api.Build(api.BuildOptions{
		EntryPoints:   []string{script},
		AbsWorkingDir: root,
		Bundle:        true,
		Write:         false,
		Format:        api.FormatIIFE,
		GlobalName:    globalName,
		Platform:      api.PlatformNeutral,
		Target:        api.ES2017,
		LogLevel:      api.LogLevelSilent,
		Supported: map[string]bool{
			"async-await":     false,
			"async-generator": false,
			"class-field":     false,
		},
	})
	if len(result.Errors) > 0 {
		msg := strings.Join(api.FormatMessages(result.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage}), "")
		return "", fmt.Errorf("failed to bundle generator '%s':\n%s", script, strings.TrimSpace(msg))
	}
	if len(result.OutputFiles) == 0 {
		return "", fmt.Errorf("bundling generator '%s' produced no output", script)
	}
	return string(result.OutputFiles[0].Contents), nil
}

// evaluate runs bundled generator code and returns its exported object.
func evaluate(ctx context.Context, code string, args map[string]string, timeout time.Duration) (map[string]any, error) {
	vm := goja.New()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	if _, err := vm.RunString(code); err != nil {
		return nil, jsError(err)
	}

	mod := vm.Get(globalName)
	if mod == nil || goja.IsUndefined(mod) || goja.IsNull(mod) {
		return nil, fmt.Errorf("script did not define a module")
	}
	exported := mod
	if obj := mod.ToObject(vm); obj != nil {
		if def := obj.Get("default"); def != nil && !goja.IsUndefined(def) {
			exported = def
		}
	}

	if fn, ok := goja.AssertFunction(exported); ok {
		var argVal goja.Value = vm.NewObject()
		if args != nil {
			argVal = vm.ToValue(args)
		}
		res, err := fn(goja.Undefined(), argVal)
		if err != nil {
			return nil, jsError(err)
		}
		exported = res
	}

	out, ok := exported.Export().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("generator must export an object, got %v", exported.ExportType())
	}
	return out, nil
}

func jsError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return fmt.Errorf("generator interrupted: %w", cause)
		}
		return fmt.Errorf("generator interrupted: %v", interrupted.Value())
	}
	return err
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("generate", &registry.RegisteredAction{
		Description: "Evaluates generator scripts and writes a manifest fragment.",
		NewInput:    func() any { return new(Input) },
		Fn:          OnRunGenerate,
	})
}
