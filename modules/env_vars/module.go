package env_vars

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/specialistvlad/buildgrid/internal/buildctx"
	"github.com/specialistvlad/buildgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the env_vars action.
type Input struct {
	// Files are dotenv files read in order. Process variables take
	// precedence over file values.
	Files []string `hcl:"files,optional"`
	// Prefix keeps only variables whose name starts with it.
	Prefix string `hcl:"prefix,optional"`
	// Optional ignores missing dotenv files.
	Optional bool `hcl:"optional,optional"`
}

// Output defines the data structure returned by the action.
type Output struct {
	All map[string]string `cty:"all"`
}

// OnRunEnvVars is the handler for the 'env_vars' action.
func OnRunEnvVars(ctx context.Context, input *Input) (cty.Value, error) {
	envMap := make(map[string]string)

	for _, f := range input.Files {
		path := buildctx.Resolve(ctx, f)
		values, err := godotenv.Read(path)
		if err != nil {
			if input.Optional && os.IsNotExist(err) {
				continue
			}
			return cty.NilVal, fmt.Errorf("failed to read dotenv file '%s': %w", f, err)
		}
		for k, v := range values {
			envMap[k] = v
		}
	}

	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 {
			envMap[pair[0]] = pair[1]
		}
	}

	if input.Prefix != "" {
		for k := range envMap {
			if !strings.HasPrefix(k, input.Prefix) {
				delete(envMap, k)
			}
		}
	}

	return registry.OutputValue(Output{All: envMap})
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("env_vars", &registry.RegisteredAction{
		Description: "Reads dotenv files and the process environment.",
		NewInput:    func() any { return new(Input) },
		Fn:          OnRunEnvVars,
	})
}
