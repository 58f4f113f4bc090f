package print

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/specialistvlad/buildgrid/internal/ctxlog"
	"github.com/specialistvlad/buildgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Out receives the printed lines. Defaults to os.Stdout.
	Out io.Writer
}

// Input defines the arguments for the print action.
type Input struct {
	Message string            `hcl:"message,optional"`
	Values  map[string]string `hcl:"values,optional"`
}

// Run prints the message followed by the values in key order.
func (m *Module) Run(ctx context.Context, input *Input) (cty.Value, error) {
	ctxlog.FromContext(ctx).Debug("Printing input")
	out := m.Out
	if out == nil {
		out = os.Stdout
	}

	if input.Message != "" {
		fmt.Fprintln(out, input.Message)
	}

	// Sort keys for consistent output
	keys := make([]string, 0, len(input.Values))
	for k := range input.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(out, "      %s = %q\n", k, input.Values[k])
	}

	return cty.NilVal, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("print", &registry.RegisteredAction{
		Description: "Prints a message and key/value pairs.",
		NewInput:    func() any { return new(Input) },
		Fn:          m.Run,
	})
}
