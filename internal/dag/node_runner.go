package dag

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/specialistvlad/buildgrid/internal/config"
	"github.com/specialistvlad/buildgrid/internal/ctxlog"
	"github.com/specialistvlad/buildgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// EvalContextFunc builds the evaluation context for an action body from the
// outputs published so far.
type EvalContextFunc func(outputs map[string]cty.Value) *hcl.EvalContext

// NewActionRunner returns an ActionFunc that decodes each action body into
// the registered handler's input struct and invokes the handler.
func NewActionRunner(reg *registry.Registry, evalCtx EvalContextFunc) ActionFunc {
	return func(ctx context.Context, task *config.Task, outputs map[string]cty.Value) (cty.Value, error) {
		logger := ctxlog.FromContext(ctx)
		if task == nil || task.Action == nil {
			return cty.NilVal, fmt.Errorf("node has no action to run")
		}

		action, ok := reg.ActionRegistry[task.Action.Type]
		if !ok {
			return cty.NilVal, fmt.Errorf("task '%s': unknown action type '%s'", task.Name, task.Action.Type)
		}

		logger.Debug("Decoding action arguments.", "type", task.Action.Type)
		input := action.NewInput()
		if diags := gohcl.DecodeBody(task.Action.Body, evalCtx(outputs), input); diags.HasErrors() {
			return cty.NilVal, fmt.Errorf("task '%s': %w", task.Name, diags)
		}
		logger.Debug("Action input.", "data", input)

		out, err := reg.Invoke(ctx, task.Action.Type, input)
		if err != nil {
			return cty.NilVal, err
		}
		logger.Debug("Action output.", "data", formatValueForLogs(out))
		return out, nil
	}
}

// formatValueForLogs renders a cty value as JSON for debug logs.
func formatValueForLogs(v cty.Value) string {
	if v == cty.NilVal || v.IsNull() {
		return "null"
	}
	if !v.IsWhollyKnown() {
		return "(unknown)"
	}
	b, err := ctyjson.SimpleJSONValue{Value: v}.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("[unloggable cty.Value: %v]", err)
	}
	return string(b)
}
