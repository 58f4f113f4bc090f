package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/specialistvlad/buildgrid/internal/config"
	"github.com/specialistvlad/buildgrid/internal/ctxlog"
)

// ValidateModel checks that every action task names a registered action and
// that its body matches the shape of the handler's input struct. Values are
// not evaluated here since they may depend on earlier task outputs.
func (r *Registry) ValidateModel(ctx context.Context, model *config.Model) error {
	logger := ctxlog.FromContext(ctx)
	var errs []string

	names := make([]string, 0, len(model.Tasks))
	for name := range model.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		task := model.Tasks[name]
		if !task.IsAction() {
			continue
		}
		action, ok := r.ActionRegistry[task.Action.Type]
		if !ok {
			errs = append(errs, fmt.Sprintf("task '%s': unknown action type '%s'", name, task.Action.Type))
			continue
		}
		schema, _ := gohcl.ImpliedBodySchema(action.NewInput())
		if _, diags := task.Action.Body.Content(schema); diags.HasErrors() {
			errs = append(errs, fmt.Sprintf("task '%s': %s", name, diags.Error()))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("pipeline validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	logger.Debug("Pipeline validated against registered actions.", "tasks", len(names))
	return nil
}
