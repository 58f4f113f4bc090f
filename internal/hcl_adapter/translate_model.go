// This file contains the logic for translating decoded HCL blocks into the
// format-agnostic configuration model defined in the config package.

package hcl_adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/buildgrid/internal/config"
	"github.com/specialistvlad/buildgrid/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

// defaultDebounce is applied to watch blocks that do not set one.
const defaultDebounce = 200 * time.Millisecond

// translateTask converts the HCL task schema into the agnostic model.
func (l *Loader) translateTask(ctx context.Context, b *taskBlock, evalCtx *hcl.EvalContext) (*config.Task, error) {
	logger := ctxlog.FromContext(ctx).With("task", b.Name)
	logger.Debug("Translating HCL task to internal config model.")

	task := &config.Task{
		Name:        b.Name,
		Description: b.Description,
		DeclRange:   b.DeclRange,
	}

	hasRun := isExprDefined(ctx, b.Run, "run")
	switch {
	case len(b.Actions) > 1:
		return nil, fmt.Errorf("%s: task %q declares %d action blocks, expected one", b.DeclRange, b.Name, len(b.Actions))
	case len(b.Actions) == 1 && hasRun:
		return nil, fmt.Errorf("%s: task %q has both an action block and a run attribute", b.DeclRange, b.Name)
	case len(b.Actions) == 0 && !hasRun:
		return nil, fmt.Errorf("%s: task %q needs either an action block or a run attribute", b.DeclRange, b.Name)
	}

	if hasRun {
		comp, err := evalComposition(b.Run, evalCtx)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", b.Name, err)
		}
		task.Run = comp
		logger.Debug("Task is a composition.", "run", comp.String())
		return task, nil
	}

	task.Action = &config.Action{Type: b.Actions[0].Type, Body: b.Actions[0].Body}
	logger.Debug("Task is an action.", "type", task.Action.Type)
	return task, nil
}

// translateWatch converts the HCL watch schema into the agnostic model.
func (l *Loader) translateWatch(ctx context.Context, b *watchBlock, evalCtx *hcl.EvalContext) (*config.Watch, error) {
	w := &config.Watch{
		Name:        b.Name,
		Description: b.Description,
		Paths:       b.Paths,
		Ignore:      b.Ignore,
		Debounce:    defaultDebounce,
	}
	if len(b.Paths) == 0 {
		return nil, fmt.Errorf("%s: watch %q has no paths", b.DeclRange, b.Name)
	}
	if b.Debounce != "" {
		d, err := time.ParseDuration(b.Debounce)
		if err != nil {
			return nil, fmt.Errorf("%s: watch %q: invalid debounce %q: %w", b.DeclRange, b.Name, b.Debounce, err)
		}
		w.Debounce = d
	}

	run, err := evalComposition(b.Run, evalCtx)
	if err != nil {
		return nil, fmt.Errorf("watch %q: %w", b.Name, err)
	}
	w.Run = run

	if isExprDefined(ctx, b.Initial, "initial") {
		initial, err := evalComposition(b.Initial, evalCtx)
		if err != nil {
			return nil, fmt.Errorf("watch %q: initial: %w", b.Name, err)
		}
		w.Initial = initial
	}
	return w, nil
}

func translateSettings(b *settingsBlock) config.Settings {
	return config.Settings{
		Name:            b.Name,
		Default:         b.Default,
		Root:            b.Root,
		VersionEnv:      b.VersionEnv,
		VersionTimezone: b.VersionTimezone,
		Vars:            b.Vars,
	}
}

// evalComposition evaluates a run expression and converts the result.
func evalComposition(expr hcl.Expression, evalCtx *hcl.EvalContext) (*config.Composition, error) {
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return nil, diags
	}
	comp, err := compositionFromValue(val)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid run value: %w", expr.Range(), err)
	}
	return comp, nil
}

// compositionFromValue converts the value of a run expression. Strings are
// task references, tuples and lists are series shorthand, and objects come
// from series() or parallel().
func compositionFromValue(val cty.Value) (*config.Composition, error) {
	if val.IsNull() {
		return nil, fmt.Errorf("value is null")
	}
	if !val.IsWhollyKnown() {
		return nil, fmt.Errorf("value is not known at load time")
	}

	ty := val.Type()
	switch {
	case ty == cty.String:
		name := val.AsString()
		if name == "" {
			return nil, fmt.Errorf("empty task name")
		}
		return config.Ref(name), nil

	case ty.IsTupleType() || ty.IsListType():
		items, err := compositionItems(val)
		if err != nil {
			return nil, err
		}
		return config.Series(items...), nil

	case ty.IsObjectType():
		if !ty.HasAttribute(compositionKindAttr) || !ty.HasAttribute(compositionItemsAttr) {
			return nil, fmt.Errorf("objects must be created with series() or parallel()")
		}
		items, err := compositionItems(val.GetAttr(compositionItemsAttr))
		if err != nil {
			return nil, err
		}
		switch kind := val.GetAttr(compositionKindAttr).AsString(); kind {
		case "series":
			return config.Series(items...), nil
		case "parallel":
			return config.Parallel(items...), nil
		default:
			return nil, fmt.Errorf("unknown composition kind %q", kind)
		}
	}
	return nil, fmt.Errorf("unsupported type %s", ty.FriendlyName())
}

func compositionItems(val cty.Value) ([]*config.Composition, error) {
	var items []*config.Composition
	for it := val.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		item, err := compositionFromValue(elem)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
