package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/specialistvlad/buildgrid/internal/buildctx"
	"github.com/specialistvlad/buildgrid/internal/config"
	"github.com/specialistvlad/buildgrid/internal/ctxlog"
	"github.com/specialistvlad/buildgrid/internal/dag"
	"github.com/specialistvlad/buildgrid/internal/hcl_adapter"
	"github.com/specialistvlad/buildgrid/internal/version"
	"github.com/zclconf/go-cty/cty"
)

// ErrNoTarget is returned when no target was requested and the pipeline has
// no default.
var ErrNoTarget = errors.New("no target given and the pipeline defines no default")

// Run executes the requested targets, or lists or plans them, according to
// the configuration.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger.With("run_id", uuid.NewString()))
	ctx = buildctx.WithRoot(ctx, a.root)
	a.logger.Debug("App.Run method started.")

	if a.config.List {
		return a.List()
	}

	targets := a.config.Targets
	if len(targets) == 0 && a.model.Settings.Default != "" {
		targets = []string{a.model.Settings.Default}
	}
	if len(targets) == 0 {
		return ErrNoTarget
	}

	if len(targets) == 1 {
		if w, ok := a.model.Watches[targets[0]]; ok {
			if a.config.DryRun {
				graph, err := dag.BuildComposition(ctx, a.model, w.Run)
				if err != nil {
					return fmt.Errorf("failed to build execution graph: %w", err)
				}
				return a.printPlan(graph)
			}
			return a.Watch(ctx, w)
		}
	}

	graph, err := dag.Build(ctx, a.model, targets, a.config.Series)
	if err != nil {
		return fmt.Errorf("failed to build execution graph: %w", err)
	}
	if a.config.DryRun {
		return a.printPlan(graph)
	}

	_, err = a.execute(ctx, graph, strings.Join(targets, ", "), nil)
	return err
}

// runComposition builds and executes a single composition. It is used by the
// watch loop, which carries outputs from one run to the next.
func (a *App) runComposition(ctx context.Context, comp *config.Composition, seed map[string]cty.Value) (map[string]cty.Value, error) {
	graph, err := dag.BuildComposition(ctx, a.model, comp)
	if err != nil {
		return seed, fmt.Errorf("failed to build execution graph: %w", err)
	}
	return a.execute(ctx, graph, comp.String(), seed)
}

func (a *App) execute(ctx context.Context, graph *dag.Graph, label string, seed map[string]cty.Value) (map[string]cty.Value, error) {
	logger := ctxlog.FromContext(ctx)

	info, err := version.Resolve(a.model.Settings.VersionEnv, a.model.Settings.VersionTimezone, a.now())
	if err != nil {
		return seed, err
	}
	logger.Debug("Build version resolved.", "version", info.Version, "source", info.Source)

	if graph.Len() == 0 {
		logger.Warn("No nodes found in graph, execution not required.", "target", label)
		return seed, nil
	}

	evalFactory := hcl_adapter.NewEvalContextFactory(hcl_adapter.BuildInfo{
		Name:    a.model.Settings.Name,
		Version: info.Version,
		Root:    a.root,
	}, a.model.Settings.Vars)
	runner := dag.NewActionRunner(a.registry, evalFactory.EvalContext)
	exec := dag.NewExecutor(graph, a.config.WorkerCount, runner, seed)

	logger.Info("🚀 Starting concurrent execution...", "target", label, "version", info.Version, "nodes", graph.Len())
	start := a.now()
	runErr := exec.Run(ctx)
	a.printSummary(exec.Results(), a.now().Sub(start))

	if runErr != nil {
		return exec.Outputs(), runErr
	}
	logger.Info("🏁 Execution finished.", "target", label)
	return exec.Outputs(), nil
}
