package app

import (
	"context"
	"fmt"

	"github.com/specialistvlad/buildgrid/internal/config"
	"github.com/specialistvlad/buildgrid/internal/ctxlog"
	"github.com/specialistvlad/buildgrid/internal/watch"
	"github.com/zclconf/go-cty/cty"
)

// Watch runs the watch target's initial composition once, then re-runs its
// run composition whenever a matching file changes, until ctx is cancelled.
func (a *App) Watch(ctx context.Context, w *config.Watch) error {
	ctx, logger := ctxlog.With(ctx, "watch", w.Name)

	if err := a.healthCheckServer(ctx); err != nil {
		return err
	}
	defer a.closeHealthCheckServer(ctx)

	var outputs map[string]cty.Value
	if w.Initial != nil {
		logger.Info("Running initial build.", "composition", w.Initial.String())
		out, err := a.runComposition(ctx, w.Initial, nil)
		if err != nil {
			return fmt.Errorf("initial build for watch '%s' failed: %w", w.Name, err)
		}
		outputs = out
	}

	watcher, err := watch.New(ctx, watch.Options{
		Root:     a.root,
		Paths:    w.Paths,
		Ignore:   w.Ignore,
		Debounce: w.Debounce,
	})
	if err != nil {
		return fmt.Errorf("watch '%s': %w", w.Name, err)
	}

	logger.Info("👀 Watching for changes...", "root", a.root, "paths", w.Paths)
	// Runs never overlap, so outputs needs no lock.
	return watcher.Run(ctx, func(ctx context.Context) error {
		out, err := a.runComposition(ctx, w.Run, outputs)
		outputs = out
		return err
	})
}
