package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/specialistvlad/buildgrid/internal/config"
	"github.com/specialistvlad/buildgrid/internal/ctxlog"
	"github.com/specialistvlad/buildgrid/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	registry *registry.Registry
	model    *config.Model
	// root is the absolute project root all action paths resolve against.
	root string
	now  func() time.Time

	httpServer *http.Server
}

// NewApp is the constructor for the main application. It loads the pipeline,
// registers the modules (the core set when none are given) and validates
// every action body against its handler.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, cfg.PipelinePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline: %w", err)
	}
	logger.Debug("Pipeline loaded and translated into unified model.")

	if len(modules) == 0 {
		modules = coreModules(outW)
	}
	reg := registry.New(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules), "actions", reg.Types())

	if err := reg.ValidateModel(ctx, model); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(filepath.Join(model.Dir, model.Settings.Root))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	logger.Debug("Project root resolved.", "root", root)

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		registry: reg,
		model:    model,
		root:     root,
		now:      time.Now,
	}, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Model returns the loaded pipeline model.
func (a *App) Model() *config.Model {
	return a.model
}

// Root returns the absolute project root.
func (a *App) Root() string {
	return a.root
}

// SetClock replaces the time source used for the date-based version.
func (a *App) SetClock(now func() time.Time) {
	a.now = now
}
