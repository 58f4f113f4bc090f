package hcl_adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/buildgrid/internal/config"
	"github.com/specialistvlad/buildgrid/internal/ctxlog"
	"github.com/specialistvlad/buildgrid/internal/fsutil"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL pipeline loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load orchestrates the entire HCL loading process. Every discovered file may
// contain any top-level block; the results are merged into one model.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	model := config.NewModel()
	if len(paths) > 0 {
		model.Dir = pipelineDir(paths[0])
	}

	hclFiles, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(hclFiles) == 0 {
		return nil, fmt.Errorf("no .hcl pipeline files found in %v", paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))

	parser := hclparse.NewParser()
	evalCtx := &hcl.EvalContext{Functions: loadFunctions()}
	settingsSeen := false

	for _, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, s := range root.Settings {
			if settingsSeen {
				return nil, fmt.Errorf("%s: duplicate settings block", s.DeclRange)
			}
			settingsSeen = true
			model.Settings = translateSettings(s)
		}
		for _, tb := range root.Tasks {
			if _, exists := model.Tasks[tb.Name]; exists {
				return nil, fmt.Errorf("%s: duplicate task %q", tb.DeclRange, tb.Name)
			}
			task, err := l.translateTask(ctx, tb, evalCtx)
			if err != nil {
				return nil, err
			}
			model.Tasks[task.Name] = task
		}
		for _, wb := range root.Watches {
			if _, exists := model.Watches[wb.Name]; exists {
				return nil, fmt.Errorf("%s: duplicate watch %q", wb.DeclRange, wb.Name)
			}
			w, err := l.translateWatch(ctx, wb, evalCtx)
			if err != nil {
				return nil, err
			}
			model.Watches[w.Name] = w
		}
	}

	if err := validateModel(model); err != nil {
		return nil, err
	}

	logger.Debug("HCL loading complete.", "tasks", len(model.Tasks), "watches", len(model.Watches))
	return model, nil
}

// validateModel checks cross-block references once every file is merged.
func validateModel(m *config.Model) error {
	for name := range m.Watches {
		if _, clash := m.Tasks[name]; clash {
			return fmt.Errorf("name %q is used by both a task and a watch", name)
		}
	}
	check := func(owner string, comp *config.Composition) error {
		for _, ref := range comp.Refs() {
			if _, ok := m.Tasks[ref]; !ok {
				return fmt.Errorf("%s references unknown task %q", owner, ref)
			}
		}
		return nil
	}
	for name, task := range m.Tasks {
		if err := check(fmt.Sprintf("task %q", name), task.Run); err != nil {
			return err
		}
	}
	for name, w := range m.Watches {
		if err := check(fmt.Sprintf("watch %q", name), w.Run); err != nil {
			return err
		}
		if err := check(fmt.Sprintf("watch %q", name), w.Initial); err != nil {
			return err
		}
	}
	if d := m.Settings.Default; d != "" {
		_, isTask := m.Tasks[d]
		_, isWatch := m.Watches[d]
		if !isTask && !isWatch {
			return fmt.Errorf("default target %q is not defined", d)
		}
	}
	return nil
}

// pipelineDir returns the directory a pipeline path lives in.
func pipelineDir(path string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return path
	}
	return filepath.Dir(path)
}

// findAllHCLFiles walks all given paths and returns a flat list of all .hcl files found.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})

	add := func(p string) {
		if _, wasSeen := seen[p]; !wasSeen {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if info.IsDir() {
			found, err := fsutil.FindFilesByExtension(path, ".hcl")
			if err != nil {
				return nil, fmt.Errorf("error searching %s: %w", path, err)
			}
			for _, p := range found {
				add(p)
			}
		} else if filepath.Ext(path) == ".hcl" {
			add(path)
		}
	}
	return allFiles, nil
}
