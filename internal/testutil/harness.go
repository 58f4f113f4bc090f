// Package testutil provides the shared harness used by the integration
// tests: it writes pipeline files to a temporary project, builds an App with
// mock modules and runs it.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/specialistvlad/buildgrid/internal/app"
	"github.com/specialistvlad/buildgrid/internal/hcl_adapter"
	"github.com/specialistvlad/buildgrid/internal/registry"
	"github.com/stretchr/testify/require"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	Output string
	// Dir is the temporary project directory.
	Dir string
	Err error
	App *app.App
}

// Options selects what the harness runs. Zero values mean the defaults.
type Options struct {
	Targets []string
	Series  bool
	DryRun  bool
	List    bool
	Workers int
	// Dir is the project directory. A fresh temporary one is used when empty.
	Dir string
}

// RunPipeline runs the pipeline described by files with a background
// context.
func RunPipeline(t *testing.T, files map[string]string, opts Options, modules ...registry.Module) *HarnessResult {
	t.Helper()
	return RunPipelineWithContext(context.Background(), t, files, opts, modules...)
}

// RunPipelineWithContext writes files (relative path -> content) into a
// temporary project and runs it. Startup errors are returned in Err like run
// errors.
func RunPipelineWithContext(ctx context.Context, t *testing.T, files map[string]string, opts Options, modules ...registry.Module) *HarnessResult {
	t.Helper()

	dir := opts.Dir
	if dir == "" {
		dir = t.TempDir()
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	workers := opts.Workers
	if workers == 0 {
		workers = 4
	}
	cfg, err := app.NewConfig(app.Config{
		PipelinePath: dir,
		Targets:      opts.Targets,
		Series:       opts.Series,
		DryRun:       opts.DryRun,
		List:         opts.List,
		LogLevel:     "debug",
		LogFormat:    "text",
		WorkerCount:  workers,
	})
	require.NoError(t, err)

	out := &SafeBuffer{}
	result := &HarnessResult{Dir: dir}

	testApp, err := app.NewApp(out, cfg, hcl_adapter.NewLoader(), modules...)
	if err == nil {
		result.App = testApp
		err = testApp.Run(ctx)
	}
	result.Err = err
	result.Output = out.String()

	if os.Getenv("BGRID_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), result.Output)
	}
	return result
}
