package app

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/specialistvlad/buildgrid/internal/dag"
	"github.com/specialistvlad/buildgrid/internal/hcl_adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const examplePipeline = "../../examples/js-debug"

func exampleApp(t *testing.T, cfg Config) (*App, *bytes.Buffer) {
	t.Helper()
	cfg.PipelinePath = examplePipeline
	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = 4
	}
	c, err := NewConfig(cfg)
	require.NoError(t, err)

	var out bytes.Buffer
	a, err := NewApp(&out, c, hcl_adapter.NewLoader())
	require.NoError(t, err)
	return a, &out
}

func TestNewApp_ExamplePipeline(t *testing.T) {
	a, _ := exampleApp(t, Config{LogLevel: "error"})

	assert.Equal(t, "js-debug", a.Model().Settings.Name)
	assert.Contains(t, a.Registry().Types(), "nls_download")
	assert.Len(t, a.Registry().Types(), 14)
	assert.DirExists(t, a.Root())
}

func TestRun_ExampleList(t *testing.T) {
	a, out := exampleApp(t, Config{List: true, LogLevel: "error"})

	require.NoError(t, a.Run(context.Background()))
	assert.Regexp(t, `\*\s+build\s+Compile and bundle the extension\.`, out.String())
	assert.Regexp(t, `dev\s+Rebuild on source changes`, out.String())
}

func TestRun_ExampleDryRun(t *testing.T) {
	a, out := exampleApp(t, Config{DryRun: true, Targets: []string{"release"}, LogLevel: "error"})

	require.NoError(t, a.Run(context.Background()))
	assert.Contains(t, out.String(), "Execution plan (11 steps):")
	assert.Regexp(t, `(?m)publish\s+publish\s+after archive$`, out.String())
}

func TestExampleRelease_OrdersConflictingWriters(t *testing.T) {
	a, _ := exampleApp(t, Config{LogLevel: "error"})
	graph, err := dag.Build(context.Background(), a.Model(), []string{"release"}, false)
	require.NoError(t, err)

	reaches := func(from, to string) bool {
		seen := map[string]bool{}
		queue := []string{from}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			next, err := graph.Dependents(id)
			require.NoError(t, err)
			for _, n := range next {
				if n == to {
					return true
				}
				if !seen[n] {
					seen[n] = true
					queue = append(queue, n)
				}
			}
		}
		return false
	}

	// Each pair writes into or reads from the same output directory.
	for _, pair := range [][2]string{
		{"clean", "nls:download"},
		{"bundle", "nls:download"},
		{"nls:download", "package"},
		{"package", "archive"},
		{"archive", "publish"},
	} {
		assert.True(t, reaches(pair[0], pair[1]), "%s should run before %s", pair[0], pair[1])
		assert.False(t, reaches(pair[1], pair[0]), "%s should not run before %s", pair[1], pair[0])
	}
}

func TestNewConfig(t *testing.T) {
	_, err := NewConfig(Config{WorkerCount: 1})
	assert.ErrorContains(t, err, "PipelinePath is a required configuration field")

	cfg, err := NewConfig(Config{PipelinePath: ".", WorkerCount: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.WorkerCount)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("warn", "json", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "task", "compile")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"task":"compile"`)

	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
}

func TestHealthHandler(t *testing.T) {
	a := &App{logger: newLogger("error", "text", &bytes.Buffer{}), now: time.Now}
	rec := httptest.NewRecorder()

	a.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK\n", rec.Body.String())
}

func TestHealthMux_Routes(t *testing.T) {
	a := &App{logger: newLogger("error", "text", &bytes.Buffer{}), now: time.Now}
	srv := httptest.NewServer(a.healthMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
