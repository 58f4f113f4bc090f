package cli_behavior

import (
	"testing"

	"github.com/specialistvlad/buildgrid/internal/app"
	"github.com/specialistvlad/buildgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pipeline = `
settings {
  name    = "js-debug"
  default = "build"
}

task "clean" {
  description = "Remove build output."
  action "noop" {}
}

task "compile" {
  action "noop" {}
}

task "bundle" {
  action "noop" {}
}

task "build" {
  run = series("clean", parallel("compile", "bundle"))
}

watch "dev" {
  paths = ["src/**/*.ts"]
  run   = "compile"
}
`

func TestCLIBehavior_List(t *testing.T) {
	result := testutil.RunPipeline(t, map[string]string{"build.hcl": pipeline}, testutil.Options{List: true}, &testutil.NoOpModule{})
	require.NoError(t, result.Err)

	assert.Contains(t, result.Output, "Tasks:")
	assert.Regexp(t, `\*\s+build\s+series\("clean", parallel\("compile", "bundle"\)\)`, result.Output)
	assert.Regexp(t, `clean\s+Remove build output\.`, result.Output)
	assert.Regexp(t, `compile\s+action noop`, result.Output)
	assert.Contains(t, result.Output, "Watch targets:")
	assert.Regexp(t, `dev\s+runs "compile" on change`, result.Output)
	assert.NotContains(t, result.Output, "Starting task")
}

func TestCLIBehavior_DryRun(t *testing.T) {
	result := testutil.RunPipeline(t, map[string]string{"build.hcl": pipeline}, testutil.Options{DryRun: true}, &testutil.NoOpModule{})
	require.NoError(t, result.Err)

	assert.Contains(t, result.Output, "Execution plan (3 steps):")
	assert.Regexp(t, `1\.\s+clean\s+noop`, result.Output)
	assert.Regexp(t, `2\.\s+compile\s+noop\s+after clean`, result.Output)
	assert.Regexp(t, `3\.\s+bundle\s+noop\s+after clean`, result.Output)
	assert.NotContains(t, result.Output, "Starting task")
}

func TestCLIBehavior_NoTarget(t *testing.T) {
	result := testutil.RunPipeline(t, map[string]string{"build.hcl": `
task "compile" {
  action "noop" {}
}
`}, testutil.Options{}, &testutil.NoOpModule{})
	require.ErrorIs(t, result.Err, app.ErrNoTarget)
}

func TestCLIBehavior_WatchMixedWithTasks(t *testing.T) {
	result := testutil.RunPipeline(t, map[string]string{"build.hcl": pipeline}, testutil.Options{Targets: []string{"dev", "clean"}}, &testutil.NoOpModule{})
	require.ErrorContains(t, result.Err, "'dev' is a watch target and must be run on its own")
}
