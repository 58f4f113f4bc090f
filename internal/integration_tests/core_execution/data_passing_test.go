package core_execution

import (
	"testing"

	"github.com/specialistvlad/buildgrid/internal/testutil"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

// Test for: Complex data (objects, lists) passes correctly between tasks.
func TestCoreExecution_ComplexDataPassing(t *testing.T) {
	recorder := testutil.NewRecorderModule()
	pipeline := `
task "source" {
  action "record" {
    id = "source"
    value = {
      name    = "js-debug"
      enabled = true
      files   = ["extension.js", "bootloader.js"]
    }
  }
}

task "consumer" {
  action "record" {
    id    = "consumer"
    value = task["source"].value
  }
}

task "all" {
  run = series("source", "consumer")
}
`
	result := testutil.RunPipeline(t, map[string]string{"build.hcl": pipeline}, testutil.Options{Targets: []string{"all"}}, recorder)
	require.NoError(t, result.Err)

	want := cty.ObjectVal(map[string]cty.Value{
		"name":    cty.StringVal("js-debug"),
		"enabled": cty.True,
		"files":   cty.TupleVal([]cty.Value{cty.StringVal("extension.js"), cty.StringVal("bootloader.js")}),
	})
	got := recorder.Value("consumer")
	require.True(t, want.RawEquals(got), "consumer received %#v", got)
}

// Test for: build.* and var.* are visible to every action body.
func TestCoreExecution_BuildInfoAndVars(t *testing.T) {
	recorder := testutil.NewRecorderModule()
	t.Setenv("BGRID_TEST_VERSION", "1.2.3")
	pipeline := `
settings {
  name        = "js-debug"
  default     = "stamp"
  version_env = "BGRID_TEST_VERSION"
  vars = {
    channel = "nightly"
  }
}

task "stamp" {
  action "record" {
    id    = "stamp"
    value = format("%s@%s (%s)", build.name, build.version, upper(var.channel))
  }
}
`
	result := testutil.RunPipeline(t, map[string]string{"build.hcl": pipeline}, testutil.Options{}, recorder)
	require.NoError(t, result.Err)
	require.Equal(t, cty.StringVal("js-debug@1.2.3 (NIGHTLY)"), recorder.Value("stamp"))
	testutil.AssertTaskRan(t, result, "stamp")
}

// Test for: an invalid version override fails the run before any task starts.
func TestCoreExecution_InvalidVersionOverride(t *testing.T) {
	recorder := testutil.NewRecorderModule()
	t.Setenv("BGRID_TEST_VERSION", "not-a-version")
	pipeline := `
settings {
  version_env = "BGRID_TEST_VERSION"
}

task "stamp" {
  action "record" {
    id = "stamp"
  }
}
`
	result := testutil.RunPipeline(t, map[string]string{"build.hcl": pipeline}, testutil.Options{Targets: []string{"stamp"}}, recorder)
	require.ErrorContains(t, result.Err, "invalid BGRID_TEST_VERSION")
	require.Empty(t, recorder.Order())
}

// Test for: a task referenced twice in one expansion runs twice, as two nodes.
func TestCoreExecution_RepeatedTaskRunsPerOccurrence(t *testing.T) {
	recorder := testutil.NewRecorderModule()
	pipeline := `
task "step" {
  action "record" {
    id = "step"
  }
}

task "twice" {
  run = ["step", "step"]
}
`
	result := testutil.RunPipeline(t, map[string]string{"build.hcl": pipeline}, testutil.Options{Targets: []string{"twice"}}, recorder)
	require.NoError(t, result.Err)
	require.Equal(t, []string{"step", "step"}, recorder.Order())
	testutil.AssertTaskRan(t, result, "step")
	testutil.AssertTaskRan(t, result, "step#2")
}
