package dag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/specialistvlad/buildgrid/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

// recorder is an ActionFunc that records the order of executed tasks.
type recorder struct {
	mu    sync.Mutex
	order []string
	fail  map[string]error
	delay map[string]time.Duration
}

func (r *recorder) run(ctx context.Context, task *config.Task, outputs map[string]cty.Value) (cty.Value, error) {
	if d := r.delay[task.Name]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return cty.NilVal, ctx.Err()
		}
	}
	r.mu.Lock()
	r.order = append(r.order, task.Name)
	r.mu.Unlock()
	if err := r.fail[task.Name]; err != nil {
		return cty.NilVal, err
	}
	return cty.ObjectVal(map[string]cty.Value{"name": cty.StringVal(task.Name)}), nil
}

func buildGraph(t *testing.T, model *config.Model, targets ...string) *Graph {
	t.Helper()
	g, err := Build(context.Background(), model, targets, false)
	require.NoError(t, err)
	return g
}

func resultsByID(results []Result) map[string]Result {
	out := make(map[string]Result, len(results))
	for _, r := range results {
		out[r.ID] = r
	}
	return out
}

func TestExecutor_RunsInDependencyOrder(t *testing.T) {
	ref := config.Ref
	model := testModel(
		[]string{"clean", "compile", "nls", "bundle"},
		map[string]*config.Composition{
			"build": config.Series(ref("clean"), config.Parallel(ref("compile"), ref("nls")), ref("bundle")),
		},
	)
	rec := &recorder{}
	exec := NewExecutor(buildGraph(t, model, "build"), 4, rec.run, nil)

	require.NoError(t, exec.Run(context.Background()))

	require.Len(t, rec.order, 4)
	assert.Equal(t, "clean", rec.order[0])
	assert.ElementsMatch(t, []string{"compile", "nls"}, rec.order[1:3])
	assert.Equal(t, "bundle", rec.order[3])

	for _, r := range exec.Results() {
		assert.Equal(t, Done, r.State, r.ID)
		assert.NoError(t, r.Err)
	}
	outputs := exec.Outputs()
	assert.Equal(t, cty.StringVal("bundle"), outputs["bundle"].GetAttr("name"))
}

func TestExecutor_PassesOutputsDownstream(t *testing.T) {
	ref := config.Ref
	model := testModel(
		[]string{"version", "manifest"},
		map[string]*config.Composition{"all": config.Series(ref("version"), ref("manifest"))},
	)

	var seen cty.Value
	run := func(ctx context.Context, task *config.Task, outputs map[string]cty.Value) (cty.Value, error) {
		if task.Name == "version" {
			return cty.ObjectVal(map[string]cty.Value{"value": cty.StringVal("2026.10.1815")}), nil
		}
		seen = outputs["version"]
		return cty.NilVal, nil
	}

	exec := NewExecutor(buildGraph(t, model, "all"), 2, run, nil)
	require.NoError(t, exec.Run(context.Background()))
	assert.Equal(t, cty.StringVal("2026.10.1815"), seen.GetAttr("value"))
}

func TestExecutor_FailureSkipsDependents(t *testing.T) {
	ref := config.Ref
	model := testModel(
		[]string{"compile", "bundle", "package"},
		map[string]*config.Composition{"dist": config.Series(ref("compile"), ref("bundle"), ref("package"))},
	)
	boom := errors.New("tsc exited with 2")
	rec := &recorder{fail: map[string]error{"compile": boom}}
	exec := NewExecutor(buildGraph(t, model, "dist"), 2, rec.run, nil)

	err := exec.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "execution failed for compile")
	assert.NotContains(t, err.Error(), "bundle")

	assert.Equal(t, []string{"compile"}, rec.order)
	results := resultsByID(exec.Results())
	assert.Equal(t, Failed, results["compile"].State)
	assert.Equal(t, Skipped, results["bundle"].State)
	assert.Equal(t, Skipped, results["package"].State)
	assert.ErrorIs(t, results["package"].Err, ErrSkipped)
}

func TestExecutor_FailureCancelsRunningSiblings(t *testing.T) {
	model := testModel([]string{"fail", "slow"}, nil)
	boom := errors.New("lint failed")
	rec := &recorder{
		fail:  map[string]error{"fail": boom},
		delay: map[string]time.Duration{"slow": 10 * time.Second},
	}
	exec := NewExecutor(buildGraph(t, model, "fail", "slow"), 2, rec.run, nil)

	start := time.Now()
	err := exec.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Less(t, time.Since(start), 5*time.Second)

	results := resultsByID(exec.Results())
	assert.Equal(t, Failed, results["fail"].State)
	assert.Equal(t, Skipped, results["slow"].State)
}

func TestExecutor_ParentCancellation(t *testing.T) {
	model := testModel([]string{"slow"}, nil)
	rec := &recorder{delay: map[string]time.Duration{"slow": 10 * time.Second}}
	exec := NewExecutor(buildGraph(t, model, "slow"), 1, rec.run, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := exec.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "execution cancelled")
}

func TestExecutor_PanicBecomesError(t *testing.T) {
	model := testModel([]string{"bad"}, nil)
	run := func(context.Context, *config.Task, map[string]cty.Value) (cty.Value, error) {
		panic("handler bug")
	}
	exec := NewExecutor(buildGraph(t, model, "bad"), 1, run, nil)

	err := exec.Run(context.Background())
	assert.ErrorContains(t, err, "panic in task 'bad': handler bug")
}

func TestExecutor_NoNodeRunsTwice(t *testing.T) {
	var names []string
	comps := make([]*config.Composition, 0, 20)
	for i := range 20 {
		name := fmt.Sprintf("t%02d", i)
		names = append(names, name)
		comps = append(comps, config.Ref(name))
	}
	model := testModel(names, map[string]*config.Composition{
		"all": config.Parallel(config.Series(comps[:10]...), config.Series(comps[10:]...)),
	})

	var calls atomic.Int32
	run := func(context.Context, *config.Task, map[string]cty.Value) (cty.Value, error) {
		calls.Add(1)
		return cty.NilVal, nil
	}
	exec := NewExecutor(buildGraph(t, model, "all"), 3, run, nil)
	require.NoError(t, exec.Run(context.Background()))
	assert.Equal(t, int32(20), calls.Load())

	// A second run on the same graph starts from a clean state.
	require.NoError(t, exec.Run(context.Background()))
	assert.Equal(t, int32(40), calls.Load())
}

func TestExecutor_SeedOutputs(t *testing.T) {
	model := testModel([]string{"reload"}, nil)
	var seen cty.Value
	run := func(_ context.Context, _ *config.Task, outputs map[string]cty.Value) (cty.Value, error) {
		seen = outputs["bundle"]
		return cty.NilVal, nil
	}
	seed := map[string]cty.Value{"bundle": cty.StringVal("dist/extension.js")}
	exec := NewExecutor(buildGraph(t, model, "reload"), 1, run, seed)
	require.NoError(t, exec.Run(context.Background()))
	assert.Equal(t, cty.StringVal("dist/extension.js"), seen)
}
