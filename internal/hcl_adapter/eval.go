package hcl_adapter

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// BuildInfo is exposed to action bodies as the build object.
type BuildInfo struct {
	Name    string
	Version string
	Root    string
}

// EvalContextFactory creates evaluation contexts for action bodies. The
// static part (build info, vars, functions) is fixed per run; task outputs
// change as tasks complete.
type EvalContextFactory struct {
	build cty.Value
	vars  cty.Value
}

// NewEvalContextFactory prepares the static variables for a run.
func NewEvalContextFactory(info BuildInfo, vars map[string]string) *EvalContextFactory {
	varVals := make(map[string]cty.Value, len(vars))
	for k, v := range vars {
		varVals[k] = cty.StringVal(v)
	}
	return &EvalContextFactory{
		build: cty.ObjectVal(map[string]cty.Value{
			"name":    cty.StringVal(info.Name),
			"version": cty.StringVal(info.Version),
			"root":    cty.StringVal(info.Root),
		}),
		vars: cty.ObjectVal(varVals),
	}
}

// EvalContext returns a context exposing build.*, var.* and task["name"]
// for every completed task output.
func (f *EvalContextFactory) EvalContext(outputs map[string]cty.Value) *hcl.EvalContext {
	taskVals := make(map[string]cty.Value, len(outputs))
	for name, out := range outputs {
		if out == cty.NilVal {
			out = cty.NullVal(cty.DynamicPseudoType)
		}
		taskVals[name] = out
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"build": f.build,
			"var":   f.vars,
			"task":  cty.ObjectVal(taskVals),
		},
		Functions: commonFunctions(),
	}
}
