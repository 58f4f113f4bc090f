package hcl_adapter

import (
	"os"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Attribute names of the object produced by series() and parallel().
const (
	compositionKindAttr  = "kind"
	compositionItemsAttr = "items"
)

// compositionFunc builds a cty function that wraps its arguments into an
// object tagged with kind. Arguments may be task names or the results of
// nested series()/parallel() calls.
func compositionFunc(kind string) function.Function {
	return function.New(&function.Spec{
		Description: "Arranges tasks to run as a " + kind + ".",
		VarParam: &function.Parameter{
			Name: "tasks",
			Type: cty.DynamicPseudoType,
		},
		Type: func(args []cty.Value) (cty.Type, error) {
			types := make([]cty.Type, len(args))
			for i, arg := range args {
				types[i] = arg.Type()
			}
			return cty.Object(map[string]cty.Type{
				compositionKindAttr:  cty.String,
				compositionItemsAttr: cty.Tuple(types),
			}), nil
		},
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			items := cty.EmptyTupleVal
			if len(args) > 0 {
				items = cty.TupleVal(args)
			}
			return cty.ObjectVal(map[string]cty.Value{
				compositionKindAttr:  cty.StringVal(kind),
				compositionItemsAttr: items,
			}), nil
		},
	})
}

// EnvFunc reads a process environment variable, returning the optional
// second argument (or "") when it is unset.
var EnvFunc = function.New(&function.Spec{
	Description: "Reads an environment variable.",
	Params: []function.Parameter{
		{Name: "name", Type: cty.String},
	},
	VarParam: &function.Parameter{
		Name: "default",
		Type: cty.String,
	},
	Type: func(args []cty.Value) (cty.Type, error) {
		if len(args) > 2 {
			return cty.NilType, function.NewArgErrorf(2, "env takes a name and at most one default, got %d arguments", len(args))
		}
		return cty.String, nil
	},
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		if v, ok := os.LookupEnv(args[0].AsString()); ok {
			return cty.StringVal(v), nil
		}
		if len(args) > 1 {
			return args[1], nil
		}
		return cty.StringVal(""), nil
	},
})

// loadFunctions are available while the pipeline itself is being decoded.
func loadFunctions() map[string]function.Function {
	funcs := commonFunctions()
	funcs["series"] = compositionFunc("series")
	funcs["parallel"] = compositionFunc("parallel")
	return funcs
}

// commonFunctions are available in every evaluation context.
func commonFunctions() map[string]function.Function {
	return map[string]function.Function{
		"env":        EnvFunc,
		"coalesce":   stdlib.CoalesceFunc,
		"concat":     stdlib.ConcatFunc,
		"format":     stdlib.FormatFunc,
		"join":       stdlib.JoinFunc,
		"jsonencode": stdlib.JSONEncodeFunc,
		"lower":      stdlib.LowerFunc,
		"merge":      stdlib.MergeFunc,
		"replace":    stdlib.ReplaceFunc,
		"split":      stdlib.SplitFunc,
		"trimspace":  stdlib.TrimSpaceFunc,
		"upper":      stdlib.UpperFunc,
	}
}
