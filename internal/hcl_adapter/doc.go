// Package hcl_adapter loads build pipelines written in HCL into the
// format-agnostic config.Model, and builds the evaluation contexts used to
// decode action bodies at execution time.
//
// A pipeline file contains an optional settings block, any number of task
// blocks and any number of watch blocks:
//
//	settings {
//	  name        = "js-debug"
//	  default     = "compile"
//	  version_env = "JS_DEBUG_VERSION"
//	}
//
//	task "compile:ts" {
//	  action "exec" {
//	    command = "tsc"
//	    args    = ["-p", "tsconfig.json"]
//	  }
//	}
//
//	task "compile" {
//	  run = series("clean", parallel("compile:ts", "compile:static"))
//	}
//
// The run attribute is evaluated at load time with the series and parallel
// functions. Action bodies are kept as raw hcl.Body values and decoded by the
// executor once the task is about to run.
package hcl_adapter
