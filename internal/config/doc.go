// Package config defines the format-agnostic model of a build pipeline:
// settings, tasks and watch targets, plus the Loader interface that concrete
// configuration formats implement.
//
// The Model is the single source of truth for the dag and watch packages.
// The HCL implementation lives in internal/hcl_adapter.
package config
