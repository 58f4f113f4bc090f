package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// fileRoot is a struct used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Settings []*settingsBlock `hcl:"settings,block"`
	Tasks    []*taskBlock     `hcl:"task,block"`
	Watches  []*watchBlock    `hcl:"watch,block"`
	Remain   hcl.Body         `hcl:",remain"`
}

type settingsBlock struct {
	Name            string            `hcl:"name,optional"`
	Default         string            `hcl:"default,optional"`
	Root            string            `hcl:"root,optional"`
	VersionEnv      string            `hcl:"version_env,optional"`
	VersionTimezone string            `hcl:"version_timezone,optional"`
	Vars            map[string]string `hcl:"vars,optional"`
	DeclRange       hcl.Range         `hcl:",def_range"`
}

type taskBlock struct {
	Name        string         `hcl:"name,label"`
	Description string         `hcl:"description,optional"`
	Run         hcl.Expression `hcl:"run,optional"`
	Actions     []*actionBlock `hcl:"action,block"`
	DeclRange   hcl.Range      `hcl:",def_range"`
}

type actionBlock struct {
	Type string   `hcl:"type,label"`
	Body hcl.Body `hcl:",remain"`
}

type watchBlock struct {
	Name        string         `hcl:"name,label"`
	Description string         `hcl:"description,optional"`
	Paths       []string       `hcl:"paths"`
	Ignore      []string       `hcl:"ignore,optional"`
	Debounce    string         `hcl:"debounce,optional"`
	Initial     hcl.Expression `hcl:"initial,optional"`
	Run         hcl.Expression `hcl:"run"`
	DeclRange   hcl.Range      `hcl:",def_range"`
}
