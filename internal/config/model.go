package config

import (
	"sort"
	"time"

	"github.com/hashicorp/hcl/v2"
)

// Model is the unified representation of a loaded pipeline.
type Model struct {
	Settings Settings
	Tasks    map[string]*Task
	Watches  map[string]*Watch
	// Dir is the directory of the pipeline definition. Settings.Root is
	// relative to it.
	Dir string
}

// NewModel returns an empty model ready to be populated by a loader.
func NewModel() *Model {
	return &Model{
		Tasks:   make(map[string]*Task),
		Watches: make(map[string]*Watch),
	}
}

// Settings holds project-wide pipeline options.
type Settings struct {
	Name            string
	Default         string
	Root            string
	VersionEnv      string
	VersionTimezone string
	Vars            map[string]string
}

// Task is a named build step. Exactly one of Action and Run is set.
type Task struct {
	Name        string
	Description string
	Action      *Action
	Run         *Composition
	DeclRange   hcl.Range
}

// IsAction reports whether the task is a leaf executed by a Go handler.
func (t *Task) IsAction() bool {
	return t.Action != nil
}

// Action is a leaf task body. The body is decoded lazily at execution time
// so that it can reference the outputs of earlier tasks.
type Action struct {
	Type string
	Body hcl.Body
}

// Watch is a named watch target.
type Watch struct {
	Name        string
	Description string
	Paths       []string
	Ignore      []string
	Debounce    time.Duration
	Initial     *Composition
	Run         *Composition
}

// TargetNames returns the sorted names of all tasks and watches.
func (m *Model) TargetNames() []string {
	names := make([]string, 0, len(m.Tasks)+len(m.Watches))
	for name := range m.Tasks {
		names = append(names, name)
	}
	for name := range m.Watches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
