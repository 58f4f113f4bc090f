package dag

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/buildgrid/internal/config"
	"github.com/zclconf/go-cty/cty"
)

// NodeState is the execution state of a node.
type NodeState int32

const (
	Pending NodeState = iota
	Running
	Done
	Failed
	Skipped
)

func (s NodeState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Graph is a collection of nodes and their dependencies, representing a DAG.
// All operations on the graph are concurrency-safe.
type Graph struct {
	// mutex protects the nodes map during concurrent access.
	mutex sync.RWMutex
	// nodes stores all nodes in the graph, keyed by their unique ID.
	nodes map[string]*node
	// order records insertion order so that traversals are deterministic.
	order []string
}

// node represents a single vertex in the graph. It is un-exported to
// enforce interaction with the graph via the public API (using string IDs),
// not by direct struct manipulation.
type node struct {
	// id is the unique identifier for the node.
	id string
	// task is the action task this node executes. Nil in structural tests.
	task *config.Task
	// deps holds the set of nodes that this node depends on (predecessors).
	deps map[string]*node
	// dependents holds the set of nodes that depend on this node (successors).
	dependents map[string]*node

	// Runtime state, reset by the executor before each run.
	depCount atomic.Int32
	state    atomic.Int32
	skipOnce sync.Once
	err      error
	output   cty.Value
	started  time.Time
	finished time.Time
}

// Result is the outcome of one node after a run.
type Result struct {
	ID       string
	Task     string
	State    NodeState
	Duration time.Duration
	Err      error
}
