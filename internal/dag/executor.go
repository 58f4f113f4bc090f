package dag

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/specialistvlad/buildgrid/internal/config"
	"github.com/specialistvlad/buildgrid/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

// ErrSkipped marks nodes that never ran because of an upstream failure or a
// cancelled run. Such errors are symptoms and never reported as root causes.
var ErrSkipped = errors.New("skipped")

// ActionFunc executes a single action task. outputs holds the results of
// every task that completed before this one, keyed by task name.
type ActionFunc func(ctx context.Context, task *config.Task, outputs map[string]cty.Value) (cty.Value, error)

// Executor runs the nodes of a graph on a fixed pool of workers.
type Executor struct {
	graph      *Graph
	numWorkers int
	run        ActionFunc
	wg         sync.WaitGroup

	outputsMu sync.RWMutex
	outputs   map[string]cty.Value
}

// NewExecutor creates an executor for the graph. seed outputs are visible to
// the first nodes, which lets a watch loop carry results between runs.
func NewExecutor(graph *Graph, numWorkers int, run ActionFunc, seed map[string]cty.Value) *Executor {
	if numWorkers < 1 {
		numWorkers = 1
	}
	outputs := make(map[string]cty.Value, len(seed))
	maps.Copy(outputs, seed)
	return &Executor{
		graph:      graph,
		numWorkers: numWorkers,
		run:        run,
		outputs:    outputs,
	}
}

// Run executes the entire graph concurrently and returns an error if any node fails.
// It respects the cancellation signal from the provided context.
func (e *Executor) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	nodes := e.graph.nodeList()
	if len(nodes) == 0 {
		logger.Debug("Graph is empty, nothing to execute.")
		return nil
	}

	readyChan := make(chan *node, len(nodes))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, n := range nodes {
		n.reset()
	}

	logger.Debug("Initializing executor, finding root nodes...")
	rootNodeCount := 0
	for _, n := range nodes {
		if n.depCount.Load() == 0 {
			logger.Debug("Found root node.", "nodeID", n.id)
			readyChan <- n
			rootNodeCount++
		}
	}
	logger.Debug("Found all root nodes.", "count", rootNodeCount)

	e.wg.Add(len(nodes))

	logger.Debug("Starting worker pool.", "workers", e.numWorkers)
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(runCtx, readyChan, cancel, i)
	}

	e.wg.Wait()
	close(readyChan)
	logger.Debug("All nodes completed.")

	var failedNodes []string
	var rootCauseError error
	for _, n := range nodes {
		if NodeState(n.state.Load()) != Failed {
			continue
		}
		logger.Error("Node failed execution.", "nodeID", n.id, "error", n.err)
		failedNodes = append(failedNodes, n.id)
		if rootCauseError == nil {
			rootCauseError = n.err
		}
	}

	if rootCauseError != nil {
		return fmt.Errorf("execution failed for %s: %w", strings.Join(failedNodes, ", "), rootCauseError)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("execution cancelled: %w", err)
	}
	return nil
}

// Results returns the per-node outcome of the last run in graph order.
func (e *Executor) Results() []Result {
	nodes := e.graph.nodeList()
	results := make([]Result, 0, len(nodes))
	for _, n := range nodes {
		r := Result{
			ID:    n.id,
			State: NodeState(n.state.Load()),
			Err:   n.err,
		}
		if n.task != nil {
			r.Task = n.task.Name
		}
		if !n.started.IsZero() && !n.finished.IsZero() {
			r.Duration = n.finished.Sub(n.started)
		}
		results = append(results, r)
	}
	return results
}

// Outputs returns a copy of the outputs published so far, keyed by task name.
func (e *Executor) Outputs() map[string]cty.Value {
	e.outputsMu.RLock()
	defer e.outputsMu.RUnlock()
	return maps.Clone(e.outputs)
}

// skipDependents recursively marks all downstream nodes as skipped and decrements the WaitGroup.
func (e *Executor) skipDependents(ctx context.Context, n *node) {
	logger := ctxlog.FromContext(ctx)
	for _, id := range sortedKeys(n.dependents) {
		dependent := n.dependents[id]
		dependent.skipOnce.Do(func() {
			logger.Warn("Skipping dependent node due to upstream failure.", "nodeID", dependent.id, "dependency", n.id)
			dependent.state.Store(int32(Skipped))
			dependent.err = fmt.Errorf("%w: upstream '%s' did not complete", ErrSkipped, n.id)
			e.wg.Done()
			e.skipDependents(ctx, dependent)
		})
	}
}

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *node, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for n := range readyChan {
		workerLogger := logger.With("workerID", workerID, "nodeID", n.id)

		if ctx.Err() != nil {
			n.skipOnce.Do(func() {
				workerLogger.Warn("Context canceled, skipping node execution.")
				n.state.Store(int32(Skipped))
				n.err = fmt.Errorf("%w: %w", ErrSkipped, ctx.Err())
				e.wg.Done()
				e.skipDependents(ctx, n)
			})
			continue
		}

		n.state.Store(int32(Running))
		n.started = time.Now()
		out, err := e.execute(ctx, n)
		n.finished = time.Now()

		if err != nil {
			if ctx.Err() != nil && isContextErr(err) {
				workerLogger.Warn("Node interrupted by cancellation.", "error", err)
				n.state.Store(int32(Skipped))
				n.err = fmt.Errorf("%w: %w", ErrSkipped, err)
			} else {
				workerLogger.Error("Node execution failed.", "error", err)
				n.state.Store(int32(Failed))
				n.err = err
				cancel()
			}
			e.skipDependents(ctx, n)
			e.wg.Done()
			continue
		}

		if n.task != nil {
			e.outputsMu.Lock()
			e.outputs[n.task.Name] = out
			e.outputsMu.Unlock()
		}
		n.output = out
		n.state.Store(int32(Done))

		for _, id := range sortedKeys(n.dependents) {
			dependent := n.dependents[id]
			if dependent.depCount.Add(-1) == 0 {
				workerLogger.Debug("Unlocking dependent node.", "dependentID", dependent.id)
				readyChan <- dependent
			}
		}

		e.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// execute runs one node's action and converts panics into errors so that a
// misbehaving handler cannot stall the pool.
func (e *Executor) execute(ctx context.Context, n *node) (out cty.Value, err error) {
	logger := ctxlog.FromContext(ctx).With("task", n.id)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in task '%s': %v", n.id, r)
		}
	}()

	logger.Info("▶️ Starting task")
	out, err = e.run(ctx, n.task, e.Outputs())
	if err != nil {
		return cty.NilVal, err
	}
	logger.Info("✅ Finished task", "duration", time.Since(n.started).Round(time.Millisecond))
	return out, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// nodeList returns the nodes in insertion order.
func (g *Graph) nodeList() []*node {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	nodes := make([]*node, 0, len(g.order))
	for _, id := range g.order {
		nodes = append(nodes, g.nodes[id])
	}
	return nodes
}

// reset prepares a node for a fresh run.
func (n *node) reset() {
	n.depCount.Store(int32(len(n.deps)))
	n.state.Store(int32(Pending))
	n.skipOnce = sync.Once{}
	n.err = nil
	n.output = cty.NilVal
	n.started = time.Time{}
	n.finished = time.Time{}
}
