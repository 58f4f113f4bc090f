package dag

import (
	"context"
	"fmt"
	"strings"

	"github.com/specialistvlad/buildgrid/internal/config"
	"github.com/specialistvlad/buildgrid/internal/ctxlog"
	"github.com/specialistvlad/buildgrid/internal/nodeid"
)

// Build expands the given targets into an executable graph. Targets run in
// parallel unless series is set.
func Build(ctx context.Context, model *config.Model, targets []string, series bool) (*Graph, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("no targets given")
	}
	items := make([]*config.Composition, 0, len(targets))
	for _, name := range targets {
		if _, ok := model.Watches[name]; ok {
			return nil, fmt.Errorf("'%s' is a watch target and must be run on its own", name)
		}
		items = append(items, config.Ref(name))
	}

	root := config.Parallel(items...)
	if series {
		root = config.Series(items...)
	}
	return BuildComposition(ctx, model, root)
}

// BuildComposition expands a single composition into an executable graph.
func BuildComposition(ctx context.Context, model *config.Model, comp *config.Composition) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Building execution graph.", "composition", comp.String())

	x := &expander{
		model:  model,
		graph:  New(),
		counts: make(map[string]int),
	}
	if _, err := x.expand(comp, nil); err != nil {
		return nil, err
	}

	if err := x.graph.DetectCycles(); err != nil {
		return nil, err
	}
	logger.Debug("Execution graph built.", "nodes", x.graph.Len())
	return x.graph, nil
}

// expander walks a composition tree and materializes action nodes.
type expander struct {
	model  *config.Model
	graph  *Graph
	counts map[string]int
	// stack holds the composite tasks currently being expanded.
	stack []string
}

// expand adds the nodes of comp after the given predecessor nodes and
// returns the exit nodes that later items must wait for.
func (x *expander) expand(comp *config.Composition, after []string) ([]string, error) {
	if comp == nil {
		return after, nil
	}

	switch comp.Kind {
	case config.KindRef:
		return x.expandRef(comp.Ref, after)

	case config.KindSeries:
		exits := after
		for _, item := range comp.Items {
			var err error
			if exits, err = x.expand(item, exits); err != nil {
				return nil, err
			}
		}
		return exits, nil

	case config.KindParallel:
		if len(comp.Items) == 0 {
			return after, nil
		}
		var exits []string
		seen := make(map[string]bool)
		for _, item := range comp.Items {
			itemExits, err := x.expand(item, after)
			if err != nil {
				return nil, err
			}
			for _, id := range itemExits {
				if !seen[id] {
					seen[id] = true
					exits = append(exits, id)
				}
			}
		}
		return exits, nil
	}
	return nil, fmt.Errorf("unsupported composition kind %s", comp.Kind)
}

func (x *expander) expandRef(name string, after []string) ([]string, error) {
	task, ok := x.model.Tasks[name]
	if !ok {
		return nil, fmt.Errorf("unknown task '%s'", name)
	}

	if !task.IsAction() {
		for _, active := range x.stack {
			if active == name {
				return nil, fmt.Errorf("task cycle detected: %s -> %s", strings.Join(x.stack, " -> "), name)
			}
		}
		x.stack = append(x.stack, name)
		defer func() { x.stack = x.stack[:len(x.stack)-1] }()
		return x.expand(task.Run, after)
	}

	x.counts[name]++
	id := nodeid.New(name, x.counts[name]).String()
	x.graph.AddNode(id, task)
	for _, pred := range after {
		if err := x.graph.AddEdge(pred, id); err != nil {
			return nil, err
		}
	}
	return []string{id}, nil
}
