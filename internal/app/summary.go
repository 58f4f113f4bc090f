package app

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gookit/color"
	"github.com/samber/lo"
	"github.com/specialistvlad/buildgrid/internal/config"
	"github.com/specialistvlad/buildgrid/internal/dag"
)

// printSummary writes one line per node followed by the totals.
func (a *App) printSummary(results []dag.Result, elapsed time.Duration) {
	tw := tabwriter.NewWriter(a.outW, 0, 4, 2, ' ', 0)
	for _, r := range results {
		line := fmt.Sprintf("  %s\t%s\t%s", stateLabel(r.State), r.ID, formatDuration(r.Duration))
		if r.State == dag.Failed && r.Err != nil {
			line += "\t" + color.Red.Sprint(r.Err.Error())
		}
		fmt.Fprintln(tw, line)
	}
	_ = tw.Flush()

	done := lo.CountBy(results, func(r dag.Result) bool { return r.State == dag.Done })
	failed := lo.Filter(results, func(r dag.Result, _ int) bool { return r.State == dag.Failed })
	skipped := lo.CountBy(results, func(r dag.Result) bool { return r.State == dag.Skipped })

	totals := fmt.Sprintf("%d done, %d failed, %d skipped in %s", done, len(failed), skipped, formatDuration(elapsed))
	if len(failed) > 0 {
		names := lo.Map(failed, func(r dag.Result, _ int) string { return r.ID })
		fmt.Fprintf(a.outW, "%s (%s)\n", color.Red.Sprint(totals), strings.Join(names, ", "))
		return
	}
	fmt.Fprintln(a.outW, color.Green.Sprint(totals))
}

func stateLabel(s dag.NodeState) string {
	switch s {
	case dag.Done:
		return color.Green.Sprint("ok")
	case dag.Failed:
		return color.Red.Sprint("FAIL")
	case dag.Skipped:
		return color.Yellow.Sprint("skip")
	}
	return color.Gray.Sprint(s.String())
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}

// printPlan writes the nodes of graph in execution order with their
// dependencies, without running anything.
func (a *App) printPlan(graph *dag.Graph) error {
	order, err := graph.Sorted()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.outW, "Execution plan (%d steps):\n", len(order))
	tw := tabwriter.NewWriter(a.outW, 0, 4, 2, ' ', 0)
	for i, id := range order {
		task, _ := graph.Task(id)
		deps, err := graph.Dependencies(id)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("  %d.\t%s\t%s", i+1, id, task.Action.Type)
		if len(deps) > 0 {
			line += "\tafter " + strings.Join(deps, ", ")
		}
		fmt.Fprintln(tw, line)
	}
	return tw.Flush()
}

// List writes every task and watch target with its description.
func (a *App) List() error {
	tw := tabwriter.NewWriter(a.outW, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, color.Bold.Sprint("Tasks:"))
	for _, name := range a.model.TargetNames() {
		task, ok := a.model.Tasks[name]
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", marker(name, a.model.Settings.Default), name, describeTask(task))
	}
	if len(a.model.Watches) > 0 {
		fmt.Fprintln(tw, color.Bold.Sprint("Watch targets:"))
		for _, name := range a.model.TargetNames() {
			w, ok := a.model.Watches[name]
			if !ok {
				continue
			}
			desc := w.Description
			if desc == "" {
				desc = "runs " + w.Run.String() + " on change"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", marker(name, a.model.Settings.Default), name, desc)
		}
	}
	return tw.Flush()
}

func marker(name, def string) string {
	if name == def {
		return "*"
	}
	return " "
}

func describeTask(t *config.Task) string {
	if t.Description != "" {
		return t.Description
	}
	if t.IsAction() {
		return "action " + t.Action.Type
	}
	return t.Run.String()
}
