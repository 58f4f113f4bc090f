// Package dag is the execution layer of the application. It expands the
// series/parallel compositions of the requested targets into a directed
// acyclic graph of action nodes, and executes the nodes concurrently
// according to their dependencies.
//
// A series adds an edge from every exit node of one item to every entry
// node of the next; a parallel starts all of its items after the same
// predecessors. The executor runs ready nodes on a fixed worker pool, stops
// scheduling new work as soon as any node fails, and reports the first root
// cause.
package dag
