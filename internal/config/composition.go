package config

import "strings"

// CompositionKind distinguishes the shapes of a Composition.
type CompositionKind int

const (
	// KindRef names another task.
	KindRef CompositionKind = iota
	// KindSeries runs its items one after another.
	KindSeries
	// KindParallel runs its items concurrently and waits for all of them.
	KindParallel
)

func (k CompositionKind) String() string {
	switch k {
	case KindRef:
		return "ref"
	case KindSeries:
		return "series"
	case KindParallel:
		return "parallel"
	default:
		return "unknown"
	}
}

// Composition is a tree of task references arranged in series or in parallel.
type Composition struct {
	Kind  CompositionKind
	Ref   string
	Items []*Composition
}

// Ref returns a composition naming a single task.
func Ref(name string) *Composition {
	return &Composition{Kind: KindRef, Ref: name}
}

// Series returns a composition running items one after another.
func Series(items ...*Composition) *Composition {
	return &Composition{Kind: KindSeries, Items: items}
}

// Parallel returns a composition running items concurrently.
func Parallel(items ...*Composition) *Composition {
	return &Composition{Kind: KindParallel, Items: items}
}

// Refs returns every task name referenced anywhere in the tree, in
// depth-first order. Names may repeat.
func (c *Composition) Refs() []string {
	if c == nil {
		return nil
	}
	if c.Kind == KindRef {
		return []string{c.Ref}
	}
	var out []string
	for _, item := range c.Items {
		out = append(out, item.Refs()...)
	}
	return out
}

// String renders the composition in pipeline syntax, e.g.
// series("clean", parallel("a", "b")).
func (c *Composition) String() string {
	if c == nil {
		return ""
	}
	if c.Kind == KindRef {
		return `"` + c.Ref + `"`
	}
	parts := make([]string, len(c.Items))
	for i, item := range c.Items {
		parts[i] = item.String()
	}
	return c.Kind.String() + "(" + strings.Join(parts, ", ") + ")"
}
