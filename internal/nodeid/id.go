package nodeid

import (
	"fmt"
	"strconv"
	"strings"
)

const separator = "#"

// ID identifies one occurrence of a task in an execution graph.
type ID struct {
	Task string
	// Occurrence starts at 1.
	Occurrence int
}

// New returns the ID of the n-th occurrence of task.
func New(task string, n int) ID {
	return ID{Task: task, Occurrence: n}
}

// String renders the canonical form. The first occurrence has no suffix.
func (id ID) String() string {
	if id.Occurrence <= 1 {
		return id.Task
	}
	return id.Task + separator + strconv.Itoa(id.Occurrence)
}

// Parse is the inverse of String. Task names may themselves contain '#';
// only a trailing numeric suffix is treated as the occurrence.
func Parse(raw string) (ID, error) {
	if raw == "" {
		return ID{}, fmt.Errorf("identifier cannot be empty")
	}
	i := strings.LastIndex(raw, separator)
	if i <= 0 {
		return ID{Task: raw, Occurrence: 1}, nil
	}
	n, err := strconv.Atoi(raw[i+1:])
	if err != nil || n < 1 {
		return ID{Task: raw, Occurrence: 1}, nil
	}
	if n == 1 {
		return ID{}, fmt.Errorf("invalid identifier %q: the first occurrence has no suffix", raw)
	}
	return ID{Task: raw[:i], Occurrence: n}, nil
}
