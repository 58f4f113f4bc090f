package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/specialistvlad/buildgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// ExecutionRecord holds the start and end times for a single task's execution.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// SimpleModule registers a single action under Name.
type SimpleModule struct {
	Name   string
	Action *registry.RegisteredAction
}

// Register implements the registry.Module interface.
func (m *SimpleModule) Register(r *registry.Registry) {
	r.RegisterAction(m.Name, m.Action)
}

// NoOpModule registers a "noop" action that takes no inputs and does
// nothing. It is useful for pipelines that fail before execution.
type NoOpModule struct{}

// Register implements the registry.Module interface.
func (m *NoOpModule) Register(r *registry.Registry) {
	r.RegisterAction("noop", &registry.RegisteredAction{
		NewInput: func() any { return new(struct{}) },
		Fn:       func(context.Context, *struct{}) (cty.Value, error) { return cty.NilVal, nil },
	})
}

// RecordInput is the body of a "record" action.
type RecordInput struct {
	ID    string    `hcl:"id"`
	Value cty.Value `hcl:"value,optional"`
	// Sleep delays completion, e.g. "50ms".
	Sleep string `hcl:"sleep,optional"`
	// Fail makes the action return an error with this message.
	Fail string `hcl:"fail,optional"`
}

// RecorderModule registers a "record" action that remembers when each id
// ran and which value it received. It echoes {id, value} as its output.
type RecorderModule struct {
	mu      sync.Mutex
	order   []string
	records map[string]*ExecutionRecord
	values  map[string]cty.Value
}

// NewRecorderModule creates an empty recorder.
func NewRecorderModule() *RecorderModule {
	return &RecorderModule{
		records: make(map[string]*ExecutionRecord),
		values:  make(map[string]cty.Value),
	}
}

// Register implements the registry.Module interface.
func (m *RecorderModule) Register(r *registry.Registry) {
	r.RegisterAction("record", &registry.RegisteredAction{
		Description: "Records its execution for tests.",
		NewInput:    func() any { return new(RecordInput) },
		Fn:          m.run,
	})
}

func (m *RecorderModule) run(ctx context.Context, input *RecordInput) (cty.Value, error) {
	start := time.Now()
	if input.Sleep != "" {
		d, err := time.ParseDuration(input.Sleep)
		if err != nil {
			return cty.NilVal, err
		}
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return cty.NilVal, ctx.Err()
		}
	}

	m.mu.Lock()
	m.order = append(m.order, input.ID)
	m.records[input.ID] = &ExecutionRecord{Start: start, End: time.Now()}
	m.values[input.ID] = input.Value
	m.mu.Unlock()

	if input.Fail != "" {
		return cty.NilVal, errors.New(input.Fail)
	}
	value := input.Value
	if value == cty.NilVal {
		value = cty.NullVal(cty.DynamicPseudoType)
	}
	return cty.ObjectVal(map[string]cty.Value{
		"id":    cty.StringVal(input.ID),
		"value": value,
	}), nil
}

// Order returns the ids in completion order.
func (m *RecorderModule) Order() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// Record returns the execution record of id.
func (m *RecorderModule) Record(id string) (*ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("'%s' never ran", id)
	}
	return rec, nil
}

// Value returns the value id received.
func (m *RecorderModule) Value(id string) cty.Value {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[id]
}
