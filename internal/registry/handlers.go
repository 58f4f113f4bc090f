package registry

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/zclconf/go-cty/cty"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	ctyValType  = reflect.TypeOf(cty.Value{})
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// RegisteredAction holds the compiled Go parts of an action.
//
// Fn must have the signature
//
//	func(ctx context.Context, input *T) (cty.Value, error)
//
// where NewInput returns a fresh *T decorated with hcl struct tags.
type RegisteredAction struct {
	Description string
	NewInput    func() any
	Fn          any
}

// RegisterAction registers a Go handler under an action type. It panics on
// duplicate names and malformed handlers since both are programmer errors.
func (r *Registry) RegisterAction(name string, action *RegisteredAction) {
	if _, exists := r.ActionRegistry[name]; exists {
		panic(fmt.Sprintf("action handler with name '%s' already registered", name))
	}
	if err := checkSignature(action); err != nil {
		panic(fmt.Sprintf("action handler '%s': %v", name, err))
	}
	slog.Debug("Registering action handler.", "name", name)
	r.ActionRegistry[name] = action
}

func checkSignature(action *RegisteredAction) error {
	if action.NewInput == nil {
		return fmt.Errorf("NewInput is nil")
	}
	fnType := reflect.TypeOf(action.Fn)
	if fnType == nil || fnType.Kind() != reflect.Func {
		return fmt.Errorf("Fn is %T, want a function", action.Fn)
	}
	if fnType.NumIn() != 2 || fnType.In(0) != contextType {
		return fmt.Errorf("Fn must take (context.Context, input)")
	}
	inputType := reflect.TypeOf(action.NewInput())
	if !inputType.AssignableTo(fnType.In(1)) {
		return fmt.Errorf("Fn input %s does not accept NewInput result %s", fnType.In(1), inputType)
	}
	if fnType.NumOut() != 2 || fnType.Out(0) != ctyValType || fnType.Out(1) != errorType {
		return fmt.Errorf("Fn must return (cty.Value, error)")
	}
	return nil
}

// Invoke calls the handler registered for actionType with a decoded input.
func (r *Registry) Invoke(ctx context.Context, actionType string, input any) (cty.Value, error) {
	action, ok := r.ActionRegistry[actionType]
	if !ok {
		return cty.NilVal, fmt.Errorf("unknown action type '%s'", actionType)
	}

	results := reflect.ValueOf(action.Fn).Call([]reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(input)})
	out := results[0].Interface().(cty.Value)
	if errResult := results[1].Interface(); errResult != nil {
		return cty.NilVal, errResult.(error)
	}
	return out, nil
}
