// Package notify emits socket.io events, typically to tell a running
// development host that a fresh build is available.
package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/buildgrid/internal/ctxlog"
	"github.com/specialistvlad/buildgrid/internal/httpx"
	"github.com/specialistvlad/buildgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

const defaultTimeout = 10 * time.Second

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of a notify action.
type Input struct {
	URL       string    `hcl:"url"`
	Namespace string    `hcl:"namespace,optional"`
	Event     string    `hcl:"event"`
	Data      cty.Value `hcl:"data,optional"`
	// Ack waits for the server to acknowledge the event.
	Ack     bool   `hcl:"ack,optional"`
	Timeout string `hcl:"timeout,optional"`
	// Optional turns delivery failures into a warning.
	Optional           bool `hcl:"optional,optional"`
	InsecureSkipVerify bool `hcl:"insecure_skip_verify,optional"`
}

// Output is published as the task result.
type Output struct {
	Delivered bool `cty:"delivered"`
}

// opResult is a private struct to safely pass results through the done channel.
type opResult struct {
	err error
}

// OnRunNotify connects, emits the event and disconnects.
func OnRunNotify(ctx context.Context, input *Input) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx).With("url", input.URL, "event", input.Event)

	err := emit(ctx, input)
	if err != nil {
		if input.Optional && ctx.Err() == nil {
			logger.Warn("Notification not delivered.", "error", err)
			return registry.OutputValue(Output{Delivered: false})
		}
		return cty.NilVal, err
	}
	return registry.OutputValue(Output{Delivered: true})
}

func emit(ctx context.Context, input *Input) error {
	logger := ctxlog.FromContext(ctx).With("url", input.URL, "event", input.Event)

	timeout, err := httpx.ParseTimeout(input.Timeout, defaultTimeout)
	if err != nil {
		return err
	}
	payload, err := eventData(input.Data)
	if err != nil {
		return err
	}

	parsedURL, err := url.Parse(input.URL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("url '%s' must include scheme and host", input.URL)
	}

	namespace := input.Namespace
	if namespace == "" {
		namespace = "/"
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		opts.SetPath(parsedURL.Path)
	}
	opts.SetReconnection(false)
	if input.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan opResult, 1)
	finish := func(res opResult) {
		select {
		case done <- res:
		default:
		}
	}
	var isConnected atomic.Bool

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(namespace, opts)
	defer func() {
		logger.Debug("Disconnecting socket client")
		io.Disconnect()
	}()

	io.On(types.EventName("connect"), func(...any) {
		isConnected.Store(true)
		logger.Debug("Connected.", "namespace", namespace, "sid", io.Id())
		args := []any{}
		if payload != nil {
			args = append(args, payload)
		}
		if input.Ack {
			io.EmitWithAck(input.Event, args...)(func(_ []any, err error) {
				finish(opResult{err: err})
			})
			return
		}
		finish(opResult{err: io.Emit(input.Event, args...)})
	})

	io.On(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connection failed")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = fmt.Errorf("connection failed: %w", e)
			}
		}
		finish(opResult{err: err})
	})

	io.Connect()

	select {
	case <-opCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isConnected.Load() {
			return fmt.Errorf("timed out waiting for acknowledgement of '%s'", input.Event)
		}
		return fmt.Errorf("timed out while waiting for initial connection")
	case res := <-done:
		if res.err != nil {
			return res.err
		}
		logger.Info("Event delivered.")
		return nil
	}
}

// eventData converts the data attribute into a JSON-compatible Go value.
func eventData(v cty.Value) (any, error) {
	if v == cty.NilVal || v.IsNull() {
		return nil, nil
	}
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("data contains unknown values")
	}
	raw, err := ctyjson.SimpleJSONValue{Value: v}.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("cannot encode data: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("cannot decode data: %w", err)
	}
	return out, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("notify", &registry.RegisteredAction{
		Description: "Emits a socket.io event.",
		NewInput:    func() any { return new(Input) },
		Fn:          OnRunNotify,
	})
}
