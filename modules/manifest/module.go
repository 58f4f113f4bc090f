// Package manifest merges generated fragments into the extension manifest
// and stamps the build version.
package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/specialistvlad/buildgrid/internal/buildctx"
	"github.com/specialistvlad/buildgrid/internal/ctxlog"
	mf "github.com/specialistvlad/buildgrid/internal/manifest"
	"github.com/specialistvlad/buildgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of a manifest action.
type Input struct {
	Base string `hcl:"base"`
	// Fragments are merged over Base in order.
	Fragments []string `hcl:"fragments,optional"`
	// Version, when set, replaces the "version" field.
	Version string `hcl:"version,optional"`
	// Set maps dotted paths to values, applied after merging.
	Set    cty.Value `hcl:"set,optional"`
	Remove []string  `hcl:"remove,optional"`
	Out    string    `hcl:"out"`
}

// Output is published as the task result.
type Output struct {
	Path    string `cty:"path"`
	Name    string `cty:"name"`
	Version string `cty:"version"`
}

// OnRunManifest builds the manifest and writes it to Out.
func OnRunManifest(ctx context.Context, input *Input) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx)

	m, layout, err := mf.Load(buildctx.Resolve(ctx, input.Base))
	if err != nil {
		return cty.NilVal, err
	}

	for _, frag := range input.Fragments {
		overlay, err := mf.Read(buildctx.Resolve(ctx, frag))
		if err != nil {
			return cty.NilVal, fmt.Errorf("fragment: %w", err)
		}
		m = mf.Manifest(mf.DeepMerge(m, overlay))
		logger.Debug("Merged manifest fragment.", "fragment", frag)
	}

	if input.Version != "" {
		m["version"] = input.Version
	}

	sets, err := setValues(input.Set)
	if err != nil {
		return cty.NilVal, err
	}
	paths := make([]string, 0, len(sets))
	for p := range sets {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := m.Set(p, sets[p]); err != nil {
			return cty.NilVal, err
		}
	}

	for _, p := range input.Remove {
		if !m.Delete(p) {
			logger.Debug("Manifest key to remove not present.", "path", p)
		}
	}

	out := buildctx.Resolve(ctx, input.Out)
	if err := mf.WriteLike(out, layout, m); err != nil {
		return cty.NilVal, err
	}

	name, _ := m["name"].(string)
	version, _ := m["version"].(string)
	logger.Info("Wrote manifest.", "path", input.Out, "version", version)
	return registry.OutputValue(Output{Path: input.Out, Name: name, Version: version})
}

// setValues converts the set object into plain Go values.
func setValues(v cty.Value) (map[string]any, error) {
	if v == cty.NilVal || v.IsNull() {
		return nil, nil
	}
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("set contains unknown values")
	}
	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return nil, fmt.Errorf("set must be an object, got %s", v.Type().FriendlyName())
	}

	raw, err := ctyjson.SimpleJSONValue{Value: v}.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("cannot encode set values: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("cannot decode set values: %w", err)
	}
	return out, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("manifest", &registry.RegisteredAction{
		Description: "Merges manifest fragments and writes the result.",
		NewInput:    func() any { return new(Input) },
		Fn:          OnRunManifest,
	})
}
