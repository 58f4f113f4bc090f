// Package manifest reads, merges and writes JSON extension manifests such as
// package.json. Inputs may contain comments and trailing commas.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tailscale/hujson"
)

// Manifest is a decoded JSON object.
type Manifest map[string]any

// Parse decodes a JSON or JSON-with-comments document whose top level is an
// object. Numbers keep their original text.
func Parse(data []byte) (Manifest, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("could not standardize manifest: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(std))
	dec.UseNumber()
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("could not decode manifest: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("manifest must be a JSON object")
	}
	return m, nil
}

// Read loads and parses the manifest at path.
func Read(path string) (Manifest, error) {
	m, _, err := Load(path)
	return m, err
}

// Load is Read that also returns the raw document, for use as the layout
// argument of Encode and WriteLike.
func Load(path string) (Manifest, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("could not read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, data, nil
}

// Marshal encodes m with two-space indentation and a trailing newline. Keys
// are sorted.
func Marshal(m Manifest) ([]byte, error) {
	return Encode(nil, m)
}

// Encode encodes m like Marshal, but object keys that also appear in the
// layout document keep the layout's order. Keys the layout lacks follow in
// sorted order. A nil layout sorts everything.
func Encode(layout []byte, m Manifest) ([]byte, error) {
	root := hujson.Value{Value: &hujson.Object{}}
	if len(layout) > 0 {
		v, err := hujson.Parse(layout)
		if err != nil {
			return nil, fmt.Errorf("could not parse manifest layout: %w", err)
		}
		root = v
	}
	if err := patchValue(&root, map[string]any(m)); err != nil {
		return nil, err
	}
	root.Standardize()

	var buf bytes.Buffer
	if err := json.Indent(&buf, root.Pack(), "", "  "); err != nil {
		return nil, fmt.Errorf("could not encode manifest: %w", err)
	}
	out := bytes.TrimSpace(buf.Bytes())
	return append(out, '\n'), nil
}

// Write encodes m and writes it to path, creating parent directories.
func Write(path string, m Manifest) error {
	return WriteLike(path, nil, m)
}

// WriteLike writes m to path keeping the key order of layout.
func WriteLike(path string, layout []byte, m Manifest) error {
	data, err := Encode(layout, m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("could not create manifest directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// patchValue rewrites v in place to hold want. Objects are edited member by
// member so surviving keys stay where they were; everything else is replaced.
func patchValue(v *hujson.Value, want any) error {
	wantObj, isObj := asObject(want)
	obj, ok := v.Value.(*hujson.Object)
	if !isObj || !ok {
		return replaceValue(v, want)
	}

	seen := make(map[string]bool, len(wantObj))
	members := make([]hujson.ObjectMember, 0, len(wantObj))
	for _, mem := range obj.Members {
		name, err := memberName(mem)
		if err != nil {
			return err
		}
		val, keep := wantObj[name]
		if !keep || seen[name] {
			continue
		}
		seen[name] = true
		if err := patchValue(&mem.Value, val); err != nil {
			return err
		}
		members = append(members, mem)
	}

	added := make([]string, 0, len(wantObj)-len(seen))
	for k := range wantObj {
		if !seen[k] {
			added = append(added, k)
		}
	}
	sort.Strings(added)
	for _, k := range added {
		name, err := encodeJSON(k)
		if err != nil {
			return err
		}
		mem := hujson.ObjectMember{Name: hujson.Value{Value: hujson.Literal(name)}}
		if err := replaceValue(&mem.Value, wantObj[k]); err != nil {
			return err
		}
		members = append(members, mem)
	}
	obj.Members = members
	return nil
}

func replaceValue(v *hujson.Value, want any) error {
	raw, err := encodeJSON(want)
	if err != nil {
		return err
	}
	nv, err := hujson.Parse(raw)
	if err != nil {
		return fmt.Errorf("could not encode manifest: %w", err)
	}
	v.Value = nv.Value
	return nil
}

func memberName(mem hujson.ObjectMember) (string, error) {
	lit, ok := mem.Name.Value.(hujson.Literal)
	if !ok {
		return "", fmt.Errorf("manifest object has a non-literal key")
	}
	var name string
	if err := json.Unmarshal(lit, &name); err != nil {
		return "", fmt.Errorf("manifest object key: %w", err)
	}
	return name, nil
}

// encodeJSON marshals v without HTML escaping and without a trailing newline.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("could not encode manifest: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// DeepMerge returns a new object holding base overlaid with overlay. Objects
// merge recursively; arrays and scalars from overlay replace those in base.
// Neither input is modified.
func DeepMerge(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = cloneValue(v)
	}
	for k, v := range overlay {
		if src, ok := v.(map[string]any); ok {
			if dst, ok := asObject(out[k]); ok {
				out[k] = DeepMerge(dst, src)
				continue
			}
		}
		out[k] = cloneValue(v)
	}
	return out
}

// Keys returns the sorted top-level keys.
func (m Manifest) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value at a dotted path such as "contributes.commands".
func (m Manifest) Get(path string) (any, bool) {
	var cur any = map[string]any(m)
	for _, key := range splitPath(path) {
		obj, ok := asObject(cur)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set stores value at a dotted path, creating intermediate objects. It fails
// if an intermediate value exists and is not an object.
func (m Manifest) Set(path string, value any) error {
	keys := splitPath(path)
	if len(keys) == 0 {
		return fmt.Errorf("empty manifest path")
	}
	obj := map[string]any(m)
	for i, key := range keys[:len(keys)-1] {
		next, exists := obj[key]
		if !exists {
			child := make(map[string]any)
			obj[key] = child
			obj = child
			continue
		}
		child, ok := asObject(next)
		if !ok {
			return fmt.Errorf("cannot set '%s': '%s' is not an object", path, strings.Join(keys[:i+1], "."))
		}
		obj = child
	}
	obj[keys[len(keys)-1]] = value
	return nil
}

// Delete removes the value at a dotted path and reports whether it existed.
func (m Manifest) Delete(path string) bool {
	keys := splitPath(path)
	if len(keys) == 0 {
		return false
	}
	parent := map[string]any(m)
	if len(keys) > 1 {
		v, ok := m.Get(strings.Join(keys[:len(keys)-1], "."))
		if !ok {
			return false
		}
		if parent, ok = asObject(v); !ok {
			return false
		}
	}
	last := keys[len(keys)-1]
	if _, ok := parent[last]; !ok {
		return false
	}
	delete(parent, last)
	return true
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func asObject(v any) (map[string]any, bool) {
	switch o := v.(type) {
	case map[string]any:
		return o, true
	case Manifest:
		return o, true
	}
	return nil, false
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case Manifest:
		return cloneValue(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
