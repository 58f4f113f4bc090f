package generate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/buildgrid/internal/buildctx"
	mf "github.com/specialistvlad/buildgrid/internal/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty/gocty"
)

func write(t *testing.T, root, name, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestOnRunGenerate(t *testing.T) {
	root := t.TempDir()
	write(t, root, "src/build/strings.ts", `
export const commandTitle = (id: string): string => "Debug: " + id;
`)
	write(t, root, "src/build/contributions.ts", `
import { commandTitle } from "./strings";

interface Command { command: string; title: string }

const commands: Command[] = ["prettyPrint", "toggleSkipping"].map(id => ({
  command: "extension.js-debug." + id,
  title: commandTitle(id),
}));

export default { contributes: { commands }, activationEvents: ["onDebug"] };
`)
	write(t, root, "src/build/config.js", `
module.exports = function (args) {
  return {
    contributes: { configuration: { title: "JavaScript Debugger", channel: args.channel } },
    activationEvents: ["onStartupFinished"],
  };
};
`)
	ctx := buildctx.WithRoot(context.Background(), root)

	val, err := OnRunGenerate(ctx, &Input{
		Scripts: []string{"src/build/contributions.ts", "src/build/config.js"},
		Out:     "out/contributions.json",
		Args:    map[string]string{"channel": "nightly"},
	})
	require.NoError(t, err)

	var keys []string
	require.NoError(t, gocty.FromCtyValue(val.GetAttr("keys"), &keys))
	assert.Equal(t, []string{"activationEvents", "contributes"}, keys)

	got, err := mf.Read(filepath.Join(root, "out", "contributions.json"))
	require.NoError(t, err)
	want := mf.Manifest{
		"activationEvents": []any{"onStartupFinished"},
		"contributes": map[string]any{
			"commands": []any{
				map[string]any{"command": "extension.js-debug.prettyPrint", "title": "Debug: prettyPrint"},
				map[string]any{"command": "extension.js-debug.toggleSkipping", "title": "Debug: toggleSkipping"},
			},
			"configuration": map[string]any{"title": "JavaScript Debugger", "channel": "nightly"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("generated fragment mismatch (-want +got):\n%s", diff)
	}
}

func TestOnRunGenerate_Errors(t *testing.T) {
	root := t.TempDir()
	write(t, root, "syntax.ts", `export default {`)
	write(t, root, "scalar.js", `module.exports = 42;`)
	write(t, root, "throws.js", `module.exports = () => { throw new Error("no commands found"); };`)
	write(t, root, "loop.js", `module.exports = () => { for (;;) {} };`)
	ctx := buildctx.WithRoot(context.Background(), root)

	testCases := []struct {
		name    string
		input   *Input
		wantErr string
	}{
		{"syntax error", &Input{Scripts: []string{"syntax.ts"}, Out: "o.json"}, "failed to bundle generator 'syntax.ts'"},
		{"missing script", &Input{Scripts: []string{"nope.ts"}, Out: "o.json"}, "failed to bundle generator 'nope.ts'"},
		{"not an object", &Input{Scripts: []string{"scalar.js"}, Out: "o.json"}, "must export an object"},
		{"throws", &Input{Scripts: []string{"throws.js"}, Out: "o.json"}, "no commands found"},
		{"timeout", &Input{Scripts: []string{"loop.js"}, Out: "o.json", Timeout: "100ms"}, "generator interrupted"},
		{"bad timeout", &Input{Scripts: []string{"scalar.js"}, Out: "o.json", Timeout: "soon"}, "invalid timeout"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			start := time.Now()
			_, err := OnRunGenerate(ctx, tc.input)
			assert.ErrorContains(t, err, tc.wantErr)
			assert.Less(t, time.Since(start), 10*time.Second)
		})
	}
	assert.NoFileExists(t, filepath.Join(root, "o.json"))
}
