package publish

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/specialistvlad/buildgrid/internal/buildctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

type upload struct {
	method string
	auth   string
	ctype  string
	body   []byte
}

func registryServer(t *testing.T, status int) (*httptest.Server, func() []upload) {
	t.Helper()
	var mu sync.Mutex
	var got []upload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, upload{r.Method, r.Header.Get("Authorization"), r.Header.Get("Content-Type"), body})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []upload {
		mu.Lock()
		defer mu.Unlock()
		return append([]upload(nil), got...)
	}
}

func setup(t *testing.T) context.Context {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "out"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "out", "js-debug.vsix"), []byte("PK-vsix"), 0o644))
	return buildctx.WithRoot(context.Background(), root)
}

func TestRun_Upload(t *testing.T) {
	ctx := setup(t)
	srv, uploads := registryServer(t, http.StatusCreated)
	t.Setenv("BGRID_TEST_TOKEN", "s3cret")

	val, err := (&Module{}).Run(ctx, &Input{
		File:        "out/js-debug.vsix",
		TokenEnv:    "BGRID_TEST_TOKEN",
		RegistryURL: srv.URL + "/extensions/js-debug",
	})
	require.NoError(t, err)
	assert.Equal(t, cty.True, val.GetAttr("published"))

	got := uploads()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodPut, got[0].method)
	assert.Equal(t, "Bearer s3cret", got[0].auth)
	assert.NotEmpty(t, got[0].ctype)
	assert.Equal(t, []byte("PK-vsix"), got[0].body)
}

func TestRun_UploadRejected(t *testing.T) {
	ctx := setup(t)
	srv, _ := registryServer(t, http.StatusForbidden)
	t.Setenv("BGRID_TEST_TOKEN", "wrong")

	_, err := (&Module{}).Run(ctx, &Input{
		File:        "out/js-debug.vsix",
		TokenEnv:    "BGRID_TEST_TOKEN",
		RegistryURL: srv.URL,
		Method:      "post",
	})
	assert.ErrorContains(t, err, "failed with status: 403")
}

func TestRun_DryRun(t *testing.T) {
	ctx := setup(t)
	srv, uploads := registryServer(t, http.StatusOK)

	val, err := (&Module{}).Run(ctx, &Input{
		File:        "out/js-debug.vsix",
		TokenEnv:    "BGRID_TEST_UNSET_TOKEN",
		RegistryURL: srv.URL,
		DryRun:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, cty.False, val.GetAttr("published"))
	assert.Empty(t, uploads())
}

func TestRun_Tool(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	ctx := setup(t)
	t.Setenv("BGRID_TEST_TOKEN", "s3cret")

	var out bytes.Buffer
	m := &Module{Stdout: &out, Stderr: &out}
	val, err := m.Run(ctx, &Input{
		File:     "out/js-debug.vsix",
		TokenEnv: "BGRID_TEST_TOKEN",
		Command:  "sh",
		Args:     []string{"-c", `echo "publishing with $BGRID_TEST_TOKEN"`},
	})
	require.NoError(t, err)
	assert.Equal(t, cty.True, val.GetAttr("published"))
	assert.Equal(t, "publishing with s3cret\n", out.String())
}

func TestRun_Errors(t *testing.T) {
	ctx := setup(t)

	testCases := []struct {
		name    string
		input   *Input
		wantErr string
	}{
		{"no target", &Input{File: "out/js-debug.vsix"}, "exactly one of 'command' or 'registry_url'"},
		{"both targets", &Input{File: "out/js-debug.vsix", Command: "vsce", RegistryURL: "http://localhost"}, "exactly one of 'command' or 'registry_url'"},
		{"missing file", &Input{File: "out/missing.vsix", Command: "vsce"}, "failed to stat package 'out/missing.vsix'"},
		{"missing token", &Input{File: "out/js-debug.vsix", Command: "vsce", TokenEnv: "BGRID_TEST_UNSET_TOKEN"}, "publish token variable 'BGRID_TEST_UNSET_TOKEN' is not set"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := (&Module{}).Run(ctx, tc.input)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}

	t.Run("bad method", func(t *testing.T) {
		t.Setenv("BGRID_TEST_TOKEN", "x")
		_, err := (&Module{}).Run(ctx, &Input{File: "out/js-debug.vsix", TokenEnv: "BGRID_TEST_TOKEN", RegistryURL: "http://localhost", Method: "DELETE"})
		assert.ErrorContains(t, err, "unsupported upload method 'DELETE'")
	})
}
