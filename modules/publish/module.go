// Package publish releases a packaged extension, either through the
// marketplace command-line tool or by uploading it to a registry over HTTP.
package publish

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/buildgrid/internal/buildctx"
	"github.com/specialistvlad/buildgrid/internal/ctxlog"
	"github.com/specialistvlad/buildgrid/internal/httpx"
	"github.com/specialistvlad/buildgrid/internal/proc"
	"github.com/specialistvlad/buildgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// DefaultTokenEnv is the variable read by the marketplace tool.
const DefaultTokenEnv = "VSCE_PAT"

// Module implements the registry.Module interface for this package.
type Module struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Input defines the arguments of a publish action. Exactly one of Command
// and RegistryURL must be set.
type Input struct {
	File     string `hcl:"file"`
	TokenEnv string `hcl:"token_env,optional"`

	Command  string   `hcl:"command,optional"`
	Args     []string `hcl:"args,optional"`
	LocalBin bool     `hcl:"local_bin,optional"`

	RegistryURL string `hcl:"registry_url,optional"`
	Method      string `hcl:"method,optional"`
	Timeout     string `hcl:"timeout,optional"`
	Retries     int    `hcl:"retries,optional"`

	// DryRun validates the inputs and logs what would be published.
	DryRun bool `hcl:"dry_run,optional"`
}

// Output is published as the task result.
type Output struct {
	Published bool   `cty:"published"`
	Status    string `cty:"status"`
}

// Run publishes input.File.
func (m *Module) Run(ctx context.Context, input *Input) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx)

	if (input.Command == "") == (input.RegistryURL == "") {
		return cty.NilVal, fmt.Errorf("publish needs exactly one of 'command' or 'registry_url'")
	}
	file := buildctx.Resolve(ctx, input.File)
	stat, err := os.Stat(file)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to stat package '%s': %w", input.File, err)
	}

	tokenEnv := input.TokenEnv
	if tokenEnv == "" {
		tokenEnv = DefaultTokenEnv
	}
	token := os.Getenv(tokenEnv)

	if input.DryRun {
		target := input.RegistryURL
		if target == "" {
			target = input.Command
		}
		logger.Info("Dry run, not publishing.", "file", input.File, "size", stat.Size(), "target", target, "token_set", token != "")
		return registry.OutputValue(Output{Published: false, Status: "dry run"})
	}
	if token == "" {
		return cty.NilVal, fmt.Errorf("publish token variable '%s' is not set", tokenEnv)
	}

	if input.Command != "" {
		return m.runTool(ctx, input, file, tokenEnv, token)
	}
	return handleUpload(ctx, input, file, token)
}

// runTool passes the token to the tool through its environment only.
func (m *Module) runTool(ctx context.Context, input *Input, file, tokenEnv, token string) (cty.Value, error) {
	root := buildctx.Root(ctx)
	name := input.Command
	if input.LocalBin {
		name = proc.LocalBin(root, name)
	}
	args := input.Args
	if len(args) == 0 {
		args = []string{"publish", "--packagePath", file}
	}

	cmd := proc.Command{
		Name:   name,
		Args:   args,
		Dir:    root,
		Env:    []string{tokenEnv + "=" + token},
		Stdout: m.Stdout,
		Stderr: m.Stderr,
	}
	ctxlog.FromContext(ctx).Info("Publishing package.", "command", cmd.String())
	if err := proc.Run(ctx, cmd); err != nil {
		return cty.NilVal, err
	}
	return registry.OutputValue(Output{Published: true, Status: "exit 0"})
}

func handleUpload(ctx context.Context, input *Input, file, token string) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx).With("action", "upload")

	method := strings.ToUpper(input.Method)
	if method == "" {
		method = http.MethodPut
	}
	if method != http.MethodPut && method != http.MethodPost {
		return cty.NilVal, fmt.Errorf("unsupported upload method '%s'", input.Method)
	}
	timeout, err := httpx.ParseTimeout(input.Timeout, httpx.DefaultTimeout)
	if err != nil {
		return cty.NilVal, err
	}

	body, err := os.ReadFile(file)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to read package '%s': %w", input.File, err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(file))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	client := httpx.NewClient(timeout, input.Retries)
	defer client.Close()

	logger.Info("Uploading package", "source", input.File, "size", len(body), "contentType", contentType)
	resp, err := client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", contentType).
		SetBody(body).
		Execute(method, input.RegistryURL)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to execute upload request: %w", err)
	}
	if err := httpx.Check(resp, input.RegistryURL); err != nil {
		return cty.NilVal, err
	}

	logger.Info("Successfully uploaded package", "status", resp.Status())
	return registry.OutputValue(Output{Published: true, Status: resp.Status()})
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("publish", &registry.RegisteredAction{
		Description: "Publishes a package with the marketplace tool or over HTTP.",
		NewInput:    func() any { return new(Input) },
		Fn:          m.Run,
	})
}
