// Package proc spawns external tools such as compilers, linters and the
// packaging tool, and propagates their exit codes.
package proc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/specialistvlad/buildgrid/internal/ctxlog"
)

// waitDelay bounds how long Run waits for output pipes after the process
// has been killed on cancellation.
const waitDelay = 5 * time.Second

// Command describes one process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env holds extra KEY=VALUE pairs appended to the current environment.
	Env []string
	// Stdout and Stderr receive the process output. When nil, each line is
	// logged through the context logger instead.
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command line for logs and errors.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// ExitError reports a process that ran and exited with a non-zero code.
type ExitError struct {
	Command string
	Code    int
	Err     error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Command, e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the process exit code.
func (e *ExitError) ExitCode() int { return e.Code }

// Run starts the command and waits for it. Cancelling ctx kills the process
// and the returned error wraps ctx.Err().
func Run(ctx context.Context, c Command) error {
	logger := ctxlog.FromContext(ctx).With("command", c.Name)

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.WaitDelay = waitDelay

	var wg sync.WaitGroup
	stdout, closeOut := lineWriter(c.Stdout, func(line string) {
		logger.Info(line, "stream", "stdout")
	}, &wg)
	stderr, closeErr := lineWriter(c.Stderr, func(line string) {
		logger.Warn(line, "stream", "stderr")
	}, &wg)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger.Debug("Starting process.", "args", c.Args, "dir", c.Dir)
	err := cmd.Run()
	closeOut()
	closeErr()
	wg.Wait()

	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s interrupted: %w", c.Name, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Command: c.String(), Code: exitErr.ExitCode(), Err: err}
	}
	return fmt.Errorf("could not run %s: %w", c.Name, err)
}

// lineWriter returns w unchanged when it is set, or a pipe whose lines are
// passed to logLine.
func lineWriter(w io.Writer, logLine func(string), wg *sync.WaitGroup) (io.Writer, func()) {
	if w != nil {
		return w, func() {}
	}
	pr, pw := io.Pipe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		scan := bufio.NewScanner(pr)
		scan.Buffer(make([]byte, 64*1024), 1024*1024)
		for scan.Scan() {
			if line := scan.Text(); line != "" {
				logLine(line)
			}
		}
		// Drain so the writer never blocks on an overlong line.
		_, _ = io.Copy(io.Discard, pr)
	}()
	return pw, func() { _ = pw.Close() }
}

// LocalBin returns the path of name inside root/node_modules/.bin when such
// an executable exists, and name unchanged otherwise.
func LocalBin(root, name string) string {
	if strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	candidates := []string{name}
	if runtime.GOOS == "windows" {
		candidates = []string{name + ".cmd", name + ".exe", name}
	}
	for _, c := range candidates {
		p := filepath.Join(root, "node_modules", ".bin", c)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return name
}
