// SPDX-License-Identifier: MPL-2.0

// Package hooks runs the optional boot hook scripts mounted under the
// workspace (config/boot.d/*.sh). Hooks run in lexical order through an
// embedded POSIX shell interpreter, so they behave the same on every image
// regardless of which /bin/sh the base image ships.
package hooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"labboot/pkg/types"
)

// ErrHookFailed is the sentinel error wrapped by HookError.
var ErrHookFailed = errors.New("boot hook failed")

type (
	// HookError reports a hook script that could not be parsed or exited
	// non-zero. The exit code propagates to the labboot process exit status
	// like any other external tool failure.
	HookError struct {
		// Hook is the script path.
		Hook string
		// ExitCode is the script's exit status (2 for syntax errors).
		ExitCode types.ExitCode
		// Err is the underlying interpreter error.
		Err error
	}

	// Runner executes hook scripts with the embedded interpreter.
	Runner struct {
		stdin   io.Reader
		stdout  io.Writer
		stderr  io.Writer
		workdir string
	}

	// Option configures a Runner.
	Option func(*Runner)
)

// Error implements the error interface for HookError.
func (e *HookError) Error() string {
	return fmt.Sprintf("boot hook %s failed with exit code %d: %v", e.Hook, e.ExitCode, e.Err)
}

// Unwrap returns ErrHookFailed for errors.Is() compatibility.
func (e *HookError) Unwrap() error { return ErrHookFailed }

// NewRunner returns a Runner writing through to the process stdio.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithStdout redirects hook stdout.
func WithStdout(w io.Writer) Option {
	return func(r *Runner) { r.stdout = w }
}

// WithStderr redirects hook stderr.
func WithStderr(w io.Writer) Option {
	return func(r *Runner) { r.stderr = w }
}

// WithStdin sets hook stdin.
func WithStdin(in io.Reader) Option {
	return func(r *Runner) { r.stdin = in }
}

// WithWorkdir sets the working directory hooks run in. Empty means the
// current process directory.
func WithWorkdir(dir string) Option {
	return func(r *Runner) { r.workdir = dir }
}

// Discover returns the hook scripts under dir in lexical order. A missing
// directory yields no hooks and no error. Only regular files with the .sh
// suffix count; everything else is ignored.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read hooks dir %q: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sh") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, nil
}

// Run executes a single hook script with the given environment. env must be
// the complete KEY=VALUE environment for the script; later entries win on
// duplicate keys.
func (r *Runner) Run(ctx context.Context, path string, env []string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read boot hook %q: %w", path, err)
	}

	prog, err := syntax.NewParser().Parse(bytes.NewReader(content), filepath.Base(path))
	if err != nil {
		return &HookError{Hook: path, ExitCode: 2, Err: fmt.Errorf("syntax error: %w", err)}
	}

	runner, err := interp.New(
		interp.Dir(r.workdir),
		interp.Env(expand.ListEnviron(env...)),
		interp.StdIO(r.stdin, r.stdout, r.stderr),
	)
	if err != nil {
		return fmt.Errorf("failed to create hook interpreter: %w", err)
	}

	if err := runner.Run(ctx, prog); err != nil {
		var exitStatus interp.ExitStatus
		if errors.As(err, &exitStatus) {
			return &HookError{Hook: path, ExitCode: types.ExitCode(exitStatus), Err: err}
		}
		return &HookError{Hook: path, ExitCode: 1, Err: err}
	}
	return nil
}
