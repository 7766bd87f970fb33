// SPDX-License-Identifier: MPL-2.0

package notebook

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

type (
	// Launcher hands the container over to the notebook server. A successful
	// Launch replaces the current process image and never returns; any
	// return from Launch is a failure.
	Launcher interface {
		Launch(ctx context.Context, argv []string, env []string) error
	}

	// ExecLauncher implements Launcher via execve-style process replacement.
	ExecLauncher struct {
		lookPath func(file string) (string, error)
		execFn   func(argv0 string, argv []string, envv []string) error
	}
)

// Compile-time interface check.
var _ Launcher = (*ExecLauncher)(nil)

// Argv builds the server command line. The lab process runs as root inside
// the container; the server refuses to start as root without the explicit
// flag, so it is always passed.
func Argv() []string {
	return []string{"jupyter", "lab", "--allow-root"}
}

// NewExecLauncher returns a Launcher that resolves the server binary on
// PATH and replaces the current process with it.
func NewExecLauncher() *ExecLauncher {
	return &ExecLauncher{
		lookPath: exec.LookPath,
		execFn:   sysExec,
	}
}

// Launch resolves argv[0] and replaces the current process. The provided
// env becomes the server's entire environment.
func (l *ExecLauncher) Launch(ctx context.Context, argv []string, env []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(argv) == 0 {
		return errors.New("empty server command line")
	}

	path, err := l.lookPath(argv[0])
	if err != nil {
		return fmt.Errorf("server binary %q not found on PATH: %w", argv[0], err)
	}

	// Does not return on success.
	if err := l.execFn(path, argv, env); err != nil {
		return fmt.Errorf("failed to replace process with %q: %w", path, err)
	}
	return nil
}
