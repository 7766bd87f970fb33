// SPDX-License-Identifier: MPL-2.0

// Package pip drives the Python package installer as an opaque external
// tool. labboot never parses or rewraps the tool's output: stdout and
// stderr stream through untouched, and a non-zero exit surfaces as a
// ToolError carrying the tool's own exit code.
package pip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"labboot/pkg/types"
)

// ErrToolFailed is the sentinel error wrapped by ToolError.
var ErrToolFailed = errors.New("external tool failed")

// ErrInvalidPin is the sentinel error wrapped by InvalidPinError.
var ErrInvalidPin = errors.New("invalid version pin")

type (
	// Pin is an exact package==version requirement applied at every boot.
	// Pins are curated at image build time; the forced reinstall keeps the
	// environment on the pinned versions even when a dependency of a later
	// install drifted them.
	Pin struct {
		Name    string `json:"name" mapstructure:"name"`
		Version string `json:"version" mapstructure:"version"`
	}

	// InvalidPinError is returned when a Pin has an empty or malformed
	// name or version.
	InvalidPinError struct {
		Pin    Pin
		Reason string
	}

	// ToolError reports a tool that ran and exited non-zero. The exit code
	// is the tool's own and propagates to the labboot process exit status.
	ToolError struct {
		Tool     string
		Args     []string
		ExitCode types.ExitCode
	}

	// Installer abstracts the package installer so the orchestrator can be
	// tested without a Python toolchain. The env parameter is the complete
	// child environment for the call; nil means inherit the process env.
	Installer interface {
		// Name returns the installer binary name for log and error messages.
		Name() string
		// Available reports whether the installer binary is on PATH.
		Available() bool
		// Version returns the installer's self-reported version line.
		Version(ctx context.Context) (string, error)
		// InstallEditable installs the package rooted at dir in editable mode.
		InstallEditable(ctx context.Context, dir string, env []string) error
		// ForceReinstall reinstalls every pin at its exact version, even when
		// a satisfying version is already present.
		ForceReinstall(ctx context.Context, pins []Pin, env []string) error
	}

	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// This allows injection of mock implementations for testing.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// CLIInstaller runs a pip-compatible binary.
	CLIInstaller struct {
		binary      string
		execCommand ExecCommandFunc
		stdout      io.Writer
		stderr      io.Writer
	}

	// Option configures a CLIInstaller.
	Option func(*CLIInstaller)
)

// Compile-time interface check.
var _ Installer = (*CLIInstaller)(nil)

// String renders the pin in requirement syntax ("name==version").
func (p Pin) String() string { return p.Name + "==" + p.Version }

// Validate returns an error if the pin cannot be rendered as a requirement.
func (p Pin) Validate() error {
	if p.Name == "" {
		return &InvalidPinError{Pin: p, Reason: "empty package name"}
	}
	if strings.ContainsAny(p.Name, " \t=") {
		return &InvalidPinError{Pin: p, Reason: "package name contains whitespace or '='"}
	}
	if p.Version == "" {
		return &InvalidPinError{Pin: p, Reason: "empty version"}
	}
	if strings.ContainsAny(p.Version, " \t=") {
		return &InvalidPinError{Pin: p, Reason: "version contains whitespace or '='"}
	}
	return nil
}

// Error implements the error interface for InvalidPinError.
func (e *InvalidPinError) Error() string {
	return fmt.Sprintf("invalid version pin %q==%q: %s", e.Pin.Name, e.Pin.Version, e.Reason)
}

// Unwrap returns ErrInvalidPin for errors.Is() compatibility.
func (e *InvalidPinError) Unwrap() error { return ErrInvalidPin }

// Error implements the error interface for ToolError.
func (e *ToolError) Error() string {
	return fmt.Sprintf("%s %s: exited with code %d", e.Tool, strings.Join(e.Args, " "), e.ExitCode)
}

// Unwrap returns ErrToolFailed for errors.Is() compatibility.
func (e *ToolError) Unwrap() error { return ErrToolFailed }

// NewCLIInstaller returns an installer driving the given binary ("pip",
// "pip3", or an absolute path).
func NewCLIInstaller(binary string, opts ...Option) *CLIInstaller {
	i := &CLIInstaller{
		binary:      binary,
		execCommand: exec.CommandContext,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// WithExecCommand overrides how commands are created. Tests use this to
// record invocations and simulate exit codes.
func WithExecCommand(fn ExecCommandFunc) Option {
	return func(i *CLIInstaller) { i.execCommand = fn }
}

// WithStdout redirects the tool's stdout passthrough.
func WithStdout(w io.Writer) Option {
	return func(i *CLIInstaller) { i.stdout = w }
}

// WithStderr redirects the tool's stderr passthrough.
func WithStderr(w io.Writer) Option {
	return func(i *CLIInstaller) { i.stderr = w }
}

// Name returns the installer binary name.
func (i *CLIInstaller) Name() string { return i.binary }

// Available reports whether the installer binary is on PATH.
func (i *CLIInstaller) Available() bool {
	_, err := exec.LookPath(i.binary)
	return err == nil
}

// Version returns the installer's trimmed version line.
func (i *CLIInstaller) Version(ctx context.Context) (string, error) {
	cmd := i.execCommand(ctx, i.binary, "--version")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get %s version: %w", i.binary, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// InstallEditable installs the package rooted at dir in editable mode
// ("pip install -e dir").
func (i *CLIInstaller) InstallEditable(ctx context.Context, dir string, env []string) error {
	return i.run(ctx, env, "install", "-e", dir)
}

// ForceReinstall applies every pin in a single invocation
// ("pip install --force-reinstall --no-deps name==version ...").
// --no-deps keeps an exact, curated pin from dragging the resolver over the
// rest of the environment.
func (i *CLIInstaller) ForceReinstall(ctx context.Context, pins []Pin, env []string) error {
	if len(pins) == 0 {
		return nil
	}
	args := []string{"install", "--force-reinstall", "--no-deps"}
	for _, p := range pins {
		if err := p.Validate(); err != nil {
			return err
		}
		args = append(args, p.String())
	}
	return i.run(ctx, env, args...)
}

// run executes the installer with the given args, streaming output through
// and mapping a non-zero exit to a ToolError.
func (i *CLIInstaller) run(ctx context.Context, env []string, args ...string) error {
	cmd := i.execCommand(ctx, i.binary, args...)
	cmd.Stdout = i.stdout
	cmd.Stderr = i.stderr
	if env != nil {
		cmd.Env = env
	}

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ToolError{
				Tool:     i.binary,
				Args:     args,
				ExitCode: types.ExitCode(exitErr.ExitCode()),
			}
		}
		return fmt.Errorf("failed to run %s: %w", i.binary, err)
	}
	return nil
}
