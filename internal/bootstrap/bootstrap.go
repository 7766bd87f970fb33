// SPDX-License-Identifier: MPL-2.0

package bootstrap

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"labboot/internal/config"
	"labboot/internal/envfile"
	"labboot/internal/hooks"
	"labboot/internal/issue"
	"labboot/internal/notebook"
	"labboot/internal/pip"
	"labboot/internal/testutil"
	"labboot/pkg/types"
)

type (
	// IdempotencyClass describes what re-running a step does.
	IdempotencyClass int

	// Step is one unit of boot work. Steps run in declaration order; the
	// first failure stops the boot.
	Step struct {
		// Name identifies the step in logs and errors.
		Name string
		// Phase is the lifecycle phase the step belongs to.
		Phase Phase
		// Check is the optional precondition. Returning false skips the
		// step with the given reason; an error fails the boot.
		Check func(ctx context.Context, r *Run) (bool, string, error)
		// Do applies the step's effect.
		Do func(ctx context.Context, r *Run) error
		// Class records whether repeating the step changes the outcome.
		Class IdempotencyClass
		// Optional steps log their failure and let the boot continue.
		Optional bool
	}

	// Run carries per-boot state through the steps. Every boot builds a
	// fresh Run; nothing here is process-global.
	Run struct {
		// Config is the boot configuration, fixed for the whole run.
		Config config.BootConfig
		// Settings holds the pairs loaded from the workspace settings file.
		Settings envfile.Settings
		// Env is the child environment under construction. The exec'd
		// server receives exactly this slice.
		Env []string
		// BootID correlates log lines from one boot. It has no other use.
		BootID string
		// Log is the boot logger with the boot ID attached.
		Log *log.Logger
	}

	// HookRunner abstracts boot hook execution.
	HookRunner interface {
		Run(ctx context.Context, path string, env []string) error
	}

	// Orchestrator drives a boot from settings load to process handover.
	Orchestrator struct {
		cfg       config.BootConfig
		steps     []Step
		machine   *StateMachine
		installer pip.Installer
		launcher  notebook.Launcher
		hooks     HookRunner
		logger    *log.Logger
		clock     testutil.Clock
		skipHooks bool
	}

	// Option configures an Orchestrator.
	Option func(*Orchestrator)
)

const (
	// Repeatable steps produce the same result on every boot.
	Repeatable IdempotencyClass = iota
	// Once steps matter on the first boot but stay safe to repeat.
	Once
)

// New returns an Orchestrator for the given configuration. Collaborators
// default to their production implementations; options replace them.
func New(cfg config.BootConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		machine: NewStateMachine(PhaseLoading),
		logger:  log.NewWithOptions(os.Stderr, log.Options{Prefix: "boot"}),
		clock:   testutil.RealClock{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.installer == nil {
		o.installer = pip.NewCLIInstaller(cfg.Installer.Binary)
	}
	if o.launcher == nil {
		o.launcher = notebook.NewExecLauncher()
	}
	if o.hooks == nil {
		o.hooks = hooks.NewRunner(hooks.WithWorkdir(cfg.Workspace.Dir.String()))
	}
	o.steps = o.bootSteps()
	return o
}

// WithInstaller replaces the package installer.
func WithInstaller(i pip.Installer) Option {
	return func(o *Orchestrator) { o.installer = i }
}

// WithLauncher replaces the server launcher.
func WithLauncher(l notebook.Launcher) Option {
	return func(o *Orchestrator) { o.launcher = l }
}

// WithHookRunner replaces the boot hook runner.
func WithHookRunner(r HookRunner) Option {
	return func(o *Orchestrator) { o.hooks = r }
}

// WithLogger replaces the boot logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock replaces the clock.
func WithClock(c testutil.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithSkipHooks disables the boot hook step.
func WithSkipHooks(skip bool) Option {
	return func(o *Orchestrator) { o.skipHooks = skip }
}

// Phase returns the current boot phase.
func (o *Orchestrator) Phase() Phase {
	return o.machine.Phase()
}

// Boot runs the boot sequence and hands the process over to the notebook
// server. On success it does not return: the launcher replaces the process
// image. Any return with a nil error means a non-replacing launcher was
// installed. The first failing step moves the phase to Failed and Boot
// returns that step's error.
func (o *Orchestrator) Boot(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("boot canceled: %w", ctx.Err())
	default:
	}

	started := o.clock.Now()
	r, err := o.newRun()
	if err != nil {
		return err
	}
	r.Log.Info("Boot starting",
		"workspace", r.Config.Workspace.Dir,
		"installer", o.installer.Name(),
		"pins", len(r.Config.Pins))

	for _, step := range o.steps {
		if o.machine.Phase() != step.Phase {
			if err := o.machine.Transition(step.Phase); err != nil {
				return o.fail(r, err)
			}
			r.Log.Info("Phase entered", "phase", step.Phase)
		}

		if step.Check != nil {
			ok, reason, err := step.Check(ctx, r)
			if err != nil {
				r.Log.Error("Step precondition failed", "step", step.Name, "error", err)
				return o.fail(r, fmt.Errorf("step %q precondition: %w", step.Name, err))
			}
			if !ok {
				r.Log.Info("Step skipped", "step", step.Name, "reason", reason)
				continue
			}
		}

		r.Log.Debug("Step starting", "step", step.Name, "phase", step.Phase)
		if err := step.Do(ctx, r); err != nil {
			if step.Optional {
				r.Log.Warn("Optional step failed, continuing", "step", step.Name, "error", err)
				continue
			}
			r.Log.Error("Step failed", "step", step.Name, "phase", step.Phase, "error", err)
			return o.fail(r, err)
		}
	}

	argv := notebook.Argv()
	r.Log.Info("Handing over to the notebook server",
		"argv", strings.Join(argv, " "),
		"port", r.Config.Server.Port,
		"elapsed", o.clock.Since(started))

	if err := o.launcher.Launch(ctx, argv, r.Env); err != nil {
		r.Log.Error("Server launch failed", "error", err)
		return o.fail(r, issue.NewErrorContext().
			WithOperation("launch notebook server").
			WithResource(argv[0]).
			WithSuggestion("Check that the server is installed in the image").
			WithSuggestion("Verify PATH inside the container includes the server binary").
			Wrap(err).
			BuildError())
	}

	// Only a non-replacing launcher returns success; the exec launcher
	// hands the process over and never gets here.
	_ = o.machine.Transition(PhaseServing)
	return nil
}

// fail moves the machine to Failed and returns err unchanged.
func (o *Orchestrator) fail(r *Run, err error) error {
	if terr := o.machine.Transition(PhaseFailed); terr != nil {
		r.Log.Error("Phase transition rejected", "error", terr)
	}
	return err
}

// newRun builds the per-boot state.
func (o *Orchestrator) newRun() (*Run, error) {
	id, err := newBootID()
	if err != nil {
		return nil, err
	}
	return &Run{
		Config:   o.cfg,
		Settings: envfile.NewSettings(),
		Env:      os.Environ(),
		BootID:   id,
		Log:      o.logger.With("boot_id", id),
	}, nil
}

// newBootID generates a random correlation id for one boot's log lines.
func newBootID() (string, error) {
	idBytes := make([]byte, 8)
	if _, err := rand.Read(idBytes); err != nil {
		return "", fmt.Errorf("failed to generate boot id: %w", err)
	}
	return hex.EncodeToString(idBytes), nil
}

// bootSteps returns the boot sequence in execution order.
func (o *Orchestrator) bootSteps() []Step {
	return []Step{
		o.loadSettingsStep(),
		o.scaffoldWorkspaceStep(),
		o.installWorkspacePackageStep(),
		o.applyPinsStep(),
		o.runHooksStep(),
		o.writeServerConfigStep(),
	}
}

// loadSettingsStep reads the workspace settings file and overlays it onto
// the child environment. An absent file is a notice, not an error; malformed
// lines are skipped with a warning each.
func (o *Orchestrator) loadSettingsStep() Step {
	return Step{
		Name:  "load settings",
		Phase: PhaseLoading,
		Class: Repeatable,
		Do: func(_ context.Context, r *Run) error {
			path := r.Config.Workspace.SettingsPath().String()
			result, err := envfile.Load(path)
			if err != nil {
				return issue.NewErrorContext().
					WithOperation("load boot settings").
					WithResource(path).
					WithSuggestion("Check the settings file permissions").
					WithSuggestion("Remove the file to boot with defaults").
					Wrap(err).
					BuildError()
			}

			if !result.Found {
				r.Log.Info("No settings file, continuing with defaults", "path", path)
			}
			for _, p := range result.Problems {
				r.Log.Warn("Skipped malformed settings line",
					"path", path, "line", p.Line, "reason", p.Reason)
			}

			r.Settings = result.Settings
			r.Env = result.Settings.Apply(r.Env)
			if result.Found {
				r.Log.Info("Settings loaded", "path", path, "keys", result.Settings.Len())
			}
			return nil
		},
	}
}

// scaffoldWorkspaceStep creates the conventional workspace directories.
func (o *Orchestrator) scaffoldWorkspaceStep() Step {
	return Step{
		Name:  "scaffold workspace",
		Phase: PhaseLoading,
		Class: Repeatable,
		Check: func(_ context.Context, r *Run) (bool, string, error) {
			if !r.Config.Workspace.AutoCreateDirs {
				return false, "auto_create_dirs is disabled", nil
			}
			return true, "", nil
		},
		Do: func(_ context.Context, r *Run) error {
			for _, sub := range []string{"config", "logs", "data"} {
				dir := r.Config.Workspace.Dir.Join(sub).String()
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create workspace directory %q: %w", dir, err)
				}
			}
			return nil
		},
	}
}

// installWorkspacePackageStep installs the workspace package in editable
// mode when its directory exists. A workspace without a package directory
// is normal; the step skips with a notice.
func (o *Orchestrator) installWorkspacePackageStep() Step {
	return Step{
		Name:  "install workspace package",
		Phase: PhaseProvisioning,
		Class: Once,
		Check: func(_ context.Context, r *Run) (bool, string, error) {
			dir := r.Config.Workspace.PackagePath().String()
			info, err := os.Stat(dir)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return false, fmt.Sprintf("no package directory at %s", dir), nil
				}
				return false, "", fmt.Errorf("failed to stat package directory %q: %w", dir, err)
			}
			if !info.IsDir() {
				return false, fmt.Sprintf("%s is not a directory", dir), nil
			}
			return true, "", nil
		},
		Do: func(ctx context.Context, r *Run) error {
			dir := r.Config.Workspace.PackagePath().String()
			r.Log.Info("Installing workspace package", "dir", dir)
			if err := o.installer.InstallEditable(ctx, dir, r.Env); err != nil {
				return issue.NewErrorContext().
					WithOperation("install workspace package").
					WithResource(dir).
					WithSuggestion("Check that the directory contains a valid package (pyproject.toml or setup.py)").
					WithSuggestion("Read the installer output above for the root cause").
					Wrap(err).
					BuildError()
			}
			return nil
		},
	}
}

// applyPinsStep force-reinstalls every configured version pin. This runs on
// every boot: an editable install or a hook may have drifted a dependency,
// and the pins pull it back.
func (o *Orchestrator) applyPinsStep() Step {
	return Step{
		Name:  "apply version pins",
		Phase: PhaseProvisioning,
		Class: Repeatable,
		Check: func(_ context.Context, r *Run) (bool, string, error) {
			if len(r.Config.Pins) == 0 {
				return false, "no pins configured", nil
			}
			return true, "", nil
		},
		Do: func(ctx context.Context, r *Run) error {
			pins := make([]string, len(r.Config.Pins))
			for i, p := range r.Config.Pins {
				pins[i] = p.String()
			}
			r.Log.Info("Applying version pins", "pins", strings.Join(pins, " "))
			if err := o.installer.ForceReinstall(ctx, r.Config.Pins, r.Env); err != nil {
				return issue.NewErrorContext().
					WithOperation("apply version pins").
					WithResource(strings.Join(pins, " ")).
					WithSuggestion("Read the installer output above for the root cause").
					WithSuggestion("Check network access to the package index").
					Wrap(err).
					BuildError()
			}
			return nil
		},
	}
}

// runHooksStep executes the boot hook scripts in lexical order. Hooks see
// the same child environment the server will.
func (o *Orchestrator) runHooksStep() Step {
	return Step{
		Name:  "run boot hooks",
		Phase: PhaseProvisioning,
		Class: Repeatable,
		Check: func(_ context.Context, r *Run) (bool, string, error) {
			if o.skipHooks {
				return false, "hooks disabled on the command line", nil
			}
			dir := r.Config.Workspace.HooksPath().String()
			paths, err := hooks.Discover(dir)
			if err != nil {
				return false, "", err
			}
			if len(paths) == 0 {
				return false, fmt.Sprintf("no hook scripts under %s", dir), nil
			}
			return true, "", nil
		},
		Do: func(ctx context.Context, r *Run) error {
			dir := r.Config.Workspace.HooksPath().String()
			paths, err := hooks.Discover(dir)
			if err != nil {
				return err
			}
			for _, path := range paths {
				r.Log.Info("Running boot hook", "hook", path)
				if err := o.hooks.Run(ctx, path, r.Env); err != nil {
					return issue.NewErrorContext().
						WithOperation("run boot hooks").
						WithResource(path).
						WithSuggestion("Read the hook output above for the root cause").
						WithSuggestion("Remove or fix the failing script; hooks run in lexical order").
						Wrap(err).
						BuildError()
				}
			}
			return nil
		},
	}
}

// writeServerConfigStep regenerates the notebook server runtime config and
// writes it over whatever exists. Manual edits to the config file do not
// survive a boot.
func (o *Orchestrator) writeServerConfigStep() Step {
	return Step{
		Name:  "write server config",
		Phase: PhaseConfiguringRuntime,
		Class: Repeatable,
		Do: func(_ context.Context, r *Run) error {
			dir, err := r.Config.Server.ResolveConfigDir()
			if err != nil {
				return err
			}

			tokenEnv := r.Config.Server.TokenEnv.String()
			token := types.AccessToken(lastEnvValue(r.Env, tokenEnv))
			if token.IsZero() {
				r.Log.Warn("Access token is empty, the server will accept unauthenticated connections",
					"env", tokenEnv)
			}

			serverCfg := notebook.ServerConfig{
				BindAddress:       r.Config.Server.BindAddress,
				Port:              r.Config.Server.Port,
				Token:             token,
				AllowRemoteAccess: true,
				RootDir:           r.Config.Workspace.Dir,
			}

			path, err := notebook.WriteConfig(dir, serverCfg)
			if err != nil {
				return issue.NewErrorContext().
					WithOperation("write server runtime config").
					WithResource(dir).
					WithSuggestion("Check that the config directory is writable").
					Wrap(err).
					BuildError()
			}
			r.Log.Info("Runtime config written", "path", path)
			return nil
		},
	}
}

// lastEnvValue returns the value of key in env, honoring the os/exec rule
// that the last occurrence of a duplicated key wins.
func lastEnvValue(env []string, key string) string {
	prefix := key + "="
	for i := len(env) - 1; i >= 0; i-- {
		if strings.HasPrefix(env[i], prefix) {
			return strings.TrimPrefix(env[i], prefix)
		}
	}
	return ""
}
