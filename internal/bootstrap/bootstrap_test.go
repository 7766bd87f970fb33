// SPDX-License-Identifier: MPL-2.0

package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"labboot/internal/config"
	"labboot/internal/hooks"
	"labboot/internal/notebook"
	"labboot/internal/pip"
	"labboot/internal/testutil"
	"labboot/pkg/types"
)

type fakeInstaller struct {
	editableDirs []string
	editableErr  error
	pinCalls     [][]pip.Pin
	pinEnvs      [][]string
	pinsErr      error
}

func (f *fakeInstaller) Name() string    { return "fake-pip" }
func (f *fakeInstaller) Available() bool { return true }

func (f *fakeInstaller) Version(context.Context) (string, error) {
	return "fake-pip 0.0", nil
}

func (f *fakeInstaller) InstallEditable(_ context.Context, dir string, _ []string) error {
	f.editableDirs = append(f.editableDirs, dir)
	return f.editableErr
}

func (f *fakeInstaller) ForceReinstall(_ context.Context, pins []pip.Pin, env []string) error {
	f.pinCalls = append(f.pinCalls, pins)
	f.pinEnvs = append(f.pinEnvs, env)
	return f.pinsErr
}

type fakeLauncher struct {
	called bool
	argv   []string
	env    []string
	err    error
}

func (f *fakeLauncher) Launch(_ context.Context, argv []string, env []string) error {
	f.called = true
	f.argv = argv
	f.env = env
	return f.err
}

type fakeHookRunner struct {
	paths []string
	envs  [][]string
	err   error
}

func (f *fakeHookRunner) Run(_ context.Context, path string, env []string) error {
	f.paths = append(f.paths, path)
	f.envs = append(f.envs, env)
	return f.err
}

// testBootConfig returns a valid config rooted in temp directories.
func testBootConfig(t *testing.T) config.BootConfig {
	t.Helper()
	cfg := *config.DefaultConfig()
	cfg.Workspace.Dir = types.FilesystemPath(t.TempDir())
	cfg.Server.ConfigDir = types.FilesystemPath(filepath.Join(t.TempDir(), "jupyter"))
	return cfg
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func TestBoot_HappyPath(t *testing.T) {
	t.Parallel()
	cfg := testBootConfig(t)
	ws := cfg.Workspace.Dir.String()

	testutil.MustMkdirAll(t, filepath.Join(ws, "config"), 0o755)
	testutil.MustWriteFile(t, filepath.Join(ws, "config", "lab.env"),
		[]byte("JUPYTER_TOKEN=s3cret\nLAB_MODE=teaching\n"), 0o644)
	testutil.MustMkdirAll(t, filepath.Join(ws, "project"), 0o755)
	testutil.MustMkdirAll(t, filepath.Join(ws, "config", "boot.d"), 0o755)
	testutil.MustWriteFile(t, filepath.Join(ws, "config", "boot.d", "10-init.sh"),
		[]byte("echo init\n"), 0o755)

	installer := &fakeInstaller{}
	launcher := &fakeLauncher{}
	hookRunner := &fakeHookRunner{}

	o := New(cfg,
		WithInstaller(installer),
		WithLauncher(launcher),
		WithHookRunner(hookRunner),
		WithLogger(quietLogger()),
	)

	if err := o.Boot(context.Background()); err != nil {
		t.Fatalf("Boot() returned error: %v", err)
	}
	if o.Phase() != PhaseServing {
		t.Errorf("Phase = %s, want Serving", o.Phase())
	}

	// Editable install saw the package directory.
	wantPkg := filepath.Join(ws, "project")
	if len(installer.editableDirs) != 1 || installer.editableDirs[0] != wantPkg {
		t.Errorf("editable install dirs = %v, want [%s]", installer.editableDirs, wantPkg)
	}

	// Pins applied once, in configured order.
	if len(installer.pinCalls) != 1 {
		t.Fatalf("ForceReinstall calls = %d, want 1", len(installer.pinCalls))
	}
	if installer.pinCalls[0][0].Name != "numpy" {
		t.Errorf("first pin = %s, want numpy", installer.pinCalls[0][0].Name)
	}

	// The hook ran with the overlaid environment.
	if len(hookRunner.paths) != 1 || !strings.HasSuffix(hookRunner.paths[0], "10-init.sh") {
		t.Fatalf("hook paths = %v, want one run of 10-init.sh", hookRunner.paths)
	}
	if got := lastEnvValue(hookRunner.envs[0], "LAB_MODE"); got != "teaching" {
		t.Errorf("LAB_MODE in hook env = %q, want teaching", got)
	}

	// The launcher received the server argv and the overlaid environment.
	if !launcher.called {
		t.Fatal("launcher was not called")
	}
	wantArgv := []string{"jupyter", "lab", "--allow-root"}
	if !slices.Equal(launcher.argv, wantArgv) {
		t.Errorf("launcher argv = %v, want %v", launcher.argv, wantArgv)
	}
	if got := lastEnvValue(launcher.env, "JUPYTER_TOKEN"); got != "s3cret" {
		t.Errorf("JUPYTER_TOKEN in child env = %q, want s3cret", got)
	}
	if got := lastEnvValue(launcher.env, "LAB_MODE"); got != "teaching" {
		t.Errorf("LAB_MODE in child env = %q, want teaching", got)
	}

	// The runtime config carries the contract fields.
	data, err := os.ReadFile(filepath.Join(cfg.Server.ConfigDir.String(), notebook.ConfigFileName))
	if err != nil {
		t.Fatalf("runtime config not written: %v", err)
	}
	var doc map[string]map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("runtime config is not valid JSON: %v", err)
	}
	serverApp := doc["ServerApp"]
	if serverApp["ip"] != "0.0.0.0" {
		t.Errorf("ip = %v, want 0.0.0.0", serverApp["ip"])
	}
	if serverApp["port"] != float64(8888) {
		t.Errorf("port = %v, want 8888", serverApp["port"])
	}
	if serverApp["allow_remote_access"] != true {
		t.Errorf("allow_remote_access = %v, want true", serverApp["allow_remote_access"])
	}
	if serverApp["root_dir"] != ws {
		t.Errorf("root_dir = %v, want %s", serverApp["root_dir"], ws)
	}
	if doc["IdentityProvider"]["token"] != "s3cret" {
		t.Errorf("token = %v, want s3cret", doc["IdentityProvider"]["token"])
	}
}

func TestBoot_MissingSettingsFile(t *testing.T) {
	t.Parallel()
	cfg := testBootConfig(t)

	var buf bytes.Buffer
	launcher := &fakeLauncher{}
	o := New(cfg,
		WithInstaller(&fakeInstaller{}),
		WithLauncher(launcher),
		WithHookRunner(&fakeHookRunner{}),
		WithLogger(log.New(&buf)),
	)

	if err := o.Boot(context.Background()); err != nil {
		t.Fatalf("Boot() returned error: %v", err)
	}
	if o.Phase() != PhaseServing {
		t.Errorf("Phase = %s, want Serving", o.Phase())
	}
	if !launcher.called {
		t.Error("launcher was not called")
	}
	if !strings.Contains(buf.String(), "No settings file") {
		t.Errorf("expected a missing-settings notice in the log, got:\n%s", buf.String())
	}
}

func TestBoot_MissingWorkspacePackage(t *testing.T) {
	t.Parallel()
	cfg := testBootConfig(t)

	var buf bytes.Buffer
	installer := &fakeInstaller{}
	o := New(cfg,
		WithInstaller(installer),
		WithLauncher(&fakeLauncher{}),
		WithHookRunner(&fakeHookRunner{}),
		WithLogger(log.New(&buf)),
	)

	if err := o.Boot(context.Background()); err != nil {
		t.Fatalf("Boot() returned error: %v", err)
	}
	if o.Phase() != PhaseServing {
		t.Errorf("Phase = %s, want Serving", o.Phase())
	}

	if len(installer.editableDirs) != 0 {
		t.Errorf("editable install should be skipped, got calls for %v", installer.editableDirs)
	}
	if len(installer.pinCalls) != 1 {
		t.Errorf("pins should still be applied, got %d calls", len(installer.pinCalls))
	}
	if !strings.Contains(buf.String(), "no package directory") {
		t.Errorf("expected a skip reason in the log, got:\n%s", buf.String())
	}
}

func TestBoot_PinFailurePropagatesExitCode(t *testing.T) {
	t.Parallel()
	cfg := testBootConfig(t)

	installer := &fakeInstaller{
		pinsErr: &pip.ToolError{Tool: "pip", Args: []string{"install"}, ExitCode: 7},
	}
	launcher := &fakeLauncher{}
	o := New(cfg,
		WithInstaller(installer),
		WithLauncher(launcher),
		WithHookRunner(&fakeHookRunner{}),
		WithLogger(quietLogger()),
	)

	err := o.Boot(context.Background())
	if err == nil {
		t.Fatal("Boot() should fail when a pin install fails")
	}

	var toolErr *pip.ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("error chain should contain *pip.ToolError, got: %v", err)
	}
	if toolErr.ExitCode != 7 {
		t.Errorf("ExitCode = %d, want 7", toolErr.ExitCode)
	}

	if o.Phase() != PhaseFailed {
		t.Errorf("Phase = %s, want Failed", o.Phase())
	}
	if launcher.called {
		t.Error("launcher must not be called after a failed step")
	}
	configPath := filepath.Join(cfg.Server.ConfigDir.String(), notebook.ConfigFileName)
	if _, statErr := os.Stat(configPath); !errors.Is(statErr, fs.ErrNotExist) {
		t.Error("runtime config must not be written after a provisioning failure")
	}
}

func TestBoot_EditableInstallFailureStopsBoot(t *testing.T) {
	t.Parallel()
	cfg := testBootConfig(t)
	testutil.MustMkdirAll(t, cfg.Workspace.PackagePath().String(), 0o755)

	installer := &fakeInstaller{
		editableErr: &pip.ToolError{Tool: "pip", Args: []string{"install", "-e"}, ExitCode: 2},
	}
	o := New(cfg,
		WithInstaller(installer),
		WithLauncher(&fakeLauncher{}),
		WithHookRunner(&fakeHookRunner{}),
		WithLogger(quietLogger()),
	)

	err := o.Boot(context.Background())
	if err == nil {
		t.Fatal("Boot() should fail when the editable install fails")
	}
	if !errors.Is(err, pip.ErrToolFailed) {
		t.Errorf("error should wrap pip.ErrToolFailed, got: %v", err)
	}
	if len(installer.pinCalls) != 0 {
		t.Error("pins must not be applied after the editable install failed")
	}
	if o.Phase() != PhaseFailed {
		t.Errorf("Phase = %s, want Failed", o.Phase())
	}
}

func TestBoot_HookFailureIsFatal(t *testing.T) {
	t.Parallel()
	cfg := testBootConfig(t)
	hooksDir := cfg.Workspace.HooksPath().String()
	testutil.MustMkdirAll(t, hooksDir, 0o755)
	testutil.MustWriteFile(t, filepath.Join(hooksDir, "10-broken.sh"), []byte("exit 3\n"), 0o755)

	launcher := &fakeLauncher{}
	o := New(cfg,
		WithInstaller(&fakeInstaller{}),
		WithLauncher(launcher),
		WithHookRunner(&fakeHookRunner{err: &hooks.HookError{Hook: "10-broken.sh", ExitCode: 3}}),
		WithLogger(quietLogger()),
	)

	err := o.Boot(context.Background())
	if err == nil {
		t.Fatal("Boot() should fail when a hook fails")
	}
	if !errors.Is(err, hooks.ErrHookFailed) {
		t.Errorf("error should wrap hooks.ErrHookFailed, got: %v", err)
	}
	if o.Phase() != PhaseFailed {
		t.Errorf("Phase = %s, want Failed", o.Phase())
	}
	if launcher.called {
		t.Error("launcher must not be called after a failed hook")
	}
	configPath := filepath.Join(cfg.Server.ConfigDir.String(), notebook.ConfigFileName)
	if _, statErr := os.Stat(configPath); !errors.Is(statErr, fs.ErrNotExist) {
		t.Error("runtime config must not be written after a failed hook")
	}
}

func TestBoot_SkipHooks(t *testing.T) {
	t.Parallel()
	cfg := testBootConfig(t)
	hooksDir := cfg.Workspace.HooksPath().String()
	testutil.MustMkdirAll(t, hooksDir, 0o755)
	testutil.MustWriteFile(t, filepath.Join(hooksDir, "10-init.sh"), []byte("echo hi\n"), 0o755)

	hookRunner := &fakeHookRunner{}
	o := New(cfg,
		WithInstaller(&fakeInstaller{}),
		WithLauncher(&fakeLauncher{}),
		WithHookRunner(hookRunner),
		WithLogger(quietLogger()),
		WithSkipHooks(true),
	)

	if err := o.Boot(context.Background()); err != nil {
		t.Fatalf("Boot() returned error: %v", err)
	}
	if len(hookRunner.paths) != 0 {
		t.Errorf("hooks should be skipped, got runs for %v", hookRunner.paths)
	}
	if o.Phase() != PhaseServing {
		t.Errorf("Phase = %s, want Serving", o.Phase())
	}
}

func TestBoot_HooksRunInLexicalOrder(t *testing.T) {
	t.Parallel()
	cfg := testBootConfig(t)
	hooksDir := cfg.Workspace.HooksPath().String()
	testutil.MustMkdirAll(t, hooksDir, 0o755)
	testutil.MustWriteFile(t, filepath.Join(hooksDir, "20-second.sh"), []byte("echo 2\n"), 0o755)
	testutil.MustWriteFile(t, filepath.Join(hooksDir, "10-first.sh"), []byte("echo 1\n"), 0o755)

	hookRunner := &fakeHookRunner{}
	o := New(cfg,
		WithInstaller(&fakeInstaller{}),
		WithLauncher(&fakeLauncher{}),
		WithHookRunner(hookRunner),
		WithLogger(quietLogger()),
	)

	if err := o.Boot(context.Background()); err != nil {
		t.Fatalf("Boot() returned error: %v", err)
	}
	if len(hookRunner.paths) != 2 {
		t.Fatalf("hook runs = %d, want 2", len(hookRunner.paths))
	}
	if !strings.HasSuffix(hookRunner.paths[0], "10-first.sh") ||
		!strings.HasSuffix(hookRunner.paths[1], "20-second.sh") {
		t.Errorf("hooks ran out of order: %v", hookRunner.paths)
	}
}

func TestBoot_LaunchFailure(t *testing.T) {
	t.Parallel()
	cfg := testBootConfig(t)

	launcher := &fakeLauncher{err: errors.New("exec format error")}
	o := New(cfg,
		WithInstaller(&fakeInstaller{}),
		WithLauncher(launcher),
		WithHookRunner(&fakeHookRunner{}),
		WithLogger(quietLogger()),
	)

	err := o.Boot(context.Background())
	if err == nil {
		t.Fatal("Boot() should fail when the launcher fails")
	}
	if !strings.Contains(err.Error(), "launch notebook server") {
		t.Errorf("error should name the launch operation, got: %v", err)
	}
	if o.Phase() != PhaseFailed {
		t.Errorf("Phase = %s, want Failed", o.Phase())
	}

	// The config write happened before the launch attempt.
	configPath := filepath.Join(cfg.Server.ConfigDir.String(), notebook.ConfigFileName)
	if _, statErr := os.Stat(configPath); statErr != nil {
		t.Errorf("runtime config should exist after ConfiguringRuntime: %v", statErr)
	}
}

func TestBoot_ContextCanceled(t *testing.T) {
	t.Parallel()
	cfg := testBootConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := New(cfg,
		WithInstaller(&fakeInstaller{}),
		WithLauncher(&fakeLauncher{}),
		WithHookRunner(&fakeHookRunner{}),
		WithLogger(quietLogger()),
	)

	err := o.Boot(ctx)
	if err == nil {
		t.Fatal("Boot() should fail on a canceled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error should wrap context.Canceled, got: %v", err)
	}
	if o.Phase() != PhaseLoading {
		t.Errorf("Phase = %s, want Loading (nothing started)", o.Phase())
	}
}

func TestBoot_MalformedSettingsLinesAreWarnings(t *testing.T) {
	t.Parallel()
	cfg := testBootConfig(t)
	ws := cfg.Workspace.Dir.String()
	testutil.MustMkdirAll(t, filepath.Join(ws, "config"), 0o755)
	testutil.MustWriteFile(t, filepath.Join(ws, "config", "lab.env"),
		[]byte("GOOD_KEY=value\nTOTALLY BROKEN LINE\n2BAD=starts-with-digit\n"), 0o644)

	var buf bytes.Buffer
	launcher := &fakeLauncher{}
	o := New(cfg,
		WithInstaller(&fakeInstaller{}),
		WithLauncher(launcher),
		WithHookRunner(&fakeHookRunner{}),
		WithLogger(log.New(&buf)),
	)

	if err := o.Boot(context.Background()); err != nil {
		t.Fatalf("Boot() returned error: %v", err)
	}
	if o.Phase() != PhaseServing {
		t.Errorf("Phase = %s, want Serving", o.Phase())
	}
	if !strings.Contains(buf.String(), "Skipped malformed settings line") {
		t.Errorf("expected malformed-line warnings in the log, got:\n%s", buf.String())
	}
	if got := lastEnvValue(launcher.env, "GOOD_KEY"); got != "value" {
		t.Errorf("GOOD_KEY in child env = %q, want value", got)
	}
}

func TestBoot_ScaffoldCreatesWorkspaceDirs(t *testing.T) {
	t.Parallel()
	cfg := testBootConfig(t)
	ws := cfg.Workspace.Dir.String()

	o := New(cfg,
		WithInstaller(&fakeInstaller{}),
		WithLauncher(&fakeLauncher{}),
		WithHookRunner(&fakeHookRunner{}),
		WithLogger(quietLogger()),
	)
	if err := o.Boot(context.Background()); err != nil {
		t.Fatalf("Boot() returned error: %v", err)
	}

	for _, sub := range []string{"config", "logs", "data"} {
		info, err := os.Stat(filepath.Join(ws, sub))
		if err != nil {
			t.Errorf("scaffold dir %s missing: %v", sub, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("scaffold path %s is not a directory", sub)
		}
	}
}

func TestBoot_AutoCreateDirsDisabled(t *testing.T) {
	t.Parallel()
	cfg := testBootConfig(t)
	cfg.Workspace.AutoCreateDirs = false
	ws := cfg.Workspace.Dir.String()

	var buf bytes.Buffer
	o := New(cfg,
		WithInstaller(&fakeInstaller{}),
		WithLauncher(&fakeLauncher{}),
		WithHookRunner(&fakeHookRunner{}),
		WithLogger(log.New(&buf)),
	)
	if err := o.Boot(context.Background()); err != nil {
		t.Fatalf("Boot() returned error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(ws, "logs")); !errors.Is(err, fs.ErrNotExist) {
		t.Error("logs/ should not be created when auto_create_dirs is disabled")
	}
	if !strings.Contains(buf.String(), "auto_create_dirs is disabled") {
		t.Errorf("expected the skip reason in the log, got:\n%s", buf.String())
	}
}

func TestBoot_EmptyTokenWarns(t *testing.T) {
	t.Parallel()
	cfg := testBootConfig(t)
	// A token env name nothing in the test environment sets.
	cfg.Server.TokenEnv = "LABBOOT_TEST_TOKEN_THAT_IS_UNSET"

	var buf bytes.Buffer
	o := New(cfg,
		WithInstaller(&fakeInstaller{}),
		WithLauncher(&fakeLauncher{}),
		WithHookRunner(&fakeHookRunner{}),
		WithLogger(log.New(&buf)),
	)
	if err := o.Boot(context.Background()); err != nil {
		t.Fatalf("Boot() returned error: %v", err)
	}

	if !strings.Contains(buf.String(), "unauthenticated") {
		t.Errorf("expected an open-access warning in the log, got:\n%s", buf.String())
	}

	data, err := os.ReadFile(filepath.Join(cfg.Server.ConfigDir.String(), notebook.ConfigFileName))
	if err != nil {
		t.Fatalf("runtime config not written: %v", err)
	}
	var doc map[string]map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("runtime config is not valid JSON: %v", err)
	}
	if doc["IdentityProvider"]["token"] != "" {
		t.Errorf("token = %v, want empty string", doc["IdentityProvider"]["token"])
	}
}

func TestBoot_LogsPhaseProgression(t *testing.T) {
	t.Parallel()
	cfg := testBootConfig(t)

	var buf bytes.Buffer
	o := New(cfg,
		WithInstaller(&fakeInstaller{}),
		WithLauncher(&fakeLauncher{}),
		WithHookRunner(&fakeHookRunner{}),
		WithLogger(log.New(&buf)),
	)
	if err := o.Boot(context.Background()); err != nil {
		t.Fatalf("Boot() returned error: %v", err)
	}

	out := buf.String()
	provIdx := strings.Index(out, "phase=Provisioning")
	confIdx := strings.Index(out, "phase=ConfiguringRuntime")
	if provIdx == -1 || confIdx == -1 {
		t.Fatalf("expected phase progression in the log, got:\n%s", out)
	}
	if provIdx > confIdx {
		t.Error("Provisioning should be logged before ConfiguringRuntime")
	}
}

func TestBootStepsDeclarationOrder(t *testing.T) {
	t.Parallel()
	o := New(testBootConfig(t),
		WithInstaller(&fakeInstaller{}),
		WithLauncher(&fakeLauncher{}),
		WithHookRunner(&fakeHookRunner{}),
		WithLogger(quietLogger()),
	)

	wantNames := []string{
		"load settings",
		"scaffold workspace",
		"install workspace package",
		"apply version pins",
		"run boot hooks",
		"write server config",
	}
	if len(o.steps) != len(wantNames) {
		t.Fatalf("steps = %d, want %d", len(o.steps), len(wantNames))
	}
	wantPhases := []Phase{
		PhaseLoading, PhaseLoading,
		PhaseProvisioning, PhaseProvisioning, PhaseProvisioning,
		PhaseConfiguringRuntime,
	}
	for i, s := range o.steps {
		if s.Name != wantNames[i] {
			t.Errorf("steps[%d].Name = %q, want %q", i, s.Name, wantNames[i])
		}
		if s.Phase != wantPhases[i] {
			t.Errorf("steps[%d].Phase = %s, want %s", i, s.Phase, wantPhases[i])
		}
	}
}

func TestBoot_OptionalStepFailureContinues(t *testing.T) {
	t.Parallel()
	launcher := &fakeLauncher{}
	o := New(testBootConfig(t),
		WithInstaller(&fakeInstaller{}),
		WithLauncher(launcher),
		WithHookRunner(&fakeHookRunner{}),
		WithLogger(quietLogger()),
	)
	o.steps = []Step{
		{
			Name:     "flaky extra",
			Phase:    PhaseLoading,
			Optional: true,
			Do: func(context.Context, *Run) error {
				return errors.New("transient")
			},
		},
		{Name: "noop provision", Phase: PhaseProvisioning, Do: func(context.Context, *Run) error { return nil }},
		{Name: "noop configure", Phase: PhaseConfiguringRuntime, Do: func(context.Context, *Run) error { return nil }},
	}

	if err := o.Boot(context.Background()); err != nil {
		t.Fatalf("Boot() returned error: %v", err)
	}
	if !launcher.called {
		t.Error("launcher should be called after an optional step failure")
	}
	if o.Phase() != PhaseServing {
		t.Errorf("Phase = %s, want Serving", o.Phase())
	}
}

func TestBoot_CheckErrorFailsBoot(t *testing.T) {
	t.Parallel()
	o := New(testBootConfig(t),
		WithInstaller(&fakeInstaller{}),
		WithLauncher(&fakeLauncher{}),
		WithHookRunner(&fakeHookRunner{}),
		WithLogger(quietLogger()),
	)
	o.steps = []Step{
		{
			Name:  "probe",
			Phase: PhaseLoading,
			Check: func(context.Context, *Run) (bool, string, error) {
				return false, "", errors.New("probe exploded")
			},
			Do: func(context.Context, *Run) error { return nil },
		},
	}

	err := o.Boot(context.Background())
	if err == nil {
		t.Fatal("Boot() should fail when a precondition errors")
	}
	if !strings.Contains(err.Error(), `step "probe" precondition`) {
		t.Errorf("error should name the failing precondition, got: %v", err)
	}
	if o.Phase() != PhaseFailed {
		t.Errorf("Phase = %s, want Failed", o.Phase())
	}
}

func TestWriteServerConfigStepConverges(t *testing.T) {
	t.Parallel()
	cfg := testBootConfig(t)
	o := New(cfg,
		WithInstaller(&fakeInstaller{}),
		WithLauncher(&fakeLauncher{}),
		WithHookRunner(&fakeHookRunner{}),
		WithLogger(quietLogger()),
	)

	r := &Run{
		Config: cfg,
		Env:    []string{"JUPYTER_TOKEN=tok"},
		Log:    quietLogger(),
	}
	step := o.writeServerConfigStep()

	if err := step.Do(context.Background(), r); err != nil {
		t.Fatalf("first write returned error: %v", err)
	}
	configPath := filepath.Join(cfg.Server.ConfigDir.String(), notebook.ConfigFileName)
	first, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read runtime config: %v", err)
	}

	if err := step.Do(context.Background(), r); err != nil {
		t.Fatalf("second write returned error: %v", err)
	}
	second, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read runtime config: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Error("repeated config writes should produce byte-identical files")
	}
}

func TestLastEnvValue(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		env  []string
		key  string
		want string
	}{
		{"missing key", []string{"A=1"}, "B", ""},
		{"single occurrence", []string{"A=1", "B=2"}, "B", "2"},
		{"last occurrence wins", []string{"B=old", "A=1", "B=new"}, "B", "new"},
		{"prefix is not a match", []string{"BB=nope"}, "B", ""},
		{"empty value", []string{"B="}, "B", ""},
		{"value with equals", []string{"B=a=b"}, "B", "a=b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := lastEnvValue(tt.env, tt.key); got != tt.want {
				t.Errorf("lastEnvValue(%v, %q) = %q, want %q", tt.env, tt.key, got, tt.want)
			}
		})
	}
}

func TestNewBootID(t *testing.T) {
	t.Parallel()
	first, err := newBootID()
	if err != nil {
		t.Fatalf("newBootID() returned error: %v", err)
	}
	if len(first) != 16 {
		t.Errorf("boot id length = %d, want 16 hex chars", len(first))
	}
	second, err := newBootID()
	if err != nil {
		t.Fatalf("newBootID() returned error: %v", err)
	}
	if first == second {
		t.Error("consecutive boot ids should differ")
	}
}
