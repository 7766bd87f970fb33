// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"strings"

	"labboot/pkg/platform"
)

// HostSpawnEngine runs engine commands on the host when labboot itself is
// inside an application sandbox (Flatpak, Snap). The engine daemon and its
// socket live on the host; calling the CLI from inside the sandbox
// namespace would miss them and resolve build context paths against the
// wrong filesystem. Every invocation is prefixed with the sandbox's host
// spawn command (flatpak-spawn --host, snap run --shell).
//
// Name, Available and Version pass through to the wrapped engine: they are
// cheap probes whose answers do not depend on where the command runs.
type HostSpawnEngine struct {
	wrapped Engine
	base    *BaseCLIEngine
	sandbox platform.SandboxType
}

var _ Engine = (*HostSpawnEngine)(nil)

// WrapForSandbox returns engine unchanged outside a sandbox. Inside one it
// wraps the engine so its commands spawn on the host.
func WrapForSandbox(engine Engine) Engine {
	return wrapForSandboxType(engine, platform.DetectSandbox())
}

// wrapForSandboxType is the injectable core of WrapForSandbox. Engines
// without a CLI base (test doubles) cannot be spawned and pass through.
func wrapForSandboxType(engine Engine, st platform.SandboxType) Engine {
	if st == platform.SandboxNone {
		return engine
	}
	base, ok := cliBaseOf(engine)
	if !ok {
		return engine
	}
	return &HostSpawnEngine{wrapped: engine, base: base, sandbox: st}
}

// Name returns the wrapped engine name.
func (e *HostSpawnEngine) Name() string { return e.wrapped.Name() }

// Available reports whether the wrapped engine is available.
func (e *HostSpawnEngine) Available() bool { return e.wrapped.Available() }

// Version returns the wrapped engine version.
func (e *HostSpawnEngine) Version(ctx context.Context) (string, error) {
	return e.wrapped.Version(ctx)
}

// Build builds the image on the host, streaming output to the options'
// writers like the unwrapped engine would.
func (e *HostSpawnEngine) Build(ctx context.Context, opts BuildOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	argv := e.hostArgv(e.base.BuildArgs(opts))
	cmd := e.base.execCommand(ctx, argv[0], argv[1:]...)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	if err := cmd.Run(); err != nil {
		return buildImageError(e.wrapped.Name(), opts, err)
	}
	return nil
}

// ImageExists probes for the image on the host. Podman has a dedicated
// exists subcommand; docker answers through image inspect.
func (e *HostSpawnEngine) ImageExists(ctx context.Context, image ImageTag) (bool, error) {
	args := []string{"image", "inspect", string(image)}
	if e.wrapped.Name() == string(EngineKindPodman) {
		args = []string{"image", "exists", string(image)}
	}

	argv := e.hostArgv(args)
	err := e.base.execCommand(ctx, argv[0], argv[1:]...).Run()
	return err == nil, nil
}

// RemoveImage removes the image on the host.
func (e *HostSpawnEngine) RemoveImage(ctx context.Context, image ImageTag, force bool) error {
	argv := e.hostArgv(e.base.RemoveImageArgs(image, force))
	if err := e.base.execCommand(ctx, argv[0], argv[1:]...).Run(); err != nil {
		return fmt.Errorf("command %s failed: %w", strings.Join(argv, " "), err)
	}
	return nil
}

// hostArgv wraps an engine argument list into a full host spawn command
// line: <spawn> <spawn args> <engine binary> <args>.
func (e *HostSpawnEngine) hostArgv(args []string) []string {
	spawn := platform.SpawnCommandFor(e.sandbox)
	spawnArgs := platform.SpawnArgsFor(e.sandbox)

	argv := make([]string, 0, 1+len(spawnArgs)+1+len(args))
	argv = append(argv, spawn)
	argv = append(argv, spawnArgs...)
	argv = append(argv, e.base.BinaryPath())
	argv = append(argv, args...)
	return argv
}

// cliBaseOf extracts the CLI base from the concrete engine types.
func cliBaseOf(engine Engine) (*BaseCLIEngine, bool) {
	switch eng := engine.(type) {
	case *DockerEngine:
		return eng.BaseCLIEngine, true
	case *PodmanEngine:
		return eng.BaseCLIEngine, true
	default:
		return nil, false
	}
}
