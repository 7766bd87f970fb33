// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"slices"
	"testing"

	"labboot/pkg/platform"
)

func TestWrapForSandboxType(t *testing.T) {
	t.Parallel()

	recorder := NewMockCommandRecorder()
	docker := mockedDockerEngine(t, recorder)

	t.Run("no sandbox passes through", func(t *testing.T) {
		t.Parallel()
		if got := wrapForSandboxType(docker, platform.SandboxNone); got != Engine(docker) {
			t.Errorf("wrapForSandboxType() = %T, want the engine unchanged", got)
		}
	})

	t.Run("flatpak wraps", func(t *testing.T) {
		t.Parallel()
		got := wrapForSandboxType(docker, platform.SandboxFlatpak)
		if _, ok := got.(*HostSpawnEngine); !ok {
			t.Errorf("wrapForSandboxType() = %T, want *HostSpawnEngine", got)
		}
		if got.Name() != "docker" {
			t.Errorf("Name() = %q, want docker", got.Name())
		}
	})

	t.Run("engine without CLI base passes through", func(t *testing.T) {
		t.Parallel()
		stub := &stubEngine{}
		if got := wrapForSandboxType(stub, platform.SandboxFlatpak); got != Engine(stub) {
			t.Errorf("wrapForSandboxType() = %T, want the stub unchanged", got)
		}
	})
}

func TestHostSpawnEngineBuild(t *testing.T) {
	t.Parallel()

	recorder := NewMockCommandRecorder()
	engine := wrapForSandboxType(mockedDockerEngine(t, recorder), platform.SandboxFlatpak)

	err := engine.Build(context.Background(), BuildOptions{
		ContextDir: ".",
		Tag:        "lab:latest",
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	inv := recorder.LastInvocation()
	if inv == nil {
		t.Fatal("no command was invoked")
	}
	if inv.Name != "flatpak-spawn" {
		t.Errorf("spawn command = %q, want flatpak-spawn", inv.Name)
	}
	wantPrefix := []string{"--host", "/usr/bin/docker", "build"}
	if len(inv.Args) < len(wantPrefix) || !slices.Equal(inv.Args[:len(wantPrefix)], wantPrefix) {
		t.Errorf("spawn args = %v, want prefix %v", inv.Args, wantPrefix)
	}
	if !recorder.HasArgPair("-t", "lab:latest") {
		t.Errorf("spawn args missing tag: %v", inv.Args)
	}
}

func TestHostSpawnEngineBuildValidatesOptions(t *testing.T) {
	t.Parallel()

	recorder := NewMockCommandRecorder()
	engine := wrapForSandboxType(mockedDockerEngine(t, recorder), platform.SandboxSnap)

	err := engine.Build(context.Background(), BuildOptions{ContextDir: "", Tag: "lab:latest"})
	if err == nil {
		t.Fatal("Build() should reject an empty context dir")
	}
	recorder.AssertInvocationCount(t, 0)
}

func TestHostSpawnEngineImageExists(t *testing.T) {
	t.Parallel()

	t.Run("docker inspects", func(t *testing.T) {
		t.Parallel()
		recorder := NewMockCommandRecorder()
		engine := wrapForSandboxType(mockedDockerEngine(t, recorder), platform.SandboxFlatpak)

		exists, err := engine.ImageExists(context.Background(), "lab:latest")
		if err != nil {
			t.Fatalf("ImageExists() error = %v", err)
		}
		if !exists {
			t.Error("ImageExists() = false, want true for a zero exit")
		}
		want := []string{"--host", "/usr/bin/docker", "image", "inspect", "lab:latest"}
		if !slices.Equal(recorder.LastArgs(), want) {
			t.Errorf("spawn args = %v, want %v", recorder.LastArgs(), want)
		}
	})

	t.Run("podman uses image exists", func(t *testing.T) {
		t.Parallel()
		recorder := NewMockCommandRecorder()
		engine := wrapForSandboxType(mockedPodmanEngine(t, recorder), platform.SandboxSnap)

		if _, err := engine.ImageExists(context.Background(), "lab:latest"); err != nil {
			t.Fatalf("ImageExists() error = %v", err)
		}
		want := []string{"run", "--shell", "/usr/bin/podman", "image", "exists", "lab:latest"}
		if !slices.Equal(recorder.LastArgs(), want) {
			t.Errorf("spawn args = %v, want %v", recorder.LastArgs(), want)
		}
		if got := recorder.LastInvocation().Name; got != "snap" {
			t.Errorf("spawn command = %q, want snap", got)
		}
	})
}

func TestHostSpawnEngineRemoveImage(t *testing.T) {
	t.Parallel()

	recorder := NewMockCommandRecorder()
	engine := wrapForSandboxType(mockedPodmanEngine(t, recorder), platform.SandboxFlatpak)

	if err := engine.RemoveImage(context.Background(), "lab:old", true); err != nil {
		t.Fatalf("RemoveImage() error = %v", err)
	}
	want := []string{"--host", "/usr/bin/podman", "rmi", "-f", "lab:old"}
	if !slices.Equal(recorder.LastArgs(), want) {
		t.Errorf("spawn args = %v, want %v", recorder.LastArgs(), want)
	}
}

// stubEngine is an Engine with no CLI base underneath.
type stubEngine struct{}

func (*stubEngine) Name() string      { return "stub" }
func (*stubEngine) Available() bool   { return true }
func (*stubEngine) Version(context.Context) (string, error) { return "0", nil }
func (*stubEngine) Build(context.Context, BuildOptions) error { return nil }
func (*stubEngine) ImageExists(context.Context, ImageTag) (bool, error) { return false, nil }
func (*stubEngine) RemoveImage(context.Context, ImageTag, bool) error { return nil }
