// SPDX-License-Identifier: EPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	// EngineKindAuto selects whichever engine is available, Docker first.
	EngineKindAuto EngineKind = "auto"
	// EngineKindDocker selects the Docker CLI.
	EngineKindDocker EngineKind = "docker"
	// EngineKindPodman selects the Podman CLI.
	EngineKindPodman EngineKind = "podman"
)

var (
	// ErrInvalidEngineKind is the sentinel error wrapped by InvalidEngineKindError.
	ErrInvalidEngineKind = errors.New("invalid engine kind")

	// ErrInvalidImageTag is the sentinel error wrapped by InvalidImageTagError.
	ErrInvalidImageTag = errors.New("invalid image tag")
)

type (
	// EngineKind selects a container engine in the config and on the CLI.
	EngineKind string

	// InvalidEngineKindError is returned when an EngineKind is not recognized.
	InvalidEngineKindError struct {
		Value EngineKind
	}

	// ImageTag names the image a build produces.
	ImageTag string

	// InvalidImageTagError is returned for a malformed image tag.
	InvalidImageTagError struct {
		Value  ImageTag
		Reason string
	}

	// Engine is the build-side interface over a container engine CLI.
	Engine interface {
		// Name returns the engine name (docker or podman)
		Name() string
		// Available checks if the engine is available on the system
		Available() bool
		// Version returns the engine version
		Version(ctx context.Context) (string, error)

		// Build builds an image from a Dockerfile
		Build(ctx context.Context, opts BuildOptions) error
		// ImageExists checks if an image exists
		ImageExists(ctx context.Context, image ImageTag) (bool, error)
		// RemoveImage removes an image
		RemoveImage(ctx context.Context, image ImageTag, force bool) error
	}

	// ErrEngineNotAvailable is returned when a container engine is not available
	ErrEngineNotAvailable struct {
		Engine string
		Reason string
	}
)

// Validate returns an error if the EngineKind is not one of the defined kinds.
func (k EngineKind) Validate() error {
	switch k {
	case EngineKindAuto, EngineKindDocker, EngineKindPodman:
		return nil
	default:
		return &InvalidEngineKindError{Value: k}
	}
}

// String returns the string representation of the EngineKind.
func (k EngineKind) String() string { return string(k) }

// Error implements the error interface for InvalidEngineKindError.
func (e *InvalidEngineKindError) Error() string {
	return fmt.Sprintf("invalid engine kind %q (valid: auto, docker, podman)", e.Value)
}

// Unwrap returns ErrInvalidEngineKind for errors.Is() compatibility.
func (e *InvalidEngineKindError) Unwrap() error { return ErrInvalidEngineKind }

// String returns the string representation of the ImageTag.
func (t ImageTag) String() string { return string(t) }

// Validate returns an error if the ImageTag is malformed. The repository
// part must be lowercase; the whole tag must be free of whitespace.
func (t ImageTag) Validate() error {
	if strings.TrimSpace(string(t)) == "" {
		return &InvalidImageTagError{Value: t, Reason: "must be non-empty"}
	}
	if strings.ContainsAny(string(t), " \t\n") {
		return &InvalidImageTagError{Value: t, Reason: "must not contain whitespace"}
	}
	repo, _, _ := strings.Cut(string(t), ":")
	if repo != strings.ToLower(repo) {
		return &InvalidImageTagError{Value: t, Reason: "repository must be lowercase"}
	}
	return nil
}

// Error implements the error interface for InvalidImageTagError.
func (e *InvalidImageTagError) Error() string {
	return fmt.Sprintf("invalid image tag %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidImageTag for errors.Is() compatibility.
func (e *InvalidImageTagError) Unwrap() error { return ErrInvalidImageTag }

func (e *ErrEngineNotAvailable) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// NewEngine creates a container engine for the requested kind, falling back
// to the other engine when the preferred one is missing.
func NewEngine(kind EngineKind) (Engine, error) {
	switch kind {
	case EngineKindAuto:
		return AutoDetectEngine()

	case EngineKindDocker:
		engine := NewDockerEngine()
		if engine.Available() {
			return WrapForSandbox(engine), nil
		}
		// Fall back to Podman
		podmanEngine := NewPodmanEngine()
		if podmanEngine.Available() {
			return WrapForSandbox(podmanEngine), nil
		}
		return nil, &ErrEngineNotAvailable{
			Engine: "docker",
			Reason: "docker is not installed or not accessible, and podman fallback is also not available",
		}

	case EngineKindPodman:
		engine := NewPodmanEngine()
		if engine.Available() {
			return WrapForSandbox(engine), nil
		}
		// Fall back to Docker
		dockerEngine := NewDockerEngine()
		if dockerEngine.Available() {
			return WrapForSandbox(dockerEngine), nil
		}
		return nil, &ErrEngineNotAvailable{
			Engine: "podman",
			Reason: "podman is not installed or not accessible, and docker fallback is also not available",
		}

	default:
		return nil, &InvalidEngineKindError{Value: kind}
	}
}

// AutoDetectEngine tries to find an available container engine.
func AutoDetectEngine() (Engine, error) {
	// Docker first: the built-in plan is developed against BuildKit syntax
	docker := NewDockerEngine()
	if docker.Available() {
		return WrapForSandbox(docker), nil
	}

	podman := NewPodmanEngine()
	if podman.Available() {
		return WrapForSandbox(podman), nil
	}

	return nil, &ErrEngineNotAvailable{
		Engine: "any",
		Reason: "no container engine (docker or podman) is available on this system",
	}
}
