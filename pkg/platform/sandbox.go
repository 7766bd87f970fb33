// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"os"
	"sync"
)

// SandboxType identifies the application sandbox the process runs in, if any.
type SandboxType string

const (
	// SandboxNone means no sandbox was detected.
	SandboxNone SandboxType = ""
	// SandboxFlatpak means the process runs inside a Flatpak sandbox.
	SandboxFlatpak SandboxType = "flatpak"
	// SandboxSnap means the process runs inside a Snap sandbox.
	SandboxSnap SandboxType = "snap"
)

// The sandbox cannot change during the process lifetime, so the detection
// result is cached process-wide. detectFrom must not panic: sync.OnceValue
// re-raises a cached panic on every later call.
var detectOnce = sync.OnceValue(func() SandboxType {
	return detectFrom(os.Getenv, statFile)
})

// DetectSandbox reports which application sandbox, if any, the current
// process runs in. Flatpak ships /.flatpak-info inside every sandbox; Snap
// sets SNAP_NAME for every snap. The first call does the lookups, later
// calls return the cached result.
func DetectSandbox() SandboxType {
	return detectOnce()
}

// SpawnCommandFor returns the host spawn binary for a sandbox type, or ""
// outside a sandbox. Pure over its argument so tests can cover every type
// without touching the cached detection.
func SpawnCommandFor(st SandboxType) string {
	switch st {
	case SandboxFlatpak:
		return "flatpak-spawn"
	case SandboxSnap:
		return "snap"
	default:
		return ""
	}
}

// SpawnArgsFor returns the arguments that go between the spawn binary and
// the command to run on the host. Nil outside a sandbox.
func SpawnArgsFor(st SandboxType) []string {
	switch st {
	case SandboxFlatpak:
		return []string{"--host"}
	case SandboxSnap:
		return []string{"run", "--shell"}
	default:
		return nil
	}
}

// detectFrom is the injectable core of DetectSandbox. Flatpak wins when
// both markers are somehow present.
func detectFrom(lookupEnv func(string) string, statFile func(string) error) SandboxType {
	if err := statFile("/.flatpak-info"); err == nil {
		return SandboxFlatpak
	}
	if lookupEnv("SNAP_NAME") != "" {
		return SandboxSnap
	}
	return SandboxNone
}

func statFile(path string) error {
	_, err := os.Stat(path)
	return err
}
