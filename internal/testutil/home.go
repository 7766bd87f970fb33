// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"runtime"
	"testing"

	"labboot/pkg/platform"
)

// SetHomeDir points the platform's home directory variable at dir and
// returns a cleanup function that restores the original value.
//
// Windows uses USERPROFILE; everything else uses HOME. Tests that exercise
// config or server-config directory resolution use this to stay hermetic:
//
//	tmpDir := t.TempDir()
//	t.Cleanup(testutil.SetHomeDir(t, tmpDir))
func SetHomeDir(t testing.TB, dir string) func() {
	t.Helper()

	switch runtime.GOOS {
	case platform.Windows:
		return MustSetenv(t, "USERPROFILE", dir)
	default:
		return MustSetenv(t, "HOME", dir)
	}
}
