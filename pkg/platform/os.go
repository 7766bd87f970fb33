// SPDX-License-Identifier: MPL-2.0

package platform

// runtime.GOOS values labboot branches on. Config directory resolution
// and the test helpers compare against these instead of scattering
// string literals.
const (
	// Linux is the GOOS of every image labboot boots; the authoring
	// commands additionally run on the other two.
	Linux = "linux"

	// Darwin keeps its config under ~/Library/Application Support.
	Darwin = "darwin"

	// Windows resolves its config dir from APPDATA and its home from
	// USERPROFILE.
	Windows = "windows"
)
