// SPDX-License-Identifier: MPL-2.0

// Package platform holds the small platform-specific lookups the rest of
// labboot needs: runtime.GOOS name constants and detection of application
// sandboxes (Flatpak, Snap). Sandbox detection matters on the image
// authoring side: a labboot launched from a sandboxed terminal or IDE must
// drive the container engine on the host, not inside the sandbox namespace.
package platform
