// SPDX-License-Identifier: MPL-2.0

// Package config handles boot configuration using Viper with CUE as the file format.
//
// Configuration is resolved in layers: compiled-in defaults, an optional
// labboot.cue (from ~/.config/labboot or its XDG/platform equivalent, falling
// back to the current directory, which inside the runtime image is the
// workspace root), LABBOOT_* environment variables, and finally command-line
// flags. labboot.cue is validated against a CUE schema (config_schema.cue)
// before merging, so a typo or type mismatch fails the boot with a pointed
// message instead of silently running on defaults.
//
// The resulting BootConfig is built once by the Provider and passed down
// explicitly; the package keeps no loaded state.
package config
