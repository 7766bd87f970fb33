// SPDX-License-Identifier: MPL-2.0

//go:build unix

package notebook

import "syscall"

// sysExec replaces the current process image. On success it does not return.
func sysExec(argv0 string, argv []string, envv []string) error {
	return syscall.Exec(argv0, argv, envv)
}
