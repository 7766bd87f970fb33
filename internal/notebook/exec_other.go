// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package notebook

import "errors"

// ErrExecUnsupported is returned on platforms without execve semantics.
var ErrExecUnsupported = errors.New("process replacement is not supported on this platform")

func sysExec(_ string, _ []string, _ []string) error {
	return ErrExecUnsupported
}
