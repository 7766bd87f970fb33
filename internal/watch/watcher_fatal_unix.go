// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package watch

import (
	"errors"
	"syscall"
)

// fatalErrnos are the inotify resource exhaustion conditions a watch
// cannot continue past: ENOSPC (fs.inotify.max_user_watches exhausted),
// EMFILE (per-process fd limit), ENFILE (system-wide fd table full).
var fatalErrnos = []syscall.Errno{
	syscall.ENOSPC,
	syscall.EMFILE,
	syscall.ENFILE,
}

// isFatalFsnotifyError reports whether err ends the watch. Anything not
// in fatalErrnos is logged and retried.
func isFatalFsnotifyError(err error) bool {
	for _, errno := range fatalErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
