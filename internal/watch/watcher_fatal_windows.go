// SPDX-License-Identifier: MPL-2.0

//go:build windows

package watch

import (
	"errors"
	"syscall"
)

const (
	// ERROR_TOO_MANY_OPEN_FILES: per-process handle limit exceeded.
	errnoTooManyOpenFiles = syscall.Errno(4)
	// ERROR_INVALID_HANDLE: the watched directory was deleted or its
	// handle invalidated.
	errnoInvalidHandle = syscall.Errno(6)
	// ERROR_NOT_ENOUGH_MEMORY: the ReadDirectoryChangesW notification
	// buffer could not be allocated.
	errnoNotEnoughMemory = syscall.Errno(8)
)

// fatalErrnos are the Win32 conditions a watch cannot continue past.
// Windows has no inotify-style watch limits, but handle exhaustion and
// invalidated directory handles still end the watch.
var fatalErrnos = []syscall.Errno{
	errnoTooManyOpenFiles,
	errnoInvalidHandle,
	errnoNotEnoughMemory,
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
