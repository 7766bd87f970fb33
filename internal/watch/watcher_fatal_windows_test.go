// SPDX-License-Identifier: MPL-2.0

//go:build windows

package watch

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestIsFatalFsnotifyError(t *testing.T) {
	t.Parallel()

	for _, errno := range fatalErrnos {
		if !isFatalFsnotifyError(errno) {
			t.Errorf("isFatalFsnotifyError(%v) = false, want true", errno)
		}
		wrapped := fmt.Errorf("fsnotify: %w", errno)
		if !isFatalFsnotifyError(wrapped) {
			t.Errorf("isFatalFsnotifyError(%v) = false, wrapping must not hide the errno", wrapped)
		}
	}

	transient := []error{
		syscall.Errno(5), // ERROR_ACCESS_DENIED
		syscall.Errno(2), // ERROR_FILE_NOT_FOUND
		errors.New("transient failure"),
		nil,
	}
	for _, err := range transient {
		if isFatalFsnotifyError(err) {
			t.Errorf("isFatalFsnotifyError(%v) = true, want false", err)
		}
	}
}
