// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"testing"
)

func TestExitError(t *testing.T) {
	t.Parallel()

	t.Run("message comes from wrapped error", func(t *testing.T) {
		t.Parallel()
		inner := errors.New("pip exited with status 7")
		exitErr := &ExitError{Code: 7, Err: inner}

		if got := exitErr.Error(); got != "pip exited with status 7" {
			t.Errorf("Error() = %q, want wrapped message", got)
		}
	})

	t.Run("message falls back to exit status", func(t *testing.T) {
		t.Parallel()
		exitErr := &ExitError{Code: 3}

		if got := exitErr.Error(); got != "exit status 3" {
			t.Errorf("Error() = %q, want %q", got, "exit status 3")
		}
	})

	t.Run("unwrap exposes the cause", func(t *testing.T) {
		t.Parallel()
		inner := errors.New("boot failed")
		exitErr := &ExitError{Code: 1, Err: inner}

		if !errors.Is(exitErr, inner) {
			t.Error("errors.Is() should match the wrapped cause")
		}
	})
}
