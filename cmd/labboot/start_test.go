// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"testing"

	"labboot/internal/config"
	"labboot/internal/hooks"
	"labboot/internal/issue"
	"labboot/internal/pip"
	"labboot/pkg/types"
)

func TestBootExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want types.ExitCode
	}{
		{
			name: "installer failure carries pip exit code",
			err: issue.NewErrorContext().
				WithOperation("apply version pins").
				Wrap(&pip.ToolError{Tool: "pip", ExitCode: 7}).
				BuildError(),
			want: 7,
		},
		{
			name: "hook failure carries script exit code",
			err: issue.NewErrorContext().
				WithOperation("run boot hooks").
				Wrap(&hooks.HookError{Hook: "10-init.sh", ExitCode: 3}).
				BuildError(),
			want: 3,
		},
		{
			name: "wrapped tool error is still found",
			err:  fmt.Errorf("boot: %w", &pip.ToolError{Tool: "uv", ExitCode: 2}),
			want: 2,
		},
		{
			name: "plain error defaults to 1",
			err:  errors.New("settings file unreadable"),
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := bootExitCode(tt.err); got != tt.want {
				t.Errorf("bootExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestApplyStartOverrides(t *testing.T) {
	// Not parallel: drives the package-level startCmd flag set, and a flag's
	// Changed state is sticky once parsed. The no-flags case must run first.

	cfg := config.DefaultConfig()
	applyStartOverrides(startCmd, cfg)

	if cfg.Workspace.Dir != types.FilesystemPath("/workspace") {
		t.Errorf("workspace dir changed without flags: %q", cfg.Workspace.Dir)
	}
	if cfg.Server.Port != 8888 {
		t.Errorf("port changed without flags: %d", cfg.Server.Port)
	}

	err := startCmd.ParseFlags([]string{
		"--workspace", "/mnt/lab",
		"--settings-file", "settings/boot.env",
		"--port", "9000",
		"--config-dir", "/etc/lab/jupyter",
	})
	if err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	applyStartOverrides(startCmd, cfg)

	if cfg.Workspace.Dir != types.FilesystemPath("/mnt/lab") {
		t.Errorf("workspace dir = %q, want /mnt/lab", cfg.Workspace.Dir)
	}
	if cfg.Workspace.SettingsFile != types.FilesystemPath("settings/boot.env") {
		t.Errorf("settings file = %q, want settings/boot.env", cfg.Workspace.SettingsFile)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.ConfigDir != types.FilesystemPath("/etc/lab/jupyter") {
		t.Errorf("config dir = %q, want /etc/lab/jupyter", cfg.Server.ConfigDir)
	}
}
