// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"labboot/internal/bootstrap"
	"labboot/internal/config"
	"labboot/internal/hooks"
	"labboot/internal/pip"
	"labboot/pkg/types"
)

var (
	startWorkspace    string
	startSettingsFile string
	startPort         int
	startConfigDir    string
	startSkipHooks    bool

	// startCmd is the container entrypoint. It provisions the workspace and
	// execs the notebook server; on success it never returns.
	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Provision the workspace and exec the notebook server",
		Long: `Provision the mounted workspace and hand the process over to the
notebook server.

The boot sequence loads the workspace settings file, scaffolds the
workspace directories, installs the workspace package in editable mode,
applies the configured version pins, runs any boot hook scripts, writes
the server runtime config, and finally execs the server. The first
failing step aborts the boot; installer and hook failures exit with the
failing tool's own exit code.`,
		Args: cobra.NoArgs,
		RunE: runStart,
	}
)

func init() {
	startCmd.Flags().StringVar(&startWorkspace, "workspace", "", "workspace mount point (overrides config)")
	startCmd.Flags().StringVar(&startSettingsFile, "settings-file", "", "settings file path (overrides config)")
	startCmd.Flags().IntVar(&startPort, "port", 0, "notebook server port (overrides config)")
	startCmd.Flags().StringVar(&startConfigDir, "config-dir", "", "server runtime config directory (overrides config)")
	startCmd.Flags().BoolVar(&startSkipHooks, "skip-hooks", false, "skip boot hook scripts")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadBootConfig(cmd.Context())
	if err != nil {
		return exitWithError(cmd, err, 1)
	}

	applyStartOverrides(cmd, cfg)
	if valid, errs := cfg.IsValid(); !valid {
		return exitWithError(cmd, errs[0], 1)
	}

	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
		Prefix:          "boot",
		Level:           level,
		ReportTimestamp: true,
	})

	orchestrator := bootstrap.New(*cfg,
		bootstrap.WithLogger(logger),
		bootstrap.WithSkipHooks(startSkipHooks),
	)

	if err := orchestrator.Boot(cmd.Context()); err != nil {
		return exitWithError(cmd, err, bootExitCode(err))
	}
	return nil
}

// applyStartOverrides copies explicitly set flags over the loaded config.
// Unset flags leave the config values alone.
func applyStartOverrides(cmd *cobra.Command, cfg *config.BootConfig) {
	if cmd.Flags().Changed("workspace") {
		cfg.Workspace.Dir = types.FilesystemPath(startWorkspace)
	}
	if cmd.Flags().Changed("settings-file") {
		cfg.Workspace.SettingsFile = types.FilesystemPath(startSettingsFile)
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = types.ListenPort(startPort)
	}
	if cmd.Flags().Changed("config-dir") {
		cfg.Server.ConfigDir = types.FilesystemPath(startConfigDir)
	}
}

// bootExitCode maps a boot failure to the process exit status. External
// tool failures carry the tool's own exit code; everything else is 1.
func bootExitCode(err error) types.ExitCode {
	var toolErr *pip.ToolError
	if errors.As(err, &toolErr) {
		return toolErr.ExitCode
	}
	var hookErr *hooks.HookError
	if errors.As(err, &hookErr) {
		return hookErr.ExitCode
	}
	return 1
}
