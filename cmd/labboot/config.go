// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"labboot/internal/config"
	"labboot/pkg/types"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage labboot configuration",
	Long: `Manage labboot configuration.

Configuration is stored in:
  - Linux: ~/.config/labboot/labboot.cue
  - macOS: ~/Library/Application Support/labboot/labboot.cue
  - Windows: %APPDATA%\labboot\labboot.cue

LABBOOT_* environment variables override the file values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(cmd)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initConfigFile(cmd)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfigPath(cmd)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadBootConfig(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), config.GenerateCUE(cfg))
			return nil
		},
	})
}

// loadBootConfig loads the effective configuration, honoring the global
// --config flag. Shared by start, image build and the config subcommands.
func loadBootConfig(ctx context.Context) (*config.BootConfig, error) {
	return config.NewProvider().Load(ctx, config.LoadOptions{
		ConfigFilePath: types.FilesystemPath(cfgFile),
	})
}

func showConfig(cmd *cobra.Command) error {
	cfg, err := loadBootConfig(cmd.Context())
	if err != nil {
		return exitWithError(cmd, err, 1)
	}

	out := cmd.OutOrStdout()
	keyStyle := CmdStyle
	valueStyle := SuccessStyle

	fmt.Fprintln(out, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(out)

	if cfgDir, dirErr := config.ConfigDir(); dirErr == nil {
		cfgPath := filepath.Join(cfgDir, config.ConfigFileName+"."+config.ConfigFileExt)
		if fileExistsCheck(cfgPath) {
			fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("Config file"), cfgPath)
		} else {
			fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
		}
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "%s:\n", keyStyle.Render("workspace"))
	fmt.Fprintf(out, "  dir: %s\n", valueStyle.Render(cfg.Workspace.Dir.String()))
	fmt.Fprintf(out, "  package_dir: %s\n", valueStyle.Render(cfg.Workspace.PackageDir.String()))
	fmt.Fprintf(out, "  settings_file: %s\n", valueStyle.Render(cfg.Workspace.SettingsPath().String()))
	fmt.Fprintf(out, "  hooks_dir: %s\n", valueStyle.Render(cfg.Workspace.HooksPath().String()))
	fmt.Fprintf(out, "  auto_create_dirs: %s\n", valueStyle.Render(fmt.Sprintf("%v", cfg.Workspace.AutoCreateDirs)))

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", keyStyle.Render("server"))
	fmt.Fprintf(out, "  port: %s\n", valueStyle.Render(fmt.Sprintf("%d", cfg.Server.Port)))
	fmt.Fprintf(out, "  bind_address: %s\n", valueStyle.Render(cfg.Server.BindAddress.String()))
	fmt.Fprintf(out, "  token_env: %s\n", valueStyle.Render(cfg.Server.TokenEnv.String()))

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("installer"), valueStyle.Render(cfg.Installer.Binary))

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", keyStyle.Render("pins"))
	if len(cfg.Pins) == 0 {
		fmt.Fprintf(out, "  %s\n", SubtitleStyle.Render("(none configured)"))
	} else {
		for _, p := range cfg.Pins {
			fmt.Fprintf(out, "  - %s\n", valueStyle.Render(p.String()))
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("engine"), valueStyle.Render(cfg.Engine.String()))

	return nil
}

func initConfigFile(cmd *cobra.Command) error {
	cfgDir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	existing := fileExistsCheck(filepath.Join(cfgDir, config.ConfigFileName+"."+config.ConfigFileExt))

	path, err := config.CreateDefaultConfig("")
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}

	out := cmd.OutOrStdout()
	if existing {
		fmt.Fprintf(out, "%s Configuration already exists at %s, left unchanged\n", WarningStyle.Render("!"), path)
		return nil
	}
	fmt.Fprintf(out, "%s Created default configuration at %s\n", SuccessStyle.Render("✓"), path)
	return nil
}

func showConfigPath(cmd *cobra.Command) error {
	cfgDir, err := config.ConfigDir()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config directory: %s\n", cfgDir)
	fmt.Fprintf(out, "Config file: %s\n", filepath.Join(cfgDir, config.ConfigFileName+"."+config.ConfigFileExt))
	return nil
}

// fileExistsCheck checks if a file exists and is not a directory.
func fileExistsCheck(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
