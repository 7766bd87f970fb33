// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for labboot.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"labboot/internal/issue"
	"labboot/pkg/types"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// verbose enables verbose output
	verbose bool
	// cfgFile allows specifying a custom config file
	cfgFile string

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "labboot",
		Short: "Build and boot GPU lab images",
		Long: TitleStyle.Render("labboot") + SubtitleStyle.Render(" - builds and boots GPU lab images") + `

labboot is both the build tool and the entrypoint of a scientific
notebook image. On a workstation it renders the multi-stage image plan
and drives the container engine; inside the running container it
provisions the mounted workspace and hands the process over to the
notebook server.

` + SubtitleStyle.Render("Typical usage:") + `
  labboot render --check           Validate the image plan
  labboot image build --tag NAME   Build the lab image
  labboot start                    Boot the lab (container entrypoint)
  labboot config show              Show the effective configuration`,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <config-dir>/labboot/labboot.cue)")

	// Add subcommands
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(imageCmd)
	rootCmd.AddCommand(configCmd)
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// Use fang.Execute for enhanced Cobra styling
	// Pass version via fang.WithVersion() since fang overrides rootCmd.Version
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.Code))
		}
		os.Exit(1)
	}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// exitWithError prints err to stderr and converts it into an ExitError so
// Execute can propagate the code. The command's own error printing is
// silenced to avoid a duplicate line.
func exitWithError(cmd *cobra.Command, err error, code types.ExitCode) error {
	fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, verbose))
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return &ExitError{Code: code, Err: err}
}
