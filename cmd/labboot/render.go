// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"labboot/internal/stageplan"
	"labboot/internal/watch"
)

var (
	renderPlanPath string
	renderOutPath  string
	renderCheck    bool
	renderWatch    bool

	renderCmd = &cobra.Command{
		Use:   "render",
		Short: "Render the image plan to a Dockerfile",
		Long: `Render the multi-stage image plan to a Dockerfile.

Without --plan the built-in lab image plan is rendered. With --out the
Dockerfile is written to a file instead of stdout. --check validates the
plan without rendering anything. --watch keeps running and re-renders
whenever a .cue file next to the plan changes.`,
		Args: cobra.NoArgs,
		RunE: runRender,
	}
)

func init() {
	renderCmd.Flags().StringVar(&renderPlanPath, "plan", "", "CUE plan file (default: built-in plan)")
	renderCmd.Flags().StringVar(&renderOutPath, "out", "", "write the Dockerfile to a file instead of stdout")
	renderCmd.Flags().BoolVar(&renderCheck, "check", false, "validate the plan without rendering")
	renderCmd.Flags().BoolVar(&renderWatch, "watch", false, "re-render on plan changes (requires --plan and --out)")
}

// loadPlan returns the plan from a CUE manifest, or the built-in plan when
// no path is given. Shared by render and image build.
func loadPlan(path string) (*stageplan.Plan, error) {
	if path == "" {
		return stageplan.Default(), nil
	}
	return stageplan.LoadManifest(path)
}

func runRender(cmd *cobra.Command, args []string) error {
	if renderWatch {
		return runRenderWatch(cmd)
	}
	return renderOnce(cmd)
}

// renderOnce performs a single load-validate-render cycle. Watch mode calls
// it once per change.
func renderOnce(cmd *cobra.Command) error {
	plan, err := loadPlan(renderPlanPath)
	if err != nil {
		return exitWithError(cmd, err, 1)
	}
	if err := plan.Validate(); err != nil {
		return exitWithError(cmd, err, 1)
	}

	if renderCheck {
		for _, warning := range plan.Lint() {
			fmt.Fprintln(cmd.ErrOrStderr(), WarningStyle.Render("warning: ")+warning)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Plan is valid (%d stages)\n",
			SuccessStyle.Render("✓"), len(plan.Stages))
		return nil
	}

	if renderOutPath == "" {
		return plan.Render(cmd.OutOrStdout())
	}

	var buf bytes.Buffer
	if err := plan.Render(&buf); err != nil {
		return exitWithError(cmd, err, 1)
	}
	if err := os.WriteFile(renderOutPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write Dockerfile: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s Rendered %d stages to %s\n",
		SuccessStyle.Render("✓"), len(plan.Stages), renderOutPath)
	return nil
}

// runRenderWatch renders once, then re-renders on every change to a .cue
// file in the plan's directory. It blocks until the command context is
// canceled. A broken save prints the error and keeps watching.
func runRenderWatch(cmd *cobra.Command) error {
	switch {
	case renderCheck:
		return exitWithError(cmd, errors.New("--watch cannot be combined with --check"), 1)
	case renderPlanPath == "":
		return exitWithError(cmd, errors.New("--watch requires --plan: the built-in plan never changes"), 1)
	case renderOutPath == "":
		return exitWithError(cmd, errors.New("--watch requires --out: pick a Dockerfile path to keep updated"), 1)
	}

	if err := renderOnce(cmd); err != nil {
		return err
	}

	planDir := filepath.Dir(renderPlanPath)
	w, err := watch.New(watch.Config{
		BaseDir:  planDir,
		Patterns: []string{"**/*.cue"},
		Stderr:   cmd.ErrOrStderr(),
		OnChange: func(_ context.Context, changed []string) error {
			fmt.Fprintln(cmd.ErrOrStderr(),
				SubtitleStyle.Render("changed: ")+strings.Join(changed, ", "))
			// renderOnce already reported the failure on stderr; returning
			// nil keeps the watch alive so the next save can fix it.
			_ = renderOnce(cmd)
			return nil
		},
	})
	if err != nil {
		return exitWithError(cmd, err, 1)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s for plan changes (interrupt to stop)\n", planDir)
	return w.Run(cmd.Context())
}
