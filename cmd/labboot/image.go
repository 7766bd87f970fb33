// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"labboot/internal/container"
	"labboot/internal/stageplan"
)

var (
	imageBuildPlanPath string
	imageBuildTag      string
	imageBuildEngine   string
	imageBuildNoCache  bool
	imageBuildPull     bool

	imageCmd = &cobra.Command{
		Use:   "image",
		Short: "Manage lab images",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	imageBuildCmd = &cobra.Command{
		Use:   "build",
		Short: "Build the lab image with docker or podman",
		Long: `Build the lab image from the rendered plan.

The build context is the current directory. The plan is rendered to a
temporary Dockerfile first; pass --plan to build from a CUE plan file
instead of the built-in one. The engine preference comes from the config
unless --engine is given; "auto" probes docker first, then podman.`,
		Args: cobra.NoArgs,
		RunE: runImageBuild,
	}
)

func init() {
	imageBuildCmd.Flags().StringVar(&imageBuildPlanPath, "plan", "", "CUE plan file (default: built-in plan)")
	imageBuildCmd.Flags().StringVar(&imageBuildTag, "tag", "", "image tag (required)")
	imageBuildCmd.Flags().StringVar(&imageBuildEngine, "engine", "", "container engine: auto, docker or podman (default from config)")
	imageBuildCmd.Flags().BoolVar(&imageBuildNoCache, "no-cache", false, "disable the build cache")
	imageBuildCmd.Flags().BoolVar(&imageBuildPull, "pull", false, "always pull newer base images")
	_ = imageBuildCmd.MarkFlagRequired("tag")

	imageCmd.AddCommand(imageBuildCmd)
}

func runImageBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	tag := container.ImageTag(imageBuildTag)
	if err := tag.Validate(); err != nil {
		return err
	}

	kind, err := resolveEngineKind(ctx, cmd)
	if err != nil {
		return exitWithError(cmd, err, 1)
	}
	engine, err := container.NewEngine(kind)
	if err != nil {
		return exitWithError(cmd, err, 1)
	}
	if verbose {
		if engineVersion, verr := engine.Version(ctx); verr == nil {
			fmt.Fprintln(cmd.ErrOrStderr(), VerboseStyle.Render("engine: "+engineVersion))
		}
	}

	plan, err := loadPlan(imageBuildPlanPath)
	if err != nil {
		return exitWithError(cmd, err, 1)
	}
	if err := plan.Validate(); err != nil {
		return exitWithError(cmd, err, 1)
	}

	dockerfile, cleanup, err := renderToTempDockerfile(plan)
	if err != nil {
		return exitWithError(cmd, err, 1)
	}
	defer cleanup()

	fmt.Fprintf(cmd.OutOrStdout(), "Building %s with %s\n", CmdStyle.Render(string(tag)), engine.Name())
	if err := engine.Build(ctx, container.BuildOptions{
		ContextDir: ".",
		Dockerfile: dockerfile,
		Tag:        tag,
		NoCache:    imageBuildNoCache,
		Pull:       imageBuildPull,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}); err != nil {
		return exitWithError(cmd, err, 1)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s Built %s\n", SuccessStyle.Render("✓"), tag)
	return nil
}

// resolveEngineKind picks the engine: the --engine flag when given,
// otherwise the config preference. A config load failure falls back to
// auto-detection with a warning rather than blocking the build.
func resolveEngineKind(ctx context.Context, cmd *cobra.Command) (container.EngineKind, error) {
	if cmd.Flags().Changed("engine") {
		kind := container.EngineKind(imageBuildEngine)
		if err := kind.Validate(); err != nil {
			return "", err
		}
		return kind, nil
	}

	cfg, err := loadBootConfig(ctx)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(),
			WarningStyle.Render("Warning: ")+"failed to load config, using engine auto-detection: "+err.Error())
		return container.EngineKindAuto, nil
	}
	return container.EngineKind(cfg.Engine.String()), nil
}

// renderToTempDockerfile writes the rendered plan to a temp file and
// returns its path with a cleanup func. The file lives outside the build
// context, so the context directory is never polluted.
func renderToTempDockerfile(plan *stageplan.Plan) (string, func(), error) {
	f, err := os.CreateTemp("", "labboot-*.Dockerfile")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp Dockerfile: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }

	if err := plan.Render(f); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to close temp Dockerfile: %w", err)
	}
	return f.Name(), cleanup, nil
}
