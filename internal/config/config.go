// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"labboot/internal/issue"
	"labboot/internal/pip"
	"labboot/pkg/cueutil"
	"labboot/pkg/platform"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "labboot"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "labboot"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the labboot configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case platform.Windows:
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case platform.Darwin:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// ResolveConfigDir returns the directory the notebook server runtime config
// is written to: the explicit config_dir when set, otherwise ~/.jupyter for
// the booting user, which is the first place the server looks.
func (c ServerConfig) ResolveConfigDir() (string, error) {
	if c.ConfigDir != "" {
		return c.ConfigDir.String(), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".jupyter"), nil
}

// loadWithOptions performs option-driven config loading without mutating
// package-level state. All callers go through the Provider.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*BootConfig, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	if err := opts.Validate(); err != nil {
		return nil, "", err
	}

	v := viper.New()

	// Set defaults
	defaults := DefaultConfig()
	v.SetDefault("workspace.dir", defaults.Workspace.Dir)
	v.SetDefault("workspace.package_dir", defaults.Workspace.PackageDir)
	v.SetDefault("workspace.settings_file", defaults.Workspace.SettingsFile)
	v.SetDefault("workspace.hooks_dir", defaults.Workspace.HooksDir)
	v.SetDefault("workspace.auto_create_dirs", defaults.Workspace.AutoCreateDirs)
	v.SetDefault("server.config_dir", defaults.Server.ConfigDir)
	v.SetDefault("server.port", defaults.Server.Port)
	v.SetDefault("server.bind_address", defaults.Server.BindAddress)
	v.SetDefault("server.token_env", defaults.Server.TokenEnv)
	v.SetDefault("installer.binary", defaults.Installer.Binary)
	v.SetDefault("pins", defaults.Pins)
	v.SetDefault("engine", defaults.Engine)

	bindEnvOverrides(v)

	resolvedPath := ""

	// If a custom config file path is set via --config flag, use it exclusively.
	if opts.ConfigFilePath != "" {
		path := opts.ConfigFilePath.String()
		if !fileExists(path) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Check that the file exists and is readable").
				WithSuggestion("Run 'labboot config show' to see the effective configuration").
				Wrap(fmt.Errorf("config file not found: %s", path)).
				BuildError()
		}
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("Run 'labboot config init' to scaffold a known-good file").
				Wrap(err).
				BuildError()
		}
		resolvedPath = path
	} else {
		// Get config directory
		cfgDir, err := configDirWithOverride(opts.ConfigDirPath.String())
		if err != nil {
			return nil, "", err
		}

		// Try to load the CUE config file
		cuePath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)
		if fileExists(cuePath) {
			if err := loadCUEIntoViper(v, cuePath); err != nil {
				return nil, "", issue.NewErrorContext().
					WithOperation("load configuration").
					WithResource(cuePath).
					WithSuggestion("Check that the file contains valid CUE syntax").
					WithSuggestion("Verify the configuration values match the expected schema").
					WithSuggestion("Run 'labboot config init' to scaffold a known-good file").
					Wrap(err).
					BuildError()
			}
			resolvedPath = cuePath
		} else {
			// Also check the current directory. The runtime image sets
			// WORKDIR to the workspace, so a labboot.cue at the workspace
			// root lands here.
			localCuePath := ConfigFileName + "." + ConfigFileExt
			if fileExists(localCuePath) {
				if err := loadCUEIntoViper(v, localCuePath); err != nil {
					return nil, "", issue.NewErrorContext().
						WithOperation("load configuration").
						WithResource(localCuePath).
						WithSuggestion("Check that the file contains valid CUE syntax").
						WithSuggestion("Verify the configuration values match the expected schema").
						WithSuggestion("Run 'labboot config init' to scaffold a known-good file").
						Wrap(err).
						BuildError()
				}
				resolvedPath = localCuePath
			}
			// If no config file found, use defaults (no error)
		}
	}

	var cfg BootConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if valid, errs := cfg.IsValid(); !valid {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithSuggestion("Run 'labboot config show' to see the effective configuration").
			WithSuggestion("Check LABBOOT_* environment variables for malformed values").
			Wrap(errors.Join(errs...)).
			BuildError()
	}

	// Validate pin constraints that CUE cannot express: name uniqueness
	// across the merged pin list.
	if err := validatePins("pins", cfg.Pins); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithSuggestion("Remove or rename the duplicated pin entry").
			WithSuggestion("Pin names are compared case-insensitively with '-', '_' and '.' folded together").
			Wrap(err).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

// bindEnvOverrides wires the LABBOOT_* environment variables. Each knob
// binds exactly one documented name; BindEnv only errors when called
// without a key.
func bindEnvOverrides(v *viper.Viper) {
	_ = v.BindEnv("workspace.dir", "LABBOOT_WORKSPACE")
	_ = v.BindEnv("workspace.package_dir", "LABBOOT_PACKAGE_DIR")
	_ = v.BindEnv("workspace.settings_file", "LABBOOT_SETTINGS_FILE")
	_ = v.BindEnv("workspace.hooks_dir", "LABBOOT_HOOKS_DIR")
	_ = v.BindEnv("workspace.auto_create_dirs", "LABBOOT_AUTO_CREATE_DIRS")
	_ = v.BindEnv("server.config_dir", "LABBOOT_SERVER_CONFIG_DIR")
	_ = v.BindEnv("server.port", "LABBOOT_PORT")
	_ = v.BindEnv("server.bind_address", "LABBOOT_BIND_ADDRESS")
	_ = v.BindEnv("server.token_env", "LABBOOT_TOKEN_ENV")
	_ = v.BindEnv("installer.binary", "LABBOOT_INSTALLER")
	_ = v.BindEnv("engine", "LABBOOT_ENGINE")
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}

	return ConfigDir()
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper.
//
// Note: This uses manual CUE parsing instead of cueutil.ParseAndDecode because:
// 1. Config decodes to map[string]any (not a struct) for Viper integration
// 2. Uses Concrete(false) because config fields are optional
// 3. Needs to merge into Viper's config map, not return a struct
func loadCUEIntoViper(v *viper.Viper, path string) error {
	// Read CUE file
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Check file size using cueutil
	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, path); err != nil {
		return err
	}

	// Parse with CUE
	ctx := cuecontext.New()

	// Compile the schema
	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	// Compile the user's config file
	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return cueutil.FormatError(userValue.Err(), path)
	}

	// Unify with schema to validate against #Config definition
	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return cueutil.FormatError(err, path)
	}

	// Decode to Go map
	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return cueutil.FormatError(err, path)
	}

	// Merge into Viper (preserves defaults, allows env overrides)
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// validatePins checks pin entries for a constraint that CUE cannot express:
// every pin name must appear at most once. pip applies the last occurrence,
// which silently masks the earlier one.
//
// The fieldName parameter is used in error messages to identify which pins
// section failed validation.
func validatePins(fieldName string, pins []pip.Pin) error {
	seen := make(map[string]int) // normalized name -> index of first occurrence

	for i, p := range pins {
		name := normalizePinName(p.Name)
		if firstIdx, exists := seen[name]; exists {
			return fmt.Errorf("%s[%d]: duplicate pin %q (same as %s[%d])", fieldName, i, p.Name, fieldName, firstIdx)
		}
		seen[name] = i
	}

	return nil
}

// normalizePinName folds a package name the way the package index compares
// them: case-insensitive, with runs of '-', '_' and '.' collapsed to a
// single '-'.
func normalizePinName(name string) string {
	var b strings.Builder
	prevSep := false
	for _, r := range strings.ToLower(name) {
		if r == '-' || r == '_' || r == '.' {
			if !prevSep {
				b.WriteByte('-')
			}
			prevSep = true
			continue
		}
		prevSep = false
		b.WriteRune(r)
	}
	return b.String()
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// EnsureConfigDir creates the config directory if it doesn't exist and
// returns it. An empty dir resolves to the platform default.
func EnsureConfigDir(dir string) (string, error) {
	if dir == "" {
		resolved, err := ConfigDir()
		if err != nil {
			return "", err
		}
		dir = resolved
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// CreateDefaultConfig writes a default config file into dir unless one
// already exists, and returns the file path either way. An empty dir
// resolves to the platform default.
func CreateDefaultConfig(dir string) (string, error) {
	cfgDir, err := EnsureConfigDir(dir)
	if err != nil {
		return "", err
	}

	cfgPath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		return cfgPath, nil // File exists
	}

	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return cfgPath, nil
}

// Save writes the configuration into dir and returns the file path.
// An empty dir resolves to the platform default.
func Save(dir string, cfg *BootConfig) (string, error) {
	cfgDir, err := EnsureConfigDir(dir)
	if err != nil {
		return "", err
	}

	cfgPath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)

	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(cfg)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return cfgPath, nil
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(cfg *BootConfig) string {
	var sb strings.Builder

	sb.WriteString("// labboot configuration file.\n")
	sb.WriteString("// Values here override the built-in defaults; LABBOOT_* environment\n")
	sb.WriteString("// variables override both.\n\n")

	// Workspace config
	sb.WriteString("workspace: {\n")
	sb.WriteString(fmt.Sprintf("\tdir: %q\n", cfg.Workspace.Dir))
	sb.WriteString(fmt.Sprintf("\tpackage_dir: %q\n", cfg.Workspace.PackageDir))
	if cfg.Workspace.SettingsFile != "" {
		sb.WriteString(fmt.Sprintf("\tsettings_file: %q\n", cfg.Workspace.SettingsFile))
	}
	if cfg.Workspace.HooksDir != "" {
		sb.WriteString(fmt.Sprintf("\thooks_dir: %q\n", cfg.Workspace.HooksDir))
	}
	sb.WriteString(fmt.Sprintf("\tauto_create_dirs: %v\n", cfg.Workspace.AutoCreateDirs))
	sb.WriteString("}\n")

	// Server config
	sb.WriteString("\nserver: {\n")
	if cfg.Server.ConfigDir != "" {
		sb.WriteString(fmt.Sprintf("\tconfig_dir: %q\n", cfg.Server.ConfigDir))
	}
	sb.WriteString(fmt.Sprintf("\tport: %d\n", cfg.Server.Port))
	sb.WriteString(fmt.Sprintf("\tbind_address: %q\n", cfg.Server.BindAddress))
	sb.WriteString(fmt.Sprintf("\ttoken_env: %q\n", cfg.Server.TokenEnv))
	sb.WriteString("}\n")

	// Installer config
	sb.WriteString("\ninstaller: {\n")
	sb.WriteString(fmt.Sprintf("\tbinary: %q\n", cfg.Installer.Binary))
	sb.WriteString("}\n")

	// Pins
	if len(cfg.Pins) > 0 {
		sb.WriteString("\npins: [\n")
		for _, p := range cfg.Pins {
			sb.WriteString(fmt.Sprintf("\t{name: %q, version: %q},\n", p.Name, p.Version))
		}
		sb.WriteString("]\n")
	}

	// Engine
	sb.WriteString(fmt.Sprintf("\nengine: %q\n", cfg.Engine))

	return sb.String()
}
