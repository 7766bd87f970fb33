// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"labboot/internal/pip"
	"labboot/pkg/types"
)

const (
	// EngineAuto probes for a usable container engine, docker first.
	EngineAuto EngineChoice = "auto"
	// EngineDocker forces the docker CLI.
	EngineDocker EngineChoice = "docker"
	// EnginePodman forces the podman CLI.
	EnginePodman EngineChoice = "podman"
)

var (
	// ErrInvalidEngineChoice is returned when an EngineChoice value is not recognized.
	ErrInvalidEngineChoice = errors.New("invalid engine choice")
	// ErrInvalidPackageDirName is the sentinel error wrapped by InvalidPackageDirNameError.
	ErrInvalidPackageDirName = errors.New("invalid package dir name")
	// ErrInvalidEnvVarName is returned when an EnvVarName value is malformed.
	ErrInvalidEnvVarName = errors.New("invalid environment variable name")
	// ErrInvalidWorkspaceConfig is the sentinel error wrapped by InvalidWorkspaceConfigError.
	ErrInvalidWorkspaceConfig = errors.New("invalid workspace config")
	// ErrInvalidServerConfig is the sentinel error wrapped by InvalidServerConfigError.
	ErrInvalidServerConfig = errors.New("invalid server config")
	// ErrInvalidInstallerConfig is the sentinel error wrapped by InvalidInstallerConfigError.
	ErrInvalidInstallerConfig = errors.New("invalid installer config")
	// ErrInvalidBootConfig is the sentinel error wrapped by InvalidBootConfigError.
	ErrInvalidBootConfig = errors.New("invalid boot config")
)

type (
	// EngineChoice selects which container engine image builds use.
	// Defined locally to avoid coupling config to internal/container;
	// the CLI casts to container.EngineKind at the boundary.
	EngineChoice string

	// InvalidEngineChoiceError is returned when an EngineChoice value is not recognized.
	// It wraps ErrInvalidEngineChoice for errors.Is() compatibility.
	InvalidEngineChoiceError struct {
		Value EngineChoice
	}

	// PackageDirName names the editable-install package directory, relative
	// to the workspace root. A valid name is non-empty, relative, and stays
	// inside the workspace.
	PackageDirName string

	// InvalidPackageDirNameError is returned when a PackageDirName value is
	// empty, absolute, or escapes the workspace. It wraps
	// ErrInvalidPackageDirName for errors.Is().
	InvalidPackageDirNameError struct {
		Value  PackageDirName
		Reason string
	}

	// EnvVarName names an environment variable. Valid names match
	// [A-Za-z_][A-Za-z0-9_]*.
	EnvVarName string

	// InvalidEnvVarNameError is returned when an EnvVarName value is empty
	// or malformed. It wraps ErrInvalidEnvVarName for errors.Is().
	InvalidEnvVarNameError struct {
		Value EnvVarName
	}

	// InvalidWorkspaceConfigError is returned when a WorkspaceConfig has invalid fields.
	// It wraps ErrInvalidWorkspaceConfig for errors.Is() compatibility and collects
	// field-level validation errors.
	InvalidWorkspaceConfigError struct {
		FieldErrors []error
	}

	// InvalidServerConfigError is returned when a ServerConfig has invalid fields.
	// It wraps ErrInvalidServerConfig for errors.Is() compatibility and collects
	// field-level validation errors.
	InvalidServerConfigError struct {
		FieldErrors []error
	}

	// InvalidInstallerConfigError is returned when an InstallerConfig has invalid fields.
	// It wraps ErrInvalidInstallerConfig for errors.Is() compatibility and collects
	// field-level validation errors.
	InvalidInstallerConfigError struct {
		FieldErrors []error
	}

	// InvalidBootConfigError is returned when a BootConfig has invalid fields.
	// It wraps ErrInvalidBootConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidBootConfigError struct {
		FieldErrors []error
	}

	// WorkspaceConfig locates the mounted workspace and the files the boot
	// sequence reads from it.
	WorkspaceConfig struct {
		// Dir is the workspace mount point inside the container.
		Dir types.FilesystemPath `json:"dir" mapstructure:"dir"`
		// PackageDir is the editable-install package directory, relative to Dir.
		PackageDir PackageDirName `json:"package_dir" mapstructure:"package_dir"`
		// SettingsFile overrides the settings file location.
		// Empty means <dir>/config/lab.env.
		SettingsFile types.FilesystemPath `json:"settings_file,omitempty" mapstructure:"settings_file"`
		// HooksDir overrides the boot hook directory.
		// Empty means <dir>/config/boot.d.
		HooksDir types.FilesystemPath `json:"hooks_dir,omitempty" mapstructure:"hooks_dir"`
		// AutoCreateDirs scaffolds config/, logs/ and data/ under Dir at boot.
		AutoCreateDirs bool `json:"auto_create_dirs" mapstructure:"auto_create_dirs"`
	}

	// ServerConfig describes how the notebook server is bound and where its
	// runtime config file is written.
	ServerConfig struct {
		// ConfigDir overrides where the runtime config file is written.
		// Empty resolves to ~/.jupyter for the booting user.
		ConfigDir types.FilesystemPath `json:"config_dir,omitempty" mapstructure:"config_dir"`
		// Port is the server listen port.
		Port types.ListenPort `json:"port" mapstructure:"port"`
		// BindAddress is the listen address. Inside the container this must
		// stay the all-interfaces address or published ports go dark.
		BindAddress types.BindAddress `json:"bind_address" mapstructure:"bind_address"`
		// TokenEnv names the environment variable holding the access token.
		TokenEnv EnvVarName `json:"token_env" mapstructure:"token_env"`
	}

	// InstallerConfig selects the package installer binary.
	InstallerConfig struct {
		// Binary is the installer executable name or an absolute path.
		Binary string `json:"binary" mapstructure:"binary"`
	}

	// BootConfig holds the full boot configuration. It is built once by the
	// provider and passed down explicitly; nothing reads it from package state.
	BootConfig struct {
		// Workspace locates the mounted workspace.
		Workspace WorkspaceConfig `json:"workspace" mapstructure:"workspace"`
		// Server configures the notebook server binding.
		Server ServerConfig `json:"server" mapstructure:"server"`
		// Installer selects the package installer.
		Installer InstallerConfig `json:"installer" mapstructure:"installer"`
		// Pins are forced-reinstall version pins applied at every boot.
		Pins []pip.Pin `json:"pins" mapstructure:"pins"`
		// Engine is the preferred container engine for image builds.
		Engine EngineChoice `json:"engine" mapstructure:"engine"`
	}
)

// SettingsPath returns the settings file location: the explicit override
// when set, otherwise <dir>/config/lab.env.
func (c WorkspaceConfig) SettingsPath() types.FilesystemPath {
	if c.SettingsFile != "" {
		return c.SettingsFile
	}
	return c.Dir.Join("config", "lab.env")
}

// HooksPath returns the boot hook directory: the explicit override when
// set, otherwise <dir>/config/boot.d.
func (c WorkspaceConfig) HooksPath() types.FilesystemPath {
	if c.HooksDir != "" {
		return c.HooksDir
	}
	return c.Dir.Join("config", "boot.d")
}

// PackagePath returns the editable-install package directory under the
// workspace root.
func (c WorkspaceConfig) PackagePath() types.FilesystemPath {
	return c.Dir.Join(string(c.PackageDir))
}

// IsValid returns whether the WorkspaceConfig has valid fields.
// Dir and PackageDir are required; SettingsFile and HooksDir are validated
// only when non-empty (the zero value means "derive from Dir").
func (c WorkspaceConfig) IsValid() (bool, []error) {
	var errs []error
	if err := c.Dir.Validate(); err != nil {
		errs = append(errs, err)
	}
	if valid, fieldErrs := c.PackageDir.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if c.SettingsFile != "" {
		if err := c.SettingsFile.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.HooksDir != "" {
		if err := c.HooksDir.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return false, []error{&InvalidWorkspaceConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidWorkspaceConfigError.
func (e *InvalidWorkspaceConfigError) Error() string {
	return fmt.Sprintf("invalid workspace config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidWorkspaceConfig for errors.Is() compatibility.
func (e *InvalidWorkspaceConfigError) Unwrap() error { return ErrInvalidWorkspaceConfig }

// IsValid returns whether the ServerConfig has valid fields.
// ConfigDir is validated only when non-empty (the zero value means
// "resolve to ~/.jupyter").
func (c ServerConfig) IsValid() (bool, []error) {
	var errs []error
	if c.ConfigDir != "" {
		if err := c.ConfigDir.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.Port.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.BindAddress.Validate(); err != nil {
		errs = append(errs, err)
	}
	if valid, fieldErrs := c.TokenEnv.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidServerConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidServerConfigError.
func (e *InvalidServerConfigError) Error() string {
	return fmt.Sprintf("invalid server config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidServerConfig for errors.Is() compatibility.
func (e *InvalidServerConfigError) Unwrap() error { return ErrInvalidServerConfig }

// IsValid returns whether the InstallerConfig has valid fields.
func (c InstallerConfig) IsValid() (bool, []error) {
	if strings.TrimSpace(c.Binary) == "" {
		return false, []error{&InvalidInstallerConfigError{
			FieldErrors: []error{errors.New("installer binary must be non-empty")},
		}}
	}
	return true, nil
}

// Error implements the error interface for InvalidInstallerConfigError.
func (e *InvalidInstallerConfigError) Error() string {
	return fmt.Sprintf("invalid installer config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidInstallerConfig for errors.Is() compatibility.
func (e *InvalidInstallerConfigError) Unwrap() error { return ErrInvalidInstallerConfig }

// IsValid returns whether the BootConfig has valid fields.
// It delegates to Workspace.IsValid(), Server.IsValid(), Installer.IsValid(),
// Engine.IsValid(), and each pin's Validate().
func (c BootConfig) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.Workspace.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Server.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Installer.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	for _, p := range c.Pins {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if valid, fieldErrs := c.Engine.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidBootConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidBootConfigError.
func (e *InvalidBootConfigError) Error() string {
	return fmt.Sprintf("invalid boot config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidBootConfig for errors.Is() compatibility.
func (e *InvalidBootConfigError) Unwrap() error { return ErrInvalidBootConfig }

// String returns the string representation of the PackageDirName.
func (n PackageDirName) String() string { return string(n) }

// IsValid returns whether the PackageDirName is valid.
func (n PackageDirName) IsValid() (bool, []error) {
	if strings.TrimSpace(string(n)) == "" {
		return false, []error{&InvalidPackageDirNameError{Value: n, Reason: "must be non-empty"}}
	}
	if strings.HasPrefix(string(n), "/") {
		return false, []error{&InvalidPackageDirNameError{Value: n, Reason: "must be relative to the workspace"}}
	}
	clean := path.Clean(string(n))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return false, []error{&InvalidPackageDirNameError{Value: n, Reason: "must stay inside the workspace"}}
	}
	return true, nil
}

// Error implements the error interface for InvalidPackageDirNameError.
func (e *InvalidPackageDirNameError) Error() string {
	return fmt.Sprintf("invalid package dir name %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidPackageDirName for errors.Is() compatibility.
func (e *InvalidPackageDirNameError) Unwrap() error { return ErrInvalidPackageDirName }

// String returns the string representation of the EnvVarName.
func (n EnvVarName) String() string { return string(n) }

// IsValid returns whether the EnvVarName is a well-formed variable name.
func (n EnvVarName) IsValid() (bool, []error) {
	if !validEnvVarName(string(n)) {
		return false, []error{&InvalidEnvVarNameError{Value: n}}
	}
	return true, nil
}

func validEnvVarName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Error implements the error interface for InvalidEnvVarNameError.
func (e *InvalidEnvVarNameError) Error() string {
	return fmt.Sprintf("invalid environment variable name %q", e.Value)
}

// Unwrap returns ErrInvalidEnvVarName for errors.Is() compatibility.
func (e *InvalidEnvVarNameError) Unwrap() error { return ErrInvalidEnvVarName }

// Error implements the error interface for InvalidEngineChoiceError.
func (e *InvalidEngineChoiceError) Error() string {
	return fmt.Sprintf("invalid engine choice %q (valid: auto, docker, podman)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidEngineChoiceError) Unwrap() error {
	return ErrInvalidEngineChoice
}

// String returns the string representation of the EngineChoice.
func (c EngineChoice) String() string { return string(c) }

// IsValid returns whether the EngineChoice is one of the defined choices,
// and a list of validation errors if it is not.
func (c EngineChoice) IsValid() (bool, []error) {
	switch c {
	case EngineAuto, EngineDocker, EnginePodman:
		return true, nil
	default:
		return false, []error{&InvalidEngineChoiceError{Value: c}}
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *BootConfig {
	return &BootConfig{
		Workspace: WorkspaceConfig{
			Dir:            "/workspace",
			PackageDir:     "project",
			SettingsFile:   "", // Derived from Dir when empty
			HooksDir:       "", // Derived from Dir when empty
			AutoCreateDirs: true,
		},
		Server: ServerConfig{
			ConfigDir:   "", // Resolves to ~/.jupyter when empty
			Port:        8888,
			BindAddress: types.AllInterfaces,
			TokenEnv:    "JUPYTER_TOKEN",
		},
		Installer: InstallerConfig{
			Binary: "pip",
		},
		Pins: []pip.Pin{
			{Name: "numpy", Version: "1.26.4"},
			{Name: "pydicom", Version: "2.4.4"},
			{Name: "simpleitk", Version: "2.3.1"},
		},
		Engine: EngineAuto,
	}
}
