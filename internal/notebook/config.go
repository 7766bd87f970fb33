// SPDX-License-Identifier: MPL-2.0

// Package notebook owns the server side of a boot: the runtime config
// artifact written before launch, and the process replacement that hands
// the container over to the notebook server.
package notebook

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gowebpki/jcs"

	"labboot/pkg/types"
)

// ConfigFileName is the runtime config file the server reads from its
// config directory.
const ConfigFileName = "jupyter_server_config.json"

// ServerConfig is the runtime contract written on every boot. It is
// regenerated from scratch each time; whatever was in the config directory
// before is overwritten, so manual edits inside the container do not
// survive a restart.
type ServerConfig struct {
	// BindAddress is the listen address. Published container ports only
	// reach the server when it binds all interfaces.
	BindAddress types.BindAddress
	// Port is the fixed listen port (the image publishes this exact port).
	Port types.ListenPort
	// Token is the browser access token. Empty means open access.
	Token types.AccessToken
	// AllowRemoteAccess permits non-local Host headers; inside a container
	// every request is remote.
	AllowRemoteAccess bool
	// RootDir is the server's document root (the workspace mount).
	RootDir types.FilesystemPath
}

// Validate checks the config fields that have constrained domains.
func (c ServerConfig) Validate() error {
	if err := c.BindAddress.Validate(); err != nil {
		return err
	}
	if err := c.Port.Validate(); err != nil {
		return err
	}
	if err := c.RootDir.Validate(); err != nil {
		return err
	}
	return nil
}

// MarshalCanonical renders the Jupyter Server config document in RFC 8785
// canonical form, so identical inputs produce byte-identical artifacts
// across boots.
func (c ServerConfig) MarshalCanonical() ([]byte, error) {
	doc := map[string]any{
		"ServerApp": map[string]any{
			"ip":                  c.BindAddress.String(),
			"port":                int(c.Port),
			"allow_remote_access": c.AllowRemoteAccess,
			"root_dir":            c.RootDir.String(),
			"open_browser":        false,
		},
		"IdentityProvider": map[string]any{
			"token": c.Token.Reveal(),
		},
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal server config: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize server config: %w", err)
	}
	return canonical, nil
}

// WriteConfig writes the runtime config into dir, creating the directory if
// needed and unconditionally replacing any existing file. The write goes
// through a temp file and rename so the server never sees a partial config.
// It returns the path of the written file.
func WriteConfig(dir string, cfg ServerConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", fmt.Errorf("invalid server config: %w", err)
	}

	data, err := cfg.MarshalCanonical()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create server config dir %q: %w", dir, err)
	}

	path := filepath.Join(dir, ConfigFileName)

	tmp, err := os.CreateTemp(dir, ConfigFileName+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp config file in %q: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to set config file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write server config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close server config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("failed to replace server config %q: %w", path, err)
	}
	return path, nil
}
