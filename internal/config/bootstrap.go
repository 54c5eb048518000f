// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// defaultAppDataDir returns the per-user directory the host's plugin
// install, registry, and permission-decision files live under:
// %AppData%\sigil-pluginhost on Windows, ~/.sigil-pluginhost elsewhere for
// development off-Windows.
func defaultAppDataDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("AppData"); appData != "" {
			return filepath.Join(appData, "sigil-pluginhost")
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sigil-pluginhost"
	}
	return filepath.Join(home, ".sigil-pluginhost")
}

// DefaultConfigPath returns the path BootstrapConfig writes to and Load's
// caller should default to when the operator hasn't named a config file.
func DefaultConfigPath() (string, error) {
	dir := defaultAppDataDir()
	if dir == "" {
		return "", sigilerr.New(sigilerr.CodeConfigLoadReadFailure, "resolving app data directory")
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// BootstrapConfig writes the default commented config to path if it does
// not already exist. Returns the path written, or empty string if the file
// already existed or an error occurred (non-fatal — logged and skipped).
func BootstrapConfig() string {
	cfgPath, err := DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return ""
	}

	if _, err := os.Stat(cfgPath); err == nil {
		return "" // already exists
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Debug("skipping config bootstrap: cannot create directory", "path", dir, "error", err)
		return ""
	}

	if err := os.WriteFile(cfgPath, DefaultConfigYAML, 0o600); err != nil {
		slog.Debug("skipping config bootstrap: cannot write config", "path", cfgPath, "error", err)
		return ""
	}

	slog.Info("created default config", "path", cfgPath)
	return cfgPath
}
