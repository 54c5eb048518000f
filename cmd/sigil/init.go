// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/yunusgungor/tauri-windows-plugin-system/internal/config"
	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Bootstrap a default config file and persistent state layout",
		Long:  "Writes a default config file (if one doesn't already exist) and creates the app data, plugins/, and trust_store/ directories the gateway expects at startup.",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	cfgPath, err := config.DefaultConfigPath()
	if err != nil {
		return err
	}

	if path := config.BootstrapConfig(); path != "" {
		if _, err := fmt.Fprintf(out, "Wrote default config to %s\n", path); err != nil {
			return err
		}
	} else if _, statErr := os.Stat(cfgPath); statErr == nil {
		if _, err := fmt.Fprintf(out, "Config already exists at %s\n", cfgPath); err != nil {
			return err
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		// The default config wasn't loadable; still attempt to create the
		// app data directory layout from its own default path guess.
		cfg = nil
	}

	appDataDir := filepath.Dir(cfgPath)
	trustStoreDir := filepath.Join(appDataDir, "trust_store")
	pluginsDir := filepath.Join(appDataDir, "plugins")
	if cfg != nil {
		appDataDir = cfg.Paths.AppDataDir
		trustStoreDir = resolvePath(appDataDir, cfg.Paths.TrustStoreDir)
		pluginsDir = filepath.Join(appDataDir, "plugins")
	}

	for _, dir := range []string{appDataDir, trustStoreDir, pluginsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "creating %s", dir)
		}
	}

	_, err = fmt.Fprintf(out, "Initialized host state under %s\n", appDataDir)
	return err
}

func resolvePath(base, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(base, name)
}
