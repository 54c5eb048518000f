// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yunusgungor/tauri-windows-plugin-system/internal/config"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the sigil plugin host gateway",
		Long:  "Load configuration, wire the registry, signature verifier, permission broker, sandbox governor, and lifecycle engine, and start the REST/SSE server.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override the REST/SSE listen address (host:port)")

	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	dataDirOverride, _ := cmd.Flags().GetString("data-dir")
	listenOverride, _ := cmd.Flags().GetString("listen")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if dataDirOverride != "" {
		cfg.Paths.AppDataDir = dataDirOverride
	}
	if listenOverride != "" {
		cfg.Server.ListenAddr = listenOverride
	}

	out := cmd.OutOrStdout()
	if verbose {
		if _, err := fmt.Fprintf(out, "app data dir: %s\n", cfg.Paths.AppDataDir); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw, err := WireGateway(ctx, cfg, cfg.Paths.AppDataDir)
	if err != nil {
		return fmt.Errorf("wiring gateway: %w", err)
	}
	defer func() { _ = gw.Close() }()

	if _, err := fmt.Fprintf(out, "Starting sigil gateway on %s\n", cfg.Server.ListenAddr); err != nil {
		return err
	}

	if err := gw.Start(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}
