// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root sigil command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sigil",
		Short:         "Sigil — Windows plugin host gateway",
		Long:          "Sigil loads, sandboxes, and governs signed native plugins for a Windows host application, and exposes their lifecycle over a local REST/SSE surface.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags, read directly by subcommands — config.Load already
	// applies its own env-var and default-value precedence, so there is no
	// need to thread these through a package-level Viper instance.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "override the app data directory (registry, permissions, trust store)")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newInitCmd(),
		newStartCmd(),
		newStatusCmd(),
		newVersionCmd(),
		newPluginCmd(),
		newPermissionCmd(),
		newResourceCmd(),
	)

	return root
}
