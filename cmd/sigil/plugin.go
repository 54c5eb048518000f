// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// pluginRef mirrors server.PluginSummary/PluginDetail closely enough for
// CLI rendering without importing the server package (the CLI only ever
// talks to the gateway over HTTP, never in-process).
type pluginRef struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name,omitempty"`
	Version              string   `json:"version"`
	Status               string   `json:"status"`
	ErrorReason          string   `json:"error_reason,omitempty"`
	InstallPath          string   `json:"install_path,omitempty"`
	GrantedPermissions   []string `json:"granted_permissions,omitempty"`
	SignatureFingerprint string   `json:"signature_fingerprint,omitempty"`
}

func newPluginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugin",
		Short: "Manage plugins",
		Long:  "List, install, enable, disable, update, and uninstall plugins against a running gateway.",
	}

	cmd.PersistentFlags().String("address", "127.0.0.1:7420", "gateway address")

	cmd.AddCommand(
		newPluginListCmd(),
		newPluginGetCmd(),
		newPluginInstallCmd(),
		newPluginEnableCmd(),
		newPluginDisableCmd(),
		newPluginUninstallCmd(),
		newPluginUpdateCmd(),
		newPluginCheckUpdatesCmd(),
	)

	return cmd
}

func gatewayFrom(cmd *cobra.Command) (*gatewayClient, string) {
	addr, _ := cmd.Flags().GetString("address")
	return newGatewayClient(addr), addr
}

func newPluginListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed plugins",
		RunE: func(cmd *cobra.Command, _ []string) error {
			gw, addr := gatewayFrom(cmd)
			out := cmd.OutOrStdout()

			var resp struct {
				Plugins []pluginRef `json:"plugins"`
			}
			if err := gw.getJSON("/api/v1/plugins", &resp); err != nil {
				return fmt.Errorf("%s", formatErr(addr, err))
			}
			if len(resp.Plugins) == 0 {
				_, err := fmt.Fprintln(out, "No plugins installed")
				return err
			}
			for _, p := range resp.Plugins {
				if _, err := fmt.Fprintf(out, "%s\t%s\t%s\n", p.ID, p.Version, p.Status); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newPluginGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [id]",
		Short: "Show a single plugin's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, addr := gatewayFrom(cmd)
			var p pluginRef
			if err := gw.getJSON("/api/v1/plugins/"+args[0], &p); err != nil {
				return fmt.Errorf("%s", formatErr(addr, err))
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "id:       %s\n", p.ID)
			_, _ = fmt.Fprintf(out, "version:  %s\n", p.Version)
			_, _ = fmt.Fprintf(out, "status:   %s\n", p.Status)
			if p.ErrorReason != "" {
				_, _ = fmt.Fprintf(out, "reason:   %s\n", p.ErrorReason)
			}
			_, _ = fmt.Fprintf(out, "path:     %s\n", p.InstallPath)
			_, err := fmt.Fprintf(out, "grants:   %v\n", p.GrantedPermissions)
			return err
		},
	}
}

func newPluginInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install [path-or-url-or-store-id]",
		Short: "Install a plugin from a local archive path, URL, or store id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, addr := gatewayFrom(cmd)
			source, _ := cmd.Flags().GetString("source")
			autoEnable, _ := cmd.Flags().GetBool("enable")

			path := ""
			switch source {
			case "file", "url", "store":
				path = map[string]string{
					"file":  "/api/v1/plugins/install/file",
					"url":   "/api/v1/plugins/install/url",
					"store": "/api/v1/plugins/install/store",
				}[source]
			default:
				return fmt.Errorf("--source must be one of file, url, store")
			}

			body := map[string]interface{}{"auto_enable": autoEnable}
			switch source {
			case "file":
				body["path"] = args[0]
			case "url":
				body["url"] = args[0]
			case "store":
				body["store_id"] = args[0]
			}

			var p pluginRef
			if err := gw.postJSON(path, body, &p); err != nil {
				return fmt.Errorf("%s", formatErr(addr, err))
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Installed %s %s (%s)\n", p.ID, p.Version, p.Status)
			return err
		},
	}

	cmd.Flags().String("source", "file", "source kind: file, url, or store")
	cmd.Flags().Bool("enable", false, "enable immediately after install")

	return cmd
}

func newPluginEnableCmd() *cobra.Command {
	return pluginActionCmd("enable", "Enable a disabled plugin", "/enable")
}

func newPluginDisableCmd() *cobra.Command {
	return pluginActionCmd("disable", "Disable an enabled plugin", "/disable")
}

func newPluginUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall [id]",
		Short: "Uninstall a plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, addr := gatewayFrom(cmd)
			var status struct {
				Status string `json:"status"`
			}
			if err := gw.deleteJSON("/api/v1/plugins/"+args[0], &status); err != nil {
				return fmt.Errorf("%s", formatErr(addr, err))
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], status.Status)
			return err
		},
	}
}

func newPluginUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update [id]",
		Short: "Update a plugin to the latest version from its original source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, addr := gatewayFrom(cmd)
			var p pluginRef
			if err := gw.postJSON("/api/v1/plugins/"+args[0]+"/update", nil, &p); err != nil {
				return fmt.Errorf("%s", formatErr(addr, err))
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Updated %s to %s (%s)\n", p.ID, p.Version, p.Status)
			return err
		},
	}
}

func newPluginCheckUpdatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-updates",
		Short: "Check every store-sourced plugin for a newer version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			gw, addr := gatewayFrom(cmd)
			var resp struct {
				Available map[string]string `json:"available"`
				Failed    map[string]string `json:"failed"`
			}
			if err := gw.getJSON("/api/v1/plugins/updates", &resp); err != nil {
				return fmt.Errorf("%s", formatErr(addr, err))
			}
			out := cmd.OutOrStdout()
			for id, version := range resp.Available {
				if _, err := fmt.Fprintf(out, "%s: update available (%s)\n", id, version); err != nil {
					return err
				}
			}
			for id, reason := range resp.Failed {
				if _, err := fmt.Fprintf(out, "%s: check failed (%s)\n", id, reason); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// pluginActionCmd builds a [id]-argument command that POSTs to
// /api/v1/plugins/{id}<suffix> and prints the resulting status.
func pluginActionCmd(use, short, suffix string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, addr := gatewayFrom(cmd)
			var status struct {
				Status string `json:"status"`
			}
			if err := gw.postJSON("/api/v1/plugins/"+args[0]+suffix, nil, &status); err != nil {
				return fmt.Errorf("%s", formatErr(addr, err))
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], status.Status)
			return err
		},
	}
}
