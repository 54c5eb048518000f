// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newPermissionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permission",
		Short: "Inspect and administer plugin permission grants",
	}

	cmd.PersistentFlags().String("address", "127.0.0.1:7420", "gateway address")

	cmd.AddCommand(
		newPermissionListCmd(),
		newPermissionGrantCmd(),
		newPermissionRevokeCmd(),
	)

	return cmd
}

// categoryScopeField maps a capability category to the JSON field the
// server expects the category's scope object under.
var categoryScopeField = map[string]string{
	"filesystem":   "filesystem",
	"network":      "network",
	"ui":           "ui",
	"system":       "system",
	"interprocess": "interprocess",
}

func capabilityBody(category, scopeJSON string) (map[string]interface{}, error) {
	field, ok := categoryScopeField[category]
	if !ok {
		return nil, fmt.Errorf("category must be one of filesystem, network, ui, system, interprocess")
	}
	body := map[string]interface{}{"category": category}
	if scopeJSON != "" {
		var scope interface{}
		if err := json.Unmarshal([]byte(scopeJSON), &scope); err != nil {
			return nil, fmt.Errorf("invalid --scope JSON: %w", err)
		}
		body[field] = scope
	}
	return body, nil
}

func newPermissionGrantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grant [plugin-id] [category]",
		Short: "Grant a plugin a capability outside the normal enable-time consent flow",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			scopeJSON, _ := cmd.Flags().GetString("scope")
			body, err := capabilityBody(args[1], scopeJSON)
			if err != nil {
				return err
			}
			gw, addr := gatewayFrom(cmd)
			var status struct {
				Status string `json:"status"`
			}
			if err := gw.postJSON("/api/v1/plugins/"+args[0]+"/permissions/grant", body, &status); err != nil {
				return fmt.Errorf("%s", formatErr(addr, err))
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s granted\n", args[0], args[1])
			return err
		},
	}
	cmd.Flags().String("scope", "", "JSON object describing the category's scope, e.g. '{\"paths\":[\"C:/data\"]}'")
	return cmd
}

func newPermissionRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke [plugin-id] [category]",
		Short: "Revoke a previously granted capability",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			scopeJSON, _ := cmd.Flags().GetString("scope")
			body, err := capabilityBody(args[1], scopeJSON)
			if err != nil {
				return err
			}
			gw, addr := gatewayFrom(cmd)
			var status struct {
				Status string `json:"status"`
			}
			if err := gw.postJSON("/api/v1/plugins/"+args[0]+"/permissions/revoke", body, &status); err != nil {
				return fmt.Errorf("%s", formatErr(addr, err))
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s revoked\n", args[0], args[1])
			return err
		},
	}
	cmd.Flags().String("scope", "", "JSON object describing the category's scope")
	return cmd
}

type permissionGrantRef struct {
	Category  string `json:"category"`
	Decision  string `json:"decision"`
	Remember  bool   `json:"remember"`
	GrantedAt string `json:"granted_at"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

func newPermissionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [plugin-id]",
		Short: "List a plugin's current permission decisions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, addr := gatewayFrom(cmd)
			var resp struct {
				Permissions []permissionGrantRef `json:"permissions"`
			}
			if err := gw.getJSON("/api/v1/plugins/"+args[0]+"/permissions", &resp); err != nil {
				return fmt.Errorf("%s", formatErr(addr, err))
			}
			out := cmd.OutOrStdout()
			if len(resp.Permissions) == 0 {
				_, err := fmt.Fprintln(out, "No permission decisions recorded")
				return err
			}
			for _, g := range resp.Permissions {
				if _, err := fmt.Fprintf(out, "%s\t%s\tremember=%v\n", g.Category, g.Decision, g.Remember); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
