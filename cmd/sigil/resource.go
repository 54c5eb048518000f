// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newResourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resource",
		Short: "Inspect a plugin's sandbox resource usage, limits, and breach history",
	}

	cmd.PersistentFlags().String("address", "127.0.0.1:7420", "gateway address")

	cmd.AddCommand(
		newResourceUsageCmd(),
		newResourceLimitsCmd(),
		newResourceEventsCmd(),
		newResourceSetLimitsCmd(),
	)

	return cmd
}

func newResourceUsageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage [plugin-id]",
		Short: "Sample a plugin's current resource usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, addr := gatewayFrom(cmd)
			var resp struct {
				Usage map[string]float64 `json:"usage"`
			}
			if err := gw.getJSON("/api/v1/plugins/"+args[0]+"/resources/usage", &resp); err != nil {
				return fmt.Errorf("%s", formatErr(addr, err))
			}
			out := cmd.OutOrStdout()
			for resource, value := range resp.Usage {
				if _, err := fmt.Fprintf(out, "%s: %.2f\n", resource, value); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

type resourceLimitRef struct {
	Resource          string  `json:"resource"`
	SoftLimit         float64 `json:"soft_limit"`
	HardLimit         float64 `json:"hard_limit"`
	MeasurementPeriod string  `json:"measurement_period"`
	BreachAction      string  `json:"breach_action"`
}

func newResourceLimitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "limits [plugin-id]",
		Short: "Get a plugin's effective resource limits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, addr := gatewayFrom(cmd)
			var resp struct {
				Limits []resourceLimitRef `json:"limits"`
			}
			if err := gw.getJSON("/api/v1/plugins/"+args[0]+"/resources/limits", &resp); err != nil {
				return fmt.Errorf("%s", formatErr(addr, err))
			}
			out := cmd.OutOrStdout()
			for _, l := range resp.Limits {
				if _, err := fmt.Fprintf(out, "%s\tsoft=%.2f\thard=%.2f\tover %s -> %s\n",
					l.Resource, l.SoftLimit, l.HardLimit, l.MeasurementPeriod, l.BreachAction); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// newResourceSetLimitsCmd sets a per-plugin resource limit override. The
// limits argument is a JSON array matching resourceLimitRef.
func newResourceSetLimitsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-limits [plugin-id] [limits-json]",
		Short: "Set a per-plugin resource limit override",
		Long:  `limits-json is a JSON array, e.g. '[{"resource":"cpu_percent","soft_limit":50,"hard_limit":80,"measurement_period":"10s","breach_action":"throttle"}]'`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var limits []resourceLimitRef
			if err := json.Unmarshal([]byte(args[1]), &limits); err != nil {
				return fmt.Errorf("invalid limits JSON: %w", err)
			}
			gw, addr := gatewayFrom(cmd)
			var status struct {
				Status string `json:"status"`
			}
			body := map[string]interface{}{"limits": limits}
			if err := gw.putJSON("/api/v1/plugins/"+args[0]+"/resources/limits", body, &status); err != nil {
				return fmt.Errorf("%s", formatErr(addr, err))
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s: limits updated\n", args[0])
			return err
		},
	}
	return cmd
}

func newResourceEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events [plugin-id]",
		Short: "Show recent resource-limit breach/recovery events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, addr := gatewayFrom(cmd)
			var resp struct {
				Events []struct {
					Resource       string  `json:"resource"`
					Edge           string  `json:"edge"`
					Action         string  `json:"action,omitempty"`
					Value          float64 `json:"value"`
					Limit          float64 `json:"limit"`
					OveragePercent float64 `json:"overage_percent"`
					Timestamp      string  `json:"timestamp"`
				} `json:"events"`
			}
			if err := gw.getJSON("/api/v1/plugins/"+args[0]+"/resources/events", &resp); err != nil {
				return fmt.Errorf("%s", formatErr(addr, err))
			}
			out := cmd.OutOrStdout()
			for _, e := range resp.Events {
				action := e.Action
				if action == "" {
					action = "-"
				}
				if _, err := fmt.Fprintf(out, "%s\t%s\t%s\t%s\tvalue=%.2f\tlimit=%.2f\tover=%.1f%%\n",
					e.Timestamp, e.Resource, e.Edge, action, e.Value, e.Limit, e.OveragePercent); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
