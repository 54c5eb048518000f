// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yunusgungor/tauri-windows-plugin-system/internal/server"
	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec creates a server with all routes registered and extracts the
// OpenAPI spec that huma generates from the Go type annotations. Using
// no-op service stubs is enough for schema discovery; handlers are never
// invoked during spec generation.
func generateSpec() ([]byte, error) {
	svc, err := server.NewServices(&stubPlugins{}, &stubPermissions{}, &stubResources{})
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating services: %w", err)
	}

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	srv.RegisterServices(svc)

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// No-op service stubs for spec generation. Methods are never called.

type stubPlugins struct{}

func (stubPlugins) List(context.Context) ([]server.PluginSummary, error)      { return nil, nil }
func (stubPlugins) Get(context.Context, string) (*server.PluginDetail, error) { return nil, nil }
func (stubPlugins) InstallFromFile(context.Context, string, bool) (*server.PluginDetail, error) {
	return nil, nil
}
func (stubPlugins) InstallFromURL(context.Context, string, bool) (*server.PluginDetail, error) {
	return nil, nil
}
func (stubPlugins) InstallFromStore(context.Context, string, bool) (*server.PluginDetail, error) {
	return nil, nil
}
func (stubPlugins) Enable(context.Context, string) error    { return nil }
func (stubPlugins) Disable(context.Context, string) error   { return nil }
func (stubPlugins) Uninstall(context.Context, string) error { return nil }
func (stubPlugins) Update(context.Context, string) (*server.PluginDetail, error) {
	return nil, nil
}
func (stubPlugins) CheckForUpdates(context.Context) (map[string]string, map[string]string, error) {
	return nil, nil, nil
}

type stubPermissions struct{}

func (stubPermissions) List(context.Context, string) ([]server.PermissionGrant, error) {
	return nil, nil
}
func (stubPermissions) Grant(context.Context, string, plugin.Capability) error  { return nil }
func (stubPermissions) Revoke(context.Context, string, plugin.Capability) error { return nil }

type stubResources struct{}

func (stubResources) Usage(context.Context, string) (map[string]float64, error) { return nil, nil }
func (stubResources) Limits(context.Context, string) ([]server.ResourceLimit, error) {
	return nil, nil
}
func (stubResources) UpdateLimits(context.Context, string, []server.ResourceLimit) error {
	return nil
}
func (stubResources) LimitEvents(context.Context, string) ([]server.LimitEvent, error) {
	return nil, nil
}
