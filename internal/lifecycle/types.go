// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package lifecycle coordinates install, enable, disable, update, and
// uninstall so that observable state — filesystem layout, the registry,
// active module handles, and granted permissions — stays consistent under
// success, failure, and concurrent requests. It composes the registry, the
// module loader, the signature verifier, the permission broker, and the
// sandbox governor; none of those packages know about each other.
package lifecycle

import (
	"context"

	"github.com/yunusgungor/tauri-windows-plugin-system/internal/registry"
	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

// Source identifies where to fetch a plugin archive from for an install
// operation. LocalArchive is handled directly by the
// engine; Url and StoreID are handled through an injected Fetcher, since
// the plugin-store HTTP client is an external collaborator specified only
// at its interface.
type Source = registry.SourceDescriptor

// NewLocalSource builds a Source pointing at an archive already present on
// disk.
func NewLocalSource(path string) Source {
	return Source{Kind: registry.SourceLocalArchive, Locator: path}
}

// Fetcher resolves a non-local Source into a local archive file. The
// returned cleanup must be called once the caller is done with the
// archive, win or lose.
type Fetcher interface {
	Fetch(ctx context.Context, source Source) (archivePath string, cleanup func(), err error)
}

// InstallOptions customizes a single install() call.
type InstallOptions struct {
	// AutoEnable, if true, enables the plugin immediately after a
	// successful install instead of leaving it Disabled.
	AutoEnable bool
}

// UpdateChecker queries an external store for the latest known version of
// a store-sourced plugin. Like Fetcher, this is an external collaborator
// boundary: the plugin-store HTTP client itself is out of scope here.
type UpdateChecker interface {
	LatestVersion(ctx context.Context, storeID string) (plugin.Version, error)
}
