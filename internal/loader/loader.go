// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package loader

import (
	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

// Tier identifies which dynamic-link tier a prepared module should be
// started on.
type Tier string

const (
	TierOutOfProcess Tier = "out_of_process"
	TierInProcess    Tier = "in_process"
)

// Prepared is the result of extracting an archive and validating its
// manifest: everything the Lifecycle Engine needs to decide whether to
// proceed to signature verification, permission validation, and linking.
type Prepared struct {
	Manifest     *plugin.Manifest
	EntryPath    string
	ExtractedDir string
}

// Prepare extracts archivePath into extractDir, loads and validates its
// manifest against the host's API version, and resolves the entry file
// path. It does not verify the archive's signature or link the module —
// those are separate steps the Lifecycle Engine sequences around Prepare
// (signature verification needs the raw archive bytes, not the extracted
// tree, and linking needs the permission broker's outcome first).
func Prepare(archivePath, extractDir string, hostMajor, hostMinor int) (*Prepared, error) {
	if err := Extract(archivePath, extractDir); err != nil {
		return nil, err
	}

	m, err := LoadManifest(extractDir, hostMajor, hostMinor)
	if err != nil {
		return nil, err
	}

	entry, err := EntryPath(extractDir, m)
	if err != nil {
		return nil, err
	}

	return &Prepared{Manifest: m, EntryPath: entry, ExtractedDir: extractDir}, nil
}
