// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package loader

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

// LoadManifest reads and validates the manifest document at the root of an
// extracted archive, then checks it against the host's API version.
func LoadManifest(extractedDir string, hostMajor, hostMinor int) (*plugin.Manifest, error) {
	path := filepath.Join(extractedDir, ManifestFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeManifestInvalid, "reading manifest at %s", path)
	}

	var m plugin.Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeManifestInvalid, "parsing manifest at %s", path)
	}

	if err := m.Validate(); err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeManifestInvalid, "validating manifest")
	}

	if err := m.CheckAPICompatible(hostMajor, hostMinor); err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeApiIncompatible, "checking manifest api compatibility")
	}

	return &m, nil
}

// EntryPath resolves the manifest's entry filename against extractedDir,
// confirming the resolved path still falls strictly inside it (Validate
// already rejects ".."/absolute entries in the manifest text itself; this
// is the filesystem-level re-check against the actual extracted tree).
func EntryPath(extractedDir string, m *plugin.Manifest) (string, error) {
	root := filepath.Clean(extractedDir)
	target := filepath.Join(root, m.Entry)
	if !withinRoot(root, target) {
		return "", sigilerr.Errorf(sigilerr.CodeArchivePathTraversal, "manifest entry %q escapes the archive root", m.Entry)
	}
	if _, err := os.Stat(target); err != nil {
		return "", sigilerr.Wrapf(err, sigilerr.CodeManifestInvalid, "locating entry file %s", target)
	}
	return target, nil
}
