// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package loader turns an opaque plugin archive into a live, callable
// native module: it extracts the archive with path-traversal defense,
// parses and validates the manifest, and links the native entry file
// through one of two tiers (out-of-process RPC, or an in-process dev-mode
// fallback against a fixed C ABI).
package loader

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
)

// ManifestFileName is the archive-relative path of the manifest document.
const ManifestFileName = "plugin.yaml"

// ResourcesDir is the optional archive-relative subtree for plugin resources.
const ResourcesDir = "resources"

// Extract unpacks the zip archive at archivePath into destDir, rejecting any
// entry whose normalized path would escape destDir. destDir is created if
// it does not already exist.
func Extract(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeArchiveMalformed, "opening archive %s", archivePath)
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeArchiveMalformed, "creating extraction root %s", destDir)
	}

	cleanRoot := filepath.Clean(destDir)

	for _, f := range r.File {
		target := filepath.Join(cleanRoot, f.Name)
		if !withinRoot(cleanRoot, target) {
			return sigilerr.Errorf(sigilerr.CodeArchivePathTraversal, "archive entry %q escapes the extraction root", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return sigilerr.Wrapf(err, sigilerr.CodeArchiveMalformed, "creating directory %s", target)
			}
			continue
		}

		if err := extractFile(f, target); err != nil {
			return err
		}
	}

	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeArchiveMalformed, "creating directory for %s", target)
	}

	src, err := f.Open()
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeArchiveMalformed, "opening archive entry %s", f.Name)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeArchiveMalformed, "creating file %s", target)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeArchiveMalformed, "writing file %s", target)
	}
	return nil
}

// withinRoot reports whether target is root itself or strictly nested under
// it once both are cleaned — the path-traversal defense for zip slips via
// "../" entries or absolute paths baked into the archive.
func withinRoot(root, target string) bool {
	clean := filepath.Clean(target)
	if clean == root {
		return true
	}
	return strings.HasPrefix(clean, root+string(filepath.Separator))
}
