// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package registry owns the durable catalog of installed plugins: the
// single writer for installed-plugin records, backed by WAL-mode SQLite so
// the crash-recovery invariant (live state reflects either the pre- or
// post-state of every mutation, never a partial one) comes from the
// database engine rather than a hand-rolled journal format.
package registry

import (
	"time"

	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

// Status is the lifecycle status of an installed plugin record.
type Status string

const (
	StatusEnabled        Status = "enabled"
	StatusDisabled       Status = "disabled"
	StatusErrored        Status = "errored"
	StatusIncompatible   Status = "incompatible"
	StatusPendingRestart Status = "pending_restart"
)

// SourceKind identifies how a plugin was obtained, for update/check_updates.
type SourceKind string

const (
	SourceLocalArchive SourceKind = "local_archive"
	SourceURL          SourceKind = "url"
	SourceStore        SourceKind = "store"
)

// SourceDescriptor records where a plugin came from, so update() can refetch
// from the same place when no explicit source is supplied.
type SourceDescriptor struct {
	Kind SourceKind
	// Locator is the archive path, URL, or store id, depending on Kind.
	Locator string
}

// InstalledRecord is the persistent tuple describing one installed plugin
// version.
type InstalledRecord struct {
	ID          string
	Version     plugin.Version
	InstallPath string
	EntryPath   string
	InstalledAt time.Time
	UpdatedAt   time.Time

	Status      Status
	ErrorReason string // populated when Status is Errored or Incompatible

	GrantedPermissions   []plugin.Capability
	Source               SourceDescriptor
	SignatureFingerprint string
}
