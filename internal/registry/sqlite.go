// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
)

// Registry is the single-writer, many-reader catalog of installed plugins.
type Registry interface {
	Create(ctx context.Context, rec *InstalledRecord) error
	Update(ctx context.Context, rec *InstalledRecord) error
	Get(ctx context.Context, id string) (*InstalledRecord, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*InstalledRecord, error)
	ListByStatus(ctx context.Context, status Status) ([]*InstalledRecord, error)
	Close() error
}

// SQLiteRegistry implements Registry on WAL-mode SQLite. WAL mode gives the
// crash-recovery durability guarantee for free: SQLite's own journal
// guarantees a mutation is either fully committed or not observed at all
// after a crash.
type SQLiteRegistry struct {
	db *sql.DB
}

// Open opens (or creates) the registry database at dbPath.
func Open(dbPath string) (*SQLiteRegistry, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeRegistryCorrupt, "opening registry database at %s", dbPath)
	}

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, sigilerr.Wrapf(err, sigilerr.CodeRegistryCorrupt, "pinging registry database at %s", dbPath)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, sigilerr.Wrapf(err, sigilerr.CodeRegistryCorrupt, "migrating registry database at %s", dbPath)
	}

	return &SQLiteRegistry{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS installed_plugins (
	id                    TEXT PRIMARY KEY,
	version_major         INTEGER NOT NULL,
	version_minor         INTEGER NOT NULL,
	version_patch         INTEGER NOT NULL,
	install_path          TEXT NOT NULL,
	entry_path            TEXT NOT NULL,
	installed_at          TEXT NOT NULL,
	updated_at            TEXT NOT NULL,
	status                TEXT NOT NULL,
	error_reason          TEXT NOT NULL DEFAULT '',
	granted_permissions   TEXT NOT NULL DEFAULT '[]',
	source_kind           TEXT NOT NULL DEFAULT '',
	source_locator        TEXT NOT NULL DEFAULT '',
	signature_fingerprint TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_installed_plugins_status ON installed_plugins(status);
`
	_, err := db.Exec(ddl)
	return err
}

func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

func (r *SQLiteRegistry) Create(ctx context.Context, rec *InstalledRecord) error {
	perms, err := json.Marshal(rec.GrantedPermissions)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeRegistryWriteFailure, "marshalling granted permissions for %s", rec.ID)
	}

	const q = `INSERT INTO installed_plugins
(id, version_major, version_minor, version_patch, install_path, entry_path, installed_at, updated_at, status, error_reason, granted_permissions, source_kind, source_locator, signature_fingerprint)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, q,
		rec.ID,
		rec.Version.Major, rec.Version.Minor, rec.Version.Patch,
		rec.InstallPath, rec.EntryPath,
		formatTime(rec.InstalledAt), formatTime(rec.UpdatedAt),
		string(rec.Status), rec.ErrorReason,
		string(perms),
		string(rec.Source.Kind), rec.Source.Locator,
		rec.SignatureFingerprint,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sigilerr.Errorf(sigilerr.CodeLifecycleAlreadyExists, "plugin %s is already installed", rec.ID)
		}
		return sigilerr.Wrapf(err, sigilerr.CodeRegistryWriteFailure, "inserting installed record for %s", rec.ID)
	}
	return nil
}

func (r *SQLiteRegistry) Update(ctx context.Context, rec *InstalledRecord) error {
	perms, err := json.Marshal(rec.GrantedPermissions)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeRegistryWriteFailure, "marshalling granted permissions for %s", rec.ID)
	}

	const q = `UPDATE installed_plugins SET
version_major = ?, version_minor = ?, version_patch = ?,
install_path = ?, entry_path = ?, updated_at = ?,
status = ?, error_reason = ?, granted_permissions = ?,
source_kind = ?, source_locator = ?, signature_fingerprint = ?
WHERE id = ?`

	result, err := r.db.ExecContext(ctx, q,
		rec.Version.Major, rec.Version.Minor, rec.Version.Patch,
		rec.InstallPath, rec.EntryPath, formatTime(time.Now()),
		string(rec.Status), rec.ErrorReason, string(perms),
		string(rec.Source.Kind), rec.Source.Locator,
		rec.SignatureFingerprint,
		rec.ID,
	)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeRegistryWriteFailure, "updating installed record for %s", rec.ID)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeRegistryWriteFailure, "checking rows affected for %s", rec.ID)
	}
	if rows == 0 {
		return sigilerr.Errorf(sigilerr.CodeLifecycleNotFound, "plugin %s is not installed", rec.ID)
	}
	return nil
}

func (r *SQLiteRegistry) Get(ctx context.Context, id string) (*InstalledRecord, error) {
	const q = `SELECT id, version_major, version_minor, version_patch, install_path, entry_path,
installed_at, updated_at, status, error_reason, granted_permissions, source_kind, source_locator, signature_fingerprint
FROM installed_plugins WHERE id = ?`

	row := r.db.QueryRowContext(ctx, q, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, sigilerr.Errorf(sigilerr.CodeLifecycleNotFound, "plugin %s is not installed", id)
	}
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeRegistryCorrupt, "reading installed record for %s", id)
	}
	return rec, nil
}

func (r *SQLiteRegistry) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM installed_plugins WHERE id = ?`, id)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeRegistryWriteFailure, "deleting installed record for %s", id)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeRegistryWriteFailure, "checking rows affected for %s", id)
	}
	if rows == 0 {
		return sigilerr.Errorf(sigilerr.CodeLifecycleNotFound, "plugin %s is not installed", id)
	}
	return nil
}

func (r *SQLiteRegistry) List(ctx context.Context) ([]*InstalledRecord, error) {
	const q = `SELECT id, version_major, version_minor, version_patch, install_path, entry_path,
installed_at, updated_at, status, error_reason, granted_permissions, source_kind, source_locator, signature_fingerprint
FROM installed_plugins ORDER BY id ASC`

	return r.queryRecords(ctx, q)
}

func (r *SQLiteRegistry) ListByStatus(ctx context.Context, status Status) ([]*InstalledRecord, error) {
	const q = `SELECT id, version_major, version_minor, version_patch, install_path, entry_path,
installed_at, updated_at, status, error_reason, granted_permissions, source_kind, source_locator, signature_fingerprint
FROM installed_plugins WHERE status = ? ORDER BY id ASC`

	return r.queryRecords(ctx, q, string(status))
}

func (r *SQLiteRegistry) queryRecords(ctx context.Context, q string, args ...any) ([]*InstalledRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeRegistryCorrupt, "listing installed records")
	}
	defer rows.Close()

	var recs []*InstalledRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, sigilerr.Wrap(err, sigilerr.CodeRegistryCorrupt, "scanning installed record")
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// rowScanner abstracts over *sql.Row and *sql.Rows, both of which implement Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*InstalledRecord, error) {
	var rec InstalledRecord
	var installedAt, updatedAt, permsJSON, sourceKind string

	err := row.Scan(
		&rec.ID, &rec.Version.Major, &rec.Version.Minor, &rec.Version.Patch,
		&rec.InstallPath, &rec.EntryPath,
		&installedAt, &updatedAt,
		&rec.Status, &rec.ErrorReason,
		&permsJSON,
		&sourceKind, &rec.Source.Locator,
		&rec.SignatureFingerprint,
	)
	if err != nil {
		return nil, err
	}

	rec.InstalledAt = parseTime(installedAt)
	rec.UpdatedAt = parseTime(updatedAt)
	rec.Source.Kind = SourceKind(sourceKind)

	if permsJSON != "" {
		if err := json.Unmarshal([]byte(permsJSON), &rec.GrantedPermissions); err != nil {
			return nil, err
		}
	}

	return &rec, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func isUniqueViolation(err error) bool {
	// mattn/go-sqlite3 reports constraint violations with this substring;
	// the check matches the message text, not the driver's error type.
	return err != nil && containsFold(err.Error(), "UNIQUE constraint")
}

func containsFold(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if equalFold(s[i:i+len(substr)], substr) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
