// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package registry_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/registry"
	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

func testDBPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "sigil-registry-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "registry.db")
}

func sampleRecord(id string) *registry.InstalledRecord {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &registry.InstalledRecord{
		ID:          id,
		Version:     plugin.Version{Major: 1, Minor: 0, Patch: 0},
		InstallPath: filepath.Join("plugins", id),
		EntryPath:   "hello.dll",
		InstalledAt: now,
		UpdatedAt:   now,
		Status:      registry.StatusDisabled,
		GrantedPermissions: []plugin.Capability{
			plugin.NewUICapability(plugin.UIScope{Notifications: true}),
		},
		Source:               registry.SourceDescriptor{Kind: registry.SourceLocalArchive, Locator: "/tmp/hello.sigilpkg"},
		SignatureFingerprint: "deadbeef",
	}
}

func TestRegistryCreateGetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	reg, err := registry.Open(testDBPath(t))
	require.NoError(t, err)
	defer reg.Close()

	rec := sampleRecord("com.example.hello")
	require.NoError(t, reg.Create(ctx, rec))

	got, err := reg.Get(ctx, "com.example.hello")
	require.NoError(t, err)
	assert.Equal(t, rec.Version, got.Version)
	assert.Equal(t, registry.StatusDisabled, got.Status)
	assert.Len(t, got.GrantedPermissions, 1)
	assert.Equal(t, plugin.CategoryUI, got.GrantedPermissions[0].Category)

	got.Status = registry.StatusEnabled
	require.NoError(t, reg.Update(ctx, got))

	got, err = reg.Get(ctx, "com.example.hello")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusEnabled, got.Status)

	require.NoError(t, reg.Delete(ctx, "com.example.hello"))
	_, err = reg.Get(ctx, "com.example.hello")
	assert.True(t, sigilerr.IsNotFound(err))
}

func TestRegistryCreateDuplicateIsConflict(t *testing.T) {
	ctx := context.Background()
	reg, err := registry.Open(testDBPath(t))
	require.NoError(t, err)
	defer reg.Close()

	rec := sampleRecord("com.example.hello")
	require.NoError(t, reg.Create(ctx, rec))

	err = reg.Create(ctx, sampleRecord("com.example.hello"))
	require.Error(t, err)
	assert.True(t, sigilerr.IsConflict(err))
}

func TestRegistryUpdateMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	reg, err := registry.Open(testDBPath(t))
	require.NoError(t, err)
	defer reg.Close()

	err = reg.Update(ctx, sampleRecord("com.example.ghost"))
	require.Error(t, err)
	assert.True(t, sigilerr.IsNotFound(err))
}

func TestRegistryDeleteMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	reg, err := registry.Open(testDBPath(t))
	require.NoError(t, err)
	defer reg.Close()

	err = reg.Delete(ctx, "com.example.ghost")
	require.Error(t, err)
	assert.True(t, sigilerr.IsNotFound(err))
}

func TestRegistryListAndListByStatus(t *testing.T) {
	ctx := context.Background()
	reg, err := registry.Open(testDBPath(t))
	require.NoError(t, err)
	defer reg.Close()

	a := sampleRecord("com.example.alpha")
	b := sampleRecord("com.example.beta")
	b.Status = registry.StatusEnabled

	require.NoError(t, reg.Create(ctx, a))
	require.NoError(t, reg.Create(ctx, b))

	all, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	enabled, err := reg.ListByStatus(ctx, registry.StatusEnabled)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "com.example.beta", enabled[0].ID)

	disabled, err := reg.ListByStatus(ctx, registry.StatusDisabled)
	require.NoError(t, err)
	require.Len(t, disabled, 1)
	assert.Equal(t, "com.example.alpha", disabled[0].ID)
}
