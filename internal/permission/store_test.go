// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package permission_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/permission"
	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

func testStorePath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "sigil-permission-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "decisions.json")
}

func TestDecisionStoreOpenMissingFileIsEmpty(t *testing.T) {
	store, err := permission.OpenDecisionStore(testStorePath(t))
	require.NoError(t, err)
	assert.Empty(t, store.List("com.example.hello"))
}

func TestDecisionStorePutLookupRoundTrip(t *testing.T) {
	path := testStorePath(t)
	store, err := permission.OpenDecisionStore(path)
	require.NoError(t, err)

	cap := plugin.NewUICapability(plugin.UIScope{Notifications: true})
	require.NoError(t, store.Put(permission.DecisionRecord{
		PluginID:   "com.example.hello",
		Capability: cap,
		Decision:   permission.Grant,
		Remember:   true,
		GrantedAt:  time.Now(),
	}))

	rec, ok := store.Lookup("com.example.hello", plugin.CategoryUI, time.Now())
	require.True(t, ok)
	assert.Equal(t, permission.Grant, rec.Decision)

	// Persisted to disk, so a fresh store reads the same decision back.
	reopened, err := permission.OpenDecisionStore(path)
	require.NoError(t, err)
	rec, ok = reopened.Lookup("com.example.hello", plugin.CategoryUI, time.Now())
	require.True(t, ok)
	assert.Equal(t, permission.Grant, rec.Decision)
}

func TestDecisionStoreLookupIgnoresUnrememberedRecord(t *testing.T) {
	store, err := permission.OpenDecisionStore(testStorePath(t))
	require.NoError(t, err)

	cap := plugin.NewUICapability(plugin.UIScope{Notifications: true})
	require.NoError(t, store.Put(permission.DecisionRecord{
		PluginID:   "com.example.hello",
		Capability: cap,
		Decision:   permission.Deny,
		Remember:   false,
		GrantedAt:  time.Now(),
	}))

	_, ok := store.Lookup("com.example.hello", plugin.CategoryUI, time.Now())
	assert.False(t, ok)
}

func TestDecisionStoreLookupIgnoresExpiredRecord(t *testing.T) {
	store, err := permission.OpenDecisionStore(testStorePath(t))
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	cap := plugin.NewUICapability(plugin.UIScope{Notifications: true})
	require.NoError(t, store.Put(permission.DecisionRecord{
		PluginID:   "com.example.hello",
		Capability: cap,
		Decision:   permission.Grant,
		Remember:   true,
		GrantedAt:  time.Now().Add(-2 * time.Hour),
		ExpiresAt:  &past,
	}))

	_, ok := store.Lookup("com.example.hello", plugin.CategoryUI, time.Now())
	assert.False(t, ok)
}

func TestDecisionStoreDeleteRemovesRecord(t *testing.T) {
	store, err := permission.OpenDecisionStore(testStorePath(t))
	require.NoError(t, err)

	cap := plugin.NewUICapability(plugin.UIScope{Notifications: true})
	require.NoError(t, store.Put(permission.DecisionRecord{
		PluginID:   "com.example.hello",
		Capability: cap,
		Decision:   permission.Grant,
		Remember:   true,
		GrantedAt:  time.Now(),
	}))

	require.NoError(t, store.Delete("com.example.hello", plugin.CategoryUI))
	_, ok := store.Lookup("com.example.hello", plugin.CategoryUI, time.Now())
	assert.False(t, ok)
}

func TestDecisionStoreGrantsSubsumption(t *testing.T) {
	store, err := permission.OpenDecisionStore(testStorePath(t))
	require.NoError(t, err)

	broad := plugin.NewFilesystemCapability(plugin.FilesystemScope{Read: true, Write: true, Paths: []string{"*"}})
	require.NoError(t, store.Put(permission.DecisionRecord{
		PluginID:   "com.example.hello",
		Capability: broad,
		Decision:   permission.Grant,
		Remember:   true,
		GrantedAt:  time.Now(),
	}))

	grants := store.Grants("com.example.hello", time.Now())
	require.Len(t, grants, 1)
	narrow := plugin.NewFilesystemCapability(plugin.FilesystemScope{Read: true, Paths: []string{"plugin_data"}})
	assert.True(t, grants[0].Capability.Subsumes(narrow))
}
