// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

func TestVersionCompare(t *testing.T) {
	assert.Equal(t, 0, plugin.Version{Major: 1, Minor: 2, Patch: 3}.Compare(plugin.Version{Major: 1, Minor: 2, Patch: 3}))
	assert.Equal(t, -1, plugin.Version{Major: 1, Minor: 0, Patch: 0}.Compare(plugin.Version{Major: 1, Minor: 0, Patch: 1}))
	assert.Equal(t, 1, plugin.Version{Major: 2, Minor: 0, Patch: 0}.Compare(plugin.Version{Major: 1, Minor: 9, Patch: 9}))
}

func TestVersionString(t *testing.T) {
	assert.Equal(t, "1.2.3", plugin.Version{Major: 1, Minor: 2, Patch: 3}.String())
}

func TestManifestFields(t *testing.T) {
	manifest := plugin.Manifest{
		ID:         "com.example.hello",
		Version:    plugin.Version{Major: 1, Minor: 0, Patch: 0},
		Entry:      "hello.dll",
		ApiVersion: plugin.Version{Major: 1, Minor: 0, Patch: 0},
		Permissions: []plugin.Capability{
			plugin.NewUICapability(plugin.UIScope{Notifications: true}),
		},
	}
	assert.Equal(t, "com.example.hello", manifest.ID)
	assert.Len(t, manifest.Permissions, 1)
	assert.Equal(t, plugin.CategoryUI, manifest.Permissions[0].Category)
}

func TestCapabilitySubsumesSameCategory(t *testing.T) {
	broad := plugin.NewFilesystemCapability(plugin.FilesystemScope{Read: true, Write: true, Paths: []string{"*"}})
	narrow := plugin.NewFilesystemCapability(plugin.FilesystemScope{Read: true, Paths: []string{"plugin_data"}})
	assert.True(t, broad.Subsumes(narrow))
	assert.False(t, narrow.Subsumes(broad))
}

func TestCapabilitySubsumesDifferentCategoryIsFalse(t *testing.T) {
	fs := plugin.NewFilesystemCapability(plugin.FilesystemScope{Read: true})
	net := plugin.NewNetworkCapability(plugin.NetworkScope{AllowedHosts: []string{"*"}})
	assert.False(t, fs.Subsumes(net))
	assert.False(t, net.Subsumes(fs))
}

func TestCapabilityIsHighRisk(t *testing.T) {
	assert.True(t, plugin.NewFilesystemCapability(plugin.FilesystemScope{Paths: []string{"C:\\"}}).IsHighRisk())
	assert.True(t, plugin.NewNetworkCapability(plugin.NetworkScope{AllowedHosts: []string{"*"}}).IsHighRisk())
	assert.False(t, plugin.NewUICapability(plugin.UIScope{Notifications: true}).IsHighRisk())
}
