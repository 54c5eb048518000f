// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

func validManifest() plugin.Manifest {
	return plugin.Manifest{
		ID:         "com.example.hello",
		Version:    plugin.Version{Major: 1, Minor: 0, Patch: 0},
		Entry:      "hello.dll",
		ApiVersion: plugin.Version{Major: 1, Minor: 0, Patch: 0},
		Permissions: []plugin.Capability{
			plugin.NewUICapability(plugin.UIScope{Notifications: true}),
		},
	}
}

func TestManifestValidateOK(t *testing.T) {
	m := validManifest()
	assert.NoError(t, m.Validate())
}

func TestManifestValidateRejectsEmptyID(t *testing.T) {
	m := validManifest()
	m.ID = ""
	assert.Error(t, m.Validate())
}

func TestManifestValidateRejectsBadIDGrammar(t *testing.T) {
	m := validManifest()
	m.ID = "Com.Example.Hello"
	assert.Error(t, m.Validate())
}

func TestManifestValidateRejectsPathTraversalEntry(t *testing.T) {
	m := validManifest()
	m.Entry = "../evil.dll"
	assert.Error(t, m.Validate())
}

func TestManifestValidateRejectsAbsoluteEntry(t *testing.T) {
	m := validManifest()
	m.Entry = "C:\\evil.dll"
	assert.Error(t, m.Validate())
}

func TestManifestValidateRejectsUnrecognizedCapabilityCategory(t *testing.T) {
	m := validManifest()
	m.Permissions = []plugin.Capability{{Category: plugin.Category("hardware")}}
	assert.Error(t, m.Validate())
}

func TestCheckAPICompatible(t *testing.T) {
	m := validManifest()
	m.ApiVersion = plugin.Version{Major: 1, Minor: 2, Patch: 0}
	assert.NoError(t, m.CheckAPICompatible(1, 3))
	assert.Error(t, m.CheckAPICompatible(2, 3))
	assert.Error(t, m.CheckAPICompatible(1, 1))
}
