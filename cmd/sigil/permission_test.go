// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionListSuccess(t *testing.T) {
	addr, cleanup := testSetupGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/plugins/com.example.hello/permissions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"permissions": []map[string]interface{}{
				{"category": "ui", "decision": "grant", "remember": true},
			},
		})
	}))
	defer cleanup()

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"permission", "list", "com.example.hello", "--address", addr})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "ui\tgrant\tremember=true")
}

func TestPermissionListEmpty(t *testing.T) {
	addr, cleanup := testSetupGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"permissions": []interface{}{}})
	}))
	defer cleanup()

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"permission", "list", "com.example.hello", "--address", addr})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "No permission decisions recorded")
}

func TestPermissionGrantSendsScope(t *testing.T) {
	addr, cleanup := testSetupGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/plugins/com.example.hello/permissions/grant" {
			http.NotFound(w, r)
			return
		}
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "filesystem", body["category"])
		fsScope, ok := body["filesystem"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, []interface{}{"C:/data"}, fsScope["paths"])
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "granted"})
	}))
	defer cleanup()

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{
		"permission", "grant", "com.example.hello", "filesystem",
		"--scope", `{"paths":["C:/data"]}`,
		"--address", addr,
	})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "com.example.hello: filesystem granted")
}

func TestPermissionGrantRejectsUnknownCategory(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"permission", "grant", "com.example.hello", "bogus"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "category must be one of")
}

func TestPermissionGrantRejectsInvalidScopeJSON(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"permission", "grant", "com.example.hello", "ui", "--scope", "{not json"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --scope JSON")
}

func TestPermissionRevoke(t *testing.T) {
	addr, cleanup := testSetupGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/plugins/com.example.hello/permissions/revoke" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "revoked"})
	}))
	defer cleanup()

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"permission", "revoke", "com.example.hello", "network", "--address", addr})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "com.example.hello: network revoked")
}
