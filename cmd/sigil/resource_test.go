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

func TestResourceUsage(t *testing.T) {
	addr, cleanup := testSetupGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/plugins/com.example.hello/resources/usage" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"usage": map[string]float64{"cpu_percent": 12.5},
		})
	}))
	defer cleanup()

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"resource", "usage", "com.example.hello", "--address", addr})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "cpu_percent: 12.50")
}

func TestResourceLimits(t *testing.T) {
	addr, cleanup := testSetupGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/plugins/com.example.hello/resources/limits" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"limits": []map[string]interface{}{
				{"resource": "mem_mb", "soft_limit": 100, "hard_limit": 200, "measurement_period": "10s", "breach_action": "throttle"},
			},
		})
	}))
	defer cleanup()

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"resource", "limits", "com.example.hello", "--address", addr})

	require.NoError(t, root.Execute())
	output := buf.String()
	assert.Contains(t, output, "mem_mb")
	assert.Contains(t, output, "soft=100.00")
	assert.Contains(t, output, "hard=200.00")
	assert.Contains(t, output, "throttle")
}

func TestResourceSetLimits(t *testing.T) {
	addr, cleanup := testSetupGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/plugins/com.example.hello/resources/limits" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, http.MethodPut, r.Method)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		limits, ok := body["limits"].([]interface{})
		require.True(t, ok)
		require.Len(t, limits, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "updated"})
	}))
	defer cleanup()

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{
		"resource", "set-limits", "com.example.hello",
		`[{"resource":"cpu_percent","soft_limit":50,"hard_limit":80,"measurement_period":"10s","breach_action":"throttle"}]`,
		"--address", addr,
	})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "com.example.hello: limits updated")
}

func TestResourceSetLimitsRejectsInvalidJSON(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"resource", "set-limits", "com.example.hello", "{not an array"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid limits JSON")
}

func TestResourceEventsShowsOveragePercent(t *testing.T) {
	addr, cleanup := testSetupGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/plugins/com.example.hello/resources/events" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"events": []map[string]interface{}{
				{
					"resource": "mem_mb", "edge": "soft_breach", "value": 110, "limit": 100,
					"overage_percent": 10, "timestamp": "2026-08-06T12:00:00Z",
				},
			},
		})
	}))
	defer cleanup()

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"resource", "events", "com.example.hello", "--address", addr})

	require.NoError(t, root.Execute())
	output := buf.String()
	assert.Contains(t, output, "2026-08-06T12:00:00Z")
	assert.Contains(t, output, "mem_mb")
	assert.Contains(t, output, "soft_breach")
	assert.Contains(t, output, "over=10.0%")
}
