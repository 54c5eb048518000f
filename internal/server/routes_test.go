// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yunusgungor/tauri-windows-plugin-system/internal/server"
	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

type mockPluginService struct{}

func (m *mockPluginService) List(_ context.Context) ([]server.PluginSummary, error) {
	return []server.PluginSummary{
		{ID: "com.example.hello", Version: "1.0.0", Status: "enabled"},
	}, nil
}

func (m *mockPluginService) Get(_ context.Context, id string) (*server.PluginDetail, error) {
	if id != "com.example.hello" {
		return nil, sigilerr.Errorf(sigilerr.CodeServerEntityNotFound, "plugin %q not found", id)
	}
	return &server.PluginDetail{
		ID: id, Version: "1.0.0", Status: "enabled",
		GrantedPermissions: []string{"ui"},
	}, nil
}

func (m *mockPluginService) InstallFromFile(_ context.Context, path string, _ bool) (*server.PluginDetail, error) {
	if path == "" {
		return nil, sigilerr.New(sigilerr.CodeArchiveMalformed, "empty path")
	}
	return &server.PluginDetail{ID: "com.example.hello", Version: "1.0.0", Status: "disabled"}, nil
}

func (m *mockPluginService) InstallFromURL(_ context.Context, url string, _ bool) (*server.PluginDetail, error) {
	return &server.PluginDetail{ID: "com.example.hello", Version: "1.0.0", Status: "disabled"}, nil
}

func (m *mockPluginService) InstallFromStore(_ context.Context, storeID string, _ bool) (*server.PluginDetail, error) {
	return &server.PluginDetail{ID: storeID, Version: "1.0.0", Status: "disabled"}, nil
}

func (m *mockPluginService) Enable(_ context.Context, id string) error {
	if id != "com.example.hello" {
		return sigilerr.Errorf(sigilerr.CodeServerEntityNotFound, "plugin %q not found", id)
	}
	return nil
}

func (m *mockPluginService) Disable(_ context.Context, id string) error { return nil }

func (m *mockPluginService) Uninstall(_ context.Context, id string) error { return nil }

func (m *mockPluginService) Update(_ context.Context, id string) (*server.PluginDetail, error) {
	return &server.PluginDetail{ID: id, Version: "1.1.0", Status: "enabled"}, nil
}

func (m *mockPluginService) CheckForUpdates(_ context.Context) (map[string]string, map[string]string, error) {
	return map[string]string{"com.example.hello": "1.1.0"}, map[string]string{}, nil
}

type mockPermissionService struct{}

func (m *mockPermissionService) List(_ context.Context, _ string) ([]server.PermissionGrant, error) {
	return []server.PermissionGrant{{Category: "ui", Decision: "grant", Remember: true}}, nil
}

func (m *mockPermissionService) Grant(_ context.Context, _ string, _ plugin.Capability) error {
	return nil
}

func (m *mockPermissionService) Revoke(_ context.Context, _ string, _ plugin.Capability) error {
	return nil
}

type mockResourceService struct{}

func (m *mockResourceService) Usage(_ context.Context, _ string) (map[string]float64, error) {
	return map[string]float64{"cpu_percent": 12.5}, nil
}

func (m *mockResourceService) Limits(_ context.Context, _ string) ([]server.ResourceLimit, error) {
	return []server.ResourceLimit{{Resource: "mem_mb", SoftLimit: 100, HardLimit: 200, MeasurementPeriod: "10s", BreachAction: "throttle"}}, nil
}

func (m *mockResourceService) UpdateLimits(_ context.Context, _ string, _ []server.ResourceLimit) error {
	return nil
}

func (m *mockResourceService) LimitEvents(_ context.Context, _ string) ([]server.LimitEvent, error) {
	return []server.LimitEvent{{Resource: "mem_mb", Edge: "soft_breach", Value: 110, Limit: 100, OveragePercent: 10}}, nil
}

func newTestServer(t *testing.T) *server.Server {
	t.Helper()
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)

	svc, err := server.NewServices(&mockPluginService{}, &mockPermissionService{}, &mockResourceService{})
	require.NoError(t, err)
	srv.RegisterServices(svc)
	return srv
}

func TestListPlugins(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/plugins", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Plugins []server.PluginSummary `json:"plugins"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Plugins, 1)
	assert.Equal(t, "com.example.hello", body.Plugins[0].ID)
}

func TestGetPluginNotFound(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/plugins/com.example.missing", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEnablePlugin(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/plugins/com.example.hello/enable", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "enabled", body.Status)
}

func TestGetPluginPermissions(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/plugins/com.example.hello/permissions", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Permissions []server.PermissionGrant `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Permissions, 1)
	assert.Equal(t, "ui", body.Permissions[0].Category)
}

func TestGetResourceUsage(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/plugins/com.example.hello/resources/usage", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Usage map[string]float64 `json:"usage"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 12.5, body.Usage["cpu_percent"])
}

func TestGetLimitEventsCarriesOveragePercent(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/plugins/com.example.hello/resources/events", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Events []server.LimitEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, 10.0, body.Events[0].OveragePercent)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
