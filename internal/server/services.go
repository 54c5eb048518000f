// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"

	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

// IsNotFound reports whether err carries the server.entity.not_found code.
// Service implementations should return sigilerr.Errorf(sigilerr.CodeServerEntityNotFound, ...)
// so handlers can distinguish "not found" from internal failures.
func IsNotFound(err error) bool {
	return sigilerr.HasCode(err, sigilerr.CodeServerEntityNotFound)
}

// Services holds the dependencies injected into route handlers, one per
// §6 command-surface grouping. Each field is an interface so the Lifecycle
// Engine, Permission Broker, and Sandbox Governor can be exercised through
// fakes in handler tests without a real archive/process/job object.
type Services struct {
	plugins     PluginService
	permissions PermissionService
	resources   ResourceService
}

// NewServices creates a Services instance with validation. Returns an
// error if any required service is nil.
func NewServices(plugins PluginService, permissions PermissionService, resources ResourceService) (*Services, error) {
	if plugins == nil {
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "plugin service is required")
	}
	if permissions == nil {
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "permission service is required")
	}
	if resources == nil {
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "resource service is required")
	}
	return &Services{plugins: plugins, permissions: permissions, resources: resources}, nil
}

func (s *Services) Plugins() PluginService         { return s.plugins }
func (s *Services) Permissions() PermissionService { return s.permissions }
func (s *Services) Resources() ResourceService      { return s.resources }

// PluginService backs list_plugins, get_plugin, install_plugin_from_*,
// enable_plugin, disable_plugin, uninstall_plugin, update_plugin, and
// check_for_updates.
type PluginService interface {
	List(ctx context.Context) ([]PluginSummary, error)
	Get(ctx context.Context, id string) (*PluginDetail, error)
	InstallFromFile(ctx context.Context, path string, autoEnable bool) (*PluginDetail, error)
	InstallFromURL(ctx context.Context, url string, autoEnable bool) (*PluginDetail, error)
	InstallFromStore(ctx context.Context, storeID string, autoEnable bool) (*PluginDetail, error)
	Enable(ctx context.Context, id string) error
	Disable(ctx context.Context, id string) error
	Uninstall(ctx context.Context, id string) error
	Update(ctx context.Context, id string) (*PluginDetail, error)
	CheckForUpdates(ctx context.Context) (map[string]string, map[string]string, error)
}

// PermissionService backs get_plugin_permissions, grant_permission, and
// revoke_permission.
type PermissionService interface {
	List(ctx context.Context, pluginID string) ([]PermissionGrant, error)
	Grant(ctx context.Context, pluginID string, cap plugin.Capability) error
	Revoke(ctx context.Context, pluginID string, cap plugin.Capability) error
}

// ResourceService backs get_resource_usage, get_resource_limits,
// update_resource_limits, and get_limit_events.
type ResourceService interface {
	Usage(ctx context.Context, pluginID string) (map[string]float64, error)
	Limits(ctx context.Context, pluginID string) ([]ResourceLimit, error)
	UpdateLimits(ctx context.Context, pluginID string, limits []ResourceLimit) error
	LimitEvents(ctx context.Context, pluginID string) ([]LimitEvent, error)
}

// PluginSummary is the REST representation of an installed plugin in list
// results.
type PluginSummary struct {
	ID      string `json:"id" doc:"Reverse-DNS plugin identifier"`
	Name    string `json:"name,omitempty" doc:"Human-readable plugin name"`
	Version string `json:"version" doc:"Installed version"`
	Status  string `json:"status" doc:"Lifecycle status (enabled, disabled, errored, incompatible, pending_restart)"`
}

// PluginDetail is the full REST representation of an installed plugin.
type PluginDetail struct {
	ID                   string   `json:"id" doc:"Reverse-DNS plugin identifier"`
	Name                 string   `json:"name,omitempty" doc:"Human-readable plugin name"`
	Version              string   `json:"version" doc:"Installed version"`
	Status               string   `json:"status" doc:"Lifecycle status"`
	ErrorReason          string   `json:"error_reason,omitempty" doc:"Populated when status is errored or incompatible"`
	InstallPath          string   `json:"install_path" doc:"Absolute path to the plugin's install directory"`
	GrantedPermissions   []string `json:"granted_permissions" doc:"Capability categories currently granted"`
	SignatureFingerprint string   `json:"signature_fingerprint,omitempty" doc:"Leaf certificate fingerprint from the signature envelope"`
}

// PermissionGrant is the REST representation of one permission-decision
// record for a plugin.
type PermissionGrant struct {
	Category   string `json:"category" doc:"Capability category"`
	Decision   string `json:"decision" doc:"grant or deny"`
	Remember   bool   `json:"remember" doc:"Whether the decision survives a host restart"`
	GrantedAt  string `json:"granted_at" doc:"RFC3339 timestamp of the decision"`
	ExpiresAt  string `json:"expires_at,omitempty" doc:"RFC3339 expiry, if any"`
}

// ResourceLimit is the REST representation of one resource-limit record.
type ResourceLimit struct {
	Resource          string  `json:"resource" doc:"Resource dimension (cpu_percent, mem_mb, ...)"`
	SoftLimit         float64 `json:"soft_limit"`
	HardLimit         float64 `json:"hard_limit"`
	MeasurementPeriod string  `json:"measurement_period" doc:"Go duration string, e.g. 10s"`
	BreachAction      string  `json:"breach_action" doc:"warn, throttle, suspend, or terminate"`
}

// LimitEvent is the REST representation of one soft/hard-breach or
// recovery edge observed by the governor.
type LimitEvent struct {
	Resource       string  `json:"resource"`
	Edge           string  `json:"edge" doc:"soft_breach, hard_breach, or recovered"`
	Action         string  `json:"action,omitempty" doc:"Populated for hard_breach"`
	Value          float64 `json:"value"`
	Limit          float64 `json:"limit"`
	OveragePercent float64 `json:"overage_percent" doc:"How far value sits above limit, as a percentage"`
	Timestamp      string  `json:"timestamp" doc:"RFC3339 timestamp of the evaluation tick that produced this edge"`
}
