// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

// RegisterServices sets the service dependencies and registers the §6
// command-surface REST routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-plugins",
		Method:      http.MethodGet,
		Path:        "/api/v1/plugins",
		Summary:     "List installed plugins",
		Tags:        []string{"plugins"},
	}, s.handleListPlugins)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-plugin",
		Method:      http.MethodGet,
		Path:        "/api/v1/plugins/{id}",
		Summary:     "Get plugin details",
		Tags:        []string{"plugins"},
	}, s.handleGetPlugin)

	huma.Register(s.api, huma.Operation{
		OperationID: "install-plugin-from-file",
		Method:      http.MethodPost,
		Path:        "/api/v1/plugins/install/file",
		Summary:     "Install a plugin from a local archive path",
		Tags:        []string{"plugins"},
	}, s.handleInstallFromFile)

	huma.Register(s.api, huma.Operation{
		OperationID: "install-plugin-from-url",
		Method:      http.MethodPost,
		Path:        "/api/v1/plugins/install/url",
		Summary:     "Install a plugin by fetching an archive from a URL",
		Tags:        []string{"plugins"},
	}, s.handleInstallFromURL)

	huma.Register(s.api, huma.Operation{
		OperationID: "install-plugin-from-store",
		Method:      http.MethodPost,
		Path:        "/api/v1/plugins/install/store",
		Summary:     "Install a plugin by store id",
		Tags:        []string{"plugins"},
	}, s.handleInstallFromStore)

	huma.Register(s.api, huma.Operation{
		OperationID: "enable-plugin",
		Method:      http.MethodPost,
		Path:        "/api/v1/plugins/{id}/enable",
		Summary:     "Enable a disabled plugin",
		Tags:        []string{"plugins"},
	}, s.handleEnablePlugin)

	huma.Register(s.api, huma.Operation{
		OperationID: "disable-plugin",
		Method:      http.MethodPost,
		Path:        "/api/v1/plugins/{id}/disable",
		Summary:     "Disable an enabled plugin",
		Tags:        []string{"plugins"},
	}, s.handleDisablePlugin)

	huma.Register(s.api, huma.Operation{
		OperationID: "uninstall-plugin",
		Method:      http.MethodDelete,
		Path:        "/api/v1/plugins/{id}",
		Summary:     "Uninstall a plugin",
		Tags:        []string{"plugins"},
	}, s.handleUninstallPlugin)

	huma.Register(s.api, huma.Operation{
		OperationID: "update-plugin",
		Method:      http.MethodPost,
		Path:        "/api/v1/plugins/{id}/update",
		Summary:     "Update a plugin to the latest version from its original source",
		Tags:        []string{"plugins"},
	}, s.handleUpdatePlugin)

	huma.Register(s.api, huma.Operation{
		OperationID: "check-for-updates",
		Method:      http.MethodGet,
		Path:        "/api/v1/plugins/updates",
		Summary:     "Check every store-sourced plugin for a newer version",
		Tags:        []string{"plugins"},
	}, s.handleCheckForUpdates)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-plugin-permissions",
		Method:      http.MethodGet,
		Path:        "/api/v1/plugins/{id}/permissions",
		Summary:     "List a plugin's current permission decisions",
		Tags:        []string{"permissions"},
	}, s.handleGetPluginPermissions)

	huma.Register(s.api, huma.Operation{
		OperationID: "grant-permission",
		Method:      http.MethodPost,
		Path:        "/api/v1/plugins/{id}/permissions/grant",
		Summary:     "Administratively grant a capability to a plugin",
		Tags:        []string{"permissions"},
	}, s.handleGrantPermission)

	huma.Register(s.api, huma.Operation{
		OperationID: "revoke-permission",
		Method:      http.MethodPost,
		Path:        "/api/v1/plugins/{id}/permissions/revoke",
		Summary:     "Administratively revoke a capability from a plugin",
		Tags:        []string{"permissions"},
	}, s.handleRevokePermission)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-resource-usage",
		Method:      http.MethodGet,
		Path:        "/api/v1/plugins/{id}/resources/usage",
		Summary:     "Sample a plugin's current resource usage",
		Tags:        []string{"resources"},
	}, s.handleGetResourceUsage)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-resource-limits",
		Method:      http.MethodGet,
		Path:        "/api/v1/plugins/{id}/resources/limits",
		Summary:     "Get a plugin's effective resource limits",
		Tags:        []string{"resources"},
	}, s.handleGetResourceLimits)

	huma.Register(s.api, huma.Operation{
		OperationID: "update-resource-limits",
		Method:      http.MethodPut,
		Path:        "/api/v1/plugins/{id}/resources/limits",
		Summary:     "Set a per-plugin resource limit override",
		Tags:        []string{"resources"},
	}, s.handleUpdateResourceLimits)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-limit-events",
		Method:      http.MethodGet,
		Path:        "/api/v1/plugins/{id}/resources/events",
		Summary:     "Get a plugin's recent resource-limit breach/recovery history",
		Tags:        []string{"resources"},
	}, s.handleGetLimitEvents)
}

// --- Request/Response types ---

type listPluginsOutput struct {
	Body struct {
		Plugins []PluginSummary `json:"plugins"`
	}
}

type pluginIDInput struct {
	ID string `path:"id"`
}

type getPluginOutput struct {
	Body PluginDetail
}

type installFileInput struct {
	Body struct {
		Path       string `json:"path" minLength:"1" doc:"Absolute path to a local signed archive"`
		AutoEnable bool   `json:"auto_enable,omitempty" doc:"Enable immediately after a successful install"`
	}
}

type installURLInput struct {
	Body struct {
		URL        string `json:"url" minLength:"1" doc:"URL to fetch the signed archive from"`
		AutoEnable bool   `json:"auto_enable,omitempty"`
	}
}

type installStoreInput struct {
	Body struct {
		StoreID    string `json:"store_id" minLength:"1" doc:"Plugin-store catalog identifier"`
		AutoEnable bool   `json:"auto_enable,omitempty"`
	}
}

type installOutput struct {
	Body PluginDetail
}

type statusOnlyOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

type checkUpdatesOutput struct {
	Body struct {
		Available map[string]string `json:"available" doc:"plugin id to newer version"`
		Failed    map[string]string `json:"failed" doc:"plugin id to failure reason"`
	}
}

type getPermissionsOutput struct {
	Body struct {
		Permissions []PermissionGrant `json:"permissions"`
	}
}

type capabilityInput struct {
	ID   string `path:"id"`
	Body struct {
		Category string                   `json:"category" doc:"filesystem, network, ui, system, or interprocess"`
		FS       plugin.FilesystemScope   `json:"filesystem,omitempty"`
		Net      plugin.NetworkScope      `json:"network,omitempty"`
		UI       plugin.UIScope           `json:"ui,omitempty"`
		Sys      plugin.SystemScope       `json:"system,omitempty"`
		IPC      plugin.InterprocessScope `json:"interprocess,omitempty"`
	}
}

func (in *capabilityInput) capability() plugin.Capability {
	switch plugin.Category(in.Body.Category) {
	case plugin.CategoryFilesystem:
		return plugin.NewFilesystemCapability(in.Body.FS)
	case plugin.CategoryNetwork:
		return plugin.NewNetworkCapability(in.Body.Net)
	case plugin.CategoryUI:
		return plugin.NewUICapability(in.Body.UI)
	case plugin.CategorySystem:
		return plugin.NewSystemCapability(in.Body.Sys)
	case plugin.CategoryInterprocess:
		return plugin.NewInterprocessCapability(in.Body.IPC)
	default:
		return plugin.Capability{Category: plugin.Category(in.Body.Category)}
	}
}

type getUsageOutput struct {
	Body struct {
		Usage map[string]float64 `json:"usage"`
	}
}

type getLimitsOutput struct {
	Body struct {
		Limits []ResourceLimit `json:"limits"`
	}
}

type updateLimitsInput struct {
	ID   string `path:"id"`
	Body struct {
		Limits []ResourceLimit `json:"limits"`
	}
}

type getLimitEventsOutput struct {
	Body struct {
		Events []LimitEvent `json:"events"`
	}
}

// --- Handlers ---

func (s *Server) handleListPlugins(ctx context.Context, _ *struct{}) (*listPluginsOutput, error) {
	plugins, err := s.services.Plugins().List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing plugins", err)
	}
	out := &listPluginsOutput{}
	out.Body.Plugins = plugins
	return out, nil
}

func (s *Server) handleGetPlugin(ctx context.Context, in *pluginIDInput) (*getPluginOutput, error) {
	p, err := s.services.Plugins().Get(ctx, in.ID)
	if err != nil {
		if IsNotFound(err) {
			return nil, huma.Error404NotFound(err.Error())
		}
		return nil, huma.Error500InternalServerError("getting plugin", err)
	}
	return &getPluginOutput{Body: *p}, nil
}

func (s *Server) handleInstallFromFile(ctx context.Context, in *installFileInput) (*installOutput, error) {
	p, err := s.services.Plugins().InstallFromFile(ctx, in.Body.Path, in.Body.AutoEnable)
	if err != nil {
		return nil, installError(err)
	}
	return &installOutput{Body: *p}, nil
}

func (s *Server) handleInstallFromURL(ctx context.Context, in *installURLInput) (*installOutput, error) {
	p, err := s.services.Plugins().InstallFromURL(ctx, in.Body.URL, in.Body.AutoEnable)
	if err != nil {
		return nil, installError(err)
	}
	return &installOutput{Body: *p}, nil
}

func (s *Server) handleInstallFromStore(ctx context.Context, in *installStoreInput) (*installOutput, error) {
	p, err := s.services.Plugins().InstallFromStore(ctx, in.Body.StoreID, in.Body.AutoEnable)
	if err != nil {
		return nil, installError(err)
	}
	return &installOutput{Body: *p}, nil
}

func installError(err error) error {
	if IsNotFound(err) {
		return huma.Error404NotFound(err.Error())
	}
	return huma.Error422UnprocessableEntity(err.Error())
}

func (s *Server) handleEnablePlugin(ctx context.Context, in *pluginIDInput) (*statusOnlyOutput, error) {
	if err := s.services.Plugins().Enable(ctx, in.ID); err != nil {
		if IsNotFound(err) {
			return nil, huma.Error404NotFound(err.Error())
		}
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	out := &statusOnlyOutput{}
	out.Body.Status = "enabled"
	return out, nil
}

func (s *Server) handleDisablePlugin(ctx context.Context, in *pluginIDInput) (*statusOnlyOutput, error) {
	if err := s.services.Plugins().Disable(ctx, in.ID); err != nil {
		if IsNotFound(err) {
			return nil, huma.Error404NotFound(err.Error())
		}
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	out := &statusOnlyOutput{}
	out.Body.Status = "disabled"
	return out, nil
}

func (s *Server) handleUninstallPlugin(ctx context.Context, in *pluginIDInput) (*statusOnlyOutput, error) {
	if err := s.services.Plugins().Uninstall(ctx, in.ID); err != nil {
		if IsNotFound(err) {
			return nil, huma.Error404NotFound(err.Error())
		}
		return nil, huma.Error500InternalServerError("uninstalling plugin", err)
	}
	out := &statusOnlyOutput{}
	out.Body.Status = "uninstalled"
	return out, nil
}

func (s *Server) handleUpdatePlugin(ctx context.Context, in *pluginIDInput) (*installOutput, error) {
	p, err := s.services.Plugins().Update(ctx, in.ID)
	if err != nil {
		if IsNotFound(err) {
			return nil, huma.Error404NotFound(err.Error())
		}
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	return &installOutput{Body: *p}, nil
}

func (s *Server) handleCheckForUpdates(ctx context.Context, _ *struct{}) (*checkUpdatesOutput, error) {
	available, failed, err := s.services.Plugins().CheckForUpdates(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("checking for updates", err)
	}
	out := &checkUpdatesOutput{}
	out.Body.Available = available
	out.Body.Failed = failed
	return out, nil
}

func (s *Server) handleGetPluginPermissions(ctx context.Context, in *pluginIDInput) (*getPermissionsOutput, error) {
	grants, err := s.services.Permissions().List(ctx, in.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing permissions", err)
	}
	out := &getPermissionsOutput{}
	out.Body.Permissions = grants
	return out, nil
}

func (s *Server) handleGrantPermission(ctx context.Context, in *capabilityInput) (*statusOnlyOutput, error) {
	if err := s.services.Permissions().Grant(ctx, in.ID, in.capability()); err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	out := &statusOnlyOutput{}
	out.Body.Status = "granted"
	return out, nil
}

func (s *Server) handleRevokePermission(ctx context.Context, in *capabilityInput) (*statusOnlyOutput, error) {
	if err := s.services.Permissions().Revoke(ctx, in.ID, in.capability()); err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	out := &statusOnlyOutput{}
	out.Body.Status = "revoked"
	return out, nil
}

func (s *Server) handleGetResourceUsage(ctx context.Context, in *pluginIDInput) (*getUsageOutput, error) {
	usage, err := s.services.Resources().Usage(ctx, in.ID)
	if err != nil {
		if IsNotFound(err) {
			return nil, huma.Error404NotFound(err.Error())
		}
		return nil, huma.Error500InternalServerError("getting resource usage", err)
	}
	out := &getUsageOutput{}
	out.Body.Usage = usage
	return out, nil
}

func (s *Server) handleGetResourceLimits(ctx context.Context, in *pluginIDInput) (*getLimitsOutput, error) {
	limits, err := s.services.Resources().Limits(ctx, in.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("getting resource limits", err)
	}
	out := &getLimitsOutput{}
	out.Body.Limits = limits
	return out, nil
}

func (s *Server) handleUpdateResourceLimits(ctx context.Context, in *updateLimitsInput) (*statusOnlyOutput, error) {
	if err := s.services.Resources().UpdateLimits(ctx, in.ID, in.Body.Limits); err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	out := &statusOnlyOutput{}
	out.Body.Status = "updated"
	return out, nil
}

func (s *Server) handleGetLimitEvents(ctx context.Context, in *pluginIDInput) (*getLimitEventsOutput, error) {
	events, err := s.services.Resources().LimitEvents(ctx, in.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("getting limit events", err)
	}
	out := &getLimitEventsOutput{}
	out.Body.Events = events
	return out, nil
}
