// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package lifecycle

import (
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/permission"
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/sandbox"
	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

// maxLimitEventsPerPlugin bounds the in-memory breach-event history kept
// for get_limit_events; older events fall off once this many have
// accumulated for a single plugin.
const maxLimitEventsPerPlugin = 200

// Permissions returns every capability decision recorded for a plugin,
// granted or denied, remembered or one-shot.
func (e *Engine) Permissions(pluginID string) []permission.DecisionRecord {
	return e.broker.List(pluginID)
}

// GrantPermission records an explicit grant for a capability outside the
// normal enable()-time consent flow, e.g. in response to an operator
// action in the host UI.
func (e *Engine) GrantPermission(pluginID string, cap plugin.Capability) error {
	if err := e.broker.Grant(pluginID, cap); err != nil {
		return err
	}
	e.publish(EventPermissionGranted, pluginID, "", string(cap.Category))
	return nil
}

// RevokePermission withdraws a previously granted capability. A plugin
// that is currently enabled keeps running; the capability simply stops
// being honored the next time the plugin's native module calls into it.
func (e *Engine) RevokePermission(pluginID string, cap plugin.Capability) error {
	if err := e.broker.Revoke(pluginID, cap); err != nil {
		return err
	}
	e.publish(EventPermissionDenied, pluginID, "", string(cap.Category))
	return nil
}

// ResourceLimits returns the limits in effect for a plugin: its
// per-plugin override if one has been set via UpdateResourceLimits, or
// the engine's configured defaults otherwise.
func (e *Engine) ResourceLimits(pluginID string) []sandbox.ResourceLimit {
	e.mu.Lock()
	defer e.mu.Unlock()
	if override, ok := e.limitOverrides[pluginID]; ok {
		return override
	}
	return e.limits
}

// UpdateResourceLimits sets a per-plugin override for resource limits. The
// containment backend has no live-reconfiguration primitive, so the
// override takes effect the next time the plugin is enabled; a plugin
// that is already running keeps its current limits until then.
func (e *Engine) UpdateResourceLimits(pluginID string, limits []sandbox.ResourceLimit) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.limitOverrides == nil {
		e.limitOverrides = make(map[string][]sandbox.ResourceLimit)
	}
	e.limitOverrides[pluginID] = limits
	return nil
}

// ResourceUsage takes an instantaneous resource sample for a plugin's
// running container. It returns an error if the plugin is not currently
// enabled.
func (e *Engine) ResourceUsage(pluginID string) (map[sandbox.Resource]float64, error) {
	e.mu.Lock()
	live := e.live[pluginID]
	e.mu.Unlock()
	if live == nil || live.container == nil {
		return nil, sigilerr.Errorf(sigilerr.CodeLifecycleInvalidState,
			"plugin %q is not enabled or is not under containment", pluginID)
	}
	return live.container.Usage()
}

// LimitEvents returns the most recent resource-limit breach/recovery
// events recorded for a plugin, oldest first, capped at limit entries (0
// means no cap).
func (e *Engine) LimitEvents(pluginID string, limit int) []sandbox.BreachEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	events := e.limitEvents[pluginID]
	if limit <= 0 || limit >= len(events) {
		out := make([]sandbox.BreachEvent, len(events))
		copy(out, events)
		return out
	}
	out := make([]sandbox.BreachEvent, limit)
	copy(out, events[len(events)-limit:])
	return out
}

// recordLimitEvent appends to a plugin's bounded breach-event history.
// Called from onBreach, which already holds no lock of its own.
func (e *Engine) recordLimitEvent(ev sandbox.BreachEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.limitEvents == nil {
		e.limitEvents = make(map[string][]sandbox.BreachEvent)
	}
	events := append(e.limitEvents[ev.PluginID], ev)
	if len(events) > maxLimitEventsPerPlugin {
		events = events[len(events)-maxLimitEventsPerPlugin:]
	}
	e.limitEvents[ev.PluginID] = events
}
