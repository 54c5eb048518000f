// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package lifecycle

import (
	"sync"
	"time"

	"github.com/yunusgungor/tauri-windows-plugin-system/internal/registry"
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/sandbox"
)

// EventKind identifies the category of a published Event.
type EventKind string

const (
	EventPluginInstalled   EventKind = "plugin_installed"
	EventPluginUpdated     EventKind = "plugin_updated"
	EventPluginUninstalled EventKind = "plugin_uninstalled"
	EventStatusChanged     EventKind = "status_changed"
	EventSoftLimitBreached EventKind = "soft_limit_breached"
	EventHardLimitBreached EventKind = "hard_limit_breached"
	EventLimitRecovered    EventKind = "limit_recovered"
	EventPermissionGranted EventKind = "permission_granted"
	EventPermissionDenied  EventKind = "permission_denied"
)

// Event is published to every subscriber on every lifecycle state change
// and every resource-limit edge. The UI shell collaborator turns these into
// SSE frames; this package has no opinion on wire format. Resource/Value/
// Limit/Action are populated only for the three limit-edge kinds.
type Event struct {
	Kind      EventKind
	PluginID  string
	Status    registry.Status
	Reason    string
	Resource  sandbox.Resource
	Value     float64
	Limit     float64
	Action    sandbox.BreachAction
	Timestamp time.Time
}

// Bus is a small fan-out broadcaster: every Subscribe gets its own
// buffered channel fed by Publish. A slow or absent subscriber never
// blocks the engine — a full channel just drops the event for that
// subscriber, since a replayable history is the UI shell's job (it can
// always re-fetch current state via the query operations) not this
// package's.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel that receives every future Publish call,
// and an unsubscribe function the caller must call when done listening.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Event, buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

// Publish fans ev out to every current subscriber, non-blockingly.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
