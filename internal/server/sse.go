// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/yunusgungor/tauri-windows-plugin-system/internal/lifecycle"
)

// EventSource is the Lifecycle Engine's event bus, as consumed by the
// events SSE endpoint. Matches lifecycle.Bus's Subscribe signature so the
// server package never needs to know about Engine, Broker, or Governor
// internals, only the event shape they publish.
type EventSource interface {
	Subscribe(buffer int) (<-chan lifecycle.Event, func())
}

// RegisterEventSource wires the Lifecycle Engine's event bus into the
// /api/v1/events SSE route. Until called, the route returns 503.
func (s *Server) RegisterEventSource(bus EventSource) {
	s.bus = bus
}

// wireEvent is the JSON shape of a lifecycle.Event sent over SSE, matching
// the §6 event catalog (PluginInstalled, PluginUpdated, ..., LimitRecovered).
type wireEvent struct {
	Kind      string  `json:"kind"`
	PluginID  string  `json:"plugin_id"`
	Status    string  `json:"status,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	Resource  string  `json:"resource,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Limit     float64 `json:"limit,omitempty"`
	Action    string  `json:"action,omitempty"`
	Timestamp string  `json:"timestamp"`
}

func toWireEvent(ev lifecycle.Event) wireEvent {
	return wireEvent{
		Kind:      string(ev.Kind),
		PluginID:  ev.PluginID,
		Status:    string(ev.Status),
		Reason:    ev.Reason,
		Resource:  string(ev.Resource),
		Value:     ev.Value,
		Limit:     ev.Limit,
		Action:    string(ev.Action),
		Timestamp: ev.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

func (s *Server) registerEventsRoute() {
	s.router.Get("/api/v1/events", s.handleEvents)

	s.api.OpenAPI().AddOperation(&huma.Operation{
		OperationID: "stream-events",
		Method:      http.MethodGet,
		Path:        "/api/v1/events",
		Summary:     "Stream lifecycle, permission, and resource-limit events via SSE",
		Description: "Long-lived text/event-stream connection. Every plugin state change and every resource-limit edge is pushed as one event.",
		Tags:        []string{"events"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Server-sent event stream",
				Content: map[string]*huma.MediaType{
					"text/event-stream": {
						Schema: &huma.Schema{Type: "string"},
					},
				},
			},
			"503": {Description: "Event source not configured"},
		},
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		http.Error(w, `{"error":"event source not configured"}`, http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		flusher = nil
	}

	ch, unsubscribe := s.bus.Subscribe(32)
	defer unsubscribe()

	for {
		select {
		case ev, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(toWireEvent(ev))
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}
