// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sandbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	mu           sync.Mutex
	values       map[Resource]float64
	throttled    int
	suspended    int
	resumed      int
	terminated   int
	closed       int
	sampleCalled int
}

func (h *fakeHandle) sample() (map[Resource]float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sampleCalled++
	out := make(map[Resource]float64, len(h.values))
	for k, v := range h.values {
		out[k] = v
	}
	return out, nil
}

func (h *fakeHandle) setValue(r Resource, v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.values[r] = v
}

func (h *fakeHandle) throttle() error  { h.mu.Lock(); defer h.mu.Unlock(); h.throttled++; return nil }
func (h *fakeHandle) suspend() error   { h.mu.Lock(); defer h.mu.Unlock(); h.suspended++; return nil }
func (h *fakeHandle) resume() error    { h.mu.Lock(); defer h.mu.Unlock(); h.resumed++; return nil }
func (h *fakeHandle) terminate() error { h.mu.Lock(); defer h.mu.Unlock(); h.terminated++; return nil }
func (h *fakeHandle) close() error     { h.mu.Lock(); defer h.mu.Unlock(); h.closed++; return nil }

type fakeBackend struct {
	handle *fakeHandle
}

func (b fakeBackend) createContainer(pid int) (containerHandle, error) {
	return b.handle, nil
}

func newTestGovernor(handle *fakeHandle) *JobGovernor {
	return &JobGovernor{backend: fakeBackend{handle: handle}, monitoringInterval: MinMonitoringInterval}
}

func TestGovernorClampsMonitoringInterval(t *testing.T) {
	g := NewGovernor(time.Millisecond)
	assert.Equal(t, MinMonitoringInterval, g.monitoringInterval)

	g = NewGovernor(0)
	assert.Equal(t, DefaultMonitoringInterval, g.monitoringInterval)
}

func TestGovernorHardBreachAppliesAction(t *testing.T) {
	handle := &fakeHandle{values: map[Resource]float64{ResourceMemMB: 500}}
	g := newTestGovernor(handle)

	limits := []ResourceLimit{{
		Resource:          ResourceMemMB,
		SoftLimit:         100,
		HardLimit:         200,
		MeasurementPeriod: MinMonitoringInterval,
		BreachAction:      ActionTerminate,
	}}

	var mu sync.Mutex
	var events []BreachEvent
	container, err := g.Start(context.Background(), "com.example.hello", 1234, limits, func(ev BreachEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Stop(context.Background()) })

	require.Eventually(t, func() bool {
		handle.mu.Lock()
		defer handle.mu.Unlock()
		return handle.terminated > 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	assert.Equal(t, EdgeHardBreach, events[0].Edge)
	assert.Equal(t, ActionTerminate, events[0].Action)
	assert.Equal(t, "com.example.hello", events[0].PluginID)
}

func TestGovernorSoftBreachDoesNotApplyAction(t *testing.T) {
	handle := &fakeHandle{values: map[Resource]float64{ResourceCPUPercent: 60}}
	g := newTestGovernor(handle)

	limits := []ResourceLimit{{
		Resource:          ResourceCPUPercent,
		SoftLimit:         50,
		HardLimit:         90,
		MeasurementPeriod: MinMonitoringInterval,
		BreachAction:      ActionSuspend,
	}}

	var mu sync.Mutex
	var events []BreachEvent
	container, err := g.Start(context.Background(), "p", 1, limits, func(ev BreachEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Stop(context.Background()) })

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) > 0
	}, 2*time.Second, 10*time.Millisecond)

	handle.mu.Lock()
	defer handle.mu.Unlock()
	assert.Equal(t, 0, handle.suspended)
}

func TestContainerStopClosesHandleAndStopsSampling(t *testing.T) {
	handle := &fakeHandle{values: map[Resource]float64{ResourceCPUPercent: 1}}
	g := newTestGovernor(handle)

	container, err := g.Start(context.Background(), "p", 1, nil, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		handle.mu.Lock()
		defer handle.mu.Unlock()
		return handle.sampleCalled > 0
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, container.Stop(context.Background()))

	handle.mu.Lock()
	countAtStop := handle.sampleCalled
	closedAtStop := handle.closed
	handle.mu.Unlock()
	assert.Equal(t, 1, closedAtStop)

	time.Sleep(3 * MinMonitoringInterval)

	handle.mu.Lock()
	defer handle.mu.Unlock()
	assert.Equal(t, countAtStop, handle.sampleCalled)

	// Stop is idempotent.
	assert.NoError(t, container.Stop(context.Background()))
}
