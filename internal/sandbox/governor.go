// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sandbox

import (
	"context"
	"sync"
	"time"

	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
)

const (
	// DefaultMonitoringInterval is the sampling sweep period used when the
	// caller does not configure one.
	DefaultMonitoringInterval = time.Second
	// MinMonitoringInterval is the floor any configured interval is clamped
	// to, rather than rejected outright.
	MinMonitoringInterval = 100 * time.Millisecond

	actionQueueDepth = 8
)

// backend is the platform-specific half of containment: creating a
// container for a pid and driving it once created. JobGovernor is entirely
// platform-agnostic; governor_windows.go and governor_other.go each supply
// one backend implementation via newBackend.
type backend interface {
	createContainer(pid int) (containerHandle, error)
}

// containerHandle is the live, platform-specific containment session for
// one process group: sampling and the four enforcement primitives.
type containerHandle interface {
	sample() (map[Resource]float64, error)
	throttle() error
	suspend() error
	resume() error
	terminate() error
	close() error
}

// JobGovernor is the platform-agnostic Governor: it owns the sampling
// sweep, the per-resource rolling-average evaluators, and the dedicated
// enforcement executor, and delegates only OS-specific primitives to a
// backend.
type JobGovernor struct {
	backend            backend
	monitoringInterval time.Duration
}

// NewGovernor constructs a Governor using the platform's containment
// backend. An interval of zero selects DefaultMonitoringInterval; anything
// below MinMonitoringInterval is clamped up to it.
func NewGovernor(monitoringInterval time.Duration) *JobGovernor {
	if monitoringInterval <= 0 {
		monitoringInterval = DefaultMonitoringInterval
	}
	if monitoringInterval < MinMonitoringInterval {
		monitoringInterval = MinMonitoringInterval
	}
	return &JobGovernor{backend: newBackend(), monitoringInterval: monitoringInterval}
}

func (g *JobGovernor) Start(ctx context.Context, pluginID string, pid int, limits []ResourceLimit, onBreach BreachHandler) (Container, error) {
	handle, err := g.backend.createContainer(pid)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeContainerSetupFailure, "starting containment for %s", pluginID)
	}

	evaluators := make(map[Resource]*limitEvaluator, len(limits))
	for _, l := range limits {
		evaluators[l.Resource] = newLimitEvaluator(l)
	}

	sampleCtx, cancel := context.WithCancel(context.Background())
	c := &jobContainer{
		handle:  handle,
		cancel:  cancel,
		actions: make(chan func(), actionQueueDepth),
		done:    make(chan struct{}),
	}

	go c.runExecutor()
	go g.sweep(sampleCtx, pluginID, c, evaluators, onBreach)

	return c, nil
}

// sweep runs the single-producer sampling loop for one plugin's container
// until ctx is cancelled by Container.Stop.
func (g *JobGovernor) sweep(ctx context.Context, pluginID string, c *jobContainer, evaluators map[Resource]*limitEvaluator, onBreach BreachHandler) {
	defer close(c.done)

	ticker := time.NewTicker(g.monitoringInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			values, err := c.handle.sample()
			if err != nil {
				continue // a transient sample failure skips this tick, not the whole plugin.
			}
			for resource, ev := range evaluators {
				value, ok := values[resource]
				if !ok {
					continue
				}
				breach := ev.evaluate(now, value)
				if breach == nil {
					continue
				}
				breach.PluginID = pluginID
				g.dispatch(c, onBreach, *breach)
			}
		}
	}
}

// dispatch routes a breach event to onBreach. Hard breaches additionally
// apply their enforcement action, and do so on the container's dedicated
// executor so a slow OS call (e.g. Suspend) never stalls the sampling
// sweep for every other resource of this plugin.
func (g *JobGovernor) dispatch(c *jobContainer, onBreach BreachHandler, ev BreachEvent) {
	if ev.Edge != EdgeHardBreach {
		if onBreach != nil {
			onBreach(ev)
		}
		return
	}

	select {
	case c.actions <- func() {
		_ = applyAction(c.handle, ev.Action)
		if onBreach != nil {
			onBreach(ev)
		}
	}:
	default:
		// Executor saturated by a prior action still in flight; the next
		// sweep will re-evaluate and, since evaluate() is idempotent once
		// appliedOnce is set, this tick's action is simply skipped rather
		// than queued unboundedly.
	}
}

func applyAction(h containerHandle, action BreachAction) error {
	switch action {
	case ActionThrottle:
		return h.throttle()
	case ActionSuspend:
		return h.suspend()
	case ActionTerminate:
		return h.terminate()
	default:
		return nil // Warn has no OS-side effect.
	}
}

// jobContainer is the Container handed back to the Lifecycle Engine.
type jobContainer struct {
	handle  containerHandle
	cancel  context.CancelFunc
	actions chan func()
	done    chan struct{}

	mu      sync.Mutex
	stopped bool
}

func (c *jobContainer) runExecutor() {
	for fn := range c.actions {
		fn()
	}
}

// Stop cancels sampling, waits for the sweep goroutine to exit (bounded by
// ctx), drains the executor, and releases the underlying containment. A
// Windows job object configured with kill-on-close takes care of any
// process still alive in the container at this point.
func (c *jobContainer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	c.cancel()

	select {
	case <-c.done:
	case <-ctx.Done():
	}

	close(c.actions)
	return c.handle.close()
}

// Usage reports an instantaneous sample, separate from the values the
// background sweep folds into its rolling averages.
func (c *jobContainer) Usage() (map[Resource]float64, error) {
	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return nil, sigilerr.New(sigilerr.CodeResourceSampleFailure, "container has been stopped")
	}
	return c.handle.sample()
}
