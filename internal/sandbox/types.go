// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package sandbox confines a plugin's native module process inside a
// Windows job object, samples its resource usage on a fixed interval, and
// enforces soft/hard limits with graduated actions (warn, throttle,
// suspend, terminate). Containment is Windows-specific by design: it is
// not a goal of this package to express job-object semantics on any other
// OS, so the actual containment primitives live behind a build tag and
// every other platform gets a Governor that refuses to start anything.
package sandbox

import (
	"context"
	"time"
)

// Resource identifies a measurable, limitable dimension of a plugin
// process's resource usage.
type Resource string

const (
	ResourceCPUPercent     Resource = "cpu_percent"
	ResourceMemMB          Resource = "mem_mb"
	ResourceThreads        Resource = "threads"
	ResourceHandles        Resource = "handles"
	ResourceDiskReadKBps   Resource = "disk_read_kbps"
	ResourceDiskWriteKBps  Resource = "disk_write_kbps"
	ResourceNetDownKBps    Resource = "net_down_kbps"
	ResourceNetUpKBps      Resource = "net_up_kbps"
	ResourcePageFaultsPerS Resource = "page_faults_per_s"
)

// BreachAction is the graduated response taken when a limit is breached.
// Actions escalate in this order and are idempotent: re-applying an action
// already in effect for a resource is a no-op.
type BreachAction string

const (
	ActionWarn      BreachAction = "warn"
	ActionThrottle  BreachAction = "throttle"
	ActionSuspend   BreachAction = "suspend"
	ActionTerminate BreachAction = "terminate"
)

// severity orders BreachAction for escalation/de-escalation comparisons.
func (a BreachAction) severity() int {
	switch a {
	case ActionWarn:
		return 1
	case ActionThrottle:
		return 2
	case ActionSuspend:
		return 3
	case ActionTerminate:
		return 4
	default:
		return 0
	}
}

// ResourceLimit is the persistent policy record for one resource: a soft
// ceiling that only ever emits a notification on a rising edge, and a hard
// ceiling that executes BreachAction on a rising edge. Crossing back below
// SoftLimit emits a recovery notification. BreachAction is never consulted
// for a soft-limit crossing.
type ResourceLimit struct {
	Resource          Resource      `mapstructure:"resource" json:"resource"`
	SoftLimit         float64       `mapstructure:"soft_limit" json:"soft_limit"`
	HardLimit         float64       `mapstructure:"hard_limit" json:"hard_limit"`
	MeasurementPeriod time.Duration `mapstructure:"measurement_period" json:"measurement_period"`
	BreachAction      BreachAction  `mapstructure:"breach_action" json:"breach_action"`
}

// Sample is one point in a resource's ring buffer.
type Sample struct {
	Timestamp time.Time
	Value     float64
}

// Governor owns the containment and enforcement lifecycle for one plugin
// process. The Lifecycle Engine starts a container immediately after
// linking a module and stops it no later than the module handle is
// released, per the data model's ownership rule that a container's
// lifetime strictly contains the process's lifetime.
type Governor interface {
	// Start places pid under containment with limits and begins sampling.
	// onBreach is invoked (possibly many times, from a background
	// goroutine) for every soft breach, hard breach, and recovery edge.
	Start(ctx context.Context, pluginID string, pid int, limits []ResourceLimit, onBreach BreachHandler) (Container, error)
}

// BreachHandler is notified of every limit-evaluation edge. The Lifecycle
// Engine uses this to publish the corresponding UI event and, for
// EdgeHardBreach with an Action of ActionTerminate, to drive the plugin's
// state to Errored once the container reports the process gone.
type BreachHandler func(event BreachEvent)

// Edge identifies which limit-evaluation transition produced a BreachEvent.
type Edge string

const (
	EdgeSoftBreach Edge = "soft_breach"
	EdgeHardBreach Edge = "hard_breach"
	EdgeRecovered  Edge = "recovered"
)

// BreachEvent describes one limit-evaluation edge. Action is populated only
// for EdgeHardBreach, carrying the ResourceLimit's configured BreachAction
// that the governor already applied by the time the handler observes it.
// OveragePercent is how far Value sits above Limit, as a percentage
// (0 for EdgeRecovered, since Value is at-or-below Limit by construction).
type BreachEvent struct {
	PluginID       string
	Resource       Resource
	Edge           Edge
	Action         BreachAction
	Value          float64
	Limit          float64
	OveragePercent float64
	Timestamp      time.Time
}

// Container is a running job-object containment for one plugin process.
type Container interface {
	// Stop tears down containment: it stops sampling and, if the process is
	// still alive, terminates it. Stop is idempotent.
	Stop(ctx context.Context) error

	// Usage takes an out-of-band sample of the container's current resource
	// values, independent of the background sweep's rolling averages. It
	// returns an error once the container has been stopped.
	Usage() (map[Resource]float64, error)
}
