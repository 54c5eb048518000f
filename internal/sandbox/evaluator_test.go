// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sandbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitEvaluatorSoftThenHardThenRecover(t *testing.T) {
	limit := ResourceLimit{
		Resource:          ResourceMemMB,
		SoftLimit:         100,
		HardLimit:         200,
		MeasurementPeriod: time.Second,
		BreachAction:      ActionTerminate,
	}
	e := newLimitEvaluator(limit)
	now := time.Now()

	assert.Nil(t, e.evaluate(now, 50))

	ev := e.evaluate(now.Add(100*time.Millisecond), 150)
	require.NotNil(t, ev)
	assert.Equal(t, EdgeSoftBreach, ev.Edge)

	// Still above soft, below hard: no repeat notification.
	assert.Nil(t, e.evaluate(now.Add(200*time.Millisecond), 150))

	// Rolling mean (50+150+150+500)/4 = 212.5 crosses the hard limit.
	ev = e.evaluate(now.Add(300*time.Millisecond), 500)
	require.NotNil(t, ev)
	assert.Equal(t, EdgeHardBreach, ev.Edge)
	assert.Equal(t, ActionTerminate, ev.Action)

	// Re-breach while already enforced is a no-op.
	assert.Nil(t, e.evaluate(now.Add(400*time.Millisecond), 260))

	ev = e.evaluate(now.Add(2*time.Second), 10)
	require.NotNil(t, ev)
	assert.Equal(t, EdgeRecovered, ev.Edge)
}

func TestLimitEvaluatorSingleSampleBelowSoftYieldsNoEdge(t *testing.T) {
	limit := ResourceLimit{Resource: ResourceCPUPercent, SoftLimit: 50, HardLimit: 90, MeasurementPeriod: time.Minute}
	e := newLimitEvaluator(limit)
	// A single sample at time.Now() is within its own window, so this
	// should still evaluate — the "no window" case is only reachable before
	// any sample has been recorded, which evaluate() itself prevents.
	ev := e.evaluate(time.Now(), 10)
	assert.Nil(t, ev)
}

func TestBreachActionSeverityOrdering(t *testing.T) {
	assert.Less(t, ActionWarn.severity(), ActionThrottle.severity())
	assert.Less(t, ActionThrottle.severity(), ActionSuspend.severity())
	assert.Less(t, ActionSuspend.severity(), ActionTerminate.severity())
}
