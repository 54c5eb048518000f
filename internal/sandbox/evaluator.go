// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sandbox

import "time"

// breachState is Edge's in-memory equivalent for rising/falling-edge
// detection: "none" is not itself an Edge because no event is emitted when
// a resource is and stays under its soft limit.
type breachState int

const (
	stateNone breachState = iota
	stateSoft
	stateHard
)

// limitEvaluator tracks one ResourceLimit's rolling-average state across
// successive samples for a single plugin/resource pair, detecting rising and
// falling edges and suppressing repeat actions once an edge has already
// fired (idempotent re-breach).
type limitEvaluator struct {
	limit        ResourceLimit
	history      *ring
	state        breachState
	appliedOnce  bool // a hard action has already been applied and not yet recovered
}

func newLimitEvaluator(limit ResourceLimit) *limitEvaluator {
	retain := limit.MeasurementPeriod
	if retain <= 0 {
		retain = time.Second
	}
	// Retain a bit beyond the measurement period so a mean computed right at
	// the window edge still has a full window of samples behind it.
	return &limitEvaluator{limit: limit, history: newRing(retain * 4)}
}

// evaluate folds in one new sample and returns the BreachEvent to emit, if
// any edge fired. A nil return means no notification is due this tick.
func (e *limitEvaluator) evaluate(now time.Time, value float64) *BreachEvent {
	e.history.add(Sample{Timestamp: now, Value: value})

	mean, ok := e.history.meanSince(now, e.limit.MeasurementPeriod)
	if !ok {
		return nil
	}

	switch {
	case mean >= e.limit.HardLimit && e.limit.HardLimit > 0:
		if e.state == stateHard && e.appliedOnce {
			return nil // already enforced; re-breach is a no-op.
		}
		e.state = stateHard
		e.appliedOnce = true
		return &BreachEvent{
			Resource:       e.limit.Resource,
			Edge:           EdgeHardBreach,
			Action:         e.limit.BreachAction,
			Value:          mean,
			Limit:          e.limit.HardLimit,
			OveragePercent: overagePercent(mean, e.limit.HardLimit),
			Timestamp:      now,
		}

	case mean >= e.limit.SoftLimit && e.limit.SoftLimit > 0:
		if e.state == stateSoft || e.state == stateHard {
			return nil
		}
		e.state = stateSoft
		return &BreachEvent{
			Resource:       e.limit.Resource,
			Edge:           EdgeSoftBreach,
			Value:          mean,
			Limit:          e.limit.SoftLimit,
			OveragePercent: overagePercent(mean, e.limit.SoftLimit),
			Timestamp:      now,
		}

	default:
		if e.state == stateNone {
			return nil
		}
		e.state = stateNone
		e.appliedOnce = false
		return &BreachEvent{
			Resource:  e.limit.Resource,
			Edge:      EdgeRecovered,
			Value:     mean,
			Limit:     e.limit.SoftLimit,
			Timestamp: now,
		}
	}
}

// overagePercent is how far value sits above limit, as a percentage. Returns
// 0 when limit is non-positive to avoid a division by zero.
func overagePercent(value, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return (value - limit) / limit * 100
}
