// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sandbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingMeanSinceWindow(t *testing.T) {
	r := newRing(time.Minute)
	base := time.Now()

	r.add(Sample{Timestamp: base, Value: 10})
	r.add(Sample{Timestamp: base.Add(time.Second), Value: 20})
	r.add(Sample{Timestamp: base.Add(2 * time.Second), Value: 30})

	mean, ok := r.meanSince(base.Add(2*time.Second), 3*time.Second)
	require.True(t, ok)
	assert.InDelta(t, 20, mean, 0.001)
}

func TestRingEvictsByAge(t *testing.T) {
	r := newRing(5 * time.Second)
	base := time.Now()

	r.add(Sample{Timestamp: base, Value: 1})
	r.add(Sample{Timestamp: base.Add(10 * time.Second), Value: 99})

	mean, ok := r.meanSince(base.Add(10*time.Second), time.Minute)
	require.True(t, ok)
	assert.Equal(t, float64(99), mean)
	assert.Len(t, r.samples, 1)
}

func TestRingMeanSinceEmptyWindow(t *testing.T) {
	r := newRing(time.Minute)
	_, ok := r.meanSince(time.Now(), time.Second)
	assert.False(t, ok)
}

func TestRingEvictsByCount(t *testing.T) {
	r := newRing(time.Hour)
	base := time.Now()
	for i := 0; i < maxRingSamples+10; i++ {
		r.add(Sample{Timestamp: base.Add(time.Duration(i) * time.Millisecond), Value: float64(i)})
	}
	assert.LessOrEqual(t, len(r.samples), maxRingSamples)
}
