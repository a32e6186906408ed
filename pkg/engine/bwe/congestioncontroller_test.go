// Copyright 2023 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bwe

import (
	"testing"
	"time"

	"github.com/livekit/protocol/logger"
	"github.com/stretchr/testify/require"
)

func newTestCongestionController() *CongestionController {
	return NewCongestionController(CongestionControllerParams{
		Config: DefaultCongestionControllerConfig,
		Logger: logger.GetLogger(),
	})
}

func TestCongestionControllerFirstArrival(t *testing.T) {
	c := newTestCongestionController()

	// nothing to measure yet, estimate comes back unchanged
	estimate := c.OnPacketArrival(time.Now(), 1200)
	require.Equal(t, int64(300_000), estimate)
	require.Equal(t, int64(300_000), c.Estimate())
	require.Equal(t, CongestionStateHold, c.State())
}

func TestCongestionControllerSteadyArrivalsNeverDecrease(t *testing.T) {
	c := newTestCongestionController()
	at := time.Now()

	estimate := c.OnPacketArrival(at, 1200)
	for i := 0; i < 100; i++ {
		at = at.Add(10 * time.Millisecond)
		next := c.OnPacketArrival(at, 1200)
		require.GreaterOrEqual(t, next, estimate, "iteration %d", i)
		estimate = next
	}
	require.Equal(t, CongestionStateHold, c.State())
}

func TestCongestionControllerGrowingDelayDecreases(t *testing.T) {
	c := newTestCongestionController()
	at := time.Now()

	initial := c.OnPacketArrival(at, 1200)

	// inter-packet gap grows 5ms per packet: sustained queue build-up
	gap := 10 * time.Millisecond
	estimate := initial
	for i := 0; i < 120; i++ {
		at = at.Add(gap)
		estimate = c.OnPacketArrival(at, 1200)
		gap += 5 * time.Millisecond
	}

	require.Less(t, estimate, initial)
	require.Equal(t, CongestionStateDecrease, c.State())
}

func TestCongestionControllerReset(t *testing.T) {
	c := newTestCongestionController()
	at := time.Now()

	gap := 10 * time.Millisecond
	for i := 0; i < 120; i++ {
		c.OnPacketArrival(at, 1200)
		at = at.Add(gap)
		gap += 5 * time.Millisecond
	}
	require.NotEqual(t, int64(300_000), c.Estimate())

	c.Reset()
	require.Equal(t, int64(300_000), c.Estimate())
	require.Equal(t, CongestionStateHold, c.State())
	require.Equal(t, uint64(0), c.BytesReceived())

	// behaves like a fresh instance: first arrival is a no-op
	require.Equal(t, int64(300_000), c.OnPacketArrival(at, 1200))
}

func TestStateFromSignal(t *testing.T) {
	require.Equal(t, CongestionStateHold, StateFromSignal(CongestionSignalNormal))
	require.Equal(t, CongestionStateDecrease, StateFromSignal(CongestionSignalOverUsing))
	require.Equal(t, CongestionStateIncrease, StateFromSignal(CongestionSignalUnderUsing))
}
