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

	"github.com/stretchr/testify/require"
)

func TestOverUseDetectorPromotion(t *testing.T) {
	var d OverUseDetector

	// a streak of 3 is not enough
	for i := 0; i < 3; i++ {
		require.Equal(t, CongestionSignalNormal, d.Detect(20.0, 0.0))
	}
	// the 4th consecutive sample promotes
	require.Equal(t, CongestionSignalOverUsing, d.Detect(20.0, 0.0))
}

func TestOverUseDetectorUnderUse(t *testing.T) {
	var d OverUseDetector

	for i := 0; i < 3; i++ {
		require.Equal(t, CongestionSignalNormal, d.Detect(-20.0, 0.0))
	}
	require.Equal(t, CongestionSignalUnderUsing, d.Detect(-20.0, 0.0))
}

func TestOverUseDetectorHysteresis(t *testing.T) {
	var d OverUseDetector

	for i := 0; i < 4; i++ {
		d.Detect(20.0, 0.0)
	}
	require.Equal(t, CongestionSignalOverUsing, d.Signal())

	// 5 in-threshold samples keep the previous classification
	for i := 0; i < 5; i++ {
		require.Equal(t, CongestionSignalOverUsing, d.Detect(0.0, 0.0))
	}
	// the 6th clears it
	require.Equal(t, CongestionSignalNormal, d.Detect(0.0, 0.0))
}

func TestOverUseDetectorStreakInterrupted(t *testing.T) {
	var d OverUseDetector

	d.Detect(20.0, 0.0)
	d.Detect(20.0, 0.0)
	d.Detect(20.0, 0.0)
	// single in-threshold sample resets the over-use streak
	d.Detect(0.0, 0.0)
	d.Detect(20.0, 0.0)
	require.Equal(t, CongestionSignalNormal, d.Signal())
}

func TestOverUseDetectorVarianceWidensThreshold(t *testing.T) {
	var d OverUseDetector

	// 20ms exceeds the base threshold of 12.5ms, but not with variance 100
	// (threshold = 12.5 + sqrt(100)*2 = 32.5)
	for i := 0; i < 10; i++ {
		require.Equal(t, CongestionSignalNormal, d.Detect(20.0, 100.0))
	}
}

func TestOverUseDetectorReset(t *testing.T) {
	var d OverUseDetector

	for i := 0; i < 4; i++ {
		d.Detect(20.0, 0.0)
	}
	require.Equal(t, CongestionSignalOverUsing, d.Signal())

	d.Reset()
	require.Equal(t, CongestionSignalNormal, d.Signal())
}
