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
	"github.com/gammazero/deque"
)

const (
	arrivalFilterWindow = 60

	// exponential smoothing weight for the window mean
	arrivalFilterAlpha = 0.1
)

// ArrivalTimeFilter keeps a sliding window of inter-packet arrival deltas
// and exposes an exponentially smoothed mean and the population variance of
// the window. Queue growth on a congested path shows up as a drift in the
// smoothed value.
type ArrivalTimeFilter struct {
	deltas   deque.Deque[float64]
	smoothed float64
	variance float64
}

// Update appends one inter-arrival delta (milliseconds) and recomputes the
// smoothed value and variance over the retained window.
func (f *ArrivalTimeFilter) Update(deltaMs float64) {
	f.deltas.PushBack(deltaMs)
	for f.deltas.Len() > arrivalFilterWindow {
		f.deltas.PopFront()
	}

	n := f.deltas.Len()
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += f.deltas.At(i)
	}
	mean := sum / float64(n)

	f.smoothed = f.smoothed*(1.0-arrivalFilterAlpha) + mean*arrivalFilterAlpha

	varianceSum := 0.0
	for i := 0; i < n; i++ {
		diff := f.deltas.At(i) - mean
		varianceSum += diff * diff
	}
	f.variance = varianceSum / float64(n)
}

func (f *ArrivalTimeFilter) Value() float64 {
	return f.smoothed
}

func (f *ArrivalTimeFilter) Variance() float64 {
	return f.variance
}

func (f *ArrivalTimeFilter) NumSamples() int {
	return f.deltas.Len()
}

func (f *ArrivalTimeFilter) Reset() {
	f.deltas.Clear()
	f.smoothed = 0.0
	f.variance = 0.0
}
