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
	"math"
)

const (
	// detection threshold in milliseconds, widened with signal variance so a
	// naturally bursty path does not trip it
	overUseBaseThreshold = 12.5
	overUseVarianceGain  = 2.0

	// consecutive out-of-threshold samples needed before promoting
	overUsePromoteStreak = 3

	// consecutive in-threshold samples needed before returning to normal
	overUseNormalStreak = 5
)

// OverUseDetector classifies the filtered arrival-time signal with
// hysteresis: a single noisy sample does not flip the state, a sustained
// streak does.
type OverUseDetector struct {
	signal CongestionSignal

	overUseStreak  int
	underUseStreak int
	normalStreak   int
}

// Detect folds one filtered sample into the streak counters and returns the
// current classification.
func (d *OverUseDetector) Detect(filtered float64, variance float64) CongestionSignal {
	threshold := overUseBaseThreshold + math.Sqrt(variance)*overUseVarianceGain

	switch {
	case filtered > threshold:
		d.overUseStreak++
		d.underUseStreak = 0
		d.normalStreak = 0
		if d.overUseStreak > overUsePromoteStreak {
			d.signal = CongestionSignalOverUsing
		}

	case filtered < -threshold:
		d.underUseStreak++
		d.overUseStreak = 0
		d.normalStreak = 0
		if d.underUseStreak > overUsePromoteStreak {
			d.signal = CongestionSignalUnderUsing
		}

	default:
		d.normalStreak++
		d.overUseStreak = 0
		d.underUseStreak = 0
		if d.normalStreak > overUseNormalStreak {
			d.signal = CongestionSignalNormal
		}
	}

	return d.signal
}

func (d *OverUseDetector) Signal() CongestionSignal {
	return d.signal
}

func (d *OverUseDetector) Reset() {
	d.signal = CongestionSignalNormal
	d.overUseStreak = 0
	d.underUseStreak = 0
	d.normalStreak = 0
}
