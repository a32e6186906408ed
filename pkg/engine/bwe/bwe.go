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

// Package bwe estimates available bandwidth for one stream from observed
// packet timing: a delay-based congestion controller in the style of Google
// Congestion Control, plus a lighter estimator for receivers without
// per-packet feedback.
package bwe

import (
	"fmt"
)

// ------------------------------------------------

// CongestionSignal is the over-use detector's classification of the
// filtered arrival-time signal.
type CongestionSignal int

const (
	CongestionSignalNormal CongestionSignal = iota
	CongestionSignalOverUsing
	CongestionSignalUnderUsing
)

func (c CongestionSignal) String() string {
	switch c {
	case CongestionSignalNormal:
		return "NORMAL"
	case CongestionSignalOverUsing:
		return "OVER_USING"
	case CongestionSignalUnderUsing:
		return "UNDER_USING"
	default:
		return fmt.Sprintf("%d", int(c))
	}
}

// ------------------------------------------------

// CongestionState is the rate controller's view of the congestion signal.
type CongestionState int

const (
	CongestionStateHold CongestionState = iota
	CongestionStateIncrease
	CongestionStateDecrease
)

func (c CongestionState) String() string {
	switch c {
	case CongestionStateHold:
		return "HOLD"
	case CongestionStateIncrease:
		return "INCREASE"
	case CongestionStateDecrease:
		return "DECREASE"
	default:
		return fmt.Sprintf("%d", int(c))
	}
}

// StateFromSignal maps the detector's classification to a rate controller
// state: over-use backs off, under-use opens up, normal holds.
func StateFromSignal(signal CongestionSignal) CongestionState {
	switch signal {
	case CongestionSignalOverUsing:
		return CongestionStateDecrease
	case CongestionSignalUnderUsing:
		return CongestionStateIncrease
	default:
		return CongestionStateHold
	}
}

// ------------------------------------------------
