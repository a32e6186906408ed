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

const (
	rateIncreaseFactor = 1.05
	rateDecreaseFactor = 0.85
)

type RateControllerConfig struct {
	MinBitrate int64 `yaml:"min_bitrate,omitempty"`
	MaxBitrate int64 `yaml:"max_bitrate,omitempty"`
}

var DefaultRateControllerConfig = RateControllerConfig{
	MinBitrate: 30_000,
	MaxBitrate: 50_000_000,
}

// RateController applies multiplicative increase/decrease to the target
// bitrate, clamped to the configured range.
type RateController struct {
	config RateControllerConfig

	bitrate int64
}

func NewRateController(config RateControllerConfig, initialBitrate int64) *RateController {
	r := &RateController{
		config: config,
	}
	r.SetBitrate(initialBitrate)
	return r
}

// Update adjusts the target bitrate for the given congestion state and
// returns the new value. Hold leaves the bitrate untouched.
func (r *RateController) Update(state CongestionState) int64 {
	switch state {
	case CongestionStateIncrease:
		r.SetBitrate(int64(float64(r.bitrate) * rateIncreaseFactor))

	case CongestionStateDecrease:
		r.SetBitrate(int64(float64(r.bitrate) * rateDecreaseFactor))
	}
	return r.bitrate
}

func (r *RateController) Bitrate() int64 {
	return r.bitrate
}

func (r *RateController) SetBitrate(bitrate int64) {
	if bitrate < r.config.MinBitrate {
		bitrate = r.config.MinBitrate
	}
	if bitrate > r.config.MaxBitrate {
		bitrate = r.config.MaxBitrate
	}
	r.bitrate = bitrate
}
