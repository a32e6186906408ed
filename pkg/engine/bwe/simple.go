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
	"time"

	"github.com/gammazero/deque"
)

const (
	simpleEstimatorSmoothing = 0.1

	// retained throughput samples; confidence looks at the most recent few
	simpleEstimatorMaxSamples        = 32
	simpleEstimatorConfidenceWindow  = 10
	simpleEstimatorWarmupSamples     = 3
	simpleEstimatorWarmupConfidence  = 0.3
	simpleEstimatorMinimumConfidence = 0.1

	// path conditions beyond these start discounting measured throughput
	simpleEstimatorRTTFloor  = 100 * time.Millisecond
	simpleEstimatorLossFloor = 0.01
)

type SimpleEstimatorConfig struct {
	InitialBitrate int64 `yaml:"initial_bitrate,omitempty"`
	MinBitrate     int64 `yaml:"min_bitrate,omitempty"`
	MaxBitrate     int64 `yaml:"max_bitrate,omitempty"`
}

var DefaultSimpleEstimatorConfig = SimpleEstimatorConfig{
	InitialBitrate: 300_000,
	MinBitrate:     64_000,
	MaxBitrate:     100_000_000,
}

// SimpleBandwidthEstimator blends windowed byte counts into a running
// bitrate estimate, discounted for RTT and loss. It is the fallback for
// receivers that only see periodic counters rather than per-packet
// timing, where the delay gradient approach has nothing to work with.
type SimpleBandwidthEstimator struct {
	config SimpleEstimatorConfig

	samples  deque.Deque[float64] // adjusted throughput, bits per second
	estimate float64
}

func NewSimpleBandwidthEstimator(config SimpleEstimatorConfig) *SimpleBandwidthEstimator {
	return &SimpleBandwidthEstimator{
		config:   config,
		estimate: float64(config.InitialBitrate),
	}
}

// Update folds one measurement window into the estimate and returns the new
// value in bits per second. A zero window is ignored.
func (s *SimpleBandwidthEstimator) Update(bytesReceived int, window time.Duration, rtt time.Duration, lossRate float64) int64 {
	if window <= 0 {
		return s.Estimate()
	}

	throughput := float64(bytesReceived*8) / window.Seconds()
	adjusted := throughput * congestionFactor(rtt, lossRate)

	s.estimate = s.estimate*(1.0-simpleEstimatorSmoothing) + adjusted*simpleEstimatorSmoothing
	s.estimate = math.Min(math.Max(s.estimate, float64(s.config.MinBitrate)), float64(s.config.MaxBitrate))

	s.samples.PushBack(adjusted)
	for s.samples.Len() > simpleEstimatorMaxSamples {
		s.samples.PopFront()
	}

	return s.Estimate()
}

func (s *SimpleBandwidthEstimator) Estimate() int64 {
	return int64(s.estimate)
}

// Confidence reports how much to trust the current estimate in [0, 1]:
// few samples or a high coefficient of variation mean low confidence.
func (s *SimpleBandwidthEstimator) Confidence() float64 {
	n := s.samples.Len()
	if n < simpleEstimatorWarmupSamples {
		return simpleEstimatorWarmupConfidence
	}

	start := n - simpleEstimatorConfidenceWindow
	if start < 0 {
		start = 0
	}
	count := float64(n - start)

	sum := 0.0
	for i := start; i < n; i++ {
		sum += s.samples.At(i)
	}
	mean := sum / count
	if mean <= 0 {
		return simpleEstimatorMinimumConfidence
	}

	varianceSum := 0.0
	for i := start; i < n; i++ {
		diff := s.samples.At(i) - mean
		varianceSum += diff * diff
	}
	cv := math.Sqrt(varianceSum/count) / mean

	confidence := 1.0 - math.Min(cv, 1.0)
	if confidence < simpleEstimatorMinimumConfidence {
		confidence = simpleEstimatorMinimumConfidence
	}
	return confidence
}

func (s *SimpleBandwidthEstimator) Reset() {
	s.samples.Clear()
	s.estimate = float64(s.config.InitialBitrate)
}

// congestionFactor discounts measured throughput when the path shows signs
// of congestion. High RTT sheds up to half, loss up to 80%, and the
// combined factor never drops below 0.1.
func congestionFactor(rtt time.Duration, lossRate float64) float64 {
	factor := 1.0

	if rtt > simpleEstimatorRTTFloor {
		excessMs := float64(rtt-simpleEstimatorRTTFloor) / float64(time.Millisecond)
		factor *= 1.0 - math.Min(excessMs/1000.0, 0.5)
	}

	if lossRate > simpleEstimatorLossFloor {
		factor *= 1.0 - math.Min(lossRate*5.0, 0.8)
	}

	if factor < 0.1 {
		factor = 0.1
	}
	return factor
}
