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

package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	promQualityScore   *prometheus.HistogramVec
	promJitterMs       prometheus.Histogram
	promEstimatedKbps  prometheus.Histogram
	promQualityLabels  = []string{"ssrc"}
	qualityScoreBucket = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
)

func initQualityStats(nodeID string) {
	promQualityScore = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   rtpengineNamespace,
		Subsystem:   "quality",
		Name:        "score",
		ConstLabels: prometheus.Labels{"node_id": nodeID},
		Buckets:     qualityScoreBucket,
	}, promQualityLabels)
	promJitterMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   rtpengineNamespace,
		Subsystem:   "quality",
		Name:        "jitter_ms",
		ConstLabels: prometheus.Labels{"node_id": nodeID},
		Buckets:     []float64{1, 5, 10, 20, 40, 80, 160, 320},
	})
	promEstimatedKbps = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   rtpengineNamespace,
		Subsystem:   "bwe",
		Name:        "estimate_kbps",
		ConstLabels: prometheus.Labels{"node_id": nodeID},
		Buckets:     []float64{32, 64, 128, 256, 512, 1024, 2048, 4096, 8192},
	})

	prometheus.MustRegister(promQualityScore)
	prometheus.MustRegister(promJitterMs)
	prometheus.MustRegister(promEstimatedKbps)
}

func RecordQuality(ssrc string, score float64) {
	if promQualityScore != nil {
		promQualityScore.WithLabelValues(ssrc).Observe(score)
	}
}

func RecordJitter(jitterMs float64) {
	if promJitterMs != nil {
		promJitterMs.Observe(jitterMs)
	}
}

func RecordBandwidthEstimate(bps int64) {
	if promEstimatedKbps != nil {
		promEstimatedKbps.Observe(float64(bps) / 1024.0)
	}
}
