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
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

var (
	atomicBytesIn     uint64
	atomicPacketsIn   uint64
	atomicPacketsLost uint64
	atomicNackTotal   uint64

	promPacketLabels = []string{"direction"}

	promPacketTotal *prometheus.CounterVec
	promPacketBytes *prometheus.CounterVec
	promPacketLost  *prometheus.CounterVec
	promNackTotal   *prometheus.CounterVec
	promPliTotal    *prometheus.CounterVec
	promFirTotal    *prometheus.CounterVec
	promRembTotal   *prometheus.CounterVec
)

func initPacketStats(nodeID string) {
	promPacketTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   rtpengineNamespace,
		Subsystem:   "packet",
		Name:        "total",
		ConstLabels: prometheus.Labels{"node_id": nodeID},
	}, promPacketLabels)
	promPacketBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   rtpengineNamespace,
		Subsystem:   "packet",
		Name:        "bytes",
		ConstLabels: prometheus.Labels{"node_id": nodeID},
	}, promPacketLabels)
	promPacketLost = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   rtpengineNamespace,
		Subsystem:   "packet",
		Name:        "lost",
		ConstLabels: prometheus.Labels{"node_id": nodeID},
	}, promPacketLabels)
	promNackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   rtpengineNamespace,
		Subsystem:   "nack",
		Name:        "total",
		ConstLabels: prometheus.Labels{"node_id": nodeID},
	}, promPacketLabels)
	promPliTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   rtpengineNamespace,
		Subsystem:   "pli",
		Name:        "total",
		ConstLabels: prometheus.Labels{"node_id": nodeID},
	}, promPacketLabels)
	promFirTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   rtpengineNamespace,
		Subsystem:   "fir",
		Name:        "total",
		ConstLabels: prometheus.Labels{"node_id": nodeID},
	}, promPacketLabels)
	promRembTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   rtpengineNamespace,
		Subsystem:   "remb",
		Name:        "total",
		ConstLabels: prometheus.Labels{"node_id": nodeID},
	}, promPacketLabels)

	prometheus.MustRegister(promPacketTotal)
	prometheus.MustRegister(promPacketBytes)
	prometheus.MustRegister(promPacketLost)
	prometheus.MustRegister(promNackTotal)
	prometheus.MustRegister(promPliTotal)
	prometheus.MustRegister(promFirTotal)
	prometheus.MustRegister(promRembTotal)
}

func IncrementPackets(direction Direction, count uint64) {
	if promPacketTotal != nil {
		promPacketTotal.WithLabelValues(string(direction)).Add(float64(count))
	}
	if direction == Incoming {
		atomic.AddUint64(&atomicPacketsIn, count)
	}
}

func IncrementBytes(direction Direction, count uint64) {
	if promPacketBytes != nil {
		promPacketBytes.WithLabelValues(string(direction)).Add(float64(count))
	}
	if direction == Incoming {
		atomic.AddUint64(&atomicBytesIn, count)
	}
}

func IncrementPacketsLost(direction Direction, count uint64) {
	if promPacketLost != nil {
		promPacketLost.WithLabelValues(string(direction)).Add(float64(count))
	}
	atomic.AddUint64(&atomicPacketsLost, count)
}

func IncrementRTCP(direction Direction, nack, pli, fir, remb int32) {
	if nack > 0 {
		if promNackTotal != nil {
			promNackTotal.WithLabelValues(string(direction)).Add(float64(nack))
		}
		atomic.AddUint64(&atomicNackTotal, uint64(nack))
	}
	if pli > 0 && promPliTotal != nil {
		promPliTotal.WithLabelValues(string(direction)).Add(float64(pli))
	}
	if fir > 0 && promFirTotal != nil {
		promFirTotal.WithLabelValues(string(direction)).Add(float64(fir))
	}
	if remb > 0 && promRembTotal != nil {
		promRembTotal.WithLabelValues(string(direction)).Add(float64(remb))
	}
}
