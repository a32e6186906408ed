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

// Package prometheus aggregates engine counters for scraping. Init is
// optional: without it the package-level recorders are no-ops, so library
// users who bring their own metrics pay nothing.
package prometheus

const rtpengineNamespace string = "rtpengine"

var initialized bool

func Init(nodeID string) {
	if initialized {
		return
	}
	initialized = true

	initPacketStats(nodeID)
	initQualityStats(nodeID)
}
