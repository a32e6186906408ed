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
	"time"

	"github.com/livekit/protocol/logger"
	"go.uber.org/atomic"
	"go.uber.org/zap/zapcore"
)

type CongestionControllerConfig struct {
	InitialBitrate int64                `yaml:"initial_bitrate,omitempty"`
	RateController RateControllerConfig `yaml:"rate_controller,omitempty"`
}

var DefaultCongestionControllerConfig = CongestionControllerConfig{
	InitialBitrate: 300_000,
	RateController: DefaultRateControllerConfig,
}

type CongestionControllerParams struct {
	Config CongestionControllerConfig
	Logger logger.Logger
}

// CongestionController is a delay gradient based bandwidth estimator for one
// stream: arrival deltas run through the filter and detector, the resulting
// state drives the rate controller. Not safe for concurrent use.
type CongestionController struct {
	params CongestionControllerParams

	filter   ArrivalTimeFilter
	detector OverUseDetector
	rate     *RateController

	lastArrival   time.Time
	state         CongestionState
	bytesReceived atomic.Uint64
}

func NewCongestionController(params CongestionControllerParams) *CongestionController {
	return &CongestionController{
		params: params,
		rate:   NewRateController(params.Config.RateController, params.Config.InitialBitrate),
		state:  CongestionStateHold,
	}
}

// OnPacketArrival feeds one packet arrival through the estimator and returns
// the current bandwidth estimate in bits per second. The first call only
// records the timestamp; there is no delta to measure yet.
func (c *CongestionController) OnPacketArrival(at time.Time, size int) int64 {
	c.bytesReceived.Add(uint64(size))

	if c.lastArrival.IsZero() {
		c.lastArrival = at
		return c.rate.Bitrate()
	}

	deltaMs := float64(at.Sub(c.lastArrival)) / float64(time.Millisecond)
	c.lastArrival = at

	c.filter.Update(deltaMs)
	signal := c.detector.Detect(c.filter.Value(), c.filter.Variance())

	state := StateFromSignal(signal)
	if state != c.state {
		from := c.state
		c.state = state
		c.params.Logger.Debugw("congestion state change", "from", from, "controller", c)
	}

	return c.rate.Update(state)
}

func (c *CongestionController) Estimate() int64 {
	return c.rate.Bitrate()
}

func (c *CongestionController) State() CongestionState {
	return c.state
}

func (c *CongestionController) BytesReceived() uint64 {
	return c.bytesReceived.Load()
}

func (c *CongestionController) MarshalLogObject(e zapcore.ObjectEncoder) error {
	if c == nil {
		return nil
	}

	e.AddString("state", c.state.String())
	e.AddInt64("bitrate", c.rate.Bitrate())
	e.AddFloat64("filtered", c.filter.Value())
	e.AddFloat64("variance", c.filter.Variance())
	e.AddUint64("bytesReceived", c.bytesReceived.Load())
	return nil
}

func (c *CongestionController) Reset() {
	c.filter.Reset()
	c.detector.Reset()
	c.rate.SetBitrate(c.params.Config.InitialBitrate)
	c.lastArrival = time.Time{}
	c.state = CongestionStateHold
	c.bytesReceived.Store(0)
}
