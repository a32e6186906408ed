package feedback

import (
	"testing"
	"time"

	"github.com/livekit/protocol/logger"
	"github.com/stretchr/testify/require"

	"github.com/livekit/rtpengine/pkg/engine/bwe"
)

func newTestDecisionEngine(config DecisionEngineConfig) *DecisionEngine {
	return NewDecisionEngine(DecisionEngineParams{
		Config: config,
		Logger: logger.GetLogger(),
	})
}

func healthyState() StreamState {
	return StreamState{
		CongestionState:  bwe.CongestionStateHold,
		EstimatedBitrate: 300_000,
		QualityScore:     90.0,
		LossRate:         0.0,
	}
}

func TestDecisionEngineHealthyStream(t *testing.T) {
	e := newTestDecisionEngine(DefaultDecisionEngineConfig)
	now := time.Now()

	// only the periodic REMB goes out
	requests := e.Decide(healthyState(), now)
	require.Len(t, requests, 1)
	require.Equal(t, TypeREMB, requests[0].Type)
	require.Equal(t, PriorityLow, requests[0].Priority)
	require.Equal(t, int64(300_000), requests[0].Bitrate)

	// and not again within the interval
	requests = e.Decide(healthyState(), now.Add(100*time.Millisecond))
	require.Empty(t, requests)
}

func TestDecisionEngineLossTriggersPLI(t *testing.T) {
	e := newTestDecisionEngine(DefaultDecisionEngineConfig)
	now := time.Now()

	state := healthyState()
	state.LossRate = 0.08

	requests := e.Decide(state, now)
	require.Len(t, requests, 2) // PLI + periodic REMB
	require.Equal(t, TypePLI, requests[0].Type)
	require.Equal(t, ReasonLoss, requests[0].Reason)
	require.Equal(t, PriorityHigh, requests[0].Priority)
}

func TestDecisionEngineSevereLossEscalatesToFIR(t *testing.T) {
	e := newTestDecisionEngine(DefaultDecisionEngineConfig)
	now := time.Now()

	state := healthyState()
	state.LossRate = 0.2

	requests := e.Decide(state, now)
	require.Equal(t, TypeFIR, requests[0].Type)
	require.Equal(t, ReasonLoss, requests[0].Reason)
	require.Equal(t, uint8(1), requests[0].FIRSequence)

	// sequence number increases per issued FIR
	requests = e.Decide(state, now.Add(3*time.Second))
	require.Equal(t, TypeFIR, requests[0].Type)
	require.Equal(t, uint8(2), requests[0].FIRSequence)
	require.Equal(t, uint8(2), e.FIRSequence())
}

func TestDecisionEngineCongestionTriggersREMB(t *testing.T) {
	e := newTestDecisionEngine(DefaultDecisionEngineConfig)
	now := time.Now()

	state := healthyState()
	state.CongestionState = bwe.CongestionStateDecrease
	state.EstimatedBitrate = 150_000

	requests := e.Decide(state, now)
	require.Len(t, requests, 1)
	require.Equal(t, TypeREMB, requests[0].Type)
	require.Equal(t, ReasonCongestion, requests[0].Reason)
	require.Equal(t, PriorityHigh, requests[0].Priority)
	require.Equal(t, int64(150_000), requests[0].Bitrate)
}

func TestDecisionEngineQualityTriggersPLI(t *testing.T) {
	e := newTestDecisionEngine(DefaultDecisionEngineConfig)
	now := time.Now()

	state := healthyState()
	state.QualityScore = 40.0

	requests := e.Decide(state, now)
	require.Len(t, requests, 2) // periodic REMB + quality PLI
	require.Equal(t, TypeREMB, requests[0].Type)
	require.Equal(t, TypePLI, requests[1].Type)
	require.Equal(t, ReasonQuality, requests[1].Reason)
	require.Equal(t, PriorityNormal, requests[1].Priority)
}

func TestDecisionEnginePLIInterval(t *testing.T) {
	e := newTestDecisionEngine(DefaultDecisionEngineConfig)
	now := time.Now()

	state := healthyState()
	state.LossRate = 0.08
	state.EstimatedBitrate = 0 // keep REMB out of the way

	require.Len(t, e.Decide(state, now), 1)
	require.Empty(t, e.Decide(state, now.Add(200*time.Millisecond)))
	require.Len(t, e.Decide(state, now.Add(600*time.Millisecond)), 1)
}

func TestDecisionEngineGlobalRateLimit(t *testing.T) {
	config := DefaultDecisionEngineConfig
	config.PLIInterval = 0
	config.MaxFeedbackPerSecond = 3
	e := newTestDecisionEngine(config)
	now := time.Now()

	state := healthyState()
	state.LossRate = 0.08
	state.EstimatedBitrate = 0

	sent := 0
	for i := 0; i < 10; i++ {
		sent += len(e.Decide(state, now.Add(time.Duration(i)*50*time.Millisecond)))
	}
	require.Equal(t, 3, sent, "ceiling applies within one second")

	// fresh window, fresh budget
	require.Len(t, e.Decide(state, now.Add(2*time.Second)), 1)
}

func TestDecisionEngineReset(t *testing.T) {
	e := newTestDecisionEngine(DefaultDecisionEngineConfig)
	now := time.Now()

	state := healthyState()
	state.LossRate = 0.08
	require.NotEmpty(t, e.Decide(state, now))

	e.Reset()

	// intervals cleared, feedback allowed immediately
	require.NotEmpty(t, e.Decide(state, now))
}
