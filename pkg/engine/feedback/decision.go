// Package feedback decides when the receiver should speak up: it turns
// congestion state, quality scores and loss observations into rate limited
// RTCP feedback requests, and tracks retransmission requests for lost
// packets.
package feedback

import (
	"fmt"
	"time"

	"github.com/livekit/protocol/logger"

	"github.com/livekit/rtpengine/pkg/engine/bwe"
	"github.com/livekit/rtpengine/pkg/engine/connectionquality"
)

// ------------------------------------------------

type Type int

const (
	TypePLI Type = iota
	TypeFIR
	TypeREMB
)

func (t Type) String() string {
	switch t {
	case TypePLI:
		return "PLI"
	case TypeFIR:
		return "FIR"
	case TypeREMB:
		return "REMB"
	default:
		return fmt.Sprintf("%d", int(t))
	}
}

// ------------------------------------------------

type Reason int

const (
	ReasonLoss Reason = iota
	ReasonCongestion
	ReasonQuality
)

func (r Reason) String() string {
	switch r {
	case ReasonLoss:
		return "LOSS"
	case ReasonCongestion:
		return "CONGESTION"
	case ReasonQuality:
		return "QUALITY"
	default:
		return fmt.Sprintf("%d", int(r))
	}
}

// ------------------------------------------------

type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("%d", int(p))
	}
}

// ------------------------------------------------

// Request is one feedback message the caller should send. Priority and
// Reason let a caller owning several streams merge requests and rate limit
// across all of them.
type Request struct {
	Type     Type
	Priority Priority
	Reason   Reason

	// REMB only
	Bitrate int64

	// FIR only
	FIRSequence uint8
}

// ------------------------------------------------

type DecisionEngineConfig struct {
	// R-factor below which quality alone triggers feedback
	QualityThreshold float64 `yaml:"quality_threshold,omitempty"`

	// loss fraction that triggers a PLI; severe loss escalates to FIR
	LossThreshold       float64 `yaml:"loss_threshold,omitempty"`
	SevereLossThreshold float64 `yaml:"severe_loss_threshold,omitempty"`

	// minimum spacing between two feedback messages of the same type
	PLIInterval  time.Duration `yaml:"pli_interval,omitempty"`
	FIRInterval  time.Duration `yaml:"fir_interval,omitempty"`
	REMBInterval time.Duration `yaml:"remb_interval,omitempty"`

	// hard ceiling on feedback of any type
	MaxFeedbackPerSecond int `yaml:"max_feedback_per_second,omitempty"`
}

var DefaultDecisionEngineConfig = DecisionEngineConfig{
	QualityThreshold:     60.0,
	LossThreshold:        0.05,
	SevereLossThreshold:  0.15,
	PLIInterval:          500 * time.Millisecond,
	FIRInterval:          2 * time.Second,
	REMBInterval:         time.Second,
	MaxFeedbackPerSecond: 10,
}

type DecisionEngineParams struct {
	Config DecisionEngineConfig
	Logger logger.Logger
}

// StreamState is the engine's view of one stream at decision time.
type StreamState struct {
	CongestionState  bwe.CongestionState
	EstimatedBitrate int64

	// R-factor, 0-100
	QualityScore float64

	// fraction of packets lost in the recent window, 0.0 - 1.0
	LossRate float64
}

// DecisionEngine rate limits and prioritizes outgoing feedback. Not safe
// for concurrent use.
type DecisionEngine struct {
	params DecisionEngineParams

	lastPLI  time.Time
	lastFIR  time.Time
	lastREMB time.Time

	firSeq uint8

	windowStart  time.Time
	sentInWindow int
}

func NewDecisionEngine(params DecisionEngineParams) *DecisionEngine {
	return &DecisionEngine{
		params: params,
	}
}

// Decide returns the feedback to send right now, possibly none, possibly
// several. Every returned request counts against the per-type interval and
// the global rate limit.
func (e *DecisionEngine) Decide(state StreamState, now time.Time) []Request {
	var requests []Request

	// loss: severe loss warrants a full refresh, moderate loss a PLI
	if state.LossRate >= e.params.Config.SevereLossThreshold {
		if e.trySend(TypeFIR, now) {
			e.firSeq++
			requests = append(requests, Request{
				Type:        TypeFIR,
				Priority:    PriorityHigh,
				Reason:      ReasonLoss,
				FIRSequence: e.firSeq,
			})
		}
	} else if state.LossRate >= e.params.Config.LossThreshold {
		if e.trySend(TypePLI, now) {
			requests = append(requests, Request{
				Type:     TypePLI,
				Priority: PriorityHigh,
				Reason:   ReasonLoss,
			})
		}
	}

	// congestion: tell the sender to back off as soon as we detect it, and
	// refresh the estimate periodically otherwise
	if state.EstimatedBitrate > 0 {
		if state.CongestionState == bwe.CongestionStateDecrease {
			if e.trySend(TypeREMB, now) {
				requests = append(requests, Request{
					Type:     TypeREMB,
					Priority: PriorityHigh,
					Reason:   ReasonCongestion,
					Bitrate:  state.EstimatedBitrate,
				})
			}
		} else if e.lastREMB.IsZero() || now.Sub(e.lastREMB) >= e.params.Config.REMBInterval {
			if e.trySend(TypeREMB, now) {
				requests = append(requests, Request{
					Type:     TypeREMB,
					Priority: PriorityLow,
					Reason:   ReasonCongestion,
					Bitrate:  state.EstimatedBitrate,
				})
			}
		}
	}

	// quality: degraded score without notable loss still asks for a refresh
	if state.LossRate < e.params.Config.LossThreshold &&
		connectionquality.RequiresFeedback(state.QualityScore, e.params.Config.QualityThreshold) {
		if e.trySend(TypePLI, now) {
			requests = append(requests, Request{
				Type:     TypePLI,
				Priority: PriorityNormal,
				Reason:   ReasonQuality,
			})
		}
	}

	if len(requests) > 0 {
		e.params.Logger.Debugw("feedback decided", "requests", len(requests), "state", state.CongestionState)
	}
	return requests
}

// FIRSequence returns the last issued FIR sequence number.
func (e *DecisionEngine) FIRSequence() uint8 {
	return e.firSeq
}

func (e *DecisionEngine) Reset() {
	e.lastPLI = time.Time{}
	e.lastFIR = time.Time{}
	e.lastREMB = time.Time{}
	e.windowStart = time.Time{}
	e.sentInWindow = 0
}

// trySend checks the per-type interval and the global rate limit, and
// claims a slot when both allow.
func (e *DecisionEngine) trySend(feedbackType Type, now time.Time) bool {
	var last *time.Time
	var interval time.Duration
	switch feedbackType {
	case TypePLI:
		last, interval = &e.lastPLI, e.params.Config.PLIInterval
	case TypeFIR:
		last, interval = &e.lastFIR, e.params.Config.FIRInterval
	case TypeREMB:
		last, interval = &e.lastREMB, e.params.Config.REMBInterval
	default:
		return false
	}

	if !last.IsZero() && now.Sub(*last) < interval {
		return false
	}

	if e.windowStart.IsZero() || now.Sub(e.windowStart) >= time.Second {
		e.windowStart = now
		e.sentInWindow = 0
	}
	if e.sentInWindow >= e.params.Config.MaxFeedbackPerSecond {
		return false
	}

	*last = now
	e.sentInWindow++
	return true
}
