// Package connectionquality rates reception quality with the ITU-T G.107
// E-model: impairments for delay, loss and jitter are subtracted from a base
// R-factor, which then maps to a 1-5 MOS. All functions are pure; callers
// snapshot their stream statistics and ask for a score.
package connectionquality

import (
	"math"
)

const (
	// transmission rating for a clean narrowband path
	baseRFactor = 93.2

	// delay impairment, G.107 simplified: linear term plus a steeper
	// penalty once one-way delay passes the interactivity knee
	delayLinearCoeff  = 0.024
	delayKneeMs       = 177.3
	delayPenaltyCoeff = 0.11

	// each percent of packet loss costs this many R points
	lossCoeff = 30.0

	// jitter above this is assumed to exceed the buffer's ability to hide it
	jitterFloorMs = 20.0
	jitterCoeff   = 0.3

	maxRFactor = 100.0

	// below this R the MOS cubic dips under 1.0, so the scale pins there
	mosFloorRFactor = 6.52
)

// QualityMetrics is a snapshot of the stream statistics feeding the rating.
type QualityMetrics struct {
	// fraction of packets lost, 0.0 - 1.0
	LossRate float64

	// interarrival jitter in milliseconds
	JitterMs float64

	// round trip time in milliseconds
	RTTMs float64
}

// CalculateQuality maps metrics to an R-factor in [0, 100]. Higher is
// better; toll quality voice sits above 80.
func CalculateQuality(metrics QualityMetrics) float64 {
	// one-way delay approximated as half the round trip
	d := metrics.RTTMs / 2.0

	id := delayLinearCoeff * d
	if d > delayKneeMs {
		id += delayPenaltyCoeff * (d - delayKneeMs)
	}

	ie := lossCoeff * metrics.LossRate * 100.0

	ij := 0.0
	if metrics.JitterMs > jitterFloorMs {
		ij = jitterCoeff * (metrics.JitterMs - jitterFloorMs)
	}

	r := baseRFactor - id - ie - ij
	return math.Min(math.Max(r, 0.0), maxRFactor)
}

// QualityToMOS converts an R-factor to a mean opinion score on the 1.0 - 4.5
// scale using the G.107 cubic. Monotonically non-decreasing in r.
func QualityToMOS(r float64) float64 {
	if r < mosFloorRFactor {
		return 1.0
	}
	if r >= maxRFactor {
		return 4.5
	}
	return 1.0 + 0.035*r + 7.0e-6*r*(r-60.0)*(100.0-r)
}

// RequiresFeedback reports whether the score has degraded past the
// threshold and the sender should be told.
func RequiresFeedback(score float64, threshold float64) bool {
	return score < threshold
}
