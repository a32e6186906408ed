package connectionquality

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalculateQuality(t *testing.T) {
	for _, tc := range []struct {
		name    string
		metrics QualityMetrics
		min     float64
		max     float64
	}{
		{
			name:    "clean path",
			metrics: QualityMetrics{LossRate: 0.0, JitterMs: 5.0, RTTMs: 40.0},
			min:     90.0,
			max:     93.2,
		},
		{
			name:    "one percent loss",
			metrics: QualityMetrics{LossRate: 0.01, JitterMs: 5.0, RTTMs: 40.0},
			min:     60.0,
			max:     64.0,
		},
		{
			name:    "heavy loss floors at zero",
			metrics: QualityMetrics{LossRate: 0.2, JitterMs: 5.0, RTTMs: 40.0},
			min:     0.0,
			max:     0.0,
		},
		{
			name:    "satellite delay",
			metrics: QualityMetrics{LossRate: 0.0, JitterMs: 5.0, RTTMs: 600.0},
			min:     70.0,
			max:     75.0,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := CalculateQuality(tc.metrics)
			require.GreaterOrEqual(t, r, tc.min)
			require.LessOrEqual(t, r, tc.max)
		})
	}
}

func TestCalculateQualityImpairmentsAreMonotonic(t *testing.T) {
	base := QualityMetrics{LossRate: 0.005, JitterMs: 10.0, RTTMs: 100.0}
	r := CalculateQuality(base)

	worseLoss := base
	worseLoss.LossRate = 0.02
	require.Less(t, CalculateQuality(worseLoss), r)

	worseJitter := base
	worseJitter.JitterMs = 60.0
	require.Less(t, CalculateQuality(worseJitter), r)

	worseRTT := base
	worseRTT.RTTMs = 500.0
	require.Less(t, CalculateQuality(worseRTT), r)
}

func TestCalculateQualityJitterFloor(t *testing.T) {
	low := QualityMetrics{JitterMs: 5.0}
	high := QualityMetrics{JitterMs: 19.0}

	// jitter the buffer can absorb carries no penalty
	require.Equal(t, CalculateQuality(low), CalculateQuality(high))
}

func TestQualityToMOSBounds(t *testing.T) {
	require.Equal(t, 1.0, QualityToMOS(-10.0))
	require.Equal(t, 1.0, QualityToMOS(0.0))
	require.Equal(t, 4.5, QualityToMOS(100.0))
	require.Equal(t, 4.5, QualityToMOS(120.0))
}

func TestQualityToMOSMonotonic(t *testing.T) {
	prev := QualityToMOS(-5.0)
	for r := -4.5; r <= 110.0; r += 0.5 {
		mos := QualityToMOS(r)
		require.GreaterOrEqual(t, mos, prev, "r=%v", r)
		prev = mos
	}
}

func TestQualityToMOSTollQuality(t *testing.T) {
	// a clean narrowband path lands in the "satisfied" band
	mos := QualityToMOS(CalculateQuality(QualityMetrics{JitterMs: 5.0, RTTMs: 40.0}))
	require.Greater(t, mos, 4.2)
	require.LessOrEqual(t, mos, 4.5)
}

func TestRequiresFeedback(t *testing.T) {
	require.True(t, RequiresFeedback(50.0, 60.0))
	require.False(t, RequiresFeedback(60.0, 60.0))
	require.False(t, RequiresFeedback(70.0, 60.0))
}
