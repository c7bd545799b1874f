package fingerprint

import (
	"math"
	"time"
)

// Recency decay modes.
const (
	DecayExponential = "exponential"
	DecayLinear      = "linear"
	DecayStep        = "step"
)

// RecencyScore scores an upload timestamp (Unix seconds) against the current
// time. Shared by the tracker's statistics and the hybrid scorer's recency
// blend.
func RecencyScore(timestamp float64, mode string, halfLifeDays float64) float64 {
	return RecencyScoreAt(timestamp, float64(time.Now().Unix()), mode, halfLifeDays)
}

// RecencyScoreAt is RecencyScore with an explicit reference time. Pure.
func RecencyScoreAt(timestamp, now float64, mode string, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		halfLifeDays = 30
	}
	ageDays := (now - timestamp) / 86400.0

	switch mode {
	case DecayExponential:
		decay := math.Exp(-ageDays / halfLifeDays)
		return math.Min(1.0, math.Max(0.0, decay))

	case DecayLinear:
		maxAge := halfLifeDays * 3
		if ageDays >= maxAge {
			return 0.0
		}
		if ageDays < 0 {
			return 1.0
		}
		return 1.0 - ageDays/maxAge

	case DecayStep:
		switch {
		case ageDays <= 7:
			return 1.0
		case ageDays <= 30:
			return 0.8
		case ageDays <= 90:
			return 0.5
		case ageDays <= 365:
			return 0.2
		default:
			return 0.05
		}

	default:
		return 1.0
	}
}
