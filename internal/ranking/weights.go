// Package ranking provides centralized match score fusion
// with calibration support for the matching pipeline.
package ranking

// MatchParams holds the per-signal scores for computing a composite
// match score. All scores are expected to be normalized to [0, 1].
type MatchParams struct {
	Category     float64 // Category exact-match score [0, 1]
	Distance     float64 // Geographic proximity score [0, 1]
	Time         float64 // Temporal proximity score [0, 1]
	Attributes   float64 // Structured attribute composite score [0, 1]
	Text         float64 // Semantic text similarity score [0, 1]
	Image        float64 // Perceptual image similarity score [0, 1]
	TextEnabled  bool    // Whether text similarity is enabled
	ImageEnabled bool    // Whether image similarity is enabled
}

// CompositeScore computes the final composite score for a lost/found pair.
// Uses the calibrated weights to combine the baseline signals with the
// optional text and image similarity signals.
//
// Default formula (all signals enabled):
//
//	score = (category * 0.35) + (distance * 0.25) + (time * 0.20) +
//	        (attributes * 0.20) + (text * 0.25) + (image * 0.15)
//
// When text or image scoring is disabled its component is simply omitted;
// the remaining weights are NOT renormalized, so the maximum reachable
// score drops accordingly (1.0 baseline, 1.25 with text, 1.40 with both
// before clamping). Callers clamp the result to [0, 1].
//
// Parameters:
//   - params: The component scores and feature flags
//   - weights: The calibrated weight configuration (optional, uses default if nil)
//
// Returns the composite score clamped to [0, 1].
func CompositeScore(params MatchParams, weights *Weights) float64 {
	if weights == nil {
		weights = DefaultWeights()
	}

	score := (params.Category * weights.Match.Category) +
		(params.Distance * weights.Match.Distance) +
		(params.Time * weights.Match.Time) +
		(params.Attributes * weights.Match.Attributes)

	if params.TextEnabled {
		score += params.Text * weights.Match.Text
	}
	if params.ImageEnabled {
		score += params.Image * weights.Match.Image
	}

	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}

	return score
}
