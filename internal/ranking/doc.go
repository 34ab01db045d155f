// Package ranking provides centralized match score fusion
// with calibration support for the matching pipeline.
//
// Basic Usage:
//
//	// Load calibration (typically at startup)
//	weights, err := ranking.LoadCalibration("configs/matching.calibration.json")
//	if err != nil {
//		log.Warn("using default weights", "error", err)
//	}
//
//	// Fuse the per-signal scores into one match score
//	params := ranking.MatchParams{
//		Category:     1.0,   // Exact category match
//		Distance:     0.99,  // From the geo scorer
//		Time:         0.93,  // From the time scorer
//		Attributes:   0.7,   // From the metadata scorer
//		Text:         0.82,  // From the text scorer
//		TextEnabled:  config.TextSignalEnabled,
//		ImageEnabled: config.ImageSignalEnabled,
//	}
//	score := ranking.CompositeScore(params, weights)
//
// Signal scores are expected in the [0, 1] range; the composite is
// clamped to [0, 1]. Disabled optional signals are omitted without
// renormalizing the remaining weights, so flag changes never inflate
// the scores of existing pairs.
//
// Calibration:
//
// The calibration system allows deploy-time tuning of fusion weights via
// JSON configuration files loaded at startup. This enables A/B testing and
// optimization without code changes (but requires a redeploy or restart to
// pick up new configuration). See configs/matching.calibration.json for the
// default configuration.
package ranking
