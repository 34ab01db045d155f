package ranking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// SignalWeights defines the fusion weights for the match signals.
type SignalWeights struct {
	Category   float64 `json:"category"`   // Weight for category exact match (default: 0.35)
	Distance   float64 `json:"distance"`   // Weight for geographic proximity (default: 0.25)
	Time       float64 `json:"time"`       // Weight for temporal proximity (default: 0.20)
	Attributes float64 `json:"attributes"` // Weight for attribute composite (default: 0.20)
	Text       float64 `json:"text"`       // Weight for text similarity (default: 0.25)
	Image      float64 `json:"image"`      // Weight for image similarity (default: 0.15)
}

// Weights holds all score fusion weight configurations.
type Weights struct {
	Match SignalWeights `json:"match"` // Match score fusion weights
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version string  `json:"version"` // Config version for future compatibility
	Weights Weights `json:"weights"` // Weight configurations
}

// DefaultWeights returns the default fusion weight configuration.
// The four baseline weights sum to 1.0; text and image are additive
// bonuses applied only when their feature flags are on.
//
// Match formula: score = (category * 0.35) + (distance * 0.25) +
// (time * 0.20) + (attributes * 0.20) + (text * 0.25) + (image * 0.15)
//   - Category carries the most weight: a category mismatch is the
//     strongest negative evidence available
//   - Distance and time reward pairs plausibly connected by one event
//   - Attributes reward matching secondary detail (brand, color)
//   - Text and image, when enabled, reward deeper content similarity
func DefaultWeights() *Weights {
	return &Weights{
		Match: SignalWeights{
			Category:   0.35,
			Distance:   0.25,
			Time:       0.20,
			Attributes: 0.20,
			Text:       0.25,
			Image:      0.15,
		},
	}
}

// LoadCalibration loads fusion weights from a JSON calibration file.
// If the file doesn't exist or can't be read, returns default weights with an error.
// Partial configurations are merged with defaults for graceful degradation.
//
// Parameters:
//   - filePath: Path to the calibration JSON file
//
// Returns the loaded weights and any error encountered.
// On error, returns default weights to ensure graceful degradation.
func LoadCalibration(filePath string) (*Weights, error) {
	// Return defaults if no file path provided
	if filePath == "" {
		return DefaultWeights(), nil
	}

	// Read the calibration file
	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	// Parse JSON
	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	// Merge loaded weights with defaults to handle partial configurations
	defaults := DefaultWeights()
	merged := MergeCalibration(defaults, &config.Weights)
	logCalibrationOverrides(defaults, merged)

	return merged, nil
}

// MergeCalibration merges override weights with default weights.
// Only non-zero values from the override are applied.
// This allows partial overrides in the calibration file.
//
// Parameters:
//   - base: The base weights to start from (typically defaults)
//   - override: The override weights to merge in
//
// Returns a new Weights struct with merged values.
func MergeCalibration(base *Weights, override *Weights) *Weights {
	// Guard against nil base to avoid panics; fall back to defaults.
	if base == nil {
		return DefaultWeights()
	}

	// If there is no override provided, return a copy of the base.
	if override == nil {
		result := *base
		return &result
	}

	result := *base // Copy base

	if override.Match.Category != 0 {
		result.Match.Category = override.Match.Category
	}
	if override.Match.Distance != 0 {
		result.Match.Distance = override.Match.Distance
	}
	if override.Match.Time != 0 {
		result.Match.Time = override.Match.Time
	}
	if override.Match.Attributes != 0 {
		result.Match.Attributes = override.Match.Attributes
	}
	if override.Match.Text != 0 {
		result.Match.Text = override.Match.Text
	}
	if override.Match.Image != 0 {
		result.Match.Image = override.Match.Image
	}

	return &result
}

// logCalibrationOverrides logs which weights were overridden from defaults.
func logCalibrationOverrides(defaults *Weights, loaded *Weights) {
	var overrides []string

	if loaded.Match.Category != defaults.Match.Category {
		overrides = append(overrides, fmt.Sprintf("match.category: %.2f -> %.2f",
			defaults.Match.Category, loaded.Match.Category))
	}
	if loaded.Match.Distance != defaults.Match.Distance {
		overrides = append(overrides, fmt.Sprintf("match.distance: %.2f -> %.2f",
			defaults.Match.Distance, loaded.Match.Distance))
	}
	if loaded.Match.Time != defaults.Match.Time {
		overrides = append(overrides, fmt.Sprintf("match.time: %.2f -> %.2f",
			defaults.Match.Time, loaded.Match.Time))
	}
	if loaded.Match.Attributes != defaults.Match.Attributes {
		overrides = append(overrides, fmt.Sprintf("match.attributes: %.2f -> %.2f",
			defaults.Match.Attributes, loaded.Match.Attributes))
	}
	if loaded.Match.Text != defaults.Match.Text {
		overrides = append(overrides, fmt.Sprintf("match.text: %.2f -> %.2f",
			defaults.Match.Text, loaded.Match.Text))
	}
	if loaded.Match.Image != defaults.Match.Image {
		overrides = append(overrides, fmt.Sprintf("match.image: %.2f -> %.2f",
			defaults.Match.Image, loaded.Match.Image))
	}

	if len(overrides) > 0 {
		slog.Info("loaded fusion calibration with overrides",
			"overrides", overrides)
	} else {
		slog.Info("loaded fusion calibration (using all defaults)")
	}
}
