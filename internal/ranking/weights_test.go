package ranking

import (
	"math"
	"testing"
)

// TestCompositeScore tests score fusion across flag combinations.
func TestCompositeScore(t *testing.T) {
	tests := []struct {
		name     string
		params   MatchParams
		weights  *Weights
		expected float64
	}{
		{
			name: "perfect pair baseline signals only",
			params: MatchParams{
				Category:   1.0,
				Distance:   1.0,
				Time:       1.0,
				Attributes: 1.0,
			},
			expected: 1.0,
		},
		{
			name: "strong pair same station same day",
			params: MatchParams{
				Category:   1.0,
				Distance:   0.99,
				Time:       0.93,
				Attributes: 0.7,
			},
			expected: 0.35 + 0.99*0.25 + 0.93*0.20 + 0.7*0.20,
		},
		{
			name: "text score ignored when disabled",
			params: MatchParams{
				Category:    1.0,
				Distance:    1.0,
				Time:        1.0,
				Attributes:  1.0,
				Text:        1.0,
				TextEnabled: false,
			},
			expected: 1.0,
		},
		{
			name: "text score applied when enabled",
			params: MatchParams{
				Category:    0.0,
				Distance:    0.0,
				Time:        0.0,
				Attributes:  0.0,
				Text:        0.8,
				TextEnabled: true,
			},
			expected: 0.8 * 0.25,
		},
		{
			name: "image score applied when enabled",
			params: MatchParams{
				Image:        1.0,
				ImageEnabled: true,
			},
			expected: 0.15,
		},
		{
			name: "all signals enabled clamps at one",
			params: MatchParams{
				Category:     1.0,
				Distance:     1.0,
				Time:         1.0,
				Attributes:   1.0,
				Text:         1.0,
				Image:        1.0,
				TextEnabled:  true,
				ImageEnabled: true,
			},
			expected: 1.0,
		},
		{
			name:     "zero signals give zero score",
			params:   MatchParams{TextEnabled: true, ImageEnabled: true},
			expected: 0.0,
		},
		{
			name: "custom weights override defaults",
			params: MatchParams{
				Category: 1.0,
				Distance: 1.0,
			},
			weights: &Weights{
				Match: SignalWeights{Category: 0.5, Distance: 0.1},
			},
			expected: 0.6,
		},
		{
			name: "nil weights fall back to defaults",
			params: MatchParams{
				Category: 1.0,
			},
			weights:  nil,
			expected: 0.35,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompositeScore(tt.params, tt.weights)
			if math.Abs(got-tt.expected) > 0.0001 {
				t.Errorf("expected %f, got %f", tt.expected, got)
			}
		})
	}
}

// TestCompositeScoreDisabledSignalsNotRenormalized verifies that disabling
// an optional signal lowers the reachable maximum instead of redistributing
// its weight onto the remaining signals.
func TestCompositeScoreDisabledSignalsNotRenormalized(t *testing.T) {
	params := MatchParams{
		Category:   0.5,
		Distance:   0.5,
		Time:       0.5,
		Attributes: 0.5,
		Text:       0.9,
		Image:      0.9,
	}

	baseline := CompositeScore(params, nil)

	params.TextEnabled = true
	withText := CompositeScore(params, nil)

	params.ImageEnabled = true
	withBoth := CompositeScore(params, nil)

	if math.Abs(baseline-0.5) > 0.0001 {
		t.Errorf("expected baseline 0.5, got %f", baseline)
	}
	if math.Abs(withText-(baseline+0.9*0.25)) > 0.0001 {
		t.Errorf("expected text contribution to be purely additive, got %f", withText)
	}
	if math.Abs(withBoth-(withText+0.9*0.15)) > 0.0001 {
		t.Errorf("expected image contribution to be purely additive, got %f", withBoth)
	}
}
