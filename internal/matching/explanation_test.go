package matching

import (
	"strings"
	"testing"

	"github.com/onnwee/reclaim/internal/match"
)

// TestConfidenceTiers checks the score-to-tier boundaries.
func TestConfidenceTiers(t *testing.T) {
	tests := []struct {
		score    float64
		expected string
	}{
		{1.0, ConfidenceHigh},
		{0.8, ConfidenceHigh},
		{0.79, ConfidenceMedium},
		{0.5, ConfidenceMedium},
		{0.49, ConfidenceLow},
		{0.0, ConfidenceLow},
	}

	var builder ExplanationBuilder
	for _, tt := range tests {
		e := builder.Build(&match.Match{ID: "m1", ScoreFinal: tt.score})
		if e.Confidence != tt.expected {
			t.Errorf("score %f: expected %s, got %s", tt.score, tt.expected, e.Confidence)
		}
	}
}

// TestExplanationDisclosure verifies only signals above their disclosure
// threshold are named.
func TestExplanationDisclosure(t *testing.T) {
	var builder ExplanationBuilder

	t.Run("strong signals disclosed", func(t *testing.T) {
		distance := 0.4
		diffHours := 48.0
		e := builder.Build(&match.Match{
			ID:         "m1",
			ScoreFinal: 0.92,
			Breakdown: match.Breakdown{
				match.SignalCategory:   1.0,
				match.SignalDistance:   0.99,
				match.SignalTime:       0.93,
				match.SignalAttributes: 0.7,
			},
			DistanceKM:    &distance,
			TimeDiffHours: &diffHours,
		})

		if len(e.Reasons) != 3 {
			t.Fatalf("expected 3 reasons, got %d: %v", len(e.Reasons), e.Reasons)
		}
		if !strings.Contains(e.Summary, "same category") {
			t.Errorf("expected category reason in summary: %s", e.Summary)
		}
		if !strings.Contains(e.Summary, "400 m apart") {
			t.Errorf("expected distance phrasing in summary: %s", e.Summary)
		}
		if !strings.Contains(e.Summary, "2 days apart") {
			t.Errorf("expected time phrasing in summary: %s", e.Summary)
		}
	})

	t.Run("attributes threshold is strict", func(t *testing.T) {
		e := builder.Build(&match.Match{
			ID:         "m1",
			ScoreFinal: 0.6,
			Breakdown:  match.Breakdown{match.SignalAttributes: 0.7},
		})
		if len(e.Reasons) != 0 {
			t.Errorf("expected attributes at exactly 0.7 undisclosed, got %v", e.Reasons)
		}

		e = builder.Build(&match.Match{
			ID:         "m1",
			ScoreFinal: 0.6,
			Breakdown:  match.Breakdown{match.SignalAttributes: 0.71},
		})
		if len(e.Reasons) != 1 {
			t.Errorf("expected attributes above 0.7 disclosed, got %v", e.Reasons)
		}
	})

	t.Run("weak signals stay silent", func(t *testing.T) {
		e := builder.Build(&match.Match{
			ID:         "m1",
			ScoreFinal: 0.45,
			Breakdown: match.Breakdown{
				match.SignalCategory: 0.0,
				match.SignalDistance: 0.5,
				match.SignalTime:     0.8,
			},
		})
		if len(e.Reasons) != 0 {
			t.Errorf("expected no reasons for weak signals, got %v", e.Reasons)
		}
		if !strings.Contains(e.Summary, "low-confidence") {
			t.Errorf("expected bare low-confidence summary, got %s", e.Summary)
		}
	})

	t.Run("optional signals disclosed when strong", func(t *testing.T) {
		e := builder.Build(&match.Match{
			ID:         "m1",
			ScoreFinal: 0.85,
			Breakdown: match.Breakdown{
				match.SignalText:  0.9,
				match.SignalImage: 0.95,
			},
		})
		if len(e.Reasons) != 2 {
			t.Fatalf("expected text and image reasons, got %v", e.Reasons)
		}
	})

	t.Run("missing distance falls back to generic phrasing", func(t *testing.T) {
		e := builder.Build(&match.Match{
			ID:         "m1",
			ScoreFinal: 0.85,
			Breakdown:  match.Breakdown{match.SignalDistance: 0.9},
		})
		if len(e.Reasons) != 1 || !strings.Contains(e.Reasons[0], "very close") {
			t.Errorf("expected generic distance phrasing, got %v", e.Reasons)
		}
	})
}
