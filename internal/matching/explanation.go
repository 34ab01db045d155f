package matching

import (
	"fmt"
	"math"
	"strings"

	"github.com/onnwee/reclaim/internal/match"
)

// Confidence tiers derived from the final score.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Confidence tier boundaries.
const (
	highConfidenceFloor   = 0.8
	mediumConfidenceFloor = 0.5
)

// Per-signal disclosure thresholds. A signal is named in the explanation
// only when its own score clears its threshold, so weak contributors stay
// out of the user-facing rationale.
const (
	strongSignalThreshold = 0.8
	attributesSignalFloor = 0.7
)

// Explanation is the read-side rationale for a match. It is derived from the
// persisted breakdown on every request and never stored.
type Explanation struct {
	MatchID    string   `json:"match_id"`
	Score      float64  `json:"score"`
	Confidence string   `json:"confidence"`
	Reasons    []string `json:"reasons"`
	Summary    string   `json:"summary"`
}

// ExplanationBuilder turns a match's score breakdown into a confidence tier
// and a human-readable rationale.
type ExplanationBuilder struct{}

// Build derives the explanation for a match.
func (ExplanationBuilder) Build(m *match.Match) *Explanation {
	e := &Explanation{
		MatchID:    m.ID,
		Score:      m.ScoreFinal,
		Confidence: confidenceTier(m.ScoreFinal),
		Reasons:    []string{},
	}

	if score, ok := m.Breakdown[match.SignalCategory]; ok && score > strongSignalThreshold {
		e.Reasons = append(e.Reasons, "both reports are in the same category")
	}
	if score, ok := m.Breakdown[match.SignalDistance]; ok && score > strongSignalThreshold {
		e.Reasons = append(e.Reasons, distanceReason(m.DistanceKM))
	}
	if score, ok := m.Breakdown[match.SignalTime]; ok && score > strongSignalThreshold {
		e.Reasons = append(e.Reasons, timeReason(m.TimeDiffHours))
	}
	if score, ok := m.Breakdown[match.SignalAttributes]; ok && score > attributesSignalFloor {
		e.Reasons = append(e.Reasons, "the item details closely match")
	}
	if score, ok := m.Breakdown[match.SignalText]; ok && score > strongSignalThreshold {
		e.Reasons = append(e.Reasons, "the descriptions are very similar")
	}
	if score, ok := m.Breakdown[match.SignalImage]; ok && score > strongSignalThreshold {
		e.Reasons = append(e.Reasons, "the photos look alike")
	}

	e.Summary = summarize(e.Confidence, e.Reasons)
	return e
}

// confidenceTier classifies a final score into high, medium or low.
func confidenceTier(score float64) string {
	switch {
	case score >= highConfidenceFloor:
		return ConfidenceHigh
	case score >= mediumConfidenceFloor:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// distanceReason phrases the distance factor, using the stored distance
// when the pair had coordinates.
func distanceReason(distanceKM *float64) string {
	if distanceKM == nil {
		return "the reported locations are very close"
	}
	if *distanceKM < 1 {
		return fmt.Sprintf("the reported locations are about %.0f m apart", *distanceKM*1000)
	}
	return fmt.Sprintf("the reported locations are about %.1f km apart", *distanceKM)
}

// timeReason phrases the time factor from the stored hour difference.
func timeReason(diffHours *float64) string {
	if diffHours == nil {
		return "both reports are from around the same time"
	}
	days := math.Round(*diffHours / 24)
	if days < 1 {
		return "both reports are from the same day"
	}
	if days == 1 {
		return "the reports are about a day apart"
	}
	return fmt.Sprintf("the reports are about %.0f days apart", days)
}

// summarize joins the confidence tier and reasons into one sentence.
func summarize(confidence string, reasons []string) string {
	if len(reasons) == 0 {
		return fmt.Sprintf("This is a %s-confidence match.", confidence)
	}
	return fmt.Sprintf("This is a %s-confidence match: %s.", confidence, strings.Join(reasons, "; "))
}
