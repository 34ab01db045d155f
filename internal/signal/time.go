package signal

import (
	"math"

	"github.com/onnwee/reclaim/internal/item"
)

// DefaultDecayDays is the temporal window past which the time signal
// bottoms out.
const DefaultDecayDays = 30.0

// hoursPerDay converts between the stored hour diff and the decay window.
const hoursPerDay = 24.0

// TimeScorer compares occurrence timestamps with linear decay over a
// configured window. Items without an occurrence time fall back to their
// record-creation time, so the signal is always computable.
type TimeScorer struct {
	// DecayDays is the decay window in days. Zero or negative uses the default.
	DecayDays float64
}

// Score returns the temporal similarity and the absolute difference between
// the two occurrence timestamps in hours.
func (s TimeScorer) Score(base, candidate *item.Item) (float64, float64) {
	decay := s.DecayDays
	if decay <= 0 {
		decay = DefaultDecayDays
	}

	diff := base.OccurredOrCreated().Sub(candidate.OccurredOrCreated())
	diffHours := math.Abs(diff.Hours())

	score := 1 - (diffHours/hoursPerDay)/decay
	if score < 0 {
		score = 0
	}
	return score, diffHours
}
