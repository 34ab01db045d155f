package signal

import (
	"github.com/onnwee/reclaim/internal/geo"
	"github.com/onnwee/reclaim/internal/item"
)

// DefaultMaxRadiusKM is the distance past which the geo signal bottoms out.
const DefaultMaxRadiusKM = 50.0

// GeoScorer compares item coordinates with linear falloff over a maximum
// radius: a distance of 0 scores 1, anything at or beyond the radius
// scores 0.
type GeoScorer struct {
	// MaxRadiusKM is the falloff radius. Zero or negative uses the default.
	MaxRadiusKM float64
}

// Score returns the geo similarity and, when both items carry coordinates,
// the great-circle distance between them in kilometers. Items without
// coordinates on either side score 0 with a nil distance.
func (s GeoScorer) Score(base, candidate *item.Item) (float64, *float64) {
	if !base.HasCoordinates() || !candidate.HasCoordinates() {
		return 0, nil
	}

	radius := s.MaxRadiusKM
	if radius <= 0 {
		radius = DefaultMaxRadiusKM
	}

	distance := geo.HaversineKM(*base.Lat, *base.Lng, *candidate.Lat, *candidate.Lng)
	score := 1 - distance/radius
	if score < 0 {
		score = 0
	}
	return score, &distance
}
