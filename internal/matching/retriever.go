// Package matching implements the matching pipeline: candidate retrieval,
// concurrent signal scoring, score fusion, persistence and explanations.
package matching

import (
	"context"
	"fmt"

	"github.com/onnwee/reclaim/internal/geo"
	"github.com/onnwee/reclaim/internal/item"
)

// DefaultCandidatePoolSize caps how many candidates a single matching run
// scores. The pool is ordered most recent first, so the cap drops the
// oldest reports.
const DefaultCandidatePoolSize = 50

// CandidateRetriever builds the candidate pool for a matching run: items of
// the opposite status, excluding the base owner's own reports, optionally
// prefiltered to the base item's geohash neighborhood.
type CandidateRetriever struct {
	items item.Repository

	// PoolSize caps the candidate pool. Zero or negative uses the default.
	PoolSize int

	// GeoPrefilter enables the geohash neighborhood prefilter. Candidates
	// without coordinates always pass the prefilter regardless.
	GeoPrefilter bool
}

// NewCandidateRetriever creates a retriever over the given item repository.
func NewCandidateRetriever(items item.Repository, poolSize int, geoPrefilter bool) *CandidateRetriever {
	return &CandidateRetriever{
		items:        items,
		PoolSize:     poolSize,
		GeoPrefilter: geoPrefilter,
	}
}

// Retrieve returns the candidate pool for the base item, most recent first.
// An item with no counterpart reports yields an empty slice, not an error.
func (r *CandidateRetriever) Retrieve(ctx context.Context, base *item.Item) ([]*item.Item, error) {
	opposite := base.Status.Opposite()
	if opposite == "" {
		return nil, fmt.Errorf("item %s has status %q, which has no counterpart", base.ID, base.Status)
	}

	limit := r.PoolSize
	if limit <= 0 {
		limit = DefaultCandidatePoolSize
	}

	filter := item.CandidateFilter{
		Status:         opposite,
		ExcludeOwnerID: base.OwnerID,
		Limit:          limit,
	}

	if r.GeoPrefilter {
		filter.GeohashCells = r.neighborhood(base)
	}

	candidates, err := r.items.ListCandidates(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates for item %s: %w", base.ID, err)
	}
	return candidates, nil
}

// neighborhood returns the base item's geohash cell plus its eight
// neighbors, or nil when the base has no usable location. Nil disables
// the prefilter for this run rather than emptying the pool.
func (r *CandidateRetriever) neighborhood(base *item.Item) []string {
	cell := base.Geohash
	if cell == "" {
		if !base.HasCoordinates() {
			return nil
		}
		cell = geo.Encode(*base.Lat, *base.Lng, geo.DefaultPrecision)
	}
	return geo.Neighbors(cell)
}
