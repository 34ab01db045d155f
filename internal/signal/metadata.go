package signal

import (
	"strings"

	"github.com/onnwee/reclaim/internal/item"
)

// Attribute shares within the composite attributes score. Category match
// contributes the dominant share; secondary attributes contribute smaller
// shares. An attribute missing on either side contributes nothing.
const (
	categoryShare    = 0.7
	subcategoryShare = 0.1
	brandShare       = 0.1
	colorShare       = 0.1
)

// MetadataScores holds the two structured-metadata signals for a pair.
// A nil field means the signal could not be computed because the relevant
// attributes were missing on one or both sides.
type MetadataScores struct {
	// Category is the exact-match indicator for the item category: 1 on
	// match, 0 on mismatch, nil when either side lacks a category.
	Category *float64

	// Attributes is the weighted exact-match composite over category,
	// subcategory, brand, and color, capped at 1.0. Nil when no attribute
	// is present on both sides.
	Attributes *float64
}

// MetadataScorer compares structured item attributes by case-insensitive
// exact match.
type MetadataScorer struct{}

// Score computes the metadata signals for a base/candidate pair.
func (MetadataScorer) Score(base, candidate *item.Item) MetadataScores {
	var scores MetadataScores

	if ok, matched := attrMatch(base.Category, candidate.Category); ok {
		v := 0.0
		if matched {
			v = 1.0
		}
		scores.Category = &v
	}

	total := 0.0
	computed := false
	for _, attr := range []struct {
		base, candidate *string
		share           float64
	}{
		{base.Category, candidate.Category, categoryShare},
		{base.Subcategory, candidate.Subcategory, subcategoryShare},
		{base.Brand, candidate.Brand, brandShare},
		{base.Color, candidate.Color, colorShare},
	} {
		ok, matched := attrMatch(attr.base, attr.candidate)
		if !ok {
			continue
		}
		computed = true
		if matched {
			total += attr.share
		}
	}

	if computed {
		if total > 1.0 {
			total = 1.0
		}
		scores.Attributes = &total
	}

	return scores
}

// attrMatch reports whether both values are present (ok) and, if so,
// whether they match case-insensitively after trimming.
func attrMatch(a, b *string) (ok bool, matched bool) {
	if a == nil || b == nil {
		return false, false
	}
	av := strings.TrimSpace(*a)
	bv := strings.TrimSpace(*b)
	if av == "" || bv == "" {
		return false, false
	}
	return true, strings.EqualFold(av, bv)
}
