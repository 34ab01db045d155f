// Package match provides the match record model, its status state machine,
// and repositories enforcing one persisted match per unordered item pair.
package match

import (
	"time"
)

// Status is the lifecycle status of a match record.
type Status string

// Match statuses. Transitions only ever move forward:
// pending → viewed → dismissed | claimed, with pending also allowed to jump
// straight to dismissed or claimed. Dismissed and claimed are terminal.
const (
	StatusPending   Status = "pending"
	StatusViewed    Status = "viewed"
	StatusDismissed Status = "dismissed"
	StatusClaimed   Status = "claimed"
)

// Valid reports whether s is a known match status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusViewed, StatusDismissed, StatusClaimed:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusDismissed || s == StatusClaimed
}

// CanTransitionTo reports whether moving from s to next is a legal forward
// transition. Self-transitions are not allowed.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusViewed || next == StatusDismissed || next == StatusClaimed
	case StatusViewed:
		return next == StatusDismissed || next == StatusClaimed
	default:
		return false
	}
}

// Signal names used as keys in a score breakdown.
const (
	SignalCategory   = "category"
	SignalDistance   = "distance"
	SignalTime       = "time"
	SignalAttributes = "attributes"
	SignalText       = "text"
	SignalImage      = "image"
)

// Breakdown maps signal name to its score in [0, 1]. A missing key means
// the signal was not computed for this pair.
type Breakdown map[string]float64

// Match represents a scored candidate pairing of one lost and one found item.
// At most one match row exists per unordered item pair; PairKey is the
// canonical key enforcing that.
type Match struct {
	ID          string    `json:"id"`
	LostItemID  string    `json:"lost_item_id"`
	FoundItemID string    `json:"found_item_id"`
	ScoreFinal  float64   `json:"score_final"`
	Breakdown   Breakdown `json:"score_breakdown,omitempty"`

	DistanceKM    *float64 `json:"distance_km,omitempty"`
	TimeDiffHours *float64 `json:"time_diff_hours,omitempty"`

	Status Status `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PairKey returns the canonical key for an unordered item pair: the two ids
// joined with ':' in lexicographic order. Both orderings of the same pair
// produce the same key, which is what the uniqueness constraint hangs off.
func PairKey(a, b string) string {
	if a <= b {
		return a + ":" + b
	}
	return b + ":" + a
}

// UpsertResult reports whether an upsert inserted a new row or rescored an
// existing one.
type UpsertResult struct {
	Inserted bool   // True if a new record was inserted
	ID       string // The UUID of the upserted record
}
