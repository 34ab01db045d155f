// Package item provides models and read-side repository access for lost and
// found item reports and their media assets.
package item

import "time"

// Status is the lifecycle status of an item report.
type Status string

// Item statuses. Lost and found items are the active pool the matching
// engine scores against; claimed and closed items are excluded.
const (
	StatusLost    Status = "lost"
	StatusFound   Status = "found"
	StatusClaimed Status = "claimed"
	StatusClosed  Status = "closed"
)

// Opposite returns the counterpart status for candidate retrieval:
// lost items are matched against found items and vice versa.
// Returns an empty status for non-active statuses.
func (s Status) Opposite() Status {
	switch s {
	case StatusLost:
		return StatusFound
	case StatusFound:
		return StatusLost
	default:
		return ""
	}
}

// Active reports whether the item participates in matching.
func (s Status) Active() bool {
	return s == StatusLost || s == StatusFound
}

// Item represents a lost or found item report.
//
// Lat and Lng are either both present or both absent; coordinates are
// privacy-jittered before persistence, and Geohash holds the coarse cell of
// the jittered point at a fixed precision.
type Item struct {
	ID     string `json:"id"`
	Status Status `json:"status"`

	// Structured attributes, all optional free-form strings.
	Category    *string `json:"category,omitempty"`
	Subcategory *string `json:"subcategory,omitempty"`
	Brand       *string `json:"brand,omitempty"`
	Model       *string `json:"model,omitempty"`
	Color       *string `json:"color,omitempty"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
	Geohash string   `json:"geohash,omitempty"`

	// OccurredAt is when the item was lost or found; the optional window
	// bounds capture uncertainty around it.
	OccurredAt  *time.Time `json:"occurred_at,omitempty"`
	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`

	OwnerID string `json:"owner_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasCoordinates reports whether the item carries a usable coordinate pair.
func (i *Item) HasCoordinates() bool {
	return i.Lat != nil && i.Lng != nil
}

// SearchText returns the text used for textual similarity scoring:
// the title and description joined with a space.
func (i *Item) SearchText() string {
	if i.Description == "" {
		return i.Title
	}
	return i.Title + " " + i.Description
}

// OccurredOrCreated returns the occurrence timestamp, falling back to the
// record creation time when occurrence is unknown.
func (i *Item) OccurredOrCreated() time.Time {
	if i.OccurredAt != nil {
		return *i.OccurredAt
	}
	return i.CreatedAt
}

// MediaAsset represents a photo attached to an item. The perceptual hash is
// computed asynchronously by an upstream pipeline and is nil until ready.
type MediaAsset struct {
	ID     string `json:"id"`
	ItemID string `json:"item_id"`

	// PerceptualHash is a hex-encoded 64-bit pHash of the image.
	PerceptualHash *string `json:"perceptual_hash,omitempty"`

	// SecondaryHashes holds optional additional fingerprints (dhash etc.).
	SecondaryHashes []string `json:"secondary_hashes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// FirstHash returns the first media asset hash in the given list, or empty
// string if no asset carries one. Matching compares the first hash on each
// side rather than the best pair across all combinations.
func FirstHash(assets []*MediaAsset) string {
	for _, a := range assets {
		if a.PerceptualHash != nil && *a.PerceptualHash != "" {
			return *a.PerceptualHash
		}
	}
	return ""
}
