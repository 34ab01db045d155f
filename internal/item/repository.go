package item

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrItemNotFound is returned when an item id does not exist.
var ErrItemNotFound = errors.New("item not found")

// CandidateFilter bounds the candidate pool query for a matching run.
type CandidateFilter struct {
	// Status selects candidates of this status (the opposite of the base item).
	Status Status

	// ExcludeOwnerID drops the base owner's own reports from the pool.
	ExcludeOwnerID string

	// GeohashCells optionally prefilters candidates to the given cells.
	// Items without coordinates are always included regardless of this
	// filter; geography bounds the pool, it never excludes unlocated items.
	GeohashCells []string

	// Limit caps the pool size. Zero means no cap.
	Limit int
}

// Repository defines read-side access to items and media assets.
// Item CRUD itself is owned by an external service; the matching engine
// only reads items and advances status on claim approval.
type Repository interface {
	// GetByID retrieves an item by id. Returns ErrItemNotFound if absent.
	GetByID(ctx context.Context, id string) (*Item, error)

	// ListCandidates returns up to filter.Limit items matching the filter,
	// most recent first. An empty pool returns an empty slice, not an error.
	ListCandidates(ctx context.Context, filter CandidateFilter) ([]*Item, error)

	// ListActive returns all lost and found items, most recent first.
	// Used by batch reprocessing.
	ListActive(ctx context.Context) ([]*Item, error)

	// MediaForItem returns the media assets attached to an item, oldest first.
	MediaForItem(ctx context.Context, itemID string) ([]*MediaAsset, error)

	// SetStatus updates an item's status. Used by the claim-approval hook.
	SetStatus(ctx context.Context, id string, status Status) error
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Item
	media map[string][]*MediaAsset
}

// NewInMemoryRepository creates a new in-memory item repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		items: make(map[string]*Item),
		media: make(map[string][]*MediaAsset),
	}
}

// Put stores or replaces an item. Test seeding helper.
func (r *InMemoryRepository) Put(it *Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *it
	r.items[cp.ID] = &cp
}

// PutMedia attaches a media asset to its item. Test seeding helper.
func (r *InMemoryRepository) PutMedia(asset *MediaAsset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *asset
	r.media[cp.ItemID] = append(r.media[cp.ItemID], &cp)
}

// GetByID retrieves an item by id.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	it, ok := r.items[id]
	if !ok {
		return nil, ErrItemNotFound
	}
	cp := *it
	return &cp, nil
}

// ListCandidates returns items matching the filter, most recent first.
func (r *InMemoryRepository) ListCandidates(ctx context.Context, filter CandidateFilter) ([]*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cells := make(map[string]bool, len(filter.GeohashCells))
	for _, c := range filter.GeohashCells {
		cells[strings.ToLower(c)] = true
	}

	var result []*Item
	for _, it := range r.items {
		if it.Status != filter.Status {
			continue
		}
		if filter.ExcludeOwnerID != "" && it.OwnerID == filter.ExcludeOwnerID {
			continue
		}
		if len(cells) > 0 && it.HasCoordinates() && it.Geohash != "" && !cells[it.Geohash] {
			continue
		}
		cp := *it
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	if result == nil {
		result = []*Item{}
	}
	return result, nil
}

// ListActive returns all lost and found items, most recent first.
func (r *InMemoryRepository) ListActive(ctx context.Context) ([]*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Item
	for _, it := range r.items {
		if !it.Status.Active() {
			continue
		}
		cp := *it
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if result == nil {
		result = []*Item{}
	}
	return result, nil
}

// MediaForItem returns the media assets attached to an item, oldest first.
func (r *InMemoryRepository) MediaForItem(ctx context.Context, itemID string) ([]*MediaAsset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	assets := r.media[itemID]
	result := make([]*MediaAsset, 0, len(assets))
	for _, a := range assets {
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// SetStatus updates an item's status.
func (r *InMemoryRepository) SetStatus(ctx context.Context, id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	it, ok := r.items[id]
	if !ok {
		return ErrItemNotFound
	}
	it.Status = status
	it.UpdatedAt = time.Now()
	return nil
}
