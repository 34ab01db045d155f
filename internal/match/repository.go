package match

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/reclaim/internal/item"
)

// Common errors for match operations.
var (
	// ErrMatchNotFound is returned when a match id does not exist.
	ErrMatchNotFound = errors.New("match not found")

	// ErrInvalidTransition is returned when a status change would move a
	// match backward or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid match status transition")
)

// Repository defines persistence for match records.
type Repository interface {
	// Upsert inserts a new match for the pair or rescores the existing one.
	// Score, breakdown, distance and time-diff fields are overwritten on
	// rescore; status is never touched once set. Two concurrent upserts for
	// the two sides of the same pair must collapse to a single row.
	Upsert(ctx context.Context, m *Match) (*UpsertResult, error)

	// GetByID retrieves a match by id. Returns ErrMatchNotFound if absent.
	GetByID(ctx context.Context, id string) (*Match, error)

	// ListForItem returns matches referencing the item on either side,
	// highest score first. Dismissed matches are excluded unless
	// includeDismissed is set.
	ListForItem(ctx context.Context, itemID string, includeDismissed bool) ([]*Match, error)

	// UpdateStatus advances a match's status. Returns ErrInvalidTransition
	// for backward or terminal-state moves and ErrMatchNotFound if absent.
	UpdateStatus(ctx context.Context, id string, next Status) (*Match, error)

	// ApproveClaim transitions the match to claimed and both of its items
	// to claimed status in a single transaction. This is the hook the
	// external claim workflow calls on claim approval.
	ApproveClaim(ctx context.Context, matchID string) error

	// DeleteOlderThan removes non-claimed matches whose last update is
	// older than the cutoff. Returns the number of deleted rows.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development.
type InMemoryRepository struct {
	mu      sync.Mutex
	byID    map[string]*Match
	byPair  map[string]string // pair key -> match id
	items   item.Repository
	nowFunc func() time.Time
}

// NewInMemoryRepository creates a new in-memory match repository.
// The item repository is used by ApproveClaim to advance item statuses.
func NewInMemoryRepository(items item.Repository) *InMemoryRepository {
	return &InMemoryRepository{
		byID:    make(map[string]*Match),
		byPair:  make(map[string]string),
		items:   items,
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the clock. Test helper.
func (r *InMemoryRepository) SetNowFunc(f func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nowFunc = f
}

// Upsert inserts a new match for the pair or rescores the existing one.
func (r *InMemoryRepository) Upsert(ctx context.Context, m *Match) (*UpsertResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	key := PairKey(m.LostItemID, m.FoundItemID)

	if id, ok := r.byPair[key]; ok {
		existing := r.byID[id]
		existing.ScoreFinal = m.ScoreFinal
		existing.Breakdown = cloneBreakdown(m.Breakdown)
		existing.DistanceKM = cloneFloat(m.DistanceKM)
		existing.TimeDiffHours = cloneFloat(m.TimeDiffHours)
		existing.UpdatedAt = now
		// Status intentionally untouched: rescoring never regresses it.
		return &UpsertResult{Inserted: false, ID: id}, nil
	}

	stored := &Match{
		ID:            uuid.New().String(),
		LostItemID:    m.LostItemID,
		FoundItemID:   m.FoundItemID,
		ScoreFinal:    m.ScoreFinal,
		Breakdown:     cloneBreakdown(m.Breakdown),
		DistanceKM:    cloneFloat(m.DistanceKM),
		TimeDiffHours: cloneFloat(m.TimeDiffHours),
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.byID[stored.ID] = stored
	r.byPair[key] = stored.ID
	return &UpsertResult{Inserted: true, ID: stored.ID}, nil
}

// GetByID retrieves a match by id.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return nil, ErrMatchNotFound
	}
	cp := cloneMatch(m)
	return cp, nil
}

// ListForItem returns matches referencing the item on either side,
// highest score first with newer matches breaking ties.
func (r *InMemoryRepository) ListForItem(ctx context.Context, itemID string, includeDismissed bool) ([]*Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := []*Match{}
	for _, m := range r.byID {
		if m.LostItemID != itemID && m.FoundItemID != itemID {
			continue
		}
		if m.Status == StatusDismissed && !includeDismissed {
			continue
		}
		result = append(result, cloneMatch(m))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ScoreFinal != result[j].ScoreFinal {
			return result[i].ScoreFinal > result[j].ScoreFinal
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// UpdateStatus advances a match's status, forward transitions only.
func (r *InMemoryRepository) UpdateStatus(ctx context.Context, id string, next Status) (*Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return nil, ErrMatchNotFound
	}
	if !next.Valid() || !m.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.Status, next)
	}
	m.Status = next
	m.UpdatedAt = r.nowFunc()
	return cloneMatch(m), nil
}

// ApproveClaim transitions the match to claimed and both items to claimed.
func (r *InMemoryRepository) ApproveClaim(ctx context.Context, matchID string) error {
	r.mu.Lock()
	m, ok := r.byID[matchID]
	if !ok {
		r.mu.Unlock()
		return ErrMatchNotFound
	}
	if !m.Status.CanTransitionTo(StatusClaimed) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.Status, StatusClaimed)
	}
	m.Status = StatusClaimed
	m.UpdatedAt = r.nowFunc()
	lostID, foundID := m.LostItemID, m.FoundItemID
	r.mu.Unlock()

	if err := r.items.SetStatus(ctx, lostID, item.StatusClaimed); err != nil {
		return fmt.Errorf("failed to claim lost item: %w", err)
	}
	if err := r.items.SetStatus(ctx, foundID, item.StatusClaimed); err != nil {
		return fmt.Errorf("failed to claim found item: %w", err)
	}
	return nil
}

// DeleteOlderThan removes non-claimed matches last updated before cutoff.
func (r *InMemoryRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, m := range r.byID {
		if m.Status == StatusClaimed {
			continue
		}
		if m.UpdatedAt.Before(cutoff) {
			delete(r.byID, id)
			delete(r.byPair, PairKey(m.LostItemID, m.FoundItemID))
			deleted++
		}
	}
	return deleted, nil
}

func cloneMatch(m *Match) *Match {
	cp := *m
	cp.Breakdown = cloneBreakdown(m.Breakdown)
	cp.DistanceKM = cloneFloat(m.DistanceKM)
	cp.TimeDiffHours = cloneFloat(m.TimeDiffHours)
	return &cp
}

func cloneBreakdown(b Breakdown) Breakdown {
	if b == nil {
		return nil
	}
	cp := make(Breakdown, len(b))
	for k, v := range b {
		cp[k] = v
	}
	return cp
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
