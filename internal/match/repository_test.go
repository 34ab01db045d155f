package match

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/onnwee/reclaim/internal/item"
)

func floatPtr(f float64) *float64 { return &f }

func TestPairKey_Canonical(t *testing.T) {
	if PairKey("a", "b") != PairKey("b", "a") {
		t.Error("expected both orderings to produce the same key")
	}
	if got := PairKey("b", "a"); got != "a:b" {
		t.Errorf("expected a:b, got %s", got)
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPending, StatusViewed, true},
		{StatusPending, StatusDismissed, true},
		{StatusPending, StatusClaimed, true},
		{StatusViewed, StatusDismissed, true},
		{StatusViewed, StatusClaimed, true},
		{StatusViewed, StatusPending, false},
		{StatusDismissed, StatusViewed, false},
		{StatusDismissed, StatusClaimed, false},
		{StatusClaimed, StatusDismissed, false},
		{StatusPending, StatusPending, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("CanTransitionTo(%s -> %s) = %t, want %t", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() || StatusViewed.Terminal() {
		t.Error("expected pending and viewed to be non-terminal")
	}
	if !StatusDismissed.Terminal() || !StatusClaimed.Terminal() {
		t.Error("expected dismissed and claimed to be terminal")
	}
}

// newTestRepos seeds a lost and found item pair and returns both repositories.
func newTestRepos(t *testing.T) (*item.InMemoryRepository, *InMemoryRepository) {
	t.Helper()
	items := item.NewInMemoryRepository()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	items.Put(&item.Item{ID: "lost-1", Status: item.StatusLost, Title: "phone", OwnerID: "alice", CreatedAt: base})
	items.Put(&item.Item{ID: "found-1", Status: item.StatusFound, Title: "phone", OwnerID: "bob", CreatedAt: base})
	return items, NewInMemoryRepository(items)
}

func TestUpsert_InsertThenRescore(t *testing.T) {
	_, repo := newTestRepos(t)

	first, err := repo.Upsert(context.Background(), &Match{
		LostItemID:  "lost-1",
		FoundItemID: "found-1",
		ScoreFinal:  0.8,
		Breakdown:   Breakdown{SignalCategory: 1.0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Inserted {
		t.Error("expected first upsert to insert")
	}

	second, err := repo.Upsert(context.Background(), &Match{
		LostItemID:  "lost-1",
		FoundItemID: "found-1",
		ScoreFinal:  0.9,
		DistanceKM:  floatPtr(0.5),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Inserted {
		t.Error("expected second upsert to rescore")
	}
	if second.ID != first.ID {
		t.Errorf("expected same row, got %s and %s", first.ID, second.ID)
	}

	stored, err := repo.GetByID(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.ScoreFinal != 0.9 {
		t.Errorf("expected rescored 0.9, got %f", stored.ScoreFinal)
	}
	if stored.DistanceKM == nil || *stored.DistanceKM != 0.5 {
		t.Errorf("expected updated distance, got %v", stored.DistanceKM)
	}
}

func TestUpsert_RescorePreservesStatus(t *testing.T) {
	_, repo := newTestRepos(t)

	first, err := repo.Upsert(context.Background(), &Match{
		LostItemID: "lost-1", FoundItemID: "found-1", ScoreFinal: 0.8,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.UpdateStatus(context.Background(), first.ID, StatusViewed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := repo.Upsert(context.Background(), &Match{
		LostItemID: "lost-1", FoundItemID: "found-1", ScoreFinal: 0.6,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, err := repo.GetByID(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Status != StatusViewed {
		t.Errorf("expected viewed status preserved, got %s", stored.Status)
	}
	if stored.ScoreFinal != 0.6 {
		t.Errorf("expected rescored 0.6, got %f", stored.ScoreFinal)
	}
}

func TestUpsert_BothOrientationsCollapse(t *testing.T) {
	_, repo := newTestRepos(t)

	first, err := repo.Upsert(context.Background(), &Match{
		LostItemID: "lost-1", FoundItemID: "found-1", ScoreFinal: 0.8,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The reverse matching run builds the same canonical orientation, so the
	// pair key collapses onto the existing row.
	second, err := repo.Upsert(context.Background(), &Match{
		LostItemID: "lost-1", FoundItemID: "found-1", ScoreFinal: 0.8,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Inserted || second.ID != first.ID {
		t.Errorf("expected collapse onto %s, got inserted=%t id=%s", first.ID, second.Inserted, second.ID)
	}
}

func TestListForItem(t *testing.T) {
	items, repo := newTestRepos(t)
	items.Put(&item.Item{ID: "found-2", Status: item.StatusFound, Title: "phone", OwnerID: "carol"})

	low, err := repo.Upsert(context.Background(), &Match{
		LostItemID: "lost-1", FoundItemID: "found-1", ScoreFinal: 0.4,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.Upsert(context.Background(), &Match{
		LostItemID: "lost-1", FoundItemID: "found-2", ScoreFinal: 0.9,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := repo.ListForItem(context.Background(), "lost-1", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(result))
	}
	if result[0].ScoreFinal != 0.9 {
		t.Errorf("expected highest score first, got %f", result[0].ScoreFinal)
	}

	// A found-side query sees the same rows.
	result, err = repo.ListForItem(context.Background(), "found-1", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 match for found-1, got %d", len(result))
	}

	// Dismiss and verify default filtering.
	if _, err := repo.UpdateStatus(context.Background(), low.ID, StatusDismissed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err = repo.ListForItem(context.Background(), "lost-1", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 {
		t.Errorf("expected dismissed match hidden, got %d", len(result))
	}
	result, err = repo.ListForItem(context.Background(), "lost-1", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 2 {
		t.Errorf("expected dismissed match with include_dismissed, got %d", len(result))
	}
}

func TestUpdateStatus_ForwardOnly(t *testing.T) {
	_, repo := newTestRepos(t)

	first, err := repo.Upsert(context.Background(), &Match{
		LostItemID: "lost-1", FoundItemID: "found-1", ScoreFinal: 0.8,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := repo.UpdateStatus(context.Background(), first.ID, StatusViewed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.UpdateStatus(context.Background(), first.ID, StatusPending); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition going backward, got %v", err)
	}
	if _, err := repo.UpdateStatus(context.Background(), first.ID, StatusDismissed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.UpdateStatus(context.Background(), first.ID, StatusClaimed); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition from terminal status, got %v", err)
	}

	if _, err := repo.UpdateStatus(context.Background(), "nope", StatusViewed); !errors.Is(err, ErrMatchNotFound) {
		t.Errorf("expected ErrMatchNotFound, got %v", err)
	}
}

func TestApproveClaim(t *testing.T) {
	items, repo := newTestRepos(t)

	first, err := repo.Upsert(context.Background(), &Match{
		LostItemID: "lost-1", FoundItemID: "found-1", ScoreFinal: 0.8,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := repo.ApproveClaim(context.Background(), first.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, err := repo.GetByID(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Status != StatusClaimed {
		t.Errorf("expected claimed match, got %s", stored.Status)
	}

	for _, id := range []string{"lost-1", "found-1"} {
		it, err := items.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if it.Status != item.StatusClaimed {
			t.Errorf("expected item %s claimed, got %s", id, it.Status)
		}
	}

	// A second approval is an invalid transition from claimed.
	if err := repo.ApproveClaim(context.Background(), first.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition on repeat claim, got %v", err)
	}

	if err := repo.ApproveClaim(context.Background(), "nope"); !errors.Is(err, ErrMatchNotFound) {
		t.Errorf("expected ErrMatchNotFound, got %v", err)
	}
}

func TestDeleteOlderThan_KeepsClaimed(t *testing.T) {
	items, repo := newTestRepos(t)
	items.Put(&item.Item{ID: "found-2", Status: item.StatusFound, Title: "phone", OwnerID: "carol"})

	old := time.Now().Add(-96 * time.Hour)
	repo.SetNowFunc(func() time.Time { return old })

	stale, err := repo.Upsert(context.Background(), &Match{
		LostItemID: "lost-1", FoundItemID: "found-1", ScoreFinal: 0.8,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	claimed, err := repo.Upsert(context.Background(), &Match{
		LostItemID: "lost-1", FoundItemID: "found-2", ScoreFinal: 0.9,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.ApproveClaim(context.Background(), claimed.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	repo.SetNowFunc(time.Now)

	deleted, err := repo.DeleteOlderThan(context.Background(), time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}

	if _, err := repo.GetByID(context.Background(), stale.ID); !errors.Is(err, ErrMatchNotFound) {
		t.Errorf("expected stale match gone, got %v", err)
	}
	if _, err := repo.GetByID(context.Background(), claimed.ID); err != nil {
		t.Errorf("expected claimed match kept, got %v", err)
	}
}
