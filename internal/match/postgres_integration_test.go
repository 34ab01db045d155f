//go:build integration

// Integration tests for the PostgreSQL match repository.
//
// These tests start a throwaway PostgreSQL container via testcontainers and
// require a running Docker daemon. Run with:
//
//	go test -tags=integration -v ./internal/match/...
package match

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/onnwee/reclaim/internal/item"
)

// skipIfNoDocker skips the test when no Docker daemon is reachable.
func skipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

// startPostgres runs a PostgreSQL container with the schema applied and
// returns an open connection.
func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("reclaim"),
		tcpostgres.WithUsername("user"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "000001_initial_schema.up.sql"))
	if err != nil {
		t.Fatalf("failed to read schema: %v", err)
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	return db
}

// insertItem stores an item row and returns its id.
func insertItem(t *testing.T, db *sql.DB, status item.Status, owner string) string {
	t.Helper()
	id := uuid.New().String()
	_, err := db.Exec(
		`INSERT INTO items (id, status, title, owner_id) VALUES ($1, $2, $3, $4)`,
		id, status, "integration test item", owner)
	if err != nil {
		t.Fatalf("failed to insert item: %v", err)
	}
	return id
}

func TestPostgresUpsert_InsertRescorePreservesStatus(t *testing.T) {
	skipIfNoDocker(t)
	db := startPostgres(t)
	repo := NewPostgresRepository(db, nil)
	ctx := context.Background()

	lostID := insertItem(t, db, item.StatusLost, "alice")
	foundID := insertItem(t, db, item.StatusFound, "bob")

	first, err := repo.Upsert(ctx, &Match{
		LostItemID:  lostID,
		FoundItemID: foundID,
		ScoreFinal:  0.8,
		Breakdown:   Breakdown{SignalCategory: 1.0, SignalDistance: 0.9},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Inserted {
		t.Error("expected first upsert to insert")
	}

	if _, err := repo.UpdateStatus(ctx, first.ID, StatusViewed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := repo.Upsert(ctx, &Match{
		LostItemID:  lostID,
		FoundItemID: foundID,
		ScoreFinal:  0.7,
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

	stored, err := repo.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Status != StatusViewed {
		t.Errorf("expected viewed status preserved, got %s", stored.Status)
	}
	if stored.ScoreFinal != 0.7 {
		t.Errorf("expected rescored 0.7, got %f", stored.ScoreFinal)
	}
	// Rescore replaces the stored breakdown with the new one.
	if len(stored.Breakdown) != 0 {
		t.Errorf("expected empty breakdown after rescore, got %v", stored.Breakdown)
	}
}

// TestPostgresUpsert_ConcurrentPairCollapses drives concurrent upserts of the
// same pair through the UNIQUE (pair_key) constraint and verifies exactly one
// row survives.
func TestPostgresUpsert_ConcurrentPairCollapses(t *testing.T) {
	skipIfNoDocker(t)
	db := startPostgres(t)
	repo := NewPostgresRepository(db, nil)
	ctx := context.Background()

	lostID := insertItem(t, db, item.StatusLost, "alice")
	foundID := insertItem(t, db, item.StatusFound, "bob")

	const workers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(score float64) {
			defer wg.Done()
			_, err := repo.Upsert(ctx, &Match{
				LostItemID:  lostID,
				FoundItemID: foundID,
				ScoreFinal:  score,
			})
			errCh <- err
		}(0.5 + float64(i)*0.01)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("concurrent upsert failed: %v", err)
		}
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM matches`).Scan(&count); err != nil {
		t.Fatalf("failed to count matches: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly 1 match row, got %d", count)
	}
}

func TestPostgresApproveClaim(t *testing.T) {
	skipIfNoDocker(t)
	db := startPostgres(t)
	repo := NewPostgresRepository(db, nil)
	ctx := context.Background()

	lostID := insertItem(t, db, item.StatusLost, "alice")
	foundID := insertItem(t, db, item.StatusFound, "bob")

	result, err := repo.Upsert(ctx, &Match{
		LostItemID:  lostID,
		FoundItemID: foundID,
		ScoreFinal:  0.9,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := repo.ApproveClaim(ctx, result.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, err := repo.GetByID(ctx, result.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Status != StatusClaimed {
		t.Errorf("expected claimed match, got %s", stored.Status)
	}

	for _, id := range []string{lostID, foundID} {
		var status string
		if err := db.QueryRow(`SELECT status FROM items WHERE id = $1`, id).Scan(&status); err != nil {
			t.Fatalf("failed to read item status: %v", err)
		}
		if status != string(item.StatusClaimed) {
			t.Errorf("expected item %s claimed, got %s", id, status)
		}
	}

	if err := repo.ApproveClaim(ctx, result.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition on repeat claim, got %v", err)
	}
}

func TestPostgresDeleteOlderThan_KeepsClaimed(t *testing.T) {
	skipIfNoDocker(t)
	db := startPostgres(t)
	repo := NewPostgresRepository(db, nil)
	ctx := context.Background()

	lostID := insertItem(t, db, item.StatusLost, "alice")
	foundID := insertItem(t, db, item.StatusFound, "bob")
	otherFoundID := insertItem(t, db, item.StatusFound, "carol")

	stale, err := repo.Upsert(ctx, &Match{LostItemID: lostID, FoundItemID: foundID, ScoreFinal: 0.6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	claimed, err := repo.Upsert(ctx, &Match{LostItemID: lostID, FoundItemID: otherFoundID, ScoreFinal: 0.9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.ApproveClaim(ctx, claimed.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Backdate both rows past the cutoff.
	if _, err := db.Exec(`UPDATE matches SET updated_at = NOW() - INTERVAL '10 days'`); err != nil {
		t.Fatalf("failed to backdate matches: %v", err)
	}

	deleted, err := repo.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}

	if _, err := repo.GetByID(ctx, stale.ID); !errors.Is(err, ErrMatchNotFound) {
		t.Errorf("expected stale match gone, got %v", err)
	}
	if _, err := repo.GetByID(ctx, claimed.ID); err != nil {
		t.Errorf("expected claimed match kept, got %v", err)
	}
}
