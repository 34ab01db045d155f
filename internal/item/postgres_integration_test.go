//go:build integration

// Integration tests for the PostgreSQL item repository.
//
// These tests start a throwaway PostgreSQL container via testcontainers and
// require a running Docker daemon. Run with:
//
//	go test -tags=integration -v ./internal/item/...
package item

import (
	"context"
	"database/sql"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
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

// insertBareItem stores an item without coordinates, geohash or description.
func insertBareItem(t *testing.T, db *sql.DB, status Status, owner string) string {
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

// insertLocatedItem stores an item with coordinates and a geohash cell.
func insertLocatedItem(t *testing.T, db *sql.DB, status Status, owner, geohash string) string {
	t.Helper()
	id := uuid.New().String()
	_, err := db.Exec(
		`INSERT INTO items (id, status, title, owner_id, lat, lng, geohash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, status, "integration test item", owner, 6.9271, 79.8612, geohash)
	if err != nil {
		t.Fatalf("failed to insert item: %v", err)
	}
	return id
}

func TestPostgresGetByID_NullColumns(t *testing.T) {
	skipIfNoDocker(t)
	db := startPostgres(t)
	repo := NewPostgresRepository(db, nil)
	ctx := context.Background()

	id := insertBareItem(t, db, StatusLost, "alice")

	it, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if it.Description != "" || it.Geohash != "" {
		t.Errorf("expected empty description and geohash, got %q %q", it.Description, it.Geohash)
	}
	if it.HasCoordinates() {
		t.Error("expected no coordinates")
	}
}

// The geohash prefilter must never exclude items that have no coordinates.
func TestPostgresListCandidates_PrefilterKeepsUnlocated(t *testing.T) {
	skipIfNoDocker(t)
	db := startPostgres(t)
	repo := NewPostgresRepository(db, nil)
	ctx := context.Background()

	bareID := insertBareItem(t, db, StatusFound, "bob")
	nearID := insertLocatedItem(t, db, StatusFound, "carol", "tc0z3m")
	insertLocatedItem(t, db, StatusFound, "dave", "gcpvj0")

	candidates, err := repo.ListCandidates(ctx, CandidateFilter{
		Status:         StatusFound,
		ExcludeOwnerID: "alice",
		GeohashCells:   []string{"tc0z3m", "tc0z3j"},
		Limit:          10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := map[string]bool{}
	for _, c := range candidates {
		got[c.ID] = true
	}
	if !got[bareID] {
		t.Error("expected coordinateless item in candidate pool")
	}
	if !got[nearID] {
		t.Error("expected item in a matching cell in candidate pool")
	}
	if len(candidates) != 2 {
		t.Errorf("expected 2 candidates, got %d", len(candidates))
	}
}
