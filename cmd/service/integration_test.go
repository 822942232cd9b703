//go:build integration

// cmd/service/integration_test.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"delivery-insights/internal/database"
	"delivery-insights/internal/deltastore"
	custom_errors "delivery-insights/internal/errors"
	"delivery-insights/internal/github"
	"delivery-insights/internal/model"
	"delivery-insights/internal/summarizer"
	"delivery-insights/internal/summary"
	"delivery-insights/internal/syncer"
)

func setupTestDatabase(ctx context.Context, t *testing.T) (*pgxpool.Pool, func()) {
	// Start a postgres container
	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	// Get the connection string
	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Run migrations
	m, err := migrate.New("file://../../migrations", connStr)
	require.NoError(t, err)
	err = m.Up()
	require.NoError(t, err)

	// Create a connection pool
	dbpool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	// Teardown function to be called by the test
	teardown := func() {
		dbpool.Close()
		err := pgContainer.Terminate(ctx)
		require.NoError(t, err)
	}

	return dbpool, teardown
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestDeltaStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	dbpool, teardown := setupTestDatabase(ctx, t)
	defer teardown()

	ds := deltastore.New(database.New(dbpool), testLogger(), 2)
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	commits := []model.CommitRecord{
		{SHA: "a1", ShortSHA: "a1", Repo: "acme/shop", Branch: "main", AuthorEmail: "ann@acme.io", Message: "SHOP-1 cart", Timestamp: ts, TicketKeys: []string{"SHOP-1"}},
		{SHA: "a2", ShortSHA: "a2", Repo: "acme/shop", Branch: "main", AuthorEmail: "ann@acme.io", Message: "tidy", Timestamp: ts.Add(time.Hour)},
		{SHA: "a3", ShortSHA: "a3", Repo: "acme/shop", Branch: "main", AuthorEmail: "bob@acme.io", Message: "tests", Timestamp: ts.Add(2 * time.Hour)},
	}

	t.Run("storing the same commits twice is idempotent", func(t *testing.T) {
		first, err := ds.StoreCommits(ctx, commits, uuid.New())
		require.NoError(t, err)
		assert.Len(t, first.NewCommits, 3)

		second, err := ds.StoreCommits(ctx, commits, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, second.NewCommits)
		assert.Equal(t, 3, second.ExistingCount)
	})

	t.Run("branch liveness follows mark and sweep", func(t *testing.T) {
		branch := func(name string) model.BranchRecord {
			return model.BranchRecord{Name: name, LastCommitSHA: "a1", LastCommitDate: ts}
		}

		d, err := ds.UpdateBranches(ctx, "acme/shop", []model.BranchRecord{branch("main"), branch("feature/SHOP-1-cart")})
		require.NoError(t, err)
		assert.Equal(t, []string{"feature/SHOP-1-cart", "main"}, d.New)

		d, err = ds.UpdateBranches(ctx, "acme/shop", []model.BranchRecord{branch("main")})
		require.NoError(t, err)
		assert.Equal(t, []string{"feature/SHOP-1-cart"}, d.Gone)

		d, err = ds.UpdateBranches(ctx, "acme/shop", []model.BranchRecord{branch("main"), branch("feature/SHOP-1-cart")})
		require.NoError(t, err)
		assert.Equal(t, []string{"feature/SHOP-1-cart"}, d.Revived)
		assert.Empty(t, d.Gone)

		stored, err := database.New(dbpool).GetBranchesByRepo(ctx, "acme/shop")
		require.NoError(t, err)
		require.Len(t, stored, 2)
		for _, b := range stored {
			if b.Name == "feature/SHOP-1-cart" {
				assert.Equal(t, "SHOP-1", b.TicketKey.String)
			}
		}
	})
}

func TestWriterLock_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	dbpool, teardown := setupTestDatabase(ctx, t)
	defer teardown()

	release, err := database.AcquireWriterLock(ctx, dbpool)
	require.NoError(t, err)

	_, err = database.AcquireWriterLock(ctx, dbpool)
	assert.True(t, errors.Is(err, custom_errors.ErrRunLocked))

	release()
	release, err = database.AcquireWriterLock(ctx, dbpool)
	require.NoError(t, err)
	release()
}

const (
	branchesJSON = `[{"name": "main", "commit": {"sha": "m1"}}, {"name": "feature/SHOP-7-checkout", "commit": {"sha": "f1"}}]`
	mainJSON     = `[{"sha": "m1", "commit": {"message": "bump deps",
		"author": {"name": "Bob", "email": "bob@acme.io", "date": "2024-05-01T09:00:00Z"}}}]`
	featureJSON = `[{"sha": "f1", "commit": {"message": "SHOP-7 add checkout",
		"author": {"name": "Ann", "email": "ann@acme.io", "date": "2024-05-02T09:00:00Z"}}},
		{"sha": "m1", "commit": {"message": "bump deps",
		"author": {"name": "Bob", "email": "bob@acme.io", "date": "2024-05-01T09:00:00Z"}}}]`
	completionJSON = `{"id": "chatcmpl-1", "object": "chat.completion", "model": "gpt-4o-mini",
		"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Checkout flow added."}}]}`
)

func TestSyncer_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	dbpool, teardown := setupTestDatabase(ctx, t)
	defer teardown()

	// Setup a mock GitHub API server
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/shop", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name": "shop", "default_branch": "main"}`))
	})
	mux.HandleFunc("GET /repos/acme/shop/branches", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(branchesJSON))
	})
	mux.HandleFunc("GET /repos/acme/shop/commits", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sha") == "main" {
			w.Write([]byte(mainJSON))
			return
		}
		w.Write([]byte(featureJSON))
	})
	mux.HandleFunc("GET /repos/acme/shop/pulls", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	ghServer := httptest.NewServer(mux)
	defer ghServer.Close()

	completions := 0
	aiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		completions++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionJSON))
	}))
	defer aiServer.Close()

	logger := testLogger()
	ghClient := github.NewClient("", logger, github.Options{BaseURL: ghServer.URL})
	ai := summarizer.NewOpenAI("test-key", aiServer.URL+"/v1", "", logger)

	appSyncer, err := syncer.NewSyncer(dbpool, ghClient, nil, ai, summary.DefaultStaleness, logger, syncer.Settings{
		Repos:        []string{"acme/shop"},
		Interval:     time.Hour,
		DefaultSince: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ScanLookback: 24 * time.Hour,
		BatchSize:    100,
		BaseBranch:   "main",
	})
	require.NoError(t, err)

	// --- ACT ---
	first, err := appSyncer.RunOnce(ctx)
	require.NoError(t, err)
	second, err := appSyncer.RunOnce(ctx)
	require.NoError(t, err)

	// --- ASSERT ---
	require.Len(t, first.Repos, 1)
	assert.Equal(t, 2, first.Repos[0].NewCommits)
	assert.Equal(t, 1, first.Summaries[summary.ModeRegenerate])
	assert.Equal(t, 1, first.Orphans)

	assert.Equal(t, 0, second.Repos[0].NewCommits)
	assert.Equal(t, 1, second.Summaries[summary.ModeReuse])
	assert.Equal(t, 1, completions, "an unchanged ticket must not be summarized again")

	// Query the database directly to verify the chain.
	q := database.New(dbpool)
	chain, err := q.GetTicketSummaryChain(ctx, database.GetTicketSummaryChainParams{JiraKey: "SHOP-7", Repo: "acme/shop", Limit: 10})
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "reuse", chain[0].Generation)
	assert.Equal(t, chain[1].ID, chain[0].PreviousID.Int64)
	assert.Equal(t, "Checkout flow added.", chain[0].SummaryText)
	assert.Equal(t, []string{"f1"}, summary.DecodeSHAs(chain[0].CommitShas))

	commits, err := q.GetCommitsByRepo(ctx, database.GetCommitsByRepoParams{Repo: "acme/shop", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, commits, 2)
	assert.Equal(t, "f1", commits[0].Sha) // Order is by date DESC
}
