// internal/deltastore/deltastore.go
package deltastore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"delivery-insights/internal/database"
	"delivery-insights/internal/model"
	"delivery-insights/internal/ticketkey"
)

// DefaultBatchSize keeps existence checks and COPY chunks well below the backend parameter limit.
const DefaultBatchSize = 500

// Store is the subset of database.Querier the delta store writes through.
type Store interface {
	GetExistingCommitShas(ctx context.Context, shas []string) ([]string, error)
	CreateCommits(ctx context.Context, arg []database.CreateCommitsParams) (int64, error)
	GetBranchesByRepo(ctx context.Context, repo string) ([]database.Branch, error)
	MarkBranchesInactive(ctx context.Context, repo string) (int64, error)
	UpsertBranch(ctx context.Context, arg database.UpsertBranchParams) (bool, error)
	GetInactiveBranches(ctx context.Context, repo string) ([]database.Branch, error)
}

// DeltaStore persists scan output idempotently: commits by sha, branches by (repo, name).
type DeltaStore struct {
	q         Store
	logger    *slog.Logger
	batchSize int
	now       func() time.Time
}

// New creates a DeltaStore. A non-positive batchSize falls back to DefaultBatchSize.
func New(q Store, logger *slog.Logger, batchSize int) *DeltaStore {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &DeltaStore{q: q, logger: logger, batchSize: batchSize, now: time.Now}
}

// CommitDelta is the outcome of StoreCommits.
type CommitDelta struct {
	NewCommits    []model.CommitRecord
	ExistingCount int
}

// StoreCommits inserts the commits whose sha is not yet stored, tagged with runID.
// Input commits are de-duplicated by sha first; the first occurrence wins.
// Stored rows are never updated, so calling it twice with the same input reports no new commits the second time.
func (d *DeltaStore) StoreCommits(ctx context.Context, commits []model.CommitRecord, runID uuid.UUID) (CommitDelta, error) {
	unique := dedupeCommits(commits)
	if len(unique) == 0 {
		return CommitDelta{}, nil
	}

	shas := make([]string, len(unique))
	for i, c := range unique {
		shas[i] = c.SHA
	}

	existing := make(map[string]struct{}, len(shas))
	for _, chunk := range database.Chunk(shas, d.batchSize) {
		found, err := d.q.GetExistingCommitShas(ctx, chunk)
		if err != nil {
			return CommitDelta{}, fmt.Errorf("check existing commits: %w", err)
		}
		for _, sha := range found {
			existing[sha] = struct{}{}
		}
	}

	var delta CommitDelta
	for _, c := range unique {
		if _, ok := existing[c.SHA]; ok {
			delta.ExistingCount++
			continue
		}
		delta.NewCommits = append(delta.NewCommits, c)
	}

	for _, chunk := range database.Chunk(delta.NewCommits, d.batchSize) {
		n, err := d.q.CreateCommits(ctx, prepareCommitBulkInsert(runID, chunk))
		if err != nil {
			return CommitDelta{}, fmt.Errorf("insert commits: %w", err)
		}
		d.logger.Debug("Inserted commit chunk", "count", n)
	}

	d.logger.Info("Stored commits", "new", len(delta.NewCommits), "existing", delta.ExistingCount)
	return delta, nil
}

// UpdateBranches runs the mark-sweep liveness pass for repo:
// mark every stored branch inactive, upsert every observed branch, then report what stayed inactive as gone.
// Gone branches keep their rows.
func (d *DeltaStore) UpdateBranches(ctx context.Context, repo string, branches []model.BranchRecord) (BranchDelta, error) {
	stored, err := d.q.GetBranchesByRepo(ctx, repo)
	if err != nil {
		return BranchDelta{}, fmt.Errorf("load branches: %w", err)
	}
	known := make(map[string]bool, len(stored))
	for _, b := range stored {
		known[b.Name] = b.IsActive
	}
	observed := make([]string, 0, len(branches))
	for _, b := range branches {
		observed = append(observed, b.Name)
	}
	delta := Reconcile(known, observed)

	if _, err := d.q.MarkBranchesInactive(ctx, repo); err != nil {
		return BranchDelta{}, fmt.Errorf("mark branches inactive: %w", err)
	}

	now := d.now()
	seen := make(map[string]struct{}, len(branches))
	for _, b := range branches {
		if _, dup := seen[b.Name]; dup {
			continue
		}
		seen[b.Name] = struct{}{}

		inserted, err := d.q.UpsertBranch(ctx, prepareBranchUpsert(repo, b, now))
		if err != nil {
			return BranchDelta{}, fmt.Errorf("upsert branch %q: %w", b.Name, err)
		}
		if _, existed := known[b.Name]; inserted == existed {
			d.logger.Warn("Branch upsert disagrees with reconciled state", "branch", b.Name, "inserted", inserted)
		}
	}

	inactive, err := d.q.GetInactiveBranches(ctx, repo)
	if err != nil {
		return BranchDelta{}, fmt.Errorf("load inactive branches: %w", err)
	}
	gone := make([]string, 0, len(inactive))
	for _, b := range inactive {
		gone = append(gone, b.Name)
	}
	slices.Sort(gone)
	if !slices.Equal(gone, delta.Gone) {
		d.logger.Warn("Stored inactive branches differ from reconciled gone set", "stored", gone, "reconciled", delta.Gone)
	}
	delta.Gone = gone

	d.logger.Info("Updated branches",
		"new", len(delta.New), "updated", len(delta.Updated), "revived", len(delta.Revived), "gone", len(delta.Gone))
	return delta, nil
}

func dedupeCommits(commits []model.CommitRecord) []model.CommitRecord {
	seen := make(map[string]struct{}, len(commits))
	out := make([]model.CommitRecord, 0, len(commits))
	for _, c := range commits {
		if _, ok := seen[c.SHA]; ok {
			continue
		}
		seen[c.SHA] = struct{}{}
		out = append(out, c)
	}
	return out
}

func prepareCommitBulkInsert(runID uuid.UUID, commits []model.CommitRecord) []database.CreateCommitsParams {
	params := make([]database.CreateCommitsParams, len(commits))
	for i, c := range commits {
		params[i] = database.CreateCommitsParams{
			Sha:          c.SHA,
			ShortSha:     c.ShortSHA,
			Repo:         c.Repo,
			Branch:       c.Branch,
			AuthorName:   c.AuthorName,
			AuthorEmail:  c.AuthorEmail,
			Message:      c.Message,
			CommittedAt:  c.Timestamp,
			FilesChanged: int32(c.FilesChanged),
			Insertions:   int32(c.Insertions),
			Deletions:    int32(c.Deletions),
			DiffSummary:  toText(c.DiffSummary),
			TicketKeys:   c.TicketKeys,
			RunID:        pgtype.UUID{Bytes: runID, Valid: true},
		}
	}
	return params
}

func prepareBranchUpsert(repo string, b model.BranchRecord, seenAt time.Time) database.UpsertBranchParams {
	params := database.UpsertBranchParams{
		Repo:                  repo,
		Name:                  b.Name,
		Remote:                b.Remote,
		SeenAt:                seenAt,
		LastCommitSha:         b.LastCommitSHA,
		LastCommitDate:        b.LastCommitDate,
		LastCommitAuthorEmail: b.LastCommitAuthorEmail,
		LastCommitMessage:     b.LastCommitMessage,
	}
	if key, ok := ticketkey.FromBranch(b.Name); ok {
		params.TicketKey = pgtype.Text{String: key, Valid: true}
	}
	return params
}

func toText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}
