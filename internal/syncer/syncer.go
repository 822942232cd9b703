// internal/syncer/syncer.go
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"delivery-insights/internal/database"
	"delivery-insights/internal/deltastore"
	custom_errors "delivery-insights/internal/errors"
	"delivery-insights/internal/github"
	"delivery-insights/internal/gitrepo"
	"delivery-insights/internal/model"
	"delivery-insights/internal/review"
	"delivery-insights/internal/summary"
)

// SourceControl is the scan source and code-review provider.
type SourceControl interface {
	ScanRepository(ctx context.Context, owner, name string, since time.Time) (model.ScanResult, error)
	ListPullRequests(ctx context.Context, owner, name string, since time.Time) ([]model.PullRequest, error)
	PullRequestActivity(ctx context.Context, owner, name string, pr model.PullRequest) ([]review.Event, error)
}

// TicketTracker is the issue tracker.
type TicketTracker interface {
	GetTicket(ctx context.Context, key string) (*model.Ticket, error)
}

// RepoIdentifier holds the owner and name of a repository.
type RepoIdentifier struct {
	Owner string
	Name  string
}

func (id RepoIdentifier) String() string {
	return id.Owner + "/" + id.Name
}

// Settings are the tunables of a sync cycle.
type Settings struct {
	Repos           []string
	ExcludedRepos   []string
	Interval        time.Duration
	DefaultSince    time.Time
	ScanLookback    time.Duration
	TicketStaleness time.Duration
	PRStaleness     time.Duration
	BatchSize       int
	// CheckoutRoot holds local working copies at <root>/<owner>/<name>. Empty disables diffs.
	CheckoutRoot string
	BaseBranch   string
}

// Syncer orchestrates the fetching, correlating and summarizing of delivery data.
// Repositories are processed one at a time and a cycle only runs while holding the writer lock.
type Syncer struct {
	dbpool   *pgxpool.Pool
	queries  database.Querier
	scm      SourceControl
	tracker  TicketTracker
	chain    *summary.Chain
	logger   *slog.Logger
	repos    []RepoIdentifier
	scope    database.Scope
	settings Settings

	// inTx runs fn inside a database transaction.
	inTx func(ctx context.Context, fn func(q deltastore.Store) error) error
	// lock takes the single-writer lock for one cycle.
	lock      func(ctx context.Context) (func(), error)
	checkouts map[string]*gitrepo.Repo
	now       func() time.Time
}

// NewSyncer creates a new Syncer instance. tracker may be nil when no issue tracker is configured.
func NewSyncer(dbpool *pgxpool.Pool, scm SourceControl, tracker TicketTracker, summarizer summary.Summarizer,
	summaryStaleness time.Duration, logger *slog.Logger, settings Settings) (*Syncer, error) {
	parsedRepos, err := parseRepoIdentifiers(settings.Repos)
	if err != nil {
		return nil, err
	}

	scope := database.Scope{ExcludedRepos: settings.ExcludedRepos}
	queries := database.New(dbpool).WithScope(scope)

	s := &Syncer{
		dbpool:    dbpool,
		queries:   queries,
		scm:       scm,
		tracker:   tracker,
		chain:     summary.NewChain(queries, summarizer, logger, summaryStaleness),
		logger:    logger,
		repos:     parsedRepos,
		scope:     scope,
		settings:  settings,
		checkouts: make(map[string]*gitrepo.Repo),
		now:       time.Now,
	}
	s.inTx = s.poolTx
	s.lock = func(ctx context.Context) (func(), error) { return database.AcquireWriterLock(ctx, dbpool) }
	return s, nil
}

// Start begins the continuous synchronization process.
func (s *Syncer) Start(ctx context.Context) {
	s.logger.Info("Starting syncer", "interval", s.settings.Interval.String(), "repos", len(s.repos))
	ticker := time.NewTicker(s.settings.Interval)
	defer ticker.Stop()

	s.runSyncCycle(ctx) // Initial sync

	for {
		select {
		case <-ticker.C:
			s.runSyncCycle(ctx)
		case <-ctx.Done():
			s.logger.Info("Syncer shutting down", "reason", ctx.Err())
			return
		}
	}
}

func (s *Syncer) runSyncCycle(ctx context.Context) {
	s.logger.Info("Starting new sync cycle")
	report, err := s.RunOnce(ctx)
	switch {
	case errors.Is(err, custom_errors.ErrRunLocked):
		s.logger.Warn("Skipping sync cycle, another run holds the writer lock")
	case err != nil && !errors.Is(err, context.Canceled):
		s.logger.Error("Sync cycle finished with an error", "error", err)
	case err == nil:
		s.logger.Info("Sync cycle finished",
			"repos", len(report.Repos), "summaries", report.Summaries, "orphans", report.Orphans, "failures", len(report.Failures))
	}
}

// RunOnce performs one full cycle: scan and store every repository, sync its pull requests,
// then correlate all scanned commits and advance the ticket summary chains.
func (s *Syncer) RunOnce(ctx context.Context) (*Report, error) {
	release, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	report := newReport()
	var scans []model.ScanResult
	for _, id := range s.repos {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if s.scope.Excludes(id.String()) {
			s.logger.Info("Repository is out of scope, skipping", "repo", id.String())
			continue
		}

		rr := &RepoReport{Repo: id.String(), RunID: uuid.New()}
		report.Repos = append(report.Repos, rr)
		scan, err := s.syncRepo(ctx, s.queries, id, rr)
		if err != nil {
			rr.Err = err
			s.logger.Error("Failed to sync repository", "owner", id.Owner, "repo", id.Name, "error", err)
			continue
		}
		scans = append(scans, scan)
	}

	s.summarizeTickets(ctx, s.queries, scans, report)

	for _, rr := range report.Repos {
		if err := s.queries.FinishScanRun(ctx, database.FinishScanRunParams{
			ID:           pgtype.UUID{Bytes: rr.RunID, Valid: true},
			NewCommits:   int32(rr.NewCommits),
			GoneBranches: int32(len(rr.GoneBranches)),
			Failures:     int32(rr.failureCount()),
		}); err != nil {
			s.logger.Error("Failed to finish scan run", "repo", rr.Repo, "run_id", rr.RunID, "error", err)
		}
	}
	return report, nil
}

// syncRepo handles the scan, storage and pull request pass for a single repository.
func (s *Syncer) syncRepo(ctx context.Context, q database.Querier, id RepoIdentifier, rr *RepoReport) (model.ScanResult, error) {
	logger := s.logger.With("owner", id.Owner, "repo", id.Name, "run_id", rr.RunID)
	logger.Info("Syncing repository")

	if err := q.CreateScanRun(ctx, database.CreateScanRunParams{
		ID:   pgtype.UUID{Bytes: rr.RunID, Valid: true},
		Repo: id.String(),
	}); err != nil {
		return model.ScanResult{}, fmt.Errorf("create scan run: %w", err)
	}

	since, err := s.getSinceTimestamp(ctx, q, id.String())
	if err != nil {
		return model.ScanResult{}, err
	}
	logger.Info("Scanning commits since", "timestamp", since.Format(time.RFC3339))

	scan, err := s.scm.ScanRepository(ctx, id.Owner, id.Name, since)
	if err != nil {
		return model.ScanResult{}, err
	}

	err = s.inTx(ctx, func(tq deltastore.Store) error {
		ds := deltastore.New(tq, logger, s.settings.BatchSize)
		commitDelta, err := ds.StoreCommits(ctx, scan.Commits, rr.RunID)
		if err != nil {
			return err
		}
		branchDelta, err := ds.UpdateBranches(ctx, scan.Repo, scan.Branches)
		if err != nil {
			return err
		}
		rr.NewCommits = len(commitDelta.NewCommits)
		rr.NewBranches = branchDelta.New
		rr.GoneBranches = branchDelta.Gone
		return nil
	})
	if err != nil {
		return model.ScanResult{}, fmt.Errorf("store scan: %w", err)
	}

	n, err := s.syncPullRequests(ctx, q, id, since)
	if err != nil {
		return model.ScanResult{}, fmt.Errorf("sync pull requests: %w", err)
	}
	rr.PullRequests = n
	return scan, nil
}

// poolTx wraps fn in a DB transaction on the pool.
func (s *Syncer) poolTx(ctx context.Context, fn func(q deltastore.Store) error) error {
	tx, err := s.dbpool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // Rollback is a no-op if the transaction is already committed.

	if err := fn(database.New(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// getSinceTimestamp starts a repository never scanned before at the configured default date,
// and rescans the lookback window otherwise so late-pushed branches are picked up.
func (s *Syncer) getSinceTimestamp(ctx context.Context, q database.Querier, repo string) (time.Time, error) {
	latestCommitDate, err := q.GetLatestCommitDateForRepo(ctx, repo)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, err
	}

	if !latestCommitDate.Valid {
		s.logger.Info("No existing commits found for repository, using default start date", "repo", repo, "default_since", s.settings.DefaultSince)
		return s.settings.DefaultSince, nil
	}

	since := s.now().Add(-s.settings.ScanLookback)
	if since.Before(s.settings.DefaultSince) {
		since = s.settings.DefaultSince
	}
	return since, nil
}

// checkout returns the local working copy of repo, or nil when none is configured.
func (s *Syncer) checkout(repo string) *gitrepo.Repo {
	if s.settings.CheckoutRoot == "" {
		return nil
	}
	if r, ok := s.checkouts[repo]; ok {
		return r
	}
	dir := filepath.Join(s.settings.CheckoutRoot, filepath.FromSlash(repo))
	var r *gitrepo.Repo
	if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
		r = gitrepo.Open(dir, nil, s.logger)
	} else {
		s.logger.Debug("No local checkout, summaries will not include diffs", "repo", repo, "dir", dir)
	}
	s.checkouts[repo] = r
	return r
}

func parseRepoIdentifiers(repos []string) ([]RepoIdentifier, error) {
	var identifiers []RepoIdentifier
	for _, r := range repos {
		owner, name, err := github.SplitRepo(r)
		if err != nil {
			return nil, err
		}
		identifiers = append(identifiers, RepoIdentifier{Owner: owner, Name: name})
	}
	return identifiers, nil
}
