// internal/database/querier.go
package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

type Querier interface {
	// scan runs
	CreateScanRun(ctx context.Context, arg CreateScanRunParams) error
	FinishScanRun(ctx context.Context, arg FinishScanRunParams) error

	// commits
	GetExistingCommitShas(ctx context.Context, shas []string) ([]string, error)
	CreateCommits(ctx context.Context, arg []CreateCommitsParams) (int64, error)
	GetCommitsByRepo(ctx context.Context, arg GetCommitsByRepoParams) ([]Commit, error)
	GetLatestCommitDateForRepo(ctx context.Context, repo string) (pgtype.Timestamptz, error)
	GetTopNCommitAuthors(ctx context.Context, arg GetTopNCommitAuthorsParams) ([]GetTopNCommitAuthorsRow, error)
	GetCommitTimesForTicketBranches(ctx context.Context, arg GetCommitTimesForTicketBranchesParams) ([]time.Time, error)

	// branches
	GetBranchesByRepo(ctx context.Context, repo string) ([]Branch, error)
	MarkBranchesInactive(ctx context.Context, repo string) (int64, error)
	UpsertBranch(ctx context.Context, arg UpsertBranchParams) (bool, error)
	GetInactiveBranches(ctx context.Context, repo string) ([]Branch, error)
	SetBranchPullRequest(ctx context.Context, arg SetBranchPullRequestParams) (int64, error)

	// tickets
	GetTicket(ctx context.Context, jiraKey string) (Ticket, error)
	UpsertTicket(ctx context.Context, arg UpsertTicketParams) error
	CreateStatusChanges(ctx context.Context, arg []CreateStatusChangeParams) (int64, error)
	GetStatusChangesByTicketKeys(ctx context.Context, jiraKeys []string) ([]TicketStatusChange, error)

	// summary chain
	GetLatestTicketSummary(ctx context.Context, arg GetLatestTicketSummaryParams) (TicketSummary, error)
	CreateTicketSummary(ctx context.Context, arg CreateTicketSummaryParams) (TicketSummary, error)
	GetTicketSummaryChain(ctx context.Context, arg GetTicketSummaryChainParams) ([]TicketSummary, error)
	GetTicketSummaryHeads(ctx context.Context, jiraKey string) ([]TicketSummary, error)

	// pull requests
	UpsertPullRequest(ctx context.Context, arg UpsertPullRequestParams) (PullRequest, error)
	GetPullRequestsByRepo(ctx context.Context, repo string) ([]PullRequest, error)
	UpdatePullRequestMetrics(ctx context.Context, arg UpdatePullRequestMetricsParams) error
	CreatePRActivities(ctx context.Context, arg []CreatePRActivityParams) (int64, error)
	GetPRActivities(ctx context.Context, pullRequestID int64) ([]PrActivity, error)
	GetReviewerLeaderboard(ctx context.Context, arg GetReviewerLeaderboardParams) ([]GetReviewerLeaderboardRow, error)

	// sprints
	UpsertSprint(ctx context.Context, arg UpsertSprintParams) (Sprint, error)
	GetSprint(ctx context.Context, id string) (Sprint, error)
}

var _ Querier = (*Queries)(nil)
