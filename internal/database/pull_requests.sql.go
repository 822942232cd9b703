// internal/database/pull_requests.sql.go
package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const pullRequestColumns = `id, repo, external_id, title, state, author, url, source_branch, target_branch, reviewers,
	approvals, pr_created_at, pr_updated_at, pr_closed_at, time_to_first_review, time_to_merge, review_rounds, metrics_computed_at`

const upsertPullRequest = `-- name: UpsertPullRequest :one
INSERT INTO pull_requests (repo, external_id, title, state, author, url, source_branch, target_branch, reviewers,
	approvals, pr_created_at, pr_updated_at, pr_closed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (repo, external_id) DO UPDATE SET
	title = EXCLUDED.title,
	state = EXCLUDED.state,
	url = EXCLUDED.url,
	source_branch = EXCLUDED.source_branch,
	target_branch = EXCLUDED.target_branch,
	reviewers = EXCLUDED.reviewers,
	pr_updated_at = EXCLUDED.pr_updated_at,
	pr_closed_at = EXCLUDED.pr_closed_at
RETURNING ` + pullRequestColumns

type UpsertPullRequestParams struct {
	Repo         string
	ExternalID   int64
	Title        string
	State        string
	Author       string
	Url          string
	SourceBranch string
	TargetBranch string
	Reviewers    []string
	Approvals    int32
	PrCreatedAt  time.Time
	PrUpdatedAt  time.Time
	PrClosedAt   pgtype.Timestamptz
}

// UpsertPullRequest refreshes the current state of a pull request and keeps its cached metrics.
// Approvals is only written on insert; afterwards it is derived from the activity log.
func (q *Queries) UpsertPullRequest(ctx context.Context, arg UpsertPullRequestParams) (PullRequest, error) {
	rows, err := q.db.Query(ctx, upsertPullRequest,
		arg.Repo,
		arg.ExternalID,
		arg.Title,
		arg.State,
		arg.Author,
		arg.Url,
		arg.SourceBranch,
		arg.TargetBranch,
		nonNil(arg.Reviewers),
		arg.Approvals,
		arg.PrCreatedAt,
		arg.PrUpdatedAt,
		arg.PrClosedAt,
	)
	if err != nil {
		return PullRequest{}, err
	}
	return pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[PullRequest])
}

const getPullRequestsByRepo = `-- name: GetPullRequestsByRepo :many
SELECT ` + pullRequestColumns + ` FROM pull_requests WHERE repo = $1 ORDER BY pr_created_at DESC
`

func (q *Queries) GetPullRequestsByRepo(ctx context.Context, repo string) ([]PullRequest, error) {
	rows, err := q.db.Query(ctx, getPullRequestsByRepo, repo)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[PullRequest])
}

const updatePullRequestMetrics = `-- name: UpdatePullRequestMetrics :exec
UPDATE pull_requests
SET time_to_first_review = $2, time_to_merge = $3, review_rounds = $4, approvals = $5, metrics_computed_at = $6
WHERE id = $1
`

type UpdatePullRequestMetricsParams struct {
	ID                int64
	TimeToFirstReview pgtype.Int4
	TimeToMerge       pgtype.Int4
	ReviewRounds      int32
	Approvals         int32
	MetricsComputedAt time.Time
}

func (q *Queries) UpdatePullRequestMetrics(ctx context.Context, arg UpdatePullRequestMetricsParams) error {
	_, err := q.db.Exec(ctx, updatePullRequestMetrics,
		arg.ID,
		arg.TimeToFirstReview,
		arg.TimeToMerge,
		arg.ReviewRounds,
		arg.Approvals,
		arg.MetricsComputedAt,
	)
	return err
}

const createPRActivity = `-- name: CreatePRActivity :execrows
INSERT INTO pr_activity (pull_request_id, event_type, actor, occurred_at, new_state, comment_text, commit_hash)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (pull_request_id, occurred_at, event_type, actor) DO NOTHING
`

type CreatePRActivityParams struct {
	PullRequestID int64
	EventType     string
	Actor         string
	OccurredAt    time.Time
	NewState      pgtype.Text
	CommentText   pgtype.Text
	CommitHash    pgtype.Text
}

// CreatePRActivities appends activity events, skipping natural-key duplicates, and returns the inserted count.
func (q *Queries) CreatePRActivities(ctx context.Context, arg []CreatePRActivityParams) (int64, error) {
	if len(arg) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, a := range arg {
		batch.Queue(createPRActivity, a.PullRequestID, a.EventType, a.Actor, a.OccurredAt, a.NewState, a.CommentText, a.CommitHash)
	}
	return execBatchRows(ctx, q.db, batch)
}

const getPRActivities = `-- name: GetPRActivities :many
SELECT id, pull_request_id, event_type, actor, occurred_at, new_state, comment_text, commit_hash
FROM pr_activity
WHERE pull_request_id = $1
ORDER BY occurred_at, id
`

func (q *Queries) GetPRActivities(ctx context.Context, pullRequestID int64) ([]PrActivity, error) {
	rows, err := q.db.Query(ctx, getPRActivities, pullRequestID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[PrActivity])
}

var getReviewerLeaderboard = `-- name: GetReviewerLeaderboard :many
SELECT a.actor,
	COUNT(*) FILTER (WHERE a.event_type = 'approval') AS approvals,
	COUNT(*) FILTER (WHERE a.event_type = 'comment') AS comments,
	COUNT(*) FILTER (WHERE a.event_type = 'request_changes') AS change_requests,
	COUNT(DISTINCT a.pull_request_id) AS pull_requests
FROM pr_activity a
JOIN pull_requests pr ON pr.id = a.pull_request_id
WHERE a.event_type IN ('approval', 'comment', 'request_changes')
  AND a.actor <> pr.author
  AND ($1::text = '' OR pr.repo = $1)
  AND a.occurred_at >= $2
  AND ` + scopeFilter("pr.repo", 4) + `
GROUP BY a.actor
ORDER BY pull_requests DESC, approvals DESC, a.actor
LIMIT $3
`

// GetReviewerLeaderboardParams selects one repository, or every in-scope repository when Repo is empty.
type GetReviewerLeaderboardParams struct {
	Repo  string
	Since time.Time
	Limit int32
}

type GetReviewerLeaderboardRow struct {
	Actor          string `db:"actor" json:"actor"`
	Approvals      int64  `db:"approvals" json:"approvals"`
	Comments       int64  `db:"comments" json:"comments"`
	ChangeRequests int64  `db:"change_requests" json:"change_requests"`
	PullRequests   int64  `db:"pull_requests" json:"pull_requests"`
}

func (q *Queries) GetReviewerLeaderboard(ctx context.Context, arg GetReviewerLeaderboardParams) ([]GetReviewerLeaderboardRow, error) {
	rows, err := q.db.Query(ctx, getReviewerLeaderboard, arg.Repo, arg.Since, arg.Limit, q.scope.args())
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[GetReviewerLeaderboardRow])
}
