// internal/database/branches.sql.go
package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const branchColumns = `repo, name, remote, is_active, first_seen, last_seen, last_commit_sha, last_commit_date,
	last_commit_author_email, last_commit_message, ticket_key, pull_request`

const getBranchesByRepo = `-- name: GetBranchesByRepo :many
SELECT ` + branchColumns + ` FROM branches WHERE repo = $1 ORDER BY name
`

func (q *Queries) GetBranchesByRepo(ctx context.Context, repo string) ([]Branch, error) {
	rows, err := q.db.Query(ctx, getBranchesByRepo, repo)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[Branch])
}

const markBranchesInactive = `-- name: MarkBranchesInactive :execrows
UPDATE branches SET is_active = FALSE WHERE repo = $1
`

func (q *Queries) MarkBranchesInactive(ctx context.Context, repo string) (int64, error) {
	tag, err := q.db.Exec(ctx, markBranchesInactive, repo)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const upsertBranch = `-- name: UpsertBranch :one
INSERT INTO branches (repo, name, remote, is_active, first_seen, last_seen, last_commit_sha, last_commit_date,
	last_commit_author_email, last_commit_message, ticket_key)
VALUES ($1, $2, $3, TRUE, $4, $4, $5, $6, $7, $8, $9)
ON CONFLICT (repo, name) DO UPDATE SET
	remote = EXCLUDED.remote,
	is_active = TRUE,
	last_seen = EXCLUDED.last_seen,
	last_commit_sha = EXCLUDED.last_commit_sha,
	last_commit_date = EXCLUDED.last_commit_date,
	last_commit_author_email = EXCLUDED.last_commit_author_email,
	last_commit_message = EXCLUDED.last_commit_message,
	ticket_key = COALESCE(EXCLUDED.ticket_key, branches.ticket_key)
RETURNING (xmax = 0) AS inserted
`

type UpsertBranchParams struct {
	Repo                  string
	Name                  string
	Remote                string
	SeenAt                time.Time
	LastCommitSha         string
	LastCommitDate        time.Time
	LastCommitAuthorEmail string
	LastCommitMessage     string
	TicketKey             pgtype.Text
}

// UpsertBranch inserts or revives a branch. first_seen is only written on insert.
// The returned flag is true when the row was newly inserted.
func (q *Queries) UpsertBranch(ctx context.Context, arg UpsertBranchParams) (bool, error) {
	var inserted bool
	err := q.db.QueryRow(ctx, upsertBranch,
		arg.Repo,
		arg.Name,
		arg.Remote,
		arg.SeenAt,
		arg.LastCommitSha,
		arg.LastCommitDate,
		arg.LastCommitAuthorEmail,
		arg.LastCommitMessage,
		arg.TicketKey,
	).Scan(&inserted)
	return inserted, err
}

const getInactiveBranches = `-- name: GetInactiveBranches :many
SELECT ` + branchColumns + ` FROM branches WHERE repo = $1 AND NOT is_active ORDER BY name
`

func (q *Queries) GetInactiveBranches(ctx context.Context, repo string) ([]Branch, error) {
	rows, err := q.db.Query(ctx, getInactiveBranches, repo)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[Branch])
}

const setBranchPullRequest = `-- name: SetBranchPullRequest :execrows
UPDATE branches SET pull_request = $3 WHERE repo = $1 AND name = $2
`

type SetBranchPullRequestParams struct {
	Repo        string
	Name        string
	PullRequest []byte
}

func (q *Queries) SetBranchPullRequest(ctx context.Context, arg SetBranchPullRequestParams) (int64, error) {
	tag, err := q.db.Exec(ctx, setBranchPullRequest, arg.Repo, arg.Name, arg.PullRequest)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
