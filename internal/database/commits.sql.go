// internal/database/commits.sql.go
package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const commitColumns = `sha, short_sha, repo, branch, author_name, author_email, message, committed_at,
	files_changed, insertions, deletions, diff_summary, ticket_keys, run_id, db_created_at`

const getExistingCommitShas = `-- name: GetExistingCommitShas :many
SELECT sha FROM commits WHERE sha = ANY($1::text[])
`

// GetExistingCommitShas returns the subset of shas already stored. Callers bound len(shas) per call.
func (q *Queries) GetExistingCommitShas(ctx context.Context, shas []string) ([]string, error) {
	rows, err := q.db.Query(ctx, getExistingCommitShas, shas)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

type CreateCommitsParams struct {
	Sha          string
	ShortSha     string
	Repo         string
	Branch       string
	AuthorName   string
	AuthorEmail  string
	Message      string
	CommittedAt  time.Time
	FilesChanged int32
	Insertions   int32
	Deletions    int32
	DiffSummary  pgtype.Text
	TicketKeys   []string
	RunID        pgtype.UUID
}

// CreateCommits bulk loads commits with COPY. Rows must not already exist.
func (q *Queries) CreateCommits(ctx context.Context, arg []CreateCommitsParams) (int64, error) {
	return q.db.CopyFrom(ctx, pgx.Identifier{"commits"},
		[]string{"sha", "short_sha", "repo", "branch", "author_name", "author_email", "message", "committed_at",
			"files_changed", "insertions", "deletions", "diff_summary", "ticket_keys", "run_id"},
		pgx.CopyFromSlice(len(arg), func(i int) ([]any, error) {
			c := arg[i]
			keys := c.TicketKeys
			if keys == nil {
				keys = []string{}
			}
			return []any{c.Sha, c.ShortSha, c.Repo, c.Branch, c.AuthorName, c.AuthorEmail, c.Message, c.CommittedAt,
				c.FilesChanged, c.Insertions, c.Deletions, c.DiffSummary, keys, c.RunID}, nil
		}),
	)
}

const getCommitsByRepo = `-- name: GetCommitsByRepo :many
SELECT ` + commitColumns + `
FROM commits
WHERE repo = $1
ORDER BY committed_at DESC
LIMIT $2
`

type GetCommitsByRepoParams struct {
	Repo  string
	Limit int32
}

func (q *Queries) GetCommitsByRepo(ctx context.Context, arg GetCommitsByRepoParams) ([]Commit, error) {
	rows, err := q.db.Query(ctx, getCommitsByRepo, arg.Repo, arg.Limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[Commit])
}

const getLatestCommitDateForRepo = `-- name: GetLatestCommitDateForRepo :one
SELECT MAX(committed_at)::timestamptz FROM commits WHERE repo = $1
`

func (q *Queries) GetLatestCommitDateForRepo(ctx context.Context, repo string) (pgtype.Timestamptz, error) {
	var latest pgtype.Timestamptz
	err := q.db.QueryRow(ctx, getLatestCommitDateForRepo, repo).Scan(&latest)
	return latest, err
}

var getTopNCommitAuthors = `-- name: GetTopNCommitAuthors :many
SELECT author_name, author_email, COUNT(*) AS commit_count
FROM commits
WHERE ($1::text = '' OR repo = $1) AND ` + scopeFilter("repo", 3) + `
GROUP BY author_name, author_email
ORDER BY commit_count DESC, author_email
LIMIT $2
`

// GetTopNCommitAuthorsParams selects one repository, or every in-scope repository when Repo is empty.
type GetTopNCommitAuthorsParams struct {
	Repo  string
	Limit int32
}

type GetTopNCommitAuthorsRow struct {
	AuthorName  string `db:"author_name" json:"author_name"`
	AuthorEmail string `db:"author_email" json:"author_email"`
	CommitCount int64  `db:"commit_count" json:"commit_count"`
}

func (q *Queries) GetTopNCommitAuthors(ctx context.Context, arg GetTopNCommitAuthorsParams) ([]GetTopNCommitAuthorsRow, error) {
	rows, err := q.db.Query(ctx, getTopNCommitAuthors, arg.Repo, arg.Limit, q.scope.args())
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[GetTopNCommitAuthorsRow])
}

var getCommitTimesForTicketBranches = `-- name: GetCommitTimesForTicketBranches :many
SELECT c.committed_at
FROM commits c
JOIN branches b ON b.repo = c.repo AND b.name = c.branch
WHERE b.ticket_key = ANY($1::text[])
  AND c.committed_at >= $2 AND c.committed_at < $3
  AND ` + scopeFilter("c.repo", 4) + `
ORDER BY c.committed_at
`

type GetCommitTimesForTicketBranchesParams struct {
	TicketKeys []string
	From       time.Time
	To         time.Time
}

// GetCommitTimesForTicketBranches returns commit timestamps in [From, To) on branches bound to any of TicketKeys.
func (q *Queries) GetCommitTimesForTicketBranches(ctx context.Context, arg GetCommitTimesForTicketBranchesParams) ([]time.Time, error) {
	rows, err := q.db.Query(ctx, getCommitTimesForTicketBranches, arg.TicketKeys, arg.From, arg.To, q.scope.args())
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[time.Time])
}
