// internal/database/summaries.sql.go
package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const summaryColumns = `id, jira_key, repo, summary_text, commit_shas, previous_id, run_id, generation, session_id, created_at`

const getLatestTicketSummary = `-- name: GetLatestTicketSummary :one
SELECT ` + summaryColumns + `
FROM ticket_summaries
WHERE jira_key = $1 AND repo = $2
ORDER BY id DESC
LIMIT 1
`

type GetLatestTicketSummaryParams struct {
	JiraKey string
	Repo    string
}

// GetLatestTicketSummary returns the chain head, the most recently inserted row for the pair.
// It returns pgx.ErrNoRows when the chain is empty.
func (q *Queries) GetLatestTicketSummary(ctx context.Context, arg GetLatestTicketSummaryParams) (TicketSummary, error) {
	rows, err := q.db.Query(ctx, getLatestTicketSummary, arg.JiraKey, arg.Repo)
	if err != nil {
		return TicketSummary{}, err
	}
	return pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[TicketSummary])
}

const createTicketSummary = `-- name: CreateTicketSummary :one
INSERT INTO ticket_summaries (jira_key, repo, summary_text, commit_shas, previous_id, run_id, generation, session_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + summaryColumns

type CreateTicketSummaryParams struct {
	JiraKey     string
	Repo        string
	SummaryText string
	CommitShas  string
	PreviousID  pgtype.Int8
	RunID       pgtype.UUID
	Generation  string
	SessionID   pgtype.Text
}

func (q *Queries) CreateTicketSummary(ctx context.Context, arg CreateTicketSummaryParams) (TicketSummary, error) {
	rows, err := q.db.Query(ctx, createTicketSummary,
		arg.JiraKey,
		arg.Repo,
		arg.SummaryText,
		arg.CommitShas,
		arg.PreviousID,
		arg.RunID,
		arg.Generation,
		arg.SessionID,
	)
	if err != nil {
		return TicketSummary{}, err
	}
	return pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[TicketSummary])
}

const getTicketSummaryChain = `-- name: GetTicketSummaryChain :many
SELECT ` + summaryColumns + `
FROM ticket_summaries
WHERE jira_key = $1 AND repo = $2
ORDER BY id DESC
LIMIT $3
`

type GetTicketSummaryChainParams struct {
	JiraKey string
	Repo    string
	Limit   int32
}

// GetTicketSummaryChain returns the chain newest first.
func (q *Queries) GetTicketSummaryChain(ctx context.Context, arg GetTicketSummaryChainParams) ([]TicketSummary, error) {
	rows, err := q.db.Query(ctx, getTicketSummaryChain, arg.JiraKey, arg.Repo, arg.Limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[TicketSummary])
}

var getTicketSummaryHeads = `-- name: GetTicketSummaryHeads :many
SELECT DISTINCT ON (repo) ` + summaryColumns + `
FROM ticket_summaries
WHERE jira_key = $1 AND ` + scopeFilter("repo", 2) + `
ORDER BY repo, id DESC
`

// GetTicketSummaryHeads returns the chain head of a ticket for every in-scope repository.
func (q *Queries) GetTicketSummaryHeads(ctx context.Context, jiraKey string) ([]TicketSummary, error) {
	rows, err := q.db.Query(ctx, getTicketSummaryHeads, jiraKey, q.scope.args())
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[TicketSummary])
}
