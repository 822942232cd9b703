// internal/database/tickets.sql.go
package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

const getTicket = `-- name: GetTicket :one
SELECT jira_key, summary, description, status, assignee, priority, issue_type, parent_key, subtasks, labels,
	comments, fetched_at
FROM tickets WHERE jira_key = $1
`

func (q *Queries) GetTicket(ctx context.Context, jiraKey string) (Ticket, error) {
	rows, err := q.db.Query(ctx, getTicket, jiraKey)
	if err != nil {
		return Ticket{}, err
	}
	return pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[Ticket])
}

const upsertTicket = `-- name: UpsertTicket :exec
INSERT INTO tickets (jira_key, summary, description, status, assignee, priority, issue_type, parent_key,
	subtasks, labels, comments, fetched_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (jira_key) DO UPDATE SET
	summary = EXCLUDED.summary,
	description = EXCLUDED.description,
	status = EXCLUDED.status,
	assignee = EXCLUDED.assignee,
	priority = EXCLUDED.priority,
	issue_type = EXCLUDED.issue_type,
	parent_key = EXCLUDED.parent_key,
	subtasks = EXCLUDED.subtasks,
	labels = EXCLUDED.labels,
	comments = EXCLUDED.comments,
	fetched_at = EXCLUDED.fetched_at
`

type UpsertTicketParams struct {
	JiraKey     string
	Summary     string
	Description string
	Status      string
	Assignee    string
	Priority    string
	IssueType   string
	ParentKey   string
	Subtasks    []string
	Labels      []string
	Comments    string
	FetchedAt   time.Time
}

func (q *Queries) UpsertTicket(ctx context.Context, arg UpsertTicketParams) error {
	_, err := q.db.Exec(ctx, upsertTicket,
		arg.JiraKey,
		arg.Summary,
		arg.Description,
		arg.Status,
		arg.Assignee,
		arg.Priority,
		arg.IssueType,
		arg.ParentKey,
		nonNil(arg.Subtasks),
		nonNil(arg.Labels),
		arg.Comments,
		arg.FetchedAt,
	)
	return err
}

const createStatusChange = `-- name: CreateStatusChange :execrows
INSERT INTO ticket_status_changes (jira_key, changed_at, from_status, to_status, actor)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (jira_key, changed_at, to_status) DO NOTHING
`

type CreateStatusChangeParams struct {
	JiraKey    string
	ChangedAt  time.Time
	FromStatus string
	ToStatus   string
	Actor      string
}

// CreateStatusChanges inserts the events in one batch round trip, skipping natural-key duplicates.
// It returns the number of rows actually inserted.
func (q *Queries) CreateStatusChanges(ctx context.Context, arg []CreateStatusChangeParams) (int64, error) {
	if len(arg) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, a := range arg {
		batch.Queue(createStatusChange, a.JiraKey, a.ChangedAt, a.FromStatus, a.ToStatus, a.Actor)
	}
	return execBatchRows(ctx, q.db, batch)
}

const getStatusChangesByTicketKeys = `-- name: GetStatusChangesByTicketKeys :many
SELECT id, jira_key, changed_at, from_status, to_status, actor
FROM ticket_status_changes
WHERE jira_key = ANY($1::text[])
ORDER BY jira_key, changed_at, id
`

func (q *Queries) GetStatusChangesByTicketKeys(ctx context.Context, jiraKeys []string) ([]TicketStatusChange, error) {
	rows, err := q.db.Query(ctx, getStatusChangesByTicketKeys, jiraKeys)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[TicketStatusChange])
}

// execBatchRows sends batch and sums RowsAffected over every queued statement.
func execBatchRows(ctx context.Context, db DBTX, batch *pgx.Batch) (int64, error) {
	results := db.SendBatch(ctx, batch)
	var total int64
	for i := 0; i < batch.Len(); i++ {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return total, err
		}
		total += tag.RowsAffected()
	}
	return total, results.Close()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
