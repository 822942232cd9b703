// internal/database/sprints.sql.go
package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

const upsertSprint = `-- name: UpsertSprint :one
INSERT INTO sprints (id, name, start_date, end_date, ticket_keys)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	start_date = EXCLUDED.start_date,
	end_date = EXCLUDED.end_date,
	ticket_keys = EXCLUDED.ticket_keys
RETURNING id, name, start_date, end_date, ticket_keys
`

type UpsertSprintParams struct {
	ID         string
	Name       string
	StartDate  time.Time
	EndDate    time.Time
	TicketKeys []string
}

func (q *Queries) UpsertSprint(ctx context.Context, arg UpsertSprintParams) (Sprint, error) {
	rows, err := q.db.Query(ctx, upsertSprint, arg.ID, arg.Name, arg.StartDate, arg.EndDate, nonNil(arg.TicketKeys))
	if err != nil {
		return Sprint{}, err
	}
	return pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[Sprint])
}

const getSprint = `-- name: GetSprint :one
SELECT id, name, start_date, end_date, ticket_keys FROM sprints WHERE id = $1
`

func (q *Queries) GetSprint(ctx context.Context, id string) (Sprint, error) {
	rows, err := q.db.Query(ctx, getSprint, id)
	if err != nil {
		return Sprint{}, err
	}
	return pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[Sprint])
}
