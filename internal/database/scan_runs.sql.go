// internal/database/scan_runs.sql.go
package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createScanRun = `-- name: CreateScanRun :exec
INSERT INTO scan_runs (id, repo) VALUES ($1, $2)
`

type CreateScanRunParams struct {
	ID   pgtype.UUID
	Repo string
}

func (q *Queries) CreateScanRun(ctx context.Context, arg CreateScanRunParams) error {
	_, err := q.db.Exec(ctx, createScanRun, arg.ID, arg.Repo)
	return err
}

const finishScanRun = `-- name: FinishScanRun :exec
UPDATE scan_runs
SET finished_at = NOW(), new_commits = $2, gone_branches = $3, failures = $4
WHERE id = $1
`

type FinishScanRunParams struct {
	ID           pgtype.UUID
	NewCommits   int32
	GoneBranches int32
	Failures     int32
}

func (q *Queries) FinishScanRun(ctx context.Context, arg FinishScanRunParams) error {
	_, err := q.db.Exec(ctx, finishScanRun, arg.ID, arg.NewCommits, arg.GoneBranches, arg.Failures)
	return err
}
