// internal/database/db.go
package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	SendBatch(context.Context, *pgx.Batch) pgx.BatchResults
}

// New returns a Queries bound to db with an empty scope.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Queries implements Querier on top of pgx.
type Queries struct {
	db    DBTX
	scope Scope
}

// WithTx returns a copy of q that runs every statement inside tx.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx, scope: q.scope}
}

// WithScope returns a copy of q whose cross-repository reads honour s.
func (q *Queries) WithScope(s Scope) *Queries {
	return &Queries{db: q.db, scope: s}
}

// Scope is the single exclusion predicate applied to every cross-repository read.
// A repository matches an entry either by its full "owner/name" or by its bare name.
type Scope struct {
	ExcludedRepos []string
}

// Excludes reports whether repo is filtered out by the scope.
func (s Scope) Excludes(repo string) bool {
	name := repo
	if i := strings.LastIndex(repo, "/"); i >= 0 {
		name = repo[i+1:]
	}
	for _, ex := range s.ExcludedRepos {
		if ex == repo || ex == name {
			return true
		}
	}
	return false
}

// args never returns nil: a NULL array would turn the NOT ANY predicate into NULL and drop every row.
func (s Scope) args() []string {
	if s.ExcludedRepos == nil {
		return []string{}
	}
	return s.ExcludedRepos
}

// scopeFilter renders the SQL form of Scope.Excludes for column col bound to positional parameter n.
func scopeFilter(col string, n int) string {
	return fmt.Sprintf("NOT (%[1]s = ANY($%[2]d) OR split_part(%[1]s, '/', 2) = ANY($%[2]d))", col, n)
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var chunks [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
