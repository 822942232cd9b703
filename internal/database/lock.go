// internal/database/lock.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	custom_errors "delivery-insights/internal/errors"
)

// WriterLockKey identifies the session advisory lock guarding a sync cycle.
const WriterLockKey int64 = 0x64656c6976657279

// AcquireWriterLock takes the session-level advisory lock on a dedicated pool connection.
// It returns custom_errors.ErrRunLocked when another session already holds it.
// The returned release func unlocks and returns the connection to the pool.
func AcquireWriterLock(ctx context.Context, pool *pgxpool.Pool) (func(), error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection for writer lock: %w", err)
	}

	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", WriterLockKey).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, custom_errors.ErrRunLocked
	}

	return func() {
		// Use a fresh context: the caller's may already be cancelled on shutdown.
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", WriterLockKey)
		conn.Release()
	}, nil
}
