package sequence

import (
	"context"

	"github.com/feedflow/feedflow/internal/platform/db"
)

// PostgresCounter stores counters in the counters table.
type PostgresCounter struct {
	db db.DBTX
}

// NewPostgresCounter constructs PostgresCounter.
func NewPostgresCounter(q db.DBTX) *PostgresCounter {
	return &PostgresCounter{db: q}
}

// Increment bumps the named counter in a single statement so concurrent callers never share a value.
func (c *PostgresCounter) Increment(ctx context.Context, name string) (int64, error) {
	const query = `INSERT INTO counters (name, value) VALUES ($1, 1)
ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
RETURNING value`
	var value int64
	if err := c.db.QueryRow(ctx, query, name).Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}
