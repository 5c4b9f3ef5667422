package ledger

import (
	"context"

	"github.com/roach88/promptinfra/internal/ir"
	"github.com/roach88/promptinfra/internal/store"
)

// SQLiteBackend stores records in a SQLite database.
type SQLiteBackend struct {
	store *store.Store
}

// NewSQLiteBackend wraps an open store. The caller closes it.
func NewSQLiteBackend(s *store.Store) *SQLiteBackend {
	return &SQLiteBackend{store: s}
}

func (b *SQLiteBackend) Name() string { return "sqlite" }

func (b *SQLiteBackend) Put(ctx context.Context, rec ir.DeploymentRecord) error {
	return b.store.UpsertDeployment(ctx, rec)
}

// Get reads one record by primary key.
func (b *SQLiteBackend) Get(ctx context.Context, id string) (ir.DeploymentRecord, bool, error) {
	return b.store.ReadDeployment(ctx, id)
}

func (b *SQLiteBackend) Scan(ctx context.Context) (Cursor, error) {
	rows, err := b.store.ListDeployments(ctx)
	if err != nil {
		return nil, err
	}
	return &sqliteCursor{rows: rows}, nil
}

type sqliteCursor struct {
	rows *store.DeploymentRows
}

func (c *sqliteCursor) Next(context.Context) (ir.DeploymentRecord, bool, error) {
	if c.rows.Next() {
		return c.rows.Record(), true, nil
	}
	return ir.DeploymentRecord{}, false, c.rows.Err()
}

func (c *sqliteCursor) Close() error { return c.rows.Close() }
