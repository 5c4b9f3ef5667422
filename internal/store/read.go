package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/promptinfra/internal/ir"
)

const selectDeployment = `
	SELECT id, created_at, prompt, resource_count, cost_cents, tags, status, cache_key, artifact_digest, record_version
	FROM deployments`

// ReadDeployment returns the record for id. found is false when no row
// exists.
func (s *Store) ReadDeployment(ctx context.Context, id string) (ir.DeploymentRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, selectDeployment+` WHERE id = ?`, id)
	rec, err := scanDeployment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.DeploymentRecord{}, false, nil
	}
	if err != nil {
		return ir.DeploymentRecord{}, false, err
	}
	return rec, true, nil
}

// DeploymentRows is a forward-only cursor over deployment rows.
// Callers must Close it.
type DeploymentRows struct {
	rows *sql.Rows
	cur  ir.DeploymentRecord
	err  error
}

// ListDeployments opens a cursor over every deployment in deterministic
// order.
func (s *Store) ListDeployments(ctx context.Context) (*DeploymentRows, error) {
	rows, err := s.db.QueryContext(ctx, selectDeployment+`
		ORDER BY created_at ASC, id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query deployments: %w", err)
	}
	return &DeploymentRows{rows: rows}, nil
}

// Next advances to the next row. It returns false at the end or on error.
func (r *DeploymentRows) Next() bool {
	if r.err != nil || !r.rows.Next() {
		return false
	}
	r.cur, r.err = scanDeployment(r.rows)
	return r.err == nil
}

// Record returns the row Next advanced to.
func (r *DeploymentRows) Record() ir.DeploymentRecord { return r.cur }

// Err returns the first scan or iteration error.
func (r *DeploymentRows) Err() error {
	if r.err != nil {
		return r.err
	}
	if err := r.rows.Err(); err != nil {
		return fmt.Errorf("iterate deployments: %w", err)
	}
	return nil
}

// Close releases the cursor.
func (r *DeploymentRows) Close() error { return r.rows.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanDeployment(row scanner) (ir.DeploymentRecord, error) {
	var (
		rec       ir.DeploymentRecord
		createdAt string
		costCents int64
		tagsJSON  string
		status    string
		cacheKey  string
	)
	err := row.Scan(
		&rec.ID,
		&createdAt,
		&rec.Prompt,
		&rec.ResourceCount,
		&costCents,
		&tagsJSON,
		&status,
		&cacheKey,
		&rec.ArtifactDigest,
		&rec.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.DeploymentRecord{}, err
		}
		return ir.DeploymentRecord{}, fmt.Errorf("scan deployment: %w", err)
	}

	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return ir.DeploymentRecord{}, err
	}
	if rec.Tags, err = unmarshalTags(tagsJSON); err != nil {
		return ir.DeploymentRecord{}, err
	}
	rec.EstimatedMonthlyCost = ir.Cents(costCents)
	rec.Status = ir.DeploymentStatus(status)
	rec.CacheKey = ir.CacheKey(cacheKey)
	return rec, nil
}
