package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/promptinfra/internal/ir"
)

// UpsertDeployment writes rec, replacing every column of an existing row
// with the same id.
func (s *Store) UpsertDeployment(ctx context.Context, rec ir.DeploymentRecord) error {
	if rec.ID == "" {
		return errors.New("upsert deployment: empty id")
	}

	tagsJSON, err := marshalTags(rec.Tags)
	if err != nil {
		return fmt.Errorf("upsert deployment: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO deployments
		(id, created_at, prompt, resource_count, cost_cents, tags, status, cache_key, artifact_digest, record_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at      = excluded.created_at,
			prompt          = excluded.prompt,
			resource_count  = excluded.resource_count,
			cost_cents      = excluded.cost_cents,
			tags            = excluded.tags,
			status          = excluded.status,
			cache_key       = excluded.cache_key,
			artifact_digest = excluded.artifact_digest,
			record_version  = excluded.record_version
	`,
		rec.ID,
		formatTime(rec.CreatedAt),
		rec.Prompt,
		rec.ResourceCount,
		int64(rec.EstimatedMonthlyCost),
		tagsJSON,
		string(rec.Status),
		string(rec.CacheKey),
		rec.ArtifactDigest,
		rec.Version,
	)
	if err != nil {
		return fmt.Errorf("upsert deployment %s: %w", rec.ID, err)
	}

	return nil
}
