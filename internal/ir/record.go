package ir

import "time"

// DeploymentRecord is the ledger entry for one pipeline run. ID is the
// deployment identity, minted once per run and never reused; it is not the
// cache key.
type DeploymentRecord struct {
	ID                   string            `json:"deployment_id"`
	CreatedAt            time.Time         `json:"created_at"`
	Prompt               string            `json:"prompt"`
	ResourceCount        int               `json:"resource_count"`
	EstimatedMonthlyCost USD               `json:"estimated_monthly_cost"`
	Tags                 map[string]string `json:"tags"`
	Status               DeploymentStatus  `json:"status"`
	CacheKey             CacheKey          `json:"cache_key,omitempty"`
	ArtifactDigest       string            `json:"artifact_digest,omitempty"`
	Version              string            `json:"version,omitempty"`
}

// Clone returns a deep copy so callers can mutate tags without aliasing a
// stored record.
func (r DeploymentRecord) Clone() DeploymentRecord {
	out := r
	if r.Tags != nil {
		out.Tags = make(map[string]string, len(r.Tags))
		for k, v := range r.Tags {
			out.Tags[k] = v
		}
	}
	return out
}
