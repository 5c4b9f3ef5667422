package pipeline

import (
	"github.com/roach88/promptinfra/internal/ir"
	"github.com/roach88/promptinfra/internal/publish"
)

// Result is what one run produced.
type Result struct {
	DeploymentID string
	Key          ir.CacheKey
	Artifact     ir.Artifact

	// Hit is true when the artifact came from the cache. Origin names the
	// tier that answered; Gateway names the gateway on a miss.
	Hit     bool
	Origin  ir.Tier
	Gateway string

	Cost          ir.USD
	Resources     int
	OverThreshold bool

	// ArtifactFile is the hand-off file written, if any.
	ArtifactFile string

	// Record is the ledger record as last written.
	Record ir.DeploymentRecord

	Publish PublishOutcome
}

// PublishStatus summarizes the publish step.
type PublishStatus string

const (
	PublishSkipped   PublishStatus = "skipped"
	PublishPublished PublishStatus = "published"
	PublishFailed    PublishStatus = "failed"
)

// PublishOutcome reports the publish step. Phase, Kind, and Reason are set
// when Status is PublishFailed.
type PublishOutcome struct {
	Status        PublishStatus
	Workspace     string
	State         publish.State
	ConfigVersion string
	URL           string

	Phase  publish.Phase
	Kind   publish.Kind
	Reason publish.Reason
	Err    error
}
