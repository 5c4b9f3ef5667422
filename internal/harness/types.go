package harness

import (
	"fmt"

	"github.com/roach88/promptinfra/internal/ir"
)

// Run outcomes recorded on each RunEvent.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// RunEvent is the observable result of one scenario run.
type RunEvent struct {
	Index         int         `json:"index"`
	DeploymentID  string      `json:"deployment_id"`
	Outcome       string      `json:"outcome"`
	ErrorCode     string      `json:"error_code,omitempty"`
	Key           ir.CacheKey `json:"key,omitempty"`
	Hit           bool        `json:"hit"`
	Origin        ir.Tier     `json:"origin,omitempty"`
	Gateway       string      `json:"gateway,omitempty"`
	Cost          ir.USD      `json:"cost"`
	Resources     int         `json:"resources"`
	OverThreshold bool        `json:"over_threshold"`
	Publish       string      `json:"publish,omitempty"`
	PublishState  string      `json:"publish_state,omitempty"`
	PublishReason string      `json:"publish_reason,omitempty"`
}

// fields returns the event as printed values keyed by their YAML names, for
// where and expect matching.
func (e RunEvent) fields() map[string]string {
	return map[string]string{
		"index":          fmt.Sprint(e.Index),
		"deployment_id":  e.DeploymentID,
		"outcome":        e.Outcome,
		"error_code":     e.ErrorCode,
		"key":            string(e.Key),
		"hit":            fmt.Sprint(e.Hit),
		"origin":         string(e.Origin),
		"gateway":        e.Gateway,
		"cost":           e.Cost.String(),
		"resources":      fmt.Sprint(e.Resources),
		"over_threshold": fmt.Sprint(e.OverThreshold),
		"publish":        e.Publish,
		"publish_state":  e.PublishState,
		"publish_reason": e.PublishReason,
	}
}

// recordFields flattens a ledger record for final_state matching. Tags are
// addressed as "tags.<name>".
func recordFields(rec ir.DeploymentRecord) map[string]string {
	out := map[string]string{
		"deployment_id":          rec.ID,
		"prompt":                 rec.Prompt,
		"status":                 string(rec.Status),
		"resource_count":         fmt.Sprint(rec.ResourceCount),
		"estimated_monthly_cost": rec.EstimatedMonthlyCost.String(),
		"cache_key":              string(rec.CacheKey),
		"created_at":             rec.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	for k, v := range rec.Tags {
		out["tags."+k] = v
	}
	return out
}

// Result contains the outcome of executing a scenario.
type Result struct {
	// Pass is true if all expectations and assertions passed.
	Pass bool

	// Trace holds one event per run, in order.
	Trace []RunEvent

	// Errors contains failure messages (empty if Pass is true).
	Errors []string

	// Records is the final ledger content ordered by creation time.
	Records []ir.DeploymentRecord

	// GatewayCalls counts Generate calls across every configured gateway.
	GatewayCalls int

	// RemotePuts counts writes to the remote tier made by the runs.
	RemotePuts int
}

// NewResult creates a new Result with Pass=true and empty collections.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []RunEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and sets Pass to false.
func (r *Result) AddError(err string) {
	r.Pass = false
	r.Errors = append(r.Errors, err)
}
