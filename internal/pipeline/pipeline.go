package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"time"

	"github.com/roach88/promptinfra/internal/cache"
	"github.com/roach88/promptinfra/internal/cost"
	"github.com/roach88/promptinfra/internal/fsutil"
	"github.com/roach88/promptinfra/internal/gateway"
	"github.com/roach88/promptinfra/internal/ir"
	"github.com/roach88/promptinfra/internal/ledger"
	"github.com/roach88/promptinfra/internal/publish"
)

// SourceTag marks every record and resource this tool produces.
const SourceTag = cache.SourceTag

// Generator produces artifact text and reports which gateway answered.
// *gateway.Chain implements it.
type Generator interface {
	GenerateFrom(ctx context.Context, prompt string) (text, gatewayName string, err error)
}

// Publisher publishes an artifact to a workspace. *publish.Publisher
// implements it.
type Publisher interface {
	Publish(ctx context.Context, workspace string, artifact ir.Artifact) (*publish.Job, error)
	WorkspaceURL(workspace string) string
}

// Pipeline runs requests. It holds no per-run state and is safe for
// concurrent use when its cache and ledger are.
type Pipeline struct {
	cache     *cache.Store
	generator Generator
	ledger    *ledger.Ledger
	estimator *cost.Estimator

	publisher Publisher
	workspace string

	identity     IdentityGenerator
	identitySalt bool
	artifactFile string
	threshold    ir.USD
	tags         map[string]string

	logger *slog.Logger
	clock  func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEstimator sets the cost estimator. Defaults to cost.Default().
func WithEstimator(e *cost.Estimator) Option {
	return func(p *Pipeline) { p.estimator = e }
}

// WithPublisher enables publishing to workspace for runs that request it.
func WithPublisher(pub Publisher, workspace string) Option {
	return func(p *Pipeline) {
		p.publisher = pub
		p.workspace = workspace
	}
}

// WithIdentity sets the identity generator. Defaults to UUIDv7Generator.
func WithIdentity(g IdentityGenerator) Option {
	return func(p *Pipeline) { p.identity = g }
}

// WithIdentitySalt salts cache keys with the deployment identity when a run
// supplies no salt, so every run generates afresh.
func WithIdentitySalt(enabled bool) Option {
	return func(p *Pipeline) { p.identitySalt = enabled }
}

// WithArtifactFile overwrites path with each run's artifact.
func WithArtifactFile(path string) Option {
	return func(p *Pipeline) { p.artifactFile = path }
}

// WithThreshold flags runs whose estimate exceeds limit. Zero disables.
func WithThreshold(limit ir.USD) Option {
	return func(p *Pipeline) { p.threshold = limit }
}

// WithTags sets tags applied to every run, such as cost_center.
func WithTags(tags map[string]string) Option {
	return func(p *Pipeline) { p.tags = maps.Clone(tags) }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClock sets the clock used for created_at.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// New builds a Pipeline over the shared cache and ledger.
func New(store *cache.Store, gen Generator, led *ledger.Ledger, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, errors.New("pipeline: cache is required")
	}
	if gen == nil {
		return nil, errors.New("pipeline: generator is required")
	}
	if led == nil {
		return nil, errors.New("pipeline: ledger is required")
	}
	p := &Pipeline{
		cache:     store,
		generator: gen,
		ledger:    led,
		estimator: cost.Default(),
		identity:  UUIDv7Generator{},
		logger:    slog.Default(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// RunOptions are per-run choices.
type RunOptions struct {
	// Salt overrides the configured salt mode when non-empty.
	Salt string

	// Publish requests publishing. Ignored when no publisher is configured.
	Publish bool

	// Tags are merged over the pipeline tags for this run.
	Tags map[string]string
}

// Run executes one request. On success it returns the Result and nil. A
// local cache write or ledger failure returns the Result with the artifact
// alongside a *RunError. Generation failure returns a nil Result. Publish
// failures never fail the run; they are reported in Result.Publish.
func (p *Pipeline) Run(ctx context.Context, text string, opts RunOptions) (*Result, error) {
	id := p.identity.Generate()
	now := p.clock().UTC()
	log := p.logger.With("deployment_id", id)

	salt := opts.Salt
	if salt == "" && p.identitySalt {
		salt = id
	}
	key := ir.DeriveCacheKey(text, salt)
	tags := p.runTags(id, now, opts.Tags)

	res := &Result{DeploymentID: id, Key: key}

	entry, hit, err := p.cache.Get(ctx, key)
	if err != nil {
		return nil, &RunError{Code: ErrCodeCacheReadFailed, Phase: PhaseCacheGet, DeploymentID: id, Err: err}
	}
	if hit {
		res.Artifact = entry.Artifact
		res.Hit = true
		res.Origin = entry.Origin
		log.Info("cache hit", "key", key, "tier", entry.Origin)
	} else {
		out, name, err := p.generator.GenerateFrom(gateway.WithTags(ctx, tags), text)
		if err != nil {
			return nil, &RunError{Code: ErrCodeGenerationFailed, Phase: PhaseGenerate, DeploymentID: id, Err: err}
		}
		res.Artifact = ir.NewArtifact(out)
		res.Gateway = name
		log.Info("artifact generated", "key", key, "gateway", name, "bytes", res.Artifact.Size)
	}

	res.Cost = p.estimator.Estimate(res.Artifact.Text)
	res.Resources = cost.CountResources(res.Artifact.Text)
	if p.threshold > 0 && res.Cost > p.threshold {
		res.OverThreshold = true
		log.Warn("estimated cost exceeds threshold", "cost", res.Cost.String(), "threshold", p.threshold.String())
	}

	if !hit {
		if err := p.cache.Put(ctx, key, res.Artifact); err != nil {
			return res, &RunError{Code: ErrCodeCacheWriteFailed, Phase: PhaseCachePut, DeploymentID: id, Err: err}
		}
	}

	if p.artifactFile != "" {
		if err := fsutil.WriteFileAtomic(p.artifactFile, []byte(res.Artifact.Text), 0o644); err != nil {
			log.Warn("writing artifact file failed", "path", p.artifactFile, "error", err)
		} else {
			res.ArtifactFile = p.artifactFile
		}
	}

	rec := ir.DeploymentRecord{
		ID:                   id,
		CreatedAt:            now,
		Prompt:               text,
		ResourceCount:        res.Resources,
		EstimatedMonthlyCost: res.Cost,
		Tags:                 tags,
		Status:               ir.StatusGenerated,
		CacheKey:             key,
		ArtifactDigest:       res.Artifact.Digest.String(),
	}
	if err := p.ledger.Record(ctx, rec); err != nil {
		return res, &RunError{Code: ErrCodeLedgerWriteFailed, Phase: PhaseLedgerRecord, DeploymentID: id, Err: err}
	}
	res.Record = rec

	res.Publish = p.publish(ctx, opts, res.Artifact, log)
	if res.Publish.Status == PublishPublished {
		rec = rec.Clone()
		rec.Status = ir.StatusPublished
		if err := p.ledger.Record(ctx, rec); err != nil {
			return res, &RunError{Code: ErrCodeLedgerWriteFailed, Phase: PhaseLedgerUpdate, DeploymentID: id, Err: err}
		}
		res.Record = rec
	}
	return res, nil
}

func (p *Pipeline) publish(ctx context.Context, opts RunOptions, artifact ir.Artifact, log *slog.Logger) PublishOutcome {
	if !opts.Publish {
		return PublishOutcome{Status: PublishSkipped}
	}
	if p.publisher == nil || p.workspace == "" {
		log.Info("publish requested but no remote target is configured")
		return PublishOutcome{Status: PublishSkipped}
	}

	out := PublishOutcome{Workspace: p.workspace}
	job, err := p.publisher.Publish(ctx, p.workspace, artifact)
	if job != nil {
		out.State = job.State()
		out.ConfigVersion = job.ConfigVersionID()
	}
	if err != nil {
		out.Status = PublishFailed
		out.Err = err
		var perr *publish.Error
		if errors.As(err, &perr) {
			out.Phase = perr.Phase
			out.Kind = perr.Kind
			out.Reason = perr.Reason()
		}
		return out
	}
	out.Status = PublishPublished
	out.URL = p.publisher.WorkspaceURL(p.workspace)
	return out
}

// runTags builds the tags for one run. Per-run tags win over pipeline tags;
// the identity and provenance tags always win.
func (p *Pipeline) runTags(id string, now time.Time, extra map[string]string) map[string]string {
	tags := make(map[string]string, len(p.tags)+len(extra)+4)
	maps.Copy(tags, p.tags)
	maps.Copy(tags, extra)
	tags["source"] = SourceTag
	tags["auto_generated"] = "true"
	tags["created_at"] = now.Format(time.DateOnly)
	tags["deployment_id"] = id
	if tags["created_by"] == "" {
		tags["created_by"] = SourceTag
	}
	return tags
}
