package harness

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"github.com/roach88/promptinfra/internal/cache"
	"github.com/roach88/promptinfra/internal/gateway"
	"github.com/roach88/promptinfra/internal/ir"
	"github.com/roach88/promptinfra/internal/ledger"
	"github.com/roach88/promptinfra/internal/pipeline"
	"github.com/roach88/promptinfra/internal/publish"
	"github.com/roach88/promptinfra/internal/store"
	"github.com/roach88/promptinfra/internal/testutil"
)

// Epoch is the fake clock's starting time. Each run advances it one minute.
var Epoch = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

const (
	remoteBucket = "promptinfra-harness"
	remotePrefix = "terraform/"
	workspace    = "harness"
)

// Run executes a scenario and returns the result.
// Each scenario gets fresh cache tiers and a fresh ledger for isolation.
func Run(scenario *Scenario) (*Result, error) {
	env, err := newEnvironment(scenario.Setup)
	if err != nil {
		return nil, err
	}
	defer env.close()

	ctx := context.Background()
	if err := env.seed(ctx, scenario.Setup.Seed); err != nil {
		return nil, fmt.Errorf("seed remote tier: %w", err)
	}
	seeded := env.objects.Puts()

	p, err := env.pipeline(scenario)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Runs {
		env.clock.Set(Epoch.Add(time.Duration(i) * time.Minute))
		res, runErr := p.Run(ctx, step.Request, pipeline.RunOptions{
			Salt:    step.Salt,
			Publish: step.Publish,
			Tags:    step.Tags,
		})
		event := newRunEvent(i, res, runErr)
		result.Trace = append(result.Trace, event)

		if len(step.Expect) > 0 {
			if mismatch := matchFields(step.Expect, event.fields()); mismatch != "" {
				result.AddError(fmt.Sprintf("runs[%d]: %s", i, mismatch))
			}
		}
	}

	records, err := env.ledger.ListAll(ctx).Collect()
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	slices.SortFunc(records, func(a, b ir.DeploymentRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	result.Records = records
	result.GatewayCalls = int(env.calls.Load())
	result.RemotePuts = env.objects.Puts() - seeded

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// newRunEvent summarizes one pipeline run.
func newRunEvent(index int, res *pipeline.Result, err error) RunEvent {
	event := RunEvent{Index: index, Outcome: OutcomeOK, Publish: string(pipeline.PublishSkipped)}
	var runErr *pipeline.RunError
	if errors.As(err, &runErr) {
		event.ErrorCode = string(runErr.Code)
		event.DeploymentID = runErr.DeploymentID
	} else if err != nil {
		event.ErrorCode = err.Error()
	}

	if res == nil {
		event.Outcome = OutcomeFailed
		event.Publish = ""
		return event
	}
	if err != nil || res.Publish.Status == pipeline.PublishFailed {
		event.Outcome = OutcomePartial
	}
	event.DeploymentID = res.DeploymentID
	event.Key = res.Key
	event.Hit = res.Hit
	event.Origin = res.Origin
	event.Gateway = res.Gateway
	event.Cost = res.Cost
	event.Resources = res.Resources
	event.OverThreshold = res.OverThreshold
	event.Publish = string(res.Publish.Status)
	event.PublishState = string(res.Publish.State)
	event.PublishReason = string(res.Publish.Reason)
	return event
}

// environment holds the per-scenario components.
type environment struct {
	dir     string
	clock   *testutil.FakeClock
	logger  *slog.Logger
	calls   *atomic.Int32
	objects *testutil.ObjectStore
	remote  *cache.S3Tier
	cache   *cache.Store
	db      *store.Store
	ledger  *ledger.Ledger
	tfc     *httptest.Server
	setup   Setup
}

func newEnvironment(setup Setup) (*environment, error) {
	dir, err := os.MkdirTemp("", "promptinfra-harness-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	env := &environment{
		dir:     dir,
		clock:   testutil.NewFakeClock(Epoch),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		calls:   &atomic.Int32{},
		objects: testutil.NewObjectStore(),
		setup:   setup,
	}
	if err := env.open(); err != nil {
		env.close()
		return nil, err
	}
	return env, nil
}

func (e *environment) open() error {
	local, err := cache.NewLocalTier(filepath.Join(e.dir, "cache"))
	if err != nil {
		return fmt.Errorf("open local tier: %w", err)
	}
	opts := []cache.Option{cache.WithLogger(e.logger), cache.WithClock(e.clock.Now)}
	if e.setup.Remote {
		e.remote, err = cache.NewS3Tier(e.objects, remoteBucket, remotePrefix, time.Second)
		if err != nil {
			return fmt.Errorf("open remote tier: %w", err)
		}
		opts = append(opts, cache.WithRemote(e.remote))
	}
	if e.cache, err = cache.New(local, opts...); err != nil {
		return fmt.Errorf("open cache: %w", err)
	}

	var backend ledger.Backend
	switch e.setup.Ledger {
	case "file":
		files, err := ledger.NewFileBackend(filepath.Join(e.dir, "deployments"))
		if err != nil {
			return fmt.Errorf("open file ledger: %w", err)
		}
		backend = files
	default:
		e.db, err = store.Open(":memory:")
		if err != nil {
			return fmt.Errorf("open sqlite ledger: %w", err)
		}
		backend = ledger.NewSQLiteBackend(e.db)
	}
	e.ledger = ledger.New(backend, e.logger)

	if e.setup.Publish != "" {
		e.tfc = newTFCServer(e.setup.Publish)
	}
	return nil
}

// seed writes template artifacts straight into the remote tier.
func (e *environment) seed(ctx context.Context, objects []SeedObject) error {
	tmpl := gateway.NewTemplate("us-east-1", e.clock.Now)
	for _, obj := range objects {
		text, err := tmpl.Generate(ctx, obj.Request)
		if err != nil {
			return err
		}
		entry := ir.CacheEntry{
			Key:       ir.DeriveCacheKey(obj.Request, obj.Salt),
			Artifact:  ir.NewArtifact(text),
			Origin:    ir.TierRemote,
			WrittenAt: e.clock.Now(),
		}
		if err := e.remote.Put(ctx, entry); err != nil {
			return err
		}
	}
	if e.setup.RemoteFailing {
		e.objects.PutErr = errors.New("remote tier unavailable")
	}
	return nil
}

func (e *environment) pipeline(s *Scenario) (*pipeline.Pipeline, error) {
	names := s.Setup.Gateways
	if len(names) == 0 {
		names = []string{GatewayTemplate}
	}
	gateways := make([]gateway.Gateway, 0, len(names))
	for _, name := range names {
		gateways = append(gateways, &countingGateway{Gateway: newGateway(name, e.clock.Now), calls: e.calls})
	}

	opts := []pipeline.Option{
		pipeline.WithIdentity(pipeline.NewSequenceGenerator(s.Identities...)),
		pipeline.WithIdentitySalt(s.Setup.SaltMode == "identity"),
		pipeline.WithTags(s.Setup.Tags),
		pipeline.WithLogger(e.logger),
		pipeline.WithClock(e.clock.Now),
	}
	if s.Setup.Threshold != "" {
		limit, err := ir.ParseUSD(s.Setup.Threshold)
		if err != nil {
			return nil, fmt.Errorf("setup.threshold: %w", err)
		}
		opts = append(opts, pipeline.WithThreshold(limit))
	}
	if e.tfc != nil {
		token := "harness-token"
		if e.setup.Publish == PublishNoToken {
			token = ""
		}
		pub := publish.New(
			publish.Config{BaseURL: e.tfc.URL, Token: token, Organization: "harness"},
			publish.WithHTTPClient(e.tfc.Client()),
			publish.WithLogger(e.logger),
			publish.WithClock(e.clock.Now),
		)
		opts = append(opts, pipeline.WithPublisher(pub, workspace))
	}

	chain := gateway.NewChain(gateways, time.Second, e.logger)
	return pipeline.New(e.cache, chain, e.ledger, opts...)
}

func (e *environment) close() {
	if e.tfc != nil {
		e.tfc.Close()
	}
	if e.db != nil {
		e.db.Close()
	}
	os.RemoveAll(e.dir)
}

// countingGateway counts Generate calls into a counter shared by every
// gateway in the chain.
type countingGateway struct {
	gateway.Gateway
	calls *atomic.Int32
}

func (g *countingGateway) Generate(ctx context.Context, prompt string) (string, error) {
	g.calls.Add(1)
	return g.Gateway.Generate(ctx, prompt)
}

// scriptedGateway answers with fixed text or a fixed error.
type scriptedGateway struct {
	name string
	text string
	err  error
}

func (g scriptedGateway) Name() string { return g.name }

func (g scriptedGateway) Generate(context.Context, string) (string, error) {
	return g.text, g.err
}

func newGateway(name string, clock func() time.Time) gateway.Gateway {
	switch name {
	case GatewayFailing:
		return scriptedGateway{name: name, err: errors.New("provider unavailable")}
	case GatewayEmpty:
		return scriptedGateway{name: name, text: "  \n"}
	default:
		return gateway.NewTemplate("us-east-1", clock)
	}
}

// newTFCServer stands in for the Terraform Cloud configuration-version and
// upload endpoints.
func newTFCServer(behaviour string) *httptest.Server {
	var srv *httptest.Server
	var versions atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v2/workspaces/{ws}/configuration-versions", func(w http.ResponseWriter, r *http.Request) {
		if behaviour == PublishCreateFail {
			http.Error(w, `{"errors":[{"status":"500"}]}`, http.StatusInternalServerError)
			return
		}
		n := versions.Add(1)
		w.Header().Set("Content-Type", "application/vnd.api+json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"data":{"id":"cv-%d","attributes":{"upload-url":"%s/upload/%d"}}}`, n, srv.URL, n)
	})
	mux.HandleFunc("PUT /upload/{n}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		if behaviour == PublishUploadFail {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv = httptest.NewServer(mux)
	return srv
}
