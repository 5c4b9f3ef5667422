package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"

	"github.com/roach88/promptinfra/internal/cache"
	"github.com/roach88/promptinfra/internal/config"
	"github.com/roach88/promptinfra/internal/cost"
	"github.com/roach88/promptinfra/internal/gateway"
	"github.com/roach88/promptinfra/internal/ledger"
	"github.com/roach88/promptinfra/internal/pipeline"
	"github.com/roach88/promptinfra/internal/publish"
	"github.com/roach88/promptinfra/internal/store"
)

// awsProbeTimeout bounds credential resolution at startup.
const awsProbeTimeout = 5 * time.Second

// AWSProbe resolves AWS configuration and reports whether credentials are
// usable.
type AWSProbe func(ctx context.Context, region string) (aws.Config, config.Capabilities)

// probeAWS loads the default AWS configuration chain and retrieves
// credentials once.
func probeAWS(ctx context.Context, region string) (aws.Config, config.Capabilities) {
	ctx, cancel := context.WithTimeout(ctx, awsProbeTimeout)
	defer cancel()

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		slog.Debug("aws config unavailable", "error", err)
		return aws.Config{}, config.Capabilities{}
	}
	if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
		slog.Debug("aws credentials unavailable", "error", err)
		return cfg, config.Capabilities{}
	}
	return cfg, config.Capabilities{AWS: true}
}

// app holds the components one command invocation works with.
type app struct {
	cfg     *config.Config
	secrets config.Secrets
	caps    config.Capabilities
	logger  *slog.Logger

	local     *cache.LocalTier
	cache     *cache.Store
	ledger    *ledger.Ledger
	estimator *cost.Estimator
	publisher *publish.Publisher

	closers []func() error
}

// loadConfig reads the configuration named by opts, falling back to
// DefaultConfigFile and then to defaults.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", opts.EnvFile, err)
		}
	}

	path := opts.ConfigPath
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}

	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openApp loads configuration and builds the cache, ledger, estimator, and
// publisher. Callers must Close the result.
func openApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	a := &app{
		cfg:     cfg,
		secrets: cfg.Resolve(lookup),
		logger:  slog.Default(),
	}

	var awsCfg aws.Config
	if cfg.Cache.Remote.Enabled || cfg.Ledger.Backend == config.LedgerDynamoDB {
		probe := opts.AWSProbe
		if probe == nil {
			probe = probeAWS
		}
		awsCfg, a.caps = probe(ctx, cfg.AWS.Region)
	}

	if err := a.openCache(awsCfg); err != nil {
		a.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open cache", err)
	}
	if err := a.openLedger(awsCfg); err != nil {
		a.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open ledger", err)
	}
	if a.estimator, err = cost.New(cfg.Rates()); err != nil {
		a.Close()
		return nil, WrapExitError(ExitCommandError, "invalid cost table", err)
	}

	if cfg.Publish.Enabled {
		a.publisher = publish.New(publish.Config{
			BaseURL:       cfg.Publish.BaseURL,
			Token:         a.secrets.PublishToken,
			Organization:  cfg.Publish.Organization,
			CreateTimeout: cfg.Publish.Timeout,
			UploadTimeout: cfg.Publish.Timeout,
		}, publish.WithLogger(a.logger))
	}
	return a, nil
}

func (a *app) openCache(awsCfg aws.Config) error {
	compression, err := cache.ParseCompression(a.cfg.Cache.Compression)
	if err != nil {
		return err
	}
	a.local, err = cache.NewLocalTier(a.cfg.CacheDir(), cache.WithCompression(compression))
	if err != nil {
		return err
	}

	opts := []cache.Option{cache.WithLogger(a.logger)}
	remote := a.cfg.Cache.Remote
	switch {
	case !remote.Enabled:
	case !a.caps.AWS:
		a.logger.Warn("remote cache tier disabled: aws credentials unavailable", "bucket", remote.Bucket)
	default:
		tier, err := cache.NewS3Tier(s3.NewFromConfig(awsCfg), remote.Bucket, remote.Prefix, remote.Timeout)
		if err != nil {
			return err
		}
		opts = append(opts, cache.WithRemote(tier))
	}

	a.cache, err = cache.New(a.local, opts...)
	return err
}

func (a *app) openLedger(awsCfg aws.Config) error {
	var backend ledger.Backend
	switch a.cfg.Ledger.Backend {
	case config.LedgerSQLite:
		st, err := store.Open(a.cfg.SQLitePath())
		if err != nil {
			return err
		}
		a.closers = append(a.closers, st.Close)
		backend = ledger.NewSQLiteBackend(st)
	case config.LedgerDynamoDB:
		if !a.caps.AWS {
			return errors.New("dynamodb ledger requires aws credentials")
		}
		b, err := ledger.NewDynamoBackend(dynamodb.NewFromConfig(awsCfg), a.cfg.Ledger.Table, a.cfg.Ledger.Timeout)
		if err != nil {
			return err
		}
		backend = b
	default:
		b, err := ledger.NewFileBackend(a.cfg.LedgerDir())
		if err != nil {
			return err
		}
		backend = b
	}
	a.ledger = ledger.New(backend, a.logger)
	return nil
}

// gateways builds the configured gateways in priority order. LLM gateways
// whose API key is unset are left out.
func (a *app) gateways() ([]gateway.Gateway, error) {
	var out []gateway.Gateway
	for i, g := range a.cfg.Gateways.Priority {
		switch g.Kind {
		case config.GatewayTemplate:
			out = append(out, gateway.NewTemplate(a.cfg.AWS.Region, time.Now))
		default:
			key := a.secrets.GatewayKeys[i]
			if key == "" {
				a.logger.Debug("gateway skipped: no api key", "gateway", g.Kind, "env", g.APIKeyEnv)
				continue
			}
			provider, err := gateway.NewProvider(g.Kind, key, g.Model)
			if err != nil {
				return nil, err
			}
			var llmOpts []gateway.LLMOption
			if g.Temp > 0 {
				llmOpts = append(llmOpts, gateway.WithTemperature(g.Temp))
			}
			if g.MaxTokens > 0 {
				llmOpts = append(llmOpts, gateway.WithMaxTokens(g.MaxTokens))
			}
			out = append(out, gateway.NewLLM(g.Kind, provider, llmOpts...))
		}
	}
	return out, nil
}

// pipeline assembles a Pipeline over the app's components.
func (a *app) pipeline(opts *RootOptions) (*pipeline.Pipeline, error) {
	gws, err := a.gateways()
	if err != nil {
		return nil, err
	}
	chain := gateway.NewChain(gws, a.cfg.Gateways.Timeout, a.logger)

	popts := []pipeline.Option{
		pipeline.WithEstimator(a.estimator),
		pipeline.WithIdentitySalt(a.cfg.SaltMode == config.SaltIdentity),
		pipeline.WithArtifactFile(a.cfg.Output.ArtifactFile),
		pipeline.WithThreshold(a.cfg.Threshold()),
		pipeline.WithTags(a.cfg.Tags),
		pipeline.WithLogger(a.logger),
	}
	if opts.Identity != nil {
		popts = append(popts, pipeline.WithIdentity(opts.Identity))
	}
	if a.publisher != nil {
		popts = append(popts, pipeline.WithPublisher(a.publisher, a.cfg.Publish.Workspace))
	}
	return pipeline.New(a.cache, chain, a.ledger, popts...)
}

// Close releases every resource the app opened.
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
