package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/promptinfra/internal/cache"
	"github.com/roach88/promptinfra/internal/cost"
	"github.com/roach88/promptinfra/internal/ir"
)

// SaltMode selects the cache key salt when a run supplies none.
type SaltMode string

const (
	// SaltNone keys the cache on request text alone, so identical requests
	// share one artifact.
	SaltNone SaltMode = "none"

	// SaltIdentity salts with the deployment identity, so every run
	// generates afresh.
	SaltIdentity SaltMode = "identity"
)

// Ledger backend names.
const (
	LedgerFile     = "file"
	LedgerSQLite   = "sqlite"
	LedgerDynamoDB = "dynamodb"
)

// Gateway kinds.
const (
	GatewayOpenAI    = "openai"
	GatewayAnthropic = "anthropic"
	GatewayTemplate  = "template"
)

// Config is the full configuration.
type Config struct {
	StateDir string            `yaml:"state_dir"`
	SaltMode SaltMode          `yaml:"salt_mode"`
	Cache    CacheConfig       `yaml:"cache"`
	Ledger   LedgerConfig      `yaml:"ledger"`
	Gateways GatewaysConfig    `yaml:"gateways"`
	Cost     CostConfig        `yaml:"cost"`
	Output   OutputConfig      `yaml:"output"`
	Tags     map[string]string `yaml:"tags"`
	Publish  PublishConfig     `yaml:"publish"`
	AWS      AWSConfig         `yaml:"aws"`
}

// CacheConfig configures the tiered cache.
type CacheConfig struct {
	// Dir is the local tier root. Empty means {state_dir}/cache.
	Dir         string            `yaml:"dir"`
	Compression string            `yaml:"compression"`
	Remote      RemoteCacheConfig `yaml:"remote"`
}

// RemoteCacheConfig configures the S3 tier.
type RemoteCacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Bucket  string        `yaml:"bucket"`
	Prefix  string        `yaml:"prefix"`
	Timeout time.Duration `yaml:"timeout"`
}

// LedgerConfig selects and configures the ledger backend.
type LedgerConfig struct {
	Backend string `yaml:"backend"`
	// Dir holds file backend documents. Empty means {state_dir}/deployments.
	Dir string `yaml:"dir"`
	// SQLitePath is the sqlite database. Empty means {state_dir}/ledger.db.
	SQLitePath string        `yaml:"sqlite_path"`
	Table      string        `yaml:"table"`
	Timeout    time.Duration `yaml:"timeout"`
}

// GatewaysConfig lists generation gateways in priority order.
type GatewaysConfig struct {
	Timeout  time.Duration   `yaml:"timeout"`
	Priority []GatewayConfig `yaml:"priority"`
}

// GatewayConfig is one gateway.
type GatewayConfig struct {
	Kind      string  `yaml:"kind"`
	Model     string  `yaml:"model"`
	APIKeyEnv string  `yaml:"api_key_env"`
	MaxTokens int     `yaml:"max_tokens"`
	Temp      float64 `yaml:"temperature"`
}

// CostConfig configures the estimator.
type CostConfig struct {
	// Threshold flags runs whose estimate exceeds it, in dollars. Zero
	// disables the check.
	Threshold float64 `yaml:"threshold"`
	// Rates replaces the built-in table when non-empty.
	Rates []RateConfig `yaml:"rates"`
}

// RateConfig is one marker and its monthly dollar cost.
type RateConfig struct {
	Marker  string  `yaml:"marker"`
	Monthly float64 `yaml:"monthly"`
}

// OutputConfig configures the hand-off file.
type OutputConfig struct {
	// ArtifactFile is overwritten with each run's artifact. Empty disables.
	ArtifactFile string `yaml:"artifact_file"`
}

// PublishConfig configures the remote publisher.
type PublishConfig struct {
	Enabled      bool          `yaml:"enabled"`
	BaseURL      string        `yaml:"base_url"`
	Organization string        `yaml:"organization"`
	Workspace    string        `yaml:"workspace"`
	TokenEnv     string        `yaml:"token_env"`
	Timeout      time.Duration `yaml:"timeout"`
}

// AWSConfig holds settings shared by the S3 tier, DynamoDB ledger, and
// template gateway.
type AWSConfig struct {
	Region string `yaml:"region"`
}

// Default returns the default configuration: local cache, file ledger,
// OpenAI then Anthropic then the template fallback, publishing off.
func Default() *Config {
	return &Config{
		StateDir: ".promptinfra",
		SaltMode: SaltNone,
		Cache: CacheConfig{
			Compression: "zstd",
			Remote: RemoteCacheConfig{
				Prefix:  "terraform/",
				Timeout: 10 * time.Second,
			},
		},
		Ledger: LedgerConfig{
			Backend: LedgerFile,
			Table:   "promptinfra-deployments",
			Timeout: 10 * time.Second,
		},
		Gateways: GatewaysConfig{
			Timeout: 60 * time.Second,
			Priority: []GatewayConfig{
				{Kind: GatewayOpenAI, APIKeyEnv: "OPENAI_API_KEY"},
				{Kind: GatewayAnthropic, APIKeyEnv: "ANTHROPIC_API_KEY"},
				{Kind: GatewayTemplate},
			},
		},
		Output: OutputConfig{ArtifactFile: "main.tf"},
		Tags: map[string]string{
			"created_by":  "promptinfra",
			"cost_center": "development",
		},
		Publish: PublishConfig{
			BaseURL:  "https://app.terraform.io",
			TokenEnv: "TF_API_TOKEN",
			Timeout:  30 * time.Second,
		},
		AWS: AWSConfig{Region: "us-east-1"},
	}
}

// LoadFile loads configuration from path over Default.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands $VAR and ${VAR} in path fields.
func (c *Config) expandVariables() {
	c.StateDir = os.ExpandEnv(c.StateDir)
	c.Cache.Dir = os.ExpandEnv(c.Cache.Dir)
	c.Ledger.Dir = os.ExpandEnv(c.Ledger.Dir)
	c.Ledger.SQLitePath = os.ExpandEnv(c.Ledger.SQLitePath)
	c.Output.ArtifactFile = os.ExpandEnv(c.Output.ArtifactFile)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.StateDir == "" {
		errs = append(errs, errors.New("state_dir is required"))
	}
	if c.SaltMode != SaltNone && c.SaltMode != SaltIdentity {
		errs = append(errs, fmt.Errorf("salt_mode must be one of: %v", []SaltMode{SaltNone, SaltIdentity}))
	}

	if _, err := cache.ParseCompression(c.Cache.Compression); err != nil {
		errs = append(errs, fmt.Errorf("cache.compression: %w", err))
	}
	if c.Cache.Remote.Enabled && c.Cache.Remote.Bucket == "" {
		errs = append(errs, errors.New("cache.remote.bucket is required when the remote tier is enabled"))
	}

	switch c.Ledger.Backend {
	case LedgerFile, LedgerSQLite:
	case LedgerDynamoDB:
		if c.Ledger.Table == "" {
			errs = append(errs, errors.New("ledger.table is required for the dynamodb backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("ledger.backend must be one of: %v", []string{LedgerFile, LedgerSQLite, LedgerDynamoDB}))
	}

	if len(c.Gateways.Priority) == 0 {
		errs = append(errs, errors.New("gateways.priority must list at least one gateway"))
	}
	for i, g := range c.Gateways.Priority {
		switch g.Kind {
		case GatewayOpenAI, GatewayAnthropic:
			if g.APIKeyEnv == "" {
				errs = append(errs, fmt.Errorf("gateways.priority[%d]: api_key_env is required for %s", i, g.Kind))
			}
		case GatewayTemplate:
		default:
			errs = append(errs, fmt.Errorf("gateways.priority[%d]: unknown kind %q", i, g.Kind))
		}
	}

	if c.Cost.Threshold < 0 {
		errs = append(errs, errors.New("cost.threshold must not be negative"))
	}
	if len(c.Cost.Rates) > 0 {
		if err := cost.ValidateRates(c.Rates()); err != nil {
			errs = append(errs, fmt.Errorf("cost.rates: %w", err))
		}
	}

	if c.Publish.Enabled && c.Publish.Workspace == "" {
		errs = append(errs, errors.New("publish.workspace is required when publishing is enabled"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// CacheDir returns the local cache root.
func (c *Config) CacheDir() string {
	if c.Cache.Dir != "" {
		return c.Cache.Dir
	}
	return filepath.Join(c.StateDir, "cache")
}

// LedgerDir returns the file backend directory.
func (c *Config) LedgerDir() string {
	if c.Ledger.Dir != "" {
		return c.Ledger.Dir
	}
	return filepath.Join(c.StateDir, "deployments")
}

// SQLitePath returns the sqlite backend database path.
func (c *Config) SQLitePath() string {
	if c.Ledger.SQLitePath != "" {
		return c.Ledger.SQLitePath
	}
	return filepath.Join(c.StateDir, "ledger.db")
}

// Rates returns the configured rate table, or nil for the built-in one.
func (c *Config) Rates() []cost.Rate {
	if len(c.Cost.Rates) == 0 {
		return nil
	}
	rates := make([]cost.Rate, len(c.Cost.Rates))
	for i, r := range c.Cost.Rates {
		rates[i] = cost.Rate{Marker: r.Marker, Unit: ir.Dollars(r.Monthly)}
	}
	return rates
}

// Threshold returns the cost threshold, zero when disabled.
func (c *Config) Threshold() ir.USD {
	return ir.Dollars(c.Cost.Threshold)
}
