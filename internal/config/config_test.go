package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/promptinfra/internal/ir"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "promptinfra.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, SaltNone, cfg.SaltMode)
	assert.Equal(t, LedgerFile, cfg.Ledger.Backend)
	assert.False(t, cfg.Cache.Remote.Enabled)
	assert.False(t, cfg.Publish.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Publish.Timeout)
	assert.Equal(t, filepath.Join(".promptinfra", "cache"), cfg.CacheDir())
	assert.Equal(t, filepath.Join(".promptinfra", "deployments"), cfg.LedgerDir())
	assert.Equal(t, filepath.Join(".promptinfra", "ledger.db"), cfg.SQLitePath())
	assert.Nil(t, cfg.Rates())
	assert.Equal(t, ir.USD(0), cfg.Threshold())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
state_dir: /var/lib/promptinfra
salt_mode: identity
cache:
  compression: lz4
  remote:
    enabled: true
    bucket: infra-artifacts
    timeout: 3s
ledger:
  backend: sqlite
gateways:
  priority:
    - kind: anthropic
      model: claude-3-haiku-20240307
      api_key_env: CLAUDE_KEY
    - kind: template
cost:
  threshold: 50.25
  rates:
    - marker: t3.micro
      monthly: 7.5
publish:
  enabled: true
  organization: acme
  workspace: staging
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, SaltIdentity, cfg.SaltMode)
	assert.Equal(t, "lz4", cfg.Cache.Compression)
	assert.Equal(t, "infra-artifacts", cfg.Cache.Remote.Bucket)
	assert.Equal(t, "terraform/", cfg.Cache.Remote.Prefix, "unset fields keep defaults")
	assert.Equal(t, 3*time.Second, cfg.Cache.Remote.Timeout)
	assert.Equal(t, "/var/lib/promptinfra/ledger.db", cfg.SQLitePath())
	require.Len(t, cfg.Gateways.Priority, 2)
	assert.Equal(t, GatewayAnthropic, cfg.Gateways.Priority[0].Kind)
	assert.Equal(t, ir.Cents(5025), cfg.Threshold())

	rates := cfg.Rates()
	require.Len(t, rates, 1)
	assert.Equal(t, "t3.micro", rates[0].Marker)
	assert.Equal(t, ir.Cents(750), rates[0].Unit)

	assert.Equal(t, "https://app.terraform.io", cfg.Publish.BaseURL)
	assert.Equal(t, "staging", cfg.Publish.Workspace)
}

func TestLoadFileExpandsPaths(t *testing.T) {
	t.Setenv("PROMPTINFRA_TEST_HOME", "/srv/infra")
	path := writeConfig(t, "state_dir: ${PROMPTINFRA_TEST_HOME}/state\noutput:\n  artifact_file: $PROMPTINFRA_TEST_HOME/main.tf\n")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/infra/state", cfg.StateDir)
	assert.Equal(t, "/srv/infra/main.tf", cfg.Output.ArtifactFile)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")

	_, err = LoadFile(writeConfig(t, "cache: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestValidateCollectsEveryError(t *testing.T) {
	cfg := Default()
	cfg.SaltMode = "random"
	cfg.Cache.Compression = "brotli"
	cfg.Cache.Remote.Enabled = true
	cfg.Ledger.Backend = "postgres"
	cfg.Gateways.Priority = []GatewayConfig{{Kind: GatewayOpenAI}, {Kind: "bard"}}
	cfg.Cost.Threshold = -1
	cfg.Publish.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"salt_mode",
		"cache.compression",
		"cache.remote.bucket",
		"ledger.backend",
		"gateways.priority[0]: api_key_env",
		`gateways.priority[1]: unknown kind "bard"`,
		"cost.threshold",
		"publish.workspace",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateDynamoNeedsTable(t *testing.T) {
	cfg := Default()
	cfg.Ledger.Backend = LedgerDynamoDB
	require.NoError(t, cfg.Validate())

	cfg.Ledger.Table = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger.table")
}

func TestValidateRejectsBadRates(t *testing.T) {
	cfg := Default()
	cfg.Cost.Rates = []RateConfig{{Marker: "", Monthly: 1}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cost.rates")
}

func TestResolveReadsNamedVariables(t *testing.T) {
	env := map[string]string{
		"OPENAI_API_KEY": "sk-openai",
		"TF_API_TOKEN":   "tf-token",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	secrets := Default().Resolve(lookup)
	assert.Equal(t, []string{"sk-openai", "", ""}, secrets.GatewayKeys)
	assert.Equal(t, "tf-token", secrets.PublishToken)
}
