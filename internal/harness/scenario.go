package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario defines a pipeline scenario: an environment, a sequence of runs,
// and assertions over the runs and the final ledger.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Identities are handed out in order, one per run.
	Identities []string `yaml:"identities"`

	// Setup configures the environment the runs share.
	Setup Setup `yaml:"setup"`

	// Runs are executed in order against the same cache and ledger.
	Runs []RunStep `yaml:"runs"`

	// Assertions validate the run trace and the final ledger.
	Assertions []Assertion `yaml:"assertions"`
}

// Setup configures the scenario environment.
type Setup struct {
	// Gateways lists gateways in priority order: "template", "failing", or
	// "empty". Defaults to [template].
	Gateways []string `yaml:"gateways,omitempty"`

	// Remote enables the in-memory S3 tier.
	Remote bool `yaml:"remote,omitempty"`

	// RemoteFailing makes every remote write fail.
	RemoteFailing bool `yaml:"remote_failing,omitempty"`

	// Ledger is "sqlite" (in-memory, default) or "file".
	Ledger string `yaml:"ledger,omitempty"`

	// SaltMode is "none" (default) or "identity".
	SaltMode string `yaml:"salt_mode,omitempty"`

	// Threshold is the cost threshold in dollars, e.g. "10.00".
	Threshold string `yaml:"threshold,omitempty"`

	// Tags are applied to every run.
	Tags map[string]string `yaml:"tags,omitempty"`

	// Publish configures the fake publish endpoint: "" (no publisher),
	// "ok", "create_fail", "upload_fail", or "no_token".
	Publish string `yaml:"publish,omitempty"`

	// Seed pre-populates the remote tier.
	Seed []SeedObject `yaml:"seed,omitempty"`
}

// SeedObject places the template artifact for Request in the remote tier.
type SeedObject struct {
	Request string `yaml:"request"`
	Salt    string `yaml:"salt,omitempty"`
}

// RunStep is one pipeline run.
type RunStep struct {
	Request string            `yaml:"request"`
	Salt    string            `yaml:"salt,omitempty"`
	Publish bool              `yaml:"publish,omitempty"`
	Tags    map[string]string `yaml:"tags,omitempty"`

	// Expect is matched against the run's trace event (subset match).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion validates the trace or the final ledger.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Where selects runs (run_contains, run_count) or a record (final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect holds expected record fields for final_state (subset match).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is used by run_count, gateway_calls, ledger_count, remote_puts.
	Count int `yaml:"count,omitempty"`

	// Value is the expected total for total_cost.
	Value string `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertRunContains  = "run_contains"
	AssertRunCount     = "run_count"
	AssertGatewayCalls = "gateway_calls"
	AssertLedgerCount  = "ledger_count"
	AssertFinalState   = "final_state"
	AssertTotalCost    = "total_cost"
	AssertRemotePuts   = "remote_puts"
)

// Gateway names accepted in Setup.Gateways.
const (
	GatewayTemplate = "template"
	GatewayFailing  = "failing"
	GatewayEmpty    = "empty"
)

// Publish endpoint behaviours accepted in Setup.Publish.
const (
	PublishOK         = "ok"
	PublishCreateFail = "create_fail"
	PublishUploadFail = "upload_fail"
	PublishNoToken    = "no_token"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Runs) == 0 {
		return fmt.Errorf("runs list is required and must be non-empty")
	}
	if len(s.Identities) < len(s.Runs) {
		return fmt.Errorf("identities: need %d, have %d", len(s.Runs), len(s.Identities))
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, g := range s.Setup.Gateways {
		if !slices.Contains([]string{GatewayTemplate, GatewayFailing, GatewayEmpty}, g) {
			return fmt.Errorf("setup.gateways[%d]: unknown gateway %q", i, g)
		}
	}
	switch s.Setup.Ledger {
	case "", "sqlite", "file":
	default:
		return fmt.Errorf("setup.ledger: unknown backend %q", s.Setup.Ledger)
	}
	switch s.Setup.SaltMode {
	case "", "none", "identity":
	default:
		return fmt.Errorf("setup.salt_mode: unknown mode %q", s.Setup.SaltMode)
	}
	switch s.Setup.Publish {
	case "", PublishOK, PublishCreateFail, PublishUploadFail, PublishNoToken:
	default:
		return fmt.Errorf("setup.publish: unknown behaviour %q", s.Setup.Publish)
	}
	if len(s.Setup.Seed) > 0 && !s.Setup.Remote {
		return fmt.Errorf("setup.seed requires setup.remote")
	}

	for i, run := range s.Runs {
		if run.Request == "" {
			return fmt.Errorf("runs[%d]: request is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRunContains:
		if len(a.Where) == 0 {
			return fmt.Errorf("assertions[%d]: where is required for run_contains", index)
		}
	case AssertRunCount, AssertGatewayCalls, AssertLedgerCount, AssertRemotePuts:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertFinalState:
		if len(a.Where) == 0 {
			return fmt.Errorf("assertions[%d]: where is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertTotalCost:
		if a.Value == "" {
			return fmt.Errorf("assertions[%d]: value is required for total_cost", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
