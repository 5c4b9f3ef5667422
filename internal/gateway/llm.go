package gateway

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lexlapax/go-llms/pkg/llm/domain"
	"github.com/lexlapax/go-llms/pkg/llm/provider"
)

// Provider kinds accepted by NewProvider.
const (
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
)

// Default models per provider kind.
var defaultModels = map[string]string{
	KindOpenAI:    "gpt-3.5-turbo",
	KindAnthropic: "claude-3-haiku-20240307",
}

// MessageGenerator is the part of domain.Provider the LLM gateway uses.
type MessageGenerator interface {
	GenerateMessage(ctx context.Context, messages []domain.Message, options ...domain.Option) (domain.Response, error)
}

// NewProvider builds a go-llms provider of kind. An empty model uses the
// kind's default.
func NewProvider(kind, apiKey, model string) (domain.Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s provider: no API key", kind)
	}
	if model == "" {
		model = defaultModels[kind]
	}
	switch kind {
	case KindOpenAI:
		return provider.NewOpenAIProvider(apiKey, model), nil
	case KindAnthropic:
		return provider.NewAnthropicProvider(apiKey, model), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", kind)
	}
}

// LLM adapts a go-llms provider to Gateway.
type LLM struct {
	name        string
	gen         MessageGenerator
	temperature float64
	maxTokens   int
}

// LLMOption configures an LLM gateway.
type LLMOption func(*LLM)

// WithTemperature sets the sampling temperature. Defaults to 0.1.
func WithTemperature(t float64) LLMOption {
	return func(l *LLM) { l.temperature = t }
}

// WithMaxTokens caps the response length. Defaults to 3000.
func WithMaxTokens(n int) LLMOption {
	return func(l *LLM) { l.maxTokens = n }
}

// NewLLM wraps gen under name.
func NewLLM(name string, gen MessageGenerator, opts ...LLMOption) *LLM {
	l := &LLM{name: name, gen: gen, temperature: 0.1, maxTokens: 3000}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *LLM) Name() string { return l.name }

// Generate asks the model for Terraform and strips any markdown fence from
// the answer.
func (l *LLM) Generate(ctx context.Context, prompt string) (string, error) {
	messages := []domain.Message{
		domain.NewTextMessage(domain.RoleSystem, SystemPrompt(TagsFrom(ctx))),
		domain.NewTextMessage(domain.RoleUser, "Generate FinOps-aware Terraform for: "+prompt),
	}
	resp, err := l.gen.GenerateMessage(ctx, messages,
		domain.WithTemperature(l.temperature),
		domain.WithMaxTokens(l.maxTokens),
	)
	if err != nil {
		return "", err
	}
	return CleanCode(resp.Content), nil
}

// SystemPrompt instructs the model to emit cost-conscious Terraform carrying
// tags on every resource.
func SystemPrompt(tags map[string]string) string {
	var b strings.Builder
	b.WriteString("You are a FinOps-aware Terraform expert. Generate cost-conscious Terraform for AWS.\n\n")
	b.WriteString("CRITICAL REQUIREMENTS:\n")
	b.WriteString("1. Add these tags to ALL resources for cost tracking:\n")

	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "   - %s = %q\n", k, tags[k])
	}

	b.WriteString("2. Use appropriate instance sizes and enable detailed monitoring only when needed.\n")
	b.WriteString("3. Return ONLY Terraform code, no explanations.\n")
	b.WriteString("4. Use AWS provider version ~> 5.0.\n")
	b.WriteString("5. Follow Terraform best practices.\n")
	return b.String()
}
