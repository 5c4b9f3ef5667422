package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lexlapax/go-llms/pkg/llm/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingGenerator captures the last request and returns a canned reply.
type recordingGenerator struct {
	reply    string
	err      error
	messages []domain.Message
	options  *domain.ProviderOptions
}

func (r *recordingGenerator) GenerateMessage(_ context.Context, messages []domain.Message, options ...domain.Option) (domain.Response, error) {
	r.messages = messages
	r.options = domain.DefaultOptions()
	for _, opt := range options {
		opt(r.options)
	}
	if r.err != nil {
		return domain.Response{}, r.err
	}
	return domain.Response{Content: r.reply}, nil
}

func TestLLM_Generate(t *testing.T) {
	gen := &recordingGenerator{reply: "```hcl\nresource \"aws_instance\" \"web\" {}\n```"}
	g := NewLLM("openai", gen)

	ctx := WithTags(context.Background(), map[string]string{
		"deployment_id": "dep-1",
		"cost_center":   "engineering",
	})
	text, err := g.Generate(ctx, "create an EC2 instance")
	require.NoError(t, err)
	assert.Equal(t, `resource "aws_instance" "web" {}`, text)

	require.Len(t, gen.messages, 2)
	assert.Equal(t, domain.RoleSystem, gen.messages[0].Role)
	assert.Equal(t, domain.RoleUser, gen.messages[1].Role)
	assert.Equal(t, 0.1, gen.options.Temperature)
	assert.Equal(t, 3000, gen.options.MaxTokens)
}

func TestLLM_Options(t *testing.T) {
	gen := &recordingGenerator{reply: "x"}
	g := NewLLM("anthropic", gen, WithTemperature(0.5), WithMaxTokens(100))

	_, err := g.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, 0.5, gen.options.Temperature)
	assert.Equal(t, 100, gen.options.MaxTokens)
	assert.Equal(t, "anthropic", g.Name())
}

func TestLLM_ProviderError(t *testing.T) {
	boom := errors.New("401 unauthorized")
	_, err := NewLLM("openai", &recordingGenerator{err: boom}).Generate(context.Background(), "p")
	assert.ErrorIs(t, err, boom)
}

func TestSystemPrompt_ListsTagsSorted(t *testing.T) {
	prompt := SystemPrompt(map[string]string{"z_tag": "1", "a_tag": "2"})
	assert.Contains(t, prompt, `- a_tag = "2"`)
	assert.Contains(t, prompt, `- z_tag = "1"`)
	assert.Less(t, strings.Index(prompt, "a_tag"), strings.Index(prompt, "z_tag"))
	assert.Contains(t, prompt, "Return ONLY Terraform code")
}

func TestNewProvider_Validation(t *testing.T) {
	_, err := NewProvider(KindOpenAI, "", "")
	assert.Error(t, err)

	_, err = NewProvider("cohere", "key", "")
	assert.Error(t, err)
}
