package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Gateway generates infrastructure code for a request.
type Gateway interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrEmptyOutput is returned when a gateway answers with nothing usable.
var ErrEmptyOutput = errors.New("gateway returned empty output")

// ErrNoGateways is returned by a Chain with nothing configured.
var ErrNoGateways = errors.New("no generation gateways configured")

// DefaultTimeout bounds one gateway attempt.
const DefaultTimeout = 60 * time.Second

// Chain tries gateways in order and returns the first success.
type Chain struct {
	gateways []Gateway
	timeout  time.Duration
	logger   *slog.Logger
}

// NewChain builds a Chain. A zero timeout uses DefaultTimeout; a nil logger
// uses slog.Default().
func NewChain(gateways []Gateway, timeout time.Duration, logger *slog.Logger) *Chain {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{gateways: gateways, timeout: timeout, logger: logger}
}

func (c *Chain) Name() string {
	names := make([]string, len(c.gateways))
	for i, g := range c.gateways {
		names[i] = g.Name()
	}
	return strings.Join(names, ",")
}

// Generate returns the first non-empty output. When every gateway fails the
// error joins each gateway's failure.
func (c *Chain) Generate(ctx context.Context, prompt string) (string, error) {
	text, _, err := c.GenerateFrom(ctx, prompt)
	return text, err
}

// GenerateFrom is Generate that also reports which gateway answered.
func (c *Chain) GenerateFrom(ctx context.Context, prompt string) (string, string, error) {
	if len(c.gateways) == 0 {
		return "", "", ErrNoGateways
	}

	var errs []error
	for _, g := range c.gateways {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}

		text, err := c.attempt(ctx, g, prompt)
		if err != nil {
			c.logger.Warn("gateway failed, trying next", "gateway", g.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", g.Name(), err))
			continue
		}
		c.logger.Debug("gateway answered", "gateway", g.Name(), "bytes", len(text))
		return text, g.Name(), nil
	}
	return "", "", errors.Join(errs...)
}

func (c *Chain) attempt(ctx context.Context, g Gateway, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, err := g.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyOutput
	}
	return text, nil
}

type tagsKey struct{}

// WithTags attaches the tags generated resources must carry. LLM gateways
// render them into the system prompt.
func WithTags(ctx context.Context, tags map[string]string) context.Context {
	return context.WithValue(ctx, tagsKey{}, tags)
}

// TagsFrom returns the tags attached by WithTags.
func TagsFrom(ctx context.Context) map[string]string {
	tags, _ := ctx.Value(tagsKey{}).(map[string]string)
	return tags
}
