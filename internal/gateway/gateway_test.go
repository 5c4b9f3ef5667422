package gateway

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGateway answers with a fixed result and counts calls.
type stubGateway struct {
	name  string
	text  string
	err   error
	delay time.Duration
	calls int
}

func (s *stubGateway) Name() string { return s.name }

func (s *stubGateway) Generate(ctx context.Context, _ string) (string, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.text, s.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestChain_FirstSuccessWins(t *testing.T) {
	first := &stubGateway{name: "openai", text: "resource \"a\" \"b\" {}"}
	second := &stubGateway{name: "anthropic", text: "other"}
	chain := NewChain([]Gateway{first, second}, time.Second, quietLogger())

	text, from, err := chain.GenerateFrom(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, first.text, text)
	assert.Equal(t, "openai", from)
	assert.Equal(t, 0, second.calls)
}

func TestChain_FallsThroughInPriorityOrder(t *testing.T) {
	failing := &stubGateway{name: "openai", err: errors.New("rate limited")}
	empty := &stubGateway{name: "anthropic", text: "  \n"}
	fallback := &stubGateway{name: "template", text: "resource"}
	chain := NewChain([]Gateway{failing, empty, fallback}, time.Second, quietLogger())

	text, from, err := chain.GenerateFrom(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "resource", text)
	assert.Equal(t, "template", from)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, empty.calls)
}

func TestChain_AllFail(t *testing.T) {
	rate := errors.New("rate limited")
	chain := NewChain([]Gateway{
		&stubGateway{name: "openai", err: rate},
		&stubGateway{name: "anthropic", text: ""},
	}, time.Second, quietLogger())

	_, err := chain.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, rate)
	assert.ErrorIs(t, err, ErrEmptyOutput)
	assert.Contains(t, err.Error(), "openai")
	assert.Contains(t, err.Error(), "anthropic")
}

func TestChain_Empty(t *testing.T) {
	_, err := NewChain(nil, 0, nil).Generate(context.Background(), "p")
	assert.ErrorIs(t, err, ErrNoGateways)
}

func TestChain_TimeoutMovesOn(t *testing.T) {
	slow := &stubGateway{name: "slow", text: "late", delay: time.Second}
	fast := &stubGateway{name: "fast", text: "ok"}
	chain := NewChain([]Gateway{slow, fast}, 20*time.Millisecond, quietLogger())

	text, from, err := chain.GenerateFrom(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, "fast", from)
}

func TestChain_CancelledContext(t *testing.T) {
	g := &stubGateway{name: "g", text: "x"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewChain([]Gateway{g}, time.Second, quietLogger()).Generate(ctx, "p")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, g.calls)
}

func TestChain_Name(t *testing.T) {
	chain := NewChain([]Gateway{&stubGateway{name: "a"}, &stubGateway{name: "b"}}, 0, nil)
	assert.Equal(t, "a,b", chain.Name())
}

func TestTags_RoundTrip(t *testing.T) {
	assert.Nil(t, TagsFrom(context.Background()))

	tags := map[string]string{"deployment_id": "d1"}
	assert.Equal(t, tags, TagsFrom(WithTags(context.Background(), tags)))
}
