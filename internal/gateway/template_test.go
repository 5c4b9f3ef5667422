package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC) }

func TestTemplate_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	tmpl := NewTemplate("eu-west-1", fixedClock)

	tests := []struct {
		golden string
		prompt string
	}{
		{"template_instance", "create an EC2 instance"},
		{"template_network", "set up a VPC with a public subnet"},
	}
	for _, tt := range tests {
		t.Run(tt.golden, func(t *testing.T) {
			out, err := tmpl.Generate(context.Background(), tt.prompt)
			require.NoError(t, err)
			g.Assert(t, tt.golden, []byte(out))
		})
	}
}

func TestTemplate_NetworkKeywords(t *testing.T) {
	for _, p := range []string{"VPC please", "private NETWORK", "two subnets"} {
		assert.True(t, wantsNetwork(p), p)
	}
	assert.False(t, wantsNetwork("a web server"))
}

func TestTemplate_Defaults(t *testing.T) {
	tmpl := NewTemplate("", nil)
	out, err := tmpl.Generate(context.Background(), "server")
	require.NoError(t, err)
	assert.Contains(t, out, `region = "us-east-1"`)
	assert.Equal(t, "template", tmpl.Name())
}
