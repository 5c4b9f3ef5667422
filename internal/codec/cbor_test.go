package codec

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name    string            `json:"name"`
	Size    int               `json:"size"`
	Labels  map[string]string `json:"labels,omitempty"`
	Written time.Time         `json:"written"`
}

func TestMarshalDeterministic(t *testing.T) {
	v := sample{
		Name:    "main.tf",
		Size:    42,
		Labels:  map[string]string{"z": "1", "a": "2", "m": "3"},
		Written: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC),
	}

	first, err := Marshal(v)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Marshal(v)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(first, again), "encoding must be byte-identical")
	}
}

func TestUnmarshalIntoStruct(t *testing.T) {
	v := sample{Name: "main.tf", Size: 7, Written: time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)}
	data, err := Marshal(v)
	require.NoError(t, err)

	var got sample
	require.NoError(t, Unmarshal(data, &got))
	assert.Equal(t, v.Name, got.Name)
	assert.Equal(t, v.Size, got.Size)
	assert.True(t, v.Written.Equal(got.Written))
}

func TestUnmarshalAnyUsesStringMaps(t *testing.T) {
	data, err := Marshal(map[string]any{"outer": map[string]any{"inner": "x"}})
	require.NoError(t, err)

	var got any
	require.NoError(t, Unmarshal(data, &got))
	outer, ok := got.(map[string]any)
	require.True(t, ok)
	_, ok = outer["outer"].(map[string]any)
	assert.True(t, ok, "nested maps decode as map[string]any")
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(map[string]int{"a": 1})
	require.NoError(t, err)

	diag, err := Diagnose(data)
	require.NoError(t, err)
	assert.Contains(t, diag, `"a"`)
	assert.Contains(t, diag, "1")
}
