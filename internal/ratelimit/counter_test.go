package ratelimit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmrouter/gateway/internal/unified"
)

func TestCounter_GrowsWithContent(t *testing.T) {
	c, err := NewCounter()
	require.NoError(t, err)

	short := &unified.Request{Messages: []unified.Message{{Role: unified.RoleUser, Text: "hi"}}}
	long := &unified.Request{Messages: []unified.Message{
		{Role: unified.RoleUser, Text: "This is a considerably longer message with many more tokens in it."},
	}}

	assert.Greater(t, c.Count(long), c.Count(short))
}

func TestCounter_CountsSystemPromptAndTools(t *testing.T) {
	c, err := NewCounter()
	require.NoError(t, err)

	base := &unified.Request{Messages: []unified.Message{{Role: unified.RoleUser, Text: "hi"}}}
	withSystem := &unified.Request{
		System:   "You are a helpful assistant with detailed instructions.",
		Messages: base.Messages,
	}
	withTools := &unified.Request{
		Messages: base.Messages,
		Tools: []unified.Tool{{Function: unified.Function{
			Name:        "get_weather",
			Description: "Look up the current weather for a city",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}}}`),
		}}},
	}

	assert.Greater(t, c.Count(withSystem), c.Count(base))
	assert.Greater(t, c.Count(withTools), c.Count(base))
}

func TestCounter_DeterministicAcrossCalls(t *testing.T) {
	c, err := NewCounter()
	require.NoError(t, err)

	req := &unified.Request{Messages: []unified.Message{{Role: unified.RoleUser, Text: "deterministic please"}}}
	assert.Equal(t, c.Count(req), c.Count(req))
}
