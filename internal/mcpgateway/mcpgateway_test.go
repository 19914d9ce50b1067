package mcpgateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool() Tool {
	return Tool{
		Name:        "echo",
		Description: "Echoes back the provided message",
		Parameters: map[string]any{
			"type":                 "object",
			"properties":           map[string]any{"message": map[string]any{"type": "string"}},
			"required":             []any{"message"},
			"additionalProperties": false,
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			return args["message"], nil
		},
	}
}

func TestRegistry_SearchMatchesNameAndDescriptionCaseInsensitively(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool()))
	require.NoError(t, r.Register(Tool{Name: "weather", Description: "Looks up current weather", Handler: func(context.Context, map[string]any) (any, error) { return nil, nil }}))

	assert.Equal(t, []SearchResult{{Name: "echo", Description: "Echoes back the provided message"}}, r.Search("ECHO"))
	assert.Equal(t, []SearchResult{{Name: "weather", Description: "Looks up current weather"}}, r.Search("current"))
}

func TestRegistry_SearchEmptyQueryReturnsAllSortedByName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Tool{Name: "zeta", Handler: func(context.Context, map[string]any) (any, error) { return nil, nil }}))
	require.NoError(t, r.Register(Tool{Name: "alpha", Handler: func(context.Context, map[string]any) (any, error) { return nil, nil }}))

	results := r.Search("")
	require.Len(t, results, 2)
	assert.Equal(t, "alpha", results[0].Name)
	assert.Equal(t, "zeta", results[1].Name)
}

func TestRegistry_ExecuteRunsHandlerWhenArgumentsValid(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool()))

	result, err := r.Execute(context.Background(), "echo", map[string]any{"message": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
}

func TestRegistry_ExecuteRejectsArgumentsViolatingSchema(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool()))

	_, err := r.Execute(context.Background(), "echo", map[string]any{"message": 42})
	assert.Error(t, err, "a non-string message should fail schema validation")
}

func TestRegistry_ExecuteRejectsMissingRequiredArgument(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool()))

	_, err := r.Execute(context.Background(), "echo", map[string]any{})
	assert.Error(t, err)
}

func TestRegistry_ExecuteUnknownToolFails(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), "missing", nil)
	assert.Error(t, err)
}

func TestRegistry_ExecuteWithoutParametersSkipsValidation(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Tool{
		Name:    "noop",
		Handler: func(_ context.Context, args map[string]any) (any, error) { return len(args), nil },
	}))

	result, err := r.Execute(context.Background(), "noop", map[string]any{"anything": true})
	require.NoError(t, err)
	assert.Equal(t, 1, result)
}
