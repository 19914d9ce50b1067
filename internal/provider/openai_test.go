package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmrouter/gateway/internal/config"
	"github.com/llmrouter/gateway/internal/unified"
)

func TestOpenAIDriver_CompleteSendsResolvedModelAndBearerToken(t *testing.T) {
	var gotAuth, gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Model string `json:"model"`
		}
		json.Unmarshal(body, &req)
		gotModel = req.Model

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "hi there"},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 2, "total_tokens": 3},
		})
	}))
	defer srv.Close()

	d := newOpenAIDriver(config.ProviderConfig{Name: "openai-prod", BaseURL: srv.URL, APIKey: "sk-test"})
	resp, err := d.Complete(context.Background(), "gpt-4o", &unified.Request{
		Messages: []unified.Message{{Role: unified.RoleUser, Text: "hello"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o", gotModel)
	assert.Equal(t, "gpt-4o", resp.Model)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "hi there", resp.Choices[0].Message.Text)
}

func TestOpenAIDriver_CompleteUpstreamErrorBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited upstream"}}`))
	}))
	defer srv.Close()

	d := newOpenAIDriver(config.ProviderConfig{Name: "openai-prod", BaseURL: srv.URL})
	_, err := d.Complete(context.Background(), "gpt-4o", &unified.Request{
		Messages: []unified.Message{{Role: unified.RoleUser, Text: "hello"}},
	})
	assert.Error(t, err)
}

func TestOpenAIDriver_StreamParsesChunksAndStopsAtDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		io.WriteString(w, "data: {\"id\":\"1\",\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hi\"}}]}\n\n")
		flusher.Flush()
		io.WriteString(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	d := newOpenAIDriver(config.ProviderConfig{Name: "openai-prod", BaseURL: srv.URL})
	events, err := d.Stream(context.Background(), "gpt-4o", &unified.Request{
		Messages: []unified.Message{{Role: unified.RoleUser, Text: "hello"}},
	})
	require.NoError(t, err)

	var chunks []*unified.Chunk
	for ev := range events {
		require.NoError(t, ev.Err)
		chunks = append(chunks, ev.Chunk)
	}
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0].Choices, 1)
	assert.Equal(t, "hi", chunks[0].Choices[0].Delta.Content)
}

func TestOpenAIDriver_ListModelsPrefixesNothingAndReturnsIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"id": "gpt-4o", "created": 1, "owned_by": "openai"},
				{"id": "gpt-3.5-turbo", "created": 2, "owned_by": "openai"},
			},
		})
	}))
	defer srv.Close()

	d := newOpenAIDriver(config.ProviderConfig{Name: "openai-prod", BaseURL: srv.URL})
	models, err := d.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "gpt-4o", models[0].ID)
}

func TestOpenAIDriver_ForwardsInboundTokenWhenConfigured(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"id": "x", "object": "chat.completion", "model": "gpt-4o",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": "ok"}, "finish_reason": "stop"}},
		})
	}))
	defer srv.Close()

	d := newOpenAIDriver(config.ProviderConfig{Name: "openai-prod", BaseURL: srv.URL, ForwardToken: true})
	ctx := WithBearerToken(context.Background(), "caller-supplied-token")
	_, err := d.Complete(ctx, "gpt-4o", &unified.Request{Messages: []unified.Message{{Role: unified.RoleUser, Text: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "Bearer caller-supplied-token", gotAuth)
}
