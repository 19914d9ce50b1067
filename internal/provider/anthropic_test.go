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

func TestAnthropicDriver_CompleteSendsAPIKeyAndVersionHeader(t *testing.T) {
	var gotKey, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		json.NewEncoder(w).Encode(map[string]any{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-3-opus-20240229",
			"content":     []map[string]any{{"type": "text", "text": "hi"}},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 1, "output_tokens": 2},
		})
	}))
	defer srv.Close()

	d := newAnthropicDriver(config.ProviderConfig{Name: "anthropic-prod", BaseURL: srv.URL, APIKey: "sk-ant-test"})
	resp, err := d.Complete(context.Background(), "claude-3-opus-20240229", &unified.Request{
		Messages: []unified.Message{{Role: unified.RoleUser, Text: "hello"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "sk-ant-test", gotKey)
	assert.Equal(t, "2023-06-01", gotVersion)
	require.Len(t, resp.Choices, 1)
	require.Len(t, resp.Choices[0].Message.Blocks, 1)
	assert.Equal(t, "hi", resp.Choices[0].Message.Blocks[0].Text)
}

func TestAnthropicDriver_CompleteUpstreamErrorBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad request"}}`))
	}))
	defer srv.Close()

	d := newAnthropicDriver(config.ProviderConfig{Name: "anthropic-prod", BaseURL: srv.URL})
	_, err := d.Complete(context.Background(), "claude-3-opus-20240229", &unified.Request{
		Messages: []unified.Message{{Role: unified.RoleUser, Text: "hello"}},
	})
	assert.Error(t, err)
}

func TestAnthropicDriver_StreamFoldsNamedEventsUntilMessageStop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		writeEvent := func(eventType string, payload map[string]any) {
			data, _ := json.Marshal(payload)
			io.WriteString(w, "event: "+eventType+"\n")
			io.WriteString(w, "data: "+string(data)+"\n\n")
			flusher.Flush()
		}

		writeEvent("message_start", map[string]any{
			"type":    "message_start",
			"message": map[string]any{"id": "msg_1", "model": "claude-3-opus-20240229", "role": "assistant", "usage": map[string]any{"input_tokens": 5, "output_tokens": 0}},
		})
		writeEvent("content_block_start", map[string]any{"type": "content_block_start", "index": 0, "content_block": map[string]any{"type": "text", "text": ""}})
		writeEvent("content_block_delta", map[string]any{"type": "content_block_delta", "index": 0, "delta": map[string]any{"type": "text_delta", "text": "hi"}})
		writeEvent("content_block_stop", map[string]any{"type": "content_block_stop", "index": 0})
		writeEvent("message_delta", map[string]any{"type": "message_delta", "delta": map[string]any{"stop_reason": "end_turn"}, "usage": map[string]any{"output_tokens": 2}})
		writeEvent("message_stop", map[string]any{"type": "message_stop"})
	}))
	defer srv.Close()

	d := newAnthropicDriver(config.ProviderConfig{Name: "anthropic-prod", BaseURL: srv.URL})
	events, err := d.Stream(context.Background(), "claude-3-opus-20240229", &unified.Request{
		Messages: []unified.Message{{Role: unified.RoleUser, Text: "hello"}},
	})
	require.NoError(t, err)

	var sawText bool
	for ev := range events {
		require.NoError(t, ev.Err)
		for _, choice := range ev.Chunk.Choices {
			if choice.Delta.Content == "hi" {
				sawText = true
			}
		}
	}
	assert.True(t, sawText, "the folded stream should surface the text_delta content")
}

func TestAnthropicDriver_ListModelsMapsIDsAndCreatedAt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "claude-3-opus-20240229", "type": "model", "created_at": 1700000000},
			},
			"has_more": false,
		})
	}))
	defer srv.Close()

	d := newAnthropicDriver(config.ProviderConfig{Name: "anthropic-prod", BaseURL: srv.URL})
	models, err := d.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "claude-3-opus-20240229", models[0].ID)
	assert.EqualValues(t, 1700000000, models[0].Created)
}
