package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmrouter/gateway/internal/config"
	"github.com/llmrouter/gateway/internal/unified"
)

func TestGoogleDriver_CompletePassesAPIKeyAsQueryParam(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content":      map[string]any{"role": "model", "parts": []map[string]any{{"text": "hi"}}},
				"finishReason": "STOP",
				"index":        0,
			}},
			"usageMetadata": map[string]any{"promptTokenCount": 1, "candidatesTokenCount": 2, "totalTokenCount": 3},
		})
	}))
	defer srv.Close()

	d := newGoogleDriver(config.ProviderConfig{Name: "google-prod", BaseURL: srv.URL, APIKey: "gk-test"})
	resp, err := d.Complete(context.Background(), "gemini-1.5-pro", &unified.Request{
		Messages: []unified.Message{{Role: unified.RoleUser, Text: "hello"}},
	})
	require.NoError(t, err)

	assert.True(t, strings.Contains(gotPath, "/models/gemini-1.5-pro:generateContent"))
	assert.True(t, strings.Contains(gotPath, "key=gk-test"))
	require.Len(t, resp.Choices, 1)
	require.Len(t, resp.Choices[0].Message.Blocks, 1)
	assert.Equal(t, "hi", resp.Choices[0].Message.Blocks[0].Text)
}

func TestGoogleDriver_CompleteUpstreamErrorBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"forbidden"}}`))
	}))
	defer srv.Close()

	d := newGoogleDriver(config.ProviderConfig{Name: "google-prod", BaseURL: srv.URL, APIKey: "gk-test"})
	_, err := d.Complete(context.Background(), "gemini-1.5-pro", &unified.Request{
		Messages: []unified.Message{{Role: unified.RoleUser, Text: "hello"}},
	})
	assert.Error(t, err)
}

func TestGoogleDriver_ListModelsStripsModelsPrefix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]any{{"name": "models/gemini-1.5-pro"}},
		})
	}))
	defer srv.Close()

	d := newGoogleDriver(config.ProviderConfig{Name: "google-prod", BaseURL: srv.URL, APIKey: "gk-test"})
	models, err := d.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "gemini-1.5-pro", models[0].ID)
}
