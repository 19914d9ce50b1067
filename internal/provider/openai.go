package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/llmrouter/gateway/internal/adapter/openai"
	"github.com/llmrouter/gateway/internal/apierror"
	"github.com/llmrouter/gateway/internal/config"
	"github.com/llmrouter/gateway/internal/unified"
)

// defaultUpstreamTimeout bounds every non-streaming upstream call
// (spec.md §6 "60 second default upstream timeout").
const defaultUpstreamTimeout = 60 * time.Second

// openaiDriver talks to any OpenAI-compatible ChatCompletion API: the real
// OpenAI API, or a compatible gateway like vLLM, Ollama, Groq, etc.
type openaiDriver struct {
	cfg    config.ProviderConfig
	client *http.Client
}

func newOpenAIDriver(cfg config.ProviderConfig) *openaiDriver {
	return &openaiDriver{cfg: cfg, client: &http.Client{Timeout: defaultUpstreamTimeout}}
}

func (d *openaiDriver) Name() string               { return d.cfg.Name }
func (d *openaiDriver) Kind() config.ProviderKind   { return config.KindOpenAI }

func (d *openaiDriver) Complete(ctx context.Context, nativeModel string, req *unified.Request) (*unified.Response, error) {
	native := openai.EncodeRequest(req)
	native.Model = nativeModel
	native.Stream = false

	body, err := json.Marshal(native)
	if err != nil {
		return nil, apierror.Internal(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, apierror.Internal(err)
	}
	d.setHeaders(ctx, httpReq)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, apierror.ConnectionFailed(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierror.ConnectionFailed(err)
	}
	if resp.StatusCode >= 400 {
		return nil, apierror.FromUpstreamStatus(resp.StatusCode, string(respBody))
	}

	var native2 openai.Response
	if err := json.Unmarshal(respBody, &native2); err != nil {
		return nil, apierror.Internal(fmt.Errorf("decoding upstream response: %w", err))
	}
	return openai.DecodeResponse(&native2), nil
}

func (d *openaiDriver) Stream(ctx context.Context, nativeModel string, req *unified.Request) (<-chan StreamEvent, error) {
	native := openai.EncodeRequest(req)
	native.Model = nativeModel
	native.Stream = true

	body, err := json.Marshal(native)
	if err != nil {
		return nil, apierror.Internal(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, apierror.Internal(err)
	}
	d.setHeaders(ctx, httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, apierror.ConnectionFailed(err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, apierror.FromUpstreamStatus(resp.StatusCode, string(respBody))
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				return
			}
			var chunk openai.Chunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				select {
				case out <- StreamEvent{Err: apierror.Internal(err)}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case out <- StreamEvent{Chunk: openai.DecodeChunk(&chunk)}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case out <- StreamEvent{Err: apierror.ConnectionFailed(err)}:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}

func (d *openaiDriver) ListModels(ctx context.Context) ([]unified.Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.BaseURL+"/models", nil)
	if err != nil {
		return nil, apierror.Internal(err)
	}
	d.setHeaders(ctx, httpReq)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, apierror.ConnectionFailed(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierror.ConnectionFailed(err)
	}
	if resp.StatusCode >= 400 {
		return nil, apierror.FromUpstreamStatus(resp.StatusCode, string(respBody))
	}

	var list openai.ModelList
	if err := json.Unmarshal(respBody, &list); err != nil {
		return nil, apierror.Internal(err)
	}

	models := make([]unified.Model, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, unified.Model{ID: m.ID, Created: m.Created, OwnedBy: m.OwnedBy})
	}
	return models, nil
}

// setHeaders applies header rules before attaching credentials, so a
// configured rule can never clobber the credential header — credential
// attachment is last and authoritative (spec.md §6).
func (d *openaiDriver) setHeaders(ctx context.Context, req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if inbound, ok := InboundHeadersFromContext(ctx); ok {
		ApplyHeaderRules(req.Header, inbound, d.cfg.Headers)
	}
	if d.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	} else if d.cfg.ForwardToken {
		if token, ok := BearerTokenFromContext(ctx); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
}
