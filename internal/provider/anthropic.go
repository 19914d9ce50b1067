package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/llmrouter/gateway/internal/adapter/anthropic"
	"github.com/llmrouter/gateway/internal/apierror"
	"github.com/llmrouter/gateway/internal/config"
	"github.com/llmrouter/gateway/internal/unified"
)

// anthropicDriver talks to the Anthropic Messages API.
type anthropicDriver struct {
	cfg    config.ProviderConfig
	client *http.Client
}

func newAnthropicDriver(cfg config.ProviderConfig) *anthropicDriver {
	return &anthropicDriver{cfg: cfg, client: &http.Client{Timeout: defaultUpstreamTimeout}}
}

func (d *anthropicDriver) Name() string             { return d.cfg.Name }
func (d *anthropicDriver) Kind() config.ProviderKind { return config.KindAnthropic }

func (d *anthropicDriver) Complete(ctx context.Context, nativeModel string, req *unified.Request) (*unified.Response, error) {
	native := anthropic.EncodeRequest(req)
	native.Model = nativeModel
	native.Stream = false

	body, err := json.Marshal(native)
	if err != nil {
		return nil, apierror.Internal(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+"/messages", bytes.NewReader(body))
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

	var native2 anthropic.Response
	if err := json.Unmarshal(respBody, &native2); err != nil {
		return nil, apierror.Internal(err)
	}
	return anthropic.DecodeResponse(&native2)
}

func (d *anthropicDriver) Stream(ctx context.Context, nativeModel string, req *unified.Request) (<-chan StreamEvent, error) {
	native := anthropic.EncodeRequest(req)
	native.Model = nativeModel
	native.Stream = true

	body, err := json.Marshal(native)
	if err != nil {
		return nil, apierror.Internal(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+"/messages", bytes.NewReader(body))
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

		folder := anthropic.NewStreamFolder()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		var eventType string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				eventType = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				var ev anthropic.Event
				if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
					select {
					case out <- StreamEvent{Err: apierror.Internal(err)}:
					case <-ctx.Done():
					}
					return
				}
				if ev.Type == "" {
					ev.Type = eventType
				}
				chunks := folder.Fold(&ev)
				for i := range chunks {
					select {
					case out <- StreamEvent{Chunk: &chunks[i]}:
					case <-ctx.Done():
						return
					}
				}
				if ev.Type == "message_stop" || ev.Type == "error" {
					return
				}
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

func (d *anthropicDriver) ListModels(ctx context.Context) ([]unified.Model, error) {
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

	var list anthropic.ModelList
	if err := json.Unmarshal(respBody, &list); err != nil {
		return nil, apierror.Internal(err)
	}

	models := make([]unified.Model, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, unified.Model{ID: m.ID, Created: m.CreatedAt})
	}
	return models, nil
}

// setHeaders applies header rules before attaching credentials, so a
// configured rule can never clobber the credential header — credential
// attachment is last and authoritative (spec.md §6).
func (d *anthropicDriver) setHeaders(ctx context.Context, req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", anthropic.APIVersion)
	if inbound, ok := InboundHeadersFromContext(ctx); ok {
		ApplyHeaderRules(req.Header, inbound, d.cfg.Headers)
	}
	if d.cfg.APIKey != "" {
		req.Header.Set("x-api-key", d.cfg.APIKey)
	} else if d.cfg.ForwardToken {
		if token, ok := BearerTokenFromContext(ctx); ok {
			req.Header.Set("x-api-key", token)
		}
	}
}
