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

	"github.com/google/uuid"

	"github.com/llmrouter/gateway/internal/adapter/google"
	"github.com/llmrouter/gateway/internal/apierror"
	"github.com/llmrouter/gateway/internal/config"
	"github.com/llmrouter/gateway/internal/unified"
)

// googleDriver talks to the Gemini generateContent/streamGenerateContent
// API. Google never speaks to callers directly (spec.md §4.1), so this
// driver only needs the Unified → Gemini-native direction out, and
// Gemini-native → Unified back in.
type googleDriver struct {
	cfg    config.ProviderConfig
	client *http.Client
}

func newGoogleDriver(cfg config.ProviderConfig) *googleDriver {
	return &googleDriver{cfg: cfg, client: &http.Client{Timeout: defaultUpstreamTimeout}}
}

func (d *googleDriver) Name() string             { return d.cfg.Name }
func (d *googleDriver) Kind() config.ProviderKind { return config.KindGoogle }

func (d *googleDriver) Complete(ctx context.Context, nativeModel string, req *unified.Request) (*unified.Response, error) {
	native := google.EncodeRequest(req)

	body, err := json.Marshal(native)
	if err != nil {
		return nil, apierror.Internal(err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", d.cfg.BaseURL, nativeModel, d.apiKey(ctx))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
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

	var native2 google.Response
	if err := json.Unmarshal(respBody, &native2); err != nil {
		return nil, apierror.Internal(err)
	}
	return google.DecodeResponse(nativeModel, &native2), nil
}

func (d *googleDriver) Stream(ctx context.Context, nativeModel string, req *unified.Request) (<-chan StreamEvent, error) {
	native := google.EncodeRequest(req)

	body, err := json.Marshal(native)
	if err != nil {
		return nil, apierror.Internal(err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", d.cfg.BaseURL, nativeModel, d.apiKey(ctx))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apierror.Internal(err)
	}
	d.setHeaders(ctx, httpReq)

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
	streamID := "gen-" + uuid.NewString()
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
			var payload google.Response
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload); err != nil {
				select {
				case out <- StreamEvent{Err: apierror.Internal(err)}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case out <- StreamEvent{Chunk: google.DecodeChunk(streamID, nativeModel, &payload)}:
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

// geminiModelList mirrors Gemini's ListModels response shape.
type geminiModelList struct {
	Models []struct {
		Name string `json:"name"` // "models/gemini-1.5-pro"
	} `json:"models"`
}

func (d *googleDriver) ListModels(ctx context.Context) ([]unified.Model, error) {
	url := fmt.Sprintf("%s/models?key=%s", d.cfg.BaseURL, d.apiKey(ctx))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
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

	var list geminiModelList
	if err := json.Unmarshal(respBody, &list); err != nil {
		return nil, apierror.Internal(err)
	}

	models := make([]unified.Model, 0, len(list.Models))
	for _, m := range list.Models {
		id := strings.TrimPrefix(m.Name, "models/")
		models = append(models, unified.Model{ID: id})
	}
	return models, nil
}

func (d *googleDriver) apiKey(ctx context.Context) string {
	if d.cfg.APIKey != "" {
		return d.cfg.APIKey
	}
	if d.cfg.ForwardToken {
		if token, ok := BearerTokenFromContext(ctx); ok {
			return token
		}
	}
	return ""
}

func (d *googleDriver) setHeaders(ctx context.Context, req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if inbound, ok := InboundHeadersFromContext(ctx); ok {
		ApplyHeaderRules(req.Header, inbound, d.cfg.Headers)
	}
}
