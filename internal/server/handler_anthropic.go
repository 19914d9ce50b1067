package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/llmrouter/gateway/internal/adapter/anthropic"
	"github.com/llmrouter/gateway/internal/apierror"
	"github.com/llmrouter/gateway/internal/stream"
)

// handleAnthropicMessages serves POST {anthropic_path}/v1/messages
// (spec.md §6).
func (s *Server) handleAnthropicMessages(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var wire anthropic.Request
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeAnthropicError(w, apierror.InvalidRequest("invalid request body: %v", err))
		return
	}

	req, err := anthropic.DecodeRequest(&wire)
	if err != nil {
		writeAnthropicError(w, err)
		return
	}

	d, err := s.resolveDispatch(req.Model)
	if err != nil {
		writeAnthropicError(w, err)
		return
	}

	if err := s.checkRateLimit(r.Context(), r, d, req); err != nil {
		s.observe(d.providerCfg.Name, d.aliasModel, "rate_limited", start)
		writeAnthropicError(w, err)
		return
	}

	ctx := withUpstreamContext(r.Context(), r)

	if req.Stream {
		events, err := d.driver.Stream(ctx, d.nativeModel, req)
		if err != nil {
			s.observe(d.providerCfg.Name, d.aliasModel, "error", start)
			writeAnthropicError(w, err)
			return
		}
		if err := stream.WriteAnthropic(w, restoreModel(events, d.originalModel)); err != nil {
			s.observe(d.providerCfg.Name, d.aliasModel, "stream_error", start)
			return
		}
		s.observe(d.providerCfg.Name, d.aliasModel, "ok", start)
		return
	}

	resp, err := d.driver.Complete(ctx, d.nativeModel, req)
	if err != nil {
		s.observe(d.providerCfg.Name, d.aliasModel, "error", start)
		writeAnthropicError(w, err)
		return
	}
	resp.Model = d.originalModel

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(anthropic.EncodeResponse(resp))
	s.observe(d.providerCfg.Name, d.aliasModel, "ok", start)
}

// handleAnthropicModels serves GET {anthropic_path}/v1/models.
func (s *Server) handleAnthropicModels(w http.ResponseWriter, r *http.Request) {
	models := s.aggregateCatalog(r.Context())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(anthropic.EncodeModelList(models))
}

func writeAnthropicError(w http.ResponseWriter, err error) {
	status, body := apierror.ToAnthropic(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
