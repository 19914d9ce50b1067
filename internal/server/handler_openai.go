package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/llmrouter/gateway/internal/adapter/openai"
	"github.com/llmrouter/gateway/internal/apierror"
	"github.com/llmrouter/gateway/internal/stream"
)

// handleOpenAIChatCompletions serves POST {openai_path}/v1/chat/completions
// (spec.md §6). It implements the common dispatch algorithm's protocol-
// facing half: decode, route, rate-limit, dispatch, restore the
// caller-visible model, encode.
func (s *Server) handleOpenAIChatCompletions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var wire openai.Request
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeOpenAIError(w, apierror.InvalidRequest("invalid request body: %v", err))
		return
	}

	req, err := openai.DecodeRequest(&wire)
	if err != nil {
		writeOpenAIError(w, err)
		return
	}

	d, err := s.resolveDispatch(req.Model)
	if err != nil {
		writeOpenAIError(w, err)
		return
	}

	if err := s.checkRateLimit(r.Context(), r, d, req); err != nil {
		s.observe(d.providerCfg.Name, d.aliasModel, "rate_limited", start)
		writeOpenAIError(w, err)
		return
	}

	ctx := withUpstreamContext(r.Context(), r)

	if req.Stream {
		events, err := d.driver.Stream(ctx, d.nativeModel, req)
		if err != nil {
			s.observe(d.providerCfg.Name, d.aliasModel, "error", start)
			writeOpenAIError(w, err)
			return
		}
		if err := stream.WriteOpenAI(w, restoreModel(events, d.originalModel)); err != nil {
			s.observe(d.providerCfg.Name, d.aliasModel, "stream_error", start)
			return
		}
		s.observe(d.providerCfg.Name, d.aliasModel, "ok", start)
		return
	}

	resp, err := d.driver.Complete(ctx, d.nativeModel, req)
	if err != nil {
		s.observe(d.providerCfg.Name, d.aliasModel, "error", start)
		writeOpenAIError(w, err)
		return
	}
	resp.Model = d.originalModel // dispatch algorithm step 8

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(openai.EncodeResponse(resp))
	s.observe(d.providerCfg.Name, d.aliasModel, "ok", start)
}

// handleOpenAIModels serves GET {openai_path}/v1/models: the system-wide
// catalog aggregation in declaration order (spec.md §4.3).
func (s *Server) handleOpenAIModels(w http.ResponseWriter, r *http.Request) {
	models := s.aggregateCatalog(r.Context())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(openai.EncodeModelList(models))
}

func (s *Server) observe(providerName, model, outcome string, start time.Time) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveRequest(providerName, model, outcome, start)
	}
}

func writeOpenAIError(w http.ResponseWriter, err error) {
	status, body := apierror.ToOpenAI(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
