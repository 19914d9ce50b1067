// Package stream renders a driver's unified streaming chunks as either
// protocol's native Server-Sent Events, matching whichever surface the
// caller is talking to (spec.md §6).
package stream

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/llmrouter/gateway/internal/adapter/anthropic"
	"github.com/llmrouter/gateway/internal/adapter/openai"
	"github.com/llmrouter/gateway/internal/provider"
)

// flusherFor asserts that w supports incremental flushing, required to
// deliver SSE events to the client as they're produced rather than
// buffered until the handler returns.
func flusherFor(w http.ResponseWriter) (http.Flusher, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing (http.Flusher)")
	}
	return f, nil
}

// WriteOpenAI renders chunks as OpenAI-compatible SSE: one "data: {json}"
// event per chunk, terminated by the literal "data: [DONE]" sentinel
// (spec.md §6 "if stream=true ... SSE framed with [DONE] terminator").
func WriteOpenAI(w http.ResponseWriter, chunks <-chan provider.StreamEvent) error {
	flusher, err := flusherFor(w)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for ev := range chunks {
		if ev.Err != nil {
			log.Printf("stream error: %v", ev.Err)
			return ev.Err
		}

		payload, err := json.Marshal(openai.EncodeChunk(ev.Chunk))
		if err != nil {
			return fmt.Errorf("marshaling SSE chunk: %w", err)
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return fmt.Errorf("writing SSE event: %w", err)
		}
		flusher.Flush()
	}

	if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("writing SSE done marker: %w", err)
	}
	flusher.Flush()
	return nil
}

// WriteAnthropic renders chunks as Anthropic named SSE events (spec.md §6
// "SSE with events message_start|content_block_start|... No [DONE]
// terminator"), regardless of which provider actually produced the
// unified chunks — this is what lets a Google- or Bedrock-backed model
// show up as a native Anthropic stream to an Anthropic-speaking caller.
func WriteAnthropic(w http.ResponseWriter, chunks <-chan provider.StreamEvent) error {
	flusher, err := flusherFor(w)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	enc := anthropic.NewStreamEncoder()

	for ev := range chunks {
		if ev.Err != nil {
			log.Printf("stream error: %v", ev.Err)
			if werr := writeAnthropicEvent(w, flusher, anthropic.Event{Type: "error"}); werr != nil {
				return werr
			}
			return ev.Err
		}

		for _, e := range enc.Encode(ev.Chunk) {
			if err := writeAnthropicEvent(w, flusher, e); err != nil {
				return err
			}
		}
	}

	return nil
}

func writeAnthropicEvent(w http.ResponseWriter, flusher http.Flusher, e anthropic.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling SSE event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, payload); err != nil {
		return fmt.Errorf("writing SSE event: %w", err)
	}
	flusher.Flush()
	return nil
}
