package stream

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/llmrouter/gateway/internal/adapter/anthropic"
	"github.com/llmrouter/gateway/internal/adapter/openai"
	"github.com/llmrouter/gateway/internal/provider"
	"github.com/llmrouter/gateway/internal/unified"
)

// sendEvents is a test helper that sends stream events on a channel in a
// goroutine and closes the channel when done, simulating what a driver
// does in production.
func sendEvents(events ...provider.StreamEvent) <-chan provider.StreamEvent {
	ch := make(chan provider.StreamEvent)
	go func() {
		defer close(ch)
		for _, e := range events {
			ch <- e
		}
	}()
	return ch
}

func chunkEvent(content string, finish unified.FinishReason) provider.StreamEvent {
	return provider.StreamEvent{Chunk: &unified.Chunk{
		ID:    "chunk-1",
		Model: "test-model",
		Choices: []unified.ChoiceDelta{
			{Delta: unified.MessageDelta{Content: content}, FinishReason: finish},
		},
	}}
}

// parseDataLines splits raw SSE output into its "data: " payloads,
// excluding the "[DONE]" sentinel.
func parseDataLines(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if payload, ok := strings.CutPrefix(line, "data: "); ok && payload != "[DONE]" {
			out = append(out, payload)
		}
	}
	return out
}

func TestWriteOpenAI_MultipleChunksAndDone(t *testing.T) {
	ch := sendEvents(
		chunkEvent("Hello", ""),
		chunkEvent(" world", unified.FinishStop),
	)

	w := httptest.NewRecorder()
	if err := WriteOpenAI(w, ch); err != nil {
		t.Fatalf("WriteOpenAI returned error: %v", err)
	}

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	body := w.Body.String()
	if !strings.HasSuffix(strings.TrimRight(body, "\n"), "data: [DONE]") {
		t.Error("missing [DONE] sentinel at end of stream")
	}

	events := parseDataLines(body)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	var first openai.Chunk
	if err := json.Unmarshal([]byte(events[0]), &first); err != nil {
		t.Fatalf("unmarshal event 0: %v", err)
	}
	if first.Choices[0].Delta.Content != "Hello" {
		t.Errorf("event 0 content = %q, want %q", first.Choices[0].Delta.Content, "Hello")
	}
	if first.Choices[0].FinishReason != nil {
		t.Errorf("event 0 finish_reason = %v, want nil", *first.Choices[0].FinishReason)
	}

	var second openai.Chunk
	if err := json.Unmarshal([]byte(events[1]), &second); err != nil {
		t.Fatalf("unmarshal event 1: %v", err)
	}
	if second.Choices[0].FinishReason == nil || *second.Choices[0].FinishReason != "stop" {
		t.Error("event 1 should carry finish_reason=stop")
	}
}

func TestWriteOpenAI_MidStreamError(t *testing.T) {
	ch := sendEvents(
		chunkEvent("partial", ""),
		provider.StreamEvent{Err: fmt.Errorf("connection reset")},
	)

	w := httptest.NewRecorder()
	err := WriteOpenAI(w, ch)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("error = %q, want it to contain %q", err.Error(), "connection reset")
	}
	if strings.Contains(w.Body.String(), "[DONE]") {
		t.Error("errored stream should not contain [DONE]")
	}
}

func TestWriteAnthropic_NamedEventsNoTerminator(t *testing.T) {
	ch := sendEvents(chunkEvent("Hi", unified.FinishStop))

	w := httptest.NewRecorder()
	if err := WriteAnthropic(w, ch); err != nil {
		t.Fatalf("WriteAnthropic returned error: %v", err)
	}

	body := w.Body.String()
	if strings.Contains(body, "[DONE]") {
		t.Error("Anthropic streams must not send the OpenAI [DONE] sentinel")
	}
	if !strings.Contains(body, "event: message_start") {
		t.Error("missing message_start event")
	}

	var sawDelta bool
	for _, line := range strings.Split(body, "\n") {
		if payload, ok := strings.CutPrefix(line, "data: "); ok {
			var ev anthropic.Event
			if err := json.Unmarshal([]byte(payload), &ev); err == nil && ev.Delta != nil && ev.Delta.Text == "Hi" {
				sawDelta = true
			}
		}
	}
	if !sawDelta {
		t.Error("expected a content_block_delta event carrying \"Hi\"")
	}
}
