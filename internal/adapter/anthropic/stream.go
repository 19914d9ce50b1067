package anthropic

import (
	"github.com/llmrouter/gateway/internal/unified"
)

// Event is the wire shape of one Anthropic SSE payload. Only the fields
// relevant to Type are populated; this mirrors the teacher's
// anthropicStreamEvent wrapper but covers the full named-event set
// (spec.md §4.1 "Streaming conversion").
type Event struct {
	Type string `json:"type"`

	Message *EventMessage `json:"message,omitempty"` // message_start

	Index        int          `json:"index"`                   // content_block_start/delta/stop
	ContentBlock *Block       `json:"content_block,omitempty"`  // content_block_start
	Delta        *EventDelta  `json:"delta,omitempty"`          // content_block_delta, message_delta
	Usage        *Usage       `json:"usage,omitempty"`          // message_delta
}

type EventMessage struct {
	ID    string `json:"id"`
	Model string `json:"model"`
	Role  string `json:"role"`
	Usage Usage  `json:"usage"`
}

// EventDelta carries whichever of text_delta/input_json_delta/stop_reason
// applies to the enclosing event; unused fields stay at their zero value.
type EventDelta struct {
	Type         string `json:"type,omitempty"`
	Text         string `json:"text,omitempty"`         // text_delta
	PartialJSON  string `json:"partial_json,omitempty"` // input_json_delta
	StopReason   string `json:"stop_reason,omitempty"`  // message_delta
	StopSequence string `json:"stop_sequence,omitempty"`
}

// StreamFolder accumulates cross-event state while folding a sequence of
// Anthropic SSE events into unified chunks. One instance serves exactly
// one stream.
type StreamFolder struct {
	id           string
	model        string
	inputTokens  int
	outputTokens int

	// blockKind maps a content_block index to what kind of block it is,
	// so content_block_delta knows whether to emit a text or tool-call
	// argument delta (spec.md §9 "Streaming tool-call indices").
	blockKind map[int]string
	roleSent  bool

	pendingFinish     unified.FinishReason
	pendingStopReason string
}

// NewStreamFolder creates a folder for one Anthropic stream.
func NewStreamFolder() *StreamFolder {
	return &StreamFolder{blockKind: make(map[int]string)}
}

// Fold consumes one decoded Event and returns the unified chunks it
// produces (zero, one, or — for message_stop, which can carry both a
// content-adjacent state change and termination — at most one chunk in
// practice, but the slice return keeps the door open). `ping` events
// produce no chunk and are dropped per spec.md §4.1.
func (f *StreamFolder) Fold(ev *Event) []unified.Chunk {
	switch ev.Type {
	case "message_start":
		if ev.Message != nil {
			f.id = ev.Message.ID
			f.model = ev.Message.Model
			f.inputTokens = ev.Message.Usage.InputTokens
		}
		f.roleSent = true
		return []unified.Chunk{f.chunk(unified.MessageDelta{Role: unified.RoleAssistant}, "")}

	case "content_block_start":
		if ev.ContentBlock == nil {
			return nil
		}
		f.blockKind[ev.Index] = ev.ContentBlock.Type
		if ev.ContentBlock.Type == "tool_use" {
			return []unified.Chunk{f.chunk(unified.MessageDelta{
				ToolCalls: []unified.ToolCallDelta{{
					Kind:  unified.ToolCallStart,
					Index: ev.Index,
					ID:    ev.ContentBlock.ID,
					Name:  ev.ContentBlock.Name,
				}},
			}, "")}
		}
		return nil

	case "content_block_delta":
		if ev.Delta == nil {
			return nil
		}
		switch ev.Delta.Type {
		case "text_delta":
			return []unified.Chunk{f.chunk(unified.MessageDelta{Content: ev.Delta.Text}, "")}
		case "input_json_delta":
			return []unified.Chunk{f.chunk(unified.MessageDelta{
				ToolCalls: []unified.ToolCallDelta{{
					Kind:      unified.ToolCallArgsDelta,
					Index:     ev.Index,
					Arguments: ev.Delta.PartialJSON,
				}},
			}, "")}
		default:
			return nil
		}

	case "content_block_stop":
		return nil

	case "message_delta":
		finish := unified.FinishStop
		if ev.Delta != nil {
			if mapped, ok := stopReasonToFinish[ev.Delta.StopReason]; ok {
				finish = mapped
			}
		}
		if ev.Usage != nil {
			f.outputTokens = ev.Usage.OutputTokens
		}
		f.pendingFinish = finish
		if ev.Delta != nil {
			f.pendingStopReason = ev.Delta.StopReason
		}
		return nil

	case "message_stop":
		return []unified.Chunk{f.terminal()}

	case "error":
		return []unified.Chunk{f.terminal()}

	default: // "ping" and anything else: dropped.
		return nil
	}
}

func (f *StreamFolder) chunk(delta unified.MessageDelta, finish unified.FinishReason) unified.Chunk {
	return unified.Chunk{
		ID:    f.id,
		Model: f.model,
		Choices: []unified.ChoiceDelta{{
			Index:        0,
			Delta:        delta,
			FinishReason: finish,
		}},
	}
}

func (f *StreamFolder) terminal() unified.Chunk {
	finish := f.pendingFinish
	if finish == "" {
		finish = unified.FinishStop
	}
	return unified.Chunk{
		ID:    f.id,
		Model: f.model,
		Choices: []unified.ChoiceDelta{{
			Index:        0,
			FinishReason: finish,
		}},
		Usage: &unified.Usage{
			PromptTokens:     f.inputTokens,
			CompletionTokens: f.outputTokens,
			TotalTokens:      f.inputTokens + f.outputTokens,
		},
	}
}

// StopReason returns the native Anthropic stop reason accumulated from the
// last message_delta event, for callers that want to preserve it verbatim
// (spec.md §4.1 "Finish-reason presentation rule").
func (f *StreamFolder) StopReason() string { return f.pendingStopReason }

// StreamEncoder renders unified chunks as Anthropic named SSE events,
// regardless of which provider produced them — it's the inverse of
// StreamFolder and is what lets an Anthropic caller see a Google- or
// Bedrock-backed stream in native Anthropic shape.
type StreamEncoder struct {
	started    bool
	openBlocks map[int]bool
}

// NewStreamEncoder creates an encoder for one outbound stream.
func NewStreamEncoder() *StreamEncoder {
	return &StreamEncoder{openBlocks: make(map[int]bool)}
}

// Encode consumes one unified chunk and returns the Anthropic events it
// renders to, in wire order.
func (e *StreamEncoder) Encode(c *unified.Chunk) []Event {
	var events []Event

	if !e.started {
		e.started = true
		events = append(events, Event{
			Type: "message_start",
			Message: &EventMessage{
				ID:    c.ID,
				Model: c.Model,
				Role:  "assistant",
			},
		})
	}

	for _, choice := range c.Choices {
		for _, tc := range choice.Delta.ToolCalls {
			if tc.Kind == unified.ToolCallStart && !e.openBlocks[tc.Index] {
				e.openBlocks[tc.Index] = true
				events = append(events, Event{
					Type:         "content_block_start",
					Index:        tc.Index,
					ContentBlock: &Block{Type: "tool_use", ID: tc.ID, Name: tc.Name},
				})
			}
			events = append(events, Event{
				Type:  "content_block_delta",
				Index: tc.Index,
				Delta: &EventDelta{Type: "input_json_delta", PartialJSON: tc.Arguments},
			})
		}

		if choice.Delta.Content != "" {
			if !e.openBlocks[0] {
				e.openBlocks[0] = true
				events = append(events, Event{
					Type:         "content_block_start",
					Index:        0,
					ContentBlock: &Block{Type: "text", Text: ""},
				})
			}
			events = append(events, Event{
				Type:  "content_block_delta",
				Index: 0,
				Delta: &EventDelta{Type: "text_delta", Text: choice.Delta.Content},
			})
		}

		if choice.FinishReason != "" {
			for idx := range e.openBlocks {
				events = append(events, Event{Type: "content_block_stop", Index: idx})
				delete(e.openBlocks, idx)
			}
			stopReason := finishToStopReason[choice.FinishReason]
			var usage *Usage
			if c.Usage != nil {
				usage = &Usage{InputTokens: c.Usage.PromptTokens, OutputTokens: c.Usage.CompletionTokens}
			}
			events = append(events, Event{
				Type:  "message_delta",
				Delta: &EventDelta{StopReason: stopReason},
				Usage: usage,
			})
			events = append(events, Event{Type: "message_stop"})
		}
	}

	return events
}
