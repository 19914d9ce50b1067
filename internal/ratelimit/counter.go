package ratelimit

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/llmrouter/gateway/internal/unified"
)

// perMessageOverhead approximates the fixed token cost OpenAI's own
// counting guidance assigns to message framing (role, separators) beyond
// the raw text, applied uniformly since the gate is intentionally
// provider-agnostic (spec.md §4.5 "deterministic and stable within a
// process", not required to match any one provider's exact count).
const perMessageOverhead = 4

// Counter estimates input tokens for a unified request. It must be
// deterministic and stable for the lifetime of the process (spec.md §4.5
// step 2); it does not need to match any provider's exact tokenizer.
type Counter struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewCounter builds a Counter backed by tiktoken-go's cl100k_base
// encoding — a reasonable single stand-in across providers, since the gate
// runs before any provider is known to need per-model exactness.
func NewCounter() (*Counter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &Counter{enc: enc}, nil
}

// Count estimates input tokens across the request's system prompt, every
// message's text/blocks, and tool definitions.
func (c *Counter) Count(req *unified.Request) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	if req.System != "" {
		total += c.tokenLen(req.System) + perMessageOverhead
	}

	for _, m := range req.Messages {
		total += perMessageOverhead
		if m.IsBlocks() {
			for _, b := range m.Blocks {
				switch b.Type {
				case unified.ContentText:
					total += c.tokenLen(b.Text)
				case unified.ContentToolResult:
					total += c.tokenLen(b.ToolResultText)
					for _, t := range b.ToolResultTexts {
						total += c.tokenLen(t)
					}
				case unified.ContentToolUse:
					total += c.tokenLen(b.ToolUseName) + c.tokenLen(string(b.ToolUseInput))
				}
			}
		} else {
			total += c.tokenLen(m.Text)
		}
		for _, tc := range m.ToolCalls {
			total += c.tokenLen(tc.Name) + c.tokenLen(tc.Arguments.String) + c.tokenLen(string(tc.Arguments.Value))
		}
	}

	for _, t := range req.Tools {
		total += c.tokenLen(t.Function.Name) + c.tokenLen(t.Function.Description) + c.tokenLen(string(t.Function.Parameters))
	}

	return total
}

func (c *Counter) tokenLen(s string) int {
	if s == "" {
		return 0
	}
	return len(c.enc.Encode(s, nil, nil))
}
