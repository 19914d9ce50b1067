// Package unified holds the protocol-agnostic request/response/chunk model
// that every adapter and provider driver converts to and from. No code
// outside adapter and provider packages should construct OpenAI- or
// Anthropic-shaped JSON directly — it all flows through these types first.
package unified

import "encoding/json"

// Role identifies who a message came from.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Request is the canonical in-process chat completion request. Every
// protocol adapter decodes into this shape before anything else in the
// gateway touches the request.
type Request struct {
	// Model may be "model-id" or "provider/model-id"; the router strips
	// the prefix before it reaches a driver and restores it on the way out.
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`

	// System holds the system prompt regardless of which wire protocol
	// carried it (a message with role=system, or Anthropic's top-level field).
	System string `json:"system,omitempty"`

	MaxTokens         *int     `json:"max_tokens,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	TopP              *float64 `json:"top_p,omitempty"`
	TopK              *int     `json:"top_k,omitempty"`
	FrequencyPenalty  *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty   *float64 `json:"presence_penalty,omitempty"`
	StopSequences     []string `json:"stop_sequences,omitempty"`
	Stream            bool     `json:"stream,omitempty"`
	ParallelToolCalls *bool    `json:"parallel_tool_calls,omitempty"`

	Tools      []Tool      `json:"tools,omitempty"`
	ToolChoice *ToolChoice `json:"tool_choice,omitempty"`
	Metadata   *Metadata   `json:"metadata,omitempty"`
}

// Metadata carries caller-supplied identifying information that isn't part
// of the conversation itself.
type Metadata struct {
	UserID string `json:"user_id,omitempty"`
}

// Message is one turn of the conversation. Content is either a plain
// string or an ordered list of Content blocks — never both — mirroring
// the OpenAI/Anthropic duality described in spec.md §3.
type Message struct {
	Role Role `json:"role"`

	Text   string    `json:"-"` // set when the message came in as a bare string
	Blocks []Content `json:"-"` // set when the message came in as a block list

	// ToolCalls is a *projection* of ToolUse content blocks, not a second
	// source of truth (see DESIGN.md / spec.md §9). It exists so OpenAI
	// round-trips see tool invocations in the field OpenAI callers expect.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID is set iff Role == RoleTool.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// IsBlocks reports whether the message content is a content-block list
// rather than a bare string (an empty Blocks slice still counts once the
// origin protocol set it explicitly).
func (m Message) IsBlocks() bool { return m.Blocks != nil }

// ContentType tags the variant of a Content block.
type ContentType string

const (
	ContentText       ContentType = "text"
	ContentImage      ContentType = "image"
	ContentToolUse    ContentType = "tool_use"
	ContentToolResult ContentType = "tool_result"
	// ContentUnknown preserves forward-compatible block shapes (thinking,
	// redacted_thinking, server_tool_use, mcp_tool_use, container_upload, …)
	// that this gateway doesn't understand yet, per spec.md §9.
	ContentUnknown ContentType = "unknown"
)

// Content is a tagged union over the block shapes the unified model
// supports. Only the fields relevant to Type are populated; Raw carries
// the original bytes for ContentUnknown so inbound/outbound round-trips
// never lose information about block types this gateway can't interpret.
type Content struct {
	Type ContentType

	Text string // ContentText

	ImageBase64MediaType string // ContentImage (Base64 source)
	ImageBase64Data      string
	ImageURL             string // ContentImage (Url source); empty when Base64 source is used

	ToolUseID   string          // ContentToolUse, ContentToolResult
	ToolUseName string          // ContentToolUse
	ToolUseInput json.RawMessage // ContentToolUse

	ToolResultText    string   // ContentToolResult, single-text form
	ToolResultTexts   []string // ContentToolResult, multi-part form (nil if single-text)
	ToolResultIsError bool     // ContentToolResult

	Raw json.RawMessage // ContentUnknown: verbatim original block JSON
}

// ToolCall is a single function invocation requested by the assistant.
type ToolCall struct {
	ID       string
	Name     string
	Arguments Arguments
}

// Arguments holds tool-call arguments either as a raw JSON string (the
// OpenAI wire shape) or a parsed JSON value (the Anthropic wire shape).
// Keeping both variants avoids a double-parse and preserves the original
// bytes on a straight passthrough (spec.md §9 "Arguments duality").
type Arguments struct {
	IsString bool
	String   string          // valid iff IsString
	Value    json.RawMessage // valid iff !IsString
}

// Tool is a callable function definition offered to the model.
type Tool struct {
	Function Function `json:"function"`
}

// Function describes one callable tool.
type Function struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
	Strict      *bool           `json:"strict,omitempty"`
}

// ToolChoiceMode is the non-specific form of ToolChoice.
type ToolChoiceMode string

const (
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceRequired ToolChoiceMode = "required"
)

// ToolChoice is either a mode or a specific tool name.
type ToolChoice struct {
	Mode         ToolChoiceMode // valid iff FunctionName == ""
	FunctionName string         // non-empty selects a specific tool
}

// FinishReason is the normalized reason generation stopped.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength         FinishReason = "length"
	FinishContentFilter  FinishReason = "content_filter"
	FinishToolCalls      FinishReason = "tool_calls"
)

// StopReason is Anthropic's native stop-reason vocabulary, preserved
// verbatim on the response for round-trip fidelity (spec.md §4.1).
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
	StopToolUse      StopReason = "tool_use"
)

// Usage holds token accounting for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a complete, non-streaming chat completion.
type Response struct {
	ID      string
	Model   string // caller-visible, including any provider prefix
	Choices []Choice
	Usage   Usage
	Created int64

	// StopReason is the original Anthropic-native reason when the
	// response came from (or is destined for) Anthropic-shaped callers.
	StopReason   StopReason
	StopSequence string
}

// Choice is one candidate completion.
type Choice struct {
	Index        int
	Message      Message
	FinishReason FinishReason
}

// Chunk is one piece of a streaming completion. Usage and FinishReason
// are only ever populated on the terminal chunk (spec.md §5).
type Chunk struct {
	ID      string
	Model   string
	Created int64
	Choices []ChoiceDelta
	Usage   *Usage
}

// ChoiceDelta is the incremental update carried by one streaming chunk.
type ChoiceDelta struct {
	Index        int
	Delta        MessageDelta
	FinishReason FinishReason // empty except on the terminal chunk
}

// MessageDelta is the incremental content of one streaming chunk.
type MessageDelta struct {
	Role      Role // set only on the first chunk
	Content   string
	ToolCalls []ToolCallDelta
}

// ToolCallDeltaKind distinguishes the first event that opens a tool call
// from the subsequent argument-fragment deltas.
type ToolCallDeltaKind int

const (
	ToolCallStart ToolCallDeltaKind = iota
	ToolCallArgsDelta
)

// ToolCallDelta identifies its target tool call by Index, mirroring
// OpenAI's tool_calls[i] addressing (spec.md §9 "Streaming tool-call
// indices"). The Anthropic and Bedrock adapters derive Index from the
// originating content-block index.
type ToolCallDelta struct {
	Kind      ToolCallDeltaKind
	Index     int
	ID        string // set on ToolCallStart
	Name      string // set on ToolCallStart
	Arguments string // JSON fragment; full args accumulate across deltas
}

// Model describes one entry in a provider's catalog.
type Model struct {
	ID      string // upstream id for discovered models; "{provider}/{alias}" for configured aliases
	Created int64
	OwnedBy string
}
