// Package openai converts between the OpenAI ChatCompletion wire format and
// the gateway's unified model (spec.md §4.1 "OpenAI ⇄ Unified").
package openai

import (
	"encoding/json"

	"github.com/llmrouter/gateway/internal/apierror"
	"github.com/llmrouter/gateway/internal/unified"
)

// Request is the OpenAI-shaped ChatCompletion request body. Unknown
// top-level fields are not rejected: the body is decoded with
// encoding/json's defaults, which drop them before DecodeRequest runs.
// Message content and tool parameter schemas are held as raw JSON, so
// fields inside them are preserved verbatim.
type Request struct {
	Model             string          `json:"model"`
	Messages          []Message       `json:"messages"`
	MaxTokens         *int            `json:"max_tokens,omitempty"`
	Temperature       *float64        `json:"temperature,omitempty"`
	TopP              *float64        `json:"top_p,omitempty"`
	FrequencyPenalty  *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty   *float64        `json:"presence_penalty,omitempty"`
	Stop              []string        `json:"stop,omitempty"`
	Stream            bool            `json:"stream,omitempty"`
	ParallelToolCalls *bool           `json:"parallel_tool_calls,omitempty"`
	Tools             []Tool          `json:"tools,omitempty"`
	ToolChoice        json.RawMessage `json:"tool_choice,omitempty"`
	User              string          `json:"user,omitempty"`
}

// Message is one entry of an OpenAI request's `messages` array. Content can
// arrive as a bare string or, for future multimodal support, an array of
// parts; this adapter only needs the string form plus tool-call fields.
type Message struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// ToolCall mirrors OpenAI's tool_calls[i] shape: arguments travel as an
// embedded JSON string, not a nested value.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ToolCallFunc `json:"function"`
}

type ToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool is an OpenAI tool definition.
type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

type Function struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      *bool           `json:"strict,omitempty"`
}

// Response is the OpenAI-shaped ChatCompletion response body.
type Response struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type Choice struct {
	Index        int           `json:"index"`
	Message      ResponseMsg   `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type ResponseMsg struct {
	Role      string     `json:"role"`
	Content   *string    `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Chunk is one SSE `data:` payload of an OpenAI streaming response.
type Chunk struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage       `json:"usage,omitempty"`
}

type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type ChunkDelta struct {
	Role      string          `json:"role,omitempty"`
	Content   string          `json:"content,omitempty"`
	ToolCalls []ChunkToolCall `json:"tool_calls,omitempty"`
}

// ChunkToolCall is one streamed tool-call delta, addressed by Index
// exactly as OpenAI's own wire format addresses tool_calls[i].
type ChunkToolCall struct {
	Index    int              `json:"index"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function *ChunkToolCallFn `json:"function,omitempty"`
}

type ChunkToolCallFn struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// DecodeRequest converts an OpenAI request into the unified model
// (spec.md §4.1 "OpenAI → Unified (request)").
func DecodeRequest(req *Request) (*unified.Request, error) {
	if req.Model == "" {
		return nil, apierror.InvalidRequest("model is required")
	}

	out := &unified.Request{
		Model:             req.Model,
		MaxTokens:         req.MaxTokens,
		Temperature:       req.Temperature,
		TopP:              req.TopP,
		FrequencyPenalty:  req.FrequencyPenalty,
		PresencePenalty:   req.PresencePenalty,
		StopSequences:     req.Stop,
		Stream:            req.Stream,
		ParallelToolCalls: req.ParallelToolCalls,
	}

	if req.User != "" {
		out.Metadata = &unified.Metadata{UserID: req.User}
	}

	var systemParts []string
	for _, m := range req.Messages {
		if m.Role == "system" {
			text, err := decodeContentString(m.Content)
			if err != nil {
				return nil, err
			}
			systemParts = append(systemParts, text)
			continue
		}

		msg, err := decodeMessage(m)
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, msg)
	}
	if len(systemParts) > 0 {
		out.System = joinNewline(systemParts)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, unified.Tool{Function: unified.Function{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
			Strict:      t.Function.Strict,
		}})
	}

	if len(req.ToolChoice) > 0 {
		tc, err := decodeToolChoice(req.ToolChoice)
		if err != nil {
			return nil, err
		}
		out.ToolChoice = tc
	}

	return out, nil
}

func decodeMessage(m Message) (unified.Message, error) {
	msg := unified.Message{Role: unified.Role(m.Role), ToolCallID: m.ToolCallID}

	text, err := decodeContentString(m.Content)
	if err != nil {
		return unified.Message{}, err
	}
	// Absent content on an assistant message carrying only tool_calls
	// becomes Content::Blocks([]) per spec.md §4.1; a present string
	// content becomes Content::Text.
	if len(m.Content) == 0 {
		msg.Blocks = []unified.Content{}
	} else {
		msg.Text = text
	}

	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, unified.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Arguments: unified.Arguments{
				IsString: true,
				String:   tc.Function.Arguments,
			},
		})
	}

	return msg, nil
}

func decodeContentString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", apierror.InvalidRequest("message content must be a string: %v", err)
	}
	return s, nil
}

func decodeToolChoice(raw json.RawMessage) (*unified.ToolChoice, error) {
	var mode string
	if err := json.Unmarshal(raw, &mode); err == nil {
		switch mode {
		case "none":
			return &unified.ToolChoice{Mode: unified.ToolChoiceNone}, nil
		case "auto":
			return &unified.ToolChoice{Mode: unified.ToolChoiceAuto}, nil
		// "required" and "any" both map to Required per spec.md §4.1.
		case "required", "any":
			return &unified.ToolChoice{Mode: unified.ToolChoiceRequired}, nil
		default:
			return nil, apierror.InvalidRequest("unrecognized tool_choice %q", mode)
		}
	}

	var named struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &named); err != nil {
		return nil, apierror.InvalidRequest("malformed tool_choice: %v", err)
	}
	if named.Function.Name == "" {
		return nil, apierror.InvalidRequest("tool_choice function.name is required")
	}
	return &unified.ToolChoice{FunctionName: named.Function.Name}, nil
}

// EncodeRequest converts a unified request back into the OpenAI shape
// (spec.md §4.1 "Unified → OpenAI (request)"). Non-text content blocks
// (Image, ToolUse) do not survive this direction because OpenAI carries
// tool invocations structurally, through tool_calls, not as content.
func EncodeRequest(req *unified.Request) *Request {
	out := &Request{
		Model:             req.Model,
		MaxTokens:         req.MaxTokens,
		Temperature:       req.Temperature,
		TopP:              req.TopP,
		FrequencyPenalty:  req.FrequencyPenalty,
		PresencePenalty:   req.PresencePenalty,
		Stop:              req.StopSequences,
		Stream:            req.Stream,
		ParallelToolCalls: req.ParallelToolCalls,
	}

	if req.System != "" {
		out.Messages = append(out.Messages, Message{
			Role:    "system",
			Content: mustMarshalString(req.System),
		})
	}

	for _, m := range req.Messages {
		out.Messages = append(out.Messages, encodeMessage(m))
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, Tool{
			Type: "function",
			Function: Function{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
				Strict:      t.Function.Strict,
			},
		})
	}

	if req.ToolChoice != nil {
		out.ToolChoice = encodeToolChoice(req.ToolChoice)
	}
	if req.Metadata != nil {
		out.User = req.Metadata.UserID
	}

	return out
}

func encodeMessage(m unified.Message) Message {
	out := Message{Role: string(m.Role), ToolCallID: m.ToolCallID}

	if m.IsBlocks() {
		var parts []string
		for _, b := range m.Blocks {
			switch b.Type {
			case unified.ContentText:
				parts = append(parts, b.Text)
			case unified.ContentToolResult:
				if len(b.ToolResultTexts) > 0 {
					parts = append(parts, joinNewline(b.ToolResultTexts))
				} else if b.ToolResultText != "" {
					parts = append(parts, b.ToolResultText)
				}
			}
		}
		out.Content = mustMarshalString(joinNewline(parts))
	} else {
		out.Content = mustMarshalString(m.Text)
	}

	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: ToolCallFunc{
				Name:      tc.Name,
				Arguments: argumentsToString(tc.Arguments),
			},
		})
	}

	return out
}

func encodeToolChoice(tc *unified.ToolChoice) json.RawMessage {
	if tc.FunctionName != "" {
		b, _ := json.Marshal(struct {
			Type     string `json:"type"`
			Function struct {
				Name string `json:"name"`
			} `json:"function"`
		}{Type: "function", Function: struct {
			Name string `json:"name"`
		}{Name: tc.FunctionName}})
		return b
	}
	b, _ := json.Marshal(string(tc.Mode))
	return b
}

// EncodeResponse converts a unified response into the OpenAI shape.
func EncodeResponse(resp *unified.Response) *Response {
	out := &Response{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: resp.Created,
		Model:   resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, c := range resp.Choices {
		msg := encodeMessage(c.Message)
		content := mustUnmarshalString(msg.Content)
		out.Choices = append(out.Choices, Choice{
			Index: c.Index,
			Message: ResponseMsg{
				Role:      string(c.Message.Role),
				Content:   &content,
				ToolCalls: msg.ToolCalls,
			},
			FinishReason: string(c.FinishReason),
		})
	}
	return out
}

// EncodeChunk converts one unified streaming chunk into an OpenAI SSE
// payload (spec.md §4.1 "OpenAI chunks map 1:1 to UnifiedChunk" — the
// inverse direction here is total since Unified's chunk shape was modeled
// directly on OpenAI's).
func EncodeChunk(c *unified.Chunk) *Chunk {
	out := &Chunk{
		ID:      c.ID,
		Object:  "chat.completion.chunk",
		Created: c.Created,
		Model:   c.Model,
	}
	if c.Usage != nil {
		out.Usage = &Usage{
			PromptTokens:     c.Usage.PromptTokens,
			CompletionTokens: c.Usage.CompletionTokens,
			TotalTokens:      c.Usage.TotalTokens,
		}
	}
	for _, d := range c.Choices {
		cd := ChunkChoice{Index: d.Index}
		if d.FinishReason != "" {
			fr := string(d.FinishReason)
			cd.FinishReason = &fr
		}
		cd.Delta.Role = string(d.Delta.Role)
		cd.Delta.Content = d.Delta.Content
		for _, tc := range d.Delta.ToolCalls {
			ctc := ChunkToolCall{Index: tc.Index}
			if tc.Kind == unified.ToolCallStart {
				ctc.ID = tc.ID
				ctc.Type = "function"
				ctc.Function = &ChunkToolCallFn{Name: tc.Name, Arguments: tc.Arguments}
			} else {
				ctc.Function = &ChunkToolCallFn{Arguments: tc.Arguments}
			}
			cd.Delta.ToolCalls = append(cd.Delta.ToolCalls, ctc)
		}
		out.Choices = append(out.Choices, cd)
	}
	return out
}

func argumentsToString(a unified.Arguments) string {
	if a.IsString {
		return a.String
	}
	if len(a.Value) == 0 {
		return "{}"
	}
	return string(a.Value)
}

func joinNewline(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += "\n" + p
	}
	return out
}

func mustMarshalString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func mustUnmarshalString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// DecodeResponse converts a native OpenAI-compatible response into the
// unified model. This is the driver-side counterpart to EncodeResponse: a
// provider driver speaking the OpenAI wire protocol upstream uses this to
// bring the upstream's reply into the gateway's internal shape.
func DecodeResponse(resp *Response) *unified.Response {
	out := &unified.Response{
		ID:      resp.ID,
		Model:   resp.Model,
		Created: resp.Created,
		Usage: unified.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, c := range resp.Choices {
		out.Choices = append(out.Choices, unified.Choice{
			Index:        c.Index,
			Message:      decodeResponseMsg(c.Message),
			FinishReason: unified.FinishReason(c.FinishReason),
		})
	}
	return out
}

func decodeResponseMsg(m ResponseMsg) unified.Message {
	out := unified.Message{Role: unified.Role(m.Role)}
	if m.Content != nil {
		out.Text = *m.Content
	} else {
		out.Blocks = []unified.Content{}
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, unified.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Arguments: unified.Arguments{
				IsString: true,
				String:   tc.Function.Arguments,
			},
		})
	}
	return out
}

// DecodeChunk converts one native OpenAI-compatible streaming payload into
// a unified chunk (the driver-side counterpart to EncodeChunk).
func DecodeChunk(c *Chunk) *unified.Chunk {
	out := &unified.Chunk{ID: c.ID, Model: c.Model, Created: c.Created}
	if c.Usage != nil {
		out.Usage = &unified.Usage{
			PromptTokens:     c.Usage.PromptTokens,
			CompletionTokens: c.Usage.CompletionTokens,
			TotalTokens:      c.Usage.TotalTokens,
		}
	}
	for _, d := range c.Choices {
		delta := unified.MessageDelta{
			Role:    unified.Role(d.Delta.Role),
			Content: d.Delta.Content,
		}
		for _, tc := range d.Delta.ToolCalls {
			kind := unified.ToolCallArgsDelta
			var id, name string
			if tc.ID != "" {
				kind = unified.ToolCallStart
				id = tc.ID
				if tc.Function != nil {
					name = tc.Function.Name
				}
			}
			args := ""
			if tc.Function != nil {
				args = tc.Function.Arguments
			}
			delta.ToolCalls = append(delta.ToolCalls, unified.ToolCallDelta{
				Kind: kind, Index: tc.Index, ID: id, Name: name, Arguments: args,
			})
		}
		var finish unified.FinishReason
		if d.FinishReason != nil {
			finish = unified.FinishReason(*d.FinishReason)
		}
		out.Choices = append(out.Choices, unified.ChoiceDelta{
			Index: d.Index, Delta: delta, FinishReason: finish,
		})
	}
	return out
}

// ModelList is the OpenAI-shaped /v1/models response.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelJSON `json:"data"`
}

type ModelJSON struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// EncodeModelList renders a catalog as the OpenAI models list shape.
func EncodeModelList(models []unified.Model) ModelList {
	out := ModelList{Object: "list"}
	for _, m := range models {
		out.Data = append(out.Data, ModelJSON{
			ID:      m.ID,
			Object:  "model",
			Created: m.Created,
			OwnedBy: m.OwnedBy,
		})
	}
	return out
}
