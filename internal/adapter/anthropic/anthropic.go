// Package anthropic converts between the Anthropic Messages wire format and
// the gateway's unified model (spec.md §4.1 "Anthropic ⇄ Unified"), and
// folds Anthropic's named SSE events into unified streaming chunks.
package anthropic

import (
	"encoding/json"

	"github.com/llmrouter/gateway/internal/apierror"
	"github.com/llmrouter/gateway/internal/unified"
)

// APIVersion is the header value this adapter speaks and expects.
const APIVersion = "2023-06-01"

// DefaultMaxTokens is used by the Unified → Anthropic direction when the
// caller didn't supply one (spec.md §3 "max_tokens is required when the
// caller protocol is Anthropic").
const DefaultMaxTokens = 4096

// Request is the Anthropic Messages request body.
type Request struct {
	Model         string          `json:"model"`
	MaxTokens     int             `json:"max_tokens"`
	System        string          `json:"system,omitempty"`
	Messages      []Message       `json:"messages"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	TopK          *int            `json:"top_k,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	Tools         []Tool          `json:"tools,omitempty"`
	ToolChoice    json.RawMessage `json:"tool_choice,omitempty"`
}

// Message is one turn; Content is either a bare string or a block list,
// matching Anthropic's own duality.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Block is the wire shape of one content-block union member. Only the
// fields relevant to Type are populated by either side.
type Block struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	Source *ImageSource `json:"source,omitempty"`

	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"` // tool_result: string or []Block
	IsError   *bool           `json:"is_error,omitempty"`
}

type ImageSource struct {
	Type      string `json:"type"` // "base64" | "url"
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Tool is an Anthropic tool definition.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Response is a complete, non-streaming Anthropic Message.
type Response struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	Role         string  `json:"role"`
	Model        string  `json:"model"`
	Content      []Block `json:"content"`
	StopReason   string  `json:"stop_reason,omitempty"`
	StopSequence string  `json:"stop_sequence,omitempty"`
	Usage        Usage   `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// stopReasonToFinish maps Anthropic's native stop reasons to the unified
// vocabulary (spec.md §4.1 "Response conversion").
var stopReasonToFinish = map[string]unified.FinishReason{
	"end_turn":      unified.FinishStop,
	"max_tokens":    unified.FinishLength,
	"stop_sequence": unified.FinishStop,
	"tool_use":      unified.FinishToolCalls,
}

// finishToStopReason is the inverse, used when re-emitting a unified
// response (not originally from Anthropic) in Anthropic's shape.
var finishToStopReason = map[unified.FinishReason]string{
	unified.FinishStop:         "end_turn",
	unified.FinishLength:       "max_tokens",
	unified.FinishContentFilter: "end_turn",
	unified.FinishToolCalls:    "tool_use",
}

// DecodeRequest converts an Anthropic request into the unified model
// (spec.md §4.1 "Anthropic → Unified (request)").
func DecodeRequest(req *Request) (*unified.Request, error) {
	if req.Model == "" {
		return nil, apierror.InvalidRequest("model is required")
	}

	out := &unified.Request{
		Model:         req.Model,
		System:        req.System,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		TopK:          req.TopK,
		StopSequences: req.StopSequences,
		Stream:        req.Stream,
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		out.MaxTokens = &mt
	}

	for _, m := range req.Messages {
		msg, err := decodeMessage(m)
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, msg)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, unified.Tool{Function: unified.Function{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
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

// decodeMessage converts one Anthropic message. Role is user|assistant —
// Anthropic has no separate tool/system role (spec.md §4.1): tool_result
// blocks arrive inside a user message, and are kept as blocks rather than
// split into synthetic RoleTool messages, since Anthropic itself carries
// them that way.
func decodeMessage(m Message) (unified.Message, error) {
	role := unified.Role(m.Role)

	var asString string
	if err := json.Unmarshal(m.Content, &asString); err == nil {
		return unified.Message{Role: role, Text: asString}, nil
	}

	var blocks []Block
	if err := json.Unmarshal(m.Content, &blocks); err != nil {
		return unified.Message{}, apierror.InvalidRequest("malformed message content: %v", err)
	}

	msg := unified.Message{Role: role, Blocks: []unified.Content{}}
	for _, b := range blocks {
		uc, toolCall, err := decodeBlock(b)
		if err != nil {
			return unified.Message{}, err
		}
		msg.Blocks = append(msg.Blocks, uc)
		// ToolUse blocks in assistant messages are ALSO projected into
		// tool_calls, preserving fidelity for OpenAI re-rendering
		// (spec.md §4.1 "dual form").
		if toolCall != nil {
			msg.ToolCalls = append(msg.ToolCalls, *toolCall)
		}
	}
	return msg, nil
}

func decodeBlock(b Block) (unified.Content, *unified.ToolCall, error) {
	switch b.Type {
	case "text":
		return unified.Content{Type: unified.ContentText, Text: b.Text}, nil, nil

	case "image":
		if b.Source == nil {
			return unified.Content{}, nil, apierror.InvalidRequest("image block missing source")
		}
		c := unified.Content{Type: unified.ContentImage}
		if b.Source.Type == "url" {
			c.ImageURL = b.Source.URL
		} else {
			c.ImageBase64MediaType = b.Source.MediaType
			c.ImageBase64Data = b.Source.Data
		}
		return c, nil, nil

	case "tool_use":
		c := unified.Content{
			Type:         unified.ContentToolUse,
			ToolUseID:    b.ID,
			ToolUseName:  b.Name,
			ToolUseInput: b.Input,
		}
		tc := &unified.ToolCall{
			ID:   b.ID,
			Name: b.Name,
			Arguments: unified.Arguments{
				IsString: false,
				Value:    b.Input,
			},
		}
		return c, tc, nil

	case "tool_result":
		c := unified.Content{Type: unified.ContentToolResult, ToolUseID: b.ToolUseID}
		if b.IsError != nil {
			c.ToolResultIsError = *b.IsError
		}
		if len(b.Content) > 0 {
			var asString string
			if err := json.Unmarshal(b.Content, &asString); err == nil {
				c.ToolResultText = asString
			} else {
				var parts []Block
				if err := json.Unmarshal(b.Content, &parts); err != nil {
					return unified.Content{}, nil, apierror.InvalidRequest("malformed tool_result content: %v", err)
				}
				for _, p := range parts {
					c.ToolResultTexts = append(c.ToolResultTexts, p.Text)
				}
			}
		}
		return c, nil, nil

	default:
		raw, _ := json.Marshal(b)
		return unified.Content{Type: unified.ContentUnknown, Raw: raw}, nil, nil
	}
}

func decodeToolChoice(raw json.RawMessage) (*unified.ToolChoice, error) {
	var named struct {
		Type string `json:"type"`
		Name string `json:"name,omitempty"`
	}
	if err := json.Unmarshal(raw, &named); err != nil {
		return nil, apierror.InvalidRequest("malformed tool_choice: %v", err)
	}
	switch named.Type {
	case "none":
		return &unified.ToolChoice{Mode: unified.ToolChoiceNone}, nil
	case "auto":
		return &unified.ToolChoice{Mode: unified.ToolChoiceAuto}, nil
	case "any":
		return &unified.ToolChoice{Mode: unified.ToolChoiceRequired}, nil
	case "tool":
		// The spec leaves validation that Name exists in Tools to the
		// caller (spec.md §9 open question); passed through as-is.
		return &unified.ToolChoice{FunctionName: named.Name}, nil
	default:
		return nil, apierror.InvalidRequest("unrecognized tool_choice type %q", named.Type)
	}
}

// EncodeRequest converts a unified request into the Anthropic shape
// (spec.md §4.1 "Unified → Anthropic (request)"). System/Tool roles
// collapse onto "user"; tool_calls are folded into ToolUse content blocks
// in addition to any existing blocks, de-duplicated by id with the
// explicit content list winning over the projection.
func EncodeRequest(req *unified.Request) *Request {
	out := &Request{
		Model:         req.Model,
		System:        req.System,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		TopK:          req.TopK,
		StopSequences: req.StopSequences,
		Stream:        req.Stream,
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	} else {
		out.MaxTokens = DefaultMaxTokens
	}

	for _, m := range req.Messages {
		out.Messages = append(out.Messages, encodeMessage(m))
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, Tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}

	if req.ToolChoice != nil {
		out.ToolChoice = encodeToolChoice(req.ToolChoice)
	}

	return out
}

func encodeMessage(m unified.Message) Message {
	role := string(m.Role)
	// Anthropic has no system or tool role as a message; both collapse
	// onto user (spec.md §4.1).
	if m.Role == unified.RoleSystem || m.Role == unified.RoleTool {
		role = "user"
	}

	var blocks []Block
	seenToolUse := make(map[string]bool)

	if m.IsBlocks() {
		for _, b := range m.Blocks {
			blk, id := encodeBlock(b)
			blocks = append(blocks, blk)
			if id != "" {
				seenToolUse[id] = true
			}
		}
	} else if m.Text != "" || len(m.ToolCalls) == 0 {
		blocks = append(blocks, Block{Type: "text", Text: m.Text})
	}

	if m.Role == unified.RoleTool && m.ToolCallID != "" {
		// A tool-role message carries exactly one tool_result referencing
		// ToolCallID; if the caller didn't already express it as a block
		// (IsBlocks case above), synthesize it from Text.
		if !m.IsBlocks() {
			blocks = []Block{{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   mustMarshal(m.Text),
			}}
		}
	}

	// Fold tool_calls into ToolUse blocks, deduplicating by id: the
	// explicit content list (already appended above) wins (spec.md §4.1,
	// §9 "dual representation").
	for _, tc := range m.ToolCalls {
		if seenToolUse[tc.ID] {
			continue
		}
		seenToolUse[tc.ID] = true
		blocks = append(blocks, Block{
			Type:  "tool_use",
			ID:    tc.ID,
			Name:  tc.Name,
			Input: argumentsToValue(tc.Arguments),
		})
	}

	content, _ := json.Marshal(blocks)
	return Message{Role: role, Content: content}
}

func encodeBlock(b unified.Content) (Block, string) {
	switch b.Type {
	case unified.ContentText:
		return Block{Type: "text", Text: b.Text}, ""
	case unified.ContentImage:
		src := &ImageSource{}
		if b.ImageURL != "" {
			src.Type = "url"
			src.URL = b.ImageURL
		} else {
			src.Type = "base64"
			src.MediaType = b.ImageBase64MediaType
			src.Data = b.ImageBase64Data
		}
		return Block{Type: "image", Source: src}, ""
	case unified.ContentToolUse:
		return Block{Type: "tool_use", ID: b.ToolUseID, Name: b.ToolUseName, Input: b.ToolUseInput}, b.ToolUseID
	case unified.ContentToolResult:
		blk := Block{Type: "tool_result", ToolUseID: b.ToolUseID}
		if b.ToolResultIsError {
			t := true
			blk.IsError = &t
		}
		if len(b.ToolResultTexts) > 0 {
			parts := make([]Block, len(b.ToolResultTexts))
			for i, t := range b.ToolResultTexts {
				parts[i] = Block{Type: "text", Text: t}
			}
			blk.Content, _ = json.Marshal(parts)
		} else {
			blk.Content = mustMarshal(b.ToolResultText)
		}
		return blk, ""
	default:
		if len(b.Raw) > 0 {
			var blk Block
			_ = json.Unmarshal(b.Raw, &blk)
			return blk, ""
		}
		return Block{Type: "text"}, ""
	}
}

func encodeToolChoice(tc *unified.ToolChoice) json.RawMessage {
	if tc.FunctionName != "" {
		b, _ := json.Marshal(struct {
			Type string `json:"type"`
			Name string `json:"name"`
		}{Type: "tool", Name: tc.FunctionName})
		return b
	}
	mode := "auto"
	switch tc.Mode {
	case unified.ToolChoiceNone:
		mode = "none"
	case unified.ToolChoiceRequired:
		mode = "any"
	}
	b, _ := json.Marshal(struct {
		Type string `json:"type"`
	}{Type: mode})
	return b
}

func argumentsToValue(a unified.Arguments) json.RawMessage {
	if !a.IsString {
		if len(a.Value) == 0 {
			return json.RawMessage("{}")
		}
		return a.Value
	}
	if a.String == "" {
		return json.RawMessage("{}")
	}
	// OpenAI-origin arguments are a JSON string that itself contains JSON;
	// re-encode as a value for Anthropic's input field.
	if json.Valid([]byte(a.String)) {
		return json.RawMessage(a.String)
	}
	b, _ := json.Marshal(a.String)
	return b
}

func mustMarshal(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// DecodeResponse converts a complete Anthropic Message into the unified
// model, preserving the original stop reason verbatim for round-trip
// fidelity (spec.md §4.1 "Response conversion").
func DecodeResponse(resp *Response) (*unified.Response, error) {
	msg := unified.Message{Role: unified.Role(resp.Role), Blocks: []unified.Content{}}
	for _, b := range resp.Content {
		uc, tc, err := decodeBlock(b)
		if err != nil {
			return nil, err
		}
		msg.Blocks = append(msg.Blocks, uc)
		if tc != nil {
			msg.ToolCalls = append(msg.ToolCalls, *tc)
		}
	}

	finish, ok := stopReasonToFinish[resp.StopReason]
	if !ok {
		finish = unified.FinishStop
	}

	return &unified.Response{
		ID:    resp.ID,
		Model: resp.Model,
		Choices: []unified.Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: finish,
		}},
		Usage: unified.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		StopReason:   unified.StopReason(resp.StopReason),
		StopSequence: resp.StopSequence,
	}, nil
}

// EncodeResponse converts a unified response into an Anthropic Message. If
// StopReason is already set (the response originated from Anthropic), it is
// surfaced verbatim per the finish-reason presentation rule (spec.md §4.1);
// otherwise it's derived from FinishReason.
func EncodeResponse(resp *unified.Response) *Response {
	out := &Response{
		ID:    resp.ID,
		Type:  "message",
		Model: resp.Model,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		out.Role = string(choice.Message.Role)
		anthMsg := encodeMessage(choice.Message)
		var blocks []Block
		_ = json.Unmarshal(anthMsg.Content, &blocks)
		out.Content = blocks

		if resp.StopReason != "" {
			out.StopReason = string(resp.StopReason)
		} else if sr, ok := finishToStopReason[choice.FinishReason]; ok {
			out.StopReason = sr
		}
		out.StopSequence = resp.StopSequence
	}

	return out
}

// ModelList is the Anthropic-shaped /v1/models response.
type ModelList struct {
	Data    []ModelJSON `json:"data"`
	HasMore bool        `json:"has_more"`
}

type ModelJSON struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	DisplayName string `json:"display_name,omitempty"`
	CreatedAt   int64  `json:"created_at,omitempty"`
}

// EncodeModelList renders a catalog as the Anthropic models list shape.
func EncodeModelList(models []unified.Model) ModelList {
	out := ModelList{}
	for _, m := range models {
		out.Data = append(out.Data, ModelJSON{
			ID:        m.ID,
			Type:      "model",
			CreatedAt: m.Created,
		})
	}
	return out
}
