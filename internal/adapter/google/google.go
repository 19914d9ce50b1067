// Package google provides the lossy Unified → Gemini native conversion;
// Google never speaks to callers directly; see spec.md §4.1 "Unified →
// (Provider-native)".
package google

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/llmrouter/gateway/internal/unified"
)

// Request is the body for Gemini's generateContent/streamGenerateContent.
type Request struct {
	Contents          []Content          `json:"contents"`
	SystemInstruction *Content           `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig  `json:"generationConfig,omitempty"`
	Tools             []Tool             `json:"tools,omitempty"`
	ToolConfig        *ToolConfig        `json:"toolConfig,omitempty"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is a tagged union: exactly one of Text/InlineData/FunctionCall/
// FunctionResponse is set, mirroring Gemini's own part shape.
type Part struct {
	Text             string            `json:"text,omitempty"`
	InlineData       *Blob             `json:"inlineData,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

type Blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type FunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type FunctionResponse struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response,omitempty"`
}

type GenerationConfig struct {
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"topP,omitempty"`
	TopK             *int     `json:"topK,omitempty"`
	StopSequences    []string `json:"stopSequences,omitempty"`
}

type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

type FunctionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type ToolConfig struct {
	FunctionCallingConfig FunctionCallingConfig `json:"functionCallingConfig"`
}

type FunctionCallingConfig struct {
	Mode                 string   `json:"mode"` // AUTO | ANY | NONE
	AllowedFunctionNames []string `json:"allowedFunctionNames,omitempty"`
}

// Response is the body returned from generateContent.
type Response struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata"`
}

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason"`
	Index        int     `json:"index"`
}

type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

var finishReasonToUnified = map[string]unified.FinishReason{
	"STOP":          unified.FinishStop,
	"MAX_TOKENS":    unified.FinishLength,
	"SAFETY":        unified.FinishContentFilter,
	"RECITATION":    unified.FinishContentFilter,
	"OTHER":         unified.FinishStop,
}

// EncodeRequest converts a unified request into Gemini's native shape.
// System messages become systemInstruction; assistant becomes "model";
// tool-call/tool-result messages map onto functionCall/functionResponse
// parts. additionalProperties is stripped from tool parameter schemas
// since Google rejects it (spec.md §4.2 "Google driver").
func EncodeRequest(req *unified.Request) *Request {
	out := &Request{}

	if req.System != "" {
		out.SystemInstruction = &Content{Parts: []Part{{Text: req.System}}}
	}

	for _, m := range req.Messages {
		out.Contents = append(out.Contents, encodeMessage(m))
	}

	cfg := &GenerationConfig{
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		TopK:          req.TopK,
		StopSequences: req.StopSequences,
	}
	if req.MaxTokens != nil {
		cfg.MaxOutputTokens = *req.MaxTokens
	}
	out.GenerationConfig = cfg

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, Tool{FunctionDeclarations: []FunctionDeclaration{{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  StripAdditionalProperties(t.Function.Parameters),
		}}})
	}

	if req.ToolChoice != nil {
		mode := "AUTO"
		var allowed []string
		switch {
		case req.ToolChoice.FunctionName != "":
			mode = "ANY"
			allowed = []string{req.ToolChoice.FunctionName}
		case req.ToolChoice.Mode == unified.ToolChoiceNone:
			mode = "NONE"
		case req.ToolChoice.Mode == unified.ToolChoiceRequired:
			mode = "ANY"
		}
		out.ToolConfig = &ToolConfig{FunctionCallingConfig: FunctionCallingConfig{
			Mode:                 mode,
			AllowedFunctionNames: allowed,
		}}
	}

	return out
}

func encodeMessage(m unified.Message) Content {
	role := "user"
	if m.Role == unified.RoleAssistant {
		role = "model"
	}

	var parts []Part
	if m.Role == unified.RoleTool {
		parts = append(parts, Part{FunctionResponse: &FunctionResponse{
			Name:     m.ToolCallID,
			Response: json.RawMessage(`{"result":` + mustQuote(m.Text) + `}`),
		}})
		return Content{Role: "user", Parts: parts}
	}

	if m.IsBlocks() {
		for _, b := range m.Blocks {
			switch b.Type {
			case unified.ContentText:
				parts = append(parts, Part{Text: b.Text})
			case unified.ContentImage:
				parts = append(parts, Part{InlineData: &Blob{
					MimeType: b.ImageBase64MediaType,
					Data:     b.ImageBase64Data,
				}})
			case unified.ContentToolUse:
				parts = append(parts, Part{FunctionCall: &FunctionCall{Name: b.ToolUseName, Args: b.ToolUseInput}})
			case unified.ContentToolResult:
				text := b.ToolResultText
				if len(b.ToolResultTexts) > 0 {
					for _, t := range b.ToolResultTexts {
						text += t
					}
				}
				parts = append(parts, Part{FunctionResponse: &FunctionResponse{
					Name:     b.ToolUseID,
					Response: json.RawMessage(`{"result":` + mustQuote(text) + `}`),
				}})
			}
		}
	} else if m.Text != "" {
		parts = append(parts, Part{Text: m.Text})
	}

	for _, tc := range m.ToolCalls {
		parts = append(parts, Part{FunctionCall: &FunctionCall{Name: tc.Name, Args: argsToValue(tc)}})
	}

	return Content{Role: role, Parts: parts}
}

func argsToValue(tc unified.ToolCall) json.RawMessage {
	if !tc.Arguments.IsString {
		return tc.Arguments.Value
	}
	if json.Valid([]byte(tc.Arguments.String)) {
		return json.RawMessage(tc.Arguments.String)
	}
	return json.RawMessage("{}")
}

func mustQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// DecodeResponse converts a Gemini response into the unified model.
func DecodeResponse(model string, resp *Response) *unified.Response {
	// Gemini never returns a response id of its own; synthesize one so
	// callers get the same id-bearing shape every other driver produces.
	out := &unified.Response{ID: "gen-" + uuid.NewString(), Model: model}

	if resp.UsageMetadata != nil {
		out.Usage = unified.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}

	for _, cand := range resp.Candidates {
		out.Choices = append(out.Choices, unified.Choice{
			Index:        cand.Index,
			Message:      decodeContent(cand.Content),
			FinishReason: mapFinishReason(cand.FinishReason),
		})
	}

	return out
}

func decodeContent(c Content) unified.Message {
	msg := unified.Message{Role: unified.RoleAssistant, Blocks: []unified.Content{}}
	for _, p := range c.Parts {
		switch {
		case p.Text != "":
			msg.Blocks = append(msg.Blocks, unified.Content{Type: unified.ContentText, Text: p.Text})
		case p.FunctionCall != nil:
			msg.Blocks = append(msg.Blocks, unified.Content{
				Type:         unified.ContentToolUse,
				ToolUseName:  p.FunctionCall.Name,
				ToolUseInput: p.FunctionCall.Args,
			})
			msg.ToolCalls = append(msg.ToolCalls, unified.ToolCall{
				Name:      p.FunctionCall.Name,
				Arguments: unified.Arguments{Value: p.FunctionCall.Args},
			})
		}
	}
	return msg
}

func mapFinishReason(fr string) unified.FinishReason {
	if mapped, ok := finishReasonToUnified[fr]; ok {
		return mapped
	}
	return unified.FinishStop
}

// DecodeChunk folds one Gemini streaming response payload (the same shape
// as a non-streaming Response, per Gemini's SSE framing) into a unified
// chunk.
func DecodeChunk(id, model string, resp *Response) *unified.Chunk {
	out := &unified.Chunk{ID: id, Model: model}
	if resp.UsageMetadata != nil {
		out.Usage = &unified.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}
	for _, cand := range resp.Candidates {
		delta := unified.MessageDelta{}
		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				delta.Content += p.Text
			}
		}
		var finish unified.FinishReason
		if cand.FinishReason != "" {
			finish = mapFinishReason(cand.FinishReason)
		}
		out.Choices = append(out.Choices, unified.ChoiceDelta{
			Index:        cand.Index,
			Delta:        delta,
			FinishReason: finish,
		})
	}
	return out
}

// StripAdditionalProperties removes the "additionalProperties" key from a
// JSON Schema document at every level, since Google's Gemini API rejects
// tool parameter schemas that carry it (spec.md §4.2).
func StripAdditionalProperties(schema json.RawMessage) json.RawMessage {
	if len(schema) == 0 {
		return schema
	}
	var v any
	if err := json.Unmarshal(schema, &v); err != nil {
		return schema
	}
	stripped := stripAP(v)
	out, err := json.Marshal(stripped)
	if err != nil {
		return schema
	}
	return out
}

func stripAP(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			if k == "additionalProperties" {
				continue
			}
			out[k] = stripAP(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = stripAP(vv)
		}
		return out
	default:
		return v
	}
}
