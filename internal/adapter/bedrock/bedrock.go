// Package bedrock provides the lossy Unified → Bedrock Converse API native
// conversion. Bedrock never speaks to callers directly; "native" here means
// the AWS SDK's own Converse request/response types rather than a
// hand-rolled wire shape, since the SDK is the wire format (spec.md §4.1
// "Unified → (Provider-native)", §4.2 "Bedrock driver").
package bedrock

import (
	"encoding/base64"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go/document"

	"github.com/llmrouter/gateway/internal/unified"
)

// stopReasonToFinish maps Bedrock's native stop reasons to the unified
// vocabulary (spec.md §4.1 "Bedrock stop_reason").
var stopReasonToFinish = map[types.StopReason]unified.FinishReason{
	types.StopReasonEndTurn:             unified.FinishStop,
	types.StopReasonStopSequence:        unified.FinishStop,
	types.StopReasonMaxTokens:           unified.FinishLength,
	types.StopReasonToolUse:             unified.FinishToolCalls,
	types.StopReasonContentFiltered:     unified.FinishContentFilter,
	types.StopReasonGuardrailIntervened: unified.FinishContentFilter,
}

// EncodeMessages converts unified messages (and the system prompt) into
// Bedrock Converse's Message/SystemContentBlock shapes.
func EncodeMessages(req *unified.Request) ([]types.SystemContentBlock, []types.Message) {
	var system []types.SystemContentBlock
	if req.System != "" {
		system = append(system, &types.SystemContentBlockMemberText{Value: req.System})
	}

	var messages []types.Message
	for _, m := range req.Messages {
		messages = append(messages, encodeMessage(m))
	}
	return system, messages
}

func encodeMessage(m unified.Message) types.Message {
	role := types.ConversationRoleUser
	if m.Role == unified.RoleAssistant {
		role = types.ConversationRoleAssistant
	}

	var blocks []types.ContentBlock

	if m.Role == unified.RoleTool {
		blocks = append(blocks, &types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
			ToolUseId: aws.String(m.ToolCallID),
			Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: m.Text}},
		}})
		return types.Message{Role: types.ConversationRoleUser, Content: blocks}
	}

	if m.IsBlocks() {
		for _, b := range m.Blocks {
			if blk := encodeBlock(b); blk != nil {
				blocks = append(blocks, blk)
			}
		}
	} else if m.Text != "" {
		blocks = append(blocks, &types.ContentBlockMemberText{Value: m.Text})
	}

	for _, tc := range m.ToolCalls {
		blocks = append(blocks, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
			ToolUseId: aws.String(tc.ID),
			Name:      aws.String(tc.Name),
			Input:     argumentsToDocument(tc.Arguments),
		}})
	}

	return types.Message{Role: role, Content: blocks}
}

func encodeBlock(b unified.Content) types.ContentBlock {
	switch b.Type {
	case unified.ContentText:
		return &types.ContentBlockMemberText{Value: b.Text}
	case unified.ContentImage:
		if b.ImageBase64Data == "" {
			return nil
		}
		return &types.ContentBlockMemberImage{Value: types.ImageBlock{
			Format: imageFormat(b.ImageBase64MediaType),
			Source: &types.ImageSourceMemberBytes{Value: decodeBase64(b.ImageBase64Data)},
		}}
	case unified.ContentToolUse:
		return &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
			ToolUseId: aws.String(b.ToolUseID),
			Name:      aws.String(b.ToolUseName),
			Input:     document.NewLazyDocument(rawToAny(b.ToolUseInput)),
		}}
	case unified.ContentToolResult:
		var content []types.ToolResultContentBlock
		if len(b.ToolResultTexts) > 0 {
			for _, t := range b.ToolResultTexts {
				content = append(content, &types.ToolResultContentBlockMemberText{Value: t})
			}
		} else {
			content = append(content, &types.ToolResultContentBlockMemberText{Value: b.ToolResultText})
		}
		status := types.ToolResultStatusSuccess
		if b.ToolResultIsError {
			status = types.ToolResultStatusError
		}
		return &types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
			ToolUseId: aws.String(b.ToolUseID),
			Content:   content,
			Status:    status,
		}}
	default:
		return nil
	}
}

func argumentsToDocument(a unified.Arguments) document.Interface {
	if !a.IsString {
		return document.NewLazyDocument(rawToAny(a.Value))
	}
	var v any
	if err := json.Unmarshal([]byte(a.String), &v); err != nil {
		v = map[string]any{}
	}
	return document.NewLazyDocument(v)
}

func rawToAny(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return map[string]any{}
	}
	return v
}

func decodeBase64(s string) []byte {
	// Unified image data is base64 text; Bedrock's ImageSourceMemberBytes
	// takes the raw bytes. Input that is not valid standard base64 is
	// passed through as-is.
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return []byte(s)
	}
	return b
}

func imageFormat(mediaType string) types.ImageFormat {
	switch mediaType {
	case "image/png":
		return types.ImageFormatPng
	case "image/gif":
		return types.ImageFormatGif
	case "image/webp":
		return types.ImageFormatWebp
	default:
		return types.ImageFormatJpeg
	}
}

// EncodeTools converts unified tool definitions and tool choice into
// Bedrock's ToolConfiguration.
func EncodeTools(req *unified.Request) *types.ToolConfiguration {
	if len(req.Tools) == 0 {
		return nil
	}
	cfg := &types.ToolConfiguration{}
	for _, t := range req.Tools {
		cfg.Tools = append(cfg.Tools, &types.ToolMemberToolSpec{Value: types.ToolSpecification{
			Name:        aws.String(t.Function.Name),
			Description: aws.String(t.Function.Description),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(rawToAny(t.Function.Parameters))},
		}})
	}
	if req.ToolChoice != nil {
		switch {
		case req.ToolChoice.FunctionName != "":
			cfg.ToolChoice = &types.ToolChoiceMemberTool{Value: types.SpecificToolChoice{Name: aws.String(req.ToolChoice.FunctionName)}}
		case req.ToolChoice.Mode == unified.ToolChoiceRequired:
			cfg.ToolChoice = &types.ToolChoiceMemberAny{Value: types.AnyToolChoice{}}
		default:
			cfg.ToolChoice = &types.ToolChoiceMemberAuto{Value: types.AutoToolChoice{}}
		}
	}
	return cfg
}

// EncodeInferenceConfig converts shared sampling parameters.
func EncodeInferenceConfig(req *unified.Request) *types.InferenceConfiguration {
	cfg := &types.InferenceConfiguration{StopSequences: req.StopSequences}
	if req.MaxTokens != nil {
		mt := int32(*req.MaxTokens)
		cfg.MaxTokens = &mt
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		cfg.Temperature = &t
	}
	if req.TopP != nil {
		p := float32(*req.TopP)
		cfg.TopP = &p
	}
	return cfg
}

// DecodeMessage converts the assistant Message from a Converse response
// into the unified model.
func DecodeMessage(msg *types.Message) unified.Message {
	out := unified.Message{Role: unified.RoleAssistant, Blocks: []unified.Content{}}
	for _, block := range msg.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			out.Blocks = append(out.Blocks, unified.Content{Type: unified.ContentText, Text: b.Value})
		case *types.ContentBlockMemberToolUse:
			input := documentToRaw(b.Value.Input)
			out.Blocks = append(out.Blocks, unified.Content{
				Type:         unified.ContentToolUse,
				ToolUseID:    aws.ToString(b.Value.ToolUseId),
				ToolUseName:  aws.ToString(b.Value.Name),
				ToolUseInput: input,
			})
			out.ToolCalls = append(out.ToolCalls, unified.ToolCall{
				ID:        aws.ToString(b.Value.ToolUseId),
				Name:      aws.ToString(b.Value.Name),
				Arguments: unified.Arguments{Value: input},
			})
		}
	}
	return out
}

func documentToRaw(doc document.Interface) json.RawMessage {
	if doc == nil {
		return json.RawMessage("{}")
	}
	var v any
	if err := doc.UnmarshalSmithyDocument(&v); err != nil {
		return json.RawMessage("{}")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}

// MapStopReason converts a Converse stop reason to the unified finish
// reason vocabulary.
func MapStopReason(sr types.StopReason) unified.FinishReason {
	if mapped, ok := stopReasonToFinish[sr]; ok {
		return mapped
	}
	return unified.FinishStop
}
