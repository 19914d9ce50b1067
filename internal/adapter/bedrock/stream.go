package bedrock

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/llmrouter/gateway/internal/unified"
)

// StreamFolder folds a sequence of Converse stream events into unified
// chunks, mirroring Anthropic's StreamFolder (spec.md §4.1 "Streaming
// conversion") but driven off the AWS SDK's own event union instead of a
// hand-parsed SSE wire format, since the SDK is the wire format here.
type StreamFolder struct {
	model        string
	inputTokens  int
	outputTokens int
}

// NewStreamFolder creates a folder for one Bedrock Converse stream.
func NewStreamFolder(model string) *StreamFolder {
	return &StreamFolder{model: model}
}

// Fold consumes one decoded stream event and returns the unified chunk it
// produces, if any, plus whether this event terminates the stream.
func (f *StreamFolder) Fold(event types.ConverseStreamOutput) (*unified.Chunk, bool) {
	switch ev := event.(type) {
	case *types.ConverseStreamOutputMemberMessageStart:
		return f.chunk(unified.MessageDelta{Role: unified.RoleAssistant}, ""), false

	case *types.ConverseStreamOutputMemberContentBlockStart:
		idx := int(aws.ToInt32(ev.Value.ContentBlockIndex))
		if tu, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
			return f.chunk(unified.MessageDelta{
				ToolCalls: []unified.ToolCallDelta{{
					Kind:  unified.ToolCallStart,
					Index: idx,
					ID:    aws.ToString(tu.Value.ToolUseId),
					Name:  aws.ToString(tu.Value.Name),
				}},
			}, ""), false
		}
		return nil, false

	case *types.ConverseStreamOutputMemberContentBlockDelta:
		idx := int(aws.ToInt32(ev.Value.ContentBlockIndex))
		switch d := ev.Value.Delta.(type) {
		case *types.ContentBlockDeltaMemberText:
			return f.chunk(unified.MessageDelta{Content: d.Value}, ""), false
		case *types.ContentBlockDeltaMemberToolUse:
			return f.chunk(unified.MessageDelta{
				ToolCalls: []unified.ToolCallDelta{{
					Kind:      unified.ToolCallArgsDelta,
					Index:     idx,
					Arguments: aws.ToString(d.Value.Input),
				}},
			}, ""), false
		default:
			return nil, false
		}

	case *types.ConverseStreamOutputMemberContentBlockStop:
		return nil, false

	case *types.ConverseStreamOutputMemberMetadata:
		if ev.Value.Usage != nil {
			f.inputTokens = int(aws.ToInt32(ev.Value.Usage.InputTokens))
			f.outputTokens = int(aws.ToInt32(ev.Value.Usage.OutputTokens))
		}
		return nil, false

	case *types.ConverseStreamOutputMemberMessageStop:
		finish := MapStopReason(ev.Value.StopReason)
		return &unified.Chunk{
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
		}, true

	default:
		return nil, false
	}
}

func (f *StreamFolder) chunk(delta unified.MessageDelta, finish unified.FinishReason) *unified.Chunk {
	return &unified.Chunk{
		Model: f.model,
		Choices: []unified.ChoiceDelta{{
			Index:        0,
			Delta:        delta,
			FinishReason: finish,
		}},
	}
}
