package provider

import (
	"context"
	"errors"
	"regexp"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	bedrockadapter "github.com/llmrouter/gateway/internal/adapter/bedrock"
	"github.com/llmrouter/gateway/internal/apierror"
	"github.com/llmrouter/gateway/internal/config"
	"github.com/llmrouter/gateway/internal/unified"
)

// bedrockDriver talks to AWS Bedrock's Converse/ConverseStream API, which
// unifies every model family (Anthropic, Amazon, Meta, Mistral, Cohere,
// AI21) behind one request/response shape (spec.md §4.2 "Bedrock driver").
type bedrockDriver struct {
	cfg     config.ProviderConfig
	runtime *bedrockruntime.Client
	control *bedrock.Client
	pattern *regexp.Regexp
}

func newBedrockDriver(cfg config.ProviderConfig) (*bedrockDriver, error) {
	awsCfg, err := loadBedrockAWSConfig(cfg)
	if err != nil {
		return nil, apierror.Internal(err)
	}
	return &bedrockDriver{
		cfg:     cfg,
		runtime: bedrockruntime.NewFromConfig(awsCfg),
		control: bedrock.NewFromConfig(awsCfg),
		pattern: cfg.CompiledPattern(),
	}, nil
}

// loadBedrockAWSConfig resolves AWS credentials with explicit static keys
// taking precedence over a named profile, which in turn takes precedence
// over the SDK's default provider chain (env vars, instance role, SSO) —
// spec.md §4.2 "credential precedence".
func loadBedrockAWSConfig(cfg config.ProviderConfig) (awssdk.Config, error) {
	ctx := context.Background()
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}

	switch {
	case cfg.AccessKeyID != "" && cfg.SecretAccessKey != "":
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	case cfg.Profile != "":
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

func (d *bedrockDriver) Name() string             { return d.cfg.Name }
func (d *bedrockDriver) Kind() config.ProviderKind { return config.KindBedrock }

func (d *bedrockDriver) Complete(ctx context.Context, nativeModel string, req *unified.Request) (*unified.Response, error) {
	system, messages := bedrockadapter.EncodeMessages(req)

	out, err := d.runtime.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         awssdk.String(nativeModel),
		Messages:        messages,
		System:          system,
		InferenceConfig: bedrockadapter.EncodeInferenceConfig(req),
		ToolConfig:      bedrockadapter.EncodeTools(req),
	})
	if err != nil {
		return nil, handleBedrockError(err)
	}

	resp := &unified.Response{Model: nativeModel}
	if msgOut, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		msg := msgOut.Value
		resp.Choices = []unified.Choice{{
			Index:        0,
			Message:      bedrockadapter.DecodeMessage(&msg),
			FinishReason: bedrockadapter.MapStopReason(out.StopReason),
		}}
	}
	if out.Usage != nil {
		resp.Usage = unified.Usage{
			PromptTokens:     int(awssdk.ToInt32(out.Usage.InputTokens)),
			CompletionTokens: int(awssdk.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:      int(awssdk.ToInt32(out.Usage.TotalTokens)),
		}
	}
	return resp, nil
}

func (d *bedrockDriver) Stream(ctx context.Context, nativeModel string, req *unified.Request) (<-chan StreamEvent, error) {
	system, messages := bedrockadapter.EncodeMessages(req)

	out, err := d.runtime.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
		ModelId:         awssdk.String(nativeModel),
		Messages:        messages,
		System:          system,
		InferenceConfig: bedrockadapter.EncodeInferenceConfig(req),
		ToolConfig:      bedrockadapter.EncodeTools(req),
	})
	if err != nil {
		return nil, handleBedrockError(err)
	}

	result := make(chan StreamEvent)
	go func() {
		defer close(result)

		stream := out.GetStream()
		defer stream.Close()

		folder := bedrockadapter.NewStreamFolder(nativeModel)
		for event := range stream.Events() {
			chunk, done := folder.Fold(event)
			if chunk != nil {
				select {
				case result <- StreamEvent{Chunk: chunk}:
				case <-ctx.Done():
					return
				}
			}
			if done {
				return
			}
		}
		if err := stream.Err(); err != nil {
			select {
			case result <- StreamEvent{Err: apierror.ConnectionFailed(err)}:
			case <-ctx.Done():
			}
		}
	}()

	return result, nil
}

// ListModels implements the two-tier discovery fallback: newer models that
// require an inference profile are listed via ListInferenceProfiles; if
// that call fails (older accounts, unsupported region), this falls back to
// ListFoundationModels. Both are filtered by the provider's model_pattern
// (spec.md §4.4 "Bedrock catalog discovery").
func (d *bedrockDriver) ListModels(ctx context.Context) ([]unified.Model, error) {
	if d.pattern == nil {
		return nil, nil
	}

	profiles, err := d.control.ListInferenceProfiles(ctx, &bedrock.ListInferenceProfilesInput{})
	if err == nil {
		var models []unified.Model
		for _, p := range profiles.InferenceProfileSummaries {
			id := awssdk.ToString(p.InferenceProfileId)
			if !d.pattern.MatchString(id) {
				continue
			}
			owner := d.cfg.Name
			if len(p.Models) > 0 {
				owner = ownerFromModelARN(awssdk.ToString(p.Models[0].ModelArn), owner)
			}
			models = append(models, unified.Model{ID: id, OwnedBy: owner})
		}
		return models, nil
	}

	foundation, err := d.control.ListFoundationModels(ctx, &bedrock.ListFoundationModelsInput{})
	if err != nil {
		return nil, handleBedrockError(err)
	}
	var models []unified.Model
	for _, m := range foundation.ModelSummaries {
		id := awssdk.ToString(m.ModelId)
		if !d.pattern.MatchString(id) {
			continue
		}
		owner := d.cfg.Name
		if m.ProviderName != nil {
			owner = *m.ProviderName
		}
		models = append(models, unified.Model{ID: id, OwnedBy: owner})
	}
	return models, nil
}

func ownerFromModelARN(arn, fallback string) string {
	// arn:aws:bedrock:region::foundation-model/provider.model-id
	idx := strings.LastIndex(arn, "/")
	if idx < 0 {
		return fallback
	}
	modelID := arn[idx+1:]
	parts := strings.SplitN(modelID, ".", 2)
	if parts[0] == "" {
		return fallback
	}
	return parts[0]
}

// handleBedrockError maps AWS SDK service error codes to the gateway's
// error taxonomy (spec.md §7), grounded on the original implementation's
// handle_bedrock_error match.
func handleBedrockError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return apierror.ConnectionFailed(err)
	}

	message := apiErr.ErrorMessage()
	switch apiErr.ErrorCode() {
	case "AccessDeniedException":
		return apierror.AuthenticationFailed("%s", message)
	case "ResourceNotFoundException":
		return apierror.ModelNotFound("%s", message)
	case "ThrottlingException":
		return apierror.RateLimitExceeded(message)
	case "ValidationException":
		return apierror.InvalidRequest("%s", message)
	case "ModelTimeoutException":
		return apierror.ProviderAPIError(504, message)
	case "ServiceUnavailableException":
		return apierror.ProviderAPIError(503, message)
	case "InternalServerException":
		return apierror.Internal(err)
	default:
		return apierror.ProviderAPIError(500, message)
	}
}
