package provider

import (
	"errors"
	"testing"

	smithy "github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"

	"github.com/llmrouter/gateway/internal/apierror"
)

type fakeAPIError struct {
	code    string
	message string
}

func (e *fakeAPIError) Error() string     { return e.code + ": " + e.message }
func (e *fakeAPIError) ErrorCode() string { return e.code }
func (e *fakeAPIError) ErrorMessage() string { return e.message }
func (e *fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

func TestHandleBedrockError_MapsKnownCodesToTaxonomy(t *testing.T) {
	cases := []struct {
		code string
		kind apierror.Kind
	}{
		{"AccessDeniedException", apierror.KindAuthenticationFailed},
		{"ResourceNotFoundException", apierror.KindModelNotFound},
		{"ThrottlingException", apierror.KindRateLimitExceeded},
		{"ValidationException", apierror.KindInvalidRequest},
	}

	for _, tc := range cases {
		err := handleBedrockError(&fakeAPIError{code: tc.code, message: "boom"})
		apiErr, ok := apierror.As(err)
		if assert.True(t, ok, "code %s should map to an apierror", tc.code) {
			assert.Equal(t, tc.kind, apiErr.Kind, "code %s", tc.code)
		}
	}
}

func TestHandleBedrockError_UnmappedCodeFallsBackToProviderAPIError(t *testing.T) {
	err := handleBedrockError(&fakeAPIError{code: "SomeNewException", message: "boom"})
	apiErr, ok := apierror.As(err)
	if assert.True(t, ok) {
		assert.Equal(t, apierror.KindProviderAPIError, apiErr.Kind)
	}
}

func TestHandleBedrockError_NonAPIErrorBecomesConnectionFailed(t *testing.T) {
	err := handleBedrockError(errors.New("dial tcp: connection refused"))
	apiErr, ok := apierror.As(err)
	if assert.True(t, ok) {
		assert.Equal(t, apierror.KindConnectionError, apiErr.Kind)
	}
}

func TestOwnerFromModelARN_ExtractsProviderPrefix(t *testing.T) {
	arn := "arn:aws:bedrock:us-east-1::foundation-model/anthropic.claude-3-opus-20240229-v1:0"
	assert.Equal(t, "anthropic", ownerFromModelARN(arn, "fallback"))
}

func TestOwnerFromModelARN_FallsBackWhenUnparseable(t *testing.T) {
	assert.Equal(t, "fallback", ownerFromModelARN("not-an-arn", "fallback"))
}
