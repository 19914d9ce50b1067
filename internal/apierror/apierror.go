// Package apierror defines the gateway's error taxonomy (spec.md §7) and
// the protocol-native envelopes each caller surface encodes it into.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the taxonomy entries from spec.md §7.
type Kind string

const (
	KindInvalidRequest        Kind = "invalid_request"
	KindAuthenticationFailed  Kind = "authentication_failed"
	KindInsufficientQuota     Kind = "insufficient_quota"
	KindProviderNotFound      Kind = "provider_not_found"
	KindModelNotFound         Kind = "model_not_found"
	KindRateLimitExceeded     Kind = "rate_limit_exceeded"
	KindInternalError         Kind = "internal_error"
	KindStreamingNotSupported Kind = "streaming_not_supported"
	KindConnectionError       Kind = "connection_error"
	KindProviderAPIError      Kind = "provider_api_error"
)

// Error is the gateway's internal error representation. It carries enough
// to render either protocol's error envelope without re-inspecting the
// call site.
type Error struct {
	Kind    Kind
	Status  int
	Message string

	// Wrapped is the underlying cause, if any, kept for logging but never
	// surfaced verbatim to the caller.
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

func newErr(kind Kind, status int, format string, args ...any) *Error {
	return &Error{Kind: kind, Status: status, Message: fmt.Sprintf(format, args...)}
}

func InvalidRequest(format string, args ...any) *Error {
	return newErr(KindInvalidRequest, http.StatusBadRequest, format, args...)
}

func AuthenticationFailed(format string, args ...any) *Error {
	return newErr(KindAuthenticationFailed, http.StatusUnauthorized, format, args...)
}

func InsufficientQuota(format string, args ...any) *Error {
	return newErr(KindInsufficientQuota, http.StatusForbidden, format, args...)
}

func ProviderNotFound(name string) *Error {
	return newErr(KindProviderNotFound, http.StatusNotFound, "provider %q is not configured", name)
}

func ModelNotFound(format string, args ...any) *Error {
	return newErr(KindModelNotFound, http.StatusNotFound, format, args...)
}

func RateLimitExceeded(message string) *Error {
	return newErr(KindRateLimitExceeded, http.StatusTooManyRequests, "%s", message)
}

func Internal(wrapped error) *Error {
	return &Error{Kind: KindInternalError, Status: http.StatusInternalServerError, Message: "internal error", Wrapped: wrapped}
}

func StreamingNotSupported(provider string) *Error {
	return newErr(KindStreamingNotSupported, http.StatusBadRequest, "provider %q does not support streaming", provider)
}

func ConnectionFailed(wrapped error) *Error {
	return &Error{Kind: KindConnectionError, Status: http.StatusBadGateway, Message: "connection error", Wrapped: wrapped}
}

func ProviderAPIError(status int, message string) *Error {
	return &Error{Kind: KindProviderAPIError, Status: http.StatusBadGateway, Message: fmt.Sprintf("upstream returned %d: %s", status, message)}
}

// FromUpstreamStatus maps an upstream HTTP status to the taxonomy entry
// spec.md §7 assigns it.
func FromUpstreamStatus(status int, body string) *Error {
	switch status {
	case http.StatusUnauthorized:
		return AuthenticationFailed("upstream rejected credentials: %s", body)
	case http.StatusForbidden:
		return InsufficientQuota("upstream denied the request: %s", body)
	case http.StatusNotFound:
		return ModelNotFound("upstream returned 404: %s", body)
	case http.StatusTooManyRequests:
		return RateLimitExceeded("upstream rate limit exceeded: " + body)
	default:
		return ProviderAPIError(status, body)
	}
}

// As extracts an *Error from err, if any wraps one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// OpenAIEnvelope is the OpenAI-shaped error body: {"error":{message,type,code}}.
type OpenAIEnvelope struct {
	Error OpenAIError `json:"error"`
}

type OpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// ToOpenAI renders err (wrapping it as internal if it isn't already an
// *Error) into the OpenAI error envelope and its HTTP status.
func ToOpenAI(err error) (int, OpenAIEnvelope) {
	e, ok := As(err)
	if !ok {
		e = Internal(err)
	}
	return e.Status, OpenAIEnvelope{Error: OpenAIError{
		Message: e.Message,
		Type:    string(e.Kind) + "_error",
		Code:    e.Status,
	}}
}

// AnthropicEnvelope is the Anthropic-shaped error body:
// {"type":"error","error":{type,message}}.
type AnthropicEnvelope struct {
	Type  string             `json:"type"`
	Error AnthropicErrorBody `json:"error"`
}

type AnthropicErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ToAnthropic renders err into the Anthropic error envelope and its HTTP status.
func ToAnthropic(err error) (int, AnthropicEnvelope) {
	e, ok := As(err)
	if !ok {
		e = Internal(err)
	}
	return e.Status, AnthropicEnvelope{
		Type: "error",
		Error: AnthropicErrorBody{
			Type:    string(e.Kind) + "_error",
			Message: e.Message,
		},
	}
}
