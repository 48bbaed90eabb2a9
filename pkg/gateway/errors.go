package gateway

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the failure class of a gateway error.
type ErrorCode string

const (
	// CodeInvalidRequest marks a request rejected before execution.
	CodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	// CodeRateLimited marks a caller that exceeded its token bucket.
	CodeRateLimited ErrorCode = "RATE_LIMIT_EXCEEDED"
	// CodeProviderUnavailable marks a single-provider failure with
	// no fallback attempted.
	CodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	// CodeAllProvidersExhausted marks a fallback chain that failed
	// end to end.
	CodeAllProvidersExhausted ErrorCode = "ALL_PROVIDERS_EXHAUSTED"
	// CodeInsufficientResponses marks a round table that gathered
	// fewer successes than required.
	CodeInsufficientResponses ErrorCode = "ROUND_TABLE_INSUFFICIENT_RESPONSES"
	// CodeDuplicateFailed marks a failure shared from a collapsed
	// duplicate of this request.
	CodeDuplicateFailed ErrorCode = "DUPLICATE_REQUEST_FAILED"
)

// Error is the typed failure returned by the gateway.
type Error struct {
	Code          ErrorCode
	Message       string
	CorrelationID string
	// RetryAfter is the suggested wait in seconds. Only set for
	// rate limit errors.
	RetryAfter float64
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the gateway error code, or empty for foreign errors.
func CodeOf(err error) ErrorCode {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}
