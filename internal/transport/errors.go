package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies a failed remote call.
type ErrorCode string

const (
	ErrRateLimited  ErrorCode = "rate_limited"
	ErrUnauthorized ErrorCode = "unauthorized"
	ErrServer       ErrorCode = "server"
	ErrBadResponse  ErrorCode = "bad_response"
	ErrUnknown      ErrorCode = "unknown"
)

// ProviderError is the normalized error for any remote endpoint.
type ProviderError struct {
	Code    ErrorCode
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Retryable reports whether the call may succeed when repeated.
func (e *ProviderError) Retryable() bool {
	return e.Code == ErrRateLimited || e.Code == ErrServer
}

// Classify maps an HTTP status to a ProviderError. 2xx returns nil.
func Classify(status int, body string) *ProviderError {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return &ProviderError{Code: ErrRateLimited, Status: status, Message: body}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &ProviderError{Code: ErrUnauthorized, Status: status, Message: body}
	case status >= 500:
		return &ProviderError{Code: ErrServer, Status: status, Message: body}
	default:
		return &ProviderError{Code: ErrBadResponse, Status: status, Message: body}
	}
}

// NormalizeError converts any error into a ProviderError.
func NormalizeError(err error) *ProviderError {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Code: ErrUnknown, Message: err.Error()}
}
