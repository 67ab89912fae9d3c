package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeUnauthorized   = "unauthorized"
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeInternal       = "internal_error"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeInvalidMessage = "invalid_message"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("conversation not found")
	ErrPersistence  = errors.New("persistence failure")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrNotActive    = errors.New("connection not active")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string `json:"code"`
	Message string `json:"msg"`
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// ToCoreError maps a domain error onto its wire representation.
// Store failures are reported generically.
func ToCoreError(err error) *CoreError {
	var ce *CoreError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, ErrValidation):
		return coreError(ErrCodeBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return coreError(ErrCodeNotFound, "conversation not found")
	case errors.Is(err, ErrRateLimited):
		return coreError(ErrCodeRateLimited, "too many messages, slow down")
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrNotActive):
		return coreError(ErrCodeUnauthorized, err.Error())
	default:
		return coreError(ErrCodeInternal, "failed to process request")
	}
}
