// Package apperrors defines the typed error kinds superFetch surfaces to
// tool handlers and the HTTP surface, per the error handling design.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind discriminates the error taxonomy.
type Kind string

const (
	KindValidation    Kind = "ValidationError"
	KindFetch         Kind = "FetchError"
	KindTimeout       Kind = "TimeoutError"
	KindRateLimit     Kind = "RateLimitError"
	KindURLValidation Kind = "UrlValidationError"
	KindInternal      Kind = "InternalError"
)

// AppError is the common shape for every error the core produces.
type AppError struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	Code       string // machine-readable code, e.g. EBLOCKED, EBADREDIRECT, HOST_NOT_ALLOWED
	URL        string // set for FetchError
	RetryAfter int    // seconds, set for RateLimitError
	Cause      error
}

func (e *AppError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s: %s (url=%s)", e.Kind, e.Message, e.URL)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

func New(kind Kind, status int, code, msg string) *AppError {
	return &AppError{Kind: kind, HTTPStatus: status, Code: code, Message: msg}
}

func Wrap(kind Kind, status int, code string, err error) *AppError {
	return &AppError{Kind: kind, HTTPStatus: status, Code: code, Message: err.Error(), Cause: err}
}

func Validation(msg string) *AppError {
	return New(KindValidation, 400, "", msg)
}

func URLValidation(msg string) *AppError {
	return New(KindURLValidation, 400, "", msg)
}

// Fetch builds a FetchError. httpStatus of 0 defaults to 502; code defaults
// to HTTP_{status} when status is set and code is empty.
func Fetch(url, code, msg string, httpStatus int) *AppError {
	status := httpStatus
	if status == 0 {
		status = 502
	}
	if code == "" && httpStatus != 0 {
		code = fmt.Sprintf("HTTP_%d", httpStatus)
	}
	return &AppError{Kind: KindFetch, HTTPStatus: status, Code: code, Message: msg, URL: url}
}

func Blocked(url, msg string) *AppError {
	return &AppError{Kind: KindFetch, HTTPStatus: 502, Code: "EBLOCKED", Message: msg, URL: url}
}

func BadRedirect(url, msg string) *AppError {
	return &AppError{Kind: KindFetch, HTTPStatus: 502, Code: "EBADREDIRECT", Message: msg, URL: url}
}

func Aborted(url string) *AppError {
	return &AppError{Kind: KindFetch, HTTPStatus: 499, Code: "aborted", Message: "request aborted", URL: url}
}

func Timeout(msg string, gateway bool) *AppError {
	status := 408
	if gateway {
		status = 504
	}
	return New(KindTimeout, status, "", msg)
}

func RateLimit(retryAfter int) *AppError {
	return &AppError{Kind: KindRateLimit, HTTPStatus: 429, Message: "rate limit exceeded", RetryAfter: retryAfter}
}

func Internal(err error) *AppError {
	return Wrap(KindInternal, 500, "", err)
}

// As is a thin convenience wrapper over errors.As for *AppError.
func As(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// JSONRPCCode maps an AppError kind to a JSON-RPC 2.0 error code.
func (e *AppError) JSONRPCCode() int {
	switch e.Kind {
	case KindValidation, KindURLValidation:
		return -32602 // invalid params
	case KindRateLimit:
		return -32000
	case KindTimeout:
		return -32001
	case KindFetch:
		return -32002
	default:
		return -32603 // internal error
	}
}
