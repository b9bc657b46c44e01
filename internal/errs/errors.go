// Package errs defines the error taxonomy shared by payment and shipping
// providers. Callers branch with errors.As/Is; the HTTP boundary maps each
// type to a status code.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError means the caller-supplied data is insufficient. Not
// retryable; the input has to change.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ProviderUnavailableError wraps a network/timeout/unparseable-5xx failure.
// Retryable with backoff by the caller; never retried automatically here.
type ProviderUnavailableError struct {
	Provider string
	Err      error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("provider %s unavailable: %v", e.Provider, e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

// Issue is one structured error entry from a provider response body.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ProviderRejectedError carries the provider's structured issue list from a
// 4xx/5xx response with a parseable body. Surfaced verbatim so staff can
// correct the payload; not retryable without a payload change.
type ProviderRejectedError struct {
	Provider string
	Status   int
	Issues   []Issue
}

func (e *ProviderRejectedError) Error() string {
	if len(e.Issues) == 0 {
		return fmt.Sprintf("provider %s rejected request (HTTP %d)", e.Provider, e.Status)
	}
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		if is.Code != "" {
			parts = append(parts, is.Code+": "+is.Message)
		} else {
			parts = append(parts, is.Message)
		}
	}
	return strings.Join(parts, "; ")
}

// SignatureInvalidError means webhook authenticity could not be established.
// The request is rejected and logged; the payload is never processed.
type SignatureInvalidError struct {
	Reason string
}

func (e *SignatureInvalidError) Error() string {
	return "webhook signature invalid: " + e.Reason
}

// LabelMissingError means the carrier reported success but returned no usable
// label. Treated as a hard failure despite the 2xx.
type LabelMissingError struct {
	Provider string
}

func (e *LabelMissingError) Error() string {
	return fmt.Sprintf("provider %s returned no label", e.Provider)
}

// Retryable reports whether the caller may retry the operation unchanged.
func Retryable(err error) bool {
	var pu *ProviderUnavailableError
	return errors.As(err, &pu)
}
