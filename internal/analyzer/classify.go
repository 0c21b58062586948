package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind categorizes a failed analysis attempt.
type ErrorKind string

const (
	ErrorNetwork     ErrorKind = "network"
	ErrorValidation  ErrorKind = "validation"
	ErrorServer      ErrorKind = "server"
	ErrorRateLimited ErrorKind = "rate_limited"
	ErrorUnknown     ErrorKind = "unknown"
)

// ClassifiedError is a failed analysis attempt mapped onto the error taxonomy.
// Retryable errors are expected to potentially succeed if the identical
// request is repeated.
type ClassifiedError struct {
	Kind      ErrorKind
	Message   string
	Retryable bool
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// serviceError is the structured error body returned by the analysis service.
type serviceError struct {
	Error            string `json:"error"`
	Detail           string `json:"detail"`
	ErrorCode        string `json:"error_code"`
	ValidationErrors []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"validation_errors"`
}

// Classify maps the outcome of a single failed remote call onto the error
// taxonomy. Transport failures with no response are retryable network errors;
// 4xx responses (except 429) are the caller's fault and will not succeed
// unmodified; 429 and 5xx are transient. Classify is total: it never panics
// and always returns a non-nil result for a non-nil error.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var cerr *ClassifiedError
	if errors.As(err, &cerr) {
		return cerr
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		// Caller-initiated cancellation is not a service fault; repeating the
		// request will not help. Deadline expiry stays a network timeout.
		if errors.Is(err, context.Canceled) {
			return &ClassifiedError{
				Kind:      ErrorUnknown,
				Message:   "analysis cancelled",
				Retryable: false,
			}
		}
		// No response was received at all: timeout, connection reset, DNS.
		return &ClassifiedError{
			Kind:      ErrorNetwork,
			Message:   err.Error(),
			Retryable: true,
		}
	}

	status := apiErr.Status
	switch {
	case status == http.StatusTooManyRequests:
		return &ClassifiedError{
			Kind:      ErrorRateLimited,
			Message:   messageFromBody(apiErr.Body, "analysis service is rate limiting requests"),
			Retryable: true,
		}
	case status >= 500:
		return &ClassifiedError{
			Kind:      ErrorServer,
			Message:   messageFromBody(apiErr.Body, fmt.Sprintf("analysis service error (status %d)", status)),
			Retryable: true,
		}
	case status >= 400:
		msg, ok := parseErrorBody(apiErr.Body)
		if !ok {
			return &ClassifiedError{
				Kind:      ErrorUnknown,
				Message:   fmt.Sprintf("request rejected with status %d", status),
				Retryable: false,
			}
		}
		return &ClassifiedError{
			Kind:      ErrorValidation,
			Message:   msg,
			Retryable: false,
		}
	default:
		return &ClassifiedError{
			Kind:      ErrorUnknown,
			Message:   fmt.Sprintf("unexpected status %d", status),
			Retryable: false,
		}
	}
}

// parseErrorBody extracts a human-readable message from a structured error
// body. Returns false if the body is missing or not parseable.
func parseErrorBody(body []byte) (string, bool) {
	if len(body) == 0 {
		return "", false
	}
	var se serviceError
	if err := json.Unmarshal(body, &se); err != nil {
		return "", false
	}
	if len(se.ValidationErrors) > 0 {
		parts := make([]string, 0, len(se.ValidationErrors))
		for _, ve := range se.ValidationErrors {
			parts = append(parts, ve.Message)
		}
		return strings.Join(parts, "; "), true
	}
	if se.Detail != "" {
		return se.Detail, true
	}
	if se.Error != "" {
		return se.Error, true
	}
	return "", false
}

func messageFromBody(body []byte, fallback string) string {
	if msg, ok := parseErrorBody(body); ok {
		return msg
	}
	return fallback
}
