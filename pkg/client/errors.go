package client

import (
	"errors"
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassNetwork represents transport failures (no response).
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassClient represents 4xx responses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassUnexpected represents anything else.
	ErrorClassUnexpected ErrorClass = "unexpected"
)

// ErrResponseTooLarge is returned when a response body exceeds the read limit.
var ErrResponseTooLarge = errors.New("response body too large")

// Text codes attached to service error envelopes.
const (
	TextCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	TextCodeUpstreamRejected    = "UPSTREAM_REJECTED"
	TextCodeUpstreamFailed      = "UPSTREAM_FAILED"
)

// RequestError is a failed call to the Fieldwire API.
type RequestError struct {
	Method     string
	Target     string
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	prefix := "fieldwire " + string(e.Class) + " error"
	if e.Method != "" {
		prefix += " (" + e.Method + " " + e.Target + ")"
	}
	if e.StatusCode != 0 {
		prefix += fmt.Sprintf(" status %d", e.StatusCode)
	}
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	default:
		return prefix
	}
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// ToServiceError maps the failure onto a service error envelope.
// Client errors keep the upstream status; everything else is a 502.
func (e *RequestError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{"class": string(e.Class)}
	if e.StatusCode != 0 {
		metadata["upstream_status"] = e.StatusCode
	}
	if e.Target != "" {
		metadata["target"] = e.Target
	}

	switch {
	case e.Class == ErrorClassClient && e.StatusCode == http.StatusNotFound:
		return goerrors.Wrap(e, goerrors.CategoryNotFound, "upstream resource not found").
			WithCode(http.StatusNotFound).
			WithTextCode(TextCodeUpstreamRejected).
			WithMetadata(metadata)
	case e.Class == ErrorClassClient && e.StatusCode == http.StatusTooManyRequests:
		return goerrors.Wrap(e, goerrors.CategoryRateLimit, "upstream rate limit exceeded").
			WithCode(http.StatusTooManyRequests).
			WithTextCode(TextCodeUpstreamRejected).
			WithMetadata(metadata)
	case e.Class == ErrorClassClient:
		return goerrors.Wrap(e, goerrors.CategoryBadInput, "upstream rejected the request").
			WithCode(e.StatusCode).
			WithTextCode(TextCodeUpstreamRejected).
			WithMetadata(metadata)
	case e.Class == ErrorClassNetwork:
		return goerrors.Wrap(e, goerrors.CategoryExternal, "upstream unreachable").
			WithCode(http.StatusBadGateway).
			WithTextCode(TextCodeUpstreamUnavailable).
			WithMetadata(metadata)
	default:
		return goerrors.Wrap(e, goerrors.CategoryExternal, "upstream request failed").
			WithCode(http.StatusBadGateway).
			WithTextCode(TextCodeUpstreamFailed).
			WithMetadata(metadata)
	}
}

// classifyStatus categorizes a response status that was not expected.
func classifyStatus(status int) ErrorClass {
	switch {
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassUnexpected
	}
}
