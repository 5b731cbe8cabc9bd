package pagination

import (
	"errors"
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Reason classifies a pagination failure.
type Reason string

const (
	// ReasonMissingCursor means a page reported more data without a cursor.
	ReasonMissingCursor Reason = "missing_cursor"

	// ReasonPageLimit means MaxPages was reached while more data was reported.
	ReasonPageLimit Reason = "page_limit"

	// ReasonFetchFailed means fetching a page failed.
	ReasonFetchFailed Reason = "fetch_failed"

	// ReasonDecodeFailed means a page body or item could not be decoded.
	ReasonDecodeFailed Reason = "decode_failed"
)

// TextCodePaginationFailed is attached to service error envelopes.
const TextCodePaginationFailed = "PAGINATION_FAILED"

// PaginationError reports why an aggregation failed.
type PaginationError struct {
	Target string
	Reason Reason

	// Page is the zero-based page number at which the failure happened.
	Page int

	Err error
}

// Error implements the error interface.
func (e *PaginationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pagination of %s failed at page %d (%s): %v", e.Target, e.Page, e.Reason, e.Err)
	}
	return fmt.Sprintf("pagination of %s failed at page %d (%s)", e.Target, e.Page, e.Reason)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PaginationError) Unwrap() error {
	return e.Err
}

// ToServiceError maps the failure onto a service error envelope.
// A failed page fetch defers to the cause when it has its own mapping.
func (e *PaginationError) ToServiceError() *goerrors.Error {
	if e.Reason == ReasonFetchFailed {
		var mapper interface{ ToServiceError() *goerrors.Error }
		if errors.As(e.Err, &mapper) {
			return mapper.ToServiceError()
		}
	}
	return goerrors.Wrap(e, goerrors.CategoryExternal, "upstream pagination failed").
		WithCode(http.StatusBadGateway).
		WithTextCode(TextCodePaginationFailed).
		WithMetadata(map[string]any{"reason": string(e.Reason), "page": e.Page, "target": e.Target})
}
