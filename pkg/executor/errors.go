package executor

import (
	"errors"
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// ErrNilOperation is recorded for nil entries in a batch.
var ErrNilOperation = errors.New("nil operation")

// TextCodeOperationFailed is attached to service error envelopes.
const TextCodeOperationFailed = "OPERATION_FAILED"

// OperationError is the failure of the operation at Index.
type OperationError struct {
	Index int
	Err   error

	// Panicked is true when the operation panicked instead of returning.
	Panicked bool
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %d failed: %v", e.Index, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *OperationError) Unwrap() error {
	return e.Err
}

// ToServiceError maps the failure onto a service error envelope.
// A returned error defers to the cause when it has its own mapping.
func (e *OperationError) ToServiceError() *goerrors.Error {
	if !e.Panicked {
		var mapper interface{ ToServiceError() *goerrors.Error }
		if errors.As(e.Err, &mapper) {
			return mapper.ToServiceError()
		}
	}
	return goerrors.Wrap(e, goerrors.CategoryOperation, "operation failed").
		WithCode(http.StatusBadGateway).
		WithTextCode(TextCodeOperationFailed).
		WithMetadata(map[string]any{"index": e.Index, "panicked": e.Panicked})
}
