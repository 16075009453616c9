package errors

import (
	"context"
	goerrors "errors"
)

// CheckContext returns an error if the context is canceled or timed out.
// This provides a standardized way to check and wrap context errors.
func CheckContext(ctx context.Context, operation string) error {
	if err := ctx.Err(); err != nil {
		if goerrors.Is(err, context.DeadlineExceeded) {
			return Wrap(err, GenerationTimeout, operation+" timed out")
		}
		return Wrap(err, Canceled, operation+" canceled")
	}
	return nil
}

// Code extracts the ErrorCode from an error chain.
// Returns Unknown for nil or foreign errors.
func Code(err error) ErrorCode {
	var e *Error
	if goerrors.As(err, &e) {
		return e.Code()
	}
	return Unknown
}

// IsCode reports whether any error in the chain carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if goerrors.As(err, &e) {
		return e.Code() == code
	}
	return false
}
