package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy (sentinels). Handlers map these to HTTP statuses in a
// single adapter; repos wrap them with op= context.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrRateLimited     = errors.New("rate limited")
	ErrTransient       = errors.New("transient database error")
	ErrInternal        = errors.New("internal error")
)

// Stable machine codes carried in the error envelope.
const (
	CodeAuthRequired        = "AUTH_REQUIRED"
	CodeAuthForbidden       = "AUTH_FORBIDDEN"
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeInsufficientStock   = "INSUFFICIENT_STOCK"
	CodeBatchLocked         = "BATCH_LOCKED"
	CodeProductUnavailable  = "PRODUCT_UNAVAILABLE"
	CodeIdemEndpointMism    = "IDEMPOTENCY_ENDPOINT_MISMATCH"
	CodeReceiptCollision    = "RECEIPT_COLLISION"
	CodeStaffAlreadyLinked  = "STAFF_ALREADY_LINKED"
	CodeAccountExists       = "ACCOUNT_ALREADY_EXISTS"
	CodeArchiveConfirmation = "ARCHIVE_CONFIRMATION_MISMATCH"
	CodeDBTransient         = "DB_TRANSIENT"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL"
)

// CodedError attaches a stable machine code and optional structured
// details to a sentinel from the taxonomy above.
type CodedError struct {
	Code    string
	Details map[string]any
	err     error
	msg     string
}

// Coded wraps sentinel with a machine code and message.
func Coded(sentinel error, code, msg string) *CodedError {
	return &CodedError{Code: code, err: sentinel, msg: msg}
}

// WithDetails attaches structured details and returns the same error.
func (e *CodedError) WithDetails(d map[string]any) *CodedError {
	e.Details = d
	return e
}

func (e *CodedError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return e.err.Error()
}

func (e *CodedError) Unwrap() error { return e.err }

// CodeOf extracts the machine code from err, falling back to a sentinel
// mapping when err is not a CodedError.
func CodeOf(err error) string {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return CodeValidationFailed
	case errors.Is(err, ErrUnauthorized):
		return CodeAuthRequired
	case errors.Is(err, ErrForbidden):
		return CodeAuthForbidden
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrTransient):
		return CodeDBTransient
	}
	return CodeInternal
}

// DetailsOf extracts structured details from err if present.
func DetailsOf(err error) map[string]any {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Details
	}
	return nil
}

// InsufficientStock builds the ledger validation failure for a product.
func InsufficientStock(productID, current, requested int64) error {
	return Coded(ErrConflict, CodeInsufficientStock,
		fmt.Sprintf("insufficient stock for product %d: have %d, requested %d", productID, current, requested)).
		WithDetails(map[string]any{"product_id": productID, "current": current, "requested": requested})
}
