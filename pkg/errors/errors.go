package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an application-level error with HTTP status code
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeInternalError      = "internal_error"
	ErrCodeStorageUnavailable = "storage_unavailable"
	ErrCodeRecoveryNotFound   = "recovery_not_found"
	ErrCodeNetworkMismatch    = "network_mismatch"
	ErrCodeSubmissionTimeout  = "submission_timeout"
	ErrCodeSponsorFunds       = "insufficient_sponsor_funds"
	ErrCodeSponsorUnset       = "sponsor_unconfigured"
	ErrCodeInvalidTransaction = "invalid_transaction"
	ErrCodeSubmissionFailed   = "submission_failed"
)

// Predefined errors
var (
	ErrBadRequest = &AppError{
		Code:       ErrCodeBadRequest,
		Message:    "Invalid request parameters",
		StatusCode: http.StatusBadRequest,
	}

	ErrNotFound = &AppError{
		Code:       ErrCodeNotFound,
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrInternalError = &AppError{
		Code:       ErrCodeInternalError,
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	// ErrStorageUnavailable means every vault tier failed. The caller should
	// prompt the user to re-link or restore, not crash.
	ErrStorageUnavailable = &AppError{
		Code:       ErrCodeStorageUnavailable,
		Message:    "Secure storage is unavailable",
		StatusCode: http.StatusServiceUnavailable,
	}

	// ErrRecoveryNotFound means no credential exists under either identifier.
	// Creating a fresh credential is a legitimate response to this error.
	ErrRecoveryNotFound = &AppError{
		Code:       ErrCodeRecoveryNotFound,
		Message:    "No wallet credential found",
		StatusCode: http.StatusNotFound,
	}

	ErrSponsorUnconfigured = &AppError{
		Code:       ErrCodeSponsorUnset,
		Message:    "Fee sponsor is not configured",
		StatusCode: http.StatusServiceUnavailable,
	}
)

// New creates a new AppError
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// NewWithDetail creates a new AppError with additional detail
func NewWithDetail(code, message, detail string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Detail:     detail,
		StatusCode: statusCode,
	}
}

// NetworkMismatch creates the error returned when the client's declared
// network does not match the backend's resolved network. The detail is kept
// server-side; clients see a generic retry-later message so that internal
// network configuration is not exposed.
func NetworkMismatch(declared, resolved string) *AppError {
	return &AppError{
		Code:       ErrCodeNetworkMismatch,
		Message:    "Service temporarily unavailable, please retry later",
		Detail:     fmt.Sprintf("declared %q, backend resolved %q", declared, resolved),
		StatusCode: http.StatusConflict,
	}
}

// SubmissionTimeout creates the ambiguous-outcome error: the transaction may
// still land after the client stops waiting, so the caller must check history
// before retrying.
func SubmissionTimeout(signature string) *AppError {
	return &AppError{
		Code:       ErrCodeSubmissionTimeout,
		Message:    "Transaction submission timed out; it may still have succeeded. Check transaction history before retrying.",
		Detail:     fmt.Sprintf("signature: %s", signature),
		StatusCode: http.StatusGatewayTimeout,
	}
}

// InsufficientSponsorFunds creates the operational-alert error raised when
// the fee sponsor cannot cover the network fee.
func InsufficientSponsorFunds(detail string) *AppError {
	return &AppError{
		Code:       ErrCodeSponsorFunds,
		Message:    "Fee sponsor has insufficient funds",
		Detail:     detail,
		StatusCode: http.StatusServiceUnavailable,
	}
}

// InvalidTransaction creates an error for malformed or undecodable
// serialized transactions.
func InvalidTransaction(detail string) *AppError {
	return &AppError{
		Code:       ErrCodeInvalidTransaction,
		Message:    "Transaction could not be decoded",
		Detail:     detail,
		StatusCode: http.StatusBadRequest,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code string) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Code == code
}
