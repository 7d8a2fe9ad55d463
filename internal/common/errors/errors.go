// Package errors provides the standardized error type shared by the relay
// pipeline and its mapping onto HTTP responses.
package errors

import (
	stderrors "errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidRequest         ErrorCode = "INVALID_REQUEST"
	ErrCodeMissingRequiredFields  ErrorCode = "MISSING_REQUIRED_FIELDS"
	ErrCodeSchemaValidationFailed ErrorCode = "SCHEMA_VALIDATION_FAILED"

	ErrCodePersistenceFailed ErrorCode = "PERSISTENCE_FAILED"
	ErrCodeDeliveryFailed    ErrorCode = "DELIVERY_FAILED"
	ErrCodeRelayFailed       ErrorCode = "RELAY_FAILED"

	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"

	ErrCodeBucketProvisioningFailed ErrorCode = "BUCKET_PROVISIONING_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// GenericMessage is the only text an unexpected failure ever shows a client.
const GenericMessage = "Sunucu hatası oluştu. Lütfen daha sonra tekrar deneyin."

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// NewInvalidRequestError is raised when the request body cannot be decoded.
func NewInvalidRequestError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRequest,
		Message:   "Request body could not be parsed",
		Details:   err.Error(),
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewMissingRequiredFieldsError is the 400 returned when formData or
// recipientEmail is absent.
func NewMissingRequiredFieldsError(fields ...string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingRequiredFields,
		Message:   "Form verileri ve alıcı e-posta adresi gereklidir",
		Details:   fmt.Sprintf("missing: %s", strings.Join(fields, ", ")),
		Timestamp: time.Now().UTC(),
	}
}

// NewSchemaValidationError records formData that does not match its schema.
func NewSchemaValidationError(kind string, violations []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSchemaValidationFailed,
		Message:   "Form data does not match schema",
		Details:   strings.Join(violations, "; "),
		Metadata:  map[string]interface{}{"kind": kind},
		Timestamp: time.Now().UTC(),
	}
}

// NewPersistenceFailedError wraps a filesystem failure of the fallback writer.
func NewPersistenceFailedError(path string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePersistenceFailed,
		Message:   "Submission could not be written to disk",
		Details:   fmt.Sprintf("path: %s, error: %v", path, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewDeliveryFailedError wraps an SMTP or SES failure.
func NewDeliveryFailedError(stage string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDeliveryFailed,
		Message:   fmt.Sprintf("Mail delivery failed during %s", stage),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewRelayFailedError is raised when neither the fallback write nor the
// delivery succeeded; the outer boundary turns it into a 500.
func NewRelayFailedError(kind string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRelayFailed,
		Message:   "Submission could neither be saved nor delivered",
		Metadata:  map[string]interface{}{"kind": kind},
		Timestamp: time.Now().UTC(),
	}
}

// NewRateLimitedError is returned when a client exceeds the submission quota.
func NewRateLimitedError(retryAfter time.Duration) *StandardError {
	return &StandardError{
		Code:      ErrCodeRateLimited,
		Message:   "Çok fazla istek gönderildi. Lütfen daha sonra tekrar deneyin.",
		Details:   fmt.Sprintf("retry after %s", retryAfter),
		Retryable: true,
		Metadata:  map[string]interface{}{"retryAfterSeconds": int(math.Ceil(retryAfter.Seconds()))},
		Timestamp: time.Now().UTC(),
	}
}

// NewBucketProvisioningError wraps an S3 bucket creation failure.
func NewBucketProvisioningError(bucket string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeBucketProvisioningFailed,
		Message:   "Storage bucket could not be provisioned",
		Details:   fmt.Sprintf("bucket: %s, error: %v", bucket, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewInternalError normalizes any unclassified error.
func NewInternalError(err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   details,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// AsStandardError returns err as a *StandardError, wrapping it as
// INTERNAL_ERROR when it is not one already.
func AsStandardError(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// HTTPStatus maps an error code to the status the relay answers with.
// Unparseable bodies are not a 400: they take the generic 500 path.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeMissingRequiredFields:
		return http.StatusBadRequest
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ClientMessage is what the client is allowed to see for code. Anything
// that is not a request-shape problem collapses to GenericMessage.
func ClientMessage(stdErr *StandardError) string {
	switch stdErr.Code {
	case ErrCodeMissingRequiredFields, ErrCodeRateLimited:
		return stdErr.Message
	default:
		return GenericMessage
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "REQUEST") || strings.Contains(codeStr, "FIELDS") || strings.Contains(codeStr, "SCHEMA"):
		return "VALIDATION"
	case strings.Contains(codeStr, "PERSISTENCE") || strings.Contains(codeStr, "BUCKET"):
		return "STORAGE"
	case strings.Contains(codeStr, "DELIVERY") || strings.Contains(codeStr, "RELAY"):
		return "DELIVERY"
	case strings.Contains(codeStr, "RATE"):
		return "THROTTLING"
	default:
		return "UNKNOWN"
	}
}
