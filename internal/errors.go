package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeConflict   ErrorType = "CONFLICT"
	ErrorTypeInternal   ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal   ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidSettings  ErrorCode = "INVALID_SETTINGS"

	ErrCodePaymentNotFound ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodeRefundNotFound  ErrorCode = "REFUND_NOT_FOUND"
	ErrCodeUnknownMethod   ErrorCode = "UNKNOWN_PAYMENT_METHOD"
	ErrCodeMethodRetired   ErrorCode = "PAYMENT_METHOD_RETIRED"
	ErrCodeInvalidHash     ErrorCode = "INVALID_RETURN_HASH"

	ErrCodeGatewayUnreachable ErrorCode = "GATEWAY_UNREACHABLE"
	ErrCodeGatewayRejected    ErrorCode = "GATEWAY_REJECTED"

	ErrCodeRefundNotSupported  ErrorCode = "REFUND_NOT_SUPPORTED"
	ErrCodePaymentNotCaptured  ErrorCode = "PAYMENT_NOT_CAPTURED"
	ErrCodeStaleCallback       ErrorCode = "STALE_CALLBACK"
	ErrCodeStateTransitionLost ErrorCode = "STATE_TRANSITION_LOST"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if details, ok := e.Details.(ValidationErrors); ok && len(details.Errors) > 0 {
		messages := make([]string, len(details.Errors))
		for i, err := range details.Errors {
			messages[i] = err.Message
		}
		return strings.Join(messages, "; ")
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCause returns a copy carrying the underlying error. Copying keeps the
// shared sentinels immutable.
func (e *AppError) WithCause(cause error) *AppError {
	clone := *e
	clone.Cause = cause
	return &clone
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewExternalError covers both failure classes of the gateway client: a
// rejected request that returned a structured body, and a transport failure
// that returned nothing at all. Callers pick the code accordingly.
func NewExternalError(message string, code ErrorCode, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

var (
	ErrPaymentNotFound = NewNotFoundError("Payment not found", ErrCodePaymentNotFound)
	ErrRefundNotFound  = NewNotFoundError("Refund not found", ErrCodeRefundNotFound)
	ErrUnknownMethod   = NewValidationError("Unknown payment method", ErrCodeUnknownMethod)
	ErrMethodRetired   = NewValidationError("This payment method is no longer available", ErrCodeMethodRetired)
	ErrInvalidHash     = NewValidationError("Invalid return hash", ErrCodeInvalidHash)

	// ErrGatewayComms is the only text shown to a customer when payment
	// initialization fails; the structured gateway error stays in the logs.
	ErrGatewayComms = NewExternalError(
		"We had trouble communicating with MultiSafepay. Please try again and get in touch with us if this problem persists.",
		ErrCodeGatewayRejected, nil,
	)

	ErrRefundNotSupported = NewValidationError("This payment method does not support refunds", ErrCodeRefundNotSupported)
	ErrPaymentNotCaptured = NewValidationError("The payment has not been captured and cannot be refunded", ErrCodePaymentNotCaptured)
)

func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
