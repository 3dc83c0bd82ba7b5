package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so callers can compare
// against the sentinel values below with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrInvalidFormat
	ErrInvalidCode
	ErrExpired
	ErrGenerationExhausted
	ErrTooManyRequests
)

var codeNames = map[ErrorCode]string{
	ErrNotFound:            "NotFound",
	ErrBadRequest:          "BadRequest",
	ErrUnauthorized:        "Unauthorized",
	ErrForbidden:           "Forbidden",
	ErrInternal:            "ServerError",
	ErrInvalidFormat:       "InvalidFormat",
	ErrInvalidCode:         "InvalidCode",
	ErrExpired:             "Expired",
	ErrGenerationExhausted: "GenerationExhausted",
	ErrTooManyRequests:     "TooManyRequests",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// Sentinels for errors.Is checks. Only the code is compared.
var (
	NotFoundError            = &AppError{Code: ErrNotFound}
	InvalidFormatError       = &AppError{Code: ErrInvalidFormat}
	InvalidCodeError         = &AppError{Code: ErrInvalidCode}
	ExpiredError             = &AppError{Code: ErrExpired}
	GenerationExhaustedError = &AppError{Code: ErrGenerationExhausted}
	ForbiddenError           = &AppError{Code: ErrForbidden}
	InternalError            = &AppError{Code: ErrInternal}
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func NewInvalidFormat(message string) *AppError {
	return &AppError{
		Code:    ErrInvalidFormat,
		Message: message,
	}
}

func NewInvalidCode() *AppError {
	return &AppError{
		Code:    ErrInvalidCode,
		Message: "invalid access code",
	}
}

func NewExpired() *AppError {
	return &AppError{
		Code:    ErrExpired,
		Message: "access code has expired, please request a new one",
	}
}

func NewGenerationExhausted(attempts int) *AppError {
	return &AppError{
		Code:    ErrGenerationExhausted,
		Message: fmt.Sprintf("could not generate a unique access code after %d attempts", attempts),
	}
}

func NewForbidden(message string) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: message,
	}
}

func NewTooManyRequests() *AppError {
	return &AppError{
		Code:    ErrTooManyRequests,
		Message: "rate limit exceeded",
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
