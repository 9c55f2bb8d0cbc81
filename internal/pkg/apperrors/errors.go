package apperrors

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Error codes rendered in the "error" field of JSON responses.
const (
	CodeValidation   = "validation_error"
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeInternal     = "internal_server_error"
)

// AppError carries a taxonomy code, a user-facing message and an optional
// cause.
type AppError struct {
	code    string
	message string
	err     error
}

func (e *AppError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s", e.message, e.err.Error())
	}
	return e.message
}

func (e *AppError) Code() string {
	return e.code
}

func (e *AppError) Message() string {
	return e.message
}

func (e *AppError) Unwrap() error {
	return e.err
}

func New(code, message string, err error) *AppError {
	return &AppError{code: code, message: message, err: err}
}

func Validation(message string) *AppError   { return New(CodeValidation, message, nil) }
func Unauthorized(message string) *AppError { return New(CodeUnauthorized, message, nil) }
func Forbidden(message string) *AppError    { return New(CodeForbidden, message, nil) }
func NotFound(message string) *AppError     { return New(CodeNotFound, message, nil) }
func Conflict(message string) *AppError     { return New(CodeConflict, message, nil) }

func Internal(message string, err error) *AppError {
	return New(CodeInternal, message, err)
}

// Wrap keeps the code of an existing AppError and treats anything else as
// internal.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return New(appErr.code, message, err)
	}
	return New(CodeInternal, message, err)
}

// FromStore maps storage errors onto the taxonomy. Record-not-found becomes
// NotFound with the given message.
func FromStore(err error, notFoundMessage string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return New(CodeNotFound, notFoundMessage, err)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return New(CodeConflict, "resource already exists", err)
	}
	return New(CodeInternal, "storage failure", err)
}

// CodeOf returns the taxonomy code of err, CodeInternal for foreign errors.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.code
	}
	return CodeInternal
}

func Is(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus maps a code to the response status.
func HTTPStatus(code string) int {
	switch code {
	case CodeValidation:
		return fiber.StatusBadRequest
	case CodeUnauthorized:
		return fiber.StatusUnauthorized
	case CodeForbidden:
		return fiber.StatusForbidden
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show to API clients. Internal
// causes are never exposed.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.message
	}
	return "internal server error"
}
