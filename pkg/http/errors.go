package http

import (
	"fmt"
	"net/http"
	"strings"
)

// AppError is an error with the HTTP status it should be answered with.
type AppError struct {
	Status  int                    `json:"-"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// NewAppError derives Code from the status text: 404 becomes ERR_NOT_FOUND.
func NewAppError(status int, message string) *AppError {
	code := strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	if code == "" {
		code = fmt.Sprintf("%d", status)
	}
	return &AppError{Status: status, Code: "ERR_" + code, Message: message}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error { return e.Err }

// With adds a detail shown to the client.
func (e *AppError) With(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

// Wrap keeps cause for logs; it is never serialized.
func (e *AppError) Wrap(cause error) *AppError {
	e.Err = cause
	return e
}

func NotFoundError(message string) *AppError {
	return NewAppError(http.StatusNotFound, message)
}

func BadRequestError(message string) *AppError {
	return NewAppError(http.StatusBadRequest, message)
}

func InternalError(message string) *AppError {
	return NewAppError(http.StatusInternalServerError, message)
}
