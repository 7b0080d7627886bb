// errors.go
package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse represents a standardized success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error codes
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeAuthentication = "AUTHENTICATION_ERROR"
	ErrCodeAuthorization  = "AUTHORIZATION_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeStorage        = "STORAGE_ERROR"
	ErrCodeInternal       = "INTERNAL_ERROR"
	ErrCodeRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrCodeBadRequest     = "BAD_REQUEST"
)

// Engine error kinds. Every engine operation either succeeds or returns an
// *EngineError with one of these kinds; handlers map kinds onto HTTP statuses.
const (
	KindValidation = "validation" // Missing or malformed input, rejected before any mutation
	KindNotFound   = "not_found"  // Unknown record, field path or target version
	KindConflict   = "conflict"   // Concurrent version mismatch, caller should retry with fresh state
	KindStorage    = "storage"    // Underlying persistence failure
)

// EngineError is the machine-readable error shape of the annotation engine.
type EngineError struct {
	Kind    string // One of the Kind* constants
	Message string // Human-readable description
	Err     error  // Wrapped cause, may be nil
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// ValidationError reports invalid caller input.
func ValidationError(format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown record, path or version.
func NotFoundError(format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// ConflictError reports a lost optimistic-concurrency race.
func ConflictError(format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// StorageError wraps a persistence failure.
func StorageError(err error, format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: KindStorage, Message: fmt.Sprintf(format, args...), Err: err}
}

// Helper functions for consistent error responses
func RespondWithError(c *gin.Context, statusCode int, errorCode, message, details string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   message,
		Code:    errorCode,
		Details: details,
	})
}

func RespondWithSuccess(c *gin.Context, statusCode int, message string, data interface{}) {
	response := SuccessResponse{
		Message: message,
	}
	if data != nil {
		response.Data = data
	}
	c.JSON(statusCode, response)
}

// RespondEngineError maps an engine error onto the matching HTTP response.
// Non-engine errors fall through as internal errors.
func RespondEngineError(c *gin.Context, err error) {
	var engineErr *EngineError
	if !errors.As(err, &engineErr) {
		RespondWithError(c, http.StatusInternalServerError, ErrCodeInternal, err.Error(), "")
		return
	}

	switch engineErr.Kind {
	case KindValidation:
		RespondWithError(c, http.StatusBadRequest, ErrCodeValidation, engineErr.Message, "")
	case KindNotFound:
		RespondWithError(c, http.StatusNotFound, ErrCodeNotFound, engineErr.Message, "")
	case KindConflict:
		RespondWithError(c, http.StatusConflict, ErrCodeConflict, engineErr.Message, "")
	case KindStorage:
		details := ""
		if engineErr.Err != nil {
			details = engineErr.Err.Error()
		}
		RespondWithError(c, http.StatusInternalServerError, ErrCodeStorage, engineErr.Message, details)
	default:
		RespondWithError(c, http.StatusInternalServerError, ErrCodeInternal, engineErr.Message, "")
	}
}

// Specific error response helpers
func RespondBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, ErrCodeBadRequest, message, "")
}

func RespondUnauthorized(c *gin.Context, message string) {
	RespondWithError(c, http.StatusUnauthorized, ErrCodeAuthentication, message, "")
}

func RespondForbidden(c *gin.Context, message string) {
	RespondWithError(c, http.StatusForbidden, ErrCodeAuthorization, message, "")
}

func RespondNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, ErrCodeNotFound, message, "")
}

func RespondConflict(c *gin.Context, message string) {
	RespondWithError(c, http.StatusConflict, ErrCodeConflict, message, "")
}

func RespondInternalError(c *gin.Context, message string) {
	RespondWithError(c, http.StatusInternalServerError, ErrCodeInternal, message, "")
}

func RespondSuccess(c *gin.Context, message string) {
	RespondWithSuccess(c, http.StatusOK, message, nil)
}

func RespondSuccessWithData(c *gin.Context, message string, data interface{}) {
	RespondWithSuccess(c, http.StatusOK, message, data)
}
