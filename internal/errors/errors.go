package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation            ErrorType = "validation"
	ErrorTypeTimeout               ErrorType = "timeout"
	ErrorTypeNotFound              ErrorType = "not_found"
	ErrorTypeInternal              ErrorType = "internal"
	ErrorTypeDecode                ErrorType = "decode"
	ErrorTypeAnalysis              ErrorType = "analysis"
	ErrorTypeMetadataParse         ErrorType = "metadata_parse"
	ErrorTypeClassifierUnavailable ErrorType = "classifier_unavailable"
	ErrorTypeAggregation           ErrorType = "aggregation"
	ErrorTypeRender                ErrorType = "render"
)

// Pipeline stages used to tag detector and aggregation errors.
const (
	StageMetadata    = "metadata"
	StageCompression = "compression"
	StageClone       = "clone"
	StageRegions     = "regions"
	StageClassifier  = "classifier"
	StageForgery     = "forgery_signals"
	StageReport      = "report"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Stage      string    `json:"stage,omitempty"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	prefix := string(e.Type)
	if e.Stage != "" {
		prefix = fmt.Sprintf("%s[%s]", e.Type, e.Stage)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Message:    message,
		StatusCode: http.StatusGatewayTimeout,
		Cause:      cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
		Cause:      cause,
	}
}

// NewDecodeError reports image bytes that could not be turned into a pixel matrix.
// It is fatal only for the stage that raised it.
func NewDecodeError(stage string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeDecode,
		Message:    "image could not be decoded",
		Stage:      stage,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewAnalysisError reports a detector failure on an image that did decode.
func NewAnalysisError(stage, message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeAnalysis,
		Message:    message,
		Stage:      stage,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewMetadataParseError reports a container that is not well formed for the
// format it claims to be.
func NewMetadataParseError(cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeMetadataParse,
		Message:    "malformed image container",
		Stage:      StageMetadata,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewClassifierUnavailableError reports a classifier that failed to load or infer.
func NewClassifierUnavailableError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeClassifierUnavailable,
		Message:    message,
		Stage:      StageClassifier,
		StatusCode: http.StatusServiceUnavailable,
		Cause:      cause,
	}
}

// NewAggregationError aborts a whole analysis. stages lists the mandatory
// signal groups that failed.
func NewAggregationError(stages []string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeAggregation,
		Message:    "mandatory signal groups failed",
		Stage:      strings.Join(stages, "+"),
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewRenderError reports a report that could not be produced.
func NewRenderError(message string, statusCode int, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeRender,
		Message:    message,
		Stage:      StageReport,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// StageOf returns the stage tag carried by err, or "" when there is none.
func StageOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Stage
	}
	return ""
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
