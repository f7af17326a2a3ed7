// Package errors provides structured error types for the NIRV engine.
// Every error carries a category (the stage that raised it), a code, a
// message and a retryable flag so front-ends can map failures uniformly.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by pipeline stage.
type ErrorCategory string

const (
	ErrCategoryParse     ErrorCategory = "PARSE"
	ErrCategoryPlanning  ErrorCategory = "PLANNING"
	ErrCategoryExecution ErrorCategory = "EXECUTION"
	ErrCategoryDispatch  ErrorCategory = "DISPATCH"
	ErrCategoryConnector ErrorCategory = "CONNECTOR"
	ErrCategoryConfig    ErrorCategory = "CONFIG"
	ErrCategoryInternal  ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Parse codes
	CodeInvalidSyntax       = "INVALID_SYNTAX"
	CodeUnsupportedFeature  = "UNSUPPORTED_FEATURE"
	CodeMissingSource       = "MISSING_SOURCE"
	CodeInvalidSourceFormat = "INVALID_SOURCE_FORMAT"
	CodeAmbiguousColumn     = "AMBIGUOUS_COLUMN"

	// Planning codes
	CodeNoSources = "NO_SOURCES"

	// Execution codes
	CodeConnectorNotFound        = "CONNECTOR_NOT_FOUND"
	CodeSortColumnNotFound       = "SORT_COLUMN_NOT_FOUND"
	CodeProjectionColumnNotFound = "PROJECTION_COLUMN_NOT_FOUND"

	// Dispatch codes
	CodeUnregisteredObjectType = "UNREGISTERED_OBJECT_TYPE"
	CodeNoSuitableConnector    = "NO_SUITABLE_CONNECTOR"
	CodeRoutingFailed          = "ROUTING_FAILED"
	CodeCrossConnectorJoin     = "CROSS_CONNECTOR_JOIN_UNSUPPORTED"
	CodeRegistrationFailed     = "REGISTRATION_FAILED"

	// Connector codes
	CodeConnectionFailed      = "CONNECTION_FAILED"
	CodeQueryExecutionFailed  = "QUERY_EXECUTION_FAILED"
	CodeSchemaRetrievalFailed = "SCHEMA_RETRIEVAL_FAILED"
	CodeUnsupportedOperation  = "UNSUPPORTED_OPERATION"
	CodeTimeout               = "TIMEOUT"
	CodeAuthenticationFailed  = "AUTHENTICATION_FAILED"

	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// NirvError is the structured error type used throughout the engine.
type NirvError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *NirvError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *NirvError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *NirvError) Is(target error) bool {
	var t *NirvError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new NirvError.
func New(category ErrorCategory, code, message string) *NirvError {
	return &NirvError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Newf creates a new NirvError with a formatted message.
func Newf(category ErrorCategory, code, format string, args ...interface{}) *NirvError {
	return New(category, code, fmt.Sprintf(format, args...))
}

// Wrap creates a new NirvError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *NirvError {
	return &NirvError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *NirvError) WithDetails(details map[string]interface{}) *NirvError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ne *NirvError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a NirvError.
func GetCategory(err error) ErrorCategory {
	var ne *NirvError
	if errors.As(err, &ne) {
		return ne.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a NirvError.
func GetCode(err error) string {
	var ne *NirvError
	if errors.As(err, &ne) {
		return ne.Code
	}
	return ""
}

// As is a convenience wrapper around errors.As for *NirvError.
func As(err error) (*NirvError, bool) {
	var ne *NirvError
	if errors.As(err, &ne) {
		return ne, true
	}
	return nil, false
}

// Only connector timeouts and dropped connections are worth retrying; a
// retry against the same input fails the same way for everything else.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryConnector && code == CodeTimeout:
		return true
	case category == ErrCategoryConnector && code == CodeConnectionFailed:
		return true
	default:
		return false
	}
}

// Sentinels for errors.Is comparisons. Only category and code are compared.
var (
	ErrInvalidSyntax          = New(ErrCategoryParse, CodeInvalidSyntax, "")
	ErrUnsupportedFeature     = New(ErrCategoryParse, CodeUnsupportedFeature, "")
	ErrMissingSource          = New(ErrCategoryParse, CodeMissingSource, "")
	ErrInvalidSourceFormat    = New(ErrCategoryParse, CodeInvalidSourceFormat, "")
	ErrNoSources              = New(ErrCategoryPlanning, CodeNoSources, "")
	ErrConnectorNotFound      = New(ErrCategoryExecution, CodeConnectorNotFound, "")
	ErrSortColumnNotFound     = New(ErrCategoryExecution, CodeSortColumnNotFound, "")
	ErrProjectionColumn       = New(ErrCategoryExecution, CodeProjectionColumnNotFound, "")
	ErrUnregisteredObjectType = New(ErrCategoryDispatch, CodeUnregisteredObjectType, "")
	ErrRoutingFailed          = New(ErrCategoryDispatch, CodeRoutingFailed, "")
	ErrCrossConnectorJoin     = New(ErrCategoryDispatch, CodeCrossConnectorJoin, "")
	ErrRegistrationFailed     = New(ErrCategoryDispatch, CodeRegistrationFailed, "")
	ErrConnectionFailed       = New(ErrCategoryConnector, CodeConnectionFailed, "")
	ErrQueryExecutionFailed   = New(ErrCategoryConnector, CodeQueryExecutionFailed, "")
	ErrSchemaRetrievalFailed  = New(ErrCategoryConnector, CodeSchemaRetrievalFailed, "")
	ErrTimeout                = New(ErrCategoryConnector, CodeTimeout, "")
	ErrAuthenticationFailed   = New(ErrCategoryConnector, CodeAuthenticationFailed, "")
)

// Convenience constructors for common errors.

func NewParseError(code, message string) *NirvError {
	return New(ErrCategoryParse, code, message)
}

func NewPlanningError(code, message string) *NirvError {
	return New(ErrCategoryPlanning, code, message)
}

func NewExecutionError(code, message string) *NirvError {
	return New(ErrCategoryExecution, code, message)
}

func NewDispatchError(code, message string) *NirvError {
	return New(ErrCategoryDispatch, code, message)
}

func NewConnectorError(code, message string, cause error) *NirvError {
	return Wrap(ErrCategoryConnector, code, message, cause)
}

func NewConfigError(message string, cause error) *NirvError {
	return Wrap(ErrCategoryConfig, CodeInvalidConfig, message, cause)
}

func NewInternalError(message string, cause error) *NirvError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

// NewCrossSourceError is raised by both the planner and the router when a
// query names more than one source, so the condition has a single kind
// regardless of which path rejects it.
func NewCrossSourceError(sources int) *NirvError {
	return Newf(ErrCategoryDispatch, CodeCrossConnectorJoin,
		"Cross-connector joins are not supported: query references %d sources", sources)
}
