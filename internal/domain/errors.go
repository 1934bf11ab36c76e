package domain

import (
	"errors"
	"fmt"
)

// ErrorCategory is the closed set of error kinds that flow through the
// queue's retry classifier and the HTTP layer's status mapping.
type ErrorCategory string

const (
	CategoryValidation        ErrorCategory = "validation"
	CategoryAuthentication    ErrorCategory = "authentication"
	CategoryAuthorization     ErrorCategory = "authorization"
	CategoryNotFound          ErrorCategory = "not_found"
	CategoryExternalService   ErrorCategory = "external_service"
	CategoryRateLimit         ErrorCategory = "rate_limit"
	CategoryTimeout           ErrorCategory = "timeout"
	CategoryCircuitOpen       ErrorCategory = "circuit_breaker_open"
	CategoryDatabase          ErrorCategory = "database"
	CategoryBusinessLogic     ErrorCategory = "business_logic"
	CategorySystem            ErrorCategory = "system"
)

// httpStatusByCategory mirrors the mapping in §7 of the specification.
var httpStatusByCategory = map[ErrorCategory]int{
	CategoryValidation:      400,
	CategoryAuthentication:  401,
	CategoryAuthorization:   403,
	CategoryNotFound:        404,
	CategoryTimeout:         408,
	CategoryRateLimit:       429,
	CategoryBusinessLogic:   422,
	CategoryExternalService: 502,
	CategoryCircuitOpen:     503,
	CategoryDatabase:        500,
	CategorySystem:          500,
}

// retryableByCategory mirrors the retryability column in §7.
var retryableByCategory = map[ErrorCategory]bool{
	CategoryValidation:      false,
	CategoryAuthentication:  false,
	CategoryAuthorization:   false,
	CategoryNotFound:        false,
	CategoryTimeout:         true,
	CategoryRateLimit:       true,
	CategoryBusinessLogic:   false,
	CategoryExternalService: true,
	CategoryCircuitOpen:     true,
	CategoryDatabase:        true,
	CategorySystem:          false,
}

// AppError is the single error type used at every layer of the service.
// It carries enough structure for the queue's classifier and the HTTP
// handlers to act exhaustively on Category rather than on ad hoc string
// matching.
type AppError struct {
	Code       string
	Category   ErrorCategory
	Message    string
	Details    map[string]any
	RetryAfter *int // seconds; only meaningful for CategoryRateLimit
	cause      error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.cause }

// Retryable reports whether this error's category is retryable per §7.
func (e *AppError) Retryable() bool { return retryableByCategory[e.Category] }

// HTTPStatus returns the status code §7 assigns to this error's category.
func (e *AppError) HTTPStatus() int {
	if s, ok := httpStatusByCategory[e.Category]; ok {
		return s
	}
	return 500
}

func newAppError(code string, category ErrorCategory, msg string, cause error, details map[string]any) *AppError {
	return &AppError{Code: code, Category: category, Message: msg, Details: details, cause: cause}
}

func NewValidationError(msg string, details map[string]any) *AppError {
	return newAppError("VALIDATION_ERROR", CategoryValidation, msg, nil, details)
}

func NewAuthenticationError(msg string) *AppError {
	return newAppError("AUTHENTICATION_ERROR", CategoryAuthentication, msg, nil, nil)
}

func NewAuthorizationError(msg string) *AppError {
	return newAppError("AUTHORIZATION_ERROR", CategoryAuthorization, msg, nil, nil)
}

func NewNotFoundError(resource, id string) *AppError {
	return newAppError("NOT_FOUND", CategoryNotFound, fmt.Sprintf("%s %q not found", resource, id), nil, nil)
}

func NewExternalServiceError(service string, cause error) *AppError {
	return newAppError("EXTERNAL_SERVICE_ERROR", CategoryExternalService,
		fmt.Sprintf("%s request failed", service), cause, nil)
}

func NewRateLimitError(service string, retryAfterSeconds int) *AppError {
	e := newAppError("RATE_LIMIT", CategoryRateLimit, fmt.Sprintf("%s rate limited", service), nil, nil)
	e.RetryAfter = &retryAfterSeconds
	return e
}

func NewTimeoutError(op string, cause error) *AppError {
	return newAppError("TIMEOUT", CategoryTimeout, fmt.Sprintf("%s timed out", op), cause, nil)
}

func NewCircuitOpenError(dependency string) *AppError {
	return newAppError("CIRCUIT_OPEN", CategoryCircuitOpen,
		fmt.Sprintf("circuit breaker open for %s", dependency), nil, nil)
}

func NewDatabaseError(op string, cause error) *AppError {
	return newAppError("DATABASE_ERROR", CategoryDatabase, fmt.Sprintf("store operation %q failed", op), cause, nil)
}

func NewBusinessLogicError(msg string, details map[string]any) *AppError {
	return newAppError("BUSINESS_LOGIC_ERROR", CategoryBusinessLogic, msg, nil, details)
}

func NewSystemError(msg string, cause error) *AppError {
	return newAppError("SYSTEM_ERROR", CategorySystem, msg, cause, nil)
}

// EmptyTranscriptError is returned by the Result Assembler when no segment
// in the input set has usable transcript text.
var EmptyTranscriptError = newAppError("EMPTY_TRANSCRIPT", CategoryBusinessLogic,
	"no completed segment carries transcript text", nil, nil)

// AsAppError unwraps err into an *AppError, classifying it as a generic
// CategorySystem error (non-retryable) if it isn't one already.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var ae *AppError
	if !errors.As(err, &ae) {
		ae = NewSystemError(err.Error(), err)
	}
	return ae
}
