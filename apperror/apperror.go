// Package apperror defines a centralized system for application-specific errors.
// Every handler translates failures through this package so that clients always
// receive the same `{"message": "..."}` body and a status code derived from the
// error category rather than from whichever layer produced it.
package apperror

import (
	"errors"
	"fmt"
	// `net/http` is used for HTTP status codes.
	"net/http"
)

// ErrorType is an enumeration (using `iota`) for different categories of application errors.
type ErrorType int

const (
	// UnknownError is for unspecified errors
	UnknownError ErrorType = iota
	// DatabaseError represents an error originating from the backing store
	DatabaseError
	// ConfigError represents missing or invalid application configuration
	ConfigError
	// AuthError represents an authentication error (missing, invalid or expired token)
	AuthError
	// ForbiddenError represents an authorization error (authenticated, but not allowed)
	ForbiddenError
	// NotFoundError represents a resource not found error
	NotFoundError
	// ValidationError represents an input validation error
	ValidationError
	// BadRequestError represents a generic bad request (unreadable body, bad query params)
	BadRequestError
	// InvalidIDError represents an identifier that is not in the expected format.
	// It is kept apart from NotFoundError so clients can tell "malformed" from "absent".
	InvalidIDError
	// InvalidCredentialsError represents a password that does not match the stored hash
	InvalidCredentialsError
	// InternalError represents a generic internal server error
	InternalError
	// ExternalServiceError represents an error from an external service (object storage)
	ExternalServiceError
	// ConflictError represents a conflict, e.g., an email that is already registered
	ConflictError
	// TooManyRequestsError represents a caller that exceeded the rate limit
	TooManyRequestsError
)

// AppError is a custom error type for the application.
// It allows wrapping an underlying error (`Err`) for logging while only
// `Message` is ever shown to the client.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error // Underlying error
}

// Error returns the string representation of the error, satisfying the `error` interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error so `errors.Is` and `errors.As` can walk the chain.
func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status code appropriate for the error type
func (e *AppError) StatusCode() int {
	switch e.Type {
	case DatabaseError, ConfigError, InternalError, ExternalServiceError:
		return http.StatusInternalServerError
	case AuthError:
		return http.StatusUnauthorized
	case ForbiddenError:
		return http.StatusForbidden
	case NotFoundError:
		return http.StatusNotFound
	case ValidationError, BadRequestError, InvalidIDError:
		return http.StatusBadRequest
	case InvalidCredentialsError:
		// Wrong passwords have always been answered with 400, and existing clients rely on it.
		return http.StatusBadRequest
	case ConflictError:
		return http.StatusConflict
	case TooManyRequestsError:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// NewAppError creates a new AppError. This is a generic constructor.
func NewAppError(errType ErrorType, message string, underlyingError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     underlyingError,
	}
}

// Constructor functions for specific error types.
// `NewDatabaseError("message", err)` reads better than `NewAppError(DatabaseError, "message", err)`.

// NewDatabaseError creates a new DatabaseError
func NewDatabaseError(message string, underlyingError error) *AppError {
	return NewAppError(DatabaseError, message, underlyingError)
}

// NewConfigError creates a new ConfigError
func NewConfigError(message string, underlyingError error) *AppError {
	return NewAppError(ConfigError, message, underlyingError)
}

// NewAuthError creates a new AuthError (for authentication issues)
func NewAuthError(message string, underlyingError error) *AppError {
	return NewAppError(AuthError, message, underlyingError)
}

// NewForbiddenError creates a new ForbiddenError (for authorization issues)
func NewForbiddenError(message string, underlyingError error) *AppError {
	return NewAppError(ForbiddenError, message, underlyingError)
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(message string, underlyingError error) *AppError {
	return NewAppError(NotFoundError, message, underlyingError)
}

// NewValidationError creates a new ValidationError
func NewValidationError(message string, underlyingError error) *AppError {
	return NewAppError(ValidationError, message, underlyingError)
}

// NewBadRequestError creates a new BadRequestError
func NewBadRequestError(message string, underlyingError error) *AppError {
	return NewAppError(BadRequestError, message, underlyingError)
}

// NewInvalidIDError creates a new InvalidIDError
func NewInvalidIDError(message string, underlyingError error) *AppError {
	return NewAppError(InvalidIDError, message, underlyingError)
}

// NewInvalidCredentialsError creates a new InvalidCredentialsError
func NewInvalidCredentialsError(message string, underlyingError error) *AppError {
	return NewAppError(InvalidCredentialsError, message, underlyingError)
}

// NewInternalError creates a new InternalError
func NewInternalError(message string, underlyingError error) *AppError {
	return NewAppError(InternalError, message, underlyingError)
}

// NewExternalServiceError creates a new ExternalServiceError
func NewExternalServiceError(message string, underlyingError error) *AppError {
	return NewAppError(ExternalServiceError, message, underlyingError)
}

// NewConflictError creates a new ConflictError
func NewConflictError(message string, underlyingError error) *AppError {
	return NewAppError(ConflictError, message, underlyingError)
}

// NewTooManyRequestsError creates a new TooManyRequestsError
func NewTooManyRequestsError(message string, underlyingError error) *AppError {
	return NewAppError(TooManyRequestsError, message, underlyingError)
}

// ErrorResponse represents the error payload returned to API clients.
type ErrorResponse struct {
	Message string `json:"message" example:"Post not found"`
}

// ToResponse converts an AppError to an ErrorResponse suitable for API responses.
// Only the user-facing `Message` is included, never the wrapped `Err`.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Message: e.Message}
}

// FromError attempts to convert a generic error to an *AppError, following wrapped chains.
// It returns the *AppError and true if successful, otherwise nil and false.
func FromError(err error) (*AppError, bool) {
	if err == nil {
		return nil, false
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Is reports whether err carries an AppError of the given type anywhere in its chain.
func Is(err error, errType ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == errType
}

// IsNotFound checks if an error is a NotFound error
func IsNotFound(err error) bool {
	return Is(err, NotFoundError)
}

// IsAuthError checks if an error is an AuthError (authentication problem)
func IsAuthError(err error) bool {
	return Is(err, AuthError)
}

// IsValidationError checks if an error is a Validation error
func IsValidationError(err error) bool {
	return Is(err, ValidationError)
}

// IsConflictError checks if an error is a Conflict error
func IsConflictError(err error) bool {
	return Is(err, ConflictError)
}
