// Package apperror defines the typed errors returned by the service layer
// and the way they are rendered at the HTTP boundary.
package apperror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Type classifies an Error and determines its HTTP status code.
type Type string

// Supported error types.
const (
	TypeValidation     Type = "ValidationError"
	TypeDB             Type = "DbError"
	TypeNotFound       Type = "NotFoundError"
	TypeAuthentication Type = "AuthenticationError"
	TypeAuthorization  Type = "AuthorizationError"
	TypeJWT            Type = "JwtError"
)

// Error is the error value every handler ends up writing to the client.
type Error struct {
	// Cause holds the low-level reason (driver, JWT or validation details).
	Cause string `json:"cause,omitempty"`

	// Message is the human readable part of the error.
	Message string `json:"message,omitempty"`

	// Type selects the HTTP status code.
	Type Type `json:"error_type"`
}

// New creates an Error of the given type.
func New(cause, message string, errorType Type) *Error {
	return &Error{
		Cause:   cause,
		Message: message,
		Type:    errorType,
	}
}

// Wrap creates an Error using err's text as the cause. A nil err yields an empty cause.
func Wrap(err error, message string, errorType Type) *Error {
	cause := ""
	if err != nil {
		cause = err.Error()
	}

	return New(cause, message, errorType)
}

// Error renders the error as indented JSON.
func (e *Error) Error() string {
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Cause)
	}

	return string(b)
}

// StatusCode maps the error type to the HTTP status code sent to the client.
func (e *Error) StatusCode() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeAuthentication:
		return http.StatusUnauthorized
	case TypeAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Write sends the error to the client as a JSON document.
func (e *Error) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode())
	_ = json.NewEncoder(w).Encode(e)
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}

	return nil, false
}

// From converts any error to an *Error. Errors that are not already typed
// become internal DbError values so that driver details never leak as a 2xx.
func From(err error) *Error {
	if appErr, ok := As(err); ok {
		return appErr
	}

	return Wrap(err, "Internal server error", TypeDB)
}

// Validation converts the result of a validator run into a ValidationError.
// Every failed field is listed in the cause.
func Validation(err error) *Error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return Wrap(err, "Invalid data", TypeValidation)
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		switch e.ActualTag() {
		case "required":
			messages = append(messages, fmt.Sprintf("field %s is required", e.Field()))
		case "email":
			messages = append(messages, fmt.Sprintf("field %s must be a valid email address", e.Field()))
		case "min", "gte":
			messages = append(messages, fmt.Sprintf("field %s must be at least %s", e.Field(), e.Param()))
		case "max", "lte":
			messages = append(messages, fmt.Sprintf("field %s must be at most %s", e.Field(), e.Param()))
		case "fullname":
			messages = append(messages, fmt.Sprintf("field %s must contain only letters and space", e.Field()))
		case "course":
			messages = append(messages, fmt.Sprintf("field %s has incorrect course %q", e.Field(), e.Value()))
		default:
			messages = append(messages, fmt.Sprintf("field %s is invalid", e.Field()))
		}
	}

	return New(strings.Join(messages, ", "), "Invalid data", TypeValidation)
}
