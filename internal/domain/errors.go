package domain

import (
	"errors"
	"net/http"
)

// Store-level errors. These never cross the engine boundary.
var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrDuplicateDevice   = errors.New("device already registered for account")
	ErrAlreadyRevoked    = errors.New("session already revoked")
)

// ErrorKind discriminates the errors the engine hands back to callers
type ErrorKind int

const (
	KindService ErrorKind = iota
	KindValidation
	KindAuthentication
	KindForbidden
	KindNotFound
)

// DefaultServiceMessage is the only message a service error ever exposes
const DefaultServiceMessage = "An error occurred while processing your request."

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	default:
		return "service"
	}
}

// Status maps the kind onto an HTTP status code
func (k ErrorKind) Status() int {
	switch k {
	case KindValidation, KindAuthentication:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is the typed error returned by every engine operation.
// Err holds the internal cause for service errors and is never rendered.
type Error struct {
	Kind        ErrorKind
	Message     string
	InvalidArgs []string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError reports a caller-fixable input problem
func NewValidationError(message string, invalidArgs ...string) *Error {
	return &Error{Kind: KindValidation, Message: message, InvalidArgs: invalidArgs}
}

// NewAuthenticationError reports a failed login without saying why
func NewAuthenticationError(message string, invalidArgs ...string) *Error {
	return &Error{Kind: KindAuthentication, Message: message, InvalidArgs: invalidArgs}
}

// NewForbidden reports an invalid, expired or revoked credential
func NewForbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// NewNotFound reports a missing resource owned by the caller
func NewNotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// NewServiceError hides cause behind the generic service message
func NewServiceError(cause error) *Error {
	return &Error{Kind: KindService, Message: DefaultServiceMessage, Err: cause}
}

// AsError extracts a *Error from err. Anything else becomes a service error.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewServiceError(err)
}
