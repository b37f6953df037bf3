package common

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrDuplicateIdentity  = errors.New("user already exists with this email")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("requested resource not found")
	ErrGenerationFailed   = errors.New("failed to generate image")
	ErrGenerationTimeout  = errors.New("image generation timed out")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrInternal           = errors.New("internal server error")
)

// messageError carries a caller-safe message for an error kind.
type messageError struct {
	kind error
	msg  string
}

func (e *messageError) Error() string { return e.msg }
func (e *messageError) Unwrap() error { return e.kind }

// WithMessage tags kind with a message that may be shown to the caller as is.
func WithMessage(kind error, msg string) error {
	return &messageError{kind: kind, msg: msg}
}

// HTTPStatusFromError maps domain errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrDuplicateIdentity),
		errors.Is(err, ErrInvalidCredentials):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrGenerationTimeout):
		return http.StatusBadGateway
	default:
		// ErrGenerationFailed, ErrInternal and anything unrecognised.
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text that is safe to put in a response body.
// Wrapped storage or provider details never leave the process.
func PublicMessage(err error) string {
	var me *messageError
	if errors.As(err, &me) {
		return me.msg
	}
	for _, known := range []error{
		ErrInvalidInput, ErrDuplicateIdentity, ErrInvalidCredentials, ErrUnauthenticated,
		ErrForbidden, ErrNotFound, ErrGenerationFailed, ErrGenerationTimeout, ErrRateLimited,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return ErrInternal.Error()
}
