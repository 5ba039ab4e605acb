package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrInvalidRequest     = fmt.Errorf("invalid request")
	ErrUnauthenticated    = fmt.Errorf("unauthenticated")
	ErrForbidden          = fmt.Errorf("forbidden")
	ErrStorageUnavailable = fmt.Errorf("storage unavailable")
	ErrRelayFailed        = fmt.Errorf("relay failed")
	ErrConnectionClosed   = fmt.Errorf("connection closed")
	ErrSlowConsumer       = fmt.Errorf("connection buffer full")
	ErrNotJoined          = fmt.Errorf("session has not joined")
	ErrAlreadyJoined      = fmt.Errorf("session already joined")
	ErrSessionClosed      = fmt.Errorf("session disconnected")
	ErrSelfMessage        = fmt.Errorf("sending a message to yourself is disabled")
	ErrContentTooLong     = fmt.Errorf("content exceeds maximum length")

	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrInvalidUsername    = fmt.Errorf("username must be 3 to 32 alphanumeric characters")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")

	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no censored words")
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }
