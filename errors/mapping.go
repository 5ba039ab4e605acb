package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type mapping struct {
	target error
	code   codes.Code
	http   int
}

// Order matters: the first sentinel found in the chain wins.
var mappings = []mapping{
	{ErrInvalidRequest, codes.InvalidArgument, http.StatusBadRequest},
	{ErrContentTooLong, codes.InvalidArgument, http.StatusBadRequest},
	{ErrSelfMessage, codes.InvalidArgument, http.StatusBadRequest},
	{ErrInvalidPassword, codes.InvalidArgument, http.StatusBadRequest},
	{ErrInvalidUsername, codes.InvalidArgument, http.StatusBadRequest},
	{ErrUnauthenticated, codes.Unauthenticated, http.StatusUnauthorized},
	{ErrInvalidCredentials, codes.Unauthenticated, http.StatusUnauthorized},
	{ErrForbidden, codes.PermissionDenied, http.StatusForbidden},
	{ErrUserAlreadyExists, codes.AlreadyExists, http.StatusConflict},
	{ErrUserNotFound, codes.NotFound, http.StatusNotFound},
	{ErrNotJoined, codes.FailedPrecondition, http.StatusConflict},
	{ErrAlreadyJoined, codes.FailedPrecondition, http.StatusConflict},
	{ErrSessionClosed, codes.FailedPrecondition, http.StatusConflict},
	{ErrSlowConsumer, codes.ResourceExhausted, http.StatusTooManyRequests},
	{ErrStorageUnavailable, codes.Unavailable, http.StatusServiceUnavailable},
}

// MapToGRPCError converts a service error into a gRPC status error.
// Errors that already carry a status are returned untouched.
func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, m := range mappings {
		if Is(err, m.target) {
			return status.Error(m.code, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}

// ToHTTPStatus returns the HTTP status code matching a service error.
func ToHTTPStatus(err error) int {
	for _, m := range mappings {
		if Is(err, m.target) {
			return m.http
		}
	}
	return http.StatusInternalServerError
}
