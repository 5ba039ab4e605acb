package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestMapToGRPCError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
		http int
	}{
		{"invalid request", fmt.Errorf("%w: recipient is empty", ErrInvalidRequest), codes.InvalidArgument, http.StatusBadRequest},
		{"storage", fmt.Errorf("%w: disk full", ErrStorageUnavailable), codes.Unavailable, http.StatusServiceUnavailable},
		{"forbidden", ErrForbidden, codes.PermissionDenied, http.StatusForbidden},
		{"credentials", ErrInvalidCredentials, codes.Unauthenticated, http.StatusUnauthorized},
		{"not joined", ErrNotJoined, codes.FailedPrecondition, http.StatusConflict},
		{"unknown", fmt.Errorf("boom"), codes.Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			st, ok := status.FromError(MapToGRPCError(tt.err))
			req.True(ok)
			req.Equal(tt.code, st.Code())
			req.Equal(tt.http, ToHTTPStatus(tt.err))
		})
	}
}

func TestMapToGRPCError_Keeps_Existing_Status(t *testing.T) {
	req := require.New(t)
	original := status.Error(codes.Aborted, "aborted")

	req.Equal(original, MapToGRPCError(original))
	req.NoError(MapToGRPCError(nil))
}
