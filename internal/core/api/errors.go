package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/microproto/internal/transport"
	"github.com/solatis/microproto/internal/types"
)

// statusFor maps domain errors onto gRPC codes. Auth errors are mapped by
// the auth interceptors before a handler runs.
func statusFor(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, types.ErrNotFound), errors.Is(err, types.ErrFieldNotFound):
		code = codes.NotFound
	case errors.Is(err, types.ErrReadOnly):
		code = codes.PermissionDenied
	case errors.Is(err, types.ErrValidation):
		code = codes.FailedPrecondition
	case errors.Is(err, types.ErrCoercionFailed), errors.Is(err, types.ErrTypeMismatch),
		errors.Is(err, types.ErrInvalidPath), errors.Is(err, types.ErrPathTooDeep):
		code = codes.InvalidArgument
	case errors.Is(err, types.ErrCapacityExceeded), errors.Is(err, transport.ErrTooManyClients):
		code = codes.ResourceExhausted
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}
