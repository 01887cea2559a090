package protocol

import (
	"errors"

	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

var (
	// ErrInvalidOpcode indicates a header with an unknown opcode.
	ErrInvalidOpcode = errors.New("invalid opcode")

	// ErrTrailingBytes indicates bytes left over after a complete message.
	ErrTrailingBytes = errors.New("trailing bytes after message")

	// ErrUnhandled indicates a message the handler does not accept.
	ErrUnhandled = errors.New("message not handled")
)

// CodeFor maps an error to the protocol error code reported to peers.
func CodeFor(err error) wire.ErrorCode {
	var perr Error
	switch {
	case err == nil:
		return wire.ErrCodeSuccess
	case errors.As(err, &perr):
		return perr.Code
	case errors.Is(err, ErrInvalidOpcode):
		return wire.ErrCodeInvalidOpcode
	case errors.Is(err, ErrUnhandled):
		return wire.ErrCodeNotImplemented
	case errors.Is(err, types.ErrNotFound):
		return wire.ErrCodeInvalidPropertyID
	case errors.Is(err, types.ErrReadOnly):
		return wire.ErrCodePermissionDenied
	case errors.Is(err, types.ErrValidation):
		return wire.ErrCodeValidationFailed
	case errors.Is(err, types.ErrCapacityExceeded):
		return wire.ErrCodeOutOfRange
	case errors.Is(err, types.ErrVersionMismatch):
		return wire.ErrCodeProtocolVersionMismatch
	case errors.Is(err, types.ErrBufferOverflow):
		return wire.ErrCodeBufferOverflow
	default:
		return wire.ErrCodeTypeMismatch
	}
}

// ResourceCodeFor maps a resource operation error to its RPC status.
func ResourceCodeFor(err error) wire.ResourceError {
	switch {
	case err == nil:
		return wire.ResourceOK
	case errors.Is(err, types.ErrNotFound):
		return wire.ResourceNotFound
	case errors.Is(err, types.ErrCapacityExceeded):
		return wire.ResourceOutOfSpace
	case errors.Is(err, types.ErrBufferOverflow), errors.Is(err, types.ErrBufferUnderflow),
		errors.Is(err, types.ErrTypeMismatch), errors.Is(err, types.ErrValidation):
		return wire.ResourceInvalidData
	default:
		return wire.ResourceFailed
	}
}
