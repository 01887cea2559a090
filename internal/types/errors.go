package types

import "errors"

// Sentinel errors for MicroProto operations.
var (
	// ErrTypeMismatch indicates a decode met a tag or size inconsistent with the target.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrBufferOverflow indicates a write past the capacity of a WriteBuffer.
	ErrBufferOverflow = errors.New("buffer overflow")

	// ErrBufferUnderflow indicates a read past the end of a ReadBuffer.
	ErrBufferUnderflow = errors.New("buffer underflow")

	// ErrVarintOverflow indicates a varint longer than 5 bytes or above 32 bits.
	ErrVarintOverflow = errors.New("varint overflows 32 bits")

	// ErrCapacityExceeded indicates a list push past its maximum or a full resource table.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrNotFound indicates an unknown storage key, variant name, property or resource id.
	ErrNotFound = errors.New("not found")

	// ErrIOFailure indicates the storage backend refused the operation.
	ErrIOFailure = errors.New("storage I/O failure")

	// ErrReadOnly indicates a write to a readonly property from a remote peer.
	ErrReadOnly = errors.New("property is readonly")

	// ErrValidation indicates a value outside the property's constraints.
	ErrValidation = errors.New("value violates constraints")

	// ErrInvalidName indicates an empty, non-ASCII or over-long property name.
	ErrInvalidName = errors.New("invalid property name")

	// ErrDuplicateProperty indicates a second registration of the same (level, name).
	ErrDuplicateProperty = errors.New("duplicate property")

	// ErrNotWireSafe indicates a type with owning members used where a fixed layout is required.
	ErrNotWireSafe = errors.New("type is not wire-safe")

	// ErrUnsupportedType indicates a Go type with no wire mapping.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrInvariant indicates a programming error detected at runtime.
	ErrInvariant = errors.New("invariant violated")

	// ErrVersionMismatch indicates a peer speaking another protocol version.
	ErrVersionMismatch = errors.New("protocol version mismatch")

	// ErrInvalidPath indicates a malformed value path.
	ErrInvalidPath = errors.New("invalid value path")

	// ErrPathTooDeep indicates a value path exceeds MaxPathDepth.
	ErrPathTooDeep = errors.New("value path exceeds maximum depth")

	// ErrFieldNotFound indicates a value path could not be resolved.
	ErrFieldNotFound = errors.New("field not found")

	// ErrCoercionFailed indicates text or JSON input could not be converted to the wire type.
	ErrCoercionFailed = errors.New("type coercion failed")
)
