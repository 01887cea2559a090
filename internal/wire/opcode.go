package wire

import "fmt"

// OpCode is the 4-bit message kind carried in the low nibble of the op header.
type OpCode uint8

const (
	OpHello               OpCode = 0x0
	OpPropertyUpdateShort OpCode = 0x1
	OpPropertyUpdate      OpCode = 0x2
	OpSchemaUpsert        OpCode = 0x3
	OpSchemaDelete        OpCode = 0x4
	OpRPCCall             OpCode = 0x5
	OpRPCResponse         OpCode = 0x6
	OpError               OpCode = 0x7
	OpPing                OpCode = 0x8
	OpPong                OpCode = 0x9
)

var opNames = [...]string{
	"HELLO", "PROPERTY_UPDATE_SHORT", "PROPERTY_UPDATE", "SCHEMA_UPSERT",
	"SCHEMA_DELETE", "RPC_CALL", "RPC_RESPONSE", "ERROR", "PING", "PONG",
}

func (o OpCode) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("OP(0x%x)", uint8(o))
}

// Valid reports whether o is a known opcode.
func (o OpCode) Valid() bool { return int(o) < len(opNames) }

// Header flag bits (bits 4-6 of the op header, stored here shifted down).
const (
	FlagIsResponse   uint8 = 0x01 // HELLO response
	FlagHasRelatedOp uint8 = 0x01 // ERROR carries the offending opcode
	FlagRPCError     uint8 = 0x01 // RPC_RESPONSE carries an error
	FlagHasTimestamp uint8 = 0x01 // PROPERTY_UPDATE items carry a timestamp
)

// OpHeader is the first byte of every protocol message:
// opcode in bits 0-3, flags in bits 4-6, batch marker in bit 7.
type OpHeader struct {
	Op    OpCode
	Flags uint8
	Batch bool
}

// Encode packs the header into one byte.
func (h OpHeader) Encode() uint8 {
	b := uint8(h.Op)&0x0F | (h.Flags&0x07)<<4
	if h.Batch {
		b |= 0x80
	}
	return b
}

// DecodeOpHeader unpacks a header byte.
func DecodeOpHeader(b uint8) OpHeader {
	return OpHeader{
		Op:    OpCode(b & 0x0F),
		Flags: (b >> 4) & 0x07,
		Batch: b&0x80 != 0,
	}
}

// WriteHeader writes h as one byte.
func (w *WriteBuffer) WriteHeader(h OpHeader) bool {
	return w.WriteU8(h.Encode())
}

// ReadHeader reads one header byte.
func (r *ReadBuffer) ReadHeader() (OpHeader, error) {
	b, err := r.ReadU8()
	if err != nil {
		return OpHeader{}, err
	}
	return DecodeOpHeader(b), nil
}

// ErrorCode is the 16-bit code carried by ERROR messages.
type ErrorCode uint16

const (
	ErrCodeSuccess                 ErrorCode = 0x0000
	ErrCodeInvalidOpcode           ErrorCode = 0x0001
	ErrCodeInvalidPropertyID       ErrorCode = 0x0002
	ErrCodeInvalidFunctionID       ErrorCode = 0x0003
	ErrCodeTypeMismatch            ErrorCode = 0x0004
	ErrCodeValidationFailed        ErrorCode = 0x0005
	ErrCodeOutOfRange              ErrorCode = 0x0006
	ErrCodePermissionDenied        ErrorCode = 0x0007
	ErrCodeNotImplemented          ErrorCode = 0x0008
	ErrCodeProtocolVersionMismatch ErrorCode = 0x0009
	ErrCodeBufferOverflow          ErrorCode = 0x000A
)

var errorCodeNames = [...]string{
	"SUCCESS", "INVALID_OPCODE", "INVALID_PROPERTY_ID", "INVALID_FUNCTION_ID",
	"TYPE_MISMATCH", "VALIDATION_FAILED", "OUT_OF_RANGE", "PERMISSION_DENIED",
	"NOT_IMPLEMENTED", "PROTOCOL_VERSION_MISMATCH", "BUFFER_OVERFLOW",
}

func (c ErrorCode) String() string {
	if int(c) < len(errorCodeNames) {
		return errorCodeNames[c]
	}
	return fmt.Sprintf("ERROR(0x%04x)", uint16(c))
}

// ResourceError is the 1-byte status of a failed resource RPC.
type ResourceError uint8

const (
	ResourceOK          ResourceError = 0
	ResourceNotFound    ResourceError = 1
	ResourceInvalidData ResourceError = 2
	ResourceFailed      ResourceError = 3
	ResourceOutOfSpace  ResourceError = 4
)

func (e ResourceError) String() string {
	switch e {
	case ResourceOK:
		return "OK"
	case ResourceNotFound:
		return "NOT_FOUND"
	case ResourceInvalidData:
		return "INVALID_DATA"
	case ResourceFailed:
		return "ERROR"
	case ResourceOutOfSpace:
		return "OUT_OF_SPACE"
	default:
		return fmt.Sprintf("RESOURCE_ERROR(%d)", uint8(e))
	}
}
