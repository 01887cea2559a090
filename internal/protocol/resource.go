package protocol

import (
	"fmt"

	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

// Resource RPC function ids.
const (
	FuncResourceGet    uint32 = 1
	FuncResourcePut    uint32 = 2
	FuncResourceDelete uint32 = 3
)

// ResourceRequest is the argument block of a resource RPC.
//
//	get, delete: varint prop_id | u32 id
//	put:         varint prop_id | u32 id | varint hlen | header | varint blen | body
//
// A put with id 0 creates a resource; otherwise a non-empty header or body
// replaces the stored one.
type ResourceRequest struct {
	Property types.PropertyID
	ID       uint32
	Header   []byte
	Body     []byte
}

// EncodeArgs writes the arguments of function fn.
func (r ResourceRequest) EncodeArgs(wb *wire.WriteBuffer, fn uint32) bool {
	ok := wb.WriteVarint(uint32(r.Property)) > 0 && wb.WriteU32(r.ID)
	if ok && fn == FuncResourcePut {
		ok = wb.WriteBlob(r.Header) && wb.WriteBlob(r.Body)
	}
	return ok
}

// Call wraps the request in an RPC_CALL message.
func (r ResourceRequest) Call(requestID uint8, fn uint32) (RPCCall, error) {
	size := types.MaxVarintBytes + 4 + 2*types.MaxVarintBytes + len(r.Header) + len(r.Body)
	wb := wire.NewWriteBuffer(make([]byte, size))
	if !r.EncodeArgs(wb, fn) {
		return RPCCall{}, wb.Err()
	}
	return RPCCall{RequestID: requestID, FunctionID: fn, Args: wb.Bytes()}, nil
}

// DecodeResourceRequest parses the arguments of function fn. An unknown fn
// fails with ErrUnhandled before args are read. Header and body alias args.
func DecodeResourceRequest(fn uint32, args []byte) (ResourceRequest, error) {
	var r ResourceRequest
	switch fn {
	case FuncResourceGet, FuncResourceDelete, FuncResourcePut:
	default:
		return r, fmt.Errorf("function %d: %w", fn, ErrUnhandled)
	}

	rb := wire.NewReadBuffer(args)
	pid, err := rb.ReadVarint()
	if err != nil {
		return r, err
	}
	if pid > types.MaxPropertyID {
		return r, fmt.Errorf("property id %d: %w", pid, types.ErrTypeMismatch)
	}
	r.Property = types.PropertyID(pid)
	if r.ID, err = rb.ReadU32(); err != nil {
		return r, err
	}
	if fn == FuncResourcePut {
		if r.Header, err = rb.ReadBlob(); err != nil {
			return r, err
		}
		if r.Body, err = rb.ReadBlob(); err != nil {
			return r, err
		}
	}
	if rb.Remaining() != 0 {
		return r, ErrTrailingBytes
	}
	return r, nil
}
