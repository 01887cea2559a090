package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/solatis/microproto/internal/property"
	"github.com/solatis/microproto/internal/schema"
	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

type encoder interface {
	Encode(wb *wire.WriteBuffer) bool
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		msg  encoder
		want []byte
	}{
		{
			name: "hello",
			msg:  Hello{Version: 1, MaxPacket: 4096, DeviceID: 0xDEADBEEF},
			want: []byte{0x00, 0x01, 0x00, 0x10, 0xEF, 0xBE, 0xAD, 0xDE},
		},
		{
			name: "hello response",
			msg:  HelloResponse{Version: 1, MaxPacket: 512, SessionID: 7, Timestamp: 1},
			want: []byte{0x10, 0x01, 0x00, 0x02, 0x07, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00},
		},
		{
			name: "single update",
			msg:  PropertyUpdate{Items: []Update{{ID: 3, Payload: []byte{0x2A}}}},
			want: []byte{0x02, 0x03, 0x00, 0x01, 0x2A},
		},
		{
			name: "batched update",
			msg: PropertyUpdate{Items: []Update{
				{ID: 3, Payload: []byte{0x2A}},
				{ID: 4, Payload: []byte{0x01}},
			}},
			want: []byte{0x82, 0x01, 0x03, 0x00, 0x01, 0x2A, 0x04, 0x00, 0x01, 0x01},
		},
		{
			name: "update with timestamp",
			msg:  PropertyUpdate{HasTimestamp: true, Timestamp: 300, Items: []Update{{ID: 1, Payload: []byte{0x00}}}},
			want: []byte{0x12, 0xAC, 0x02, 0x01, 0x00, 0x01, 0x00},
		},
		{
			name: "schema upsert",
			msg: SchemaUpsert{Entries: []SchemaEntry{{
				ID: 0, Name: "a", Type: schema.Basic(types.TypeUint8), Flags: 1, Group: 2, Description: "x",
			}}},
			want: []byte{0x03, 0x00, 0x00, 0x01, 'a', 0x03, 0x00, 0x01, 0x00, 0x02, 0x01, 'x', 0x00},
		},
		{
			name: "schema upsert with ui hints",
			msg: SchemaUpsert{Entries: []SchemaEntry{{
				ID: 1, Name: "b", Type: schema.Basic(types.TypeUint8),
				UI: property.UIHints{Widget: property.WidgetSlider, Unit: "%", ColorGroup: 3},
			}}},
			want: []byte{0x03, 0x01, 0x00, 0x01, 'b', 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x33, 0x01, 0x01, '%'},
		},
		{
			name: "schema delete",
			msg:  SchemaDelete{IDs: []types.PropertyID{1, 2}},
			want: []byte{0x84, 0x01, 0x01, 0x00, 0x02, 0x00},
		},
		{
			name: "error with related opcode",
			msg:  Error{Code: wire.ErrCodePermissionDenied, Message: "ro", RelatedOp: wire.OpPropertyUpdate, HasRelated: true},
			want: []byte{0x17, 0x07, 0x00, 0x02, 'r', 'o', 0x02},
		},
		{
			name: "ping",
			msg:  Ping{Payload: 300},
			want: []byte{0x08, 0xAC, 0x02},
		},
		{
			name: "pong",
			msg:  Pong{Payload: 1},
			want: []byte{0x09, 0x01},
		},
		{
			name: "rpc call",
			msg:  RPCCall{RequestID: 5, FunctionID: 1, Args: []byte{0x08, 0x01, 0x00, 0x00, 0x00}},
			want: []byte{0x05, 0x05, 0x01, 0x08, 0x01, 0x00, 0x00, 0x00},
		},
		{
			name: "rpc error response",
			msg:  RPCResponse{RequestID: 5, Failed: true, Code: wire.ResourceNotFound},
			want: []byte{0x16, 0x05, 0x01, 0x00},
		},
		{
			name: "rpc result response",
			msg:  RPCResponse{RequestID: 5, Result: []byte{0x02, 0x00, 0x00, 0x00}},
			want: []byte{0x06, 0x05, 0x02, 0x00, 0x00, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wb := wire.NewWriteBuffer(make([]byte, 64))
			if !tt.msg.Encode(wb) {
				t.Fatal("Encode() = false, want true")
			}
			if !bytes.Equal(wb.Bytes(), tt.want) {
				t.Errorf("Encode() = % x, want % x", wb.Bytes(), tt.want)
			}
		})
	}
}

func TestEncodeRollsBackOnOverflow(t *testing.T) {
	wb := wire.NewWriteBuffer(make([]byte, 6))
	wb.WriteU8(0xEE)
	msg := PropertyUpdate{Items: []Update{{ID: 1, Payload: []byte{1, 2, 3, 4}}}}
	if msg.Encode(wb) {
		t.Fatal("Encode() = true, want false")
	}
	if wb.Position() != 1 {
		t.Errorf("Position() = %d, want 1", wb.Position())
	}
}

func TestEncodeRejectsBadBatchSizes(t *testing.T) {
	wb := wire.NewWriteBuffer(make([]byte, 4096))
	if (PropertyUpdate{}).Encode(wb) {
		t.Error("Encode() of empty batch = true, want false")
	}
	ids := make([]types.PropertyID, MaxBatch+1)
	if (SchemaDelete{IDs: ids}).Encode(wb) {
		t.Error("Encode() of oversized batch = true, want false")
	}
	if wb.Position() != 0 {
		t.Errorf("Position() = %d, want 0", wb.Position())
	}
}

func TestDecodeShortUpdate(t *testing.T) {
	rb := wire.NewReadBuffer([]byte{0x05, 0x01, 0x2A})
	m, err := DecodePropertyUpdate(rb, wire.OpHeader{Op: wire.OpPropertyUpdateShort})
	if err != nil {
		t.Fatalf("DecodePropertyUpdate() error = %v", err)
	}
	if len(m.Items) != 1 || m.Items[0].ID != 5 || !bytes.Equal(m.Items[0].Payload, []byte{0x2A}) {
		t.Errorf("DecodePropertyUpdate() = %+v", m)
	}
}

func TestErrorMessage(t *testing.T) {
	e := Error{Code: wire.ErrCodeValidationFailed, Message: "brightness"}
	if got, want := e.Error(), "VALIDATION_FAILED: brightness"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if CodeFor(e) != wire.ErrCodeValidationFailed {
		t.Errorf("CodeFor() = %v, want %v", CodeFor(e), wire.ErrCodeValidationFailed)
	}
}

func TestCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		want wire.ErrorCode
	}{
		{nil, wire.ErrCodeSuccess},
		{types.ErrReadOnly, wire.ErrCodePermissionDenied},
		{types.ErrValidation, wire.ErrCodeValidationFailed},
		{types.ErrNotFound, wire.ErrCodeInvalidPropertyID},
		{types.ErrBufferUnderflow, wire.ErrCodeTypeMismatch},
		{ErrInvalidOpcode, wire.ErrCodeInvalidOpcode},
		{types.ErrVersionMismatch, wire.ErrCodeProtocolVersionMismatch},
	}
	for _, tt := range tests {
		if got := CodeFor(tt.err); got != tt.want {
			t.Errorf("CodeFor(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}

	resource := []struct {
		err  error
		want wire.ResourceError
	}{
		{nil, wire.ResourceOK},
		{types.ErrNotFound, wire.ResourceNotFound},
		{types.ErrCapacityExceeded, wire.ResourceOutOfSpace},
		{types.ErrBufferOverflow, wire.ResourceInvalidData},
		{errors.Join(types.ErrIOFailure, errors.New("flash")), wire.ResourceFailed},
	}
	for _, tt := range resource {
		if got := ResourceCodeFor(tt.err); got != tt.want {
			t.Errorf("ResourceCodeFor(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestResourceRequest(t *testing.T) {
	tests := []struct {
		name string
		fn   uint32
		req  ResourceRequest
		want []byte
	}{
		{
			name: "get",
			fn:   FuncResourceGet,
			req:  ResourceRequest{Property: 8, ID: 1},
			want: []byte{0x08, 0x01, 0x00, 0x00, 0x00},
		},
		{
			name: "create",
			fn:   FuncResourcePut,
			req:  ResourceRequest{Property: 8, Header: []byte{'a'}, Body: []byte{1, 2}},
			want: []byte{0x08, 0x00, 0x00, 0x00, 0x00, 0x01, 'a', 0x02, 0x01, 0x02},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, err := tt.req.Call(4, tt.fn)
			if err != nil {
				t.Fatalf("Call() error = %v", err)
			}
			if !bytes.Equal(call.Args, tt.want) {
				t.Errorf("Call() args = % x, want % x", call.Args, tt.want)
			}
			got, err := DecodeResourceRequest(tt.fn, call.Args)
			if err != nil {
				t.Fatalf("DecodeResourceRequest() error = %v", err)
			}
			if got.Property != tt.req.Property || got.ID != tt.req.ID ||
				!bytes.Equal(got.Header, tt.req.Header) || !bytes.Equal(got.Body, tt.req.Body) {
				t.Errorf("DecodeResourceRequest() = %+v, want %+v", got, tt.req)
			}
		})
	}

	for _, args := range [][]byte{{0x08, 0, 0, 0, 0}, {0x08}, nil} {
		if _, err := DecodeResourceRequest(9, args); !errors.Is(err, ErrUnhandled) {
			t.Errorf("DecodeResourceRequest(9, % x) error = %v, want %v", args, err, ErrUnhandled)
		}
	}
	if _, err := DecodeResourceRequest(FuncResourceGet, []byte{0x08, 0, 0}); !errors.Is(err, types.ErrBufferUnderflow) {
		t.Errorf("DecodeResourceRequest(short) error = %v, want %v", err, types.ErrBufferUnderflow)
	}
}
