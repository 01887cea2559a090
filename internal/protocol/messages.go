// Package protocol implements the MicroProto binary messages exchanged
// between a device and its clients.
//
// Every message starts with an op header byte (see wire.OpHeader). Encode
// methods write the header and the body; on overflow the buffer is rolled
// back to where the message started so that a caller packing several
// messages into one packet can flush and retry. Decode functions read the
// body after the header has been consumed by the Router.
package protocol

import (
	"fmt"

	"github.com/solatis/microproto/internal/property"
	"github.com/solatis/microproto/internal/schema"
	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

// MaxBatch is the largest item count of a batched message (count-1 fits a u8).
const MaxBatch = 256

func rollback(wb *wire.WriteBuffer, start int, ok bool) bool {
	if !ok {
		wb.Truncate(start)
	}
	return ok
}

// writeBatchHeader writes the op header and, for more than one item, the
// batch count byte.
func writeBatchHeader(wb *wire.WriteBuffer, op wire.OpCode, flags uint8, n int) bool {
	if n > 1 {
		return wb.WriteHeader(wire.OpHeader{Op: op, Flags: flags, Batch: true}) &&
			wb.WriteU8(uint8(n-1))
	}
	return wb.WriteHeader(wire.OpHeader{Op: op, Flags: flags})
}

func readBatchCount(rb *wire.ReadBuffer, h wire.OpHeader) (int, error) {
	if !h.Batch {
		return 1, nil
	}
	n, err := rb.ReadU8()
	if err != nil {
		return 0, err
	}
	return int(n) + 1, nil
}

// Hello is the handshake a client opens a session with.
type Hello struct {
	Version   uint8
	MaxPacket uint16
	DeviceID  uint32
}

func (m Hello) Encode(wb *wire.WriteBuffer) bool {
	start := wb.Position()
	return rollback(wb, start, wb.WriteHeader(wire.OpHeader{Op: wire.OpHello}) &&
		wb.WriteU8(m.Version) && wb.WriteU16(m.MaxPacket) && wb.WriteU32(m.DeviceID))
}

func DecodeHello(rb *wire.ReadBuffer) (Hello, error) {
	var m Hello
	var err error
	if m.Version, err = rb.ReadU8(); err != nil {
		return m, err
	}
	if m.MaxPacket, err = rb.ReadU16(); err != nil {
		return m, err
	}
	m.DeviceID, err = rb.ReadU32()
	return m, err
}

// HelloResponse is the device's answer to Hello.
type HelloResponse struct {
	Version   uint8
	MaxPacket uint16
	SessionID uint32
	Timestamp uint32
}

func (m HelloResponse) Encode(wb *wire.WriteBuffer) bool {
	start := wb.Position()
	return rollback(wb, start, wb.WriteHeader(wire.OpHeader{Op: wire.OpHello, Flags: wire.FlagIsResponse}) &&
		wb.WriteU8(m.Version) && wb.WriteU16(m.MaxPacket) &&
		wb.WriteU32(m.SessionID) && wb.WriteU32(m.Timestamp))
}

func DecodeHelloResponse(rb *wire.ReadBuffer) (HelloResponse, error) {
	var m HelloResponse
	var err error
	if m.Version, err = rb.ReadU8(); err != nil {
		return m, err
	}
	if m.MaxPacket, err = rb.ReadU16(); err != nil {
		return m, err
	}
	if m.SessionID, err = rb.ReadU32(); err != nil {
		return m, err
	}
	m.Timestamp, err = rb.ReadU32()
	return m, err
}

// Update is one property value: the value frame of a property without its
// message type byte.
type Update struct {
	ID      types.PropertyID
	Payload []byte
}

// PropertyUpdate carries one or more property values.
type PropertyUpdate struct {
	// Timestamp is sent once per message when HasTimestamp is set.
	Timestamp    uint32
	HasTimestamp bool
	Items        []Update
}

func (m PropertyUpdate) Encode(wb *wire.WriteBuffer) bool {
	if len(m.Items) == 0 || len(m.Items) > MaxBatch {
		return false
	}
	var flags uint8
	if m.HasTimestamp {
		flags = wire.FlagHasTimestamp
	}
	start := wb.Position()
	ok := writeBatchHeader(wb, wire.OpPropertyUpdate, flags, len(m.Items))
	if ok && m.HasTimestamp {
		ok = wb.WriteVarint(m.Timestamp) > 0
	}
	for _, it := range m.Items {
		if !ok {
			break
		}
		ok = wb.WriteValueItem(it.ID, it.Payload)
	}
	return rollback(wb, start, ok)
}

// DecodePropertyUpdate reads the body of a PROPERTY_UPDATE or
// PROPERTY_UPDATE_SHORT message. The short form carries one-byte property ids.
// Payloads alias the read buffer.
func DecodePropertyUpdate(rb *wire.ReadBuffer, h wire.OpHeader) (PropertyUpdate, error) {
	var m PropertyUpdate
	n, err := readBatchCount(rb, h)
	if err != nil {
		return m, err
	}
	if h.Flags&wire.FlagHasTimestamp != 0 {
		m.HasTimestamp = true
		if m.Timestamp, err = rb.ReadVarint(); err != nil {
			return m, err
		}
	}
	m.Items = make([]Update, 0, n)
	for range n {
		var it Update
		if h.Op == wire.OpPropertyUpdateShort {
			id, err := rb.ReadU8()
			if err != nil {
				return m, err
			}
			it.ID = types.PropertyID(id)
			if it.Payload, err = rb.ReadBlob(); err != nil {
				return m, err
			}
		} else if it.ID, it.Payload, err = rb.ReadValueItem(); err != nil {
			return m, err
		}
		m.Items = append(m.Items, it)
	}
	return m, nil
}

// SchemaEntry describes one property to a client.
type SchemaEntry struct {
	ID          types.PropertyID
	Name        string
	Type        *schema.TypeDef
	Flags       uint8
	Level       types.Level
	Group       uint8
	Description string
	UI          property.UIHints
}

func (e SchemaEntry) encode(wb *wire.WriteBuffer) bool {
	return wb.WritePropID(e.ID) && wb.WriteString(e.Name) &&
		schema.EncodeTypeDef(wb, e.Type) &&
		wb.WriteU8(e.Flags) && wb.WriteU8(uint8(e.Level)) && wb.WriteU8(e.Group) &&
		wb.WriteString(e.Description) && e.UI.Encode(wb)
}

func decodeSchemaEntry(rb *wire.ReadBuffer) (SchemaEntry, error) {
	var e SchemaEntry
	var err error
	if e.ID, err = rb.ReadPropID(); err != nil {
		return e, err
	}
	if e.Name, err = rb.ReadString(); err != nil {
		return e, err
	}
	if e.Type, err = schema.DecodeTypeDef(rb); err != nil {
		return e, fmt.Errorf("schema of %q: %w", e.Name, err)
	}
	if e.Flags, err = rb.ReadU8(); err != nil {
		return e, err
	}
	lvl, err := rb.ReadU8()
	if err != nil {
		return e, err
	}
	e.Level = types.Level(lvl)
	if e.Group, err = rb.ReadU8(); err != nil {
		return e, err
	}
	if e.Description, err = rb.ReadString(); err != nil {
		return e, err
	}
	e.UI, err = property.DecodeUIHints(rb)
	return e, err
}

// SchemaUpsert announces or replaces property descriptors.
type SchemaUpsert struct {
	Entries []SchemaEntry
}

func (m SchemaUpsert) Encode(wb *wire.WriteBuffer) bool {
	if len(m.Entries) == 0 || len(m.Entries) > MaxBatch {
		return false
	}
	start := wb.Position()
	ok := writeBatchHeader(wb, wire.OpSchemaUpsert, 0, len(m.Entries))
	for _, e := range m.Entries {
		if !ok {
			break
		}
		ok = e.encode(wb)
	}
	return rollback(wb, start, ok)
}

func DecodeSchemaUpsert(rb *wire.ReadBuffer, h wire.OpHeader) (SchemaUpsert, error) {
	n, err := readBatchCount(rb, h)
	if err != nil {
		return SchemaUpsert{}, err
	}
	m := SchemaUpsert{Entries: make([]SchemaEntry, 0, n)}
	for range n {
		e, err := decodeSchemaEntry(rb)
		if err != nil {
			return m, err
		}
		m.Entries = append(m.Entries, e)
	}
	return m, nil
}

// SchemaDelete withdraws properties.
type SchemaDelete struct {
	IDs []types.PropertyID
}

func (m SchemaDelete) Encode(wb *wire.WriteBuffer) bool {
	if len(m.IDs) == 0 || len(m.IDs) > MaxBatch {
		return false
	}
	start := wb.Position()
	ok := writeBatchHeader(wb, wire.OpSchemaDelete, 0, len(m.IDs))
	for _, id := range m.IDs {
		if !ok {
			break
		}
		ok = wb.WritePropID(id)
	}
	return rollback(wb, start, ok)
}

func DecodeSchemaDelete(rb *wire.ReadBuffer, h wire.OpHeader) (SchemaDelete, error) {
	n, err := readBatchCount(rb, h)
	if err != nil {
		return SchemaDelete{}, err
	}
	m := SchemaDelete{IDs: make([]types.PropertyID, 0, n)}
	for range n {
		id, err := rb.ReadPropID()
		if err != nil {
			return m, err
		}
		m.IDs = append(m.IDs, id)
	}
	return m, nil
}

// Error reports a failed request.
type Error struct {
	Code    wire.ErrorCode
	Message string
	// RelatedOp is the opcode of the offending message when HasRelated is set.
	RelatedOp  wire.OpCode
	HasRelated bool
}

func (m Error) Error() string {
	if m.Message == "" {
		return m.Code.String()
	}
	return m.Code.String() + ": " + m.Message
}

func (m Error) Encode(wb *wire.WriteBuffer) bool {
	var flags uint8
	if m.HasRelated {
		flags = wire.FlagHasRelatedOp
	}
	start := wb.Position()
	ok := wb.WriteHeader(wire.OpHeader{Op: wire.OpError, Flags: flags}) &&
		wb.WriteU16(uint16(m.Code)) && wb.WriteString(m.Message)
	if ok && m.HasRelated {
		ok = wb.WriteU8(uint8(m.RelatedOp))
	}
	return rollback(wb, start, ok)
}

func DecodeError(rb *wire.ReadBuffer, h wire.OpHeader) (Error, error) {
	var m Error
	code, err := rb.ReadU16()
	if err != nil {
		return m, err
	}
	m.Code = wire.ErrorCode(code)
	if m.Message, err = rb.ReadString(); err != nil {
		return m, err
	}
	if h.Flags&wire.FlagHasRelatedOp != 0 {
		op, err := rb.ReadU8()
		if err != nil {
			return m, err
		}
		m.RelatedOp, m.HasRelated = wire.OpCode(op), true
	}
	return m, nil
}

// Ping asks the peer to echo Payload in a Pong.
type Ping struct {
	Payload uint32
}

func (m Ping) Encode(wb *wire.WriteBuffer) bool {
	start := wb.Position()
	return rollback(wb, start, wb.WriteHeader(wire.OpHeader{Op: wire.OpPing}) && wb.WriteVarint(m.Payload) > 0)
}

// Pong answers a Ping.
type Pong struct {
	Payload uint32
}

func (m Pong) Encode(wb *wire.WriteBuffer) bool {
	start := wb.Position()
	return rollback(wb, start, wb.WriteHeader(wire.OpHeader{Op: wire.OpPong}) && wb.WriteVarint(m.Payload) > 0)
}

// decodePayload reads the optional varint of PING and PONG.
func decodePayload(rb *wire.ReadBuffer) (uint32, error) {
	if rb.Remaining() == 0 {
		return 0, nil
	}
	return rb.ReadVarint()
}

// RPCCall invokes a device function. Args are function specific.
type RPCCall struct {
	RequestID  uint8
	FunctionID uint32
	Args       []byte
}

func (m RPCCall) Encode(wb *wire.WriteBuffer) bool {
	start := wb.Position()
	return rollback(wb, start, wb.WriteHeader(wire.OpHeader{Op: wire.OpRPCCall}) &&
		wb.WriteU8(m.RequestID) && wb.WriteVarint(m.FunctionID) > 0 && wb.WriteBytes(m.Args))
}

func DecodeRPCCall(rb *wire.ReadBuffer) (RPCCall, error) {
	var m RPCCall
	var err error
	if m.RequestID, err = rb.ReadU8(); err != nil {
		return m, err
	}
	if m.FunctionID, err = rb.ReadVarint(); err != nil {
		return m, err
	}
	m.Args = rb.Rest()
	rb.SetPosition(rb.Position() + len(m.Args))
	return m, nil
}

// RPCResponse answers an RPCCall with either a result or an error.
type RPCResponse struct {
	RequestID uint8
	Failed    bool
	Code      wire.ResourceError
	Message   string
	Result    []byte
}

func (m RPCResponse) Encode(wb *wire.WriteBuffer) bool {
	var flags uint8
	if m.Failed {
		flags = wire.FlagRPCError
	}
	start := wb.Position()
	ok := wb.WriteHeader(wire.OpHeader{Op: wire.OpRPCResponse, Flags: flags}) && wb.WriteU8(m.RequestID)
	if ok && m.Failed {
		ok = wb.WriteU8(uint8(m.Code)) && wb.WriteString(m.Message)
	} else if ok {
		ok = wb.WriteBytes(m.Result)
	}
	return rollback(wb, start, ok)
}

func DecodeRPCResponse(rb *wire.ReadBuffer, h wire.OpHeader) (RPCResponse, error) {
	var m RPCResponse
	var err error
	if m.RequestID, err = rb.ReadU8(); err != nil {
		return m, err
	}
	if h.Flags&wire.FlagRPCError == 0 {
		m.Result = rb.Rest()
		rb.SetPosition(rb.Position() + len(m.Result))
		return m, nil
	}
	m.Failed = true
	code, err := rb.ReadU8()
	if err != nil {
		return m, err
	}
	m.Code = wire.ResourceError(code)
	m.Message, err = rb.ReadString()
	return m, err
}
