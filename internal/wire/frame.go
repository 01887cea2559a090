package wire

import "github.com/solatis/microproto/internal/types"

// ValueFrame is one property value on the wire:
// message_type (1B) | property_id (2B LE) | payload_len (varint) | payload.
type ValueFrame struct {
	Type    uint8
	ID      types.PropertyID
	Payload []byte
}

// WriteValueFrame writes a complete value frame. On overflow the buffer is
// rolled back to where the frame started.
func (w *WriteBuffer) WriteValueFrame(f ValueFrame) bool {
	start := w.Position()
	if !w.WriteU8(f.Type) || !w.WriteValueItem(f.ID, f.Payload) {
		w.Truncate(start)
		w.overflow = true
		return false
	}
	return true
}

// WriteValueItem writes property_id | payload_len | payload, the framing shared
// by single and batched updates.
func (w *WriteBuffer) WriteValueItem(id types.PropertyID, payload []byte) bool {
	return w.WritePropID(id) && w.WriteBlob(payload)
}

// ReadValueFrame reads a complete value frame. The payload aliases the buffer.
func (r *ReadBuffer) ReadValueFrame() (ValueFrame, error) {
	start := r.Position()
	t, err := r.ReadU8()
	if err != nil {
		return ValueFrame{}, err
	}
	id, payload, err := r.ReadValueItem()
	if err != nil {
		r.SetPosition(start)
		return ValueFrame{}, err
	}
	return ValueFrame{Type: t, ID: id, Payload: payload}, nil
}

// ReadValueItem reads property_id | payload_len | payload.
func (r *ReadBuffer) ReadValueItem() (types.PropertyID, []byte, error) {
	start := r.Position()
	id, err := r.ReadPropID()
	if err != nil {
		return 0, nil, err
	}
	payload, err := r.ReadBlob()
	if err != nil {
		r.SetPosition(start)
		return 0, nil, err
	}
	return id, payload, nil
}
