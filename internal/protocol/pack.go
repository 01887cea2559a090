package protocol

import (
	"fmt"

	"github.com/solatis/microproto/internal/property"
	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

// UpdateFor snapshots the current value of p.
func UpdateFor(p property.Property) (Update, error) {
	payload, err := property.Marshal(p)
	if err != nil {
		return Update{}, err
	}
	return Update{ID: p.ID(), Payload: payload}, nil
}

// SchemaEntryFor describes p.
func SchemaEntryFor(p property.Property) SchemaEntry {
	return SchemaEntry{
		ID:          p.ID(),
		Name:        p.Name(),
		Type:        p.TypeDef(),
		Flags:       uint8(p.Flags()),
		Level:       p.Level(),
		Group:       p.Group(),
		Description: p.Description(),
		UI:          p.UI(),
	}
}

// PackUpdates splits items into as few PROPERTY_UPDATE packets of at most
// maxPacket bytes as a greedy fill allows.
func PackUpdates(items []Update, maxPacket int) ([][]byte, error) {
	encoded := make([][]byte, 0, len(items))
	for _, it := range items {
		wb := wire.NewWriteBuffer(make([]byte, 2+wire.VarintSize(uint32(len(it.Payload)))+len(it.Payload)))
		wb.WriteValueItem(it.ID, it.Payload)
		encoded = append(encoded, wb.Bytes())
	}
	return pack(wire.OpPropertyUpdate, encoded, maxPacket)
}

// PackSchema splits entries into SCHEMA_UPSERT packets of at most maxPacket
// bytes.
func PackSchema(entries []SchemaEntry, maxPacket int) ([][]byte, error) {
	encoded := make([][]byte, 0, len(entries))
	scratch := make([]byte, maxPacket)
	for _, e := range entries {
		wb := wire.NewWriteBuffer(scratch)
		if !e.encode(wb) {
			return nil, fmt.Errorf("schema of %q: %w", e.Name, types.ErrBufferOverflow)
		}
		encoded = append(encoded, append([]byte(nil), wb.Bytes()...))
	}
	return pack(wire.OpSchemaUpsert, encoded, maxPacket)
}

func pack(op wire.OpCode, items [][]byte, maxPacket int) ([][]byte, error) {
	var packets [][]byte
	for len(items) > 0 {
		// header + batch count
		size := 2
		n := 0
		for n < len(items) && n < MaxBatch && size+len(items[n]) <= maxPacket {
			size += len(items[n])
			n++
		}
		if n == 0 {
			if 1+len(items[0]) > maxPacket {
				return packets, fmt.Errorf("%s item of %d bytes: %w", op, len(items[0]), types.ErrBufferOverflow)
			}
			n = 1
		}

		size = 1
		if n > 1 {
			size++
		}
		for _, it := range items[:n] {
			size += len(it)
		}
		wb := wire.NewWriteBuffer(make([]byte, size))
		writeBatchHeader(wb, op, 0, n)
		for _, it := range items[:n] {
			wb.WriteBytes(it)
		}
		packets = append(packets, wb.Bytes())
		items = items[n:]
	}
	return packets, nil
}
