package property

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/solatis/microproto/internal/codec"
	"github.com/solatis/microproto/internal/schema"
	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

// BlobStore keeps resource bodies out of line. GetBody returns an error
// wrapping types.ErrNotFound for an absent key.
type BlobStore interface {
	PutBody(ctx context.Context, key string, body []byte) error
	GetBody(ctx context.Context, key string) ([]byte, error)
	DeleteBody(ctx context.Context, key string) error
}

// ResourceHeader is one entry of a resource table. Data is always exactly
// HeaderSize bytes.
type ResourceHeader struct {
	ID       uint32
	Version  uint32
	BodySize uint32
	Valid    bool
	Data     []byte
}

// ResourceOp names what happened to a resource.
type ResourceOp uint8

const (
	ResourceCreated ResourceOp = iota + 1
	ResourceUpdated
	ResourceDeleted
	// ResourceReloaded means the whole table was replaced by a decode.
	ResourceReloaded
)

func (op ResourceOp) String() string {
	switch op {
	case ResourceCreated:
		return "created"
	case ResourceUpdated:
		return "updated"
	case ResourceDeleted:
		return "deleted"
	case ResourceReloaded:
		return "reloaded"
	}
	return "unknown"
}

// ResourceEvent is passed to a resource's change callback.
type ResourceEvent struct {
	Op ResourceOp
	ID uint32
}

// Resource is a fixed-capacity table of versioned headers whose bodies live in
// a BlobStore. Ids start at 1, increase monotonically and are never reused.
// Remote peers cannot write the table directly, so it is always read-only.
type Resource struct {
	Base
	td         *schema.TypeDef
	max        int
	headerSize int
	entries    []ResourceHeader
	nextID     uint32
	blobs      BlobStore
	onChange   func(ResourceEvent)
}

// NewResource declares a resource table holding up to max entries with
// headerSize-byte headers. blobs may be nil, in which case bodies are not
// retained and ReadBody fails with ErrIOFailure.
func NewResource(name string, max, headerSize int, blobs BlobStore, opts ...Option) *Resource {
	if max < 1 || headerSize < 0 {
		panic(fmt.Errorf("property %q: %w: max %d, header %d", name, types.ErrInvariant, max, headerSize))
	}
	s := applyOptions(append(opts, ReadOnly()))
	header, body := s.header, s.body
	if header == nil {
		header = schema.ArrayOf(schema.Basic(types.TypeUint8), headerSize)
	}
	if body == nil {
		body = schema.BytesDef()
	}
	if n, ok := header.FixedSize(); !ok || n != headerSize {
		panic(fmt.Errorf("property %q: %w: header type %s is not %d bytes", name, types.ErrInvariant, header, headerSize))
	}
	return &Resource{
		Base:       newBase(name, s),
		td:         schema.ResourceOf(header, body),
		max:        max,
		headerSize: headerSize,
		entries:    make([]ResourceHeader, 0, max),
		nextID:     1,
		blobs:      blobs,
	}
}

// SetBlobStore replaces the body store.
func (r *Resource) SetBlobStore(b BlobStore) { r.blobs = b }

// BodyKey is the blob store key of resource id.
func (r *Resource) BodyKey(id uint32) string {
	return fmt.Sprintf("r_%s_%d", r.name, id)
}

// Capacity returns the maximum number of live entries.
func (r *Resource) Capacity() int { return r.max }

// Count returns the number of live entries.
func (r *Resource) Count() int { return len(r.entries) }

// HeaderSize returns the fixed header length.
func (r *Resource) HeaderSize() int { return r.headerSize }

// NextID returns the id the next CreateResource will assign.
func (r *Resource) NextID() uint32 { return r.nextID }

// OnChange installs the change callback; nil clears it.
func (r *Resource) OnChange(fn func(ResourceEvent)) { r.onChange = fn }

// Header returns a copy of the header of id.
func (r *Resource) Header(id uint32) (ResourceHeader, bool) {
	i := r.find(id)
	if i < 0 {
		return ResourceHeader{}, false
	}
	return r.entries[i].clone(), true
}

// ForEach visits live headers in id order until fn returns false.
func (r *Resource) ForEach(fn func(h ResourceHeader) bool) {
	for _, h := range append([]ResourceHeader(nil), r.entries...) {
		if !fn(h.clone()) {
			return
		}
	}
}

// CreateResource stores a new entry and returns its id. The body is written
// first; the id is consumed only when the write succeeds.
func (r *Resource) CreateResource(ctx context.Context, header, body []byte) (uint32, error) {
	if len(r.entries) >= r.max {
		return 0, fmt.Errorf("%s: %d resources: %w", r.name, r.max, types.ErrCapacityExceeded)
	}
	data, err := r.headerData(header)
	if err != nil {
		return 0, err
	}
	id := r.nextID
	if err := r.putBody(ctx, id, body); err != nil {
		return 0, err
	}
	r.nextID++
	r.entries = append(r.entries, ResourceHeader{
		ID:       id,
		Version:  1,
		BodySize: uint32(len(body)),
		Valid:    true,
		Data:     data,
	})
	r.notify(ResourceCreated, id)
	return id, nil
}

// UpdateHeader replaces the header bytes of id. The version is unchanged.
func (r *Resource) UpdateHeader(id uint32, header []byte) error {
	i := r.find(id)
	if i < 0 {
		return fmt.Errorf("%s/%d: %w", r.name, id, types.ErrNotFound)
	}
	data, err := r.headerData(header)
	if err != nil {
		return err
	}
	if bytes.Equal(r.entries[i].Data, data) {
		return nil
	}
	r.entries[i].Data = data
	r.notify(ResourceUpdated, id)
	return nil
}

// UpdateBody rewrites the body of id and increments its version.
func (r *Resource) UpdateBody(ctx context.Context, id uint32, body []byte) error {
	i := r.find(id)
	if i < 0 {
		return fmt.Errorf("%s/%d: %w", r.name, id, types.ErrNotFound)
	}
	if err := r.putBody(ctx, id, body); err != nil {
		return err
	}
	r.entries[i].Version++
	r.entries[i].BodySize = uint32(len(body))
	r.notify(ResourceUpdated, id)
	return nil
}

// ReadBody returns the body of id.
func (r *Resource) ReadBody(ctx context.Context, id uint32) ([]byte, error) {
	if r.find(id) < 0 {
		return nil, fmt.Errorf("%s/%d: %w", r.name, id, types.ErrNotFound)
	}
	if r.blobs == nil {
		return nil, fmt.Errorf("%s/%d: no blob store: %w", r.name, id, types.ErrIOFailure)
	}
	body, err := r.blobs.GetBody(ctx, r.BodyKey(id))
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s/%d: %w: %w", r.name, id, types.ErrIOFailure, err)
	}
	return body, nil
}

// DeleteResource frees the entry of id and deletes its body. A body that is
// already gone is not an error.
func (r *Resource) DeleteResource(ctx context.Context, id uint32) error {
	i := r.find(id)
	if i < 0 {
		return fmt.Errorf("%s/%d: %w", r.name, id, types.ErrNotFound)
	}
	if r.blobs != nil {
		err := r.blobs.DeleteBody(ctx, r.BodyKey(id))
		if err != nil && !errors.Is(err, types.ErrNotFound) {
			return fmt.Errorf("%s/%d: %w: %w", r.name, id, types.ErrIOFailure, err)
		}
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	r.notify(ResourceDeleted, id)
	return nil
}

// EncodeEntry writes the single-resource value form of id:
// id u32 | version u32 | header | varint len | body.
func (r *Resource) EncodeEntry(wb *wire.WriteBuffer, id uint32, body []byte) bool {
	i := r.find(id)
	if i < 0 {
		return false
	}
	h := r.entries[i]
	return wb.WriteU32(h.ID) && wb.WriteU32(h.Version) && wb.WriteBytes(h.Data) && wb.WriteBlob(body)
}

func (r *Resource) find(id uint32) int {
	for i := range r.entries {
		if r.entries[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *Resource) headerData(header []byte) ([]byte, error) {
	if len(header) > r.headerSize {
		return nil, fmt.Errorf("%s: header of %d bytes exceeds %d: %w", r.name, len(header), r.headerSize, types.ErrBufferOverflow)
	}
	data := make([]byte, r.headerSize)
	copy(data, header)
	return data, nil
}

func (r *Resource) putBody(ctx context.Context, id uint32, body []byte) error {
	if r.blobs == nil {
		return nil
	}
	if err := r.blobs.PutBody(ctx, r.BodyKey(id), body); err != nil {
		return fmt.Errorf("%s/%d: %w: %w", r.name, id, types.ErrIOFailure, err)
	}
	return nil
}

func (r *Resource) notify(op ResourceOp, id uint32) {
	r.changed(r)
	if r.onChange != nil {
		r.onChange(ResourceEvent{Op: op, ID: id})
	}
}

func (h ResourceHeader) clone() ResourceHeader {
	h.Data = bytes.Clone(h.Data)
	return h
}

func (r *Resource) TypeID() types.TypeID { return types.TypeResource }
func (r *Resource) TypeDef() *schema.TypeDef { return r.td }

func (r *Resource) Size() int {
	n := 4 + wire.VarintSize(uint32(len(r.entries)))
	for _, h := range r.entries {
		n += 8 + wire.VarintSize(h.BodySize) + r.headerSize
	}
	return n
}

// Encode writes next_id u32 | varint count | (id, version, varint body_size,
// header)*.
func (r *Resource) Encode(wb *wire.WriteBuffer) bool {
	if !wb.WriteU32(r.nextID) || wb.WriteVarint(uint32(len(r.entries))) == 0 {
		return false
	}
	for _, h := range r.entries {
		if !wb.WriteU32(h.ID) || !wb.WriteU32(h.Version) || wb.WriteVarint(h.BodySize) == 0 || !wb.WriteBytes(h.Data) {
			return false
		}
	}
	return true
}

// Decode replaces the whole table. Entries must have distinct non-zero ids
// below next_id, in increasing order, with version >= 1.
func (r *Resource) Decode(rb *wire.ReadBuffer) error {
	start := rb.Position()
	entries, next, err := r.decodeTable(rb)
	if err != nil {
		rb.SetPosition(start)
		return err
	}
	consumed := rb.Position() - start
	rb.SetPosition(start)
	raw, _ := rb.ReadBytes(consumed)
	if bytes.Equal(raw, r.encoded()) {
		return nil
	}
	r.entries = append(r.entries[:0], entries...)
	r.nextID = next
	r.notify(ResourceReloaded, 0)
	return nil
}

func (r *Resource) decodeTable(rb *wire.ReadBuffer) ([]ResourceHeader, uint32, error) {
	next, err := rb.ReadU32()
	if err != nil {
		return nil, 0, err
	}
	n, err := rb.ReadVarint()
	if err != nil {
		return nil, 0, err
	}
	if int(n) > r.max {
		return nil, 0, fmt.Errorf("%s: %d entries: %w", r.name, n, types.ErrCapacityExceeded)
	}
	if next == 0 {
		return nil, 0, fmt.Errorf("%s: next id 0: %w", r.name, types.ErrTypeMismatch)
	}
	entries := make([]ResourceHeader, n)
	var prev uint32
	for i := range entries {
		h := &entries[i]
		if h.ID, err = rb.ReadU32(); err != nil {
			return nil, 0, err
		}
		if h.Version, err = rb.ReadU32(); err != nil {
			return nil, 0, err
		}
		if h.BodySize, err = rb.ReadVarint(); err != nil {
			return nil, 0, err
		}
		data, err := rb.ReadBytes(r.headerSize)
		if err != nil {
			return nil, 0, err
		}
		if h.ID <= prev || h.ID >= next || h.Version == 0 {
			return nil, 0, fmt.Errorf("%s: entry %d (v%d): %w", r.name, h.ID, h.Version, types.ErrValidation)
		}
		prev = h.ID
		h.Data = bytes.Clone(data)
		h.Valid = true
	}
	return entries, next, nil
}

func (r *Resource) encoded() []byte {
	wb := wire.NewWriteBuffer(make([]byte, r.Size()))
	r.Encode(wb)
	return wb.Bytes()
}

// SetGeneric accepts a codec.ResourceTable.
func (r *Resource) SetGeneric(in any) error {
	t, ok := in.(codec.ResourceTable)
	if !ok {
		return fmt.Errorf("%s: %w", r.name, types.ErrCoercionFailed)
	}
	size := 4 + wire.VarintSize(uint32(len(t.Entries))) + len(t.Entries)*(8+types.MaxVarintBytes+r.headerSize)
	wb := wire.NewWriteBuffer(make([]byte, size))
	if !codec.EncodeGeneric(wb, r.td, t) {
		return fmt.Errorf("%s: %w", r.name, types.ErrCoercionFailed)
	}
	return r.Decode(wire.NewReadBuffer(wb.Bytes()))
}
