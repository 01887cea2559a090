// internal/wire/buffer.go
package wire

import (
	"encoding/binary"
	"math"

	"github.com/solatis/microproto/internal/types"
)

/*
 * Bounded little-endian buffers.
 *
 * WriteBuffer and ReadBuffer are non-owning views over caller memory. A write
 * that does not fit sets a sticky overflow flag, writes nothing and returns
 * false; every later write fails fast until Reset or Truncate. A read that
 * does not fit returns ErrBufferUnderflow and leaves the position untouched.
 *
 * Varints use 7-bit groups with the high bit as continuation, least
 * significant group first. A 32-bit value needs at most 5 bytes.
 */

// WriteBuffer writes into a fixed caller-provided byte slice.
type WriteBuffer struct {
	buf      []byte
	pos      int
	overflow bool
}

// NewWriteBuffer wraps buf; its length is the capacity.
func NewWriteBuffer(buf []byte) *WriteBuffer {
	return &WriteBuffer{buf: buf}
}

// reserve returns the slice for the next n bytes or flags overflow.
func (w *WriteBuffer) reserve(n int) []byte {
	if w.overflow {
		return nil
	}
	if n > len(w.buf)-w.pos {
		w.overflow = true
		return nil
	}
	p := w.buf[w.pos : w.pos+n]
	w.pos += n
	return p
}

// WriteBytes copies p verbatim.
func (w *WriteBuffer) WriteBytes(p []byte) bool {
	dst := w.reserve(len(p))
	if dst == nil && len(p) > 0 {
		return false
	}
	copy(dst, p)
	return !w.overflow
}

// WriteU8 writes one byte.
func (w *WriteBuffer) WriteU8(v uint8) bool {
	dst := w.reserve(1)
	if dst == nil {
		return false
	}
	dst[0] = v
	return true
}

// WriteBool writes 1 for true and 0 for false.
func (w *WriteBuffer) WriteBool(v bool) bool {
	if v {
		return w.WriteU8(1)
	}
	return w.WriteU8(0)
}

// WriteU16 writes v little-endian.
func (w *WriteBuffer) WriteU16(v uint16) bool {
	dst := w.reserve(2)
	if dst == nil {
		return false
	}
	binary.LittleEndian.PutUint16(dst, v)
	return true
}

// WriteU32 writes v little-endian.
func (w *WriteBuffer) WriteU32(v uint32) bool {
	dst := w.reserve(4)
	if dst == nil {
		return false
	}
	binary.LittleEndian.PutUint32(dst, v)
	return true
}

// WriteU64 writes v little-endian.
func (w *WriteBuffer) WriteU64(v uint64) bool {
	dst := w.reserve(8)
	if dst == nil {
		return false
	}
	binary.LittleEndian.PutUint64(dst, v)
	return true
}

// WriteF32 writes the IEEE-754 bits of v little-endian.
func (w *WriteBuffer) WriteF32(v float32) bool {
	return w.WriteU32(math.Float32bits(v))
}

// WriteF64 writes the IEEE-754 bits of v little-endian.
func (w *WriteBuffer) WriteF64(v float64) bool {
	return w.WriteU64(math.Float64bits(v))
}

// WriteVarint writes v as a varint and returns the number of bytes written,
// or 0 when it does not fit.
func (w *WriteBuffer) WriteVarint(v uint32) int {
	n := VarintSize(v)
	dst := w.reserve(n)
	if dst == nil {
		return 0
	}
	for i := 0; i < n-1; i++ {
		dst[i] = byte(v) | 0x80
		v >>= 7
	}
	dst[n-1] = byte(v)
	return n
}

// WritePropID writes a property id as 2 bytes little-endian.
func (w *WriteBuffer) WritePropID(id types.PropertyID) bool {
	return w.WriteU16(uint16(id))
}

// WriteString writes a varint length followed by the bytes of s.
func (w *WriteBuffer) WriteString(s string) bool {
	if VarintSize(uint32(len(s)))+len(s) > w.Remaining() {
		w.overflow = true
		return false
	}
	w.WriteVarint(uint32(len(s)))
	dst := w.reserve(len(s))
	copy(dst, s)
	return !w.overflow
}

// WriteBlob writes a varint length followed by p.
func (w *WriteBuffer) WriteBlob(p []byte) bool {
	if VarintSize(uint32(len(p)))+len(p) > w.Remaining() {
		w.overflow = true
		return false
	}
	w.WriteVarint(uint32(len(p)))
	return w.WriteBytes(p)
}

// Position returns the number of bytes written so far.
func (w *WriteBuffer) Position() int { return w.pos }

// Capacity returns the size of the underlying slice.
func (w *WriteBuffer) Capacity() int { return len(w.buf) }

// Remaining returns the free space, 0 once overflowed.
func (w *WriteBuffer) Remaining() int {
	if w.overflow {
		return 0
	}
	return len(w.buf) - w.pos
}

// Ok reports whether no write has overflowed.
func (w *WriteBuffer) Ok() bool { return !w.overflow }

// Err returns ErrBufferOverflow once a write has failed.
func (w *WriteBuffer) Err() error {
	if w.overflow {
		return types.ErrBufferOverflow
	}
	return nil
}

// Bytes returns the written prefix of the underlying slice.
func (w *WriteBuffer) Bytes() []byte { return w.buf[:w.pos] }

// Reset rewinds to the start and clears the overflow flag.
func (w *WriteBuffer) Reset() {
	w.pos = 0
	w.overflow = false
}

// Truncate rewinds to pos (a value previously returned by Position) and
// clears the overflow flag. Used to roll back a partially written message.
func (w *WriteBuffer) Truncate(pos int) {
	if pos < 0 || pos > w.pos {
		return
	}
	w.pos = pos
	w.overflow = false
}

// VarintSize returns the encoded length of v.
func VarintSize(v uint32) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// ReadBuffer reads from a caller-provided byte slice.
type ReadBuffer struct {
	data []byte
	pos  int
}

// NewReadBuffer wraps data without copying.
func NewReadBuffer(data []byte) *ReadBuffer {
	return &ReadBuffer{data: data}
}

func (r *ReadBuffer) take(n int) ([]byte, error) {
	if n < 0 || n > len(r.data)-r.pos {
		return nil, types.ErrBufferUnderflow
	}
	p := r.data[r.pos : r.pos+n]
	r.pos += n
	return p, nil
}

// ReadU8 reads one byte.
func (r *ReadBuffer) ReadU8() (uint8, error) {
	p, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

// ReadBool reads one byte; any non-zero value is true.
func (r *ReadBuffer) ReadBool() (bool, error) {
	v, err := r.ReadU8()
	return v != 0, err
}

// ReadU16 reads a little-endian uint16.
func (r *ReadBuffer) ReadU16() (uint16, error) {
	p, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(p), nil
}

// ReadU32 reads a little-endian uint32.
func (r *ReadBuffer) ReadU32() (uint32, error) {
	p, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p), nil
}

// ReadU64 reads a little-endian uint64.
func (r *ReadBuffer) ReadU64() (uint64, error) {
	p, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p), nil
}

// ReadF32 reads a little-endian IEEE-754 float32.
func (r *ReadBuffer) ReadF32() (float32, error) {
	v, err := r.ReadU32()
	return math.Float32frombits(v), err
}

// ReadF64 reads a little-endian IEEE-754 float64.
func (r *ReadBuffer) ReadF64() (float64, error) {
	v, err := r.ReadU64()
	return math.Float64frombits(v), err
}

// ReadVarint reads a varint of at most 5 bytes.
// On failure the position is unchanged.
func (r *ReadBuffer) ReadVarint() (uint32, error) {
	var v uint32
	start := r.pos
	for i := 0; i < types.MaxVarintBytes; i++ {
		if r.pos >= len(r.data) {
			r.pos = start
			return 0, types.ErrBufferUnderflow
		}
		b := r.data[r.pos]
		r.pos++
		if i == types.MaxVarintBytes-1 && b > 0x0F {
			r.pos = start
			return 0, types.ErrVarintOverflow
		}
		v |= uint32(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			return v, nil
		}
	}
	r.pos = start
	return 0, types.ErrVarintOverflow
}

// ReadPropID reads a 2-byte little-endian property id.
func (r *ReadBuffer) ReadPropID() (types.PropertyID, error) {
	v, err := r.ReadU16()
	return types.PropertyID(v), err
}

// ReadBytes returns the next n bytes. The slice aliases the buffer's memory.
func (r *ReadBuffer) ReadBytes(n int) ([]byte, error) {
	return r.take(n)
}

// ReadBlob reads a varint length and that many bytes (aliased).
func (r *ReadBuffer) ReadBlob() ([]byte, error) {
	start := r.pos
	n, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	p, err := r.take(int(n))
	if err != nil {
		r.pos = start
		return nil, err
	}
	return p, nil
}

// ReadString reads a varint length and that many bytes as a string.
func (r *ReadBuffer) ReadString() (string, error) {
	p, err := r.ReadBlob()
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// Peek returns the next byte without consuming it.
func (r *ReadBuffer) Peek() (uint8, error) {
	if r.pos >= len(r.data) {
		return 0, types.ErrBufferUnderflow
	}
	return r.data[r.pos], nil
}

// Skip advances by n bytes.
func (r *ReadBuffer) Skip(n int) error {
	_, err := r.take(n)
	return err
}

// Position returns the number of bytes consumed.
func (r *ReadBuffer) Position() int { return r.pos }

// Remaining returns the number of unread bytes.
func (r *ReadBuffer) Remaining() int { return len(r.data) - r.pos }

// SetPosition moves the cursor, used to roll back a failed multi-part read.
func (r *ReadBuffer) SetPosition(pos int) {
	if pos >= 0 && pos <= len(r.data) {
		r.pos = pos
	}
}

// Rest returns the unread bytes (aliased).
func (r *ReadBuffer) Rest() []byte { return r.data[r.pos:] }
