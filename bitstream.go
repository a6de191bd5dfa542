package nvjpg

import "encoding/binary"

// word is the set of integer widths the bitstream reader can decode in one
// call. Reads past the end of the buffer return the zero value of T rather
// than panicking, matching the original decoder's bounds-checked reader.
type word interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Bitstream is a byte-oriented cursor over a ByteBuffer. It never panics on
// a short read: callers check Empty/Remaining when an exact byte count
// matters (the JPEG parser relies on this to detect truncated segments).
type Bitstream struct {
	buf ByteBuffer
	pos int
}

// NewBitstream returns a reader positioned at the start of buf.
func NewBitstream(buf ByteBuffer) *Bitstream {
	return &Bitstream{buf: buf}
}

// Empty reports whether the reader has consumed the whole buffer.
func (r *Bitstream) Empty() bool { return r.pos >= r.buf.Len() }

// Remaining returns the number of unread bytes.
func (r *Bitstream) Remaining() int {
	if n := r.buf.Len() - r.pos; n > 0 {
		return n
	}
	return 0
}

// Position returns the current byte offset into the underlying buffer.
func (r *Bitstream) Position() int { return r.pos }

// Skip advances the cursor by n bytes, clamped to the buffer's end.
func (r *Bitstream) Skip(n int) {
	r.pos += n
	if r.pos > r.buf.Len() {
		r.pos = r.buf.Len()
	}
	if r.pos < 0 {
		r.pos = 0
	}
}

// Rewind moves the cursor back n bytes, clamped to the start of the buffer.
func (r *Bitstream) Rewind(n int) { r.Skip(-n) }

// Peek returns the byte at the cursor without advancing it, or 0 past the
// end of the buffer.
func (r *Bitstream) Peek() uint8 { return r.buf.At(r.pos) }

// getValue reads sizeof(T) big-endian or host-order bytes starting at the
// cursor and advances it by that many bytes, clamped to the buffer's end;
// missing bytes read as zero.
func getValue[T word](r *Bitstream, bigEndian bool) T {
	var zero T
	size := 0
	switch any(zero).(type) {
	case uint8:
		size = 1
	case uint16:
		size = 2
	case uint32:
		size = 4
	case uint64:
		size = 8
	}

	buf := make([]byte, size)
	for i := 0; i < size; i++ {
		buf[i] = r.buf.At(r.pos + i)
	}
	r.Skip(size)

	switch size {
	case 1:
		return T(buf[0])
	case 2:
		if bigEndian {
			return T(binary.BigEndian.Uint16(buf))
		}
		return T(binary.LittleEndian.Uint16(buf))
	case 4:
		if bigEndian {
			return T(binary.BigEndian.Uint32(buf))
		}
		return T(binary.LittleEndian.Uint32(buf))
	default:
		if bigEndian {
			return T(binary.BigEndian.Uint64(buf))
		}
		return T(binary.LittleEndian.Uint64(buf))
	}
}

// Get reads a host-order (little-endian) value of type T and advances the
// cursor.
func Get[T word](r *Bitstream) T { return getValue[T](r, false) }

// GetBE reads a big-endian value of type T and advances the cursor. JPEG
// markers, segment lengths and scan headers are all big-endian.
func GetBE[T word](r *Bitstream) T { return getValue[T](r, true) }

// GetU8 reads a single byte, or 0 past the end of the buffer.
func (r *Bitstream) GetU8() uint8 { return Get[uint8](r) }

// GetU16BE reads a big-endian 16-bit value.
func (r *Bitstream) GetU16BE() uint16 { return GetBE[uint16](r) }

// GetU32BE reads a big-endian 32-bit value.
func (r *Bitstream) GetU32BE() uint32 { return GetBE[uint32](r) }
