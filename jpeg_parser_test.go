package nvjpg

import (
	"encoding/binary"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
)

// seg builds one marker segment: 0xFF, marker, big-endian length (including
// the two length bytes), then payload.
func seg(marker byte, payload []byte) []byte {
	out := []byte{0xFF, marker}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(payload)+2))
	out = append(out, lenBuf[:]...)
	return append(out, payload...)
}

func sofPayload(width, height uint16, components []Component) []byte {
	p := []byte{8}
	var hb, wb [2]byte
	binary.BigEndian.PutUint16(hb[:], height)
	binary.BigEndian.PutUint16(wb[:], width)
	p = append(p, hb[:]...)
	p = append(p, wb[:]...)
	p = append(p, byte(len(components)))
	for _, c := range components {
		p = append(p, c.ID, c.SamplingHoriz<<4|c.SamplingVert, c.QuantTableID)
	}
	return p
}

func dqtPayload(id uint8, precision uint8) []byte {
	p := []byte{precision<<4 | id}
	for i := 0; i < 64; i++ {
		p = append(p, uint8(i))
	}
	return p
}

func dhtPayload(class, id uint8, counts [16]uint8, symbols []uint8) []byte {
	p := []byte{class<<4 | id}
	p = append(p, counts[:]...)
	p = append(p, symbols...)
	return p
}

func sosPayload(components []Component) []byte {
	p := []byte{byte(len(components))}
	for _, c := range components {
		p = append(p, c.ID, c.HMDCTableID<<4|c.HMACTableID)
	}
	return append(p, 0, 63, 0)
}

// threeComponentJPEG returns a minimal well-formed baseline 4:2:0 JPEG with
// one quant table, one DC and one AC Huffman table shared across components.
func threeComponentJPEG(scanBytes []byte) []byte {
	components := []Component{
		{ID: 1, SamplingHoriz: 2, SamplingVert: 2, QuantTableID: 0, HMDCTableID: 1, HMACTableID: 2},
		{ID: 2, SamplingHoriz: 1, SamplingVert: 1, QuantTableID: 0, HMDCTableID: 1, HMACTableID: 2},
		{ID: 3, SamplingHoriz: 1, SamplingVert: 1, QuantTableID: 0, HMDCTableID: 1, HMACTableID: 2},
	}
	var counts [16]uint8
	counts[0] = 2
	symbols := []uint8{0x00, 0x01}

	out := []byte{0xFF, 0xD8}
	out = append(out, seg(0xC0, sofPayload(64, 48, components))...)
	out = append(out, seg(0xDB, dqtPayload(0, 0))...)
	out = append(out, seg(0xC4, dhtPayload(0, 1, counts, symbols))...)
	out = append(out, seg(0xC4, dhtPayload(1, 2, counts, symbols))...)
	out = append(out, seg(0xDD, []byte{0x00, 0x0A})...)
	out = append(out, seg(0xDA, sosPayload(components))...)
	out = append(out, scanBytes...)
	out = append(out, 0xFF, 0xD9)
	return out
}

func TestParseSuccess(t *testing.T) {
	c := qt.New(t)
	data := threeComponentJPEG([]byte{0x11, 0x22, 0x33})
	img, err := Parse(NewByteBuffer(data))
	c.Assert(err, qt.IsNil)

	c.Assert(img.Width, qt.Equals, uint16(64))
	c.Assert(img.Height, qt.Equals, uint16(48))
	c.Assert(img.NumComponents, qt.Equals, 3)
	c.Assert(img.RestartInterval, qt.Equals, uint16(10))
	c.Assert(img.Progressive, qt.Equals, false)
	c.Assert(img.QuantPresent&1, qt.Not(qt.Equals), uint8(0))
	// class=0 -> AC (spec.md §4.C), class=1 -> DC; dhtPayload(0, 1, ...) and
	// dhtPayload(1, 2, ...) land in ACTables[1] and DCTables[2] respectively.
	c.Assert(img.ACPresent&(1<<1), qt.Not(qt.Equals), uint8(0))
	c.Assert(img.DCPresent&(1<<2), qt.Not(qt.Equals), uint8(0))

	// SOS nibble order: high nibble DC, low nibble AC (T.81 B.2.3).
	c.Assert(img.Components[0].HMDCTableID, qt.Equals, uint8(1))
	c.Assert(img.Components[0].HMACTableID, qt.Equals, uint8(2))

	c.Assert(img.ScanOffset, qt.Equals, len(data)-len([]byte{0x11, 0x22, 0x33})-2)
	c.Assert(img.Buffer.Bytes()[img.ScanOffset:img.ScanOffset+3], qt.DeepEquals, []byte{0x11, 0x22, 0x33})
}

func TestParseDQTPrecisionNibbleFix(t *testing.T) {
	c := qt.New(t)
	// precision nibble (high) set to 1: a 16-bit table, which this driver
	// does not support. Under the original's buggy info>>8&0xF extraction
	// (always 0 for an 8-bit info byte) this would be silently accepted.
	components := []Component{{ID: 1, SamplingHoriz: 1, SamplingVert: 1, QuantTableID: 0}}
	out := []byte{0xFF, 0xD8}
	out = append(out, seg(0xC0, sofPayload(8, 8, components))...)
	out = append(out, seg(0xDB, dqtPayload(0, 1))...)

	_, err := Parse(NewByteBuffer(out))
	c.Assert(err, qt.ErrorMatches, ".*16-bit quantization.*")
	c.Assert(errors.Is(err, ErrInvalid), qt.Equals, true)
}

func TestParseDQTValidPrecisionAccepted(t *testing.T) {
	c := qt.New(t)
	data := threeComponentJPEG(nil)
	img, err := Parse(NewByteBuffer(data))
	c.Assert(err, qt.IsNil)
	c.Assert(img.QuantTables[0][1], qt.Equals, uint8(1))
}

func TestParseRejectsTooManyComponents(t *testing.T) {
	c := qt.New(t)
	components := []Component{
		{ID: 1, SamplingHoriz: 1, SamplingVert: 1},
		{ID: 2, SamplingHoriz: 1, SamplingVert: 1},
		{ID: 3, SamplingHoriz: 1, SamplingVert: 1},
		{ID: 4, SamplingHoriz: 1, SamplingVert: 1},
	}
	out := []byte{0xFF, 0xD8}
	out = append(out, seg(0xC0, sofPayload(8, 8, components))...)

	_, err := Parse(NewByteBuffer(out))
	c.Assert(errors.Is(err, ErrInvalid), qt.Equals, true)
}

func TestParseTruncatedSegmentIsNoData(t *testing.T) {
	c := qt.New(t)
	out := []byte{0xFF, 0xD8, 0xFF, 0xC0, 0x00, 0x20} // declares 0x20 bytes, supplies none
	_, err := Parse(NewByteBuffer(out))
	c.Assert(errors.Is(err, ErrNoData), qt.Equals, true)
}

func TestParseEOIBeforeSOSIsNoData(t *testing.T) {
	c := qt.New(t)
	out := []byte{0xFF, 0xD8, 0xFF, 0xD9}
	_, err := Parse(NewByteBuffer(out))
	c.Assert(errors.Is(err, ErrNoData), qt.Equals, true)
}

func TestParseMissingSOIIsInvalid(t *testing.T) {
	c := qt.New(t)
	_, err := Parse(NewByteBuffer([]byte{0x00, 0x01}))
	c.Assert(errors.Is(err, ErrInvalid), qt.Equals, true)
}

func TestParseSOSComponentCountMismatch(t *testing.T) {
	c := qt.New(t)
	components := []Component{{ID: 1, SamplingHoriz: 1, SamplingVert: 1}}
	out := []byte{0xFF, 0xD8}
	out = append(out, seg(0xC0, sofPayload(8, 8, components))...)
	out = append(out, seg(0xDA, sosPayload([]Component{{ID: 1}, {ID: 2}}))...)

	_, err := Parse(NewByteBuffer(out))
	c.Assert(errors.Is(err, ErrInvalid), qt.Equals, true)
}
