package nvjpg

import "fmt"

// Parse walks a JFIF/JPEG bitstream's markers and builds an Image
// descriptor: component layout, quantization and Huffman tables, restart
// interval, and the byte offset of the entropy-coded scan data. It does not
// decode a single coefficient — that is the hardware's job once the
// descriptor and scan bytes reach the engine.
func Parse(buf ByteBuffer) (*Image, error) {
	r := NewBitstream(buf)
	if r.Remaining() < 2 || r.GetU8() != 0xFF || Marker(r.GetU8()) != MarkerSOI {
		return nil, fmt.Errorf("nvjpg: %w: missing SOI marker", ErrInvalid)
	}

	img := &Image{Buffer: buf}

	for {
		marker, ok := findNextMarker(r)
		if !ok {
			return nil, fmt.Errorf("nvjpg: %w: no SOS before end of buffer", ErrNoData)
		}
		if marker == MarkerEOI {
			return nil, fmt.Errorf("nvjpg: %w: EOI marker before SOS", ErrNoData)
		}

		if r.Remaining() < 2 {
			return nil, fmt.Errorf("nvjpg: %w: truncated segment header", ErrNoData)
		}
		segStart := r.Position()
		size := int(r.GetU16BE())
		if size < 2 || r.Remaining() < size-2 {
			return nil, fmt.Errorf("nvjpg: %w: truncated segment body", ErrNoData)
		}
		segEnd := segStart + size

		var err error
		switch {
		case isAPPn(marker):
			// application-specific metadata, nothing the engine consumes
		case isSOFn(marker):
			err = parseSOF(img, r, marker)
		case marker == MarkerDQT:
			err = parseDQT(img, r, segEnd)
		case marker == MarkerDHT:
			err = parseDHT(img, r, segEnd)
		case marker == MarkerDRI:
			img.RestartInterval = r.GetU16BE()
		case marker == MarkerSOS:
			err = parseSOS(img, r)
			if err == nil {
				return img, nil
			}
		default:
			// unrecognized marker: its declared size still bounds it below
		}
		if err != nil {
			return nil, err
		}

		r.Skip(segEnd - r.Position())
	}
}

// findNextMarker advances past any fill bytes and stuffed zero bytes and
// returns the next real marker code, or false once the buffer is exhausted.
func findNextMarker(r *Bitstream) (Marker, bool) {
	for {
		for !r.Empty() && r.GetU8() != 0xFF {
		}
		if r.Empty() {
			return 0, false
		}
		b := r.GetU8()
		for b == 0xFF {
			if r.Empty() {
				return 0, false
			}
			b = r.GetU8()
		}
		if b == 0x00 {
			continue
		}
		return Marker(b), true
	}
}

func parseSOF(img *Image, r *Bitstream, marker Marker) error {
	img.Progressive = marker != MarkerSOF0
	_ = r.GetU8() // sample precision, always 8 for the profiles this driver supports
	img.Height = r.GetU16BE()
	img.Width = r.GetU16BE()

	n := int(r.GetU8())
	if n < 1 || n > 3 {
		return fmt.Errorf("nvjpg: %w: unsupported component count %d", ErrInvalid, n)
	}
	img.NumComponents = n

	for i := 0; i < n; i++ {
		id := r.GetU8()
		sampling := r.GetU8()
		quant := r.GetU8()
		img.Components[i] = Component{
			ID:            id,
			SamplingHoriz: sampling >> 4,
			SamplingVert:  sampling & 0xF,
			QuantTableID:  quant,
		}
	}
	return nil
}

func parseDQT(img *Image, r *Bitstream, segEnd int) error {
	for r.Position() < segEnd {
		info := r.GetU8()
		precision := info >> 4 & 0xF
		id := info & 0xF
		if id > 3 {
			return fmt.Errorf("nvjpg: %w: quantization table id %d out of range", ErrInvalid, id)
		}
		if precision != 0 {
			return fmt.Errorf("nvjpg: %w: 16-bit quantization tables unsupported", ErrInvalid)
		}
		for i := 0; i < 64; i++ {
			img.QuantTables[id][i] = r.GetU8()
		}
		img.QuantPresent |= 1 << id
	}
	return nil
}

func parseDHT(img *Image, r *Bitstream, segEnd int) error {
	for r.Position() < segEnd {
		info := r.GetU8()
		class := info >> 4
		id := info & 0xF
		if id > 3 {
			return fmt.Errorf("nvjpg: %w: huffman table id %d out of range", ErrInvalid, id)
		}

		var table HuffmanTable
		total := 0
		for i := 0; i < 16; i++ {
			c := r.GetU8()
			table.Counts[i] = c
			total += int(c)
		}
		if total > len(table.Symbols) {
			return fmt.Errorf("nvjpg: %w: huffman table declares %d symbols", ErrInvalid, total)
		}
		for i := 0; i < total; i++ {
			table.Symbols[i] = r.GetU8()
		}
		table.SymbolCount = total

		if class == 0 {
			img.ACTables[id] = table
			img.ACPresent |= 1 << id
		} else {
			img.DCTables[id] = table
			img.DCPresent |= 1 << id
		}
	}
	return nil
}

func parseSOS(img *Image, r *Bitstream) error {
	ns := int(r.GetU8())
	if ns != img.NumComponents {
		return fmt.Errorf("nvjpg: %w: SOS lists %d components, SOF declared %d", ErrInvalid, ns, img.NumComponents)
	}
	for i := 0; i < ns; i++ {
		id := r.GetU8()
		info := r.GetU8()
		dc := info >> 4 // high nibble: DC table id (JFIF/T.81 B.2.3)
		ac := info & 0xF // low nibble: AC table id
		for c := 0; c < img.NumComponents; c++ {
			if img.Components[c].ID == id {
				img.Components[c].HMDCTableID = dc
				img.Components[c].HMACTableID = ac
			}
		}
	}
	r.Skip(3) // spectral selection start/end and successive approximation: unused outside progressive scans
	img.ScanOffset = r.Position()
	return nil
}
