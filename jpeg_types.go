package nvjpg

// Marker is a JPEG/JFIF marker code, the byte following the 0xFF marker
// prefix.
type Marker uint8

const (
	MarkerSOI  Marker = 0xD8 // start of image
	MarkerEOI  Marker = 0xD9 // end of image
	MarkerSOS  Marker = 0xDA // start of scan
	MarkerDQT  Marker = 0xDB // define quantization table
	MarkerDHT  Marker = 0xC4 // define Huffman table
	MarkerDRI  Marker = 0xDD // define restart interval
	MarkerSOF0 Marker = 0xC0 // baseline DCT
	MarkerSOF2 Marker = 0xC2 // progressive DCT
)

func isAPPn(m Marker) bool { return m >= 0xE0 && m <= 0xEF }
func isSOFn(m Marker) bool { return m >= 0xC0 && m <= 0xCF && m != 0xC4 && m != 0xC8 && m != 0xCC }

// QuantTable is a single 8-bit quantization table in zig-zag order, as
// stored in a DQT segment.
type QuantTable [64]uint8

// HuffmanTable is a single Huffman table as stored in a DHT segment: Counts
// holds the number of codes of each bit length 1..16, Symbols holds the
// decoded symbol values in canonical order. The engine wants Counts widened
// to 32 bits, which PictureInfo does at population time.
type HuffmanTable struct {
	Counts      [16]uint8
	Symbols     [162]uint8
	SymbolCount int
}

// Component describes one scan component's subsampling and table
// assignment, taken from the SOF and SOS segments.
type Component struct {
	ID            uint8
	SamplingHoriz uint8
	SamplingVert  uint8
	QuantTableID  uint8
	HMDCTableID   uint8
	HMACTableID   uint8
}

// Image is the fully parsed descriptor of a baseline JPEG bitstream: enough
// metadata to build a PictureInfo and locate the entropy-coded scan data,
// without decoding a single coefficient.
type Image struct {
	Buffer ByteBuffer

	Width, Height  uint16
	NumComponents  int
	Components     [4]Component
	RestartInterval uint16
	Progressive    bool

	QuantTables  [4]QuantTable
	QuantPresent uint8 // bit i set => QuantTables[i] was defined

	DCTables    [4]HuffmanTable
	DCPresent   uint8 // bit i set => DCTables[i] was defined
	ACTables    [4]HuffmanTable
	ACPresent   uint8 // bit i set => ACTables[i] was defined

	// ScanOffset is the byte offset of the first entropy-coded data byte
	// after the SOS header, within Buffer.
	ScanOffset int
}

// macroblockPixels returns the width and height in pixels of one
// macroblock, derived from the maximum component sampling factors.
func (img *Image) macroblockPixels() (mcuW, mcuH int) {
	maxH, maxV := 1, 1
	for i := 0; i < img.NumComponents; i++ {
		if int(img.Components[i].SamplingHoriz) > maxH {
			maxH = int(img.Components[i].SamplingHoriz)
		}
		if int(img.Components[i].SamplingVert) > maxV {
			maxV = int(img.Components[i].SamplingVert)
		}
	}
	return maxH * 8, maxV * 8
}

// NumMCU returns the number of macroblocks the image spans horizontally and
// vertically, rounding up partial edge blocks.
func (img *Image) NumMCU() (horiz, vert uint32) {
	mcuW, mcuH := img.macroblockPixels()
	horiz = uint32((int(img.Width) + mcuW - 1) / mcuW)
	vert = uint32((int(img.Height) + mcuH - 1) / mcuH)
	return
}

// Sampling classifies the image's chroma subsampling scheme from its
// component sampling factors. Monochrome images report SamplingMono
// regardless of the (irrelevant) factor recorded for their single component.
func (img *Image) Sampling() SamplingScheme {
	if img.NumComponents == 1 {
		return SamplingMono
	}
	luma := img.Components[0]
	switch {
	case luma.SamplingHoriz == 2 && luma.SamplingVert == 2:
		return Sampling420
	case luma.SamplingHoriz == 2 && luma.SamplingVert == 1:
		return Sampling422
	case luma.SamplingHoriz == 1 && luma.SamplingVert == 2:
		return Sampling440
	default:
		return Sampling444
	}
}
