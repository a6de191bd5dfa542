package nvjpg

import (
	"encoding/binary"
	"math"
)

// PictureInfoSize is the fixed size in bytes of the hardware's picture-info
// descriptor, laid out exactly as the engine reads it from device memory.
const PictureInfoSize = 0xb2c

const (
	huffmanTableCodesSize    = 16 * 4
	huffmanTableReservedSize = 80
	huffmanTableSymbolsSize  = 162
	huffmanTableWireSize     = huffmanTableCodesSize + huffmanTableReservedSize + huffmanTableSymbolsSize + 2 // 308

	offsetHMACTables = 0
	offsetHMDCTables = offsetHMACTables + 4*huffmanTableWireSize
	offsetComponents = offsetHMDCTables + 4*huffmanTableWireSize
	componentWireSize = 8
	offsetQuantTables = offsetComponents + 4*componentWireSize
	quantTableWireSize = 64

	offsetRestartInterval    = offsetQuantTables + 4*quantTableWireSize
	offsetWidth              = offsetRestartInterval + 4
	offsetHeight             = offsetWidth + 4
	offsetNumMCUH            = offsetHeight + 4
	offsetNumMCUV            = offsetNumMCUH + 4
	offsetNumComponents      = offsetNumMCUV + 4
	offsetScanDataOffset     = offsetNumComponents + 4
	offsetScanDataSize       = offsetScanDataOffset + 4
	offsetScanDataSampLayout = offsetScanDataSize + 4
	offsetOutDataSampLayout  = offsetScanDataSampLayout + 4
	offsetOutSurfType        = offsetOutDataSampLayout + 4
	offsetOutLumaPitch       = offsetOutSurfType + 4
	offsetOutChromaPitch     = offsetOutLumaPitch + 4
	offsetAlpha              = offsetOutChromaPitch + 4
	offsetYUV2RGBKernel      = offsetAlpha + 4
	offsetTileMode           = offsetYUV2RGBKernel + 6*4
	offsetGobHeight          = offsetTileMode + 4
	offsetMemoryMode         = offsetGobHeight + 4
	offsetDownscaleLog2      = offsetMemoryMode + 4
)

// PictureInfo is the byte-exact hardware picture-info descriptor. Fields
// are written at explicit offsets with encoding/binary rather than through
// a Go struct, since the descriptor's layout must match the engine's packed
// C layout regardless of what Go's own struct alignment rules would produce.
type PictureInfo struct {
	raw [PictureInfoSize]byte
}

// Bytes returns the descriptor's raw wire bytes, ready to be copied into a
// mapped MemoryBlock.
func (p *PictureInfo) Bytes() []byte { return p.raw[:] }

// Reset zeroes the descriptor.
func (p *PictureInfo) Reset() { p.raw = [PictureInfoSize]byte{} }

func (p *PictureInfo) putU32(offset int, v uint32) {
	binary.LittleEndian.PutUint32(p.raw[offset:], v)
}

func (p *PictureInfo) putI32(offset int, v int32) { p.putU32(offset, uint32(v)) }

func (p *PictureInfo) setHuffmanTable(base int, t *HuffmanTable) {
	for i, c := range t.Counts {
		p.putU32(base+i*4, uint32(c))
	}
	symOff := base + huffmanTableCodesSize + huffmanTableReservedSize
	copy(p.raw[symOff:symOff+huffmanTableSymbolsSize], t.Symbols[:])
}

func (p *PictureInfo) setComponent(i int, c Component) {
	off := offsetComponents + i*componentWireSize
	p.raw[off+0] = c.SamplingHoriz
	p.raw[off+1] = c.SamplingVert
	p.raw[off+2] = c.QuantTableID
	p.raw[off+3] = c.HMACTableID
	p.raw[off+4] = c.HMDCTableID
}

func (p *PictureInfo) setQuantTable(i int, t QuantTable) {
	off := offsetQuantTables + i*quantTableWireSize
	copy(p.raw[off:off+quantTableWireSize], t[:])
}

// ctz returns the number of trailing zero bits in v, or 32 if v is zero.
func ctz(v uint32) uint32 {
	if v == 0 {
		return 32
	}
	n := uint32(0)
	for v&1 == 0 {
		v >>= 1
		n++
	}
	return n
}

// clampDownscaleLog2 maps a requested downscale factor to the engine's
// supported powers of two: 1, 2, 4 or 8 (log2 0..3). Any other value maps
// to its trailing-zero count capped at 3, so an odd factor maps to 0 and
// 0 or 1 map to 0.
func clampDownscaleLog2(downscale uint32) uint32 {
	if downscale < 2 {
		return 0
	}
	log2 := ctz(downscale)
	if log2 > 3 {
		log2 = 3
	}
	return log2
}

// Populate zero-fills the descriptor and fills it from img, sized for a
// packed-output render. alpha is the constant alpha channel value for
// formats that have one; unused formats ignore it.
func (p *PictureInfo) Populate(img *Image, surf *Surface, alpha uint8, downscale uint32) {
	p.populateCommon(img, downscale)

	p.putU32(offsetOutDataSampLayout, uint32(img.Sampling()))
	p.putU32(offsetOutSurfType, uint32(surf.Format))
	p.putU32(offsetOutLumaPitch, surf.Pitch)
	p.putU32(offsetOutChromaPitch, 0)
	p.putU32(offsetAlpha, uint32(alpha))
	p.putU32(offsetMemoryMode, 0)
}

// PopulateVideo is Populate's counterpart for planar (video surface)
// output.
func (p *PictureInfo) PopulateVideo(img *Image, surf *VideoSurface, downscale uint32) {
	p.populateCommon(img, downscale)

	sampling := surf.Sampling
	if img.NumComponents == 1 {
		sampling = SamplingMono
	}

	p.putU32(offsetOutDataSampLayout, uint32(sampling))
	p.putU32(offsetOutLumaPitch, surf.LumaPitch)
	p.putU32(offsetOutChromaPitch, surf.ChromaPitch)
	p.putU32(offsetAlpha, 0)
	p.putU32(offsetMemoryMode, uint32(surf.Memory))
}

func (p *PictureInfo) populateCommon(img *Image, downscale uint32) {
	p.Reset()

	for i := 0; i < 4; i++ {
		if img.ACPresent&(1<<i) != 0 {
			p.setHuffmanTable(offsetHMACTables+i*huffmanTableWireSize, &img.ACTables[i])
		}
		if img.DCPresent&(1<<i) != 0 {
			p.setHuffmanTable(offsetHMDCTables+i*huffmanTableWireSize, &img.DCTables[i])
		}
		if img.QuantPresent&(1<<i) != 0 {
			p.setQuantTable(i, img.QuantTables[i])
		}
	}
	for i := 0; i < img.NumComponents; i++ {
		p.setComponent(i, img.Components[i])
	}

	mcuH, mcuV := img.NumMCU()

	p.putU32(offsetRestartInterval, uint32(img.RestartInterval))
	p.putU32(offsetWidth, uint32(img.Width))
	p.putU32(offsetHeight, uint32(img.Height))
	p.putU32(offsetNumMCUH, mcuH)
	p.putU32(offsetNumMCUV, mcuV)
	p.putU32(offsetNumComponents, uint32(img.NumComponents))

	scanLen := uint32(img.Buffer.Len() - img.ScanOffset)
	p.putU32(offsetScanDataOffset, 0)
	p.putU32(offsetScanDataSize, scanLen)
	p.putU32(offsetScanDataSampLayout, uint32(img.Sampling()))

	p.putU32(offsetTileMode, 0)
	p.putU32(offsetGobHeight, 0)
	p.putU32(offsetDownscaleLog2, clampDownscaleLog2(downscale))

	kernel := yuv2rgbKernel(ColorSpaceBT601Ex)
	for i, k := range kernel {
		p.putI32(offsetYUV2RGBKernel+i*4, k)
	}
}

// SetColorSpace overrides the descriptor's YUV->RGB kernel with the
// coefficients for cs. Populate/PopulateVideo default to ColorSpaceBT601Ex
// (JFIF full-range), the Decoder's default.
func (p *PictureInfo) SetColorSpace(cs ColorSpace) {
	kernel := yuv2rgbKernel(cs)
	for i, k := range kernel {
		p.putI32(offsetYUV2RGBKernel+i*4, k)
	}
}

// fixed16 converts a floating-point coefficient to Q16.16 fixed point, the
// format the engine's colour-conversion kernel expects.
func fixed16(f float64) int32 { return int32(math.Round(f * 65536)) }

// yuv2rgbKernel returns the six Q16.16 fixed-point coefficients
// {Y, R_from_Cr, G_from_Cb, G_from_Cr, B_from_Cb, bias} for the requested
// colour matrix.
func yuv2rgbKernel(cs ColorSpace) [6]int32 {
	switch cs {
	case ColorSpaceBT601:
		return [6]int32{
			fixed16(1.164), fixed16(1.596), fixed16(-0.391), fixed16(-0.813), fixed16(2.018), fixed16(16),
		}
	case ColorSpaceBT709:
		return [6]int32{
			fixed16(1.164), fixed16(1.793), fixed16(-0.213), fixed16(-0.534), fixed16(2.115), fixed16(16),
		}
	default: // ColorSpaceBT601Ex: full-range JFIF, the decoder's default
		return [6]int32{
			fixed16(1.0), fixed16(1.402), fixed16(-0.344136), fixed16(-0.714136), fixed16(1.772), 0,
		}
	}
}
