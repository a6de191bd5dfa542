package nvjpg

// PixelFormat names a packed output pixel layout for Surface.
type PixelFormat uint32

const (
	PixelFormatRGB PixelFormat = iota
	PixelFormatBGR
	PixelFormatRGBA
	PixelFormatBGRA
	PixelFormatABGR
	PixelFormatARGB
)

// BytesPerPixel returns the packed pixel stride contributed by one pixel in
// this format.
func (f PixelFormat) BytesPerPixel() uint32 {
	switch f {
	case PixelFormatRGB, PixelFormatBGR:
		return 3
	default:
		return 4
	}
}

// SamplingScheme classifies chroma subsampling for a VideoSurface.
type SamplingScheme uint32

const (
	SamplingMono SamplingScheme = iota
	Sampling420
	Sampling422
	Sampling440
	Sampling444
)

// subsampling returns the chroma plane's horizontal and vertical divisors
// relative to the luma plane.
func (s SamplingScheme) subsampling() (hDiv, vDiv uint32) {
	switch s {
	case Sampling420:
		return 2, 2
	case Sampling422:
		return 2, 1
	case Sampling440:
		return 1, 2
	case Sampling444:
		return 1, 1
	default: // SamplingMono: caller must not address chroma planes
		return 1, 1
	}
}

// MemoryMode selects the plane arrangement the engine writes into a
// VideoSurface.
type MemoryMode uint32

const (
	MemoryModeSemiPlanarNV12 MemoryMode = iota
	MemoryModeSemiPlanarNV21
	MemoryModePlanar
)

const (
	surfacePitchAlign = 256
	surfaceSizeAlign  = 131072
)

// AlignUp rounds v up to the next multiple of align, which must be a power
// of two.
func AlignUp(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}

// computePitch returns the pitch the engine requires for a plane of the
// given byte width.
func computePitch(widthBytes uint32) uint32 { return AlignUp(widthBytes, surfacePitchAlign) }

// computeSize returns the allocation size the engine requires for a plane
// of the given pitch and height.
func computeSize(pitch, height uint32) uint32 { return AlignUp(pitch*height, surfaceSizeAlign) }

// Surface is a single packed-pixel output buffer (RGB/RGBA and friends).
type Surface struct {
	Block  *MemoryBlock
	Width  uint32
	Height uint32
	Pitch  uint32
	Format PixelFormat

	RenderFence Fence
}

func (s *Surface) fence() Fence { return s.RenderFence }

// NewSurface returns an unallocated Surface sized to hold width x height
// pixels of the given format. Call Allocate before rendering into it.
func NewSurface(width, height uint32, format PixelFormat) *Surface {
	return &Surface{
		Width:  width,
		Height: height,
		Pitch:  computePitch(width * format.BytesPerPixel()),
		Format: format,
	}
}

// Allocate reserves and maps device memory for the surface through adapter.
func (s *Surface) Allocate(adapter ChannelAdapter, ch *Channel) error {
	size := computeSize(s.Pitch, s.Height)
	block, err := adapter.Allocate(size, surfacePitchAlign, 0)
	if err != nil {
		return err
	}
	if err := adapter.MapCPU(block); err != nil {
		adapter.Free(block)
		return err
	}
	if err := adapter.MapDevice(block, ch); err != nil {
		adapter.UnmapCPU(block)
		adapter.Free(block)
		return err
	}
	s.Block = block
	return nil
}

// Free releases the surface's backing memory. Safe to call on an
// unallocated surface.
func (s *Surface) Free(adapter ChannelAdapter) error {
	if s.Block == nil {
		return nil
	}
	adapter.UnmapDevice(s.Block)
	adapter.UnmapCPU(s.Block)
	err := adapter.Free(s.Block)
	s.Block = nil
	return err
}

// VideoSurface is a planar YUV output buffer: one luma plane and two chroma
// planes (or, for SamplingMono, just the luma plane).
type VideoSurface struct {
	Block  *MemoryBlock
	Width  uint32
	Height uint32

	LumaPitch   uint32
	ChromaPitch uint32
	Sampling    SamplingScheme
	Memory      MemoryMode

	ChromaBOffset uint32
	ChromaROffset uint32

	RenderFence Fence
}

func (s *VideoSurface) fence() Fence { return s.RenderFence }

// NewVideoSurface returns an unallocated VideoSurface. Call Allocate before
// rendering into it.
func NewVideoSurface(width, height uint32, sampling SamplingScheme, mode MemoryMode) *VideoSurface {
	hDiv, vDiv := sampling.subsampling()
	lumaPitch := computePitch(width)
	chromaPitch := computePitch(width / hDiv)
	lumaSize := computeSize(lumaPitch, height)
	chromaSize := computeSize(chromaPitch, height/vDiv)

	return &VideoSurface{
		Width:         width,
		Height:        height,
		LumaPitch:     lumaPitch,
		ChromaPitch:   chromaPitch,
		Sampling:      sampling,
		Memory:        mode,
		ChromaBOffset: lumaSize,
		ChromaROffset: lumaSize + chromaSize,
	}
}

// totalSize returns the combined allocation size of all planes.
func (s *VideoSurface) totalSize() uint32 {
	if s.Sampling == SamplingMono {
		return computeSize(s.LumaPitch, s.Height)
	}
	chromaSize := s.ChromaROffset - s.ChromaBOffset
	return s.ChromaBOffset + 2*chromaSize
}

// Allocate reserves and maps device memory for all of the surface's planes
// as a single contiguous block through adapter.
func (s *VideoSurface) Allocate(adapter ChannelAdapter, ch *Channel) error {
	block, err := adapter.Allocate(s.totalSize(), surfacePitchAlign, 0)
	if err != nil {
		return err
	}
	if err := adapter.MapCPU(block); err != nil {
		adapter.Free(block)
		return err
	}
	if err := adapter.MapDevice(block, ch); err != nil {
		adapter.UnmapCPU(block)
		adapter.Free(block)
		return err
	}
	s.Block = block
	return nil
}

// Free releases the surface's backing memory. Safe to call on an
// unallocated surface.
func (s *VideoSurface) Free(adapter ChannelAdapter) error {
	if s.Block == nil {
		return nil
	}
	adapter.UnmapDevice(s.Block)
	adapter.UnmapCPU(s.Block)
	err := adapter.Free(s.Block)
	s.Block = nil
	return err
}
